package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// ReconciliationTask records a persisted order whose invoices still need their order link.
type ReconciliationTask struct {
	ID         uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	Kind       enums.ReconciliationKind   `gorm:"column:kind;not null"`
	Status     enums.ReconciliationStatus `gorm:"column:status;not null;index"`
	OrderID    uuid.UUID                  `gorm:"column:order_id;type:uuid;not null;index"`
	InvoiceIDs []uuid.UUID                `gorm:"column:invoice_ids;type:jsonb;serializer:json;not null"`
	Attempts   int                        `gorm:"column:attempts;not null;default:0"`
	LastError  *string                    `gorm:"column:last_error"`
	CreatedAt  time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
	ResolvedAt *time.Time                 `gorm:"column:resolved_at"`
}
