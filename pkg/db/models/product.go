package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalog listing the checkout reads and whose stock it decrements.
type Product struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	VendorID       string              `gorm:"column:vendor_id;not null;default:'';index"`
	Name           string              `gorm:"column:name;not null"`
	PriceCents     int64               `gorm:"column:price_cents;not null"`
	Stock          int                 `gorm:"column:stock;not null;default:0"`
	CommissionRate decimal.NullDecimal `gorm:"column:commission_rate;type:numeric(5,4)"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
