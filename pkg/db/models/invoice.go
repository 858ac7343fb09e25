package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Invoice is issued per vendor group before the order exists; OrderID is linked afterwards.
type Invoice struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Number          string              `gorm:"column:number;not null;uniqueIndex"`
	VendorID        string              `gorm:"column:vendor_id;not null;index"`
	CustomerID      uuid.UUID           `gorm:"column:customer_id;type:uuid;not null;index"`
	OrderID         *uuid.UUID          `gorm:"column:order_id;type:uuid;index"`
	Items           []LineItem          `gorm:"column:items;type:jsonb;serializer:json;not null"`
	SubtotalCents   int64               `gorm:"column:subtotal_cents;not null"`
	TaxCents        int64               `gorm:"column:tax_cents;not null"`
	ShippingCents   int64               `gorm:"column:shipping_cents;not null"`
	DiscountCents   int64               `gorm:"column:discount_cents;not null"`
	CommissionCents int64               `gorm:"column:commission_cents;not null"`
	TotalCents      int64               `gorm:"column:total_cents;not null"`
	NetAmountCents  int64               `gorm:"column:net_amount_cents;not null"`
	Currency        enums.Currency      `gorm:"column:currency;not null"`
	Status          enums.InvoiceStatus `gorm:"column:status;not null"`
	DueDate         time.Time           `gorm:"column:due_date;not null"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
