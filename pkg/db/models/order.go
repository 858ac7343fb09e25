package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// Order is the buyer-facing aggregate; vendor groups are embedded snapshots.
type Order struct {
	ID                      uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID                 uuid.UUID             `gorm:"column:buyer_id;type:uuid;not null;uniqueIndex:ux_orders_buyer_idempotency,priority:1"`
	IdempotencyKey          *string               `gorm:"column:idempotency_key;uniqueIndex:ux_orders_buyer_idempotency,priority:2"`
	VendorGroups            []VendorGroup         `gorm:"column:vendor_groups;type:jsonb;serializer:json;not null"`
	TotalCents              int64                 `gorm:"column:total_cents;not null"`
	DiscountCents           int64                 `gorm:"column:discount_cents;not null;default:0"`
	TotalAfterDiscountCents int64                 `gorm:"column:total_after_discount_cents;not null"`
	PromoCodeID             *uuid.UUID            `gorm:"column:promo_code_id;type:uuid"`
	Currency                enums.Currency        `gorm:"column:currency;not null"`
	PaymentMethod           enums.PaymentMethod   `gorm:"column:payment_method;not null"`
	PaymentReference        *string               `gorm:"column:payment_reference"`
	ShippingAddress         types.ShippingAddress `gorm:"column:shipping_address;type:jsonb;not null"`
	DeliveryOption          types.DeliveryOption  `gorm:"column:delivery_option;type:jsonb;not null"`
	Status                  enums.OrderStatus     `gorm:"column:status;not null"`
	StatusHistory           []StatusChange        `gorm:"column:status_history;type:jsonb;serializer:json;not null"`
	CreatedAt               time.Time             `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt               time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// StatusChange is one entry of an order's status history.
type StatusChange struct {
	Status enums.OrderStatus `json:"status"`
	At     time.Time         `json:"at"`
	Note   string            `json:"note,omitempty"`
}

// InvoiceIDs returns the invoice ids referenced by the vendor groups in order.
func (o Order) InvoiceIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(o.VendorGroups))
	for _, group := range o.VendorGroups {
		ids = append(ids, group.InvoiceID)
	}
	return ids
}

// OrderVendor indexes orders by vendor for the vendor order listing.
type OrderVendor struct {
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;primaryKey"`
	VendorID  string    `gorm:"column:vendor_id;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index"`
}
