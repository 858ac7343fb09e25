package models

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// LineItem is one cart line priced at checkout time.
type LineItem struct {
	ProductID      uuid.UUID `json:"product_id"`
	ProductName    string    `json:"product_name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	SubtotalCents  int64     `json:"subtotal_cents"`
	TaxCents       int64     `json:"tax_cents"`
}

// VendorGroup is the per-vendor slice of an order, embedded in the order document.
type VendorGroup struct {
	VendorID         string                  `json:"vendor_id"`
	InvoiceID        uuid.UUID               `json:"invoice_id"`
	LineItems        []LineItem              `json:"line_items"`
	Units            int                     `json:"units"`
	SubtotalCents    int64                   `json:"subtotal_cents"`
	TaxCents         int64                   `json:"tax_cents"`
	ShippingCents    int64                   `json:"shipping_cents"`
	DiscountCents    int64                   `json:"discount_cents"`
	TotalCents       int64                   `json:"total_cents"`
	CommissionRate   string                  `json:"commission_rate"`
	CommissionCents  int64                   `json:"commission_cents"`
	NetEarningsCents int64                   `json:"net_earnings_cents"`
	Currency         enums.Currency          `json:"currency"`
	Status           enums.VendorGroupStatus `json:"status"`
}
