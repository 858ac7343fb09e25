package payloads

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// OrderCreatedEvent announces a committed multi-vendor order.
type OrderCreatedEvent struct {
	OrderID                 uuid.UUID           `json:"order_id"`
	BuyerID                 uuid.UUID           `json:"buyer_id"`
	InvoiceIDs              []uuid.UUID         `json:"invoice_ids"`
	VendorIDs               []string            `json:"vendor_ids"`
	TotalCents              int64               `json:"total_cents"`
	TotalAfterDiscountCents int64               `json:"total_after_discount_cents"`
	Currency                enums.Currency      `json:"currency"`
	PaymentMethod           enums.PaymentMethod `json:"payment_method"`
}

// InvoicesLinkedEvent reports that a reconciliation run linked an order's invoices.
type InvoicesLinkedEvent struct {
	OrderID    uuid.UUID   `json:"order_id"`
	InvoiceIDs []uuid.UUID `json:"invoice_ids"`
}
