package invoices

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// DefaultDueDays is the payment term applied to new invoices.
const DefaultDueDays = 30

// Factory materialises one invoice per vendor group.
type Factory struct {
	dueDays  int
	currency enums.Currency
	now      func() time.Time
}

// NewFactory returns a factory. Non-positive dueDays and an unknown currency
// fall back to 30 days and USD.
func NewFactory(dueDays int, currency enums.Currency, now func() time.Time) *Factory {
	if dueDays <= 0 {
		dueDays = DefaultDueDays
	}
	if !currency.IsValid() {
		currency = enums.CurrencyUSD
	}
	if now == nil {
		now = time.Now
	}
	return &Factory{dueDays: dueDays, currency: currency, now: now}
}

// Build returns an unsaved, unlinked invoice for group. OrderID is set later
// by Store.LinkOrder once the order exists. The group currency wins over
// currency, which wins over the factory default.
func (f *Factory) Build(group models.VendorGroup, buyerID uuid.UUID, currency enums.Currency) models.Invoice {
	now := f.now().UTC()
	id := uuid.New()

	if group.Currency.IsValid() {
		currency = group.Currency
	} else if !currency.IsValid() {
		currency = f.currency
	}

	items := make([]models.LineItem, len(group.LineItems))
	copy(items, group.LineItems)

	return models.Invoice{
		ID:              id,
		Number:          Number(now, id),
		VendorID:        group.VendorID,
		CustomerID:      buyerID,
		Items:           items,
		SubtotalCents:   group.SubtotalCents,
		TaxCents:        group.TaxCents,
		ShippingCents:   group.ShippingCents,
		DiscountCents:   group.DiscountCents,
		CommissionCents: group.CommissionCents,
		TotalCents:      group.TotalCents,
		NetAmountCents:  group.NetEarningsCents,
		Currency:        currency,
		Status:          enums.InvoiceStatusPending,
		DueDate:         now.AddDate(0, 0, f.dueDays),
		CreatedAt:       now,
	}
}

// Number renders the human-facing invoice number INV-YYYYMMDD-XXXXXXXX.
func Number(at time.Time, id uuid.UUID) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))[:8]
	return fmt.Sprintf("INV-%s-%s", at.UTC().Format("20060102"), suffix)
}
