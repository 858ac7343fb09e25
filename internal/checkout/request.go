package checkout

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/internal/buyers"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/internal/promos"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// CartLine is one requested product and quantity.
type CartLine struct {
	ProductID uuid.UUID
	Quantity  int
}

// PlaceOrderRequest is everything needed to place an order. BuyerID is set
// for authenticated callers; guests supply Buyer instead.
type PlaceOrderRequest struct {
	BuyerID         *uuid.UUID
	Buyer           *buyers.Identity
	Items           []CartLine
	ShippingAddress types.ShippingAddress
	PaymentMethod   enums.PaymentMethod
	Payment         payments.Artifact
	DeliveryOption  types.DeliveryOption
	PromoCodeID     *uuid.UUID
	PromoCode       string
	Currency        enums.Currency
	// IdempotencyKey replays the buyer's earlier order placed under the same
	// key. The replay does not compare carts; HTTP callers get a body hash
	// check from the idempotency middleware before reaching here.
	IdempotencyKey string
}

func (r PlaceOrderRequest) promoRef() promos.Ref {
	return promos.Ref{ID: r.PromoCodeID, Code: r.PromoCode}
}

func (r PlaceOrderRequest) idempotencyKey() *string {
	key := strings.TrimSpace(r.IdempotencyKey)
	if key == "" {
		return nil
	}
	return &key
}

// Validate reports the first missing or malformed field as InvalidOrderRequest.
func (r PlaceOrderRequest) Validate() error {
	if len(r.Items) == 0 {
		return invalidField("items")
	}
	for i, item := range r.Items {
		if item.ProductID == uuid.Nil {
			return invalidField(fmt.Sprintf("items[%d].productId", i))
		}
		if item.Quantity <= 0 {
			return invalidField(fmt.Sprintf("items[%d].quantity", i))
		}
	}
	if field := r.ShippingAddress.MissingField(); field != "" {
		return invalidField(field)
	}
	if !r.PaymentMethod.IsValid() {
		return invalidField("paymentMethod")
	}
	switch {
	case strings.TrimSpace(r.DeliveryOption.Name) == "":
		return invalidField("deliveryOption.name")
	case r.DeliveryOption.CostCents < 0:
		return invalidField("deliveryOption.cost")
	case r.DeliveryOption.Days <= 0:
		return invalidField("deliveryOption.days")
	}
	if field := r.Payment.MissingField(r.PaymentMethod); field != "" {
		return invalidField(field)
	}
	return nil
}

func invalidField(field string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeInvalidOrderRequest, fmt.Sprintf("%s is required", field)).
		WithDetails(map[string]any{"field": field})
}

// PlaceOrderResult summarises a placed order. Amounts are in cents.
type PlaceOrderResult struct {
	OrderID                 uuid.UUID
	InvoiceIDs              []uuid.UUID
	TotalCents              int64
	TotalAfterDiscountCents int64
	DiscountCents           int64
	Currency                enums.Currency
	Status                  enums.OrderStatus
}

func resultOf(order models.Order) *PlaceOrderResult {
	return &PlaceOrderResult{
		OrderID:                 order.ID,
		InvoiceIDs:              order.InvoiceIDs(),
		TotalCents:              order.TotalCents,
		TotalAfterDiscountCents: order.TotalAfterDiscountCents,
		DiscountCents:           order.DiscountCents,
		Currency:                order.Currency,
		Status:                  order.Status,
	}
}
