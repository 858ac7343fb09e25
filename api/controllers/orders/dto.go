package orders

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/internal/buyers"
	"github.com/angelmondragon/bazaar-backend/internal/checkout"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/money"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

type placeOrderItem struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

type deliveryOptionRequest struct {
	Name string      `json:"name"`
	Cost json.Number `json:"cost"`
	Days int         `json:"days"`
}

// placeOrderRequest is the wire shape of POST /api/v1/orders. Field-level
// checks live in checkout.PlaceOrderRequest.Validate so that missing fields
// surface as INVALID_ORDER_REQUEST.
type placeOrderRequest struct {
	Items           []placeOrderItem      `json:"items"`
	Buyer           *buyers.Identity      `json:"buyer,omitempty" validate:"-"`
	ShippingAddress types.ShippingAddress `json:"shippingAddress" validate:"-"`
	PaymentMethod   string                `json:"paymentMethod"`
	Payment         payments.Artifact     `json:"payment"`
	DeliveryOption  deliveryOptionRequest `json:"deliveryOption"`
	PromoCodeID     *uuid.UUID            `json:"promoCodeId,omitempty"`
	PromoCode       string                `json:"promoCode,omitempty"`
	Currency        string                `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	IdempotencyKey  string                `json:"idempotencyKey,omitempty" validate:"omitempty,max=255"`
}

func (p placeOrderRequest) toCheckout() (checkout.PlaceOrderRequest, error) {
	req := checkout.PlaceOrderRequest{
		Buyer:           p.Buyer,
		ShippingAddress: p.ShippingAddress,
		PaymentMethod:   enums.PaymentMethod(strings.ToLower(strings.TrimSpace(p.PaymentMethod))),
		Payment:         p.Payment,
		PromoCodeID:     p.PromoCodeID,
		PromoCode:       strings.TrimSpace(p.PromoCode),
		Currency:        enums.Currency(strings.ToUpper(strings.TrimSpace(p.Currency))),
		IdempotencyKey:  strings.TrimSpace(p.IdempotencyKey),
		DeliveryOption: types.DeliveryOption{
			Name: strings.TrimSpace(p.DeliveryOption.Name),
			Days: p.DeliveryOption.Days,
		},
	}
	for _, item := range p.Items {
		req.Items = append(req.Items, checkout.CartLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	if raw := p.DeliveryOption.Cost.String(); raw != "" {
		cost, err := money.Parse(raw)
		if err != nil {
			return checkout.PlaceOrderRequest{}, pkgerrors.Wrap(pkgerrors.CodeInvalidOrderRequest, err, "deliveryOption.cost is invalid").
				WithDetails(map[string]any{"field": "deliveryOption.cost"})
		}
		req.DeliveryOption.CostCents = money.ToCents(cost)
	}
	return req, nil
}

type placeOrderResponse struct {
	OrderID            uuid.UUID   `json:"orderId"`
	InvoiceIDs         []uuid.UUID `json:"invoiceIds"`
	Total              string      `json:"total"`
	TotalAfterDiscount string      `json:"totalAfterDiscount"`
	Discount           string      `json:"discount"`
	Currency           string      `json:"currency"`
	Status             string      `json:"status"`
}

func newPlaceOrderResponse(res *checkout.PlaceOrderResult) placeOrderResponse {
	return placeOrderResponse{
		OrderID:            res.OrderID,
		InvoiceIDs:         res.InvoiceIDs,
		Total:              money.Format(res.TotalCents),
		TotalAfterDiscount: money.Format(res.TotalAfterDiscountCents),
		Discount:           money.Format(res.DiscountCents),
		Currency:           string(res.Currency),
		Status:             string(res.Status),
	}
}

type lineItemResponse struct {
	ProductID   uuid.UUID `json:"productId"`
	ProductName string    `json:"productName"`
	Quantity    int       `json:"quantity"`
	UnitPrice   string    `json:"unitPrice"`
	Subtotal    string    `json:"subtotal"`
	Tax         string    `json:"tax"`
}

type vendorGroupResponse struct {
	VendorID       string             `json:"vendorId"`
	InvoiceID      uuid.UUID          `json:"invoiceId"`
	Items          []lineItemResponse `json:"items"`
	Subtotal       string             `json:"subtotal"`
	Tax            string             `json:"tax"`
	Shipping       string             `json:"shipping"`
	Discount       string             `json:"discount"`
	Total          string             `json:"total"`
	CommissionRate string             `json:"commissionRate"`
	Commission     string             `json:"commission"`
	NetEarnings    string             `json:"netEarnings"`
	Status         string             `json:"status"`
}

type statusChangeResponse struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

type orderResponse struct {
	ID                 uuid.UUID              `json:"id"`
	BuyerID            uuid.UUID              `json:"buyerId"`
	VendorGroups       []vendorGroupResponse  `json:"vendorGroups"`
	Total              string                 `json:"total"`
	Discount           string                 `json:"discount"`
	TotalAfterDiscount string                 `json:"totalAfterDiscount"`
	PromoCodeID        *uuid.UUID             `json:"promoCodeId,omitempty"`
	Currency           string                 `json:"currency"`
	PaymentMethod      string                 `json:"paymentMethod"`
	ShippingAddress    types.ShippingAddress  `json:"shippingAddress"`
	DeliveryOption     deliveryOptionResponse `json:"deliveryOption"`
	Status             string                 `json:"status"`
	StatusHistory      []statusChangeResponse `json:"statusHistory"`
	CreatedAt          time.Time              `json:"createdAt"`
}

type deliveryOptionResponse struct {
	Name string `json:"name"`
	Cost string `json:"cost"`
	Days int    `json:"days"`
}

func newOrderResponse(order models.Order) orderResponse {
	resp := orderResponse{
		ID:                 order.ID,
		BuyerID:            order.BuyerID,
		VendorGroups:       make([]vendorGroupResponse, 0, len(order.VendorGroups)),
		Total:              money.Format(order.TotalCents),
		Discount:           money.Format(order.DiscountCents),
		TotalAfterDiscount: money.Format(order.TotalAfterDiscountCents),
		PromoCodeID:        order.PromoCodeID,
		Currency:           string(order.Currency),
		PaymentMethod:      string(order.PaymentMethod),
		ShippingAddress:    order.ShippingAddress,
		DeliveryOption: deliveryOptionResponse{
			Name: order.DeliveryOption.Name,
			Cost: money.Format(order.DeliveryOption.CostCents),
			Days: order.DeliveryOption.Days,
		},
		Status:        string(order.Status),
		StatusHistory: make([]statusChangeResponse, 0, len(order.StatusHistory)),
		CreatedAt:     order.CreatedAt,
	}
	for _, group := range order.VendorGroups {
		resp.VendorGroups = append(resp.VendorGroups, newVendorGroupResponse(group))
	}
	for _, change := range order.StatusHistory {
		resp.StatusHistory = append(resp.StatusHistory, statusChangeResponse{Status: string(change.Status), At: change.At, Note: change.Note})
	}
	return resp
}

func newVendorGroupResponse(group models.VendorGroup) vendorGroupResponse {
	resp := vendorGroupResponse{
		VendorID:       group.VendorID,
		InvoiceID:      group.InvoiceID,
		Items:          newLineItemResponses(group.LineItems),
		Subtotal:       money.Format(group.SubtotalCents),
		Tax:            money.Format(group.TaxCents),
		Shipping:       money.Format(group.ShippingCents),
		Discount:       money.Format(group.DiscountCents),
		Total:          money.Format(group.TotalCents),
		CommissionRate: group.CommissionRate,
		Commission:     money.Format(group.CommissionCents),
		NetEarnings:    money.Format(group.NetEarningsCents),
		Status:         string(group.Status),
	}
	return resp
}

func newLineItemResponses(items []models.LineItem) []lineItemResponse {
	out := make([]lineItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, lineItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   money.Format(item.UnitPriceCents),
			Subtotal:    money.Format(item.SubtotalCents),
			Tax:         money.Format(item.TaxCents),
		})
	}
	return out
}

type invoiceResponse struct {
	ID         uuid.UUID          `json:"id"`
	Number     string             `json:"number"`
	VendorID   string             `json:"vendorId"`
	CustomerID uuid.UUID          `json:"customerId"`
	OrderID    *uuid.UUID         `json:"orderId,omitempty"`
	Items      []lineItemResponse `json:"items"`
	Subtotal   string             `json:"subtotal"`
	Tax        string             `json:"tax"`
	Shipping   string             `json:"shipping"`
	Discount   string             `json:"discount"`
	Commission string             `json:"commission"`
	Total      string             `json:"total"`
	NetAmount  string             `json:"netAmount"`
	Currency   string             `json:"currency"`
	Status     string             `json:"status"`
	DueDate    time.Time          `json:"dueDate"`
	CreatedAt  time.Time          `json:"createdAt"`
}

func newInvoiceResponse(inv models.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:         inv.ID,
		Number:     inv.Number,
		VendorID:   inv.VendorID,
		CustomerID: inv.CustomerID,
		OrderID:    inv.OrderID,
		Items:      newLineItemResponses(inv.Items),
		Subtotal:   money.Format(inv.SubtotalCents),
		Tax:        money.Format(inv.TaxCents),
		Shipping:   money.Format(inv.ShippingCents),
		Discount:   money.Format(inv.DiscountCents),
		Commission: money.Format(inv.CommissionCents),
		Total:      money.Format(inv.TotalCents),
		NetAmount:  money.Format(inv.NetAmountCents),
		Currency:   string(inv.Currency),
		Status:     string(inv.Status),
		DueDate:    inv.DueDate,
		CreatedAt:  inv.CreatedAt,
	}
}

type pageResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}
