package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/checkout"
	internalorders "github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// Placer places orders.
type Placer interface {
	PlaceOrder(ctx context.Context, req checkout.PlaceOrderRequest) (*checkout.PlaceOrderResult, error)
}

// Reader serves the order and invoice read side.
type Reader interface {
	GetOrder(ctx context.Context, orderID uuid.UUID, viewer internalorders.Viewer) (*models.Order, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error)
	ListVendorOrders(ctx context.Context, vendorID string, params pagination.Params) (pagination.Page[models.Order], error)
	ListVendorInvoices(ctx context.Context, vendorID string, params pagination.Params) (pagination.Page[models.Invoice], error)
}

// Place handles POST /api/v1/orders. Authenticated buyers order as
// themselves; guests must supply buyer details in the body.
func Place(svc Placer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		id := middleware.IdentityFromContext(r.Context())
		if id.Authenticated() && id.Role != enums.ActorRoleBuyer {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "only buyers can place orders"))
			return
		}

		var payload placeOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		req, err := payload.toCheckout()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.IdempotencyKey == "" {
			req.IdempotencyKey = strings.TrimSpace(r.Header.Get(middleware.IdempotencyKeyHeader))
		}
		if id.Authenticated() {
			buyerID := id.UserID
			req.BuyerID = &buyerID
		}

		result, err := svc.PlaceOrder(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPlaceOrderResponse(result))
	}
}

// Detail handles GET /api/v1/orders/{orderId}.
func Detail(svc Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id := middleware.IdentityFromContext(r.Context())
		order, err := svc.GetOrder(r.Context(), orderID, internalorders.Viewer{
			Role:     id.Role,
			BuyerID:  id.UserID,
			VendorID: id.VendorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(*order))
	}
}

// ListBuyer handles GET /api/v1/buyer/orders for the calling buyer.
func ListBuyer(svc Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListBuyerOrders(r.Context(), middleware.IdentityFromContext(r.Context()).UserID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ordersPage(page))
	}
}

// ListVendor handles GET /api/v1/vendor/orders. Each order carries only the
// caller's vendor group.
func ListVendor(svc Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		vendorID, err := vendorScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListVendorOrders(r.Context(), vendorID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ordersPage(page))
	}
}

// ListVendorInvoices handles GET /api/v1/vendor/invoices.
func ListVendorInvoices(svc Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		vendorID, err := vendorScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListVendorInvoices(r.Context(), vendorID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := pageResponse[invoiceResponse]{Items: make([]invoiceResponse, 0, len(page.Items)), NextCursor: page.NextCursor}
		for _, inv := range page.Items {
			out.Items = append(out.Items, newInvoiceResponse(inv))
		}
		responses.WriteSuccess(w, out)
	}
}

// vendorScope resolves which vendor a listing is for. Vendors are pinned to
// their own id; admins must name one with ?vendorId=.
func vendorScope(r *http.Request) (string, error) {
	id := middleware.IdentityFromContext(r.Context())
	switch id.Role {
	case enums.ActorRoleVendor:
		if id.VendorID == "" {
			return "", pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing")
		}
		return id.VendorID, nil
	case enums.ActorRoleAdmin:
		vendorID := validators.QueryString(r, "vendorId")
		if vendorID == "" {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "vendorId is required").WithDetails(map[string]any{"field": "vendorId"})
		}
		return vendorID, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeForbidden, "vendor role required")
	}
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: validators.QueryString(r, "cursor"),
	}, nil
}

func ordersPage(page pagination.Page[models.Order]) pageResponse[orderResponse] {
	out := pageResponse[orderResponse]{Items: make([]orderResponse, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, order := range page.Items {
		out.Items = append(out.Items, newOrderResponse(order))
	}
	return out
}
