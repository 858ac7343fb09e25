package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/internal/invoices"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// Viewer is the caller an order is rendered for.
type Viewer struct {
	Role     enums.ActorRole
	BuyerID  uuid.UUID
	VendorID string
}

// InvoiceLister reads a vendor's invoices.
type InvoiceLister interface {
	ListByVendor(ctx context.Context, vendorID string, params pagination.Params) ([]models.Invoice, error)
}

// QueryService serves the read side of orders and invoices.
type QueryService struct {
	orders   Store
	invoices InvoiceLister
}

func NewQueryService(orders Store, invoices InvoiceLister) *QueryService {
	return &QueryService{orders: orders, invoices: invoices}
}

// GetOrder returns the order as the viewer may see it. Admins see everything,
// buyers see their own orders, and vendors see only their own groups. Any
// other caller gets NOT_FOUND so existence is not leaked.
func (q *QueryService) GetOrder(ctx context.Context, orderID uuid.UUID, viewer Viewer) (*models.Order, error) {
	order, err := q.orders.FindByID(ctx, orderID)
	if errors.Is(err, ErrNotFound) {
		return nil, orderNotFound()
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	switch viewer.Role {
	case enums.ActorRoleAdmin:
		return order, nil
	case enums.ActorRoleBuyer:
		if viewer.BuyerID != uuid.Nil && order.BuyerID == viewer.BuyerID {
			return order, nil
		}
	case enums.ActorRoleVendor:
		if filtered, ok := forVendor(*order, viewer.VendorID); ok {
			return &filtered, nil
		}
	}
	return nil, orderNotFound()
}

// forVendor keeps only vendorID's groups and recomputes the order totals over
// them. Order level discounts belong to the platform and are not shown.
func forVendor(order models.Order, vendorID string) (models.Order, bool) {
	if vendorID == "" {
		return models.Order{}, false
	}
	groups := make([]models.VendorGroup, 0, 1)
	var total int64
	for _, group := range order.VendorGroups {
		if group.VendorID == vendorID {
			groups = append(groups, group)
			total += group.TotalCents
		}
	}
	if len(groups) == 0 {
		return models.Order{}, false
	}
	order.VendorGroups = groups
	order.TotalCents = total
	order.DiscountCents = 0
	order.TotalAfterDiscountCents = total
	order.PromoCodeID = nil
	return order, true
}

func (q *QueryService) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error) {
	if err := checkCursor(params); err != nil {
		return pagination.Page[models.Order]{}, err
	}
	rows, err := q.orders.ListByBuyer(ctx, buyerID, params)
	if err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return pagination.Trim(rows, params.Limit, CursorOf), nil
}

// ListVendorOrders lists orders containing vendorID, each filtered to that
// vendor's groups.
func (q *QueryService) ListVendorOrders(ctx context.Context, vendorID string, params pagination.Params) (pagination.Page[models.Order], error) {
	if err := checkCursor(params); err != nil {
		return pagination.Page[models.Order]{}, err
	}
	rows, err := q.orders.ListByVendor(ctx, vendorID, params)
	if err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	page := pagination.Trim(rows, params.Limit, CursorOf)
	for i, order := range page.Items {
		if filtered, ok := forVendor(order, vendorID); ok {
			page.Items[i] = filtered
		}
	}
	return page, nil
}

func (q *QueryService) ListVendorInvoices(ctx context.Context, vendorID string, params pagination.Params) (pagination.Page[models.Invoice], error) {
	if err := checkCursor(params); err != nil {
		return pagination.Page[models.Invoice]{}, err
	}
	rows, err := q.invoices.ListByVendor(ctx, vendorID, params)
	if err != nil {
		return pagination.Page[models.Invoice]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list invoices")
	}
	return pagination.Trim(rows, params.Limit, invoices.CursorOf), nil
}

func checkCursor(params pagination.Params) error {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return nil
}

func orderNotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}
