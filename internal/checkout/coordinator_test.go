package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/buyers"
	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/internal/invoices"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/internal/promos"
	"github.com/angelmondragon/bazaar-backend/internal/reconciliation"
	"github.com/angelmondragon/bazaar-backend/internal/unitofwork"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// faults injects store failures into a unit of work.
type faults struct {
	mu                 sync.Mutex
	createErr          error
	createsBeforeError int
	creates            int
	linkErr            error
	// soldOut makes the conditional decrement of this product miss, as if
	// another checkout took the last units after the products were loaded.
	soldOut  uuid.UUID
	orderErr error
}

type faultyProducts struct {
	catalog.Store
	faults *faults
}

func (s faultyProducts) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	if id == s.faults.soldOut {
		return false, nil
	}
	return s.Store.DecrementStock(ctx, id, qty)
}

type faultyOrders struct {
	orders.Store
	faults *faults
}

func (s faultyOrders) Create(ctx context.Context, order *models.Order) error {
	if s.faults.orderErr != nil {
		return s.faults.orderErr
	}
	return s.Store.Create(ctx, order)
}

type faultyInvoices struct {
	invoices.Store
	faults *faults
}

func (s faultyInvoices) Create(ctx context.Context, invoice *models.Invoice) error {
	s.faults.mu.Lock()
	fail := s.faults.createErr != nil && s.faults.creates >= s.faults.createsBeforeError
	s.faults.creates++
	s.faults.mu.Unlock()
	if fail {
		return s.faults.createErr
	}
	return s.Store.Create(ctx, invoice)
}

func (s faultyInvoices) LinkOrder(ctx context.Context, ids []uuid.UUID, orderID uuid.UUID) error {
	if s.faults.linkErr != nil {
		return s.faults.linkErr
	}
	return s.Store.LinkOrder(ctx, ids, orderID)
}

type faultyUnitOfWork struct {
	unitofwork.UnitOfWork
	faults *faults
}

func (u faultyUnitOfWork) wrap(repos unitofwork.Repositories) unitofwork.Repositories {
	repos.Invoices = faultyInvoices{Store: repos.Invoices, faults: u.faults}
	repos.Products = faultyProducts{Store: repos.Products, faults: u.faults}
	repos.Orders = faultyOrders{Store: repos.Orders, faults: u.faults}
	return repos
}

func (u faultyUnitOfWork) Repositories() unitofwork.Repositories {
	return u.wrap(u.UnitOfWork.Repositories())
}

func (u faultyUnitOfWork) Begin(ctx context.Context) (unitofwork.Work, error) {
	work, err := u.UnitOfWork.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return faultyWork{Work: work, uow: u}, nil
}

type faultyWork struct {
	unitofwork.Work
	uow faultyUnitOfWork
}

func (w faultyWork) Repositories() unitofwork.Repositories {
	return w.uow.wrap(w.Work.Repositories())
}

type fixture struct {
	conn     *gorm.DB
	coord    *Coordinator
	products *catalog.GormStore
	promos   *promos.GormStore
	orders   *orders.GormStore
	invoices *invoices.GormStore
	tasks    *reconciliation.GormStore
	payments *payments.Registry
	faults   *faults
}

var testPassword = config.PasswordConfig{ArgonMemoryKB: 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}

func newFixture(t *testing.T, native bool) *fixture {
	t.Helper()
	conn := dbtest.Open(t).DB()
	f := &fixture{
		conn:     conn,
		products: catalog.NewGormStore(conn),
		promos:   promos.NewGormStore(conn),
		orders:   orders.NewGormStore(conn),
		invoices: invoices.NewGormStore(conn),
		tasks:    reconciliation.NewGormStore(conn),
		payments: payments.NewRegistry(nil),
		faults:   &faults{},
	}
	uow := faultyUnitOfWork{UnitOfWork: unitofwork.NewGorm(conn, native, logger.Nop()), faults: f.faults}
	coord, err := NewCoordinator(Deps{
		UnitOfWork: uow,
		Buyers:     buyers.NewDirectory(buyers.NewGormStore(conn), testPassword),
		Payments:   f.payments,
		Tasks:      f.tasks,
		Events:     outbox.NewService(logger.Nop()),
	}, Options{
		TaxRate:        decimal.RequireFromString("0.15"),
		CommissionRate: decimal.RequireFromString("0.10"),
		Currency:       enums.CurrencyUSD,
		LinkAttempts:   2,
		LinkBackoff:    time.Millisecond,
	})
	require.NoError(t, err)
	f.coord = coord
	return f
}

func forEachMode(t *testing.T, fn func(t *testing.T, native bool)) {
	for _, mode := range []struct {
		name   string
		native bool
	}{{"native", true}, {"compensate", false}} {
		t.Run(mode.name, func(t *testing.T) { fn(t, mode.native) })
	}
}

func (f *fixture) seedProduct(t *testing.T, vendorID string, priceCents int64, stock int) models.Product {
	t.Helper()
	p := models.Product{ID: uuid.New(), VendorID: vendorID, Name: "product-" + vendorID, PriceCents: priceCents, Stock: stock}
	require.NoError(t, f.products.Create(context.Background(), &p))
	return p
}

func (f *fixture) seedPromo(t *testing.T, promo models.PromoCode) models.PromoCode {
	t.Helper()
	promo.ID = uuid.New()
	promo.IsActive = true
	require.NoError(t, f.promos.Create(context.Background(), &promo))
	return promo
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	stock, err := f.products.Stock(context.Background(), id)
	require.NoError(t, err)
	return stock
}

func (f *fixture) promoUses(t *testing.T, id uuid.UUID) int {
	t.Helper()
	promo, err := f.promos.FindByID(context.Background(), id)
	require.NoError(t, err)
	return promo.UsedCount
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(model).Count(&n).Error)
	return n
}

func request(buyerID uuid.UUID, items ...CartLine) PlaceOrderRequest {
	return PlaceOrderRequest{
		BuyerID:         &buyerID,
		Items:           items,
		ShippingAddress: types.ShippingAddress{FullName: "Ada Buyer", City: "Addis Ababa", Country: "ET"},
		PaymentMethod:   enums.PaymentMethodCOD,
		DeliveryOption:  types.DeliveryOption{Name: "standard", CostCents: 900, Days: 3},
	}
}

func TestPlaceOrderEndToEnd(t *testing.T) {
	forEachMode(t, func(t *testing.T, native bool) {
		ctx := context.Background()
		f := newFixture(t, native)
		a := f.seedProduct(t, "V1", 2000, 5)
		b := f.seedProduct(t, "V2", 3000, 5)

		result, err := f.coord.PlaceOrder(ctx, request(uuid.New(), CartLine{a.ID, 2}, CartLine{b.ID, 1}))
		require.NoError(t, err)
		assert.Equal(t, int64(8950), result.TotalCents)
		assert.Equal(t, int64(8950), result.TotalAfterDiscountCents)
		assert.Zero(t, result.DiscountCents)
		assert.Equal(t, enums.CurrencyUSD, result.Currency)
		assert.Equal(t, enums.OrderStatusPending, result.Status)
		require.Len(t, result.InvoiceIDs, 2)

		order, err := f.orders.FindByID(ctx, result.OrderID)
		require.NoError(t, err)
		require.Len(t, order.VendorGroups, 2)
		v1, v2 := order.VendorGroups[0], order.VendorGroups[1]
		assert.Equal(t, "V1", v1.VendorID)
		assert.Equal(t, int64(4000), v1.SubtotalCents)
		assert.Equal(t, int64(600), v1.TaxCents)
		assert.Equal(t, int64(600), v1.ShippingCents)
		assert.Equal(t, int64(5200), v1.TotalCents)
		assert.Equal(t, int64(400), v1.CommissionCents)
		assert.Equal(t, int64(4800), v1.NetEarningsCents)
		assert.Equal(t, "V2", v2.VendorID)
		assert.Equal(t, int64(3750), v2.TotalCents)
		require.Len(t, order.StatusHistory, 1)
		assert.Equal(t, enums.OrderStatusPending, order.StatusHistory[0].Status)

		linked, err := f.invoices.FindByIDs(ctx, result.InvoiceIDs)
		require.NoError(t, err)
		require.Len(t, linked, 2)
		byID := map[uuid.UUID]models.Invoice{}
		for _, inv := range linked {
			require.NotNil(t, inv.OrderID)
			assert.Equal(t, order.ID, *inv.OrderID)
			byID[inv.ID] = inv
		}
		for _, group := range order.VendorGroups {
			inv := byID[group.InvoiceID]
			assert.Equal(t, group.VendorID, inv.VendorID)
			assert.Equal(t, group.TotalCents, inv.TotalCents)
			assert.Equal(t, group.CommissionCents, inv.CommissionCents)
			assert.Equal(t, group.NetEarningsCents, inv.NetAmountCents)
		}

		assert.Equal(t, 3, f.stock(t, a.ID))
		assert.Equal(t, 4, f.stock(t, b.ID))

		events, err := outbox.NewRepository(f.conn).FindByAggregate(ctx, order.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, enums.EventOrderCreated, events[0].EventType)
	})
}

func TestPromoMinimumBoundary(t *testing.T) {
	forEachMode(t, func(t *testing.T, native bool) {
		ctx := context.Background()
		f := newFixture(t, native)
		promo := f.seedPromo(t, models.PromoCode{
			Code:          "WELCOME10",
			Type:          enums.PromoTypeFixed,
			Value:         decimal.NewFromInt(10),
			MinOrderCents: 10000,
		})
		exact := f.seedProduct(t, "V1", 10000, 5)
		short := f.seedProduct(t, "V1", 9999, 5)

		req := request(uuid.New(), CartLine{exact.ID, 1})
		req.PromoCode = "welcome10"
		result, err := f.coord.PlaceOrder(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), result.DiscountCents)
		assert.Equal(t, result.TotalCents-1000, result.TotalAfterDiscountCents)
		assert.Equal(t, 1, f.promoUses(t, promo.ID))

		req = request(uuid.New(), CartLine{short.ID, 1})
		req.PromoCodeID = &promo.ID
		_, err = f.coord.PlaceOrder(ctx, req)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePromoMinimumNotMet), err.Error())
		assert.Equal(t, 5, f.stock(t, short.ID))
		assert.Equal(t, 1, f.promoUses(t, promo.ID))
	})
}

func TestVendorScopedPromoDiscountsOneGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	vendor := "V2"
	f.seedPromo(t, models.PromoCode{Code: "V2TEN", Type: enums.PromoTypePercentage, Value: decimal.NewFromInt(10), VendorID: &vendor})
	a := f.seedProduct(t, "V1", 2000, 5)
	b := f.seedProduct(t, "V2", 3000, 5)

	req := request(uuid.New(), CartLine{a.ID, 2}, CartLine{b.ID, 1})
	req.PromoCode = "V2TEN"
	result, err := f.coord.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.Zero(t, result.DiscountCents)
	assert.Equal(t, int64(8650), result.TotalCents)

	order, err := f.orders.FindByID(ctx, result.OrderID)
	require.NoError(t, err)
	assert.Zero(t, order.VendorGroups[0].DiscountCents)
	assert.Equal(t, int64(300), order.VendorGroups[1].DiscountCents)
	assert.Equal(t, int64(3450), order.VendorGroups[1].TotalCents)
	assert.Equal(t, int64(300), order.VendorGroups[1].CommissionCents)
}

func TestVendorPromoOutsideCartIsInvalid(t *testing.T) {
	f := newFixture(t, false)
	vendor := "V9"
	promo := f.seedPromo(t, models.PromoCode{Code: "V9ONLY", Type: enums.PromoTypeFixed, Value: decimal.NewFromInt(5), VendorID: &vendor})
	p := f.seedProduct(t, "V1", 1000, 2)

	req := request(uuid.New(), CartLine{p.ID, 1})
	req.PromoCode = "V9ONLY"
	_, err := f.coord.PlaceOrder(context.Background(), req)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePromoInvalid))
	assert.Equal(t, 2, f.stock(t, p.ID))
	assert.Zero(t, f.promoUses(t, promo.ID))
}

func TestStockRaceHasOneWinner(t *testing.T) {
	forEachMode(t, func(t *testing.T, native bool) {
		ctx := context.Background()
		f := newFixture(t, native)
		p := f.seedProduct(t, "V1", 1500, 1)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.coord.PlaceOrder(ctx, request(uuid.New(), CartLine{p.ID, 1}))
			}(i)
		}
		wg.Wait()

		var won, lost int
		for _, err := range errs {
			switch {
			case err == nil:
				won++
			case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
				lost++
				assert.Equal(t, map[string]any{"product_id": p.ID.String(), "available": 0}, pkgerrors.As(err).Details())
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, won)
		assert.Equal(t, 1, lost)
		assert.Equal(t, 0, f.stock(t, p.ID))
		assert.Equal(t, int64(1), f.count(t, &models.Order{}))
	})
}

func TestFailedInvoiceRollsEverythingBack(t *testing.T) {
	forEachMode(t, func(t *testing.T, native bool) {
		ctx := context.Background()
		f := newFixture(t, native)
		promo := f.seedPromo(t, models.PromoCode{Code: "SAVE5", Type: enums.PromoTypeFixed, Value: decimal.NewFromInt(5), UsageLimit: 10})
		a := f.seedProduct(t, "V1", 2000, 5)
		b := f.seedProduct(t, "V2", 3000, 5)
		f.faults.createErr = errors.New("disk full")
		f.faults.createsBeforeError = 1

		req := request(uuid.New(), CartLine{a.ID, 2}, CartLine{b.ID, 1})
		req.PromoCode = "SAVE5"
		_, err := f.coord.PlaceOrder(ctx, req)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderPersistenceFailed))
		assert.ErrorContains(t, err, "order could not be placed")

		assert.Equal(t, 5, f.stock(t, a.ID))
		assert.Equal(t, 5, f.stock(t, b.ID))
		assert.Zero(t, f.promoUses(t, promo.ID))
		assert.Zero(t, f.count(t, &models.Invoice{}))
		assert.Zero(t, f.count(t, &models.Order{}))
		assert.Zero(t, f.count(t, &models.OutboxEvent{}))
	})
}

func TestLaterLineStockFailureReleasesEarlierLines(t *testing.T) {
	forEachMode(t, func(t *testing.T, native bool) {
		ctx := context.Background()
		f := newFixture(t, native)
		promo := f.seedPromo(t, models.PromoCode{Code: "SAVE5", Type: enums.PromoTypeFixed, Value: decimal.NewFromInt(5), UsageLimit: 10})
		first := f.seedProduct(t, "V1", 2000, 5)
		second := f.seedProduct(t, "V1", 1000, 5)
		third := f.seedProduct(t, "V2", 3000, 4)
		f.faults.soldOut = third.ID

		req := request(uuid.New(), CartLine{first.ID, 2}, CartLine{second.ID, 1}, CartLine{third.ID, 2})
		req.PromoCode = "SAVE5"
		_, err := f.coord.PlaceOrder(ctx, req)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), err.Error())

		assert.Equal(t, 5, f.stock(t, first.ID))
		assert.Equal(t, 5, f.stock(t, second.ID))
		assert.Equal(t, 4, f.stock(t, third.ID))
		assert.Zero(t, f.promoUses(t, promo.ID))
		assert.Zero(t, f.count(t, &models.Invoice{}))
		assert.Zero(t, f.count(t, &models.Order{}))
	})
}

func TestOrderWriteFailureRollsBackInvoicesStockAndPromo(t *testing.T) {
	forEachMode(t, func(t *testing.T, native bool) {
		ctx := context.Background()
		f := newFixture(t, native)
		promo := f.seedPromo(t, models.PromoCode{Code: "SAVE5", Type: enums.PromoTypeFixed, Value: decimal.NewFromInt(5), UsageLimit: 10})
		a := f.seedProduct(t, "V1", 2000, 5)
		b := f.seedProduct(t, "V2", 3000, 5)
		f.faults.orderErr = errors.New("order_vendors: no such table")

		req := request(uuid.New(), CartLine{a.ID, 2}, CartLine{b.ID, 1})
		req.PromoCode = "SAVE5"
		_, err := f.coord.PlaceOrder(ctx, req)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderPersistenceFailed), err.Error())

		assert.Equal(t, 5, f.stock(t, a.ID))
		assert.Equal(t, 5, f.stock(t, b.ID))
		assert.Zero(t, f.promoUses(t, promo.ID))
		assert.Zero(t, f.count(t, &models.Invoice{}))
		assert.Zero(t, f.count(t, &models.Order{}))
		assert.Zero(t, f.count(t, &models.OutboxEvent{}))
	})
}

func TestLinkFailureRecordsReconciliationTask(t *testing.T) {
	forEachMode(t, func(t *testing.T, native bool) {
		ctx := context.Background()
		f := newFixture(t, native)
		p := f.seedProduct(t, "V1", 1000, 3)
		f.faults.linkErr = errors.New("invoice store unavailable")

		result, err := f.coord.PlaceOrder(ctx, request(uuid.New(), CartLine{p.ID, 1}))
		require.NoError(t, err)

		tasks, err := f.tasks.FindByOrder(ctx, result.OrderID)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, enums.ReconciliationInvoiceLink, tasks[0].Kind)
		assert.Equal(t, enums.ReconciliationPending, tasks[0].Status)
		assert.Equal(t, result.InvoiceIDs, tasks[0].InvoiceIDs)
		require.NotNil(t, tasks[0].LastError)
		assert.Contains(t, *tasks[0].LastError, "invoice store unavailable")

		stored, err := f.invoices.FindByIDs(ctx, result.InvoiceIDs)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Nil(t, stored[0].OrderID)
	})
}

func TestIdempotencyKeyReplaysOrder(t *testing.T) {
	forEachMode(t, func(t *testing.T, native bool) {
		ctx := context.Background()
		f := newFixture(t, native)
		p := f.seedProduct(t, "V1", 1000, 5)
		buyerID := uuid.New()

		req := request(buyerID, CartLine{p.ID, 2})
		req.IdempotencyKey = "retry-123"
		first, err := f.coord.PlaceOrder(ctx, req)
		require.NoError(t, err)
		second, err := f.coord.PlaceOrder(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 3, f.stock(t, p.ID))
		assert.Equal(t, int64(1), f.count(t, &models.Order{}))

		changed := request(buyerID, CartLine{p.ID, 1})
		changed.IdempotencyKey = "retry-123"
		replayed, err := f.coord.PlaceOrder(ctx, changed)
		require.NoError(t, err)
		assert.Equal(t, first, replayed, "same key returns the stored order even when the cart differs")
		assert.Equal(t, 3, f.stock(t, p.ID))

		other := request(uuid.New(), CartLine{p.ID, 1})
		other.IdempotencyKey = "retry-123"
		third, err := f.coord.PlaceOrder(ctx, other)
		require.NoError(t, err)
		assert.NotEqual(t, first.OrderID, third.OrderID, "keys are scoped per buyer")
	})
}

func TestGuestCheckoutResolvesBuyerByEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	p := f.seedProduct(t, "V1", 1000, 5)

	req := request(uuid.Nil, CartLine{p.ID, 1})
	req.BuyerID = nil
	req.Buyer = &buyers.Identity{Name: "Guest", Email: "Guest@Example.com", Country: "ET"}
	first, err := f.coord.PlaceOrder(ctx, req)
	require.NoError(t, err)

	req.Buyer = &buyers.Identity{Name: "Guest", Email: "guest@example.com ", Country: "ET"}
	second, err := f.coord.PlaceOrder(ctx, req)
	require.NoError(t, err)

	a, err := f.orders.FindByID(ctx, first.OrderID)
	require.NoError(t, err)
	b, err := f.orders.FindByID(ctx, second.OrderID)
	require.NoError(t, err)
	assert.Equal(t, a.BuyerID, b.BuyerID)
	assert.Equal(t, int64(1), f.count(t, &models.Buyer{}))
}

func TestPlaceOrderRejections(t *testing.T) {
	f := newFixture(t, false)
	p := f.seedProduct(t, "V1", 1000, 5)
	f.payments.Register(enums.PaymentMethodSquare, payments.MethodVerifierFunc(func(context.Context, payments.Artifact) (bool, error) {
		return false, nil
	}))
	f.payments.Register(enums.PaymentMethodPayPal, payments.MethodVerifierFunc(func(context.Context, payments.Artifact) (bool, error) {
		return false, errors.New("timeout")
	}))

	cases := []struct {
		name  string
		edit  func(*PlaceOrderRequest)
		code  pkgerrors.Code
		field string
	}{
		{"empty cart", func(r *PlaceOrderRequest) { r.Items = nil }, pkgerrors.CodeInvalidOrderRequest, "items"},
		{"zero quantity", func(r *PlaceOrderRequest) { r.Items[0].Quantity = 0 }, pkgerrors.CodeInvalidOrderRequest, "items[0].quantity"},
		{"missing city", func(r *PlaceOrderRequest) { r.ShippingAddress.City = "" }, pkgerrors.CodeInvalidOrderRequest, "shippingAddress.city"},
		{"unknown method", func(r *PlaceOrderRequest) { r.PaymentMethod = "barter" }, pkgerrors.CodeInvalidOrderRequest, "paymentMethod"},
		{"missing delivery", func(r *PlaceOrderRequest) { r.DeliveryOption.Name = "" }, pkgerrors.CodeInvalidOrderRequest, "deliveryOption.name"},
		{"stripe without artifact", func(r *PlaceOrderRequest) { r.PaymentMethod = enums.PaymentMethodStripe }, pkgerrors.CodeInvalidOrderRequest, "paymentIntentId"},
		{"chapa without txRef", func(r *PlaceOrderRequest) {
			r.PaymentMethod = enums.PaymentMethodChapa
			r.Payment.PaymentToken = "tok"
		}, pkgerrors.CodeInvalidOrderRequest, "txRef"},
		{"no buyer", func(r *PlaceOrderRequest) { r.BuyerID = nil }, pkgerrors.CodeIncompleteBuyerInfo, "buyer"},
		{"guest without email", func(r *PlaceOrderRequest) {
			r.BuyerID = nil
			r.Buyer = &buyers.Identity{Name: "Guest", Country: "ET"}
		}, pkgerrors.CodeIncompleteBuyerInfo, "email"},
		{"unverified payment", func(r *PlaceOrderRequest) {
			r.PaymentMethod = enums.PaymentMethodSquare
			r.Payment.PaymentID = "sq_1"
		}, pkgerrors.CodeUnverifiedPayment, ""},
		{"provider down", func(r *PlaceOrderRequest) {
			r.PaymentMethod = enums.PaymentMethodPayPal
			r.Payment.PayPalOrderID = "pp_1"
		}, pkgerrors.CodeDependency, ""},
		{"unknown product", func(r *PlaceOrderRequest) { r.Items[0].ProductID = uuid.New() }, pkgerrors.CodeProductNotFound, ""},
		{"over stock", func(r *PlaceOrderRequest) { r.Items[0].Quantity = 6 }, pkgerrors.CodeInsufficientStock, ""},
		{"unknown promo", func(r *PlaceOrderRequest) { r.PromoCode = "NOPE" }, pkgerrors.CodePromoInvalid, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := request(uuid.New(), CartLine{p.ID, 1})
			tc.edit(&req)
			_, err := f.coord.PlaceOrder(context.Background(), req)
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed, err.Error())
			assert.Equal(t, tc.code, typed.Code())
			if tc.field != "" {
				assert.Equal(t, map[string]any{"field": tc.field}, typed.Details())
			}
		})
	}
	assert.Equal(t, 5, f.stock(t, p.ID))
	assert.Zero(t, f.count(t, &models.Order{}))
}

func TestCancelledCallerStillCompletes(t *testing.T) {
	f := newFixture(t, true)
	p := f.seedProduct(t, "V1", 1000, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := f.coord.PlaceOrder(ctx, request(uuid.New(), CartLine{p.ID, 1}))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, result.OrderID)
}

func TestNewCoordinatorRequiresDependencies(t *testing.T) {
	_, err := NewCoordinator(Deps{}, Options{})
	assert.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.CheckoutConfig{
		TaxRate:               "0.2",
		DefaultCommissionRate: "0.05",
		DefaultCurrency:       "eur",
		InvoiceDueDays:        14,
		LinkRetryAttempts:     4,
		LinkRetryBaseMS:       20,
	})
	assert.True(t, opts.TaxRate.Equal(decimal.RequireFromString("0.2")))
	assert.True(t, opts.CommissionRate.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, enums.CurrencyEUR, opts.Currency)
	assert.Equal(t, 14, opts.InvoiceDueDays)
	assert.Equal(t, 4, opts.LinkAttempts)
	assert.Equal(t, 20*time.Millisecond, opts.LinkBackoff)
}
