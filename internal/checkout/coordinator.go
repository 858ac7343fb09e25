package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/internal/buyers"
	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/internal/invoices"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/internal/promos"
	"github.com/angelmondragon/bazaar-backend/internal/unitofwork"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/money"
	pkgmongo "github.com/angelmondragon/bazaar-backend/pkg/mongo"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

const (
	// maxTransientAttempts bounds reruns of the transactional phase after a
	// TransientTransactionError.
	maxTransientAttempts = 3

	defaultLinkAttempts = 3
	defaultLinkBackoff  = 50 * time.Millisecond
)

// BuyerDirectory resolves guest identities to buyer ids.
type BuyerDirectory interface {
	FindOrCreate(ctx context.Context, identity buyers.Identity) (uuid.UUID, error)
}

// TaskRecorder stores reconciliation tasks.
type TaskRecorder interface {
	Create(ctx context.Context, task *models.ReconciliationTask) error
}

// Options are the checkout settings. They are passed in explicitly so two
// coordinators in one process can differ.
type Options struct {
	TaxRate        decimal.Decimal
	CommissionRate decimal.Decimal
	Currency       enums.Currency
	InvoiceDueDays int
	LinkAttempts   int
	LinkBackoff    time.Duration
	Now            func() time.Time
}

// OptionsFromConfig maps the checkout config onto Options.
func OptionsFromConfig(cfg config.CheckoutConfig) Options {
	currency, err := enums.ParseCurrency(cfg.Currency())
	if err != nil {
		currency = enums.CurrencyUSD
	}
	return Options{
		TaxRate:        cfg.TaxRateDecimal(),
		CommissionRate: cfg.CommissionRateDecimal(),
		Currency:       currency,
		InvoiceDueDays: cfg.InvoiceDueDays,
		LinkAttempts:   cfg.LinkRetryAttempts,
		LinkBackoff:    time.Duration(cfg.LinkRetryBaseMS) * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	if o.TaxRate.IsNegative() {
		o.TaxRate = decimal.Zero
	}
	if !o.Currency.IsValid() {
		o.Currency = enums.CurrencyUSD
	}
	if o.LinkAttempts <= 0 {
		o.LinkAttempts = defaultLinkAttempts
	}
	if o.LinkBackoff <= 0 {
		o.LinkBackoff = defaultLinkBackoff
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Deps are the collaborators of a Coordinator. Metrics and Logger are optional.
type Deps struct {
	UnitOfWork unitofwork.UnitOfWork
	Buyers     BuyerDirectory
	Payments   payments.Verifier
	Tasks      TaskRecorder
	Events     *outbox.Service
	Metrics    *metrics.CheckoutMetrics
	Logger     *logger.Logger
}

// Coordinator places multi-vendor orders.
type Coordinator struct {
	uow        unitofwork.UnitOfWork
	buyers     BuyerDirectory
	payments   payments.Verifier
	tasks      TaskRecorder
	events     *outbox.Service
	metrics    *metrics.CheckoutMetrics
	logg       *logger.Logger
	commission *CommissionCalculator
	invoices   *invoices.Factory
	opts       Options
}

// NewCoordinator validates deps and builds a coordinator.
func NewCoordinator(deps Deps, opts Options) (*Coordinator, error) {
	if deps.UnitOfWork == nil {
		return nil, fmt.Errorf("unit of work required")
	}
	if deps.Buyers == nil {
		return nil, fmt.Errorf("buyer directory required")
	}
	if deps.Payments == nil {
		return nil, fmt.Errorf("payment verifier required")
	}
	if deps.Tasks == nil {
		return nil, fmt.Errorf("reconciliation task recorder required")
	}
	if deps.Events == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	opts = opts.withDefaults()
	return &Coordinator{
		uow:        deps.UnitOfWork,
		buyers:     deps.Buyers,
		payments:   deps.Payments,
		tasks:      deps.Tasks,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logg:       logg,
		commission: NewCommissionCalculator(opts.CommissionRate, logg),
		invoices:   invoices.NewFactory(opts.InvoiceDueDays, opts.Currency, opts.Now),
		opts:       opts,
	}, nil
}

// PlaceOrder validates the request, reserves stock, applies the promo,
// prices every vendor group and persists invoices and the order in one unit
// of work. Invoices are linked to the order after commit; a link that keeps
// failing leaves a reconciliation task and does not fail the request.
// Caller cancellation is ignored once the call starts.
func (c *Coordinator) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	ctx = context.WithoutCancel(ctx)
	started := time.Now()
	result, err := c.placeOrder(ctx, req)
	c.metrics.Observe(outcomeOf(err), time.Since(started))
	return result, err
}

func (c *Coordinator) placeOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	m := newMachine(c.logg)

	buyerID, err := c.resolveBuyer(ctx, req)
	if err != nil {
		m.fail(ctx, err)
		return nil, err
	}
	ctx = c.logg.WithField(ctx, "buyer_id", buyerID.String())
	if err := m.advance(ctx, StateBuyerResolved); err != nil {
		return nil, err
	}

	if err := req.Validate(); err != nil {
		m.fail(ctx, err)
		return nil, err
	}
	if err := m.advance(ctx, StateValidated); err != nil {
		return nil, err
	}

	if key := req.idempotencyKey(); key != nil {
		existing, err := c.uow.Repositories().Orders.FindByIdempotencyKey(ctx, buyerID, *key)
		switch {
		case err == nil:
			c.logg.Info(c.logg.WithOrderID(ctx, existing.ID.String()), "order replayed for idempotency key")
			return resultOf(*existing), nil
		case !errors.Is(err, orders.ErrNotFound):
			err = persistenceFailed(fmt.Errorf("find order by idempotency key: %w", err))
			m.fail(ctx, err)
			return nil, err
		}
	}

	lines, err := c.verifyAndLoad(ctx, req)
	if err != nil {
		m.fail(ctx, err)
		return nil, err
	}

	var order *models.Order
	for attempt := 1; ; attempt++ {
		order, err = c.transact(ctx, m, buyerID, req, lines)
		if err == nil {
			break
		}
		if attempt >= maxTransientAttempts || !pkgmongo.IsTransientTransaction(err) {
			return nil, err
		}
		c.logg.Warn(c.logg.WithField(ctx, "attempt", attempt), "transient transaction error, retrying")
		m.rewind(ctx)
	}

	ctx = c.logg.WithOrderID(ctx, order.ID.String())
	if err := c.linkInvoices(ctx, order); err != nil {
		c.recordReconciliation(ctx, order, err)
	} else {
		_ = m.advance(ctx, StateInvoicesLinked)
	}
	_ = m.advance(ctx, StateCommitted)
	return resultOf(*order), nil
}

func (c *Coordinator) resolveBuyer(ctx context.Context, req PlaceOrderRequest) (uuid.UUID, error) {
	if req.BuyerID != nil && *req.BuyerID != uuid.Nil {
		return *req.BuyerID, nil
	}
	if req.Buyer == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeIncompleteBuyerInfo, "buyer name, email and country are required").
			WithDetails(map[string]any{"field": "buyer"})
	}
	id, err := c.buyers.FindOrCreate(ctx, *req.Buyer)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return uuid.Nil, err
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve buyer")
	}
	return id, nil
}

func (c *Coordinator) verifyAndLoad(ctx context.Context, req PlaceOrderRequest) ([]PricedLine, error) {
	verified, err := c.payments.Verify(ctx, req.PaymentMethod, req.Payment)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment provider unavailable")
	}
	if !verified {
		return nil, pkgerrors.New(pkgerrors.CodeUnverifiedPayment, "payment could not be verified").
			WithDetails(map[string]any{"payment_method": req.PaymentMethod.String()})
	}

	ids := make([]uuid.UUID, 0, len(req.Items))
	seen := make(map[uuid.UUID]struct{}, len(req.Items))
	for _, item := range req.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	products, err := c.uow.Repositories().Products.FindMany(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}

	lines := make([]PricedLine, 0, len(req.Items))
	for _, item := range req.Items {
		product, ok := byID[item.ProductID]
		if !ok {
			return nil, catalog.ProductNotFound(item.ProductID)
		}
		lines = append(lines, PricedLine{ProductID: item.ProductID, Quantity: item.Quantity, Product: &product})
	}
	return lines, nil
}

// transact runs one attempt of the transactional phase and aborts the work
// on any failure.
func (c *Coordinator) transact(ctx context.Context, m *machine, buyerID uuid.UUID, req PlaceOrderRequest, lines []PricedLine) (*models.Order, error) {
	work, err := c.uow.Begin(ctx)
	if err != nil {
		err = persistenceFailed(fmt.Errorf("begin unit of work: %w", err))
		m.fail(ctx, err)
		return nil, err
	}

	order, err := c.stage(ctx, m, work, buyerID, req, lines)
	if err == nil {
		if commitErr := work.Commit(); commitErr != nil {
			err = persistenceFailed(commitErr)
		}
	}
	if err != nil {
		return nil, c.rollback(ctx, m, work, err)
	}
	return order, nil
}

func (c *Coordinator) rollback(ctx context.Context, m *machine, work unitofwork.Work, cause error) error {
	mode := config.TransactionModeCompensate
	if work.Transactional() {
		mode = config.TransactionModeNative
	}
	m.fail(ctx, cause)
	if err := work.Abort(); err != nil {
		c.logg.Error(c.logg.WithField(ctx, "mode", mode), "checkout rollback incomplete", err)
	}
	c.metrics.IncRollback(mode)
	_ = m.advance(ctx, StateRolledBack)
	return cause
}

type appliedPromo struct {
	promo    models.PromoCode
	vendorID string
	discount decimal.Decimal
}

// stage performs every write of the order inside work.
func (c *Coordinator) stage(ctx context.Context, m *machine, work unitofwork.Work, buyerID uuid.UUID, req PlaceOrderRequest, lines []PricedLine) (*models.Order, error) {
	repos := work.Repositories()
	wctx := work.Context()

	ledger := catalog.NewLedger(repos.Products)
	for _, line := range lines {
		productID, qty := line.ProductID, line.Quantity
		if err := ledger.Reserve(wctx, productID, qty); err != nil {
			return nil, persistenceFailed(err)
		}
		work.OnAbort("release stock "+productID.String(), func(ctx context.Context) error {
			return ledger.Release(ctx, productID, qty)
		})
	}
	if err := m.advance(ctx, StateStockReserved); err != nil {
		return nil, err
	}

	var applied *appliedPromo
	if ref := req.promoRef(); !ref.Empty() {
		var err error
		applied, err = c.applyPromo(work, buyerID, ref, lines)
		if err != nil {
			return nil, persistenceFailed(err)
		}
	}
	if err := m.advance(ctx, StatePromoApplied); err != nil {
		return nil, err
	}

	split, err := Split(lines, money.FromCents(req.DeliveryOption.CostCents), c.opts.TaxRate)
	if err != nil {
		return nil, err
	}
	currency := c.currencyFor(req)
	var (
		orderDiscount int64
		promoID       *uuid.UUID
	)
	if applied != nil {
		id := applied.promo.ID
		promoID = &id
		cents := money.ToCents(applied.discount)
		if group, ok := split.Group(applied.vendorID); ok && applied.vendorID != "" {
			group.DiscountCents = min(cents, group.SubtotalCents)
		} else {
			orderDiscount = cents
		}
	}
	groups := split.Groups
	var total int64
	for i := range groups {
		groups[i].Currency = currency
		c.commission.Apply(ctx, &groups[i])
		total += groups[i].TotalCents
	}
	orderDiscount = max(0, min(orderDiscount, total))
	if err := m.advance(ctx, StateSplitComputed); err != nil {
		return nil, err
	}

	for i := range groups {
		invoice := c.invoices.Build(groups[i], buyerID, currency)
		if err := repos.Invoices.Create(wctx, &invoice); err != nil {
			return nil, persistenceFailed(fmt.Errorf("create invoice for vendor %s: %w", groups[i].VendorID, err))
		}
		invoiceID := invoice.ID
		work.OnAbort("delete invoice "+invoice.Number, func(ctx context.Context) error {
			return repos.Invoices.Delete(ctx, invoiceID)
		})
		groups[i].InvoiceID = invoice.ID
	}
	if err := m.advance(ctx, StateInvoicesCreated); err != nil {
		return nil, err
	}

	now := c.opts.Now().UTC()
	order := &models.Order{
		ID:                      uuid.New(),
		BuyerID:                 buyerID,
		IdempotencyKey:          req.idempotencyKey(),
		VendorGroups:            groups,
		TotalCents:              total,
		DiscountCents:           orderDiscount,
		TotalAfterDiscountCents: total - orderDiscount,
		PromoCodeID:             promoID,
		Currency:                currency,
		PaymentMethod:           req.PaymentMethod,
		PaymentReference:        paymentReference(req),
		ShippingAddress:         req.ShippingAddress,
		DeliveryOption:          req.DeliveryOption,
		Status:                  enums.OrderStatusPending,
		StatusHistory:           []models.StatusChange{{Status: enums.OrderStatusPending, At: now}},
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := repos.Orders.Create(wctx, order); err != nil {
		if errors.Is(err, orders.ErrDuplicateIdempotencyKey) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDuplicateOrderDetected, err, "an order with this idempotency key already exists")
		}
		return nil, persistenceFailed(fmt.Errorf("create order: %w", err))
	}
	orderID := order.ID
	work.OnAbort("delete order", func(ctx context.Context) error {
		return repos.Orders.Delete(ctx, orderID)
	})
	if err := m.advance(c.logg.WithOrderID(ctx, orderID.String()), StateOrderPersisted); err != nil {
		return nil, err
	}

	if err := c.events.Emit(wctx, repos.Events, orderCreatedEvent(order)); err != nil {
		return nil, persistenceFailed(fmt.Errorf("emit order created: %w", err))
	}
	return order, nil
}

// applyPromo validates and redeems the promo against the subtotal it
// discounts: the whole cart, or one vendor's lines for a vendor promo.
func (c *Coordinator) applyPromo(work unitofwork.Work, buyerID uuid.UUID, ref promos.Ref, lines []PricedLine) (*appliedPromo, error) {
	repos := work.Repositories()
	wctx := work.Context()
	validator := promos.NewValidator(repos.Promos, repos.Orders, c.opts.Now)

	promo, err := validator.Resolve(wctx, ref)
	if err != nil {
		return nil, err
	}
	vendorID := promoVendor(*promo)
	base := subtotalOf(lines, vendorID)
	if vendorID != "" && base.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodePromoInvalid, "promo code does not apply to this cart").
			WithDetails(map[string]any{"code": promo.Code})
	}
	discount, err := validator.Validate(wctx, *promo, buyerID, base)
	if err != nil {
		return nil, err
	}
	if err := validator.Redeem(wctx, *promo); err != nil {
		return nil, err
	}
	promoID := promo.ID
	work.OnAbort("release promo "+promo.Code, func(ctx context.Context) error {
		return validator.Release(ctx, promoID)
	})
	return &appliedPromo{promo: *promo, vendorID: vendorID, discount: discount}, nil
}

func (c *Coordinator) linkInvoices(ctx context.Context, order *models.Order) error {
	store := c.uow.Repositories().Invoices
	ids := order.InvoiceIDs()
	backoff := retry.WithMaxRetries(uint64(c.opts.LinkAttempts-1), retry.NewExponential(c.opts.LinkBackoff))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := store.LinkOrder(ctx, ids, order.ID); err != nil {
			c.logg.Warn(c.logg.WithField(ctx, "attempt", attempt), "invoice link attempt failed")
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (c *Coordinator) recordReconciliation(ctx context.Context, order *models.Order, cause error) {
	now := c.opts.Now().UTC()
	message := cause.Error()
	task := &models.ReconciliationTask{
		ID:         uuid.New(),
		Kind:       enums.ReconciliationInvoiceLink,
		Status:     enums.ReconciliationPending,
		OrderID:    order.ID,
		InvoiceIDs: order.InvoiceIDs(),
		LastError:  &message,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	c.metrics.IncReconciliation()
	if err := c.tasks.Create(ctx, task); err != nil {
		c.logg.Error(c.logg.WithField(ctx, "link_error", message), "reconciliation task not recorded", err)
		return
	}
	c.logg.Error(c.logg.WithField(ctx, "reconciliation_task_id", task.ID.String()), "invoice link failed, reconciliation task recorded", cause)
}

func (c *Coordinator) currencyFor(req PlaceOrderRequest) enums.Currency {
	if req.Currency.IsValid() {
		return req.Currency
	}
	return c.opts.Currency
}

func promoVendor(promo models.PromoCode) string {
	if promo.VendorID == nil {
		return ""
	}
	return strings.TrimSpace(*promo.VendorID)
}

// subtotalOf sums the lines sold by vendorID, or every line when vendorID is empty.
func subtotalOf(lines []PricedLine, vendorID string) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		if line.Product == nil {
			continue
		}
		if vendorID != "" && VendorOf(*line.Product) != vendorID {
			continue
		}
		total = total.Add(money.FromCents(line.Product.PriceCents).Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

func paymentReference(req PlaceOrderRequest) *string {
	ref := req.Payment.Reference(req.PaymentMethod)
	if ref == "" {
		return nil
	}
	return &ref
}

func orderCreatedEvent(order *models.Order) outbox.DomainEvent {
	vendorIDs := make([]string, 0, len(order.VendorGroups))
	for _, group := range order.VendorGroups {
		vendorIDs = append(vendorIDs, group.VendorID)
	}
	return outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.Actor{UserID: order.BuyerID, Role: enums.ActorRoleBuyer.String()},
		Data: payloads.OrderCreatedEvent{
			OrderID:                 order.ID,
			BuyerID:                 order.BuyerID,
			InvoiceIDs:              order.InvoiceIDs(),
			VendorIDs:               vendorIDs,
			TotalCents:              order.TotalCents,
			TotalAfterDiscountCents: order.TotalAfterDiscountCents,
			Currency:                order.Currency,
			PaymentMethod:           order.PaymentMethod,
		},
		OccurredAt: order.CreatedAt,
	}
}

// persistenceFailed keeps typed errors and hides anything else behind
// ORDER_PERSISTENCE_FAILED. The cause stays on the chain for logging.
func persistenceFailed(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeOrderPersistenceFailed, err, "order could not be placed")
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if typed := pkgerrors.As(err); typed != nil {
		return strings.ToLower(string(typed.Code()))
	}
	return "error"
}
