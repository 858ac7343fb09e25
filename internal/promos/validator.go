package promos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/money"
)

var hundred = decimal.NewFromInt(100)

// OrderHistory answers the first-time-buyer question.
type OrderHistory interface {
	CountByBuyer(ctx context.Context, buyerID uuid.UUID) (int64, error)
}

// Ref identifies a promo either by id or by its public code.
type Ref struct {
	ID   *uuid.UUID
	Code string
}

// Empty reports whether no promo was requested.
func (r Ref) Empty() bool {
	return r.ID == nil && NormalizeCode(r.Code) == ""
}

// Validator checks promo eligibility and tracks redemptions.
type Validator struct {
	store  Store
	orders OrderHistory
	now    func() time.Time
}

// NewValidator binds a validator to a promo store and the buyer's order history.
func NewValidator(store Store, orders OrderHistory, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{store: store, orders: orders, now: now}
}

// Resolve loads the referenced promo. Unknown codes are reported as PromoInvalid.
func (v *Validator) Resolve(ctx context.Context, ref Ref) (*models.PromoCode, error) {
	var (
		promo *models.PromoCode
		err   error
	)
	if ref.ID != nil {
		promo, err = v.store.FindByID(ctx, *ref.ID)
	} else {
		promo, err = v.store.FindByCode(ctx, ref.Code)
	}
	if errors.Is(err, ErrNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodePromoInvalid, "promo code is not valid")
	}
	if err != nil {
		return nil, fmt.Errorf("load promo: %w", err)
	}
	return promo, nil
}

// Validate checks eligibility against subtotal and returns the uncapped discount.
func (v *Validator) Validate(ctx context.Context, promo models.PromoCode, buyerID uuid.UUID, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if !promo.IsActive || !promo.Type.IsValid() {
		return decimal.Zero, promoError(pkgerrors.CodePromoInvalid, "promo code is not valid", promo)
	}
	if promo.ExpiresAt != nil && !v.now().Before(*promo.ExpiresAt) {
		return decimal.Zero, promoError(pkgerrors.CodePromoExpired, "promo code has expired", promo)
	}
	if promo.UsageLimit > 0 && promo.UsedCount >= promo.UsageLimit {
		return decimal.Zero, promoError(pkgerrors.CodePromoLimitReached, "promo code usage limit reached", promo)
	}
	if promo.FirstTimeOnly {
		count, err := v.orders.CountByBuyer(ctx, buyerID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("count buyer orders: %w", err)
		}
		if count > 0 {
			return decimal.Zero, promoError(pkgerrors.CodePromoNotFirstTime, "promo code is only valid on a first order", promo)
		}
	}
	minimum := money.FromCents(promo.MinOrderCents)
	if subtotal.LessThan(minimum) {
		return decimal.Zero, promoError(pkgerrors.CodePromoMinimumNotMet, "order does not meet the promo minimum", promo).
			WithDetails(map[string]any{"code": promo.Code, "min_order_value": money.Format(promo.MinOrderCents)})
	}
	return Discount(promo, subtotal), nil
}

// Redeem atomically consumes one use of the promo.
func (v *Validator) Redeem(ctx context.Context, promo models.PromoCode) error {
	ok, err := v.store.IncrementUsage(ctx, promo.ID)
	if err != nil {
		return fmt.Errorf("increment promo usage: %w", err)
	}
	if !ok {
		return promoError(pkgerrors.CodePromoLimitReached, "promo code usage limit reached", promo)
	}
	return nil
}

// Release gives back a use consumed by Redeem.
func (v *Validator) Release(ctx context.Context, promoID uuid.UUID) error {
	if err := v.store.DecrementUsage(ctx, promoID); err != nil {
		return fmt.Errorf("decrement promo usage: %w", err)
	}
	return nil
}

// Discount computes the promo amount for base, never exceeding base.
func Discount(promo models.PromoCode, base decimal.Decimal) decimal.Decimal {
	if base.Sign() <= 0 || promo.Value.Sign() <= 0 {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch promo.Type {
	case enums.PromoTypePercentage:
		amount = base.Mul(promo.Value).Div(hundred)
	case enums.PromoTypeFixed:
		amount = promo.Value
	default:
		return decimal.Zero
	}
	return decimal.Min(amount, base)
}

func promoError(code pkgerrors.Code, message string, promo models.PromoCode) *pkgerrors.Error {
	return pkgerrors.New(code, message).WithDetails(map[string]any{"code": promo.Code})
}
