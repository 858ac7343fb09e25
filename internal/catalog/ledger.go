package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// Ledger is the authoritative stock counter. Every mutation is a single
// conditional write against the store; there is no read-modify-write.
type Ledger struct {
	store Store
}

// NewLedger binds a ledger to a catalog store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Reserve decrements stock by qty when at least qty units are available.
func (l *Ledger) Reserve(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("reserve %s: quantity must be positive, got %d", productID, qty)
	}
	ok, err := l.store.DecrementStock(ctx, productID, qty)
	if err != nil {
		return fmt.Errorf("decrement stock for %s: %w", productID, err)
	}
	if ok {
		return nil
	}

	available, err := l.store.Stock(ctx, productID)
	if errors.Is(err, ErrNotFound) {
		return ProductNotFound(productID)
	}
	if err != nil {
		return fmt.Errorf("read stock for %s: %w", productID, err)
	}
	return InsufficientStock(productID, available)
}

// Release returns qty units to stock. Used to compensate a Reserve.
func (l *Ledger) Release(ctx context.Context, productID uuid.UUID, qty int) error {
	if err := l.store.IncrementStock(ctx, productID, qty); err != nil {
		return fmt.Errorf("release stock for %s: %w", productID, err)
	}
	return nil
}

// ProductNotFound reports a cart line whose product has no catalog entry.
func ProductNotFound(productID uuid.UUID) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeProductNotFound, "product not found").
		WithDetails(map[string]any{"product_id": productID.String()})
}

// InsufficientStock reports the product and the quantity still available.
func InsufficientStock(productID uuid.UUID, available int) *pkgerrors.Error {
	if available < 0 {
		available = 0
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
		WithDetails(map[string]any{"product_id": productID.String(), "available": available})
}
