package unitofwork

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/internal/invoices"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/promos"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
)

// Gorm runs works on the relational backend.
type Gorm struct {
	db     *gorm.DB
	native bool
	logg   *logger.Logger
	stores gormStores
}

// NewGorm returns a unit of work over db. Native selects database
// transactions; otherwise steps are compensated.
func NewGorm(db *gorm.DB, native bool, logg *logger.Logger) *Gorm {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Gorm{db: db, native: native, logg: logg, stores: newGormStores(db)}
}

type gormStores struct {
	products *catalog.GormStore
	promos   *promos.GormStore
	invoices *invoices.GormStore
	orders   *orders.GormStore
	events   *outbox.Repository
}

func newGormStores(db *gorm.DB) gormStores {
	return gormStores{
		products: catalog.NewGormStore(db),
		promos:   promos.NewGormStore(db),
		invoices: invoices.NewGormStore(db),
		orders:   orders.NewGormStore(db),
		events:   outbox.NewRepository(db),
	}
}

func (s gormStores) withTx(tx *gorm.DB) gormStores {
	return gormStores{
		products: s.products.WithTx(tx),
		promos:   s.promos.WithTx(tx),
		invoices: s.invoices.WithTx(tx),
		orders:   s.orders.WithTx(tx),
		events:   s.events.WithTx(tx),
	}
}

func (s gormStores) repositories() Repositories {
	return Repositories{
		Products: s.products,
		Promos:   s.promos,
		Invoices: s.invoices,
		Orders:   s.orders,
		Events:   s.events,
	}
}

func (u *Gorm) Repositories() Repositories { return u.stores.repositories() }
func (u *Gorm) Transactional() bool        { return u.native }

func (u *Gorm) Begin(ctx context.Context) (Work, error) {
	if !u.native {
		return newCompensatingWork(ctx, u.Repositories(), u.logg), nil
	}
	tx := u.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("begin transaction: %w", tx.Error)
	}
	return &gormWork{ctx: ctx, tx: tx, repos: u.stores.withTx(tx).repositories()}, nil
}

type gormWork struct {
	ctx      context.Context
	tx       *gorm.DB
	repos    Repositories
	finished bool
}

func (w *gormWork) Context() context.Context   { return w.ctx }
func (w *gormWork) Repositories() Repositories { return w.repos }
func (w *gormWork) Transactional() bool        { return true }

// OnAbort is a no-op; the rollback discards every write.
func (w *gormWork) OnAbort(string, func(ctx context.Context) error) {}

func (w *gormWork) Commit() error {
	if w.finished {
		return ErrFinished
	}
	w.finished = true
	if err := w.tx.Commit().Error; err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (w *gormWork) Abort() error {
	if w.finished {
		return nil
	}
	w.finished = true
	if err := w.tx.Rollback().Error; err != nil {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}
