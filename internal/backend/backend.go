// Package backend opens the configured storage backend and exposes the
// stores and unit of work every binary shares.
package backend

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/bazaar-backend/internal/buyers"
	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/internal/invoices"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/promos"
	"github.com/angelmondragon/bazaar-backend/internal/reconciliation"
	"github.com/angelmondragon/bazaar-backend/internal/unitofwork"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
	pkgmongo "github.com/angelmondragon/bazaar-backend/pkg/mongo"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
)

// Backend bundles the stores of one storage backend.
type Backend struct {
	Name       string
	UnitOfWork unitofwork.UnitOfWork
	Buyers     buyers.Store
	Tasks      reconciliation.Store
	Invoices   invoices.Store
	Orders     orders.Store
	Outbox     outbox.Source
	// Events writes outside any unit of work, e.g. from the reconciler.
	Events outbox.Writer

	pinger db.Pinger
	close  func(ctx context.Context) error
}

// Open connects to the backend selected by cfg.Storage.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*Backend, error) {
	if cfg.Storage.UsesMongo() {
		return openMongo(ctx, cfg, logg)
	}
	return openSQL(ctx, cfg, logg)
}

func openSQL(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*Backend, error) {
	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	if err := migrate.OnStartup(ctx, cfg, logg, client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	b, err := NewSQL(client, cfg.Checkout.Mode(), logg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return b, nil
}

// NewSQL builds a relational backend over an open client. Relational
// stores always support native transactions.
func NewSQL(client *db.Client, mode string, logg *logger.Logger) (*Backend, error) {
	native, err := unitofwork.ResolveNative(mode, true)
	if err != nil {
		return nil, err
	}
	conn := client.DB()
	events := outbox.NewRepository(conn)
	invoiceStore := invoices.NewGormStore(conn)
	return &Backend{
		Name:       config.StorageBackendSQL,
		UnitOfWork: unitofwork.NewGorm(conn, native, logg),
		Buyers:     buyers.NewGormStore(conn),
		Tasks:      reconciliation.NewGormStore(conn),
		Invoices:   invoiceStore,
		Orders:     orders.NewGormStore(conn),
		Outbox:     events,
		Events:     events,
		pinger:     client,
		close:      func(context.Context) error { return client.Close() },
	}, nil
}

func openMongo(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*Backend, error) {
	client, err := pkgmongo.Connect(ctx, cfg.Mongo, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap mongodb: %w", err)
	}
	b, err := NewMongo(ctx, client, cfg.Checkout.Mode(), logg)
	if err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	return b, nil
}

type indexer interface {
	CreateIndexes(ctx context.Context) error
}

// NewMongo builds a document backend over an open client. Native
// transactions are used only when the deployment supports them.
func NewMongo(ctx context.Context, client *pkgmongo.Client, mode string, logg *logger.Logger) (*Backend, error) {
	supported, err := client.SupportsTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect transaction support: %w", err)
	}
	native, err := unitofwork.ResolveNative(mode, supported)
	if err != nil {
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"transactions_supported": supported,
			"native":                 native,
		}), "mongodb unit of work selected")
	}

	database := client.Database()
	buyerStore := buyers.NewMongoStore(database)
	taskStore := reconciliation.NewMongoStore(database)
	invoiceStore := invoices.NewMongoStore(database)
	orderStore := orders.NewMongoStore(database)
	events := outbox.NewMongoRepository(database)

	var indexErr error
	for _, ix := range []indexer{
		catalog.NewMongoStore(database),
		promos.NewMongoStore(database),
		buyerStore,
		taskStore,
		invoiceStore,
		orderStore,
		events,
	} {
		indexErr = multierr.Append(indexErr, ix.CreateIndexes(ctx))
	}
	if indexErr != nil {
		return nil, fmt.Errorf("create mongodb indexes: %w", indexErr)
	}

	return &Backend{
		Name:       config.StorageBackendMongo,
		UnitOfWork: unitofwork.NewMongo(client, native, logg),
		Buyers:     buyerStore,
		Tasks:      taskStore,
		Invoices:   invoiceStore,
		Orders:     orderStore,
		Outbox:     events,
		Events:     events,
		pinger:     client,
		close:      client.Close,
	}, nil
}

// QueryService returns the read side over this backend.
func (b *Backend) QueryService() *orders.QueryService {
	return orders.NewQueryService(b.Orders, b.Invoices)
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.pinger.Ping(ctx)
}

func (b *Backend) Close(ctx context.Context) error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close(ctx)
}
