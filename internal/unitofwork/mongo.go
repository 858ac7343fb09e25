package unitofwork

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/internal/invoices"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/promos"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	pkgmongo "github.com/angelmondragon/bazaar-backend/pkg/mongo"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
)

// Mongo runs works on the document backend. Native works bind a session
// transaction to Work.Context.
type Mongo struct {
	client *mongo.Client
	repos  Repositories
	native bool
	logg   *logger.Logger
}

// NewMongo returns a unit of work over client's database.
func NewMongo(client *pkgmongo.Client, native bool, logg *logger.Logger) *Mongo {
	if logg == nil {
		logg = logger.Nop()
	}
	db := client.Database()
	return &Mongo{
		client: client.Raw(),
		repos: Repositories{
			Products: catalog.NewMongoStore(db),
			Promos:   promos.NewMongoStore(db),
			Invoices: invoices.NewMongoStore(db),
			Orders:   orders.NewMongoStore(db),
			Events:   outbox.NewMongoRepository(db),
		},
		native: native,
		logg:   logg,
	}
}

func (u *Mongo) Repositories() Repositories { return u.repos }
func (u *Mongo) Transactional() bool        { return u.native }

func (u *Mongo) Begin(ctx context.Context) (Work, error) {
	if !u.native {
		return newCompensatingWork(ctx, u.repos, u.logg), nil
	}
	session, err := u.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if err := session.StartTransaction(); err != nil {
		session.EndSession(ctx)
		return nil, fmt.Errorf("start transaction: %w", err)
	}
	return &mongoWork{
		ctx:     mongo.NewSessionContext(ctx, session),
		base:    ctx,
		session: session,
		repos:   u.repos,
	}, nil
}

type mongoWork struct {
	ctx      context.Context
	base     context.Context
	session  mongo.Session
	repos    Repositories
	finished bool
}

func (w *mongoWork) Context() context.Context   { return w.ctx }
func (w *mongoWork) Repositories() Repositories { return w.repos }
func (w *mongoWork) Transactional() bool        { return true }

// OnAbort is a no-op; aborting the transaction discards every write.
func (w *mongoWork) OnAbort(string, func(ctx context.Context) error) {}

func (w *mongoWork) Commit() error {
	if w.finished {
		return ErrFinished
	}
	w.finished = true
	defer w.session.EndSession(w.base)
	if err := w.session.CommitTransaction(w.ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (w *mongoWork) Abort() error {
	if w.finished {
		return nil
	}
	w.finished = true
	defer w.session.EndSession(w.base)
	if err := w.session.AbortTransaction(context.WithoutCancel(w.base)); err != nil {
		return fmt.Errorf("abort transaction: %w", err)
	}
	return nil
}
