// Package unitofwork groups the writes of one checkout so they commit or
// roll back together. Backends with multi-document transactions use them;
// the rest undo completed steps with registered compensations.
package unitofwork

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/internal/invoices"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/promos"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
)

// ErrFinished is returned when a work is used after Commit or Abort.
var ErrFinished = errors.New("unit of work already finished")

// Repositories are the stores a work writes through.
type Repositories struct {
	Products catalog.Store
	Promos   promos.Store
	Invoices invoices.Store
	Orders   orders.Store
	Events   outbox.Writer
}

// Work is one open unit of work. Stores must be called with Context() so
// they join the transaction when there is one.
type Work interface {
	Context() context.Context
	Repositories() Repositories
	// Transactional reports whether Abort relies on a store rollback.
	Transactional() bool
	// OnAbort registers a compensation. Compensations run last-in first-out
	// on Abort unless the work is transactional.
	OnAbort(name string, fn func(ctx context.Context) error)
	Commit() error
	// Abort undoes the work. It is a no-op after Commit.
	Abort() error
}

// UnitOfWork opens works against one backend.
type UnitOfWork interface {
	Begin(ctx context.Context) (Work, error)
	// Repositories returns stores outside any work.
	Repositories() Repositories
	Transactional() bool
}

// ResolveNative turns a configured mode into a transaction decision. Auto
// defers to what the backend reports.
func ResolveNative(mode string, supported bool) (bool, error) {
	switch mode {
	case config.TransactionModeNative:
		if !supported {
			return false, errors.New("native transactions requested but the backend does not support them")
		}
		return true, nil
	case config.TransactionModeCompensate:
		return false, nil
	case config.TransactionModeAuto, "":
		return supported, nil
	default:
		return false, fmt.Errorf("unknown transaction mode %q", mode)
	}
}

type compensation struct {
	name string
	fn   func(ctx context.Context) error
}

// compensationLog is a LIFO stack of undo steps.
type compensationLog struct {
	steps []compensation
}

func (l *compensationLog) push(name string, fn func(ctx context.Context) error) {
	l.steps = append(l.steps, compensation{name: name, fn: fn})
}

// run executes every step newest first and joins their errors. A failing
// step does not stop the remaining ones.
func (l *compensationLog) run(ctx context.Context, logg *logger.Logger) error {
	var errs error
	for i := len(l.steps) - 1; i >= 0; i-- {
		step := l.steps[i]
		stepCtx := logg.WithField(ctx, "compensation", step.name)
		if err := step.fn(ctx); err != nil {
			logg.Error(stepCtx, "compensation failed", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		logg.Info(stepCtx, "compensation applied")
	}
	l.steps = nil
	return errs
}

// compensatingWork writes straight through the base stores and undoes
// completed steps on Abort.
type compensatingWork struct {
	ctx      context.Context
	repos    Repositories
	log      compensationLog
	logg     *logger.Logger
	finished bool
}

func newCompensatingWork(ctx context.Context, repos Repositories, logg *logger.Logger) *compensatingWork {
	return &compensatingWork{ctx: ctx, repos: repos, logg: logg}
}

func (w *compensatingWork) Context() context.Context   { return w.ctx }
func (w *compensatingWork) Repositories() Repositories { return w.repos }
func (w *compensatingWork) Transactional() bool        { return false }

func (w *compensatingWork) OnAbort(name string, fn func(ctx context.Context) error) {
	if w.finished {
		return
	}
	w.log.push(name, fn)
}

func (w *compensatingWork) Commit() error {
	if w.finished {
		return ErrFinished
	}
	w.finished = true
	w.log.steps = nil
	return nil
}

func (w *compensatingWork) Abort() error {
	if w.finished {
		return nil
	}
	w.finished = true
	return w.log.run(context.WithoutCancel(w.ctx), w.logg)
}
