// Package reconciliation repairs orders whose invoices were not linked when
// the order was placed.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

const (
	defaultBatchSize   = 100
	defaultMaxAttempts = 10
)

// InvoiceLinker sets the order reference on invoices.
type InvoiceLinker interface {
	LinkOrder(ctx context.Context, ids []uuid.UUID, orderID uuid.UUID) error
}

// Params configure a Reconciler. Events and Writer are optional; when both
// are set a resolved task emits invoice_linked.
type Params struct {
	Store       Store
	Invoices    InvoiceLinker
	Events      *outbox.Service
	Writer      outbox.Writer
	Logger      *logger.Logger
	BatchSize   int
	MaxAttempts int
}

// Summary counts what one pass did.
type Summary struct {
	Resolved  int
	Retried   int
	Abandoned int
}

// Reconciler retries invoice linkage for pending tasks.
type Reconciler struct {
	store       Store
	invoices    InvoiceLinker
	events      *outbox.Service
	writer      outbox.Writer
	logg        *logger.Logger
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

func NewReconciler(params Params) (*Reconciler, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("reconciliation store required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice linker required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Reconciler{
		store:       params.Store,
		invoices:    params.Invoices,
		events:      params.Events,
		writer:      params.Writer,
		logg:        logg,
		batchSize:   batch,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}, nil
}

// Run processes one batch of pending tasks. A failed link is recorded on
// the task and is not an error; store failures are returned joined.
func (r *Reconciler) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	tasks, err := r.store.ListPending(ctx, r.batchSize)
	if err != nil {
		return summary, fmt.Errorf("list pending tasks: %w", err)
	}

	var errs error
	for _, task := range tasks {
		taskCtx := r.logg.WithFields(ctx, map[string]any{
			"reconciliation_task_id": task.ID.String(),
			"order_id":               task.OrderID.String(),
		})
		if err := r.process(taskCtx, task, &summary); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("task %s: %w", task.ID, err))
		}
	}
	return summary, errs
}

func (r *Reconciler) process(ctx context.Context, task models.ReconciliationTask, summary *Summary) error {
	if task.Kind != enums.ReconciliationInvoiceLink {
		summary.Abandoned++
		return r.store.RecordFailure(ctx, task.ID, fmt.Sprintf("unsupported task kind %q", task.Kind), true)
	}

	linkErr := r.invoices.LinkOrder(ctx, task.InvoiceIDs, task.OrderID)
	if linkErr == nil {
		if err := r.store.MarkResolved(ctx, task.ID, r.now()); err != nil {
			return err
		}
		summary.Resolved++
		r.logg.Info(ctx, "invoices linked by reconciliation")
		r.emitLinked(ctx, task)
		return nil
	}

	abandon := task.Attempts+1 >= r.maxAttempts
	if err := r.store.RecordFailure(ctx, task.ID, linkErr.Error(), abandon); err != nil {
		return err
	}
	if abandon {
		summary.Abandoned++
		r.logg.Error(r.logg.WithField(ctx, "attempts", task.Attempts+1), "reconciliation task abandoned", linkErr)
		return nil
	}
	summary.Retried++
	r.logg.Warn(r.logg.WithField(ctx, "attempts", task.Attempts+1), "invoice link still failing")
	return nil
}

func (r *Reconciler) emitLinked(ctx context.Context, task models.ReconciliationTask) {
	if r.events == nil || r.writer == nil {
		return
	}
	err := r.events.Emit(ctx, r.writer, outbox.DomainEvent{
		EventType:     enums.EventInvoiceLinked,
		AggregateType: enums.AggregateOrder,
		AggregateID:   task.OrderID,
		Data: payloads.InvoicesLinkedEvent{
			OrderID:    task.OrderID,
			InvoiceIDs: task.InvoiceIDs,
		},
	})
	if err != nil {
		r.logg.Error(ctx, "failed to emit invoice_linked", err)
	}
}
