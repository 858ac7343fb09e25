package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/bazaar-backend/internal/reconciliation"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type InvoiceLinkJobParams struct {
	Logger     *logger.Logger
	Reconciler reconciler
}

type reconciler interface {
	Run(ctx context.Context) (reconciliation.Summary, error)
}

// NewInvoiceLinkJob retries pending invoice-link reconciliation tasks.
func NewInvoiceLinkJob(params InvoiceLinkJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &invoiceLinkJob{logg: params.Logger, reconciler: params.Reconciler}, nil
}

type invoiceLinkJob struct {
	logg       *logger.Logger
	reconciler reconciler
}

func (j *invoiceLinkJob) Name() string { return "invoice-link-reconcile" }

func (j *invoiceLinkJob) Run(ctx context.Context) error {
	summary, err := j.reconciler.Run(ctx)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"resolved":  summary.Resolved,
		"retried":   summary.Retried,
		"abandoned": summary.Abandoned,
	}), "invoice link reconciliation pass complete")
	if err != nil {
		return fmt.Errorf("invoice link reconciliation: %w", err)
	}
	return nil
}
