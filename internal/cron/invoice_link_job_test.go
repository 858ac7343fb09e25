package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/bazaar-backend/internal/reconciliation"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type fakeReconciler struct {
	summary reconciliation.Summary
	err     error
	runs    int
}

func (f *fakeReconciler) Run(context.Context) (reconciliation.Summary, error) {
	f.runs++
	return f.summary, f.err
}

func TestInvoiceLinkJobRunsReconciler(t *testing.T) {
	rec := &fakeReconciler{summary: reconciliation.Summary{Resolved: 2, Retried: 1}}
	job, err := NewInvoiceLinkJob(InvoiceLinkJobParams{Logger: logger.Nop(), Reconciler: rec})
	if err != nil {
		t.Fatalf("NewInvoiceLinkJob: %v", err)
	}
	if job.Name() != "invoice-link-reconcile" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.runs != 1 {
		t.Fatalf("expected one reconciler pass, got %d", rec.runs)
	}
}

func TestInvoiceLinkJobWrapsStoreErrors(t *testing.T) {
	cause := errors.New("store offline")
	job, err := NewInvoiceLinkJob(InvoiceLinkJobParams{Logger: logger.Nop(), Reconciler: &fakeReconciler{err: cause}})
	if err != nil {
		t.Fatalf("NewInvoiceLinkJob: %v", err)
	}
	if err := job.Run(context.Background()); !errors.Is(err, cause) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestNewInvoiceLinkJobRequiresReconciler(t *testing.T) {
	if _, err := NewInvoiceLinkJob(InvoiceLinkJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected missing reconciler to fail")
	}
}
