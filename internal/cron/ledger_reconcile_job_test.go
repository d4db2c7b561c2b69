package cron

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/quillcoach/credits-backend/internal/ledger"
	"github.com/quillcoach/credits-backend/pkg/logger"
	"github.com/quillcoach/credits-backend/pkg/metrics"
)

type fakeReconciler struct {
	ids     []uuid.UUID
	reports map[uuid.UUID]*ledger.ReconciliationReport
	errs    map[uuid.UUID]error
	pages   int
}

func (f *fakeReconciler) ListAccountIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	f.pages++
	start := 0
	if after != uuid.Nil {
		for i, id := range f.ids {
			if id == after {
				start = i + 1
			}
		}
	}
	end := start + limit
	if end > len(f.ids) {
		end = len(f.ids)
	}
	return f.ids[start:end], nil
}

func (f *fakeReconciler) Reconcile(ctx context.Context, accountID uuid.UUID) (*ledger.ReconciliationReport, error) {
	if err := f.errs[accountID]; err != nil {
		return nil, err
	}
	if report, ok := f.reports[accountID]; ok {
		return report, nil
	}
	return &ledger.ReconciliationReport{AccountID: accountID, Consistent: true}, nil
}

func TestLedgerReconcileJobPagesAndCountsDiscrepancies(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	rec := &fakeReconciler{
		ids: ids,
		reports: map[uuid.UUID]*ledger.ReconciliationReport{
			ids[1]: {AccountID: ids[1], Credits: 50, LogSum: 40, Discrepancies: []ledger.Discrepancy{
				{Reason: ledger.DiscrepancyBalance, Expected: 40, Actual: 50},
			}},
			ids[4]: {AccountID: ids[4], Discrepancies: []ledger.Discrepancy{
				{Reason: ledger.DiscrepancySequenceGap, Sequence: 3, Expected: 3, Actual: 4},
			}},
		},
	}
	reg := prometheus.NewRegistry()
	ledgerMetrics := metrics.NewLedgerMetrics(reg)
	job, err := NewLedgerReconcileJob(LedgerReconcileJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Ledger:    rec,
		Metrics:   ledgerMetrics,
		BatchSize: 2,
	})
	if err != nil {
		t.Fatalf("NewLedgerReconcileJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.pages != 3 {
		t.Fatalf("expected 3 pages, got %d", rec.pages)
	}
	if got := gaugeValue(t, reg, "ledger_reconciliation_discrepancies"); got != 2 {
		t.Fatalf("expected 2 inconsistent accounts, got %v", got)
	}
}

func TestLedgerReconcileJobAggregatesFailures(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	rec := &fakeReconciler{
		ids: ids,
		errs: map[uuid.UUID]error{
			ids[0]: errors.New("db timeout"),
			ids[2]: errors.New("db timeout"),
		},
	}
	job, err := NewLedgerReconcileJob(LedgerReconcileJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Ledger: rec,
	})
	if err != nil {
		t.Fatalf("NewLedgerReconcileJob: %v", err)
	}

	err = job.Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if n := len(multierr.Errors(err)); n != 2 {
		t.Fatalf("expected 2 errors, got %d", n)
	}
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name && len(mf.GetMetric()) == 1 {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
