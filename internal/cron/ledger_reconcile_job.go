package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/quillcoach/credits-backend/internal/ledger"
	"github.com/quillcoach/credits-backend/pkg/logger"
	"github.com/quillcoach/credits-backend/pkg/metrics"
)

const defaultReconcileBatchSize = 200

type LedgerReconcileJobParams struct {
	Logger    *logger.Logger
	Ledger    ledgerReconciler
	Metrics   *metrics.LedgerMetrics
	BatchSize int
}

type ledgerReconciler interface {
	ListAccountIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (*ledger.ReconciliationReport, error)
}

func NewLedgerReconcileJob(params LedgerReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatchSize
	}
	return &ledgerReconcileJob{
		logg:    params.Logger,
		ledger:  params.Ledger,
		metrics: params.Metrics,
		batch:   batch,
	}, nil
}

type ledgerReconcileJob struct {
	logg    *logger.Logger
	ledger  ledgerReconciler
	metrics *metrics.LedgerMetrics
	batch   int
}

func (j *ledgerReconcileJob) Name() string { return "ledger-reconciliation" }

// Run replays every account's log against its cached balance. Mismatches are
// reported, never repaired.
func (j *ledgerReconcileJob) Run(ctx context.Context) error {
	var (
		errs         error
		after        uuid.UUID
		checked      int
		inconsistent int
	)
	for {
		ids, err := j.ledger.ListAccountIDs(ctx, after, j.batch)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list accounts after %s: %w", after, err))
		}
		for _, id := range ids {
			if ctx.Err() != nil {
				return multierr.Append(errs, ctx.Err())
			}
			report, err := j.ledger.Reconcile(ctx, id)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("reconcile account %s: %w", id, err))
				continue
			}
			checked++
			if !report.Consistent {
				inconsistent++
				j.report(ctx, report)
			}
		}
		if len(ids) < j.batch {
			break
		}
		after = ids[len(ids)-1]
	}

	j.metrics.SetDiscrepancies(inconsistent)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"accounts_checked":      checked,
		"accounts_inconsistent": inconsistent,
		"accounts_failed":       len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "ledger reconciliation complete")
	return errs
}

func (j *ledgerReconcileJob) report(ctx context.Context, report *ledger.ReconciliationReport) {
	accountCtx := j.logg.WithAccountID(ctx, report.AccountID.String())
	for _, d := range report.Discrepancies {
		fields := map[string]any{
			"reason":   d.Reason,
			"sequence": d.Sequence,
			"expected": d.Expected,
			"actual":   d.Actual,
			"credits":  report.Credits,
			"log_sum":  report.LogSum,
		}
		if d.TransactionID != nil {
			fields["transaction_id"] = d.TransactionID.String()
		}
		j.logg.Error(j.logg.WithFields(accountCtx, fields), "ledger discrepancy detected", fmt.Errorf("ledger discrepancy: %s", d.Reason))
	}
}
