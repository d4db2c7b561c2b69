package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/pkg/db/models"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
)

// Discrepancy reasons.
const (
	DiscrepancyBalanceAfter  = "balance_after_mismatch"
	DiscrepancySequenceGap   = "sequence_gap"
	DiscrepancyTimeRegressed = "timestamp_regressed"
	DiscrepancyBalance       = "balance_mismatch"
	DiscrepancyVersion       = "version_mismatch"
)

// ReconciliationReport compares an account's cached balance with its log.
type ReconciliationReport struct {
	AccountID     uuid.UUID     `json:"accountId"`
	Credits       int64         `json:"credits"`
	Version       int64         `json:"version"`
	LogSum        int64         `json:"logSum"`
	LastBalance   *int64        `json:"lastBalanceAfter,omitempty"`
	Entries       int           `json:"entries"`
	Consistent    bool          `json:"consistent"`
	Discrepancies []Discrepancy `json:"discrepancies,omitempty"`
}

type Discrepancy struct {
	Reason        string     `json:"reason"`
	Sequence      int64      `json:"sequence,omitempty"`
	TransactionID *uuid.UUID `json:"transactionId,omitempty"`
	Expected      int64      `json:"expected"`
	Actual        int64      `json:"actual"`
}

// Reconcile replays the account log under a shared lock on the account row
// and reports every point where the stored state disagrees with the replay.
func (s *service) Reconcile(ctx context.Context, accountID uuid.UUID) (*ReconciliationReport, error) {
	var (
		account *models.Account
		log     []models.CreditTransaction
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindAccountForShare(ctx, accountID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("load account: %w", err)
		}
		entries, err := repo.LoadLog(ctx, accountID)
		if err != nil {
			return fmt.Errorf("load log: %w", err)
		}
		account, log = found, entries
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reconcile account")
	}
	return replay(account, log), nil
}

func replay(account *models.Account, log []models.CreditTransaction) *ReconciliationReport {
	report := &ReconciliationReport{
		AccountID: account.ID,
		Credits:   account.Credits,
		Version:   account.Version,
		Entries:   len(log),
	}

	var running int64
	for i, entry := range log {
		id := entry.ID
		running += entry.Amount
		if want := int64(i + 1); entry.Sequence != want {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				Reason: DiscrepancySequenceGap, Sequence: entry.Sequence, TransactionID: &id,
				Expected: want, Actual: entry.Sequence,
			})
		}
		if entry.BalanceAfter != running {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				Reason: DiscrepancyBalanceAfter, Sequence: entry.Sequence, TransactionID: &id,
				Expected: running, Actual: entry.BalanceAfter,
			})
		}
		if i > 0 && entry.CreatedAt.Before(log[i-1].CreatedAt) {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				Reason: DiscrepancyTimeRegressed, Sequence: entry.Sequence, TransactionID: &id,
				Expected: log[i-1].CreatedAt.UnixNano(), Actual: entry.CreatedAt.UnixNano(),
			})
		}
	}
	report.LogSum = running
	if len(log) > 0 {
		last := log[len(log)-1].BalanceAfter
		report.LastBalance = &last
	}

	if account.Credits != running {
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			Reason: DiscrepancyBalance, Expected: running, Actual: account.Credits,
		})
	}
	if account.Version != int64(len(log)) {
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			Reason: DiscrepancyVersion, Expected: int64(len(log)), Actual: account.Version,
		})
	}
	report.Consistent = len(report.Discrepancies) == 0
	return report
}
