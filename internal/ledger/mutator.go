package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/pkg/db"
	"github.com/quillcoach/credits-backend/pkg/logger"
	"github.com/quillcoach/credits-backend/pkg/metrics"
)

const (
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 15 * time.Millisecond
	sequenceConstraint    = "ux_credit_transactions_account_sequence"
	sqliteSequenceIndex   = "credit_transactions.account_id, credit_transactions.sequence"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// MutatorParams wires the balance mutator.
type MutatorParams struct {
	Repository     Repository
	TxRunner       txRunner
	Metrics        *metrics.LedgerMetrics
	Logger         *logger.Logger
	MaxAttempts    int
	RetryBaseDelay time.Duration
	Clock          func() time.Time
}

// Mutator is the only component allowed to change an account balance.
type Mutator struct {
	repo        Repository
	tx          txRunner
	metrics     *metrics.LedgerMetrics
	logg        *logger.Logger
	maxAttempts int
	baseDelay   time.Duration
	now         func() time.Time
}

func NewMutator(params MutatorParams) (*Mutator, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	delay := params.RetryBaseDelay
	if delay < 0 {
		delay = 0
	} else if delay == 0 {
		delay = defaultRetryBaseDelay
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &Mutator{
		repo:        params.Repository,
		tx:          params.TxRunner,
		metrics:     params.Metrics,
		logg:        params.Logger,
		maxAttempts: attempts,
		baseDelay:   delay,
		now:         now,
	}, nil
}

// Apply commits a single entry in its own atomic unit.
func (m *Mutator) Apply(ctx context.Context, entry Entry) (*Result, error) {
	var result *Result
	err := m.Atomically(ctx, func(tx *gorm.DB) error {
		res, err := m.ApplyTx(ctx, tx, entry)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Atomically runs fn in one transaction and reruns the whole unit when a
// balance write loses a version race. fn must be safe to run more than once.
func (m *Mutator) Atomically(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var lastErr error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		err := m.tx.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isConcurrencyConflict(err) {
			return err
		}
		lastErr = err
		m.metrics.IncRetry()
		if m.logg != nil {
			logCtx := m.logg.WithFields(ctx, map[string]any{"attempt": attempt, "max_attempts": m.maxAttempts})
			m.logg.Debug(logCtx, "ledger unit lost version race")
		}
		if attempt == m.maxAttempts {
			break
		}
		if err := m.sleep(ctx, attempt); err != nil {
			return err
		}
	}

	m.metrics.IncExhausted()
	if m.logg != nil {
		m.logg.Warn(ctx, "ledger retry budget exhausted")
	}
	return fmt.Errorf("%w: %d attempts: %v", ErrTransientFailure, m.maxAttempts, lastErr)
}

// ApplyTx validates and writes one entry inside the caller's transaction.
// The caller owns commit, rollback and retry (use Atomically).
func (m *Mutator) ApplyTx(ctx context.Context, tx *gorm.DB, entry Entry) (*Result, error) {
	if err := entry.validate(); err != nil {
		m.metrics.IncRejection("invalid")
		return nil, err
	}

	repo := m.repo.WithTx(tx)
	account, err := repo.FindAccount(ctx, entry.AccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			m.metrics.IncRejection("account_not_found")
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	newBalance := account.Credits + entry.Amount
	if newBalance < 0 {
		m.metrics.IncRejection("insufficient_balance")
		return nil, insufficientBalance(account.Credits, -entry.Amount)
	}

	at := m.now().UTC()
	if account.LastEntryAt != nil && at.Before(*account.LastEntryAt) {
		at = account.LastEntryAt.UTC()
	}

	update := BalanceUpdate{
		AccountID:       account.ID,
		ExpectedVersion: account.Version,
		Credits:         newBalance,
		EntryAt:         at,
	}
	if entry.Context.AssignPlan {
		update.PlanID = entry.Context.PlanID
		update.PlanName = entry.Context.PlanName
	}

	swapped, err := repo.CompareAndSwapBalance(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}
	if !swapped {
		return nil, ErrConcurrentModification
	}

	txn := entry.transaction(account.Version+1, newBalance, at)
	if err := repo.AppendTransaction(ctx, &txn); err != nil {
		if db.IsUniqueViolation(err, sequenceConstraint) || db.IsUniqueViolation(err, sqliteSequenceIndex) {
			return nil, ErrConcurrentModification
		}
		return nil, fmt.Errorf("append transaction: %w", err)
	}

	m.metrics.IncEntry(string(entry.Type), string(entry.Context.Source))
	return &Result{
		Transaction:     txn,
		PreviousBalance: account.Credits,
		NewBalance:      newBalance,
	}, nil
}

// BalanceTx reads the current balance inside the caller's transaction.
func (m *Mutator) BalanceTx(ctx context.Context, tx *gorm.DB, accountID uuid.UUID) (int64, error) {
	account, err := m.repo.WithTx(tx).FindAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("load account: %w", err)
	}
	return account.Credits, nil
}

func (m *Mutator) sleep(ctx context.Context, attempt int) error {
	if m.baseDelay == 0 {
		return ctx.Err()
	}
	backoff := m.baseDelay * time.Duration(1<<uint(attempt-1))
	jitter := time.Duration(rand.Int63n(int64(m.baseDelay)))
	timer := time.NewTimer(backoff + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || db.IsSerializationFailure(err)
}
