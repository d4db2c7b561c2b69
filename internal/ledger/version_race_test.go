package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/pkg/db"
	"github.com/quillcoach/credits-backend/pkg/db/models"
)

// racingRepository commits a competing version bump right before the
// mutator's conditional write, for the first n writes.
type racingRepository struct {
	Repository
	races int
	swaps []bool
}

func (r *racingRepository) WithTx(tx *gorm.DB) Repository {
	return &racingTx{Repository: r.Repository.WithTx(tx), parent: r, tx: tx}
}

type racingTx struct {
	Repository
	parent *racingRepository
	tx     *gorm.DB
}

func (r *racingTx) CompareAndSwapBalance(ctx context.Context, update BalanceUpdate) (bool, error) {
	if r.parent.races > 0 {
		r.parent.races--
		err := r.tx.Model(&models.Account{}).
			Where("id = ?", update.AccountID).
			Update("version", gorm.Expr("version + 1")).Error
		if err != nil {
			return false, err
		}
	}
	swapped, err := r.Repository.CompareAndSwapBalance(ctx, update)
	r.parent.swaps = append(r.parent.swaps, swapped)
	return swapped, err
}

func TestCompareAndSwapBalanceRejectsStaleVersion(t *testing.T) {
	l := newTestLedger(t)
	accountID := l.openAccount(t, nil)
	l.credit(t, accountID, 50)
	ctx := context.Background()

	account, err := l.repo.FindAccount(ctx, accountID)
	require.NoError(t, err)

	swapped, err := l.repo.CompareAndSwapBalance(ctx, BalanceUpdate{
		AccountID:       accountID,
		ExpectedVersion: account.Version - 1,
		Credits:         999,
		EntryAt:         l.clock.Now(),
	})
	require.NoError(t, err)
	assert.False(t, swapped)

	after, err := l.repo.FindAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), after.Credits)
	assert.Equal(t, account.Version, after.Version)
}

func TestMutatorRetriesStaleVersionAgainstDatabase(t *testing.T) {
	l := newTestLedger(t)
	accountID := l.openAccount(t, nil)
	l.credit(t, accountID, 40)

	racing := &racingRepository{Repository: l.repo, races: 1}
	mutator, err := NewMutator(MutatorParams{
		Repository:     racing,
		TxRunner:       db.Wrap(l.conn),
		RetryBaseDelay: time.Millisecond,
		Clock:          l.clock.Now,
	})
	require.NoError(t, err)

	res, err := mutator.Apply(context.Background(), spendEntry(accountID, 15))
	require.NoError(t, err)
	assert.Equal(t, int64(25), res.NewBalance)
	assert.Equal(t, []bool{false, true}, racing.swaps)

	log, err := l.repo.LoadLog(context.Background(), accountID)
	require.NoError(t, err)
	require.Len(t, log, 2, "the losing attempt left no transaction behind")
	assert.Equal(t, int64(25), log[1].BalanceAfter)

	account, err := l.repo.FindAccount(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), account.Credits)
	assert.Equal(t, int64(2), account.Version)
}

func TestMutatorExhaustsOnPersistentStaleVersion(t *testing.T) {
	l := newTestLedger(t)
	accountID := l.openAccount(t, nil)
	l.credit(t, accountID, 40)

	racing := &racingRepository{Repository: l.repo, races: 100}
	mutator, err := NewMutator(MutatorParams{
		Repository:     racing,
		TxRunner:       db.Wrap(l.conn),
		RetryBaseDelay: time.Millisecond,
		Clock:          l.clock.Now,
	})
	require.NoError(t, err)

	_, err = mutator.Apply(context.Background(), spendEntry(accountID, 15))
	require.ErrorIs(t, err, ErrTransientFailure)

	view, err := l.service.GetBalance(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), view.Credits)
}
