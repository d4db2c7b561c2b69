package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/pkg/db"
	"github.com/quillcoach/credits-backend/pkg/db/dbtest"
	"github.com/quillcoach/credits-backend/pkg/enums"
)

type testLedger struct {
	conn    *gorm.DB
	repo    Repository
	mutator *Mutator
	service Service
	clock   *testClock
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLedger(t *testing.T) *testLedger {
	t.Helper()
	conn := dbtest.New(t)
	repo := NewRepository(conn)
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mutator, err := NewMutator(MutatorParams{
		Repository:     repo,
		TxRunner:       db.Wrap(conn),
		RetryBaseDelay: time.Millisecond,
		Clock:          clock.Now,
	})
	require.NoError(t, err)
	svc, err := NewService(repo, db.Wrap(conn))
	require.NoError(t, err)
	svc.(*service).now = clock.Now
	return &testLedger{conn: conn, repo: repo, mutator: mutator, service: svc, clock: clock}
}

func (l *testLedger) openAccount(t *testing.T, trainerID *uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := l.service.OpenAccount(context.Background(), OpenAccountInput{
		AccountID:   id,
		TrainerID:   trainerID,
		DisplayName: "Student " + id.String()[:8],
	})
	require.NoError(t, err)
	return id
}

func (l *testLedger) credit(t *testing.T, accountID uuid.UUID, amount int64) *Result {
	t.Helper()
	res, err := l.mutator.Apply(context.Background(), Entry{
		AccountID:   accountID,
		Type:        enums.TransactionTypePurchase,
		Amount:      amount,
		Description: "Plan purchase",
		Context:     EntryContext{Source: enums.TransactionSourceStripe},
	})
	require.NoError(t, err)
	return res
}

func spendEntry(accountID uuid.UUID, amount int64) Entry {
	return Entry{
		AccountID:   accountID,
		Type:        enums.TransactionTypeSpend,
		Amount:      -amount,
		Description: `AI evaluation for "Essay 1"`,
		Context:     EntryContext{Source: enums.TransactionSourceEvaluation},
	}
}
