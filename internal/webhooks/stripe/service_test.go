package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/internal/funding"
	"github.com/quillcoach/credits-backend/internal/ledger"
	"github.com/quillcoach/credits-backend/internal/notifications"
	"github.com/quillcoach/credits-backend/internal/plans"
	"github.com/quillcoach/credits-backend/pkg/db"
	"github.com/quillcoach/credits-backend/pkg/db/dbtest"
	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/enums"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
	"github.com/quillcoach/credits-backend/pkg/outbox"
)

type fixture struct {
	conn      *gorm.DB
	svc       *Service
	ledger    ledger.Service
	studentID uuid.UUID
	plan      models.Plan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.New(t)
	client := db.Wrap(conn)
	ledgerRepo := ledger.NewRepository(conn)
	mutator, err := ledger.NewMutator(ledger.MutatorParams{Repository: ledgerRepo, TxRunner: client, RetryBaseDelay: time.Millisecond})
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledgerRepo, client)
	require.NoError(t, err)
	notificationRepo := notifications.NewRepository(conn)
	notificationSvc, err := notifications.NewService(notificationRepo)
	require.NoError(t, err)
	planRepo := plans.NewRepository(conn)
	fundingSvc, err := funding.NewService(funding.ServiceParams{
		Mutator:       mutator,
		Accounts:      ledgerSvc,
		Plans:         planRepo,
		Notifications: notificationRepo,
		Proofs:        notificationSvc,
		Outbox:        outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Purchases: fundingSvc,
		Atomic:    mutator,
		Events:    NewRepository(conn),
	})
	require.NoError(t, err)

	trainerID := uuid.New()
	f := &fixture{conn: conn, svc: svc, ledger: ledgerSvc, studentID: uuid.New()}
	_, err = ledgerSvc.OpenAccount(context.Background(), ledger.OpenAccountInput{AccountID: f.studentID, TrainerID: &trainerID, DisplayName: "Grace"})
	require.NoError(t, err)

	now := time.Now().UTC()
	f.plan = models.Plan{
		ID: uuid.New(), TrainerID: trainerID, Name: "Pro Pack", Credits: 200,
		Price: decimal.RequireFromString("49.00"), Currency: "USD", Active: true,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, planRepo.Create(context.Background(), &f.plan))
	return f
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	view, err := f.ledger.GetBalance(context.Background(), f.studentID)
	require.NoError(t, err)
	return view.Credits
}

func checkoutEvent(t *testing.T, eventID string, metadata map[string]string) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(&stripe.CheckoutSession{ID: "cs_test", Metadata: metadata})
	require.NoError(t, err)
	return &stripe.Event{
		ID:   eventID,
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: raw},
	}
}

func (f *fixture) metadata(credits string) map[string]string {
	return map[string]string{
		"studentId": f.studentID.String(),
		"planId":    f.plan.ID.String(),
		"credits":   credits,
	}
}

func TestHandleEventCreditsCheckoutOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := checkoutEvent(t, "evt_1", f.metadata("200"))

	require.NoError(t, f.svc.HandleEvent(ctx, event))
	require.NoError(t, f.svc.HandleEvent(ctx, event))

	assert.Equal(t, int64(200), f.balance(t))

	var txs []models.CreditTransaction
	require.NoError(t, f.conn.Where("account_id = ?", f.studentID).Find(&txs).Error)
	require.Len(t, txs, 1)
	assert.Equal(t, enums.TransactionTypePurchase, txs[0].Type)
	assert.Equal(t, enums.TransactionSourceStripe, txs[0].Source)
	require.NotNil(t, txs[0].SourceRef)
	assert.Equal(t, "evt_1", *txs[0].SourceRef)
	assert.Equal(t, `Purchased plan "Pro Pack" (200 credits)`, txs[0].Description)

	view, err := f.ledger.GetBalance(ctx, f.studentID)
	require.NoError(t, err)
	require.NotNil(t, view.CurrentPlan)
	assert.Equal(t, f.plan.ID, view.CurrentPlan.ID)

	row, err := NewRepository(f.conn).Find(ctx, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "stripe", row.Provider)
}

func TestHandleEventUsesMetadataCredits(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.HandleEvent(context.Background(), checkoutEvent(t, "evt_bonus", f.metadata("250"))))
	assert.Equal(t, int64(250), f.balance(t))
}

func TestHandleEventIgnoresOtherTypes(t *testing.T) {
	f := newFixture(t)
	event := checkoutEvent(t, "evt_other", f.metadata("200"))
	event.Type = stripe.EventTypeCustomerSubscriptionCreated

	require.NoError(t, f.svc.HandleEvent(context.Background(), event))
	assert.Equal(t, int64(0), f.balance(t))
	row, err := NewRepository(f.conn).Find(context.Background(), "evt_other")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestHandleEventRejectsMalformedMetadata(t *testing.T) {
	f := newFixture(t)
	cases := map[string]map[string]string{
		"missing student": {"planId": f.plan.ID.String(), "credits": "10"},
		"bad plan":        {"studentId": f.studentID.String(), "planId": "nope", "credits": "10"},
		"zero credits":    {"studentId": f.studentID.String(), "planId": f.plan.ID.String(), "credits": "0"},
		"text credits":    {"studentId": f.studentID.String(), "planId": f.plan.ID.String(), "credits": "ten"},
	}
	for name, metadata := range cases {
		t.Run(name, func(t *testing.T) {
			err := f.svc.HandleEvent(context.Background(), checkoutEvent(t, "evt_"+name, metadata))
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
			assert.False(t, errors.Is(err, ErrFulfillmentFailed))
		})
	}
	assert.Equal(t, int64(0), f.balance(t))
}

func TestHandleEventMissingPlanRollsBackDedupRecord(t *testing.T) {
	f := newFixture(t)
	metadata := f.metadata("200")
	metadata["planId"] = uuid.NewString()

	err := f.svc.HandleEvent(context.Background(), checkoutEvent(t, "evt_missing_plan", metadata))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFulfillmentFailed))
	assert.Equal(t, int64(0), f.balance(t))

	row, err := NewRepository(f.conn).Find(context.Background(), "evt_missing_plan")
	require.NoError(t, err)
	assert.Nil(t, row, "a failed fulfillment must stay replayable")
}

func TestHandleEventUnknownAccountFails(t *testing.T) {
	f := newFixture(t)
	metadata := f.metadata("200")
	metadata["studentId"] = uuid.NewString()

	err := f.svc.HandleEvent(context.Background(), checkoutEvent(t, "evt_ghost", metadata))
	assert.True(t, errors.Is(err, ErrFulfillmentFailed))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected error without dependencies")
	}
}

func TestProcessedReflectsCommittedEventsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	done, err := f.svc.Processed(ctx, "evt_paid")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, f.svc.HandleEvent(ctx, checkoutEvent(t, "evt_paid", f.metadata("200"))))
	done, err = f.svc.Processed(ctx, "evt_paid")
	require.NoError(t, err)
	assert.True(t, done)

	metadata := f.metadata("200")
	metadata["planId"] = uuid.NewString()
	require.Error(t, f.svc.HandleEvent(ctx, checkoutEvent(t, "evt_rolled_back", metadata)))
	done, err = f.svc.Processed(ctx, "evt_rolled_back")
	require.NoError(t, err)
	assert.False(t, done, "a rolled back unit leaves no processed record")
}
