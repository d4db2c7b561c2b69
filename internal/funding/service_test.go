package funding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

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

type harness struct {
	conn          *gorm.DB
	svc           Service
	ledger        ledger.Service
	notifications notifications.Service
	plans         plans.Repository
	trainerID     uuid.UUID
	studentID     uuid.UUID
	plan          models.Plan
}

func newHarness(t *testing.T) *harness {
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

	svc, err := NewService(ServiceParams{
		Mutator:       mutator,
		Accounts:      ledgerSvc,
		Plans:         planRepo,
		Notifications: notificationRepo,
		Proofs:        notificationSvc,
		Outbox:        outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)

	h := &harness{
		conn:          conn,
		svc:           svc,
		ledger:        ledgerSvc,
		notifications: notificationSvc,
		plans:         planRepo,
		trainerID:     uuid.New(),
		studentID:     uuid.New(),
	}
	_, err = ledgerSvc.OpenAccount(context.Background(), ledger.OpenAccountInput{
		AccountID: h.studentID, TrainerID: &h.trainerID, DisplayName: "Ada",
	})
	require.NoError(t, err)
	h.plan = h.createPlan(t, h.trainerID, "Starter", 100)
	return h
}

func (h *harness) createPlan(t *testing.T, trainerID uuid.UUID, name string, credits int64) models.Plan {
	t.Helper()
	now := time.Now().UTC()
	plan := models.Plan{
		ID: uuid.New(), TrainerID: trainerID, Name: name, Credits: credits,
		Price: decimal.RequireFromString("19.99"), Currency: "USD", Active: true,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, h.plans.Create(context.Background(), &plan))
	return plan
}

func (h *harness) balance(t *testing.T) int64 {
	t.Helper()
	view, err := h.ledger.GetBalance(context.Background(), h.studentID)
	require.NoError(t, err)
	return view.Credits
}

func (h *harness) submitProof(t *testing.T) uuid.UUID {
	t.Helper()
	view, err := h.svc.SubmitManualPaymentProof(context.Background(), h.studentID, ManualPaymentProofInput{PlanID: h.plan.ID, Note: "paid cash"})
	require.NoError(t, err)
	return view.ID
}

func TestConfirmManualPaymentCreditsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	notificationID := h.submitProof(t)

	res, err := h.svc.ConfirmManualPayment(ctx, h.trainerID, notificationID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Credits)
	assert.Equal(t, int64(100), res.NewBalance)
	assert.Equal(t, "Starter", res.PlanName)

	_, err = h.svc.ConfirmManualPayment(ctx, h.trainerID, notificationID)
	assert.True(t, errors.Is(err, ledger.ErrReferenceNotFound))
	assert.Equal(t, int64(100), h.balance(t))

	view, err := h.ledger.GetBalance(ctx, h.studentID)
	require.NoError(t, err)
	require.NotNil(t, view.CurrentPlan)
	assert.Equal(t, h.plan.ID, view.CurrentPlan.ID)

	var txn models.CreditTransaction
	require.NoError(t, h.conn.Where("account_id = ?", h.studentID).First(&txn).Error)
	assert.Equal(t, enums.TransactionSourceManualPayment, txn.Source)
	assert.Equal(t, `Purchased plan "Starter" (100 credits)`, txn.Description)
	require.NotNil(t, txn.TrainerID)
	assert.Equal(t, h.trainerID, *txn.TrainerID)

	var events []models.OutboxEvent
	require.NoError(t, h.conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventCreditsPurchased, events[0].EventType)
	assert.Equal(t, h.studentID, events[0].AggregateID)
}

func TestConcurrentConfirmationsCreditOnce(t *testing.T) {
	h := newHarness(t)
	notificationID := h.submitProof(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		notFound  int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.ConfirmManualPayment(context.Background(), h.trainerID, notificationID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ledger.ErrReferenceNotFound):
				notFound++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, notFound)
	assert.Equal(t, int64(100), h.balance(t))
}

func TestConfirmManualPaymentMissingPlanRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	notificationID := h.submitProof(t)
	require.NoError(t, h.conn.Where("id = ?", h.plan.ID).Delete(&models.Plan{}).Error)

	_, err := h.svc.ConfirmManualPayment(ctx, h.trainerID, notificationID)
	assert.True(t, errors.Is(err, ledger.ErrReferenceNotFound))
	assert.Equal(t, int64(0), h.balance(t))

	list, err := h.notifications.List(ctx, notifications.ListParams{RecipientID: h.trainerID})
	require.NoError(t, err)
	assert.Len(t, list.Items, 1)
}

func TestConfirmManualPaymentOtherTrainer(t *testing.T) {
	h := newHarness(t)
	notificationID := h.submitProof(t)

	_, err := h.svc.ConfirmManualPayment(context.Background(), uuid.New(), notificationID)
	assert.True(t, errors.Is(err, ledger.ErrReferenceNotFound))
	assert.Equal(t, int64(0), h.balance(t))
}

func TestRejectManualPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	notificationID := h.submitProof(t)

	require.NoError(t, h.svc.RejectManualPayment(ctx, h.trainerID, notificationID))
	assert.True(t, errors.Is(h.svc.RejectManualPayment(ctx, h.trainerID, notificationID), ledger.ErrReferenceNotFound))
	_, err := h.svc.ConfirmManualPayment(ctx, h.trainerID, notificationID)
	assert.True(t, errors.Is(err, ledger.ErrReferenceNotFound))
	assert.Equal(t, int64(0), h.balance(t))
}

func TestSubmitManualPaymentProofChecksPlanOwner(t *testing.T) {
	h := newHarness(t)
	foreign := h.createPlan(t, uuid.New(), "Foreign", 50)

	_, err := h.svc.SubmitManualPaymentProof(context.Background(), h.studentID, ManualPaymentProofInput{PlanID: foreign.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.SubmitManualPaymentProof(context.Background(), h.studentID, ManualPaymentProofInput{PlanID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSubmitManualPaymentProofRequiresTrainer(t *testing.T) {
	h := newHarness(t)
	loner := uuid.New()
	_, err := h.ledger.OpenAccount(context.Background(), ledger.OpenAccountInput{AccountID: loner, DisplayName: "Solo"})
	require.NoError(t, err)

	_, err = h.svc.SubmitManualPaymentProof(context.Background(), loner, ManualPaymentProofInput{PlanID: h.plan.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestAdjustStoresReasonVerbatim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reason := "Bonus for completing the spring workshop"

	res, err := h.svc.Adjust(ctx, AdjustmentInput{TrainerID: h.trainerID, StudentID: h.studentID, Amount: 15, Reason: reason})
	require.NoError(t, err)
	assert.Equal(t, int64(15), res.NewBalance)

	res, err = h.svc.Adjust(ctx, AdjustmentInput{TrainerID: h.trainerID, StudentID: h.studentID, Amount: -5, Reason: "Correction"})
	require.NoError(t, err)
	assert.Equal(t, int64(15), res.PreviousBalance)
	assert.Equal(t, int64(10), res.NewBalance)

	page, err := h.ledger.ListTransactions(ctx, h.studentID, ledger.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Correction", page.Items[0].Description)
	assert.Equal(t, reason, page.Items[1].Description)
	assert.Equal(t, enums.TransactionTypeAdjustment, page.Items[1].Type)
}

func TestAdjustCannotOverdraw(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Adjust(context.Background(), AdjustmentInput{TrainerID: h.trainerID, StudentID: h.studentID, Amount: -1, Reason: "Clawback"})
	assert.True(t, errors.Is(err, ledger.ErrInsufficientBalance))
	assert.Equal(t, int64(0), h.balance(t))
}

func TestAdjustValidationAndAccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	long := make([]byte, 501)
	for i := range long {
		long[i] = 'a'
	}

	cases := map[string]AdjustmentInput{
		"zero amount":  {TrainerID: h.trainerID, StudentID: h.studentID, Amount: 0, Reason: "noop"},
		"blank reason": {TrainerID: h.trainerID, StudentID: h.studentID, Amount: 5, Reason: "  "},
		"long reason":  {TrainerID: h.trainerID, StudentID: h.studentID, Amount: 5, Reason: string(long)},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.Adjust(ctx, input)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}

	_, err := h.svc.Adjust(ctx, AdjustmentInput{TrainerID: uuid.New(), StudentID: h.studentID, Amount: 5, Reason: "sneaky"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}
