package funding

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/internal/ledger"
	"github.com/quillcoach/credits-backend/pkg/enums"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
	"github.com/quillcoach/credits-backend/pkg/outbox"
	"github.com/quillcoach/credits-backend/pkg/outbox/payloads"
)

// PurchaseInput credits an account for a plan bought through any channel.
type PurchaseInput struct {
	AccountID uuid.UUID
	PlanID    uuid.UUID
	// Credits overrides the plan's credit count when positive.
	Credits   int64
	Source    enums.TransactionSource
	SourceRef string
	ActorID   *uuid.UUID
}

type PurchaseResult struct {
	TransactionID uuid.UUID `json:"transactionId"`
	AccountID     uuid.UUID `json:"accountId"`
	PlanID        uuid.UUID `json:"planId"`
	PlanName      string    `json:"planName"`
	Credits       int64     `json:"credits"`
	NewBalance    int64     `json:"newBalance"`
}

// PurchaseTx applies a purchase inside the caller's atomic unit, assigns the
// plan to the account and queues a credits_purchased event.
func (s *service) PurchaseTx(ctx context.Context, tx *gorm.DB, input PurchaseInput) (*PurchaseResult, error) {
	if input.AccountID == uuid.Nil || input.PlanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account and plan are required")
	}
	if input.Credits < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credits must be positive")
	}

	plan, err := s.plans.WithTx(tx).FindByID(ctx, input.PlanID)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	if plan == nil {
		return nil, ledger.ErrReferenceNotFound
	}

	credits := input.Credits
	if credits == 0 {
		credits = plan.Credits
	}
	trainerID := plan.TrainerID
	planID := plan.ID
	price := plan.Price

	res, err := s.mutator.ApplyTx(ctx, tx, ledger.Entry{
		AccountID:   input.AccountID,
		Type:        enums.TransactionTypePurchase,
		Amount:      credits,
		Description: fmt.Sprintf("Purchased plan %q (%d credits)", plan.Name, credits),
		Context: ledger.EntryContext{
			TrainerID:  &trainerID,
			PlanID:     &planID,
			PlanName:   plan.Name,
			PlanPrice:  &price,
			Currency:   plan.Currency,
			Source:     input.Source,
			SourceRef:  input.SourceRef,
			ActorID:    input.ActorID,
			AssignPlan: true,
		},
	})
	if err != nil {
		return nil, err
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventCreditsPurchased,
		AggregateType: enums.AggregateAccount,
		AggregateID:   input.AccountID,
		Data: payloads.CreditsPurchasedEvent{
			AccountID:     input.AccountID,
			TransactionID: res.Transaction.ID,
			Source:        input.Source,
			Credits:       credits,
			BalanceAfter:  res.NewBalance,
			PlanID:        &planID,
			PlanName:      plan.Name,
		},
		OccurredAt: res.Transaction.CreatedAt,
	}
	if input.ActorID != nil {
		event.Actor = &outbox.Actor{UserID: *input.ActorID, Role: enums.UserRoleTrainer}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("emit purchase event: %w", err)
	}

	return &PurchaseResult{
		TransactionID: res.Transaction.ID,
		AccountID:     input.AccountID,
		PlanID:        plan.ID,
		PlanName:      plan.Name,
		Credits:       credits,
		NewBalance:    res.NewBalance,
	}, nil
}
