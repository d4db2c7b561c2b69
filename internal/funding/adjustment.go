package funding

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/quillcoach/credits-backend/internal/ledger"
	"github.com/quillcoach/credits-backend/pkg/enums"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
)

const maxReasonLen = 500

// AdjustmentInput is a trainer's manual credit correction.
type AdjustmentInput struct {
	TrainerID uuid.UUID
	StudentID uuid.UUID
	Amount    int64
	Reason    string
}

type AdjustmentResult struct {
	TransactionID   uuid.UUID `json:"transactionId"`
	AccountID       uuid.UUID `json:"accountId"`
	Amount          int64     `json:"amount"`
	PreviousBalance int64     `json:"previousBalance"`
	NewBalance      int64     `json:"newBalance"`
}

func (s *service) Adjust(ctx context.Context, input AdjustmentInput) (*AdjustmentResult, error) {
	if input.Amount == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be zero")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if len(reason) > maxReasonLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason must be at most 500 characters")
	}
	if _, err := s.accounts.AuthorizeTrainer(ctx, input.TrainerID, input.StudentID); err != nil {
		return nil, err
	}

	trainerID := input.TrainerID
	studentID := input.StudentID
	res, err := s.mutator.Apply(ctx, ledger.Entry{
		AccountID:   input.StudentID,
		Type:        enums.TransactionTypeAdjustment,
		Amount:      input.Amount,
		Description: input.Reason,
		Context: ledger.EntryContext{
			TrainerID: &trainerID,
			StudentID: &studentID,
			Source:    enums.TransactionSourceAdjustment,
			ActorID:   &trainerID,
		},
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"account_id": input.StudentID.String(),
			"trainer_id": input.TrainerID.String(),
			"amount":     input.Amount,
		})
		s.logg.Info(logCtx, "manual adjustment applied")
	}
	return &AdjustmentResult{
		TransactionID:   res.Transaction.ID,
		AccountID:       input.StudentID,
		Amount:          input.Amount,
		PreviousBalance: res.PreviousBalance,
		NewBalance:      res.NewBalance,
	}, nil
}
