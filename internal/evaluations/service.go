package evaluations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/internal/ledger"
	"github.com/quillcoach/credits-backend/internal/submissions"
	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/enums"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
	"github.com/quillcoach/credits-backend/pkg/logger"
	"github.com/quillcoach/credits-backend/pkg/outbox"
	"github.com/quillcoach/credits-backend/pkg/outbox/payloads"
)

// Service pays for submission evaluations out of the student's credits.
type Service interface {
	RequestEvaluation(ctx context.Context, input RequestInput) (*Receipt, error)
}

type RequestInput struct {
	StudentID      uuid.UUID
	SubmissionID   uuid.UUID
	EvaluationType enums.EvaluationType
}

type Receipt struct {
	Accepted       bool                 `json:"accepted"`
	SubmissionID   uuid.UUID            `json:"submissionId"`
	EvaluationType enums.EvaluationType `json:"evaluationType"`
	Cost           int64                `json:"cost"`
	NewBalance     int64                `json:"newBalance"`
	TransactionID  *uuid.UUID           `json:"transactionId,omitempty"`
}

type mutator interface {
	Atomically(ctx context.Context, fn func(tx *gorm.DB) error) error
	ApplyTx(ctx context.Context, tx *gorm.DB, entry ledger.Entry) (*ledger.Result, error)
	BalanceTx(ctx context.Context, tx *gorm.DB, accountID uuid.UUID) (int64, error)
}

type accountReader interface {
	GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
}

type costLookup interface {
	CostFor(ctx context.Context, trainerID *uuid.UUID, evaluationType enums.EvaluationType) (int64, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	Mutator     mutator
	Accounts    accountReader
	Pricing     costLookup
	Submissions submissions.Repository
	Outbox      eventEmitter
	Logger      *logger.Logger
}

type service struct {
	mutator     mutator
	accounts    accountReader
	pricing     costLookup
	submissions submissions.Repository
	outbox      eventEmitter
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Mutator == nil {
		return nil, fmt.Errorf("balance mutator required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("account reader required")
	}
	if params.Pricing == nil {
		return nil, fmt.Errorf("pricing service required")
	}
	if params.Submissions == nil {
		return nil, fmt.Errorf("submissions repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &service{
		mutator:     params.Mutator,
		accounts:    params.Accounts,
		pricing:     params.Pricing,
		submissions: params.Submissions,
		outbox:      params.Outbox,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

// RequestEvaluation debits the evaluation price and marks the submission in
// one atomic unit. An insufficient balance leaves both untouched. For ai
// evaluations the trigger runs after commit from the outbox, so its failures
// never reach the ledger.
func (s *service) RequestEvaluation(ctx context.Context, input RequestInput) (*Receipt, error) {
	if input.StudentID == uuid.Nil || input.SubmissionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "student and submission are required")
	}
	if !input.EvaluationType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid evaluation type")
	}

	account, err := s.accounts.GetAccount(ctx, input.StudentID)
	if err != nil {
		return nil, err
	}
	cost, err := s.pricing.CostFor(ctx, account.TrainerID, input.EvaluationType)
	if err != nil {
		return nil, err
	}

	var receipt *Receipt
	err = s.mutator.Atomically(ctx, func(tx *gorm.DB) error {
		receipt = nil
		subs := s.submissions.WithTx(tx)
		submission, err := subs.FindByID(ctx, input.SubmissionID)
		if err != nil {
			return fmt.Errorf("load submission: %w", err)
		}
		if submission == nil || submission.StudentID != input.StudentID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "submission not found")
		}
		if submission.EvaluationType != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "evaluation already requested")
		}

		trainerID := submission.TrainerID
		if trainerID == nil {
			trainerID = account.TrainerID
		}

		out := &Receipt{
			Accepted:       true,
			SubmissionID:   submission.ID,
			EvaluationType: input.EvaluationType,
			Cost:           cost,
		}
		requestedAt := s.now().UTC()
		var transactionID uuid.UUID
		if cost > 0 {
			res, err := s.mutator.ApplyTx(ctx, tx, ledger.Entry{
				AccountID:   input.StudentID,
				Type:        enums.TransactionTypeSpend,
				Amount:      -cost,
				Description: fmt.Sprintf("%s for %q", input.EvaluationType.Label(), submission.TestName),
				Context: ledger.EntryContext{
					TrainerID: trainerID,
					Source:    enums.TransactionSourceEvaluation,
					SourceRef: submission.ID.String(),
					ActorID:   &input.StudentID,
				},
			})
			if err != nil {
				return err
			}
			transactionID = res.Transaction.ID
			requestedAt = res.Transaction.CreatedAt
			out.NewBalance = res.NewBalance
			out.TransactionID = &transactionID
		} else {
			balance, err := s.mutator.BalanceTx(ctx, tx, input.StudentID)
			if err != nil {
				return err
			}
			out.NewBalance = balance
		}

		marked, err := subs.MarkEvaluationRequested(ctx, submissions.EvaluationMark{
			SubmissionID:   submission.ID,
			EvaluationType: input.EvaluationType,
			Cost:           cost,
			RequestedAt:    requestedAt,
		})
		if err != nil {
			return fmt.Errorf("mark submission: %w", err)
		}
		if !marked {
			return pkgerrors.New(pkgerrors.CodeConflict, "evaluation already requested")
		}

		if input.EvaluationType == enums.EvaluationTypeAI {
			err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventEvaluationRequested,
				AggregateType: enums.AggregateSubmission,
				AggregateID:   submission.ID,
				Actor:         &outbox.Actor{UserID: input.StudentID, Role: enums.UserRoleStudent},
				Data: payloads.EvaluationRequestedEvent{
					SubmissionID:   submission.ID,
					StudentID:      input.StudentID,
					TrainerID:      trainerID,
					EvaluationType: input.EvaluationType,
					Cost:           cost,
					TransactionID:  transactionID,
				},
				OccurredAt: requestedAt,
			})
			if err != nil {
				return fmt.Errorf("emit evaluation event: %w", err)
			}
		}
		receipt = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"submission_id":   receipt.SubmissionID.String(),
			"evaluation_type": string(receipt.EvaluationType),
			"cost":            receipt.Cost,
		})
		s.logg.Info(s.logg.WithAccountID(logCtx, input.StudentID.String()), "evaluation requested")
	}
	return receipt, nil
}
