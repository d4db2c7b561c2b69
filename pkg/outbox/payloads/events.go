package payloads

import (
	"github.com/google/uuid"

	"github.com/quillcoach/credits-backend/pkg/enums"
)

// EvaluationRequestedEvent is emitted once a submission's evaluation has been
// paid for. Only ai evaluations are forwarded to the trigger.
type EvaluationRequestedEvent struct {
	SubmissionID   uuid.UUID            `json:"submission_id"`
	StudentID      uuid.UUID            `json:"student_id"`
	TrainerID      *uuid.UUID           `json:"trainer_id,omitempty"`
	EvaluationType enums.EvaluationType `json:"evaluation_type"`
	Cost           int64                `json:"cost"`
	TransactionID  uuid.UUID            `json:"transaction_id"`
}

// CreditsPurchasedEvent lets receipt and reporting pipelines react to
// committed purchases.
type CreditsPurchasedEvent struct {
	AccountID     uuid.UUID               `json:"account_id"`
	TransactionID uuid.UUID               `json:"transaction_id"`
	Source        enums.TransactionSource `json:"source"`
	Credits       int64                   `json:"credits"`
	BalanceAfter  int64                   `json:"balance_after"`
	PlanID        *uuid.UUID              `json:"plan_id,omitempty"`
	PlanName      string                  `json:"plan_name,omitempty"`
}
