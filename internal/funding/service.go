package funding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/internal/ledger"
	"github.com/quillcoach/credits-backend/internal/notifications"
	"github.com/quillcoach/credits-backend/internal/plans"
	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/logger"
	"github.com/quillcoach/credits-backend/pkg/outbox"
)

// Service credits accounts from payments and applies trainer adjustments.
type Service interface {
	PurchaseTx(ctx context.Context, tx *gorm.DB, input PurchaseInput) (*PurchaseResult, error)
	SubmitManualPaymentProof(ctx context.Context, studentID uuid.UUID, input ManualPaymentProofInput) (*notifications.NotificationView, error)
	ConfirmManualPayment(ctx context.Context, trainerID, notificationID uuid.UUID) (*PurchaseResult, error)
	RejectManualPayment(ctx context.Context, trainerID, notificationID uuid.UUID) error
	Adjust(ctx context.Context, input AdjustmentInput) (*AdjustmentResult, error)
}

type mutator interface {
	Atomically(ctx context.Context, fn func(tx *gorm.DB) error) error
	Apply(ctx context.Context, entry ledger.Entry) (*ledger.Result, error)
	ApplyTx(ctx context.Context, tx *gorm.DB, entry ledger.Entry) (*ledger.Result, error)
}

type accountReader interface {
	GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	AuthorizeTrainer(ctx context.Context, trainerID, accountID uuid.UUID) (*models.Account, error)
}

type proofCreator interface {
	CreateManualPaymentProof(ctx context.Context, trainerID uuid.UUID, proof models.ManualPaymentContext) (*notifications.NotificationView, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams wires the funding service.
type ServiceParams struct {
	Mutator       mutator
	Accounts      accountReader
	Plans         plans.Repository
	Notifications notifications.Repository
	Proofs        proofCreator
	Outbox        eventEmitter
	Logger        *logger.Logger
}

type service struct {
	mutator       mutator
	accounts      accountReader
	plans         plans.Repository
	notifications notifications.Repository
	proofs        proofCreator
	outbox        eventEmitter
	logg          *logger.Logger
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Mutator == nil {
		return nil, fmt.Errorf("balance mutator required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("account reader required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plans repository required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Proofs == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &service{
		mutator:       params.Mutator,
		accounts:      params.Accounts,
		plans:         params.Plans,
		notifications: params.Notifications,
		proofs:        params.Proofs,
		outbox:        params.Outbox,
		logg:          params.Logger,
		now:           time.Now,
	}, nil
}
