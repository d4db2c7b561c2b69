package funding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/internal/ledger"
	"github.com/quillcoach/credits-backend/internal/notifications"
	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/enums"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
)

const maxNoteLen = 500

// ManualPaymentProofInput is a student's claim of an off-platform payment.
type ManualPaymentProofInput struct {
	PlanID uuid.UUID
	Note   string
}

func (s *service) SubmitManualPaymentProof(ctx context.Context, studentID uuid.UUID, input ManualPaymentProofInput) (*notifications.NotificationView, error) {
	if input.PlanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	note := strings.TrimSpace(input.Note)
	if len(note) > maxNoteLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "note is too long")
	}

	account, err := s.accounts.GetAccount(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if account.TrainerID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no trainer is assigned to this account")
	}

	plan, err := s.plans.FindByID(ctx, input.PlanID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan == nil || !plan.Active {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	if plan.TrainerID != *account.TrainerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan is not offered by your trainer")
	}

	return s.proofs.CreateManualPaymentProof(ctx, *account.TrainerID, models.ManualPaymentContext{
		StudentID:   account.ID,
		PlanID:      plan.ID,
		PlanName:    plan.Name,
		Credits:     plan.Credits,
		StudentName: account.DisplayName,
		Note:        note,
	})
}

// ConfirmManualPayment credits the student named in a payment proof and
// consumes the notification in the same unit, so a proof pays out once.
func (s *service) ConfirmManualPayment(ctx context.Context, trainerID, notificationID uuid.UUID) (*PurchaseResult, error) {
	if trainerID == uuid.Nil || notificationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "trainer and notification are required")
	}

	var result *PurchaseResult
	err := s.mutator.Atomically(ctx, func(tx *gorm.DB) error {
		repo := s.notifications.WithTx(tx)
		notification, err := repo.FindForRecipient(ctx, trainerID, notificationID, enums.NotificationTypeManualPaymentProof)
		if err != nil {
			return fmt.Errorf("load notification: %w", err)
		}
		if notification == nil {
			return ledger.ErrReferenceNotFound
		}

		var proof models.ManualPaymentContext
		if err := json.Unmarshal(notification.Context, &proof); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed payment proof")
		}

		actor := trainerID
		res, err := s.PurchaseTx(ctx, tx, PurchaseInput{
			AccountID: proof.StudentID,
			PlanID:    proof.PlanID,
			Credits:   proof.Credits,
			Source:    enums.TransactionSourceManualPayment,
			SourceRef: notification.ID.String(),
			ActorID:   &actor,
		})
		if err != nil {
			if errors.Is(err, ledger.ErrAccountNotFound) {
				return ledger.ErrReferenceNotFound
			}
			return err
		}

		deleted, err := repo.DeleteForRecipient(ctx, trainerID, notification.ID)
		if err != nil {
			return fmt.Errorf("consume notification: %w", err)
		}
		if deleted != 1 {
			return ledger.ErrReferenceNotFound
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"notification_id": notificationID.String(),
			"account_id":      result.AccountID.String(),
			"transaction_id":  result.TransactionID.String(),
			"credits":         result.Credits,
		})
		s.logg.Info(logCtx, "manual payment confirmed")
	}
	return result, nil
}

// RejectManualPayment discards a payment proof without crediting anyone.
func (s *service) RejectManualPayment(ctx context.Context, trainerID, notificationID uuid.UUID) error {
	if trainerID == uuid.Nil || notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "trainer and notification are required")
	}
	notification, err := s.notifications.FindForRecipient(ctx, trainerID, notificationID, enums.NotificationTypeManualPaymentProof)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load notification")
	}
	if notification == nil {
		return ledger.ErrReferenceNotFound
	}
	deleted, err := s.notifications.DeleteForRecipient(ctx, trainerID, notificationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete notification")
	}
	if deleted == 0 {
		return ledger.ErrReferenceNotFound
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "notification_id", notificationID.String()), "manual payment rejected")
	}
	return nil
}
