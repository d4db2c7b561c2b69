package funding

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/quillcoach/credits-backend/api/middleware"
	"github.com/quillcoach/credits-backend/api/responses"
	"github.com/quillcoach/credits-backend/api/validators"
	internalfunding "github.com/quillcoach/credits-backend/internal/funding"
	"github.com/quillcoach/credits-backend/internal/notifications"
	"github.com/quillcoach/credits-backend/pkg/logger"
)

// Service is the part of the funding module exposed over HTTP.
type Service interface {
	SubmitManualPaymentProof(ctx context.Context, studentID uuid.UUID, input internalfunding.ManualPaymentProofInput) (*notifications.NotificationView, error)
	ConfirmManualPayment(ctx context.Context, trainerID, notificationID uuid.UUID) (*internalfunding.PurchaseResult, error)
	RejectManualPayment(ctx context.Context, trainerID, notificationID uuid.UUID) error
	Adjust(ctx context.Context, input internalfunding.AdjustmentInput) (*internalfunding.AdjustmentResult, error)
}

type manualPaymentRequest struct {
	PlanID string `json:"planId" validate:"required,uuid"`
	Note   string `json:"note" validate:"max=500"`
}

type adjustmentRequest struct {
	Amount int64  `json:"amount" validate:"ne=0"`
	Reason string `json:"reason" validate:"required,notblank,max=500"`
}

// SubmitManualPayment records a student's off-platform payment claim and
// notifies the assigned trainer.
func SubmitManualPayment(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req manualPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.SubmitManualPaymentProof(r.Context(), studentID, internalfunding.ManualPaymentProofInput{
			PlanID: uuid.MustParse(req.PlanID),
			Note:   req.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

func ConfirmManualPayment(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trainerID, notificationID, err := trainerAndNotification(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ConfirmManualPayment(r.Context(), trainerID, notificationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			ctx := logg.WithAccountID(r.Context(), result.AccountID.String())
			ctx = logg.WithFields(ctx, map[string]any{
				"notification_id": notificationID.String(),
				"plan_id":         result.PlanID.String(),
				"credits":         result.Credits,
			})
			logg.Info(ctx, "manual payment confirmed")
		}
		responses.WriteSuccess(w, result)
	}
}

func RejectManualPayment(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trainerID, notificationID, err := trainerAndNotification(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.RejectManualPayment(r.Context(), trainerID, notificationID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"notificationId": notificationID.String()})
	}
}

// Adjust applies a signed correction to an assigned student's balance.
func Adjust(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trainerID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		studentID, err := validators.ParsePathUUID(r, "studentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req adjustmentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Adjust(r.Context(), internalfunding.AdjustmentInput{
			TrainerID: trainerID,
			StudentID: studentID,
			Amount:    req.Amount,
			Reason:    req.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func trainerAndNotification(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	trainerID, err := middleware.ActorID(r.Context())
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	notificationID, err := validators.ParsePathUUID(r, "notificationId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return trainerID, notificationID, nil
}
