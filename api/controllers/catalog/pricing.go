package catalog

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/quillcoach/credits-backend/api/middleware"
	"github.com/quillcoach/credits-backend/api/responses"
	"github.com/quillcoach/credits-backend/api/validators"
	"github.com/quillcoach/credits-backend/internal/pricing"
	"github.com/quillcoach/credits-backend/pkg/logger"
)

type pricingService interface {
	Get(ctx context.Context, trainerID uuid.UUID) (*pricing.PricingView, error)
	Update(ctx context.Context, trainerID uuid.UUID, input pricing.CostOverrides) (*pricing.PricingView, error)
}

type updatePricingRequest struct {
	AIEvaluationCost      *int64 `json:"aiEvaluationCost" validate:"omitempty,gte=0"`
	TrainerEvaluationCost *int64 `json:"trainerEvaluationCost" validate:"omitempty,gte=0"`
}

func GetPricing(svc pricingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trainerID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), trainerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// UpdatePricing overrides the caller's evaluation costs. Omitted fields keep
// their current value.
func UpdatePricing(svc pricingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trainerID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updatePricingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Update(r.Context(), trainerID, pricing.CostOverrides{
			AIEvaluationCost:      req.AIEvaluationCost,
			TrainerEvaluationCost: req.TrainerEvaluationCost,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
