package evaluations

import (
	"context"
	"net/http"

	"github.com/quillcoach/credits-backend/api/middleware"
	"github.com/quillcoach/credits-backend/api/responses"
	"github.com/quillcoach/credits-backend/api/validators"
	internalevaluations "github.com/quillcoach/credits-backend/internal/evaluations"
	"github.com/quillcoach/credits-backend/pkg/enums"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
	"github.com/quillcoach/credits-backend/pkg/logger"
)

type requester interface {
	RequestEvaluation(ctx context.Context, input internalevaluations.RequestInput) (*internalevaluations.Receipt, error)
}

type requestEvaluationBody struct {
	EvaluationType string `json:"evaluationType" validate:"required"`
}

// RequestEvaluation debits the student for an evaluation of one of their
// submissions. A short balance is reported as 402 with the current balance
// and the required cost.
func RequestEvaluation(svc requester, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		submissionID, err := validators.ParsePathUUID(r, "submissionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body requestEvaluationBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		evaluationType, err := enums.ParseEvaluationType(body.EvaluationType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid evaluation type"))
			return
		}

		receipt, err := svc.RequestEvaluation(r.Context(), internalevaluations.RequestInput{
			StudentID:      studentID,
			SubmissionID:   submissionID,
			EvaluationType: evaluationType,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, receipt)
	}
}
