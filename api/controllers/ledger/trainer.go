package ledger

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/quillcoach/credits-backend/api/middleware"
	"github.com/quillcoach/credits-backend/api/responses"
	"github.com/quillcoach/credits-backend/api/validators"
	"github.com/quillcoach/credits-backend/pkg/enums"
	"github.com/quillcoach/credits-backend/pkg/logger"
)

// authorizeStudent resolves the {studentId} path parameter and checks the
// caller may read it. Admins may read any account.
func authorizeStudent(r *http.Request, svc Reader) (uuid.UUID, error) {
	callerID, err := middleware.ActorID(r.Context())
	if err != nil {
		return uuid.Nil, err
	}
	studentID, err := validators.ParsePathUUID(r, "studentId")
	if err != nil {
		return uuid.Nil, err
	}
	if middleware.RoleFromContext(r.Context()) == string(enums.UserRoleAdmin) {
		return studentID, nil
	}
	if _, err := svc.AuthorizeTrainer(r.Context(), callerID, studentID); err != nil {
		return uuid.Nil, err
	}
	return studentID, nil
}

func StudentBalance(svc Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, err := authorizeStudent(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetBalance(r.Context(), studentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func StudentTransactions(svc Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, err := authorizeStudent(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeTransactions(w, r, svc, studentID, logg)
	}
}

// StudentReconciliation replays the student's log and reports whether it
// agrees with the cached balance.
func StudentReconciliation(svc Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, err := authorizeStudent(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.Reconcile(r.Context(), studentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !report.Consistent && logg != nil {
			ctx := logg.WithAccountID(r.Context(), studentID.String())
			ctx = logg.WithField(ctx, "discrepancies", len(report.Discrepancies))
			logg.Warn(ctx, "on-demand reconciliation found discrepancies")
		}
		responses.WriteSuccess(w, report)
	}
}

// TrainerSales aggregates the caller's plan sales. Both bounds are optional
// and default to the trailing window ending now.
func TrainerSales(svc Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trainerID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from, err := validators.ParseQueryTime(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryTime(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var fromValue, toValue time.Time
		if from != nil {
			fromValue = *from
		}
		if to != nil {
			toValue = *to
		}
		summary, err := svc.AggregateSales(r.Context(), trainerID, fromValue, toValue)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
