package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/quillcoach/credits-backend/api/middleware"
	"github.com/quillcoach/credits-backend/api/responses"
	"github.com/quillcoach/credits-backend/api/validators"
	"github.com/quillcoach/credits-backend/internal/notifications"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
	"github.com/quillcoach/credits-backend/pkg/logger"
	"github.com/quillcoach/credits-backend/pkg/pagination"
)

type notificationsService interface {
	List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error)
	MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
}

// Notifications serves the caller's own inbox. Every handler resolves the
// recipient from the bearer token, never from the request.
type Notifications struct {
	svc  notificationsService
	logg *logger.Logger
}

func NewNotifications(svc notificationsService, logg *logger.Logger) *Notifications {
	return &Notifications{svc: svc, logg: logg}
}

func (h *Notifications) fail(w http.ResponseWriter, r *http.Request, err error) {
	responses.WriteError(r.Context(), h.logg, w, err)
}

func (h *Notifications) recipient(r *http.Request) (uuid.UUID, error) {
	if h.svc == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable")
	}
	return middleware.ActorID(r.Context())
}

// List handles GET ?limit=&cursor=&unreadOnly=.
func (h *Notifications) List(w http.ResponseWriter, r *http.Request) {
	recipientID, err := h.recipient(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	unreadOnly, err := validators.ParseQueryBool(r, "unreadOnly")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.svc.List(r.Context(), notifications.ListParams{
		RecipientID: recipientID,
		Limit:       limit,
		Cursor:      strings.TrimSpace(r.URL.Query().Get("cursor")),
		UnreadOnly:  unreadOnly,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	responses.WriteSuccess(w, page)
}

func (h *Notifications) MarkRead(w http.ResponseWriter, r *http.Request) {
	recipientID, err := h.recipient(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	notificationID, err := validators.ParsePathUUID(r, "notificationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.MarkRead(r.Context(), recipientID, notificationID); err != nil {
		h.fail(w, r, err)
		return
	}
	responses.WriteSuccess(w, map[string]any{"id": notificationID, "read": true})
}

func (h *Notifications) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	recipientID, err := h.recipient(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.svc.MarkAllRead(r.Context(), recipientID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	responses.WriteSuccess(w, map[string]int64{"updated": updated})
}
