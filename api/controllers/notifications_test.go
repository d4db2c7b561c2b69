package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcoach/credits-backend/api/middleware"
	"github.com/quillcoach/credits-backend/internal/notifications"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
	"github.com/quillcoach/credits-backend/pkg/logger"
)

type stubInbox struct {
	list        func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error)
	markRead    func(ctx context.Context, recipientID, notificationID uuid.UUID) error
	markAllRead func(ctx context.Context, recipientID uuid.UUID) (int64, error)
}

func (s *stubInbox) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	if s.list == nil {
		return &notifications.ListResult{}, nil
	}
	return s.list(ctx, params)
}

func (s *stubInbox) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	if s.markRead == nil {
		return nil
	}
	return s.markRead(ctx, recipientID, notificationID)
}

func (s *stubInbox) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	if s.markAllRead == nil {
		return 0, nil
	}
	return s.markAllRead(ctx, recipientID)
}

func inboxHandler(svc notificationsService) *Notifications {
	return NewNotifications(svc, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
}

func asUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func withRouteParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	envelope := struct {
		Data any `json:"data"`
	}{Data: into}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
}

func TestNotificationsMarkRead(t *testing.T) {
	recipientID, notificationID := uuid.New(), uuid.New()
	var gotRecipient, gotNotification uuid.UUID
	h := inboxHandler(&stubInbox{markRead: func(_ context.Context, rid, nid uuid.UUID) error {
		gotRecipient, gotNotification = rid, nid
		return nil
	}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+notificationID.String()+"/read", nil)
	req = withRouteParam(asUser(req, recipientID.String()), "notificationId", notificationID.String())
	rec := httptest.NewRecorder()
	h.MarkRead(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, recipientID, gotRecipient)
	assert.Equal(t, notificationID, gotNotification)
	var body struct {
		Read bool `json:"read"`
	}
	decodeData(t, rec, &body)
	assert.True(t, body.Read)
}

func TestNotificationsMarkReadRejects(t *testing.T) {
	cases := []struct {
		name   string
		user   string
		param  string
		err    error
		status int
	}{
		{name: "no user", param: uuid.NewString(), status: http.StatusUnauthorized},
		{name: "malformed user", user: "bad", param: uuid.NewString(), status: http.StatusUnauthorized},
		{name: "malformed id", user: uuid.NewString(), param: "invalid", status: http.StatusBadRequest},
		{name: "someone else's", user: uuid.NewString(), param: uuid.NewString(), err: pkgerrors.New(pkgerrors.CodeNotFound, "notification not found"), status: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := inboxHandler(&stubInbox{markRead: func(context.Context, uuid.UUID, uuid.UUID) error { return tc.err }})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/x/read", nil)
			if tc.user != "" {
				req = asUser(req, tc.user)
			}
			req = withRouteParam(req, "notificationId", tc.param)
			rec := httptest.NewRecorder()
			h.MarkRead(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestNotificationsMarkAllRead(t *testing.T) {
	recipientID := uuid.New()
	h := inboxHandler(&stubInbox{markAllRead: func(_ context.Context, rid uuid.UUID) (int64, error) {
		assert.Equal(t, recipientID, rid)
		return 5, nil
	}})

	rec := httptest.NewRecorder()
	h.MarkAllRead(rec, asUser(httptest.NewRequest(http.MethodPost, "/api/v1/notifications/read-all", nil), recipientID.String()))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Updated int64 `json:"updated"`
	}
	decodeData(t, rec, &body)
	assert.Equal(t, int64(5), body.Updated)
}

func TestNotificationsListScopesToCaller(t *testing.T) {
	recipientID := uuid.New()
	var got notifications.ListParams
	h := inboxHandler(&stubInbox{list: func(_ context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
		got = params
		return &notifications.ListResult{Items: []notifications.NotificationView{}}, nil
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=5&unreadOnly=true&cursor=abc", nil)
	rec := httptest.NewRecorder()
	h.List(rec, asUser(req, recipientID.String()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, notifications.ListParams{RecipientID: recipientID, Limit: 5, Cursor: "abc", UnreadOnly: true}, got)
}

func TestNotificationsListValidatesQuery(t *testing.T) {
	for _, query := range []string{"limit=-1", "limit=1000", "limit=x", "unreadOnly=maybe"} {
		t.Run(query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h := inboxHandler(&stubInbox{})
			h.List(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/v1/notifications?"+query, nil), uuid.NewString()))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestNotificationsWithoutService(t *testing.T) {
	rec := httptest.NewRecorder()
	NewNotifications(nil, logger.New(logger.Options{ServiceName: "test", Output: io.Discard})).
		List(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil), uuid.NewString()))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
