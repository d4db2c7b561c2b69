package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
)

var timeLayouts = []string{time.RFC3339Nano, time.DateOnly}

func query(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// invalid reports a bad parameter; details always name the field.
func invalid(key, message string, cause error, extra map[string]any) *pkgerrors.Error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	var err *pkgerrors.Error
	if cause != nil {
		err = pkgerrors.Wrap(pkgerrors.CodeValidation, cause, message)
	} else {
		err = pkgerrors.New(pkgerrors.CodeValidation, message)
	}
	return err.WithDetails(details)
}

// ParseQueryInt returns fallback when key is absent and rejects values
// outside [min, max].
func ParseQueryInt(r *http.Request, key string, fallback, min, max int) (int, error) {
	raw := query(r, key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid(key, "query parameter must be numeric", nil, nil)
	}
	if value < min || value > max {
		return 0, invalid(key, "query parameter out of range", nil, map[string]any{"min": min, "max": max})
	}
	return value, nil
}

func ParseQueryBool(r *http.Request, key string) (bool, error) {
	raw := query(r, key)
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalid(key, "query parameter must be a boolean", err, nil)
	}
	return value, nil
}

func ParseQueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw := query(r, key)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, invalid(key, "query parameter must be a uuid", err, nil)
	}
	return &id, nil
}

// ParseQueryTime accepts RFC3339 timestamps or YYYY-MM-DD, read as UTC
// midnight.
func ParseQueryTime(r *http.Request, key string) (*time.Time, error) {
	raw := query(r, key)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, invalid(key, "query parameter must be a date or RFC3339 timestamp", nil, nil)
}

// ParsePathUUID parses a required chi route parameter.
func ParsePathUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return uuid.Nil, invalid(key, key+" is required", nil, nil)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, invalid(key, "invalid "+key, err, nil)
	}
	return id, nil
}
