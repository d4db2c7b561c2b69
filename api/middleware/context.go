package middleware

import (
	"context"

	"github.com/google/uuid"

	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
)

type contextKey string

const (
	ctxUserID    contextKey = "user_id"
	ctxRole      contextKey = "actor_role"
	ctxTrainerID contextKey = "trainer_id"
)

func lookup(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func attach(ctx context.Context, key contextKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

func UserIDFromContext(ctx context.Context) string { return lookup(ctx, ctxUserID) }

func RoleFromContext(ctx context.Context) string { return lookup(ctx, ctxRole) }

// TrainerIDFromContext returns the trainer a student token is assigned to.
func TrainerIDFromContext(ctx context.Context) string { return lookup(ctx, ctxTrainerID) }

func WithUserID(ctx context.Context, userID string) context.Context {
	return attach(ctx, ctxUserID, userID)
}

func WithRole(ctx context.Context, role string) context.Context {
	return attach(ctx, ctxRole, role)
}

func WithTrainerID(ctx context.Context, trainerID string) context.Context {
	return attach(ctx, ctxTrainerID, trainerID)
}

// ActorID returns the authenticated caller. Handlers mounted behind Auth can
// treat an error here as an unauthenticated request.
func ActorID(ctx context.Context) (uuid.UUID, error) {
	raw := UserIDFromContext(ctx)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

// AssignedTrainerID is nil for tokens without a trainer claim.
func AssignedTrainerID(ctx context.Context) *uuid.UUID {
	id, err := uuid.Parse(TrainerIDFromContext(ctx))
	if err != nil {
		return nil
	}
	return &id
}
