package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/quillcoach/credits-backend/pkg/enums"
)

var (
	ErrMissingUser = errors.New("token missing user id")
	ErrUnknownRole = errors.New("token carries an unknown role")
)

// AccessTokenPayload is what tooling supplies when minting a token.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.UserRole
	// TrainerID is the trainer a student is assigned to.
	TrainerID *uuid.UUID
	JTI       string
}

type AccessTokenClaims struct {
	UserID    uuid.UUID      `json:"user_id"`
	Role      enums.UserRole `json:"role"`
	TrainerID *uuid.UUID     `json:"trainer_id,omitempty"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims pass jwt's own checks.
func (c AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return ErrMissingUser
	}
	if !c.Role.IsValid() {
		return ErrUnknownRole
	}
	return nil
}
