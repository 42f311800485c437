package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fynity/fynity/internal/rbac"
)

// TokenType distinguishes access from refresh tokens.
type TokenType string

// Token types carried in the token_type claim.
const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims is the JWT payload of both token types. Role is only set on
// access tokens and Family only on refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	Role      rbac.Role `json:"role,omitempty"`
	Family    string    `json:"fam,omitempty"`
}

// AccountID parses the subject claim.
func (c *Claims) AccountID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrMalformed
	}
	return id, nil
}

// TokenPair is returned by every flow that issues credentials.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// RefreshRecord is a row of the revocation registry.
type RefreshRecord struct {
	JTI       uuid.UUID
	AccountID int64
	FamilyID  uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Revoked reports whether the token has been revoked.
func (r RefreshRecord) Revoked() bool {
	return r.RevokedAt != nil
}
