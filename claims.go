package bookbuddy

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims is the read side of a verified token, what the request context
// carries after the session boundary middleware runs.
type AuthClaims interface {
	Subject() string
	UserID() string
	SessionID() string
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims. Access tokens carry
// no jti; refresh tokens carry the session id there.
type JWTClaims struct {
	jwt.RegisteredClaims
}

// Verify interface compliance
var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim, the user id.
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID.
func (c *JWTClaims) UserID() string {
	return c.Subject()
}

// SessionID returns the jti claim. Empty for access tokens.
func (c *JWTClaims) SessionID() string {
	return c.RegisteredClaims.ID
}

// Expires returns the expiration time.
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time.
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
