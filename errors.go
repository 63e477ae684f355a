package bookbuddy

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// Sentinel errors for the auth flows. Handlers map these onto HTTP statuses
// via go-errors categories, so each carries its category and code up front.
var (
	// ErrInvalidCredentials is returned for both unknown identifiers and
	// wrong passwords so callers cannot tell accounts apart.
	ErrInvalidCredentials = errors.New("Invalid credentials", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode("INVALID_CREDENTIALS")

	// ErrSessionNotFound covers refresh tokens whose session record is gone
	// or already revoked. Reuse detection reports the same error.
	ErrSessionNotFound = errors.New("Invalid refresh token", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode("INVALID_REFRESH")

	// ErrMissingRefreshToken means the request carried no refresh cookie.
	ErrMissingRefreshToken = errors.New("Refresh token missing", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode("REFRESH_MISSING")

	// ErrTokenInvalidOrUsed covers single use tokens that never existed or
	// were already consumed.
	ErrTokenInvalidOrUsed = errors.New("Invalid or already used token", errors.CategoryBadInput).
				WithTextCode("TOKEN_INVALID")

	// ErrTokenExpired covers single use tokens past their deadline.
	ErrTokenExpired = errors.New("Token expired", errors.CategoryBadInput).
			WithTextCode("TOKEN_EXPIRED")

	// ErrEmailTaken and ErrUsernameTaken give precise conflict feedback on
	// registration.
	ErrEmailTaken = errors.New("Email already in use", errors.CategoryConflict).
			WithTextCode("EMAIL_TAKEN")

	ErrUsernameTaken = errors.New("Username already in use", errors.CategoryConflict).
				WithTextCode("USERNAME_TAKEN")

	// ErrAccountConflict is the generic answer when a registration race
	// loses to a concurrent insert and we cannot tell which field collided.
	ErrAccountConflict = errors.New("Account already exists", errors.CategoryConflict).
				WithTextCode("ACCOUNT_CONFLICT")

	// ErrUserNotFound is returned when an authenticated subject no longer
	// maps to a user row.
	ErrUserNotFound = errors.New("User not found", errors.CategoryNotFound).
			WithCode(errors.CodeNotFound).
			WithTextCode("USER_NOT_FOUND")
)

// IsUniqueViolation reports whether err came from a unique index collision.
// Matched by message since bun surfaces the driver error verbatim.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key")
}

// IsConflict reports whether err is one of the registration conflicts.
func IsConflict(err error) bool {
	var rich *errors.Error
	if errors.As(err, &rich) {
		return rich.Category == errors.CategoryConflict
	}
	return false
}
