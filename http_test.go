package bookbuddy_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	bookbuddy "github.com/bookbuddy/api"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid credentials", bookbuddy.ErrInvalidCredentials, http.StatusUnauthorized},
		{"session not found", bookbuddy.ErrSessionNotFound, http.StatusUnauthorized},
		{"missing refresh token", bookbuddy.ErrMissingRefreshToken, http.StatusUnauthorized},
		{"token invalid or used", bookbuddy.ErrTokenInvalidOrUsed, http.StatusBadRequest},
		{"token expired", bookbuddy.ErrTokenExpired, http.StatusBadRequest},
		{"email taken", bookbuddy.ErrEmailTaken, http.StatusConflict},
		{"username taken", bookbuddy.ErrUsernameTaken, http.StatusConflict},
		{"account conflict", bookbuddy.ErrAccountConflict, http.StatusConflict},
		{"user not found", bookbuddy.ErrUserNotFound, http.StatusNotFound},
		{"plain error", stderrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, bookbuddy.HTTPStatusFor(tc.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, bookbuddy.IsUniqueViolation(stderrors.New("UNIQUE constraint failed: users.email")))
	assert.True(t, bookbuddy.IsUniqueViolation(stderrors.New(`duplicate key value violates unique constraint "users_email_key"`)))
	assert.False(t, bookbuddy.IsUniqueViolation(stderrors.New("connection refused")))
	assert.False(t, bookbuddy.IsUniqueViolation(nil))
}

func TestIsConflict(t *testing.T) {
	assert.True(t, bookbuddy.IsConflict(bookbuddy.ErrEmailTaken))
	assert.True(t, bookbuddy.IsConflict(bookbuddy.ErrAccountConflict))
	assert.False(t, bookbuddy.IsConflict(bookbuddy.ErrInvalidCredentials))
	assert.False(t, bookbuddy.IsConflict(stderrors.New("boom")))
}
