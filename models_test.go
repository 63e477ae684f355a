package bookbuddy_test

import (
	"testing"
	"time"

	bookbuddy "github.com/bookbuddy/api"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestUser_Public(t *testing.T) {
	now := time.Now()
	user := &bookbuddy.User{
		ID:            uuid.New(),
		Username:      "reader",
		Email:         "reader@example.com",
		PasswordHash:  "$2a$12$secret",
		EmailVerified: true,
		CreatedAt:     &now,
	}

	pub := user.Public()
	assert.Equal(t, user.ID, pub.ID)
	assert.Equal(t, user.Username, pub.Username)
	assert.Equal(t, user.Email, pub.Email)
	assert.True(t, pub.EmailVerified)
	assert.Equal(t, &now, pub.CreatedAt)
}

func TestRefreshSession_Active(t *testing.T) {
	now := time.Now()
	session := &bookbuddy.RefreshSession{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		ExpiresAt: now.Add(time.Hour),
	}

	assert.True(t, session.Active(now))
	assert.False(t, session.Active(now.Add(2*time.Hour)))

	revoked := now
	session.RevokedAt = &revoked
	assert.False(t, session.Active(now))
}

func TestSingleUseToken_Expired(t *testing.T) {
	now := time.Now()
	token := &bookbuddy.SingleUseToken{ExpiresAt: now.Add(time.Minute)}

	assert.False(t, token.Expired(now))
	assert.True(t, token.Expired(now.Add(2*time.Minute)))
}
