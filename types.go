package bookbuddy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Logger is the logging contract used across the module. Printf style so any
// backend can satisfy it; cmd/server wires a zap adapter.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Users is the credential store. Identifier lookups accept either email or
// username; implementations normalize to lowercase.
type Users interface {
	Create(ctx context.Context, user *User) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Update(ctx context.Context, user *User) (*User, error)
	SetPassword(ctx context.Context, tx bun.IDB, userID uuid.UUID, passwordHash string) error
	MarkEmailVerified(ctx context.Context, userID uuid.UUID) error
	TouchLogin(ctx context.Context, userID uuid.UUID) error
}

// RefreshSessions is the session ledger behind refresh rotation.
type RefreshSessions interface {
	Create(ctx context.Context, session *RefreshSession) (*RefreshSession, error)
	GetActive(ctx context.Context, jti uuid.UUID) (*RefreshSession, error)
	// Revoke atomically flips one live session to revoked. Returns false when
	// the row was already revoked or never existed, which is the reuse signal.
	Revoke(ctx context.Context, jti uuid.UUID) (bool, error)
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	CountActiveForUser(ctx context.Context, userID uuid.UUID) (int, error)
}

// SingleUseTokens is the store behind email verification and password reset
// secrets. Each user holds at most one live token per purpose.
type SingleUseTokens interface {
	// ReplaceActive deletes the user's unused tokens and inserts a fresh one
	// in a single transaction.
	ReplaceActive(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	GetByHash(ctx context.Context, tokenHash string) (*SingleUseToken, error)
	// MarkUsed consumes the token. Returns false when another request got
	// there first.
	MarkUsed(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteUnusedForUser(ctx context.Context, userID uuid.UUID) error
}

// Books is the saved-library store.
// BookPatch carries the optional fields of a book update; nil fields are
// left untouched.
type BookPatch struct {
	Title      *string
	Author     *string
	CoverID    *int
	OLID       *string
	IsFavorite *bool
}

type Books interface {
	Create(ctx context.Context, book *Book) (*Book, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*Book, error)
	GetForUser(ctx context.Context, userID, bookID uuid.UUID) (*Book, error)
	Update(ctx context.Context, userID, bookID uuid.UUID, patch BookPatch) (*Book, error)
	SetFavorite(ctx context.Context, userID, bookID uuid.UUID, favorite bool) (*Book, error)
	Delete(ctx context.Context, userID, bookID uuid.UUID) error
}

// Mailer delivers transactional email. Failures are logged, never surfaced
// to the requester.
type Mailer interface {
	SendEmailVerification(ctx context.Context, to, username, link string) error
	SendPasswordReset(ctx context.Context, to, username, link string) error
	SendEmailReminder(ctx context.Context, to, username string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
