package bookbuddy

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the account model. PasswordHash never leaves the API layer, the
// controllers sanitize responses through PublicUser.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	EmailVerified bool       `bun:"is_email_verified" json:"is_email_verified"`
	LoggedInAt    *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// PublicUser is the wire shape of a user, credentials stripped.
type PublicUser struct {
	ID            uuid.UUID  `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	EmailVerified bool       `json:"isEmailVerified"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
}

// Public returns the sanitized view of the user.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

// RefreshSession is one row per issued refresh token, keyed by the token's
// jti claim. RevokedAt doubles as the reuse-detection flag: a NULL value
// means the session is live, anything else means revoked.
type RefreshSession struct {
	bun.BaseModel `bun:"table:refresh_sessions,alias:rs"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	RevokedAt     *time.Time `bun:"revoked_at,nullzero" json:"revoked_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Active reports whether the session can still be redeemed at the given time.
func (s *RefreshSession) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// SingleUseToken is the shared shape of the one-shot tokens. Only a sha256
// hash of the secret is stored; the raw value travels in the email link and
// is never persisted.
type SingleUseToken struct {
	ID        uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID    uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	TokenHash string     `bun:"token_hash,notnull,unique" json:"-"`
	ExpiresAt time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	UsedAt    *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the token deadline passed. Expiry is checked lazily
// at redemption, expired rows are not swept proactively.
func (t *SingleUseToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// EmailVerificationToken proves ownership of an email address.
type EmailVerificationToken struct {
	bun.BaseModel `bun:"table:email_verification_tokens,alias:evt"`
	SingleUseToken
}

// PasswordResetToken authorizes one password change.
type PasswordResetToken struct {
	bun.BaseModel `bun:"table:password_reset_tokens,alias:prt"`
	SingleUseToken
}

// AuthEventAction enumerates the auditable auth actions.
type AuthEventAction = string

const (
	ActionRegister        AuthEventAction = "register"
	ActionLogin           AuthEventAction = "login"
	ActionLoginFailed     AuthEventAction = "login_failed"
	ActionLogout          AuthEventAction = "logout"
	ActionLogoutAll       AuthEventAction = "logout_all"
	ActionRefresh         AuthEventAction = "refresh"
	ActionReuse           AuthEventAction = "refresh_reuse"
	ActionVerifyRequest   AuthEventAction = "email_verify_requested"
	ActionVerify          AuthEventAction = "email_verified"
	ActionResetRequest    AuthEventAction = "password_reset_requested"
	ActionReset           AuthEventAction = "password_reset"
	ActionReminderRequest AuthEventAction = "email_reminder_requested"
)

// AuthEvent is the persisted audit trail entry.
type AuthEvent struct {
	bun.BaseModel `bun:"table:auth_events,alias:ae"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        *uuid.UUID     `bun:"user_id,nullzero,type:uuid" json:"user_id,omitempty"`
	Action        string         `bun:"action,notnull" json:"action"`
	Level         string         `bun:"level,notnull" json:"level"`
	Metadata      map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Book is a saved library entry. Key is the Open Library work key, unique
// per user so the same work cannot be saved twice.
type Book struct {
	bun.BaseModel `bun:"table:books,alias:bk"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"-"`
	Title         string     `bun:"title,notnull" json:"title"`
	Author        string     `bun:"author" json:"author,omitempty"`
	Key           string     `bun:"key,notnull" json:"key"`
	CoverID       int        `bun:"cover_id" json:"coverId,omitempty"`
	OLID          string     `bun:"olid" json:"olid,omitempty"`
	IsFavorite    bool       `bun:"is_favorite" json:"isFavorite"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"createdAt,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updatedAt,omitempty"`
}
