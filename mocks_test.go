package bookbuddy_test

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	bookbuddy "github.com/bookbuddy/api"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

func newTestConfig() *bookbuddy.Config {
	return &bookbuddy.Config{
		Env:                "test",
		ClientURL:          "http://localhost:3000",
		AccessTokenSecret:  "access-secret",
		RefreshTokenSecret: "refresh-secret",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    7 * 24 * time.Hour,
		Issuer:             "bookbuddy-api",
		Audience:           "bookbuddy-client",
		BcryptCost:         bcrypt.MinCost,
		EmailVerifyTTL:     24 * time.Hour,
		PasswordResetTTL:   30 * time.Minute,
	}
}

// memUsers is an in-memory Users store.
type memUsers struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*bookbuddy.User
	users []*bookbuddy.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[uuid.UUID]*bookbuddy.User{}}
}

func (m *memUsers) Create(_ context.Context, user *bookbuddy.User) (*bookbuddy.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return nil, stderrors.New("UNIQUE constraint failed: users.email")
		}
		if u.Username == user.Username {
			return nil, stderrors.New("UNIQUE constraint failed: users.username")
		}
	}
	cp := *user
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	now := time.Now()
	cp.CreatedAt = &now
	m.users = append(m.users, &cp)
	m.byID[cp.ID] = &cp
	return &cp, nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*bookbuddy.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, bookbuddy.ErrUserNotFound
}

func (m *memUsers) GetByIdentifier(ctx context.Context, identifier string) (*bookbuddy.User, error) {
	if strings.Contains(identifier, "@") {
		return m.GetByEmail(ctx, bookbuddy.NormalizeEmail(identifier))
	}
	return m.GetByUsername(ctx, bookbuddy.NormalizeUsername(identifier))
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*bookbuddy.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, bookbuddy.ErrUserNotFound
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*bookbuddy.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, bookbuddy.ErrUserNotFound
}

func (m *memUsers) Update(_ context.Context, user *bookbuddy.User) (*bookbuddy.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byID[user.ID]; ok {
		*existing = *user
		return existing, nil
	}
	return nil, bookbuddy.ErrUserNotFound
}

func (m *memUsers) SetPassword(_ context.Context, _ bun.IDB, userID uuid.UUID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[userID]; ok {
		u.PasswordHash = passwordHash
		return nil
	}
	return bookbuddy.ErrUserNotFound
}

func (m *memUsers) MarkEmailVerified(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[userID]; ok {
		u.EmailVerified = true
		return nil
	}
	return bookbuddy.ErrUserNotFound
}

func (m *memUsers) TouchLogin(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[userID]; ok {
		now := time.Now()
		u.LoggedInAt = &now
		return nil
	}
	return bookbuddy.ErrUserNotFound
}

// memSessions is an in-memory RefreshSessions ledger.
type memSessions struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*bookbuddy.RefreshSession
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[uuid.UUID]*bookbuddy.RefreshSession{}}
}

func (m *memSessions) Create(_ context.Context, session *bookbuddy.RefreshSession) (*bookbuddy.RefreshSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	m.sessions[cp.ID] = &cp
	return &cp, nil
}

func (m *memSessions) GetActive(_ context.Context, jti uuid.UUID) (*bookbuddy.RefreshSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[jti]; ok && s.RevokedAt == nil {
		return s, nil
	}
	return nil, bookbuddy.ErrSessionNotFound
}

func (m *memSessions) Revoke(_ context.Context, jti uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[jti]
	if !ok || s.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	s.RevokedAt = &now
	return true, nil
}

func (m *memSessions) RevokeAllForUser(_ context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for _, s := range m.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (m *memSessions) CountActiveForUser(_ context.Context, userID uuid.UUID) (int, error) {
	return len(m.activeFor(userID)), nil
}

func (m *memSessions) activeFor(userID uuid.UUID) []*bookbuddy.RefreshSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*bookbuddy.RefreshSession
	for _, s := range m.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			out = append(out, s)
		}
	}
	return out
}

// memTokens is an in-memory SingleUseTokens store.
type memTokens struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*bookbuddy.SingleUseToken
}

func newMemTokens() *memTokens {
	return &memTokens{tokens: map[uuid.UUID]*bookbuddy.SingleUseToken{}}
}

func (m *memTokens) ReplaceActive(_ context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tokens {
		if t.UserID == userID && t.UsedAt == nil {
			delete(m.tokens, id)
		}
	}
	id := uuid.New()
	m.tokens[id] = &bookbuddy.SingleUseToken{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	}
	return nil
}

func (m *memTokens) GetByHash(_ context.Context, tokenHash string) (*bookbuddy.SingleUseToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TokenHash == tokenHash {
			return t, nil
		}
	}
	return nil, bookbuddy.ErrTokenInvalidOrUsed
}

func (m *memTokens) MarkUsed(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok || t.UsedAt != nil {
		return false, nil
	}
	now := time.Now()
	t.UsedAt = &now
	return true, nil
}

func (m *memTokens) DeleteUnusedForUser(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tokens {
		if t.UserID == userID && t.UsedAt == nil {
			delete(m.tokens, id)
		}
	}
	return nil
}

func (m *memTokens) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

// expireAll backdates every token so redemption hits the expiry path.
func (m *memTokens) expireAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		t.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

// memRepo bundles the in-memory stores behind the RepositoryManager contract.
type memRepo struct {
	users    *memUsers
	sessions *memSessions
	verify   *memTokens
	resets   *memTokens
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:    newMemUsers(),
		sessions: newMemSessions(),
		verify:   newMemTokens(),
		resets:   newMemTokens(),
	}
}

func (m *memRepo) Validate() error { return nil }
func (m *memRepo) MustValidate()   {}

func (m *memRepo) RunInTx(ctx context.Context, _ *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *memRepo) Users() bookbuddy.Users                        { return m.users }
func (m *memRepo) RefreshSessions() bookbuddy.RefreshSessions    { return m.sessions }
func (m *memRepo) EmailVerifications() bookbuddy.SingleUseTokens { return m.verify }
func (m *memRepo) PasswordResets() bookbuddy.SingleUseTokens     { return m.resets }
func (m *memRepo) Books() bookbuddy.Books                        { return nil }
func (m *memRepo) AuthEvents() bookbuddy.AuthEvents              { return nil }

// seedUser inserts a user with a hashed password for login flows.
func (m *memRepo) seedUser(t interface{ Fatalf(string, ...any) }, username, email, password string) *bookbuddy.User {
	hash, err := bookbuddy.HashPassword(password, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash seed password: %v", err)
	}
	user, err := m.users.Create(context.Background(), &bookbuddy.User{
		Username:     bookbuddy.NormalizeUsername(username),
		Email:        bookbuddy.NormalizeEmail(email),
		PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}

// captureSink records every activity event it sees.
type captureSink struct {
	mu     sync.Mutex
	events []bookbuddy.ActivityEvent
}

func (s *captureSink) Record(_ context.Context, event bookbuddy.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) eventsFor(action bookbuddy.AuthEventAction) []bookbuddy.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []bookbuddy.ActivityEvent
	for _, e := range s.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type sentMail struct {
	kind     string
	to       string
	username string
	link     string
}

// captureMailer records outgoing mail, optionally failing every send.
type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *captureMailer) SendEmailVerification(_ context.Context, to, username, link string) error {
	return m.record("verification", to, username, link)
}

func (m *captureMailer) SendPasswordReset(_ context.Context, to, username, link string) error {
	return m.record("reset", to, username, link)
}

func (m *captureMailer) SendEmailReminder(_ context.Context, to, username string) error {
	return m.record("reminder", to, username, "")
}

func (m *captureMailer) record(kind, to, username, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{kind: kind, to: to, username: username, link: link})
	return nil
}

func (m *captureMailer) all() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}
