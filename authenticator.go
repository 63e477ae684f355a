package bookbuddy

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// AuthResult carries everything a successful register, login, or refresh
// produces. The raw refresh token only exists here and in the cookie, it is
// never persisted.
type AuthResult struct {
	User             *User
	AccessToken      string
	RefreshToken     string
	SessionID        uuid.UUID
	RefreshExpiresAt time.Time
}

// RegisterInput is the validated payload for account creation.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Auther orchestrates the auth flows over the repositories and the token
// service.
type Auther struct {
	repo         RepositoryManager
	tokenService *TokenService
	bcryptCost   int
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

// NewAuthenticator returns a new Auther.
func NewAuthenticator(repo RepositoryManager, ts *TokenService, cfg *Config) *Auther {
	cost := DefaultBcryptCost
	if cfg != nil && cfg.BcryptCost > 0 {
		cost = cfg.BcryptCost
	}
	return &Auther{
		repo:         repo,
		tokenService: ts,
		bcryptCost:   cost,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// TokenService returns the TokenService instance used by this Auther.
func (s *Auther) TokenService() *TokenService {
	return s.tokenService
}

// Register creates the account and signs the new user in. Email and username
// collisions come back as precise conflicts when the pre-check catches them;
// a registration race that loses at the unique index gets the generic
// conflict answer.
func (s *Auther) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	email := NormalizeEmail(input.Email)
	username := NormalizeUsername(input.Username)

	if _, err := s.repo.Users().GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !repository.IsRecordNotFound(err) && !errors.IsNotFound(err) {
		return nil, err
	}

	if _, err := s.repo.Users().GetByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !repository.IsRecordNotFound(err) && !errors.IsNotFound(err) {
		return nil, err
	}

	hash, err := HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.Users().Create(ctx, &User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrAccountConflict
		}
		return nil, err
	}

	s.emitAuthEvent(ctx, ActionRegister, ActivityInfo, &user.ID, map[string]any{
		"username": user.Username,
	})

	return s.issueSession(ctx, user)
}

// Login verifies the identifier and password and starts a fresh session.
// Every live session the user held before is revoked, a user keeps exactly
// one refresh lineage.
func (s *Auther) Login(ctx context.Context, identifier, password string) (*AuthResult, error) {
	user, err := s.repo.Users().GetByIdentifier(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.IsNotFound(err) {
			// burn a bcrypt comparison so unknown identifiers cost the same
			_ = ComparePasswordAndHash(password, fakeBcryptHash)
			s.emitAuthEvent(ctx, ActionLoginFailed, ActivityWarn, nil, map[string]any{
				"identifier": identifier,
			})
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		s.emitAuthEvent(ctx, ActionLoginFailed, ActivityWarn, nil, map[string]any{
			"identifier": identifier,
		})
		return nil, ErrInvalidCredentials
	}

	if _, err := s.repo.RefreshSessions().RevokeAllForUser(ctx, user.ID); err != nil {
		return nil, err
	}

	if err := s.repo.Users().TouchLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to record login time for %s: %v", user.ID, err)
	}

	s.emitAuthEvent(ctx, ActionLogin, ActivityInfo, &user.ID, nil)

	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token. The presented token must verify and its
// session row must still be live; the old session is closed and a new one
// opened in its place. Redeeming a revoked token is treated as reuse and
// audited at error level.
func (s *Auther) Refresh(ctx context.Context, rawRefresh string) (*AuthResult, error) {
	if rawRefresh == "" {
		return nil, ErrMissingRefreshToken
	}

	verdict := s.tokenService.VerifyRefresh(rawRefresh)
	if !verdict.Valid {
		return nil, ErrSessionNotFound
	}

	jti, err := uuid.Parse(verdict.Claims.SessionID())
	if err != nil {
		return nil, ErrSessionNotFound
	}
	userID, err := uuid.Parse(verdict.Claims.UserID())
	if err != nil {
		return nil, ErrSessionNotFound
	}

	// the conditional update is the rotation step: only one concurrent
	// redemption of the same token can flip the row
	revoked, err := s.repo.RefreshSessions().Revoke(ctx, jti)
	if err != nil {
		return nil, err
	}
	if !revoked {
		s.emitAuthEvent(ctx, ActionReuse, ActivityWarn, &userID, map[string]any{
			"jti": jti.String(),
		})
		s.emitAuthEvent(ctx, ActionReuse, ActivityError, &userID, map[string]any{
			"jti":    jti.String(),
			"detail": "refresh token replayed after rotation",
		})
		return nil, ErrSessionNotFound
	}

	user, err := s.repo.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	s.emitAuthEvent(ctx, ActionRefresh, ActivityInfo, &user.ID, nil)

	return s.issueSession(ctx, user)
}

// Logout closes the session behind the presented refresh token. Best effort:
// invalid tokens and already closed sessions are not errors, logout always
// succeeds from the client's point of view. The logout is audited whether or
// not a session was found; the subject is attached when the token names one.
func (s *Auther) Logout(ctx context.Context, rawRefresh string) {
	var userID *uuid.UUID

	if rawRefresh != "" {
		if verdict := s.tokenService.VerifyRefresh(rawRefresh); verdict.Valid {
			if id, err := uuid.Parse(verdict.Claims.UserID()); err == nil {
				userID = &id
			}
			if jti, err := uuid.Parse(verdict.Claims.SessionID()); err == nil {
				if _, err := s.repo.RefreshSessions().Revoke(ctx, jti); err != nil {
					s.logger.Warn("logout revoke failed for %s: %v", jti, err)
				}
			}
		}
	}

	s.emitAuthEvent(ctx, ActionLogout, ActivityInfo, userID, nil)
}

// LogoutAll revokes every live session the user holds.
func (s *Auther) LogoutAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.RefreshSessions().RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.emitAuthEvent(ctx, ActionLogoutAll, ActivityInfo, &userID, map[string]any{
		"revoked": n,
	})
	return n, nil
}

// issueSession persists a new session row and mints both tokens against it.
func (s *Auther) issueSession(ctx context.Context, user *User) (*AuthResult, error) {
	sessionID := uuid.New()

	refresh, expiresAt, err := s.tokenService.SignRefresh(user.ID, sessionID)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.RefreshSessions().Create(ctx, &RefreshSession{
		ID:        sessionID,
		UserID:    user.ID,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, err
	}

	access, err := s.tokenService.SignAccess(user.ID)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		User:             user,
		AccessToken:      access,
		RefreshToken:     refresh,
		SessionID:        sessionID,
		RefreshExpiresAt: expiresAt,
	}, nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, action AuthEventAction, level ActivityLevel, userID *uuid.UUID, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		Action:     action,
		Level:      level,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: s.now(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

// fakeBcryptHash keeps the failure path for unknown identifiers on the same
// timing profile as a real comparison. Hash of a random throwaway value.
const fakeBcryptHash = "$2a$12$C6UzMDM.H6dfI/f/IKcEeO7ZBV5P5R5s5R4P1z5T0a8mPZk4y5bQm"
