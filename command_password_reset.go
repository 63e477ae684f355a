package bookbuddy

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// RequestPasswordResetMessage starts a password reset for an email address.
// The outcome is identical whether or not the address belongs to an account,
// the response never leaks account existence.
type RequestPasswordResetMessage struct {
	Email      string `json:"email" doc:"Address the reset link is requested for."`
	OnResponse func(resp *RequestPasswordResetResponse)
}

func (p RequestPasswordResetMessage) Type() string { return "user.password_reset_request" }

type RequestPasswordResetResponse struct {
	Success bool
}

type RequestPasswordResetHandler struct {
	repo      RepositoryManager
	mailer    Mailer
	clientURL string
	tokenTTL  time.Duration
	sink      ActivitySink
	logger    Logger
}

func NewRequestPasswordResetHandler(repo RepositoryManager, mailer Mailer, cfg *Config, sink ActivitySink, logger Logger) *RequestPasswordResetHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &RequestPasswordResetHandler{
		repo:      repo,
		mailer:    mailer,
		clientURL: cfg.ClientURL,
		tokenTTL:  cfg.PasswordResetTTL,
		sink:      normalizeActivitySink(sink),
		logger:    logger,
	}
}

func (h *RequestPasswordResetHandler) Execute(ctx context.Context, event RequestPasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestPasswordResetHandler) execute(ctx context.Context, event RequestPasswordResetMessage) error {
	resp := &RequestPasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			h.recordRequest(ctx, event.Email, nil)
			// same answer as the happy path
			resp.Success = true
			if event.OnResponse != nil {
				event.OnResponse(resp)
			}
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	h.recordRequest(ctx, event.Email, &user.ID)

	raw, hash, err := NewSingleUseSecret()
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(h.tokenTTL)
	if err := h.repo.PasswordResets().ReplaceActive(ctx, user.ID, hash, expiresAt); err != nil {
		return err
	}

	link := h.clientURL + "/reset-password/" + raw
	if err := h.mailer.SendPasswordReset(ctx, user.Email, user.Username, link); err != nil {
		// delivery failure must not change the response shape
		h.logger.Error("failed to send password reset email to %s: %v", user.Email, err)
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// recordRequest audits the reset request. The response never exposes whether
// the address matched; the audit trail carries the resolved user when it did.
func (h *RequestPasswordResetHandler) recordRequest(ctx context.Context, email string, userID *uuid.UUID) {
	if err := h.sink.Record(ctx, ActivityEvent{
		Action:     ActionResetRequest,
		Level:      ActivityInfo,
		UserID:     userID,
		Metadata:   map[string]any{"email": email},
		OccurredAt: time.Now(),
	}); err != nil {
		h.logger.Warn("activity sink record error: %v", err)
	}
}

// FinalizePasswordResetMessage redeems a reset token and installs the new
// password. Every live session the user holds is revoked.
type FinalizePasswordResetMessage struct {
	Token      string `json:"token" doc:"Raw single use reset secret."`
	Password   string `json:"password" doc:"Replacement password."`
	OnResponse func(resp *FinalizePasswordResetResponse)
}

func (p FinalizePasswordResetMessage) Type() string { return "user.password_reset_finalize" }

type FinalizePasswordResetResponse struct {
	UserID  uuid.UUID
	Success bool
}

type FinalizePasswordResetHandler struct {
	repo       RepositoryManager
	bcryptCost int
	sink       ActivitySink
	logger     Logger
}

func NewFinalizePasswordResetHandler(repo RepositoryManager, cfg *Config, sink ActivitySink, logger Logger) *FinalizePasswordResetHandler {
	cost := DefaultBcryptCost
	if cfg != nil && cfg.BcryptCost > 0 {
		cost = cfg.BcryptCost
	}
	if logger == nil {
		logger = defLogger{}
	}
	return &FinalizePasswordResetHandler{
		repo:       repo,
		bcryptCost: cost,
		sink:       normalizeActivitySink(sink),
		logger:     logger,
	}
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	resp := &FinalizePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Token == "" {
		return ErrTokenInvalidOrUsed
	}

	token, err := h.repo.PasswordResets().GetByHash(ctx, HashSingleUseSecret(event.Token))
	if err != nil {
		return err
	}

	if token.UsedAt != nil {
		return ErrTokenInvalidOrUsed
	}

	if token.Expired(time.Now()) {
		return ErrTokenExpired
	}

	used, err := h.repo.PasswordResets().MarkUsed(ctx, token.ID)
	if err != nil {
		return err
	}
	if !used {
		return ErrTokenInvalidOrUsed
	}

	passwordHash, err := HashPassword(event.Password, h.bcryptCost)
	if err != nil {
		return err
	}

	if err := h.repo.Users().SetPassword(ctx, nil, token.UserID, passwordHash); err != nil {
		return err
	}

	// a reset proves the old credential may be compromised, close everything
	if _, err := h.repo.RefreshSessions().RevokeAllForUser(ctx, token.UserID); err != nil {
		return err
	}

	if err := h.repo.PasswordResets().DeleteUnusedForUser(ctx, token.UserID); err != nil {
		h.logger.Warn("failed to sweep reset tokens for %s: %v", token.UserID, err)
	}

	userID := token.UserID
	if err := h.sink.Record(ctx, ActivityEvent{
		Action:     ActionReset,
		Level:      ActivityInfo,
		UserID:     &userID,
		OccurredAt: time.Now(),
	}); err != nil {
		h.logger.Warn("activity sink record error: %v", err)
	}

	resp.UserID = token.UserID
	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
