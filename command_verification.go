package bookbuddy

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// RequestEmailVerificationMessage asks for a fresh verification link for an
// authenticated user.
type RequestEmailVerificationMessage struct {
	UserID     uuid.UUID `json:"user_id" doc:"Account requesting verification."`
	OnResponse func(resp *RequestEmailVerificationResponse)
}

func (p RequestEmailVerificationMessage) Type() string { return "user.email_verification_request" }

type RequestEmailVerificationResponse struct {
	AlreadyVerified bool
	Success         bool
}

type RequestEmailVerificationHandler struct {
	repo      RepositoryManager
	mailer    Mailer
	clientURL string
	tokenTTL  time.Duration
	sink      ActivitySink
	logger    Logger
}

func NewRequestEmailVerificationHandler(repo RepositoryManager, mailer Mailer, cfg *Config, sink ActivitySink, logger Logger) *RequestEmailVerificationHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &RequestEmailVerificationHandler{
		repo:      repo,
		mailer:    mailer,
		clientURL: cfg.ClientURL,
		tokenTTL:  cfg.EmailVerifyTTL,
		sink:      normalizeActivitySink(sink),
		logger:    logger,
	}
}

func (h *RequestEmailVerificationHandler) Execute(ctx context.Context, event RequestEmailVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email verification request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestEmailVerificationHandler) execute(ctx context.Context, event RequestEmailVerificationMessage) error {
	resp := &RequestEmailVerificationResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByID(ctx, event.UserID)
	if err != nil {
		return err
	}

	// already verified accounts get the success answer without a new token
	if user.EmailVerified {
		resp.AlreadyVerified = true
		resp.Success = true
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
		return nil
	}

	raw, hash, err := NewSingleUseSecret()
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(h.tokenTTL)
	if err := h.repo.EmailVerifications().ReplaceActive(ctx, user.ID, hash, expiresAt); err != nil {
		return err
	}

	userID := user.ID
	if err := h.sink.Record(ctx, ActivityEvent{
		Action:     ActionVerifyRequest,
		Level:      ActivityInfo,
		UserID:     &userID,
		OccurredAt: time.Now(),
	}); err != nil {
		h.logger.Warn("activity sink record error: %v", err)
	}

	link := h.clientURL + "/verify-email/" + raw
	if err := h.mailer.SendEmailVerification(ctx, user.Email, user.Username, link); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send verification email")
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// ConfirmEmailVerificationMessage redeems a verification token.
type ConfirmEmailVerificationMessage struct {
	Token      string `json:"token" doc:"Raw single use verification secret."`
	OnResponse func(resp *ConfirmEmailVerificationResponse)
}

func (p ConfirmEmailVerificationMessage) Type() string { return "user.email_verification_confirm" }

type ConfirmEmailVerificationResponse struct {
	UserID  uuid.UUID
	Success bool
}

type ConfirmEmailVerificationHandler struct {
	repo   RepositoryManager
	sink   ActivitySink
	logger Logger
}

func NewConfirmEmailVerificationHandler(repo RepositoryManager, sink ActivitySink, logger Logger) *ConfirmEmailVerificationHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &ConfirmEmailVerificationHandler{
		repo:   repo,
		sink:   normalizeActivitySink(sink),
		logger: logger,
	}
}

func (h *ConfirmEmailVerificationHandler) Execute(ctx context.Context, event ConfirmEmailVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmEmailVerificationHandler) execute(ctx context.Context, event ConfirmEmailVerificationMessage) error {
	resp := &ConfirmEmailVerificationResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Token == "" {
		return ErrTokenInvalidOrUsed
	}

	token, err := h.repo.EmailVerifications().GetByHash(ctx, HashSingleUseSecret(event.Token))
	if err != nil {
		return err
	}

	if token.UsedAt != nil {
		return ErrTokenInvalidOrUsed
	}

	if token.Expired(time.Now()) {
		return ErrTokenExpired
	}

	used, err := h.repo.EmailVerifications().MarkUsed(ctx, token.ID)
	if err != nil {
		return err
	}
	if !used {
		return ErrTokenInvalidOrUsed
	}

	if err := h.repo.Users().MarkEmailVerified(ctx, token.UserID); err != nil {
		return err
	}

	if err := h.repo.EmailVerifications().DeleteUnusedForUser(ctx, token.UserID); err != nil {
		h.logger.Warn("failed to sweep verification tokens for %s: %v", token.UserID, err)
	}

	userID := token.UserID
	if err := h.sink.Record(ctx, ActivityEvent{
		Action:     ActionVerify,
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
