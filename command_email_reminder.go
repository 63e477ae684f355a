package bookbuddy

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// RequestEmailReminderMessage mails the email address tied to a username.
// Like the reset request, the response is the same fixed message regardless
// of whether the username maps to an account.
type RequestEmailReminderMessage struct {
	Username   string `json:"username" doc:"Username asking for its email address."`
	OnResponse func(resp *RequestEmailReminderResponse)
}

func (p RequestEmailReminderMessage) Type() string { return "user.email_reminder_request" }

type RequestEmailReminderResponse struct {
	Success bool
}

type RequestEmailReminderHandler struct {
	repo   RepositoryManager
	mailer Mailer
	sink   ActivitySink
	logger Logger
}

func NewRequestEmailReminderHandler(repo RepositoryManager, mailer Mailer, sink ActivitySink, logger Logger) *RequestEmailReminderHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &RequestEmailReminderHandler{
		repo:   repo,
		mailer: mailer,
		sink:   normalizeActivitySink(sink),
		logger: logger,
	}
}

func (h *RequestEmailReminderHandler) Execute(ctx context.Context, event RequestEmailReminderMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email reminder request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestEmailReminderHandler) execute(ctx context.Context, event RequestEmailReminderMessage) error {
	resp := &RequestEmailReminderResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByUsername(ctx, NormalizeUsername(event.Username))
	if err != nil {
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			h.recordRequest(ctx, event.Username, nil)
			resp.Success = true
			if event.OnResponse != nil {
				event.OnResponse(resp)
			}
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for email reminder")
	}

	h.recordRequest(ctx, event.Username, &user.ID)

	if err := h.mailer.SendEmailReminder(ctx, user.Email, user.Username); err != nil {
		h.logger.Error("failed to send email reminder to %s: %v", user.Email, err)
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// recordRequest audits the reminder request with the resolved account when
// the username matched one.
func (h *RequestEmailReminderHandler) recordRequest(ctx context.Context, username string, userID *uuid.UUID) {
	if err := h.sink.Record(ctx, ActivityEvent{
		Action:     ActionReminderRequest,
		Level:      ActivityInfo,
		UserID:     userID,
		Metadata:   map[string]any{"username": username},
		OccurredAt: time.Now(),
	}); err != nil {
		h.logger.Warn("activity sink record error: %v", err)
	}
}
