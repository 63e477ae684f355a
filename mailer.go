package bookbuddy

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/goliatone/go-errors"
)

// SMTPMailer delivers transactional mail over plain SMTP with AUTH when
// credentials are configured.
type SMTPMailer struct {
	host   string
	port   int
	user   string
	pass   string
	from   string
	logger Logger
}

var _ Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer builds a mailer from the server config.
func NewSMTPMailer(cfg *Config, logger Logger) *SMTPMailer {
	if logger == nil {
		logger = defLogger{}
	}
	return &SMTPMailer{
		host:   cfg.SMTPHost,
		port:   cfg.SMTPPort,
		user:   cfg.SMTPUser,
		pass:   cfg.SMTPPass,
		from:   cfg.MailFrom,
		logger: logger,
	}
}

func (m *SMTPMailer) SendEmailVerification(ctx context.Context, to, username, link string) error {
	body := fmt.Sprintf(
		"Hi %s,\n\nConfirm your email address by opening the link below:\n\n%s\n\nThe link is valid for a limited time and can be used once.\n",
		username, link,
	)
	return m.send(ctx, to, "Verify your BookBuddy email", body)
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, username, link string) error {
	body := fmt.Sprintf(
		"Hi %s,\n\nA password reset was requested for your account. Open the link below to choose a new password:\n\n%s\n\nIf you did not ask for this you can ignore this message.\n",
		username, link,
	)
	return m.send(ctx, to, "Reset your BookBuddy password", body)
}

func (m *SMTPMailer) SendEmailReminder(ctx context.Context, to, username string) error {
	body := fmt.Sprintf(
		"Hi %s,\n\nYour email address for BookBuddy is: %s\n",
		username, to,
	)
	return m.send(ctx, to, "Your BookBuddy email address", body)
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "context cancelled before sending email")
	}

	// local development runs without an SMTP host, print instead of failing
	if m.host == "" {
		m.logger.Info("email (no SMTP configured) to=%s subject=%q\n%s", to, subject, body)
		return nil
	}

	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}

	if err := smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg)); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "smtp send failed").
			WithMetadata(map[string]any{"to": to})
	}

	return nil
}
