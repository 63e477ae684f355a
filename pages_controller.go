package bookbuddy

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-router"
)

// RegisterPageRoutes mounts the server rendered fallback pages for the email
// link flows. The SPA normally handles these paths; these pages make the
// links work without it.
func RegisterPageRoutes[T any](app router.Router[T], controller *PagesController) {
	app.Get("/verify-email/:token", controller.VerifyEmailPage).
		SetName("pages.verify-email")
	app.Get("/reset-password/:token", controller.ResetPasswordForm).
		SetName("pages.reset-password.get")
	app.Post("/reset-password/:token", controller.ResetPasswordSubmit).
		SetName("pages.reset-password.post")
}

// PagesController renders the HTML landing pages.
type PagesController struct {
	Logger Logger
	Repo   RepositoryManager
	Config *Config
	Sink   ActivitySink
}

func NewPagesController(repo RepositoryManager, cfg *Config, sink ActivitySink, logger Logger) *PagesController {
	if logger == nil {
		logger = defLogger{}
	}
	return &PagesController{
		Logger: logger,
		Repo:   repo,
		Config: cfg,
		Sink:   normalizeActivitySink(sink),
	}
}

func (p *PagesController) VerifyEmailPage(ctx router.Context) error {
	token := ctx.Param("token", "")

	handler := NewConfirmEmailVerificationHandler(p.Repo, p.Sink, p.Logger)
	err := handler.Execute(ctx.Context(), ConfirmEmailVerificationMessage{Token: token})

	return ctx.Render("verify_email", router.ViewContext{
		"success":    err == nil,
		"error":      renderableError(err),
		"client_url": p.Config.ClientURL,
	})
}

func (p *PagesController) ResetPasswordForm(ctx router.Context) error {
	return ctx.Render("reset_password", router.ViewContext{
		"token":  ctx.Param("token", ""),
		"errors": map[string]string{},
	})
}

// resetPasswordForm is the server rendered form payload.
type resetPasswordForm struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (r resetPasswordForm) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(6, 100),
		),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (p *PagesController) ResetPasswordSubmit(ctx router.Context) error {
	token := ctx.Param("token", "")
	payload := new(resetPasswordForm)

	if err := ctx.Bind(payload); err != nil {
		return ctx.Render("reset_password", router.ViewContext{
			"token":  token,
			"errors": map[string]string{"form": "Failed to parse form"},
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render("reset_password", router.ViewContext{
			"token":  token,
			"errors": FormatValidationErrorToMap(err),
			"record": payload,
		})
	}

	handler := NewFinalizePasswordResetHandler(p.Repo, p.Config, p.Sink, p.Logger)
	if err := handler.Execute(ctx.Context(), FinalizePasswordResetMessage{
		Token:    token,
		Password: payload.Password,
	}); err != nil {
		return ctx.Render("reset_password", router.ViewContext{
			"token":  token,
			"errors": map[string]string{"token": renderableError(err)},
		})
	}

	return ctx.Render("reset_password_done", router.ViewContext{
		"client_url": p.Config.ClientURL,
	})
}

func renderableError(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}
