package bookbuddy

import (
	"net/http"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Fixed answers for the reset and reminder request endpoints, byte identical
// whether or not the account exists.
const (
	genericResetMessage    = "If that email exists, a reset link has been sent"
	genericReminderMessage = "If that username exists, the associated email has been sent to you"
)

// AuthRouteMiddleware bundles the middlewares the auth routes mount.
type AuthRouteMiddleware struct {
	// Protected guards the authenticated endpoints.
	Protected router.MiddlewareFunc
	// CredentialLimiter throttles login and register.
	CredentialLimiter router.MiddlewareFunc
	// SensitiveLimiter throttles the email sending endpoints.
	SensitiveLimiter router.MiddlewareFunc
}

// RegisterAuthRoutes mounts the auth API onto the router.
func RegisterAuthRoutes[T any](app router.Router[T], controller *AuthController, mw AuthRouteMiddleware) {
	credential := middlewares(mw.CredentialLimiter)
	sensitive := middlewares(mw.SensitiveLimiter)
	protected := middlewares(mw.Protected)
	protectedSensitive := middlewares(mw.Protected, mw.SensitiveLimiter)

	app.Post("/api/auth/register", controller.Register, credential...).
		SetName("auth.register")
	app.Post("/api/auth/login", controller.Login, credential...).
		SetName("auth.login")
	app.Post("/api/auth/refresh", controller.Refresh).
		SetName("auth.refresh")
	app.Post("/api/auth/logout", controller.Logout).
		SetName("auth.logout")
	app.Post("/api/auth/logout-all", controller.LogoutAll, protected...).
		SetName("auth.logout-all")
	app.Get("/api/auth/me", controller.Me, protected...).
		SetName("auth.me")

	app.Post("/api/auth/request-verification", controller.RequestVerification, protectedSensitive...).
		SetName("auth.request-verification")
	app.Post("/api/auth/verify-email/:token", controller.VerifyEmail).
		SetName("auth.verify-email")

	app.Post("/api/auth/request-password-reset", controller.RequestPasswordReset, sensitive...).
		SetName("auth.request-password-reset")
	app.Post("/api/auth/reset-password/:token", controller.ResetPassword, credential...).
		SetName("auth.reset-password")

	app.Post("/api/auth/request-email-reminder", controller.RequestEmailReminder, sensitive...).
		SetName("auth.request-email-reminder")
}

func middlewares(mws ...router.MiddlewareFunc) []router.MiddlewareFunc {
	out := make([]router.MiddlewareFunc, 0, len(mws))
	for _, mw := range mws {
		if mw != nil {
			out = append(out, mw)
		}
	}
	return out
}

// AuthController serves the JSON auth API.
type AuthController struct {
	Debug   bool
	Logger  Logger
	Repo    RepositoryManager
	Auther  *Auther
	Cookies *CookieWriter
	Mailer  Mailer
	Config  *Config
	Sink    ActivitySink
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Sink:   noopActivitySink{},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing Auther in auth controller...")
	}

	if c.Cookies == nil {
		panic("Missing CookieWriter in auth controller...")
	}

	if c.Config == nil {
		panic("Missing Config in auth controller...")
	}

	return c
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuther(auther *Auther) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerCookies(cookies *CookieWriter) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Cookies = cookies
		return c
	}
}

func WithControllerMailer(mailer Mailer) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Mailer = mailer
		return c
	}
}

func WithControllerConfig(cfg *Config) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Config = cfg
		return c
	}
}

func WithControllerSink(sink ActivitySink) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Sink = normalizeActivitySink(sink)
		return c
	}
}

// RegisterRequest payload
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Username,
			validation.Required,
			validation.Length(3, 20),
			validation.Match(usernameRe).Error("may only contain letters, numbers, and underscores"),
		),
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(6, 100),
		),
	)
}

func (a *AuthController) Register(ctx router.Context) error {
	payload := new(RegisterRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.badRequest(ctx, "Invalid request body")
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	if a.Debug {
		a.Logger.Debug("register payload: %s", print.MaybePrettyJSON(payload))
	}

	result, err := a.Auther.Register(ctx.Context(), RegisterInput{
		Username: payload.Username,
		Email:    payload.Email,
		Password: payload.Password,
	})
	if err != nil {
		return WriteError(ctx, a.Logger, err)
	}

	a.Cookies.SetRefresh(ctx, result.RefreshToken, result.RefreshExpiresAt)

	return ctx.JSON(http.StatusCreated, map[string]any{
		"user":        result.User.Public(),
		"accessToken": result.AccessToken,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) Login(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.badRequest(ctx, "Invalid request body")
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	result, err := a.Auther.Login(ctx.Context(), payload.Identifier, payload.Password)
	if err != nil {
		return WriteError(ctx, a.Logger, err)
	}

	a.Cookies.SetRefresh(ctx, result.RefreshToken, result.RefreshExpiresAt)

	return ctx.JSON(http.StatusOK, map[string]any{
		"user":        result.User.Public(),
		"accessToken": result.AccessToken,
	})
}

func (a *AuthController) Refresh(ctx router.Context) error {
	raw := ctx.Cookies(RefreshCookieName)
	if raw == "" {
		return WriteError(ctx, a.Logger, ErrMissingRefreshToken)
	}

	result, err := a.Auther.Refresh(ctx.Context(), raw)
	if err != nil {
		a.Cookies.ClearRefresh(ctx)
		return WriteError(ctx, a.Logger, err)
	}

	a.Cookies.SetRefresh(ctx, result.RefreshToken, result.RefreshExpiresAt)

	return ctx.JSON(http.StatusOK, map[string]any{
		"accessToken": result.AccessToken,
	})
}

func (a *AuthController) Logout(ctx router.Context) error {
	raw := ctx.Cookies(RefreshCookieName)
	a.Auther.Logout(ctx.Context(), raw)
	a.Cookies.ClearRefresh(ctx)

	return ctx.JSON(http.StatusOK, map[string]string{
		"message": "Logged out",
	})
}

func (a *AuthController) LogoutAll(ctx router.Context) error {
	userID, ok := UserIDFromRouter(ctx, "")
	if !ok {
		return WriteError(ctx, a.Logger, ErrMissingRefreshToken)
	}

	revoked, err := a.Auther.LogoutAll(ctx.Context(), userID)
	if err != nil {
		return WriteError(ctx, a.Logger, err)
	}

	a.Cookies.ClearRefresh(ctx)

	return ctx.JSON(http.StatusOK, map[string]any{
		"message": "Logged out everywhere",
		"revoked": revoked,
	})
}

func (a *AuthController) Me(ctx router.Context) error {
	userID, ok := UserIDFromRouter(ctx, "")
	if !ok {
		return WriteError(ctx, a.Logger, ErrUserNotFound)
	}

	user, err := a.Repo.Users().GetByID(ctx.Context(), userID)
	if err != nil {
		return WriteError(ctx, a.Logger, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"user": user.Public(),
	})
}

func (a *AuthController) RequestVerification(ctx router.Context) error {
	userID, ok := UserIDFromRouter(ctx, "")
	if !ok {
		return WriteError(ctx, a.Logger, ErrUserNotFound)
	}

	var res *RequestEmailVerificationResponse
	req := RequestEmailVerificationMessage{
		UserID: userID,
		OnResponse: func(resp *RequestEmailVerificationResponse) {
			res = resp
		},
	}

	handler := NewRequestEmailVerificationHandler(a.Repo, a.Mailer, a.Config, a.Sink, a.Logger)
	if err := handler.Execute(ctx.Context(), req); err != nil {
		return WriteError(ctx, a.Logger, err)
	}

	if res != nil && res.AlreadyVerified {
		return ctx.JSON(http.StatusOK, map[string]string{
			"message": "Email already verified",
		})
	}

	return ctx.JSON(http.StatusOK, map[string]string{
		"message": "Verification email sent",
	})
}

func (a *AuthController) VerifyEmail(ctx router.Context) error {
	token := ctx.Param("token", "")

	handler := NewConfirmEmailVerificationHandler(a.Repo, a.Sink, a.Logger)
	if err := handler.Execute(ctx.Context(), ConfirmEmailVerificationMessage{Token: token}); err != nil {
		return WriteError(ctx, a.Logger, err)
	}

	return ctx.JSON(http.StatusOK, map[string]string{
		"message": "Email verified",
	})
}

// EmailRequest is the payload of the password reset request.
type EmailRequest struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r EmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

// UsernameRequest is the payload of the email reminder request.
type UsernameRequest struct {
	Username string `json:"username"`
}

// Validate will run validation rules
func (r UsernameRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Username,
			validation.Required,
			validation.Length(3, 20),
			validation.Match(usernameRe).Error("may only contain letters, numbers, and underscores"),
		),
	)
}

func (a *AuthController) RequestPasswordReset(ctx router.Context) error {
	payload := new(EmailRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.badRequest(ctx, "Invalid request body")
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	handler := NewRequestPasswordResetHandler(a.Repo, a.Mailer, a.Config, a.Sink, a.Logger)
	if err := handler.Execute(ctx.Context(), RequestPasswordResetMessage{Email: payload.Email}); err != nil {
		// the generic answer holds even when the pipeline fails
		a.Logger.Error("password reset request failed: %v", err)
	}

	return ctx.JSON(http.StatusOK, map[string]string{
		"message": genericResetMessage,
	})
}

// ResetPasswordRequest payload
type ResetPasswordRequest struct {
	Password string `json:"password"`
}

// Validate will run validation rules
func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(6, 100),
		),
	)
}

func (a *AuthController) ResetPassword(ctx router.Context) error {
	token := ctx.Param("token", "")
	payload := new(ResetPasswordRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.badRequest(ctx, "Invalid request body")
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	handler := NewFinalizePasswordResetHandler(a.Repo, a.Config, a.Sink, a.Logger)
	if err := handler.Execute(ctx.Context(), FinalizePasswordResetMessage{
		Token:    token,
		Password: payload.Password,
	}); err != nil {
		return WriteError(ctx, a.Logger, err)
	}

	return ctx.JSON(http.StatusOK, map[string]string{
		"message": "Password updated",
	})
}

func (a *AuthController) RequestEmailReminder(ctx router.Context) error {
	payload := new(UsernameRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.badRequest(ctx, "Invalid request body")
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	handler := NewRequestEmailReminderHandler(a.Repo, a.Mailer, a.Sink, a.Logger)
	if err := handler.Execute(ctx.Context(), RequestEmailReminderMessage{Username: payload.Username}); err != nil {
		a.Logger.Error("email reminder request failed: %v", err)
	}

	return ctx.JSON(http.StatusOK, map[string]string{
		"message": genericReminderMessage,
	})
}

func (a *AuthController) badRequest(ctx router.Context, msg string) error {
	return ctx.JSON(http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func (a *AuthController) validationFailed(ctx router.Context, err error) error {
	return ctx.JSON(http.StatusBadRequest, map[string]any{
		"error":  "Validation failed",
		"fields": FormatValidationErrorToMap(err),
	})
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field-to-message map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["error"] = err.Error()
	return out
}
