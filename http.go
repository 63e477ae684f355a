package bookbuddy

import (
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RefreshCookieName is the cookie the refresh token travels in.
const RefreshCookieName = "refresh_token"

// CookieWriter owns the refresh cookie lifecycle. The cookie is HTTP only
// and strict same-site; Secure tracks the environment.
type CookieWriter struct {
	secure bool
}

// NewCookieWriter builds a writer from the server config.
func NewCookieWriter(cfg *Config) *CookieWriter {
	return &CookieWriter{secure: cfg.IsProduction()}
}

// SetRefresh installs the refresh cookie until the session expires.
func (w *CookieWriter) SetRefresh(c router.Context, token string, expiresAt time.Time) {
	c.Cookie(&router.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   w.secure,
		SameSite: "Strict",
	})
}

// ClearRefresh drops the refresh cookie.
func (w *CookieWriter) ClearRefresh(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   w.secure,
		SameSite: "Strict",
	})
}

// HTTPStatusFor maps a rich error onto its transport status.
func HTTPStatusFor(err error) int {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return http.StatusInternalServerError
	}

	if richErr.Code >= 400 && richErr.Code < 600 {
		return richErr.Code
	}

	switch richErr.Category {
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryAuthz:
		return http.StatusForbidden
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryValidation, errors.CategoryBadInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as the API error envelope. Internal errors are
// logged with their metadata but reach the client as an opaque message.
func WriteError(c router.Context, logger Logger, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	status := HTTPStatusFor(richErr)

	if status >= 500 {
		if logger != nil {
			logger.Error(
				"request failed: %s category=%s details=%s",
				richErr.Message, richErr.Category, print.MaybePrettyJSON(richErr.Metadata),
			)
		}
		return c.JSON(status, map[string]any{
			"error": "Internal server error",
		})
	}

	body := map[string]any{
		"error": richErr.Message,
	}
	if richErr.TextCode != "" {
		body["code"] = richErr.TextCode
	}

	return c.JSON(status, body)
}
