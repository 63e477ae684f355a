package tokenware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

var (
	defaultTokenLookup    = "header:" + router.HeaderAuthorization
	ErrTokenMissing       = errors.New("missing or malformed token")
	errVerifierIsRequired = "TOKENWARE: middleware configuration: Verifier is required."
)

// Reason is the closed set of verification failures, mirrored from the token
// service to avoid an import cycle.
type Reason string

const (
	ReasonMissing       Reason = "missing"
	ReasonExpired       Reason = "expired"
	ReasonMalformed     Reason = "malformed"
	ReasonBadSignature  Reason = "bad_signature"
	ReasonWrongAudience Reason = "wrong_audience"
	ReasonWrongIssuer   Reason = "wrong_issuer"
)

// AuthClaims mirrors the claims surface the auth package exposes, duplicated
// here so the middleware does not import it.
type AuthClaims interface {
	Subject() string
	UserID() string
	SessionID() string
	Expires() time.Time
	IssuedAt() time.Time
}

// Verdict is the middleware-local verification outcome.
type Verdict struct {
	Valid  bool
	Reason Reason
	Claims AuthClaims
}

// Verifier checks a raw token and reports the verdict.
type Verifier func(raw string) Verdict

// ValidationListener is invoked after a token has been verified, before the
// request proceeds.
type ValidationListener func(ctx router.Context, claims AuthClaims) error

type Config struct {
	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	ErrorHandler   func(router.Context, Reason) error
	ContextKey     string
	TokenLookup    string
	AuthScheme     string
	// Verifier is required
	Verifier Verifier

	// ContextEnricher is an optional function to propagate claims to the
	// standard Go context after successful verification.
	ContextEnricher func(c context.Context, claims AuthClaims) context.Context

	// ValidationListeners run after verification succeeds.
	ValidationListeners []ValidationListener
}

// New builds the session boundary middleware. Extraction strategies run in
// the order TokenLookup lists them, the first hit wins.
func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := GetDefaultConfig(config...)
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			raw, err := ExtractRawTokenFromContext(ctx, cfg.getExtractors())
			if err != nil || raw == "" {
				return cfg.ErrorHandler(ctx, ReasonMissing)
			}

			verdict := cfg.Verifier(raw)
			if !verdict.Valid {
				return cfg.ErrorHandler(ctx, verdict.Reason)
			}

			if err := cfg.runValidationListeners(ctx, verdict.Claims); err != nil {
				return cfg.ErrorHandler(ctx, ReasonMalformed)
			}

			ctx.Locals(cfg.ContextKey, verdict.Claims)

			if cfg.ContextEnricher != nil {
				stdCtx := ctx.Context()
				ctx.SetContext(cfg.ContextEnricher(stdCtx, verdict.Claims))
			}

			return cfg.SuccessHandler(ctx)
		}
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = DefaultErrorHandler
	}

	if cfg.Verifier == nil {
		panic(errVerifierIsRequired)
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

// DefaultErrorHandler maps failure reasons onto the transport statuses:
// absent and expired credentials are unauthorized, a token that was never
// ours is forbidden.
func DefaultErrorHandler(c router.Context, reason Reason) error {
	switch reason {
	case ReasonMissing:
		return c.JSON(router.StatusUnauthorized, map[string]string{
			"error": "Not authorized",
		})
	case ReasonExpired:
		return c.JSON(router.StatusUnauthorized, map[string]string{
			"error": "Token expired",
		})
	default:
		return c.JSON(router.StatusForbidden, map[string]string{
			"error": "Invalid token",
		})
	}
}

func ExtractRawTokenFromContext(ctx router.Context, extractors []TokenExtractor) (string, error) {
	var raw string
	var err error

	for _, extractor := range extractors {
		raw, err = extractor(ctx)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

func (cfg *Config) getExtractors() []TokenExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

func (cfg *Config) runValidationListeners(ctx router.Context, claims AuthClaims) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(ctx, claims); err != nil {
			return err
		}
	}
	return nil
}

// GetExtractors parses a lookup string like
// "header:Authorization,cookie:refresh_token" into ordered extractors.
func GetExtractors(tokenLookup string, authSchemes ...string) []TokenExtractor {
	extractors := make([]TokenExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 {
		authScheme = authSchemes[0]
	}

	rootParts := strings.Split(tokenLookup, ",")
	for _, rootPart := range rootParts {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")
		if len(parts) != 2 {
			continue
		}

		for i, el := range parts {
			parts[i] = strings.TrimSpace(el)
		}

		switch parts[0] {
		case "header":
			extractors = append(extractors, tokenFromHeader(parts[1], authScheme))
		case "query":
			extractors = append(extractors, tokenFromQuery(parts[1]))
		case "param":
			extractors = append(extractors, tokenFromParam(parts[1]))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(parts[1]))
		}
	}

	return extractors
}

type TokenExtractor func(c router.Context) (string, error)

// tokenFromHeader returns a function that extracts a token from the request
// header, stripping the auth scheme prefix.
func tokenFromHeader(header string, authScheme string) func(c router.Context) (string, error) {
	return func(c router.Context) (string, error) {
		a := c.GetString(header, "")
		authScheme = strings.TrimSpace(authScheme)
		l := len(authScheme)
		if l == 0 {
			return "", ErrTokenMissing
		}
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrTokenMissing
	}
}

// tokenFromQuery returns a function that extracts a token from the query string.
func tokenFromQuery(param string) func(c router.Context) (string, error) {
	return func(c router.Context) (string, error) {
		token := c.Query(param, "")
		if token == "" {
			return "", ErrTokenMissing
		}
		return token, nil
	}
}

// tokenFromParam returns a function that extracts a token from the url params.
func tokenFromParam(param string) func(c router.Context) (string, error) {
	return func(c router.Context) (string, error) {
		token := c.Param(param)
		if token == "" {
			return "", ErrTokenMissing
		}
		return token, nil
	}
}

// tokenFromCookie returns a function that extracts a token from the named cookie.
func tokenFromCookie(name string) func(c router.Context) (string, error) {
	return func(c router.Context) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrTokenMissing
		}
		return token, nil
	}
}
