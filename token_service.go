package bookbuddy

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// VerdictReason is the closed set of reasons a token can fail verification.
type VerdictReason string

const (
	ReasonExpired       VerdictReason = "expired"
	ReasonMalformed     VerdictReason = "malformed"
	ReasonBadSignature  VerdictReason = "bad_signature"
	ReasonWrongAudience VerdictReason = "wrong_audience"
	ReasonWrongIssuer   VerdictReason = "wrong_issuer"
)

// Verdict is the outcome of verifying a token. When Valid is false, Reason
// says why, so the session boundary can tell an expired session apart from a
// forged token without string matching on error messages.
type Verdict struct {
	Valid  bool
	Reason VerdictReason
	Claims *JWTClaims
}

// Err maps the verdict onto the transport error taxonomy. Expired sessions
// translate to unauthorized, everything else means the token was never ours
// and the caller gets forbidden.
func (v Verdict) Err() error {
	if v.Valid {
		return nil
	}
	if v.Reason == ReasonExpired {
		return errors.New("Token expired", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode("TOKEN_EXPIRED")
	}
	return errors.New("Invalid token", errors.CategoryAuthz).
		WithCode(errors.CodeForbidden).
		WithTextCode("TOKEN_INVALID").
		WithMetadata(map[string]any{"reason": string(v.Reason)})
}

// TokenService mints and verifies the two JWT families. Access and refresh
// tokens are signed with distinct secrets so one can never be redeemed as the
// other.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	audience      jwt.ClaimStrings
	logger        Logger
	now           func() time.Time
}

// NewTokenService creates a TokenService from the server config.
func NewTokenService(cfg *Config, logger Logger) *TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenService{
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		issuer:        cfg.Issuer,
		audience:      jwt.ClaimStrings{cfg.Audience},
		logger:        logger,
		now:           time.Now,
	}
}

// SignAccess mints a short lived access token for the user.
func (ts *TokenService) SignAccess(userID uuid.UUID) (string, error) {
	now := ts.now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   userID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.accessTTL)),
		},
	}
	return ts.sign(claims, ts.accessSecret)
}

// SignRefresh mints a refresh token bound to a session through the jti
// claim. The returned expiry matches the persisted session row.
func (ts *TokenService) SignRefresh(userID, sessionID uuid.UUID) (string, time.Time, error) {
	now := ts.now()
	expiresAt := now.Add(ts.refreshTTL)
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID.String(),
			Issuer:    ts.issuer,
			Subject:   userID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := ts.sign(claims, ts.refreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyAccess verifies an access token.
func (ts *TokenService) VerifyAccess(raw string) Verdict {
	return ts.verify(raw, ts.accessSecret)
}

// VerifyRefresh verifies a refresh token.
func (ts *TokenService) VerifyRefresh(raw string) Verdict {
	return ts.verify(raw, ts.refreshSecret)
}

// RefreshTTL exposes the refresh lifetime so the HTTP layer can scope its
// cookie to it.
func (ts *TokenService) RefreshTTL() time.Duration {
	return ts.refreshTTL
}

func (ts *TokenService) sign(claims *JWTClaims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

func (ts *TokenService) verify(raw string, secret []byte) Verdict {
	parserOptions := []jwt.ParserOption{
		jwt.WithIssuer(ts.issuer),
		jwt.WithAudience(ts.audience...),
	}

	token, err := jwt.ParseWithClaims(raw, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token verify encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, parserOptions...)

	if err != nil {
		return Verdict{Valid: false, Reason: classifyTokenError(err)}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return Verdict{Valid: false, Reason: ReasonMalformed}
	}
	return Verdict{Valid: true, Claims: claims}
}

func classifyTokenError(err error) VerdictReason {
	switch {
	case stderrors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case stderrors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ReasonBadSignature
	case stderrors.Is(err, jwt.ErrTokenInvalidAudience):
		return ReasonWrongAudience
	case stderrors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ReasonWrongIssuer
	default:
		return ReasonMalformed
	}
}
