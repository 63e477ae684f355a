package bookbuddy

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable the server needs. It is built exactly once at
// process start (see LoadConfig) and injected by reference; business logic
// never reads the environment on its own.
type Config struct {
	Env       string
	Port      int
	ClientURL string
	APIURL    string

	DatabaseDSN string

	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	Issuer             string
	Audience           string

	EmailVerifyTTL   time.Duration
	PasswordResetTTL time.Duration

	BcryptCost int

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	MailFrom string

	LogLevel string
}

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultVerifyTTLHours  = 24
	defaultResetTTLMinutes = 30
	defaultBcryptCost      = 12
)

var requiredEnv = []string{
	"JWT_ACCESS_SECRET",
	"JWT_REFRESH_SECRET",
	"CLIENT_URL",
}

// LoadConfig reads the process environment, honoring a local .env file when
// present, and fails fast if a required secret is missing.
func LoadConfig() (*Config, error) {
	// best effort, production deployments set real env vars
	_ = godotenv.Load()

	var missing []string
	for _, key := range requiredEnv {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}

	cfg := &Config{
		Env:       envOr("APP_ENV", "development"),
		Port:      envInt("PORT", 5000),
		ClientURL: os.Getenv("CLIENT_URL"),

		DatabaseDSN: envOr("DATABASE_DSN", "file:bookbuddy.db?_pragma=foreign_keys(1)"),

		AccessTokenSecret:  os.Getenv("JWT_ACCESS_SECRET"),
		RefreshTokenSecret: os.Getenv("JWT_REFRESH_SECRET"),
		AccessTokenTTL:     defaultAccessTokenTTL,
		RefreshTokenTTL:    defaultRefreshTokenTTL,
		Issuer:             envOr("JWT_ISSUER", "bookbuddy-api"),
		Audience:           envOr("JWT_AUDIENCE", "bookbuddy-client"),

		EmailVerifyTTL:   time.Duration(envInt("EMAIL_VERIFY_TTL_HOURS", defaultVerifyTTLHours)) * time.Hour,
		PasswordResetTTL: time.Duration(envInt("PASSWORD_RESET_TTL_MINUTES", defaultResetTTLMinutes)) * time.Minute,

		BcryptCost: envInt("BCRYPT_COST", defaultBcryptCost),

		SMTPHost: os.Getenv("SMTP_HOST"),
		SMTPPort: envInt("SMTP_PORT", 587),
		SMTPUser: os.Getenv("SMTP_USER"),
		SMTPPass: os.Getenv("SMTP_PASS"),
		MailFrom: envOr("MAIL_FROM", "BookBuddy <no-reply@bookbuddy.local>"),

		LogLevel: envOr("LOG_LEVEL", ""),
	}

	cfg.APIURL = envOr("API_URL", fmt.Sprintf("http://localhost:%d", cfg.Port))

	if cfg.LogLevel == "" {
		if cfg.IsProduction() {
			cfg.LogLevel = "info"
		} else {
			cfg.LogLevel = "debug"
		}
	}

	return cfg, nil
}

// IsProduction reports whether the server runs with production hardening
// (secure cookies, HSTS, quiet logs).
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
