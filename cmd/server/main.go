package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	bookbuddy "github.com/bookbuddy/api"
	"github.com/bookbuddy/api/middleware/ratelimit"
	"github.com/bookbuddy/api/middleware/tokenware"
)

type App struct {
	config *bookbuddy.Config
	logger *bookbuddy.ZapLogger
	bunDB  *bun.DB
	repo   bookbuddy.RepositoryManager
	auther *bookbuddy.Auther
	tokens *bookbuddy.TokenService
	sink   bookbuddy.ActivitySink
	srv    router.Server[*fiber.App]
}

func main() {
	cfg, err := bookbuddy.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := bookbuddy.NewZapLogger(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	app := &App{config: cfg, logger: logger}

	ctx := context.Background()

	if err := WithPersistence(ctx, app); err != nil {
		logger.Error("persistence setup failed: %v", err)
		os.Exit(1)
	}

	WithAuth(app)

	if err := WithHTTPServer(app); err != nil {
		logger.Error("http setup failed: %v", err)
		os.Exit(1)
	}

	app.srv.Serve(fmt.Sprintf(":%d", cfg.Port))
	logger.Info("server listening on :%d env=%s", cfg.Port, cfg.Env)

	WaitExitSignal()
	logger.Info("shutting down")
}

func WithPersistence(ctx context.Context, app *App) error {
	sqldb, err := sql.Open(sqliteshim.ShimName, app.config.DatabaseDSN)
	if err != nil {
		return err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if err := bookbuddy.RunMigrations(ctx, db); err != nil {
		return err
	}

	app.bunDB = db
	app.repo = bookbuddy.NewRepositoryManager(db)

	return app.repo.Validate()
}

func WithAuth(app *App) {
	app.tokens = bookbuddy.NewTokenService(app.config, app.logger)

	app.sink = bookbuddy.MultiActivitySink{
		bookbuddy.LoggerActivitySink(app.logger),
		app.repo.AuthEvents(),
	}

	app.auther = bookbuddy.NewAuthenticator(app.repo, app.tokens, app.config).
		WithLogger(app.logger).
		WithActivitySink(app.sink)
}

func WithHTTPServer(app *App) error {
	cfg := app.config

	engine := django.New("./views", ".html")

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		a = router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:           "bookbuddy-api",
			PassLocalsToViews: true,
			Views:             engine,
		}))

		a.Use(requestid.New())
		a.Use(helmet.New())
		a.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.ClientURL,
			AllowCredentials: true,
			AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		}))

		return a
	})

	protected := tokenware.New(tokenware.Config{
		Verifier:    accessVerifier(app.tokens),
		TokenLookup: "header:" + router.HeaderAuthorization + ",cookie:access_token",
		ContextKey:  "user",
	})

	globalLimiter := ratelimit.NewIPRateLimiter(20, 40, app.logger)
	credentialLimiter := ratelimit.NewIPRateLimiter(10, 5, app.logger)
	sensitiveLimiter := ratelimit.NewIPRateLimiter(3, 2, app.logger)

	mailer := bookbuddy.NewSMTPMailer(cfg, app.logger)

	authController := bookbuddy.NewAuthController(
		bookbuddy.WithControllerRepo(app.repo),
		bookbuddy.WithControllerAuther(app.auther),
		bookbuddy.WithControllerCookies(bookbuddy.NewCookieWriter(cfg)),
		bookbuddy.WithControllerMailer(mailer),
		bookbuddy.WithControllerConfig(cfg),
		bookbuddy.WithControllerSink(app.sink),
		bookbuddy.WithControllerLogger(app.logger),
	)

	bookController := bookbuddy.NewBookController(app.repo, app.logger)
	pagesController := bookbuddy.NewPagesController(app.repo, cfg, app.sink, app.logger)

	r := srv.Router()
	r.Use(globalLimiter.Middleware())

	bookbuddy.RegisterAuthRoutes(r, authController, bookbuddy.AuthRouteMiddleware{
		Protected:         protected,
		CredentialLimiter: credentialLimiter.Middleware(),
		SensitiveLimiter:  sensitiveLimiter.Middleware(),
	})
	bookbuddy.RegisterBookRoutes(r, bookController, protected)
	bookbuddy.RegisterPageRoutes(r, pagesController)

	r.Get("/api/health", func(ctx router.Context) error {
		db := "connected"
		pingCtx, cancel := context.WithTimeout(ctx.Context(), 2*time.Second)
		defer cancel()
		if err := app.bunDB.PingContext(pingCtx); err != nil {
			db = "disconnected"
		}
		return ctx.JSON(http.StatusOK, map[string]any{
			"ok":   true,
			"env":  cfg.Env,
			"db":   db,
			"time": time.Now().UTC().Format(time.RFC3339),
		})
	}).SetName("health")

	app.srv = srv

	return nil
}

// accessVerifier adapts the token service to the middleware verdict shape.
func accessVerifier(tokens *bookbuddy.TokenService) tokenware.Verifier {
	return func(raw string) tokenware.Verdict {
		v := tokens.VerifyAccess(raw)
		out := tokenware.Verdict{
			Valid:  v.Valid,
			Reason: tokenware.Reason(v.Reason),
		}
		if v.Claims != nil {
			out.Claims = v.Claims
		}
		return out
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
