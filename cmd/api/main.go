// Package main is the entrypoint for the Mini App backend API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/cookiespooky/np-tma-backend/internal/cache"
	"github.com/cookiespooky/np-tma-backend/internal/config"
	"github.com/cookiespooky/np-tma-backend/internal/handler"
	"github.com/cookiespooky/np-tma-backend/internal/initdata"
	"github.com/cookiespooky/np-tma-backend/internal/middleware"
	"github.com/cookiespooky/np-tma-backend/internal/notifier"
	"github.com/cookiespooky/np-tma-backend/internal/repository"
	"github.com/cookiespooky/np-tma-backend/internal/server"
	"github.com/cookiespooky/np-tma-backend/internal/service"
)

func main() {
	ctx := context.Background()

	// Load configuration. Any missing required setting is fatal: the
	// service cannot serve a single route without it.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	allowedOrigin, err := cfg.CanonicalOrigin()
	if err != nil {
		logger.Error("invalid allowed origin", "error", err)
		os.Exit(1)
	}

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL, cfg.BotToken)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.Migrate(ctx); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL, cfg.BotToken)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	// Initialize the lead notifier. This validates the bot token against
	// the Bot API, so a bad credential fails here, not on the first lead.
	leadNotifier, err := notifier.New(cfg.BotToken, cfg.TelegramAPIBaseURL, cfg.OperatorChatID)
	if err != nil {
		logger.Error("failed to initialize notifier",
			slog.String("error", sanitizeError(err, cfg.BotToken)),
		)
		os.Exit(1)
	}
	logger.Info("notifier ready")

	// Wire the session service
	verifier := initdata.NewVerifier(cfg.BotToken, cfg.AuthTTL)
	sessionService := service.NewSessionService(
		verifier,
		repo,
		cacheClient,
		leadNotifier,
		cfg.LeadRateLimit,
		cfg.StatsCacheTTL,
		logger,
	)

	// Initialize handlers
	h := handler.New()
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	sessionHandler := handler.NewSessionHandler(sessionService, logger)

	r := setupRouter(h, healthHandler, sessionHandler, allowedOrigin, cfg, logger)

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)
	srv.OnShutdown("redis", func(ctx context.Context) error {
		return cacheClient.Close()
	})
	srv.OnShutdown("postgres", func(ctx context.Context) error {
		repo.Close()
		return nil
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"allowed_origin", allowedOrigin,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	h *handler.Handler,
	healthHandler *handler.HealthHandler,
	sessionHandler *handler.SessionHandler,
	allowedOrigin string,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware. CORS runs for every route, so preflight is
	// answered regardless of path; health probes send no Origin header
	// and pass the gate untouched.
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(cfg.IsDevelopment()))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))
	r.Use(middleware.CORS(allowedOrigin))

	// Health endpoints
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)

	// Mini App routes
	r.Post("/validate", sessionHandler.Validate)
	r.Post("/lead", sessionHandler.Lead)

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

// sanitizeError strips secrets from an error message before logging.
func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		msg = strings.ReplaceAll(msg, secret, "[redacted]")
	}

	return msg
}
