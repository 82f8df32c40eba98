package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/guardpost/guardpost/internal/app"
	"github.com/guardpost/guardpost/internal/auth"
	"github.com/guardpost/guardpost/internal/authz"
	"github.com/guardpost/guardpost/internal/observability"
	"github.com/guardpost/guardpost/internal/platform/cache"
	"github.com/guardpost/guardpost/internal/platform/db"
	"github.com/guardpost/guardpost/internal/ratelimit"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/tenancy"
	"github.com/guardpost/guardpost/internal/verification"
	"github.com/guardpost/guardpost/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "guardpost_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	limiter := ratelimit.NewLimiter(ratelimit.NewRedisStore(redisClient))

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	verifier := verification.NewService(
		verification.NewRedisStore(redisClient),
		limiter,
		jobs.NewNotifier(jobsClient),
		logger,
		verification.Config{
			CodeTTL:           cfg.VerificationCodeTTL,
			MaxCodeAttempts:   cfg.VerificationMaxAttempts,
			MaxIssuePerWindow: cfg.VerificationMaxIssue,
			IssueWindow:       cfg.VerificationIssueWindow,
			ResendCooldown:    cfg.VerificationResendCooldown,
		},
	)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, limiter, verifier, auditLogger, logger, auth.ServiceConfig{
		LockoutThreshold: cfg.LockoutThreshold,
		LockoutDuration:  cfg.LockoutDuration,
		LoginLimit:       cfg.LoginRateLimit,
		LoginWindow:      cfg.LoginRateWindow,
	})
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager).WithMetrics(metrics)

	tenancyRepo := tenancy.NewRepository(dbpool)
	tenancyHandler := tenancy.NewHandler(logger, tenancyRepo)

	grantRepo := authz.NewRepository(dbpool)
	authzMiddleware := authz.NewMiddleware(grantRepo, tenancyRepo, logger, auditLogger)
	authzMiddleware.Metrics = metrics

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		TenancyHandler: tenancyHandler,
		Authz:          authzMiddleware,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
