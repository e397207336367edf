package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supervision_auth/internal/auth"
	"supervision_auth/internal/config"
	forgotPassword "supervision_auth/internal/http_server/handlers/forgot_password"
	"supervision_auth/internal/http_server/handlers/login"
	"supervision_auth/internal/http_server/handlers/logout"
	logoutAll "supervision_auth/internal/http_server/handlers/logout_all"
	"supervision_auth/internal/http_server/handlers/refresh"
	register "supervision_auth/internal/http_server/handlers/register"
	resendEmail "supervision_auth/internal/http_server/handlers/resend_verification_email"
	resetPassword "supervision_auth/internal/http_server/handlers/reset_password"
	"supervision_auth/internal/http_server/handlers/verify"
	"supervision_auth/internal/lib/jwt"
	sl "supervision_auth/internal/lib/logger"
	"supervision_auth/internal/middleware/authn"
	rateLimit "supervision_auth/internal/middleware/ratelimit"
	"supervision_auth/internal/rabbitmq"
	"supervision_auth/internal/storage/postgres"
	redisstore "supervision_auth/internal/storage/redis"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting auth service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", sl.Err(err))
		os.Exit(1)
	}
	defer storage.Close()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", sl.Err(err))
		os.Exit(1)
	}
	defer msgBroker.Close()

	limitStore := setupLimitStore(ctx, cfg, log)

	tokens := jwt.NewManager(
		cfg.Tokens.AccessTokenSecret,
		cfg.Tokens.RefreshTokenSecret,
		cfg.Tokens.AccessTokenTTL,
		cfg.Tokens.RefreshTokenTTL,
	)

	authService := auth.New(log, storage, storage, storage, tokens, msgBroker, auth.Config{
		EmailDomain:        cfg.Platform.EmailDomain,
		BaseURL:            cfg.Platform.BaseURL,
		VerificationTTL:    cfg.Tokens.VerificationTokenTTL,
		VerificationSecret: cfg.Tokens.VerificationTokenSecret,
		ResetTTL:           cfg.Tokens.ResetTokenTTL,
		ResetSecret:        cfg.Tokens.ResetTokenSecret,
	})

	go runTokenGC(ctx, log, storage)

	router := setupRouter(log, authService, tokens, limitStore)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", sl.Err(err))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Main service stopped")
}

func setupRouter(
	log *slog.Logger,
	authService *auth.Auth,
	tokens *jwt.Manager,
	limitStore rateLimit.Store,
) *chi.Mux {
	validate := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// грубый общий потолок на IP поверх поэндпоинтных лимитов
	r.Use(httprate.LimitByIP(100, time.Minute))

	requireAuth := authn.New(log, tokens)

	r.With(rateLimit.Register(log, limitStore)).Post("/register",
		register.New(log, validate, authService),
	)
	r.With(rateLimit.Login(log, limitStore)).Post("/login",
		login.New(log, validate, authService),
	)
	r.With(rateLimit.Refresh(log, limitStore)).Post("/refresh",
		refresh.New(log, validate, authService),
	)
	r.With(requireAuth).Post("/logout",
		logout.New(log, validate, authService),
	)
	r.With(requireAuth).Post("/logout-all",
		logoutAll.New(log, authService),
	)
	r.With(rateLimit.Verify(log, limitStore)).Get("/verify",
		verify.New(log, authService),
	)
	r.With(rateLimit.ForgotPassword(log, limitStore)).Post("/forgot-password",
		forgotPassword.New(log, validate, authService),
	)
	r.With(rateLimit.ResetPassword(log, limitStore)).Post("/reset-password",
		resetPassword.New(log, validate, authService),
	)
	r.With(rateLimit.ResendVerificationEmail(log, limitStore)).Post("/resend-verification",
		resendEmail.New(log, validate, authService),
	)

	return r
}

func setupLimitStore(ctx context.Context, cfg *config.Config, log *slog.Logger) rateLimit.Store {
	if cfg.RateLimit.Store == "redis" {
		store, err := redisstore.New(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Error("failed to connect redis", sl.Err(err))
			os.Exit(1)
		}

		return store
	}

	store := rateLimit.NewMemoryStore()
	go store.Run(ctx, cfg.RateLimit.CleanupInterval)

	return store
}

// * runTokenGC периодически удаляет истекшие refresh записи.
func runTokenGC(ctx context.Context, log *slog.Logger, storage *postgres.PostgresRepo) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := storage.DeleteExpiredRefreshTokens(ctx)
			if err != nil {
				log.Error("failed to delete expired refresh tokens", sl.Err(err))
				continue
			}

			if deleted > 0 {
				log.Info("expired refresh tokens deleted", slog.Int64("count", deleted))
			}
		}
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
