package rateLimit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	resp "supervision_auth/internal/lib/api/response"
	sl "supervision_auth/internal/lib/logger"

	"github.com/go-chi/render"
)

// Attempt — счетчик неудачных попыток для пары (IP, endpoint).
type Attempt struct {
	Count       int
	LastAttempt time.Time
}

// Store абстрагирует хранилище счетчиков: in-memory для одного процесса,
// redis для горизонтального масштабирования.
type Store interface {
	Get(ctx context.Context, key string) (Attempt, error)
	Increment(ctx context.Context, key string, resetAfter time.Duration) (Attempt, error)
	Reset(ctx context.Context, key string) error
}

type Config struct {
	Endpoint  string
	Limit     int
	Window    time.Duration
	BaseDelay time.Duration
	CapDelay  time.Duration
}

func Login(log *slog.Logger, store Store) func(http.Handler) http.Handler {
	return limitByIP(log, store, Config{
		Endpoint:  "login",
		Limit:     5,
		Window:    time.Minute,
		BaseDelay: time.Second,
		CapDelay:  time.Hour,
	})
}

func Register(log *slog.Logger, store Store) func(http.Handler) http.Handler {
	return limitByIP(log, store, Config{
		Endpoint:  "register",
		Limit:     3,
		Window:    5 * time.Minute,
		BaseDelay: 5 * time.Second,
		CapDelay:  time.Hour,
	})
}

func Refresh(log *slog.Logger, store Store) func(http.Handler) http.Handler {
	return limitByIP(log, store, Config{
		Endpoint:  "refresh",
		Limit:     30,
		Window:    10 * time.Minute,
		BaseDelay: time.Second,
		CapDelay:  time.Hour,
	})
}

func ForgotPassword(log *slog.Logger, store Store) func(http.Handler) http.Handler {
	return limitByIP(log, store, Config{
		Endpoint:  "forgot-password",
		Limit:     2,
		Window:    10 * time.Minute,
		BaseDelay: 10 * time.Second,
		CapDelay:  time.Hour,
	})
}

func ResetPassword(log *slog.Logger, store Store) func(http.Handler) http.Handler {
	return limitByIP(log, store, Config{
		Endpoint:  "reset-password",
		Limit:     5,
		Window:    10 * time.Minute,
		BaseDelay: 5 * time.Second,
		CapDelay:  time.Hour,
	})
}

func Verify(log *slog.Logger, store Store) func(http.Handler) http.Handler {
	return limitByIP(log, store, Config{
		Endpoint:  "verify",
		Limit:     10,
		Window:    10 * time.Minute,
		BaseDelay: time.Second,
		CapDelay:  time.Hour,
	})
}

func ResendVerificationEmail(log *slog.Logger, store Store) func(http.Handler) http.Handler {
	return limitByIP(log, store, Config{
		Endpoint:  "resend-verification",
		Limit:     3,
		Window:    time.Hour,
		BaseDelay: time.Minute,
		CapDelay:  time.Hour,
	})
}

// * limitByIP пропускает не больше Limit запросов на пару (IP, endpoint).
// Сверх лимита — 429 с экспоненциально растущим Retry-After:
// min(2^(count-limit-1) * BaseDelay, CapDelay). Счетчик сбрасывается,
// если с последней попытки прошло больше Window.
func limitByIP(log *slog.Logger, store Store, cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf("ratelimit:%s:%s", cfg.Endpoint, clientIP(r))

			attempt, err := store.Increment(r.Context(), key, cfg.Window)
			if err != nil {
				// fail-open: хранилище лимитов недоступно
				log.Error("rate limit store unavailable", sl.Err(err))

				next.ServeHTTP(w, r)

				return
			}

			if attempt.Count > cfg.Limit {
				delay := Backoff(attempt.Count, cfg.Limit, cfg.BaseDelay, cfg.CapDelay)

				log.Warn("rate limit exceeded",
					slog.String("endpoint", cfg.Endpoint),
					slog.Int("count", attempt.Count),
					slog.Duration("retry_after", delay),
				)

				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", delay.Seconds()))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, resp.Error("too many requests"))

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// * Backoff считает задержку для попытки count при пороге limit.
func Backoff(count, limit int, base, cap time.Duration) time.Duration {
	excess := count - limit - 1
	if excess < 0 {
		excess = 0
	}

	if excess > 30 {
		return cap
	}

	delay := base * (1 << uint(excess))
	if delay > cap || delay <= 0 {
		return cap
	}

	return delay
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
