package logoutAll

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	resp "supervision_auth/internal/lib/api/response"
	sl "supervision_auth/internal/lib/logger"
	"supervision_auth/internal/middleware/authn"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
}

type LogoutAllProvider interface {
	LogoutAll(ctx context.Context, userID int64) error
}

// * New гасит все активные сессии пользователя (реакция на инцидент).
func New(
	log *slog.Logger,
	authService LogoutAllProvider,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logoutAll.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		claims, ok := authn.FromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("unauthenticated"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := authService.LogoutAll(ctx, claims.UserID); err != nil {
			log.Error("failed to logout all sessions", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("all sessions revoked", slog.Int64("uid", claims.UserID))

		render.JSON(w, r, Response{
			Response: resp.OK(),
		})
	}
}
