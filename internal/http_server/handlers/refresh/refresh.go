package refresh

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"supervision_auth/internal/auth"
	resp "supervision_auth/internal/lib/api/response"
	sl "supervision_auth/internal/lib/logger"
	"supervision_auth/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type Response struct {
	resp.Response
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type Refresher interface {
	Refresh(ctx context.Context, rawRefreshToken, ip, userAgent string) (models.TokenPair, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService Refresher,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.refresh.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		log.Info("Request body decoded")

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		tokens, err := authService.Refresh(ctx, req.RefreshToken, r.RemoteAddr, r.UserAgent())
		if err != nil {
			if errors.Is(err, auth.ErrInvalidRefreshToken) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("invalid refresh token"))

				return
			}

			log.Error("failed to refresh tokens", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("Tokens refreshed successfully")

		render.JSON(w, r, Response{
			Response:     resp.OK(),
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
		})
	}
}
