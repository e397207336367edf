package logout

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"supervision_auth/internal/auth"
	resp "supervision_auth/internal/lib/api/response"
	sl "supervision_auth/internal/lib/logger"
	"supervision_auth/internal/middleware/authn"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type Response struct {
	resp.Response
}

type LogoutProvider interface {
	Logout(ctx context.Context, userID int64, rawRefreshToken string) error
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService LogoutProvider,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

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

		if err := authService.Logout(ctx, claims.UserID, req.RefreshToken); err != nil {
			if errors.Is(err, auth.ErrInvalidRefreshToken) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("invalid refresh token"))

				return
			}

			log.Error("failed to logout user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("user logged out successfully")

		render.JSON(w, r, Response{
			Response: resp.OK(),
		})
	}
}
