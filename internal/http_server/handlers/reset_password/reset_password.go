package resetPassword

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"supervision_auth/internal/auth"
	resp "supervision_auth/internal/lib/api/response"
	sl "supervision_auth/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type Response struct {
	resp.Response
}

type PasswordResetter interface {
	ResetPassword(ctx context.Context, token, newPassword string) error
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService PasswordResetter,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.resetPassword.New"

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

		if err := authService.ResetPassword(ctx, req.Token, req.NewPassword); err != nil {
			if errors.Is(err, auth.ErrInvalidOrExpiredToken) {
				log.Warn("invalid reset token", sl.Err(err))

				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("invalid or expired token"))

				return
			}

			log.Error("failed to reset password", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("password reset successfully")

		render.JSON(w, r, Response{
			Response: resp.OK(),
		})
	}
}
