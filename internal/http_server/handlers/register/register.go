package register

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
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=student supervisor admin"`
}

type Response struct {
	resp.Response
	UserID       int64  `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type Registerer interface {
	Register(ctx context.Context, email, password string, role models.Role, ip, userAgent string) (models.User, models.TokenPair, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService Registerer,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.register.New"

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

		user, tokens, err := authService.Register(ctx, req.Email, req.Password, models.Role(req.Role), r.RemoteAddr, r.UserAgent())
		if err != nil {
			if errors.Is(err, auth.ErrUserExists) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("email already in use"))

				return
			}
			if errors.Is(err, auth.ErrEmailDomainNotAllowed) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("email domain not allowed"))

				return
			}

			log.Error("failed to register user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("User registered", slog.Int64("id", user.ID))

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, Response{
			Response:     resp.OK(),
			UserID:       user.ID,
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
		})
	}
}
