package authn

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	resp "supervision_auth/internal/lib/api/response"
	"supervision_auth/internal/lib/jwt"
	sl "supervision_auth/internal/lib/logger"
	"supervision_auth/internal/models"

	"github.com/go-chi/render"
)

type ctxKey struct{}

type UserProvider interface {
	UserByID(ctx context.Context, id int64) (models.User, error)
}

// * New проверяет заголовок Authorization: Bearer и кладет claims в контекст.
func New(log *slog.Logger, tokens *jwt.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("missing bearer token"))

				return
			}

			claims, err := tokens.Verify(token, jwt.KindAccess)
			if err != nil {
				log.Warn("access token rejected", sl.Err(err))

				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("invalid access token"))

				return
			}

			next.ServeHTTP(w, r.WithContext(
				context.WithValue(r.Context(), ctxKey{}, claims),
			))
		})
	}
}

// * RequireVerifiedEmail пускает только активных пользователей с подтвержденной
// почтой. Вешается на защищенные маршруты, не на login.
func RequireVerifiedEmail(log *slog.Logger, users UserProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := FromContext(r.Context())
			if !ok {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("unauthenticated"))

				return
			}

			user, err := users.UserByID(r.Context(), claims.UserID)
			if err != nil {
				log.Error("failed to load user", sl.Err(err))

				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("unauthenticated"))

				return
			}

			if !user.IsActive {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("account deactivated"))

				return
			}

			if !user.IsEmailVerified {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("email not verified"))

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func FromContext(ctx context.Context) (jwt.Claims, bool) {
	claims, ok := ctx.Value(ctxKey{}).(jwt.Claims)

	return claims, ok
}
