package authn_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"supervision_auth/internal/lib/jwt"
	"supervision_auth/internal/middleware/authn"
	"supervision_auth/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userProviderFunc func(ctx context.Context, id int64) (models.User, error)

func (f userProviderFunc) UserByID(ctx context.Context, id int64) (models.User, error) {
	return f(ctx, id)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newManager() *jwt.Manager {
	return jwt.NewManager("access-secret", "refresh-secret", 15*time.Minute, time.Hour)
}

func claimsEcho(t *testing.T, got *jwt.Claims) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := authn.FromContext(r.Context())
		require.True(t, ok)

		*got = claims

		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerTokenAccepted(t *testing.T) {
	tokens := newManager()

	access, err := tokens.NewAccessToken(models.User{
		ID:    42,
		Email: "student@university.edu",
		Role:  models.RoleStudent,
	})
	require.NoError(t, err)

	var got jwt.Claims

	h := authn.New(discardLogger(), tokens)(claimsEcho(t, &got))

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.Header.Set("Authorization", "Bearer "+access)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(42), got.UserID)
	assert.Equal(t, models.RoleStudent, got.Role)
}

func TestMissingBearerRejected(t *testing.T) {
	h := authn.New(discardLogger(), newManager())(claimsEcho(t, &jwt.Claims{}))

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshTokenRejectedAsAccess(t *testing.T) {
	tokens := newManager()

	refresh, err := tokens.NewRefreshToken(42, "token-id")
	require.NoError(t, err)

	h := authn.New(discardLogger(), tokens)(claimsEcho(t, &jwt.Claims{}))

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGarbageTokenRejected(t *testing.T) {
	h := authn.New(discardLogger(), newManager())(claimsEcho(t, &jwt.Claims{}))

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireVerifiedEmail(t *testing.T) {
	tokens := newManager()

	access, err := tokens.NewAccessToken(models.User{ID: 42, Email: "student@university.edu", Role: models.RoleStudent})
	require.NoError(t, err)

	tests := []struct {
		name     string
		user     models.User
		userErr  error
		wantCode int
	}{
		{
			name:     "verified and active",
			user:     models.User{ID: 42, IsActive: true, IsEmailVerified: true},
			wantCode: http.StatusOK,
		},
		{
			name:     "email not verified",
			user:     models.User{ID: 42, IsActive: true},
			wantCode: http.StatusForbidden,
		},
		{
			name:     "account deactivated",
			user:     models.User{ID: 42, IsEmailVerified: true},
			wantCode: http.StatusForbidden,
		},
		{
			name:     "user lookup failed",
			userErr:  errors.New("db down"),
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := userProviderFunc(func(_ context.Context, _ int64) (models.User, error) {
				return tt.user, tt.userErr
			})

			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			h := authn.New(discardLogger(), tokens)(
				authn.RequireVerifiedEmail(discardLogger(), users)(next),
			)

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.Header.Set("Authorization", "Bearer "+access)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestRequireVerifiedEmailWithoutAuthn(t *testing.T) {
	users := userProviderFunc(func(_ context.Context, _ int64) (models.User, error) {
		return models.User{}, nil
	})

	h := authn.RequireVerifiedEmail(discardLogger(), users)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
