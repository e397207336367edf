package login_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"supervision_auth/internal/auth"
	"supervision_auth/internal/http_server/handlers/login"
	"supervision_auth/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginFunc func(ctx context.Context, email, password, ip, userAgent string) (models.User, models.TokenPair, error)

func (f loginFunc) Login(ctx context.Context, email, password, ip, userAgent string) (models.User, models.TokenPair, error) {
	return f(ctx, email, password, ip, userAgent)
}

func doLogin(t *testing.T, provider login.LoginProvider, body string) *httptest.ResponseRecorder {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := login.New(log, validator.New(), provider)

	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(body))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func TestLoginSuccess(t *testing.T) {
	provider := loginFunc(func(_ context.Context, email, password, _, _ string) (models.User, models.TokenPair, error) {
		assert.Equal(t, "student@university.edu", email)
		assert.Equal(t, "password123", password)

		return models.User{ID: 7, Email: email},
			models.TokenPair{AccessToken: "access", RefreshToken: "refresh"},
			nil
	})

	rec := doLogin(t, provider, `{"email": "student@university.edu", "password": "password123"}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var got login.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))

	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, "access", got.AccessToken)
	assert.Equal(t, "refresh", got.RefreshToken)
}

func TestLoginInvalidCredentials(t *testing.T) {
	provider := loginFunc(func(context.Context, string, string, string, string) (models.User, models.TokenPair, error) {
		return models.User{}, models.TokenPair{}, auth.ErrInvalidCredentials
	})

	rec := doLogin(t, provider, `{"email": "student@university.edu", "password": "wrong"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginValidation(t *testing.T) {
	provider := loginFunc(func(context.Context, string, string, string, string) (models.User, models.TokenPair, error) {
		t.Fatal("auth service must not be called on invalid request")

		return models.User{}, models.TokenPair{}, nil
	})

	tests := []struct {
		name string
		body string
	}{
		{"not an email", `{"email": "not-an-email", "password": "password123"}`},
		{"missing password", `{"email": "student@university.edu"}`},
		{"empty body", `{}`},
		{"garbage", `not-json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doLogin(t, provider, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestLoginInternalError(t *testing.T) {
	provider := loginFunc(func(context.Context, string, string, string, string) (models.User, models.TokenPair, error) {
		return models.User{}, models.TokenPair{}, errors.New("db down")
	})

	rec := doLogin(t, provider, `{"email": "student@university.edu", "password": "password123"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
