package forgotPassword_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	forgotPassword "supervision_auth/internal/http_server/handlers/forgot_password"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

type requestResetFunc func(ctx context.Context, email string) error

func (f requestResetFunc) RequestPasswordReset(ctx context.Context, email string) error {
	return f(ctx, email)
}

func doForgot(t *testing.T, requester forgotPassword.ResetRequester, body string) *httptest.ResponseRecorder {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := forgotPassword.New(log, validator.New(), requester)

	req := httptest.NewRequest(http.MethodPost, "/forgot-password", bytes.NewBufferString(body))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

// ответ одинаковый для известной и неизвестной почты
func TestForgotPasswordAlwaysOK(t *testing.T) {
	known := doForgot(t, requestResetFunc(func(_ context.Context, email string) error {
		assert.Equal(t, "student@university.edu", email)

		return nil
	}), `{"email": "student@university.edu"}`)

	unknown := doForgot(t, requestResetFunc(func(context.Context, string) error {
		return nil
	}), `{"email": "nobody@university.edu"}`)

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
}

func TestForgotPasswordRejectsInvalidEmail(t *testing.T) {
	rec := doForgot(t, requestResetFunc(func(context.Context, string) error {
		t.Fatal("auth service must not be called on invalid request")

		return nil
	}), `{"email": "not-an-email"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
