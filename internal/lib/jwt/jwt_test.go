package jwt_test

import (
	"testing"
	"time"

	"supervision_auth/internal/lib/jwt"
	"supervision_auth/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager() *jwt.Manager {
	return jwt.NewManager("access-secret", "refresh-secret", 15*time.Minute, 720*time.Hour)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := newManager()

	user := models.User{
		ID:    42,
		Email: "student@university.edu",
		Role:  models.RoleStudent,
	}

	token, err := m.NewAccessToken(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.Verify(token, jwt.KindAccess)
	require.NoError(t, err)

	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "student@university.edu", claims.Email)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	m := newManager()

	token, err := m.NewRefreshToken(7, "token-id-1")
	require.NoError(t, err)

	claims, err := m.Verify(token, jwt.KindRefresh)
	require.NoError(t, err)

	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "token-id-1", claims.TokenID)
}

func TestVerifyRejectsWrongKind(t *testing.T) {
	m := newManager()

	access, err := m.NewAccessToken(models.User{ID: 1, Email: "a@university.edu", Role: models.RoleAdmin})
	require.NoError(t, err)

	refresh, err := m.NewRefreshToken(1, "token-id-2")
	require.NoError(t, err)

	_, err = m.Verify(access, jwt.KindRefresh)
	assert.Error(t, err)

	_, err = m.Verify(refresh, jwt.KindAccess)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := jwt.NewManager("access-secret", "refresh-secret", -time.Minute, -time.Minute)

	token, err := m.NewAccessToken(models.User{ID: 1, Email: "a@university.edu", Role: models.RoleStudent})
	require.NoError(t, err)

	_, err = m.Verify(token, jwt.KindAccess)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m := newManager()
	other := jwt.NewManager("other-access", "other-refresh", 15*time.Minute, time.Hour)

	token, err := m.NewAccessToken(models.User{ID: 1, Email: "a@university.edu", Role: models.RoleStudent})
	require.NoError(t, err)

	_, err = other.Verify(token, jwt.KindAccess)
	assert.ErrorIs(t, err, jwt.ErrInvalidSignature)
}

func TestVerifyRejectsMalformed(t *testing.T) {
	m := newManager()

	_, err := m.Verify("not-a-jwt", jwt.KindAccess)
	assert.ErrorIs(t, err, jwt.ErrMalformedToken)
}
