package verification_test

import (
	"testing"
	"time"

	"supervision_auth/internal/lib/verification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	token, err := verification.NewToken(15, verification.PurposeEmailVerification, time.Hour, secret)
	require.NoError(t, err)

	userID, err := verification.ParseToken(token, verification.PurposeEmailVerification, secret)
	require.NoError(t, err)

	assert.Equal(t, int64(15), userID)
}

func TestParseTokenRejectsWrongPurpose(t *testing.T) {
	token, err := verification.NewToken(15, verification.PurposePasswordReset, time.Hour, secret)
	require.NoError(t, err)

	_, err = verification.ParseToken(token, verification.PurposeEmailVerification, secret)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := verification.NewToken(15, verification.PurposeEmailVerification, -time.Minute, secret)
	require.NoError(t, err)

	_, err = verification.ParseToken(token, verification.PurposeEmailVerification, secret)
	assert.Error(t, err)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := verification.NewToken(15, verification.PurposeEmailVerification, time.Hour, secret)
	require.NoError(t, err)

	_, err = verification.ParseToken(token, verification.PurposeEmailVerification, "other-secret")
	assert.Error(t, err)
}

func TestHashTokenIsStable(t *testing.T) {
	h1 := verification.HashToken("some-token")
	h2 := verification.HashToken("some-token")

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, verification.HashToken("other-token"))
}
