package jwt

import (
	"errors"
	"fmt"
	"time"

	"supervision_auth/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMalformedToken   = errors.New("malformed token")
)

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

type Claims struct {
	UserID  int64
	Email   string
	Role    models.Role
	TokenID string
}

type accessClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	Role    string `json:"role"`
	Purpose string `json:"purpose"`
}

type refreshClaims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
}

// * Manager выпускает и проверяет подписанные токены. Access токен проверяется
// только по подписи и сроку жизни, refresh токен дополнительно сверяется с записью в базе.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (m *Manager) NewAccessToken(user models.User) (string, error) {
	const op = "jwt.NewAccessToken"

	now := time.Now()

	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
		Email:   user.Email,
		Role:    string(user.Role),
		Purpose: string(KindAccess),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.accessSecret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

func (m *Manager) NewRefreshToken(userID int64, tokenID string) (string, error) {
	const op = "jwt.NewRefreshToken"

	now := time.Now()

	claims := refreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userID),
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
		},
		Purpose: string(KindRefresh),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

func (m *Manager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

func (m *Manager) Verify(tokenStr string, kind Kind) (Claims, error) {
	secret := m.accessSecret
	if kind == KindRefresh {
		secret = m.refreshSecret
	}

	claims := jwt.MapClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSignature
		default:
			return Claims{}, ErrMalformedToken
		}
	}

	if !token.Valid {
		return Claims{}, ErrMalformedToken
	}

	if purpose, ok := claims["purpose"].(string); !ok || purpose != string(kind) {
		return Claims{}, ErrMalformedToken
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return Claims{}, ErrMalformedToken
	}

	var userID int64
	if _, err := fmt.Sscan(sub, &userID); err != nil {
		return Claims{}, ErrMalformedToken
	}

	out := Claims{UserID: userID}

	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}
	if role, ok := claims["role"].(string); ok {
		out.Role = models.Role(role)
	}
	if jti, ok := claims["jti"].(string); ok {
		out.TokenID = jti
	}

	if kind == KindRefresh && out.TokenID == "" {
		return Claims{}, ErrMalformedToken
	}

	return out, nil
}
