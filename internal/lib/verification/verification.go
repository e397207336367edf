package verification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"supervision_auth/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const (
	PurposeEmailVerification = "email_verification"
	PurposePasswordReset     = "password_reset"
)

type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

// * SendVerificationEmail генерирует одноразовый токен, ставит ссылку в очередь
// и возвращает токен, чтобы вызывающий сохранил его хеш.
func SendVerificationEmail(
	ctx context.Context,
	log *slog.Logger,
	pub Publisher,
	tokenTTL time.Duration,
	tokenSecret string,
	userID int64,
	url, email string,
) (string, error) {
	token, err := NewToken(userID, PurposeEmailVerification, tokenTTL, tokenSecret)
	if err != nil {
		log.Error("failed to generate token", slog.Any("err", err))

		return "", err
	}

	verifyLink := fmt.Sprintf("%s/verify?token=%s", url, token)

	msg := models.Message{
		Email:   email,
		Link:    verifyLink,
		Purpose: PurposeEmailVerification,
	}

	if err := pub.SendMessage(ctx, msg); err != nil {
		log.Error("failed to send verification link", slog.Any("err", err))
	}

	return token, nil
}

// * SendPasswordResetEmail то же самое для ссылки сброса пароля.
func SendPasswordResetEmail(
	ctx context.Context,
	log *slog.Logger,
	pub Publisher,
	tokenTTL time.Duration,
	tokenSecret string,
	userID int64,
	url, email string,
) (string, error) {
	token, err := NewToken(userID, PurposePasswordReset, tokenTTL, tokenSecret)
	if err != nil {
		log.Error("failed to generate token", slog.Any("err", err))

		return "", err
	}

	resetLink := fmt.Sprintf("%s/reset-password?token=%s", url, token)

	msg := models.Message{
		Email:   email,
		Link:    resetLink,
		Purpose: PurposePasswordReset,
	}

	if err := pub.SendMessage(ctx, msg); err != nil {
		log.Error("failed to send reset link", slog.Any("err", err))
	}

	return token, nil
}

func ParseToken(tokenStr, purpose, secret string) (int64, error) {
	const op = "verification.ParseToken"

	claims := jwt.MapClaims{}

	parsedToken, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%s: unexpected signing method", op)
		}
		return []byte(secret), nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: failed to parse token: %w", op, err)
	}

	if !parsedToken.Valid {
		return 0, fmt.Errorf("%s: invalid token", op)
	}

	if tokenPurpose, ok := claims["purpose"].(string); !ok || tokenPurpose != purpose {
		return 0, fmt.Errorf("%s: invalid token purpose", op)
	}

	if expFloat, ok := claims["exp"].(float64); ok {
		if time.Now().Unix() > int64(expFloat) {
			return 0, fmt.Errorf("%s: token expired", op)
		}
	} else {
		return 0, fmt.Errorf("%s: missing exp claim", op)
	}

	subFloat, ok := claims["sub"].(float64)
	if !ok {
		return 0, fmt.Errorf("%s: missing sub claim", op)
	}

	return int64(subFloat), nil
}

func NewToken(userID int64, purpose string, tokenTTL time.Duration, secret string) (string, error) {
	claims := jwt.MapClaims{
		"sub":     userID,
		"purpose": purpose,
		"exp":     time.Now().Add(tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secret))
}

// * HashToken создает SHA256 хеш токена
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
