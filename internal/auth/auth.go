package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"supervision_auth/internal/lib/jwt"
	sl "supervision_auth/internal/lib/logger"
	"supervision_auth/internal/lib/verification"
	"supervision_auth/internal/models"
	"supervision_auth/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"
)

var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUserExists            = errors.New("user already exists")
	ErrEmailDomainNotAllowed = errors.New("email domain not allowed")
	ErrInvalidRefreshToken   = errors.New("invalid refresh token")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrEmailNotVerified      = errors.New("email not verified")
	ErrAccountDeactivated    = errors.New("account deactivated")
)

type UserSaver interface {
	SaveUser(ctx context.Context, email string, passHash []byte, role models.Role) (int64, error)
	SetEmailVerificationToken(ctx context.Context, userID int64, tokenHash string) error
	SetEmailVerified(ctx context.Context, userID int64, tokenHash string) error
	SetPasswordResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	ResetPassword(ctx context.Context, userID int64, tokenHash string, newPassHash []byte) error
	DeactivateUser(ctx context.Context, userID int64) error
}

type UserProvider interface {
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id int64) (models.User, error)
}

type RefreshTokenStore interface {
	SaveRefreshToken(ctx context.Context, rt models.RefreshToken) error
	RefreshTokenByID(ctx context.Context, id string) (models.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID string, newToken models.RefreshToken) error
	RevokeRefreshToken(ctx context.Context, id string) error
	RevokeAllRefreshTokens(ctx context.Context, userID int64) error
}

type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

type Config struct {
	EmailDomain        string
	BaseURL            string
	VerificationTTL    time.Duration
	VerificationSecret string
	ResetTTL           time.Duration
	ResetSecret        string
}

type Auth struct {
	log         *slog.Logger
	usrSaver    UserSaver
	usrProvider UserProvider
	tokenStore  RefreshTokenStore
	tokens      *jwt.Manager
	publisher   Publisher
	cfg         Config

	// сериализует конкурентные refresh по одному tokenID
	refreshGroup singleflight.Group
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	tokenStore RefreshTokenStore,
	tokens *jwt.Manager,
	publisher Publisher,
	cfg Config,
) *Auth {
	return &Auth{
		log:         log,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		tokenStore:  tokenStore,
		tokens:      tokens,
		publisher:   publisher,
		cfg:         cfg,
	}
}

// * Register создает неподтвержденного пользователя, ставит письмо верификации
// в очередь и сразу возвращает пару токенов (доступ до подтверждения почты
// ограничивается на защищенных маршрутах, не здесь).
func (a *Auth) Register(
	ctx context.Context,
	email, password string,
	role models.Role,
	ip, userAgent string,
) (models.User, models.TokenPair, error) {
	const op = "auth.Register"

	log := a.log.With(slog.String("op", op))

	if a.cfg.EmailDomain != "" && !strings.HasSuffix(email, "@"+a.cfg.EmailDomain) {
		log.Warn("email domain not allowed")

		return models.User{}, models.TokenPair{}, ErrEmailDomainNotAllowed
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))

		return models.User{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	id, err := a.usrSaver.SaveUser(ctx, email, passHash, role)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exists")

			return models.User{}, models.TokenPair{}, ErrUserExists
		}

		log.Error("failed to save user", sl.Err(err))

		return models.User{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	user := models.User{
		ID:       id,
		Email:    email,
		PassHash: passHash,
		Role:     role,
		IsActive: true,
	}

	if err := a.sendVerificationEmail(ctx, log, user); err != nil {
		// письмо не должно ронять регистрацию, можно перезапросить
		log.Error("failed to send verification email", sl.Err(err))
	}

	pair, err := a.issueSession(ctx, user, ip, userAgent)
	if err != nil {
		log.Error("failed to issue session", sl.Err(err))

		return models.User{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.Int64("uid", id))

	return user, pair, nil
}

// * Login отвечает одинаковой ошибкой на неизвестную почту, неверный пароль
// и деактивированный аккаунт.
func (a *Auth) Login(
	ctx context.Context,
	email, password string,
	ip, userAgent string,
) (models.User, models.TokenPair, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")

			return models.User{}, models.TokenPair{}, ErrInvalidCredentials
		}

		log.Error("failed to get user", sl.Err(err))

		return models.User{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if !user.IsActive {
		log.Warn("account deactivated", slog.Int64("uid", user.ID))

		return models.User{}, models.TokenPair{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Info("invalid credentials", sl.Err(err))

		return models.User{}, models.TokenPair{}, ErrInvalidCredentials
	}

	pair, err := a.issueSession(ctx, user, ip, userAgent)
	if err != nil {
		log.Error("failed to issue session", sl.Err(err))

		return models.User{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in successfully", slog.Int64("uid", user.ID))

	return user, pair, nil
}

// * Refresh проверяет подпись и запись в хранилище, затем ротирует токен.
// Конкурентные вызовы с одним и тем же токеном схлопываются в один прогон:
// ротацию выполняет первый, остальные получают ту же новую пару.
func (a *Auth) Refresh(
	ctx context.Context,
	rawRefreshToken string,
	ip, userAgent string,
) (models.TokenPair, error) {
	const op = "auth.Refresh"

	log := a.log.With(slog.String("op", op))

	claims, err := a.tokens.Verify(rawRefreshToken, jwt.KindRefresh)
	if err != nil {
		log.Warn("refresh token rejected", sl.Err(err))

		return models.TokenPair{}, ErrInvalidRefreshToken
	}

	result, err, _ := a.refreshGroup.Do(claims.TokenID, func() (interface{}, error) {
		defer a.refreshGroup.Forget(claims.TokenID)

		return a.rotate(ctx, log, claims, rawRefreshToken, ip, userAgent)
	})
	if err != nil {
		return models.TokenPair{}, err
	}

	return result.(models.TokenPair), nil
}

func (a *Auth) rotate(
	ctx context.Context,
	log *slog.Logger,
	claims jwt.Claims,
	rawRefreshToken string,
	ip, userAgent string,
) (models.TokenPair, error) {
	rt, err := a.tokenStore.RefreshTokenByID(ctx, claims.TokenID)
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			log.Warn("refresh token not found or revoked")

			return models.TokenPair{}, ErrInvalidRefreshToken
		}

		log.Error("failed to load refresh token", sl.Err(err))

		return models.TokenPair{}, err
	}

	if rt.TokenHash != verification.HashToken(rawRefreshToken) {
		log.Warn("refresh token hash mismatch")

		return models.TokenPair{}, ErrInvalidRefreshToken
	}

	user, err := a.usrProvider.UserByID(ctx, rt.UserID)
	if err != nil {
		log.Error("failed to load user", sl.Err(err))

		return models.TokenPair{}, ErrInvalidRefreshToken
	}

	if !user.IsActive {
		_ = a.tokenStore.RevokeAllRefreshTokens(ctx, user.ID)

		return models.TokenPair{}, ErrInvalidRefreshToken
	}

	accessToken, err := a.tokens.NewAccessToken(user)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))

		return models.TokenPair{}, err
	}

	newID := uuid.NewString()

	newRefresh, err := a.tokens.NewRefreshToken(user.ID, newID)
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))

		return models.TokenPair{}, err
	}

	now := time.Now()

	err = a.tokenStore.RotateRefreshToken(ctx, rt.ID, models.RefreshToken{
		ID:        newID,
		UserID:    user.ID,
		TokenHash: verification.HashToken(newRefresh),
		IssuedAt:  now,
		ExpiresAt: now.Add(a.tokens.RefreshTTL()),
		IP:        ip,
		UserAgent: userAgent,
	})
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			// запись уже ротирована другим вызовом
			return models.TokenPair{}, ErrInvalidRefreshToken
		}

		log.Error("failed to rotate refresh token", sl.Err(err))

		return models.TokenPair{}, err
	}

	log.Info("refresh successful", slog.Int64("uid", user.ID))

	return models.TokenPair{AccessToken: accessToken, RefreshToken: newRefresh}, nil
}

// * Logout гасит ровно одну запись; остальные сессии пользователя живут дальше.
func (a *Auth) Logout(ctx context.Context, userID int64, rawRefreshToken string) error {
	const op = "auth.Logout"

	log := a.log.With(slog.String("op", op))

	claims, err := a.tokens.Verify(rawRefreshToken, jwt.KindRefresh)
	if err != nil {
		log.Warn("refresh token rejected", sl.Err(err))

		return ErrInvalidRefreshToken
	}

	if claims.UserID != userID {
		log.Warn("refresh token belongs to another user")

		return ErrInvalidRefreshToken
	}

	rt, err := a.tokenStore.RefreshTokenByID(ctx, claims.TokenID)
	if err != nil {
		log.Warn("refresh token not found", sl.Err(err))

		return ErrInvalidRefreshToken
	}

	if rt.TokenHash != verification.HashToken(rawRefreshToken) {
		return ErrInvalidRefreshToken
	}

	if err := a.tokenStore.RevokeRefreshToken(ctx, rt.ID); err != nil {
		log.Error("failed to revoke refresh token", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("logout successful", slog.Int64("uid", userID))

	return nil
}

func (a *Auth) LogoutAll(ctx context.Context, userID int64) error {
	const op = "auth.LogoutAll"

	log := a.log.With(slog.String("op", op))

	if err := a.tokenStore.RevokeAllRefreshTokens(ctx, userID); err != nil {
		log.Error("failed to revoke refresh tokens", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("all sessions revoked", slog.Int64("uid", userID))

	return nil
}

// * RequestPasswordReset всегда завершается успешно, существование почты не раскрывается.
func (a *Auth) RequestPasswordReset(ctx context.Context, email string) error {
	const op = "auth.RequestPasswordReset"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("password reset requested for unknown email")

			return nil
		}

		log.Error("failed to get user", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	if !user.IsActive {
		return nil
	}

	token, err := verification.SendPasswordResetEmail(
		ctx,
		log,
		a.publisher,
		a.cfg.ResetTTL,
		a.cfg.ResetSecret,
		user.ID,
		a.cfg.BaseURL,
		user.Email,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = a.usrSaver.SetPasswordResetToken(ctx, user.ID, verification.HashToken(token), time.Now().Add(a.cfg.ResetTTL))
	if err != nil {
		log.Error("failed to store reset token", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password reset email queued", slog.Int64("uid", user.ID))

	return nil
}

// * ResetPassword меняет пароль по одноразовому токену и гасит все refresh
// токены пользователя: после сброса нужен повторный вход на всех устройствах.
func (a *Auth) ResetPassword(ctx context.Context, token, newPassword string) error {
	const op = "auth.ResetPassword"

	log := a.log.With(slog.String("op", op))

	userID, err := verification.ParseToken(token, verification.PurposePasswordReset, a.cfg.ResetSecret)
	if err != nil {
		log.Warn("invalid reset token", sl.Err(err))

		return ErrInvalidOrExpiredToken
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	err = a.usrSaver.ResetPassword(ctx, userID, verification.HashToken(token), passHash)
	if err != nil {
		if errors.Is(err, storage.ErrResetTokenNotFound) {
			log.Warn("reset token not found or expired")

			return ErrInvalidOrExpiredToken
		}

		log.Error("failed to reset password", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.tokenStore.RevokeAllRefreshTokens(ctx, userID); err != nil {
		log.Error("failed to revoke refresh tokens", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password reset", slog.Int64("uid", userID))

	return nil
}

func (a *Auth) VerifyEmail(ctx context.Context, token string) error {
	const op = "auth.VerifyEmail"

	log := a.log.With(slog.String("op", op))

	userID, err := verification.ParseToken(token, verification.PurposeEmailVerification, a.cfg.VerificationSecret)
	if err != nil {
		log.Warn("invalid verification token", sl.Err(err))

		return ErrInvalidOrExpiredToken
	}

	err = a.usrSaver.SetEmailVerified(ctx, userID, verification.HashToken(token))
	if err != nil {
		if errors.Is(err, storage.ErrVerificationTokenNotFound) {
			log.Warn("verification token already used")

			return ErrInvalidOrExpiredToken
		}

		log.Error("failed to mark email verified", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("email verified", slog.Int64("uid", userID))

	return nil
}

// * ResendVerificationEmail отвечает успехом независимо от статуса почты.
func (a *Auth) ResendVerificationEmail(ctx context.Context, email string) error {
	const op = "auth.ResendVerificationEmail"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("resend requested for unknown email")

			return nil
		}

		log.Error("failed to get user", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	if user.IsEmailVerified || !user.IsActive {
		return nil
	}

	if err := a.sendVerificationEmail(ctx, log, user); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("verification email resent", slog.Int64("uid", user.ID))

	return nil
}

func (a *Auth) DeactivateAccount(ctx context.Context, userID int64) error {
	const op = "auth.DeactivateAccount"

	log := a.log.With(slog.String("op", op))

	if err := a.usrSaver.DeactivateUser(ctx, userID); err != nil {
		log.Error("failed to deactivate user", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.tokenStore.RevokeAllRefreshTokens(ctx, userID); err != nil {
		log.Error("failed to revoke refresh tokens", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("account deactivated", slog.Int64("uid", userID))

	return nil
}

func (a *Auth) sendVerificationEmail(ctx context.Context, log *slog.Logger, user models.User) error {
	token, err := verification.SendVerificationEmail(
		ctx,
		log,
		a.publisher,
		a.cfg.VerificationTTL,
		a.cfg.VerificationSecret,
		user.ID,
		a.cfg.BaseURL,
		user.Email,
	)
	if err != nil {
		return err
	}

	return a.usrSaver.SetEmailVerificationToken(ctx, user.ID, verification.HashToken(token))
}

func (a *Auth) issueSession(ctx context.Context, user models.User, ip, userAgent string) (models.TokenPair, error) {
	accessToken, err := a.tokens.NewAccessToken(user)
	if err != nil {
		return models.TokenPair{}, err
	}

	tokenID := uuid.NewString()

	refreshToken, err := a.tokens.NewRefreshToken(user.ID, tokenID)
	if err != nil {
		return models.TokenPair{}, err
	}

	now := time.Now()

	err = a.tokenStore.SaveRefreshToken(ctx, models.RefreshToken{
		ID:        tokenID,
		UserID:    user.ID,
		TokenHash: verification.HashToken(refreshToken),
		IssuedAt:  now,
		ExpiresAt: now.Add(a.tokens.RefreshTTL()),
		IP:        ip,
		UserAgent: userAgent,
	})
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
