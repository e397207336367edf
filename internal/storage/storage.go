package storage

import "errors"

var (
	ErrUserNotFound              = errors.New("user not found")
	ErrUserExists                = errors.New("user already exists")
	ErrRefreshTokenNotFound      = errors.New("refresh token not found")
	ErrVerificationTokenNotFound = errors.New("verification token not found")
	ErrResetTokenNotFound        = errors.New("reset token not found")
)
