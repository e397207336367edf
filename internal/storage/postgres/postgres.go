package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"supervision_auth/internal/config"
	"supervision_auth/internal/models"
	"supervision_auth/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB покрывает pgxpool.Pool и pgxmock в тестах.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PostgresRepo struct {
	db   DB
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	dsn := dsn(cfg)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{db: pool, pool: pool}, nil
}

func NewWithDB(db DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) SaveUser(ctx context.Context, email string, passHash []byte, role models.Role) (int64, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (email, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING id;
	`

	var id int64

	err := r.db.QueryRow(ctx, query, email, string(passHash), string(role)).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, storage.ErrUserExists
		}

		return 0, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return id, nil
}

func (r *PostgresRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	query := `
		SELECT id, email, password_hash, role, is_email_verified, is_active, created_at
		FROM users
		WHERE email = $1;
	`

	return r.scanUser(r.db.QueryRow(ctx, query, email))
}

func (r *PostgresRepo) UserByID(ctx context.Context, id int64) (models.User, error) {
	query := `
		SELECT id, email, password_hash, role, is_email_verified, is_active, created_at
		FROM users
		WHERE id = $1;
	`

	return r.scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresRepo) scanUser(row pgx.Row) (models.User, error) {
	var u models.User

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PassHash,
		&u.Role,
		&u.IsEmailVerified,
		&u.IsActive,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, err
	}

	return u, nil
}

func (r *PostgresRepo) SetEmailVerificationToken(ctx context.Context, userID int64, tokenHash string) error {
	query := `UPDATE users SET email_verification_token = $1 WHERE id = $2`

	_, err := r.db.Exec(ctx, query, tokenHash, userID)

	return err
}

// * SetEmailVerified помечает почту подтвержденной и гасит одноразовый токен.
func (r *PostgresRepo) SetEmailVerified(ctx context.Context, userID int64, tokenHash string) error {
	query := `
		UPDATE users
		SET is_email_verified = TRUE, email_verification_token = NULL
		WHERE id = $1 AND email_verification_token = $2
	`

	tag, err := r.db.Exec(ctx, query, userID, tokenHash)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrVerificationTokenNotFound
	}

	return nil
}

func (r *PostgresRepo) SetPasswordResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	query := `
		UPDATE users
		SET password_reset_token = $1, password_reset_expires = $2
		WHERE id = $3
	`

	_, err := r.db.Exec(ctx, query, tokenHash, expiresAt, userID)

	return err
}

func (r *PostgresRepo) ResetPassword(ctx context.Context, userID int64, tokenHash string, newPassHash []byte) error {
	query := `
		UPDATE users
		SET password_hash = $1, password_reset_token = NULL, password_reset_expires = NULL
		WHERE id = $2 AND password_reset_token = $3 AND password_reset_expires > NOW()
	`

	tag, err := r.db.Exec(ctx, query, string(newPassHash), userID, tokenHash)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrResetTokenNotFound
	}

	return nil
}

func (r *PostgresRepo) DeactivateUser(ctx context.Context, userID int64) error {
	query := `UPDATE users SET is_active = FALSE WHERE id = $1`

	_, err := r.db.Exec(ctx, query, userID)

	return err
}

func (r *PostgresRepo) SaveRefreshToken(ctx context.Context, rt models.RefreshToken) error {
	const query = `
		INSERT INTO refresh_tokens (id, user_id, token_hash, issued_at, expires_at, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(ctx, query, rt.ID, rt.UserID, rt.TokenHash, rt.IssuedAt, rt.ExpiresAt, rt.IP, rt.UserAgent)

	return err
}

func (r *PostgresRepo) RefreshTokenByID(ctx context.Context, id string) (models.RefreshToken, error) {
	const query = `
		SELECT id, user_id, token_hash, issued_at, expires_at, revoked, ip, user_agent
		FROM refresh_tokens
		WHERE id = $1 AND NOT revoked AND expires_at > NOW();
	`

	var rt models.RefreshToken

	err := r.db.QueryRow(ctx, query, id).Scan(
		&rt.ID,
		&rt.UserID,
		&rt.TokenHash,
		&rt.IssuedAt,
		&rt.ExpiresAt,
		&rt.Revoked,
		&rt.IP,
		&rt.UserAgent,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RefreshToken{}, storage.ErrRefreshTokenNotFound
		}

		return models.RefreshToken{}, err
	}

	return rt, nil
}

// * RotateRefreshToken атомарно гасит старую запись и вставляет новую.
// Если старая запись уже погашена или истекла, транзакция откатывается.
func (r *PostgresRepo) RotateRefreshToken(ctx context.Context, oldID string, newToken models.RefreshToken) error {
	const op = "storage.postgres.RotateRefreshToken"

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: failed to begin tx: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const revokeQuery = `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE id = $1 AND NOT revoked AND expires_at > NOW()
	`

	tag, err := tx.Exec(ctx, revokeQuery, oldID)
	if err != nil {
		return fmt.Errorf("%s: failed to revoke old token: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrRefreshTokenNotFound
	}

	const insertQuery = `
		INSERT INTO refresh_tokens (id, user_id, token_hash, issued_at, expires_at, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = tx.Exec(ctx, insertQuery,
		newToken.ID,
		newToken.UserID,
		newToken.TokenHash,
		newToken.IssuedAt,
		newToken.ExpiresAt,
		newToken.IP,
		newToken.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("%s: failed to insert new token: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: failed to commit: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) RevokeRefreshToken(ctx context.Context, id string) error {
	query := `UPDATE refresh_tokens SET revoked = TRUE WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id)

	return err
}

func (r *PostgresRepo) RevokeAllRefreshTokens(ctx context.Context, userID int64) error {
	query := `UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND NOT revoked`

	_, err := r.db.Exec(ctx, query, userID)

	return err
}

// * DeleteExpiredRefreshTokens чистит истекшие записи (вызывать периодически).
func (r *PostgresRepo) DeleteExpiredRefreshTokens(ctx context.Context) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at <= NOW()`

	tag, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func (r *PostgresRepo) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// * dsn формирует конфигурацию базы данных.
func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
