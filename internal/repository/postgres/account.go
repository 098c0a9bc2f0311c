package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/models"
	"github.com/nkiryanov/vidtube/internal/repository"
)

type AccountRepo struct {
	DB DBTX
}

const createAccount = `-- name: CreateAccount
INSERT INTO accounts (id, username, email, full_name, password_hash, avatar_url, cover_image_url)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at, username, email, full_name, password_hash, avatar_url, cover_image_url, refresh_token, refresh_token_expires_at
`

func (r *AccountRepo) CreateAccount(ctx context.Context, p repository.CreateAccountParams) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, createAccount, uuid.New(), p.Username, p.Email, p.FullName, p.HashedPassword, p.AvatarURL, p.CoverImageURL)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return account, apperrors.ErrAccountAlreadyExists
		}

		return account, dbError(err)
	}

	return account, nil
}

const getAccountByID = `-- name: GetAccountByID
SELECT id, created_at, username, email, full_name, password_hash, avatar_url, cover_image_url, refresh_token, refresh_token_expires_at
FROM accounts
WHERE id = $1
`

func (r *AccountRepo) GetAccountByID(ctx context.Context, id uuid.UUID) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccountByID, id)
	return collectAccount(rows)
}

const getAccountByUsernameOrEmail = `-- name: GetAccountByUsernameOrEmail
SELECT id, created_at, username, email, full_name, password_hash, avatar_url, cover_image_url, refresh_token, refresh_token_expires_at
FROM accounts
WHERE ($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2)
ORDER BY (username = $1) DESC
LIMIT 1
`

// Find account matching username or email; username match wins if both matches different accounts
func (r *AccountRepo) GetAccountByUsernameOrEmail(ctx context.Context, username string, email string) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccountByUsernameOrEmail, username, email)
	return collectAccount(rows)
}

const updatePasswordHash = `-- name: UpdatePasswordHash
UPDATE accounts
SET password_hash = $2
WHERE id = $1
`

func (r *AccountRepo) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hashedPassword string) error {
	tag, err := r.DB.Exec(ctx, updatePasswordHash, id, hashedPassword)
	switch {
	case err != nil:
		return dbError(err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrAccountNotFound
	default:
		return nil
	}
}

func collectAccount(rows pgx.Rows) (models.Account, error) {
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, dbError(err)
	}
}

func rowToAccount(row pgx.CollectableRow) (models.Account, error) {
	var (
		a         models.Account
		refresh   *string
		expiresAt *time.Time
	)

	err := row.Scan(
		&a.ID,
		&a.CreatedAt,
		&a.Username,
		&a.Email,
		&a.FullName,
		&a.HashedPassword,
		&a.AvatarURL,
		&a.CoverImageURL,
		&refresh,
		&expiresAt,
	)
	if refresh != nil {
		a.RefreshToken = *refresh
	}
	if expiresAt != nil {
		a.RefreshTokenExpiresAt = *expiresAt
	}

	return a, err
}
