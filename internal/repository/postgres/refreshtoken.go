package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/models"
)

// Refresh tokens are stored as account columns: one token per account at most
type RefreshTokenRepo struct {
	DB DBTX
}

const getToken = `-- name: Get refresh token of account
SELECT COALESCE(refresh_token, '')
FROM accounts
WHERE id = $1
`

func (r *RefreshTokenRepo) Get(ctx context.Context, accountID uuid.UUID) (string, error) {
	rows, _ := r.DB.Query(ctx, getToken, accountID)
	token, err := pgx.CollectOneRow(rows, pgx.RowTo[string])

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", apperrors.ErrAccountNotFound
	default:
		return "", dbError(err)
	}
}

const saveToken = `-- name: Save refresh token
UPDATE accounts
SET refresh_token = $2, refresh_token_expires_at = $3
WHERE id = $1
`

func (r *RefreshTokenRepo) Save(ctx context.Context, accountID uuid.UUID, token models.IssuedToken) error {
	return r.exec(ctx, apperrors.ErrAccountNotFound, saveToken, accountID, token.Value, token.ExpiresAt)
}

const swapToken = `-- name: Swap refresh token if it still current
UPDATE accounts
SET refresh_token = $3, refresh_token_expires_at = $4
WHERE id = $1 AND refresh_token = $2
`

// Swap token
// Concurrent updates of the same row are serialized by postgres: the second one re-checks
// the WHERE clause against the committed row and matches nothing
func (r *RefreshTokenRepo) Swap(ctx context.Context, accountID uuid.UUID, current string, next models.IssuedToken) error {
	return r.exec(ctx, apperrors.ErrTokenReused, swapToken, accountID, current, next.Value, next.ExpiresAt)
}

const clearToken = `-- name: Clear refresh token
UPDATE accounts
SET refresh_token = NULL, refresh_token_expires_at = NULL
WHERE id = $1
`

func (r *RefreshTokenRepo) Clear(ctx context.Context, accountID uuid.UUID) error {
	return r.exec(ctx, apperrors.ErrAccountNotFound, clearToken, accountID)
}

const purgeExpired = `-- name: Purge expired refresh tokens
UPDATE accounts
SET refresh_token = NULL, refresh_token_expires_at = NULL
WHERE refresh_token IS NOT NULL AND refresh_token_expires_at <= $1
`

func (r *RefreshTokenRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, purgeExpired, now)
	if err != nil {
		return 0, dbError(err)
	}
	return tag.RowsAffected(), nil
}

// Exec query that must update exactly one row, return errNoRows if it updates nothing
func (r *RefreshTokenRepo) exec(ctx context.Context, errNoRows error, query string, args ...any) error {
	tag, err := r.DB.Exec(ctx, query, args...)
	switch {
	case err != nil:
		return dbError(err)
	case tag.RowsAffected() == 0:
		return errNoRows
	default:
		return nil
	}
}
