package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/vidtube/internal/models"
)

type CreateAccountParams struct {
	Username       string
	Email          string
	FullName       string
	HashedPassword string
	AvatarURL      string
	CoverImageURL  string
}

// Account repository interface
type AccountRepo interface {
	// Create account
	// If account with same username or email exists has to return apperrors.ErrAccountAlreadyExists
	CreateAccount(ctx context.Context, params CreateAccountParams) (models.Account, error)

	// Get account by it's id, or by username or email (any of them may be empty)
	// If account not found must return apperrors.ErrAccountNotFound
	GetAccountByID(ctx context.Context, accountID uuid.UUID) (models.Account, error)
	GetAccountByUsernameOrEmail(ctx context.Context, username string, email string) (models.Account, error)

	// Replace password hash
	// If account not found must return apperrors.ErrAccountNotFound
	UpdatePasswordHash(ctx context.Context, accountID uuid.UUID, hashedPassword string) error
}

// Refresh token repository interface
// Every account holds zero or one refresh token
type RefreshTokenRepo interface {
	// Return stored token value or empty string if there is no one
	// If account not found must return apperrors.ErrAccountNotFound
	Get(ctx context.Context, accountID uuid.UUID) (string, error)

	// Store token unconditionally replacing the previous one
	// If account not found must return apperrors.ErrAccountNotFound
	Save(ctx context.Context, accountID uuid.UUID, token models.IssuedToken) error

	// Replace stored token only if it still equals 'current'
	// Must be atomic: if two callers swap the same 'current', only one succeeds
	// the other has to get apperrors.ErrTokenReused
	Swap(ctx context.Context, accountID uuid.UUID, current string, next models.IssuedToken) error

	// Remove stored token
	// If account not found must return apperrors.ErrAccountNotFound
	Clear(ctx context.Context, accountID uuid.UUID) error

	// Remove tokens expired before 'now' and return how many were removed
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type Storage interface {
	Account() AccountRepo
	Refresh() RefreshTokenRepo

	// Run function in transaction
	InTx(ctx context.Context, fn func(Storage) error) error
}
