package tokenmanager

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/models"
	"github.com/nkiryanov/vidtube/internal/repository"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 10 * 24 * time.Hour
)

// Token manager with sensible default
type Config struct {
	// Secrets to sign access and refresh tokens
	// Required to be set and differ
	AccessSecret  string
	RefreshSecret string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Clock. If not set than time.Now is used
	Now func() time.Time
}

// Manager issues, validates, rotates and revokes token pairs
// Account record holds at most one refresh token; presenting anything else is a reuse
type Manager struct {
	codec *Codec

	// Access and refresh token lifetimes
	accessTTL  time.Duration
	refreshTTL time.Duration

	storage repository.Storage
}

func New(cfg Config, storage repository.Storage) (*Manager, error) {
	codec, err := NewCodec(CodecConfig{
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		Alg:           cfg.Alg,
		Now:           cfg.Now,
	})
	if err != nil {
		return nil, err
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("token ttl must be positive")
	}

	return &Manager{
		codec:      codec,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		storage:    storage,
	}, nil
}

func (m *Manager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

// Issue new pair and store refresh token in account record
// Previous refresh token of the account is replaced
func (m *Manager) IssuePair(ctx context.Context, accountID uuid.UUID) (models.TokenPair, error) {
	pair, err := m.mint(accountID)
	if err != nil {
		return pair, err
	}

	err = m.storage.Refresh().Save(ctx, accountID, pair.Refresh)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return pair, nil
}

// Parse and validate access token. Does not touch the store
func (m *Manager) ValidateAccess(access string) (uuid.UUID, error) {
	if access == "" {
		return uuid.Nil, apperrors.ErrTokenMissing
	}

	claims, err := m.codec.Verify(access, models.TokenKindAccess)
	if err != nil {
		return uuid.Nil, err
	}

	return claims.AccountID, nil
}

// Exchange valid refresh token for new pair
// Old refresh token stops working once the call succeeds
func (m *Manager) Rotate(ctx context.Context, refresh string) (models.TokenPair, error) {
	if refresh == "" {
		return models.TokenPair{}, apperrors.ErrTokenMissing
	}

	claims, err := m.codec.Verify(refresh, models.TokenKindRefresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	_, err = m.storage.Account().GetAccountByID(ctx, claims.AccountID)
	if err != nil {
		return models.TokenPair{}, err
	}

	stored, err := m.storage.Refresh().Get(ctx, claims.AccountID)
	if err != nil {
		return models.TokenPair{}, err
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(refresh)) != 1 {
		return models.TokenPair{}, apperrors.ErrTokenReused
	}

	pair, err := m.mint(claims.AccountID)
	if err != nil {
		return pair, err
	}

	// Concurrent rotation with the same token may win between Get and Swap
	err = m.storage.Refresh().Swap(ctx, claims.AccountID, refresh, pair.Refresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	return pair, nil
}

// Forget account refresh token. Already issued access tokens live until expiry
func (m *Manager) Revoke(ctx context.Context, accountID uuid.UUID) error {
	return m.storage.Refresh().Clear(ctx, accountID)
}

func (m *Manager) mint(accountID uuid.UUID) (models.TokenPair, error) {
	access, err := m.codec.Issue(accountID, models.TokenKindAccess, m.accessTTL)
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, err := m.codec.Issue(accountID, models.TokenKindRefresh, m.refreshTTL)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}
