package tokenmanager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/models"
	"github.com/nkiryanov/vidtube/internal/repository"
	"github.com/nkiryanov/vidtube/internal/repository/memory"
)

// Storage which refresh repo always fails
type brokenStorage struct {
	repository.Storage
}

func (s brokenStorage) Refresh() repository.RefreshTokenRepo {
	return brokenRefreshRepo{}
}

type brokenRefreshRepo struct {
	repository.RefreshTokenRepo
}

func (brokenRefreshRepo) Save(context.Context, uuid.UUID, models.IssuedToken) error {
	return apperrors.ErrStoreUnavailable
}

func Test_Manager(t *testing.T) {
	t.Parallel()

	// Fresh storage with single account and manager on top of it
	setup := func(t *testing.T) (*Manager, *memory.Storage, models.Account, *clock) {
		storage := memory.NewStorage()
		account, err := storage.Account().CreateAccount(t.Context(), repository.CreateAccountParams{
			Username:       "nkiryanov",
			Email:          "nkiryanov@example.com",
			FullName:       "Nikita Kiryanov",
			HashedPassword: "hashed_password",
		})
		require.NoError(t, err)

		c := newClock("2025-03-01 12:00:00Z")
		m, err := New(Config{
			AccessSecret:  "access-secret",
			RefreshSecret: "refresh-secret",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    24 * time.Hour,
			Now:           c.Now,
		}, storage)
		require.NoError(t, err)

		return m, storage, account, c
	}

	t.Run("new defaults", func(t *testing.T) {
		m, err := New(Config{AccessSecret: "access", RefreshSecret: "refresh"}, nil)
		require.NoError(t, err, "token manager should be created without errors")

		require.Equal(t, defaultAccessTokenTTL, m.AccessTTL(), "default access token TTL should be set")
		require.Equal(t, defaultRefreshTokenTTL, m.RefreshTTL(), "default refresh token TTL")
		require.Equal(t, defaultSigningMethod, m.codec.alg.Alg(), "default signing method should be set")
	})

	t.Run("new fails", func(t *testing.T) {
		_, err := New(Config{AccessSecret: "same", RefreshSecret: "same"}, nil)
		require.Error(t, err)

		_, err = New(Config{AccessSecret: "access", RefreshSecret: "refresh", AccessTTL: -time.Second}, nil)
		require.Error(t, err)
	})

	t.Run("IssuePair", func(t *testing.T) {
		t.Run("return token pair", func(t *testing.T) {
			m, storage, account, c := setup(t)

			pair, err := m.IssuePair(t.Context(), account.ID)

			require.NoError(t, err)
			assert.NotEmpty(t, pair.Access.Value, "access token should not be empty")
			assert.Equal(t, c.Now().Add(15*time.Minute), pair.Access.ExpiresAt)
			assert.NotEmpty(t, pair.Refresh.Value, "refresh token should not be empty")
			assert.Equal(t, c.Now().Add(24*time.Hour), pair.Refresh.ExpiresAt)

			stored, err := storage.Refresh().Get(t.Context(), account.ID)
			require.NoError(t, err)
			assert.Equal(t, pair.Refresh.Value, stored, "refresh token should be stored in account")

			got, err := storage.Account().GetAccountByID(t.Context(), account.ID)
			require.NoError(t, err)
			assert.Equal(t, pair.Refresh.ExpiresAt, got.RefreshTokenExpiresAt)
		})

		t.Run("access token validates", func(t *testing.T) {
			m, _, account, _ := setup(t)
			pair, err := m.IssuePair(t.Context(), account.ID)
			require.NoError(t, err)

			accountID, err := m.ValidateAccess(pair.Access.Value)

			require.NoError(t, err)
			require.Equal(t, account.ID, accountID)
		})

		t.Run("unknown account", func(t *testing.T) {
			m, _, _, _ := setup(t)

			_, err := m.IssuePair(t.Context(), uuid.New())

			require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
		})

		t.Run("store failure", func(t *testing.T) {
			storage := memory.NewStorage()
			m, err := New(Config{AccessSecret: "access", RefreshSecret: "refresh"}, brokenStorage{storage})
			require.NoError(t, err)

			_, err = m.IssuePair(t.Context(), uuid.New())

			require.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
		})

		t.Run("new pair replaces previous refresh", func(t *testing.T) {
			m, _, account, _ := setup(t)
			first, err := m.IssuePair(t.Context(), account.ID)
			require.NoError(t, err)
			_, err = m.IssuePair(t.Context(), account.ID)
			require.NoError(t, err)

			_, err = m.Rotate(t.Context(), first.Refresh.Value)

			require.ErrorIs(t, err, apperrors.ErrTokenReused)
		})
	})

	t.Run("ValidateAccess", func(t *testing.T) {
		t.Run("missing", func(t *testing.T) {
			m, _, _, _ := setup(t)

			_, err := m.ValidateAccess("")

			require.ErrorIs(t, err, apperrors.ErrTokenMissing)
		})

		t.Run("expired", func(t *testing.T) {
			m, _, account, c := setup(t)
			pair, err := m.IssuePair(t.Context(), account.ID)
			require.NoError(t, err)

			c.Advance(15*time.Minute + time.Second)
			_, err = m.ValidateAccess(pair.Access.Value)

			require.ErrorIs(t, err, apperrors.ErrTokenExpired)
		})

		t.Run("refresh token is not access", func(t *testing.T) {
			m, _, account, _ := setup(t)
			pair, err := m.IssuePair(t.Context(), account.ID)
			require.NoError(t, err)

			_, err = m.ValidateAccess(pair.Refresh.Value)

			require.ErrorIs(t, err, apperrors.ErrTokenInvalidSignature)
		})

		t.Run("valid after revoke", func(t *testing.T) {
			m, _, account, _ := setup(t)
			pair, err := m.IssuePair(t.Context(), account.ID)
			require.NoError(t, err)
			require.NoError(t, m.Revoke(t.Context(), account.ID))

			_, err = m.ValidateAccess(pair.Access.Value)

			require.NoError(t, err, "access token is stateless and lives until expiry")
		})
	})

	t.Run("Rotate", func(t *testing.T) {
		t.Run("rotate once", func(t *testing.T) {
			m, storage, account, c := setup(t)
			pair, err := m.IssuePair(t.Context(), account.ID)
			require.NoError(t, err)
			c.Advance(time.Minute)

			rotated, err := m.Rotate(t.Context(), pair.Refresh.Value)

			require.NoError(t, err)
			assert.NotEqual(t, pair.Refresh.Value, rotated.Refresh.Value)
			assert.NotEqual(t, pair.Access.Value, rotated.Access.Value)
			assert.Equal(t, c.Now().Add(24*time.Hour), rotated.Refresh.ExpiresAt)

			stored, err := storage.Refresh().Get(t.Context(), account.ID)
			require.NoError(t, err)
			assert.Equal(t, rotated.Refresh.Value, stored)
		})

		t.Run("rotate twice with same token", func(t *testing.T) {
			m, _, account, _ := setup(t)
			pair, err := m.IssuePair(t.Context(), account.ID)
			require.NoError(t, err)
			_, err = m.Rotate(t.Context(), pair.Refresh.Value)
			require.NoError(t, err)

			_, err = m.Rotate(t.Context(), pair.Refresh.Value)

			require.ErrorIs(t, err, apperrors.ErrTokenReused)
		})

		t.Run("rotated token rotates again", func(t *testing.T) {
			m, _, account, _ := setup(t)
			pair, err := m.IssuePair(t.Context(), account.ID)
			require.NoError(t, err)

			for range 3 {
				pair, err = m.Rotate(t.Context(), pair.Refresh.Value)
				require.NoError(t, err)
			}
		})

		t.Run("missing", func(t *testing.T) {
			m, _, _, _ := setup(t)

			_, err := m.Rotate(t.Context(), "")

			require.ErrorIs(t, err, apperrors.ErrTokenMissing)
		})

		t.Run("expired", func(t *testing.T) {
			m, _, account, c := setup(t)
			pair, err := m.IssuePair(t.Context(), account.ID)
			require.NoError(t, err)

			c.Advance(24*time.Hour + time.Second)
			_, err = m.Rotate(t.Context(), pair.Refresh.Value)

			require.ErrorIs(t, err, apperrors.ErrTokenExpired)
		})

		t.Run("access token is not refresh", func(t *testing.T) {
			m, _, account, _ := setup(t)
			pair, err := m.IssuePair(t.Context(), account.ID)
			require.NoError(t, err)

			_, err = m.Rotate(t.Context(), pair.Access.Value)

			require.ErrorIs(t, err, apperrors.ErrTokenInvalidSignature)
		})

		t.Run("after revoke", func(t *testing.T) {
			m, _, account, _ := setup(t)
			pair, err := m.IssuePair(t.Context(), account.ID)
			require.NoError(t, err)
			require.NoError(t, m.Revoke(t.Context(), account.ID))

			_, err = m.Rotate(t.Context(), pair.Refresh.Value)

			require.ErrorIs(t, err, apperrors.ErrTokenReused)
		})

		t.Run("account gone", func(t *testing.T) {
			m, _, _, c := setup(t)
			codec, err := NewCodec(CodecConfig{AccessSecret: "access-secret", RefreshSecret: "refresh-secret", Now: c.Now})
			require.NoError(t, err)
			orphan, err := codec.Issue(uuid.New(), models.TokenKindRefresh, time.Hour)
			require.NoError(t, err)

			_, err = m.Rotate(t.Context(), orphan.Value)

			require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
		})

		t.Run("concurrent rotations have single winner", func(t *testing.T) {
			m, _, account, _ := setup(t)
			pair, err := m.IssuePair(t.Context(), account.ID)
			require.NoError(t, err)

			const racers = 16
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				won  int
				lost int
			)
			start := make(chan struct{})
			for range racers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start

					_, err := m.Rotate(context.Background(), pair.Refresh.Value)

					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						won++
					case errors.Is(err, apperrors.ErrTokenReused):
						lost++
					}
				}()
			}
			close(start)
			wg.Wait()

			require.Equal(t, 1, won, "exactly one rotation should succeed")
			require.Equal(t, racers-1, lost, "others should observe reuse")
		})
	})

	t.Run("Revoke", func(t *testing.T) {
		t.Run("clears refresh", func(t *testing.T) {
			m, storage, account, _ := setup(t)
			_, err := m.IssuePair(t.Context(), account.ID)
			require.NoError(t, err)

			err = m.Revoke(t.Context(), account.ID)

			require.NoError(t, err)
			stored, err := storage.Refresh().Get(t.Context(), account.ID)
			require.NoError(t, err)
			require.Empty(t, stored)
		})

		t.Run("without session", func(t *testing.T) {
			m, _, account, _ := setup(t)

			require.NoError(t, m.Revoke(t.Context(), account.ID), "revoke is idempotent")
		})

		t.Run("unknown account", func(t *testing.T) {
			m, _, _, _ := setup(t)

			err := m.Revoke(t.Context(), uuid.New())

			require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
		})
	})
	t.Run("refresh tokens kept apart from accounts", func(t *testing.T) {
		_, accounts, account, c := setup(t)
		refresh := memory.NewRefreshTokenRepo()
		m, err := New(Config{
			AccessSecret:  "access-secret",
			RefreshSecret: "refresh-secret",
			Now:           c.Now,
		}, repository.WithRefreshRepo(accounts, refresh))
		require.NoError(t, err)

		pair, err := m.IssuePair(t.Context(), account.ID)
		require.NoError(t, err, "pair should be issued though refresh store has no accounts")

		stored, err := refresh.Get(t.Context(), account.ID)
		require.NoError(t, err)
		require.Equal(t, pair.Refresh.Value, stored)

		c.Advance(time.Second)
		rotated, err := m.Rotate(t.Context(), pair.Refresh.Value)
		require.NoError(t, err)
		_, err = m.Rotate(t.Context(), pair.Refresh.Value)
		require.ErrorIs(t, err, apperrors.ErrTokenReused)

		require.NoError(t, m.Revoke(t.Context(), account.ID))
		_, err = m.Rotate(t.Context(), rotated.Refresh.Value)
		require.ErrorIs(t, err, apperrors.ErrTokenReused)
	})
}
