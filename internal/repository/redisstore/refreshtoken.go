// Package redisstore stores account refresh tokens in redis
// Accounts themselves stay in main storage, see repository.WithRefreshRepo
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/models"
)

const defaultKeyPrefix = "vidtube"

// Replace stored value only if it equals to expected one
// KEYS[1] - token key; ARGV[1] - expected value, ARGV[2] - new value, ARGV[3] - ttl in ms
var swapScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

type RefreshTokenRepo struct {
	client    redis.UniversalClient
	keyPrefix string
	now       func() time.Time
}

func NewRefreshTokenRepo(client redis.UniversalClient, keyPrefix string) *RefreshTokenRepo {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	return &RefreshTokenRepo{
		client:    client,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

func (r *RefreshTokenRepo) key(accountID uuid.UUID) string {
	return r.keyPrefix + ":refresh:" + accountID.String()
}

// Get stored token
// Redis knows nothing about accounts, so missing key is reported as empty token
func (r *RefreshTokenRepo) Get(ctx context.Context, accountID uuid.UUID) (string, error) {
	token, err := r.client.Get(ctx, r.key(accountID)).Result()

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, redis.Nil):
		return "", nil
	default:
		return "", redisError(err)
	}
}

func (r *RefreshTokenRepo) Save(ctx context.Context, accountID uuid.UUID, token models.IssuedToken) error {
	ttl := token.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return r.Clear(ctx, accountID)
	}

	err := r.client.Set(ctx, r.key(accountID), token.Value, ttl).Err()
	if err != nil {
		return redisError(err)
	}
	return nil
}

func (r *RefreshTokenRepo) Swap(ctx context.Context, accountID uuid.UUID, current string, next models.IssuedToken) error {
	if current == "" {
		return apperrors.ErrTokenReused
	}

	ttl := next.ExpiresAt.Sub(r.now())
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	swapped, err := swapScript.Run(ctx, r.client, []string{r.key(accountID)}, current, next.Value, ttl.Milliseconds()).Int()
	switch {
	case err != nil:
		return redisError(err)
	case swapped == 0:
		return apperrors.ErrTokenReused
	default:
		return nil
	}
}

func (r *RefreshTokenRepo) Clear(ctx context.Context, accountID uuid.UUID) error {
	err := r.client.Del(ctx, r.key(accountID)).Err()
	if err != nil {
		return redisError(err)
	}
	return nil
}

// Redis expires keys itself, nothing to purge
func (r *RefreshTokenRepo) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func redisError(err error) error {
	return fmt.Errorf("redis error: %w: %w", apperrors.ErrStoreUnavailable, err)
}
