package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/models"
)

// RefreshTokenRepo keeps refresh tokens only, accounts stay in main storage
// See repository.WithRefreshRepo. Like redis store it knows nothing about accounts:
// missing token is reported as empty one
type RefreshTokenRepo struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]models.IssuedToken
}

func NewRefreshTokenRepo() *RefreshTokenRepo {
	return &RefreshTokenRepo{tokens: make(map[uuid.UUID]models.IssuedToken)}
}

func (r *RefreshTokenRepo) Get(_ context.Context, accountID uuid.UUID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.tokens[accountID].Value, nil
}

func (r *RefreshTokenRepo) Save(_ context.Context, accountID uuid.UUID, token models.IssuedToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens[accountID] = token
	return nil
}

func (r *RefreshTokenRepo) Swap(_ context.Context, accountID uuid.UUID, current string, next models.IssuedToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tokens[accountID]
	if !ok || current == "" || stored.Value != current {
		return apperrors.ErrTokenReused
	}

	r.tokens[accountID] = next
	return nil
}

func (r *RefreshTokenRepo) Clear(_ context.Context, accountID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, accountID)
	return nil
}

func (r *RefreshTokenRepo) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for id, token := range r.tokens {
		if !token.ExpiresAt.After(now) {
			delete(r.tokens, id)
			count++
		}
	}

	return count, nil
}
