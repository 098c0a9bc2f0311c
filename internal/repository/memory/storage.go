// Package memory keeps accounts in process memory
// Useful for tests and local runs without database; nothing survives restart
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/models"
	"github.com/nkiryanov/vidtube/internal/repository"
)

type Storage struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]models.Account
	now      func() time.Time
}

func NewStorage() *Storage {
	return &Storage{
		accounts: make(map[uuid.UUID]models.Account),
		now:      time.Now,
	}
}

func (s *Storage) Account() repository.AccountRepo {
	return (*accountRepo)(s)
}

func (s *Storage) Refresh() repository.RefreshTokenRepo {
	return (*refreshTokenRepo)(s)
}

// Every single operation is atomic already; transaction does not isolate a sequence of them
func (s *Storage) InTx(_ context.Context, fn func(repository.Storage) error) error {
	return fn(s)
}

type accountRepo Storage

func (r *accountRepo) CreateAccount(_ context.Context, p repository.CreateAccountParams) (models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.accounts {
		if a.Username == p.Username || a.Email == p.Email {
			return models.Account{}, apperrors.ErrAccountAlreadyExists
		}
	}

	account := models.Account{
		ID:             uuid.New(),
		CreatedAt:      r.now(),
		Username:       p.Username,
		Email:          p.Email,
		FullName:       p.FullName,
		HashedPassword: p.HashedPassword,
		AvatarURL:      p.AvatarURL,
		CoverImageURL:  p.CoverImageURL,
	}
	r.accounts[account.ID] = account

	return account, nil
}

func (r *accountRepo) GetAccountByID(_ context.Context, id uuid.UUID) (models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return a, apperrors.ErrAccountNotFound
	}
	return a, nil
}

func (r *accountRepo) GetAccountByUsernameOrEmail(_ context.Context, username string, email string) (models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		found models.Account
		ok    bool
	)
	for _, a := range r.accounts {
		switch {
		case username != "" && a.Username == username:
			return a, nil
		case email != "" && a.Email == email:
			found, ok = a, true
		}
	}

	if !ok {
		return found, apperrors.ErrAccountNotFound
	}
	return found, nil
}

func (r *accountRepo) UpdatePasswordHash(_ context.Context, id uuid.UUID, hashedPassword string) error {
	return (*Storage)(r).update(id, func(a *models.Account) {
		a.HashedPassword = hashedPassword
	})
}

type refreshTokenRepo Storage

func (r *refreshTokenRepo) Get(_ context.Context, id uuid.UUID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return "", apperrors.ErrAccountNotFound
	}
	return a.RefreshToken, nil
}

func (r *refreshTokenRepo) Save(_ context.Context, id uuid.UUID, token models.IssuedToken) error {
	return (*Storage)(r).update(id, func(a *models.Account) {
		a.RefreshToken = token.Value
		a.RefreshTokenExpiresAt = token.ExpiresAt
	})
}

func (r *refreshTokenRepo) Swap(_ context.Context, id uuid.UUID, current string, next models.IssuedToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok || a.RefreshToken == "" || a.RefreshToken != current {
		return apperrors.ErrTokenReused
	}

	a.RefreshToken = next.Value
	a.RefreshTokenExpiresAt = next.ExpiresAt
	r.accounts[id] = a

	return nil
}

func (r *refreshTokenRepo) Clear(_ context.Context, id uuid.UUID) error {
	return (*Storage)(r).update(id, func(a *models.Account) {
		a.RefreshToken = ""
		a.RefreshTokenExpiresAt = time.Time{}
	})
}

func (r *refreshTokenRepo) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for id, a := range r.accounts {
		if a.RefreshToken != "" && !a.RefreshTokenExpiresAt.After(now) {
			a.RefreshToken = ""
			a.RefreshTokenExpiresAt = time.Time{}
			r.accounts[id] = a
			count++
		}
	}

	return count, nil
}

func (s *Storage) update(id uuid.UUID, fn func(a *models.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return apperrors.ErrAccountNotFound
	}

	fn(&a)
	s.accounts[id] = a

	return nil
}
