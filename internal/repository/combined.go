package repository

import (
	"context"
)

type combined struct {
	Storage
	refresh RefreshTokenRepo
}

// WithRefreshRepo returns storage that keeps accounts in 's' but refresh tokens in 'refresh'
// Transactions cover accounts only
func WithRefreshRepo(s Storage, refresh RefreshTokenRepo) Storage {
	return &combined{Storage: s, refresh: refresh}
}

func (c *combined) Refresh() RefreshTokenRepo {
	return c.refresh
}

func (c *combined) InTx(ctx context.Context, fn func(Storage) error) error {
	return c.Storage.InTx(ctx, func(s Storage) error {
		return fn(WithRefreshRepo(s, c.refresh))
	})
}
