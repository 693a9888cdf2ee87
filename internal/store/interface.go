package store

import (
	"context"
	"errors"

	"metaphorspace/internal/model"
)

var (
	ErrNotFound = errors.New("key not found")
)

// Preferences is the local key-value store for user settings.
type Preferences interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Pages keeps the last good copy of each fetched page.
type Pages interface {
	SavePage(ctx context.Context, page, perPage int, stories []model.Story) error
	LoadPage(ctx context.Context, page, perPage int) ([]model.Story, error)
}

type Store interface {
	Preferences
	Pages
	Close()
}
