package source

import (
	"context"
	"errors"

	"metaphorspace/internal/model"
	"metaphorspace/internal/store"

	"go.uber.org/zap"
)

// Cached serves the last good copy of a page when the upstream source comes
// back empty, and records every non-empty page it sees.
type Cached struct {
	next   Source
	pages  store.Pages
	logger *zap.Logger
}

func NewCached(next Source, pages store.Pages, logger *zap.Logger) *Cached {
	return &Cached{next: next, pages: pages, logger: logger}
}

func (c *Cached) Fetch(ctx context.Context, page, perPage int) []model.Story {
	logger := c.logger.With(zap.Int("page", page), zap.Int("per_page", perPage))

	stories := c.next.Fetch(ctx, page, perPage)
	if len(stories) > 0 {
		if err := c.pages.SavePage(ctx, page, perPage, stories); err != nil {
			logger.Warn("Failed to cache page", zap.Error(err))
		}
		return stories
	}

	cached, err := c.pages.LoadPage(ctx, page, perPage)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("Failed to read cached page", zap.Error(err))
		}
		return stories
	}

	logger.Info("Serving cached page", zap.Int("stories", len(cached)))
	return cached
}
