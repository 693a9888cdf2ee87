// Package source fetches story pages from the WordPress content API.
package source

import (
	"context"

	"metaphorspace/internal/model"
)

// Source returns one page of stories. Implementations never fail: any error
// is logged and reported as an empty page.
type Source interface {
	Fetch(ctx context.Context, page, perPage int) []model.Story
}
