package source

import (
	"context"
	"testing"

	"metaphorspace/internal/model"
	"metaphorspace/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubSource returns whatever pages it was seeded with.
type stubSource struct {
	pages map[int][]model.Story
	calls int
}

func (s *stubSource) Fetch(_ context.Context, page, _ int) []model.Story {
	s.calls++
	if st, ok := s.pages[page]; ok {
		return st
	}
	return []model.Story{}
}

func newCachedFixture(t *testing.T) (*Cached, *stubSource) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	st, err := store.NewHybridStore(mr.Addr(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(st.Close)

	stub := &stubSource{pages: map[int][]model.Story{}}
	return NewCached(stub, st, zap.NewNop()), stub
}

func TestCached_ServesStalePageWhenUpstreamFails(t *testing.T) {
	c, stub := newCachedFixture(t)
	ctx := context.Background()

	page := []model.Story{
		{ID: 1, Title: "one", Content: "<p>body one</p>"},
		{ID: 2, Title: "two"},
	}
	stub.pages[1] = page

	assert.Equal(t, page, c.Fetch(ctx, 1, 10))

	// Upstream goes dark
	delete(stub.pages, 1)
	assert.Equal(t, page, c.Fetch(ctx, 1, 10))
	assert.Equal(t, 2, stub.calls)
}

func TestCached_EmptyWhenNothingCached(t *testing.T) {
	c, _ := newCachedFixture(t)

	stories := c.Fetch(context.Background(), 3, 10)
	assert.NotNil(t, stories)
	assert.Empty(t, stories)
}

func TestCached_PerPageIsPartOfTheKey(t *testing.T) {
	c, stub := newCachedFixture(t)
	ctx := context.Background()

	stub.pages[1] = []model.Story{{ID: 9, Title: "nine"}}
	c.Fetch(ctx, 1, 10)
	delete(stub.pages, 1)

	assert.Empty(t, c.Fetch(ctx, 1, 20))
	assert.Len(t, c.Fetch(ctx, 1, 10), 1)
}
