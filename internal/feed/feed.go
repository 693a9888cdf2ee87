// Package feed drives the paginated story list: page loading, title search
// and like toggling.
package feed

import (
	"context"
	"strings"
	"sync"

	"metaphorspace/internal/likes"
	"metaphorspace/internal/metrics"
	"metaphorspace/internal/model"
	"metaphorspace/internal/source"
	"metaphorspace/internal/store"

	"go.uber.org/zap"
)

const DefaultPageSize = 10

// Persister accepts liked-set snapshots for asynchronous writing. Submit
// must not block.
type Persister interface {
	Submit(set likes.Set)
}

// Feed accumulates pages in arrival order. At most one page fetch runs at a
// time; a LoadNextPage call made while one is in flight does nothing.
type Feed struct {
	source   source.Source
	prefs    store.Preferences
	persist  Persister
	pageSize int
	logger   *zap.Logger

	mu      sync.Mutex
	stories []model.Story
	cursor  int
	loading bool
	query   string
	liked   likes.Set
	// loaded is set once the persisted liked set has been read. Toggles
	// made before that are kept in early and replayed on top of it.
	loaded bool
	early  []int
}

func New(src source.Source, prefs store.Preferences, persist Persister, pageSize int, logger *zap.Logger) *Feed {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Feed{
		source:   src,
		prefs:    prefs,
		persist:  persist,
		pageSize: pageSize,
		logger:   logger,
		cursor:   1,
		liked:    likes.Set{},
	}
}

// Start reloads the persisted liked set and loads the first page.
func (f *Feed) Start(ctx context.Context) {
	f.LoadLiked(ctx)
	f.LoadNextPage(ctx)
}

// LoadLiked reads the persisted liked set once. An unreadable set is treated
// as empty. Toggles made while it was loading are applied on top and the
// merged set is persisted. Later calls do nothing.
func (f *Feed) LoadLiked(ctx context.Context) {
	f.mu.Lock()
	done := f.loaded
	f.mu.Unlock()
	if done {
		return
	}

	liked, err := likes.Load(ctx, f.prefs)
	if err != nil {
		f.logger.Warn("Failed to load liked stories", zap.Error(err))
		liked = likes.Set{}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded {
		return
	}
	for _, id := range f.early {
		liked = liked.Toggle(id)
	}
	f.liked = liked
	f.loaded = true
	if len(f.early) > 0 {
		f.logger.Info("Replaying early like toggles", zap.Int("toggles", len(f.early)))
		f.early = nil
		f.persist.Submit(f.liked)
	}
}

// LoadNextPage fetches the page under the cursor and appends it. It reports
// whether a fetch ran. The cursor advances even when the page came back empty.
func (f *Feed) LoadNextPage(ctx context.Context) bool {
	f.mu.Lock()
	if f.loading {
		f.mu.Unlock()
		return false
	}
	f.loading = true
	page := f.cursor
	f.mu.Unlock()

	stories := f.source.Fetch(ctx, page, f.pageSize)

	f.mu.Lock()
	f.stories = append(f.stories, stories...)
	f.cursor++
	f.loading = false
	total := len(f.stories)
	f.mu.Unlock()

	f.logger.Debug("Page loaded",
		zap.Int("page", page),
		zap.Int("received", len(stories)),
		zap.Int("total", total))
	return true
}

// SetQuery replaces the title filter. Nothing is refetched.
func (f *Feed) SetQuery(q string) {
	f.mu.Lock()
	f.query = q
	f.mu.Unlock()
}

func (f *Feed) Query() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.query
}

// Visible returns the accumulated stories whose title contains the query,
// ignoring case.
func (f *Feed) Visible() []model.Story {
	f.mu.Lock()
	defer f.mu.Unlock()
	return filter(f.stories, f.query, false)
}

// Search matches the query against title or excerpt without touching the
// active filter.
func (f *Feed) Search(q string) []model.Story {
	f.mu.Lock()
	defer f.mu.Unlock()
	return filter(f.stories, q, true)
}

func filter(stories []model.Story, q string, withExcerpt bool) []model.Story {
	q = strings.ToLower(q)
	out := make([]model.Story, 0, len(stories))
	for _, st := range stories {
		if strings.Contains(strings.ToLower(st.Title), q) ||
			(withExcerpt && strings.Contains(strings.ToLower(st.Excerpt), q)) {
			out = append(out, st)
		}
	}
	return out
}

// ToggleLike flips the like state of id in memory and hands the new set to
// the persister. It returns whether id is now liked. A failed write is not
// rolled back. Before LoadLiked has finished nothing is persisted; the
// toggle is replayed once the stored set arrives.
//
// Submit runs under the lock so snapshots reach the persister in toggle
// order.
func (f *Feed) ToggleLike(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.liked = f.liked.Toggle(id)
	now := f.liked.Contains(id)
	if f.loaded {
		f.persist.Submit(f.liked)
	} else {
		f.early = append(f.early, id)
	}
	metrics.LikeToggled(now)
	return now
}

func (f *Feed) IsLiked(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.liked.Contains(id)
}

func (f *Feed) LikedIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.liked.IDs()
}

// LikedStories resolves liked ids against the loaded stories, in liked
// order. Ids whose story has not been loaded yet are skipped.
func (f *Feed) LikedStories() []model.Story {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]model.Story, 0, len(f.liked))
	for _, id := range f.liked {
		if st, ok := find(f.stories, id); ok {
			out = append(out, st)
		}
	}
	return out
}

func (f *Feed) Story(id int) (model.Story, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return find(f.stories, id)
}

func find(stories []model.Story, id int) (model.Story, bool) {
	for _, st := range stories {
		if st.ID == id {
			return st, true
		}
	}
	return model.Story{}, false
}

// Cursor is the next page number to request.
func (f *Feed) Cursor() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor
}

func (f *Feed) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// Len is the number of accumulated stories, duplicates included.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stories)
}

func (f *Feed) PageSize() int {
	return f.pageSize
}
