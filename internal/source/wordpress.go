package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"metaphorspace/internal/metrics"
	"metaphorspace/internal/model"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultURL = "https://metaphorspace.com/wp-json/wp/v2/posts"

	// WordPress serves post dates in site-local time without an offset.
	wpDateLayout = "2006-01-02T15:04:05"
)

// WordPress reads posts from a wp/v2 posts endpoint with embedded media.
type WordPress struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewWordPress builds a client for baseURL. rps <= 0 disables pacing.
func NewWordPress(baseURL string, rps float64, logger *zap.Logger) *WordPress {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &WordPress{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

func (w *WordPress) Name() string {
	return "wordpress"
}

// Fetch returns the requested page, or an empty page on any failure.
func (w *WordPress) Fetch(ctx context.Context, page, perPage int) []model.Story {
	stories, err := w.fetch(ctx, page, perPage)
	if err != nil {
		w.logger.Error("Error fetching stories",
			zap.Int("page", page),
			zap.Int("per_page", perPage),
			zap.Error(err))
		metrics.PageFetched(false)
		return []model.Story{}
	}
	metrics.PageFetched(true)
	return stories
}

func (w *WordPress) fetch(ctx context.Context, page, perPage int) ([]model.Story, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wordpress rate limit: %w", err)
	}

	u, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("wordpress url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	u.RawQuery = q.Encode() + "&_embed"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("wordpress request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wordpress fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("wordpress returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("wordpress read: %w", err)
	}

	return parsePosts(body)
}

// parsePosts decodes a wp/v2 posts array. Posts without an id are dropped;
// every other field is optional.
func parsePosts(body []byte) ([]model.Story, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("wordpress decode: invalid json")
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, fmt.Errorf("wordpress decode: expected array, got %s", root.Type)
	}

	posts := root.Array()
	stories := make([]model.Story, 0, len(posts))
	for _, p := range posts {
		id := p.Get("id")
		if !id.Exists() {
			continue
		}

		st := model.Story{
			ID:               int(id.Int()),
			Title:            p.Get("title.rendered").String(),
			Excerpt:          p.Get("excerpt.rendered").String(),
			Content:          p.Get("content.rendered").String(),
			Link:             p.Get("link").String(),
			FeaturedMediaURL: p.Get(`_embedded.wp:featuredmedia.0.source_url`).String(),
		}
		if d := p.Get("date").String(); d != "" {
			if t, err := time.Parse(wpDateLayout, d); err == nil {
				st.Date = t
			}
		}
		stories = append(stories, st)
	}
	return stories, nil
}
