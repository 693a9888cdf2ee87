package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"metaphorspace/internal/chat"
	"metaphorspace/internal/feed"
	"metaphorspace/internal/likes"
	"metaphorspace/internal/model"
	"metaphorspace/internal/store"
	"metaphorspace/internal/theme"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pageSource struct {
	pages map[int][]model.Story
}

func (p *pageSource) Fetch(_ context.Context, page, _ int) []model.Story {
	if st, ok := p.pages[page]; ok {
		return st
	}
	return []model.Story{}
}

type nopPersister struct {
	mu    sync.Mutex
	count int
}

func (n *nopPersister) Submit(likes.Set) {
	n.mu.Lock()
	n.count++
	n.mu.Unlock()
}

type echoResponder struct{}

func (echoResponder) Generate(_ context.Context, _, msg string) (string, error) {
	return "echo: " + msg, nil
}

func newTestServer(t *testing.T, limiter *RateLimiter) *httptest.Server {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	st, err := store.NewHybridStore(mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(st.Close)

	src := &pageSource{pages: map[int][]model.Story{
		1: {
			{ID: 1, Title: "<b>Moon</b> coin", Excerpt: "<p>silver</p>", Content: "<p>The moon is a coin.</p>", FeaturedMediaURL: "http://img/1.jpg"},
			{ID: 2, Title: "Sea", Excerpt: "<p>salt moon</p>", Content: "<p>The sea.</p>"},
		},
	}}
	f := feed.New(src, st, &nopPersister{}, 10, zap.NewNop())
	f.LoadLiked(context.Background())
	reg := chat.NewRegistry(echoResponder{}, zap.NewNop())
	s := NewServer(f, reg, theme.New(true), limiter, zap.NewNop())

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestServer_StoriesFlow(t *testing.T) {
	srv := newTestServer(t, nil)

	code, body := do(t, "GET", srv.URL+"/api/stories", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["stories"])

	code, body = do(t, "POST", srv.URL+"/api/stories/next", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["stories"], 2)
	assert.EqualValues(t, 2, body["cursor"])

	code, body = do(t, "GET", srv.URL+"/api/stories?q=moon", nil)
	assert.Equal(t, http.StatusOK, code)
	stories := body["stories"].([]interface{})
	require.Len(t, stories, 1)
	first := stories[0].(map[string]interface{})
	assert.Equal(t, "Moon coin", first["title"])
	assert.Equal(t, "http://img/1.jpg", first["image"])

	code, body = do(t, "GET", srv.URL+"/api/search?q=moon", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["stories"], 2)

	code, body = do(t, "GET", srv.URL+"/api/stories/1", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "The moon is a coin.", body["content"])

	code, _ = do(t, "GET", srv.URL+"/api/stories/42", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_LikeFlow(t *testing.T) {
	srv := newTestServer(t, nil)
	do(t, "POST", srv.URL+"/api/stories/next", nil)

	code, body := do(t, "POST", srv.URL+"/api/stories/2/like", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["liked"])

	_, body = do(t, "GET", srv.URL+"/api/liked", nil)
	assert.Equal(t, []interface{}{float64(2)}, body["ids"])
	assert.Len(t, body["stories"], 1)

	_, body = do(t, "POST", srv.URL+"/api/stories/2/like", nil)
	assert.Equal(t, false, body["liked"])

	_, body = do(t, "GET", srv.URL+"/api/liked", nil)
	assert.Empty(t, body["ids"])
}

func TestServer_ChatFlow(t *testing.T) {
	srv := newTestServer(t, nil)

	code, _ := do(t, "POST", srv.URL+"/api/chats", map[string]int{"story_id": 1})
	assert.Equal(t, http.StatusNotFound, code, "story must be loaded first")

	do(t, "POST", srv.URL+"/api/stories/next", nil)

	code, body := do(t, "POST", srv.URL+"/api/chats", map[string]int{"story_id": 1})
	require.Equal(t, http.StatusCreated, code)
	sid := body["id"].(string)
	assert.Equal(t, "idle", body["state"])

	code, _ = do(t, "POST", srv.URL+"/api/chats/"+sid+"/messages", map[string]string{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, "POST", srv.URL+"/api/chats/"+sid+"/messages", map[string]string{"text": "hello"})
	require.Equal(t, http.StatusOK, code)
	msgs := body["messages"].([]interface{})
	require.Len(t, msgs, 2)
	assert.Equal(t, "echo: hello", msgs[1].(map[string]interface{})["content"])
	assert.Equal(t, "ai", msgs[1].(map[string]interface{})["role"])

	code, body = do(t, "GET", srv.URL+"/api/chats/"+sid, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["messages"], 2)

	code, _ = do(t, "DELETE", srv.URL+"/api/chats/"+sid, nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = do(t, "GET", srv.URL+"/api/chats/"+sid, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_Theme(t *testing.T) {
	srv := newTestServer(t, nil)

	_, body := do(t, "GET", srv.URL+"/api/theme", nil)
	assert.Equal(t, true, body["dark"])

	_, body = do(t, "POST", srv.URL+"/api/theme/toggle", nil)
	assert.Equal(t, false, body["dark"])
	palette := body["palette"].(map[string]interface{})
	assert.Equal(t, "#F5F0E6", palette["background"])
}

func TestServer_RateLimit(t *testing.T) {
	srv := newTestServer(t, NewRateLimiter(0.001, 2, zap.NewNop()))

	for i := 0; i < 2; i++ {
		code, _ := do(t, "GET", srv.URL+"/api/theme", nil)
		assert.Equal(t, http.StatusOK, code)
	}
	code, body := do(t, "GET", srv.URL+"/api/theme", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate limit exceeded", body["error"])
}

func TestServer_Metrics(t *testing.T) {
	srv := newTestServer(t, nil)
	do(t, "GET", srv.URL+"/api/theme", nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(raw), `metaphor_http_requests_total{method="GET",route="/api/theme",status="200"}`), string(raw))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1, zap.NewNop())
	rl.limiter("a")
	rl.limiter("b")
	rl.Cleanup(5)
	assert.Equal(t, 2, rl.Len())
	rl.Cleanup(1)
	assert.Zero(t, rl.Len())
}

func TestServer_StopBeforeStart(t *testing.T) {
	s := NewServer(nil, nil, theme.New(true), nil, zap.NewNop())
	require.NoError(t, s.Stop(context.Background()))
	assert.ErrorIs(t, s.Start("127.0.0.1:0"), http.ErrServerClosed)
}
