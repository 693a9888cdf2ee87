package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"metaphorspace/internal/chat"
	"metaphorspace/internal/feed"
	"metaphorspace/internal/metrics"
	"metaphorspace/internal/model"
	"metaphorspace/internal/theme"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Server struct {
	feed    *feed.Feed
	chats   *chat.Registry
	theme   *theme.Settings
	limiter *RateLimiter
	logger  *zap.Logger
	router  *mux.Router

	mu     sync.Mutex
	server *http.Server
	closed bool
}

func NewServer(f *feed.Feed, chats *chat.Registry, th *theme.Settings, limiter *RateLimiter, logger *zap.Logger) *Server {
	s := &Server{
		feed:    f,
		chats:   chats,
		theme:   th,
		limiter: limiter,
		logger:  logger,
		router:  mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(metrics.Middleware)
	if s.limiter != nil {
		api.Use(s.limiter.Handler)
	}

	api.HandleFunc("/stories", s.handleStories).Methods("GET")
	api.HandleFunc("/stories/next", s.handleNextPage).Methods("POST")
	api.HandleFunc("/stories/{id:[0-9]+}", s.handleStory).Methods("GET")
	api.HandleFunc("/stories/{id:[0-9]+}/like", s.handleLike).Methods("POST")
	api.HandleFunc("/liked", s.handleLiked).Methods("GET")
	api.HandleFunc("/search", s.handleSearch).Methods("GET")

	api.HandleFunc("/chats", s.handleNewChat).Methods("POST")
	api.HandleFunc("/chats/{sid}", s.handleChat).Methods("GET")
	api.HandleFunc("/chats/{sid}/messages", s.handleChatMessage).Methods("POST")
	api.HandleFunc("/chats/{sid}", s.handleEndChat).Methods("DELETE")

	api.HandleFunc("/theme", s.handleTheme).Methods("GET")
	api.HandleFunc("/theme/toggle", s.handleThemeToggle).Methods("POST")
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start launches the HTTP server. It returns http.ErrServerClosed once Stop
// has been called, including when Stop ran first.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("Web server listening", zap.String("addr", addr))
	return srv.ListenAndServe()
}

// Stop gracefully shuts down
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type storyView struct {
	ID      int       `json:"id"`
	Title   string    `json:"title"`
	Excerpt string    `json:"excerpt"`
	Date    time.Time `json:"date"`
	Image   string    `json:"image,omitempty"`
	Link    string    `json:"link,omitempty"`
	Liked   bool      `json:"liked"`
	Content string    `json:"content,omitempty"`
}

func (s *Server) view(st model.Story) storyView {
	return storyView{
		ID:      st.ID,
		Title:   st.PlainTitle(),
		Excerpt: st.PlainExcerpt(),
		Date:    st.Date,
		Image:   st.FeaturedMediaURL,
		Link:    st.Link,
		Liked:   s.feed.IsLiked(st.ID),
	}
}

func (s *Server) views(stories []model.Story) []storyView {
	out := make([]storyView, 0, len(stories))
	for _, st := range stories {
		out = append(out, s.view(st))
	}
	return out
}

type listResponse struct {
	Query   string      `json:"query"`
	Cursor  int         `json:"cursor"`
	Loading bool        `json:"loading"`
	Stories []storyView `json:"stories"`
}

func (s *Server) list(w http.ResponseWriter, status int) {
	writeJSON(w, status, listResponse{
		Query:   s.feed.Query(),
		Cursor:  s.feed.Cursor(),
		Loading: s.feed.Loading(),
		Stories: s.views(s.feed.Visible()),
	})
}

func (s *Server) handleStories(w http.ResponseWriter, r *http.Request) {
	if q, ok := r.URL.Query()["q"]; ok {
		s.feed.SetQuery(strings.Join(q, " "))
	}
	s.list(w, http.StatusOK)
}

func (s *Server) handleNextPage(w http.ResponseWriter, r *http.Request) {
	if !s.feed.LoadNextPage(r.Context()) {
		// a fetch is already running
		s.list(w, http.StatusAccepted)
		return
	}
	s.list(w, http.StatusOK)
}

func (s *Server) handleStory(w http.ResponseWriter, r *http.Request) {
	id, ok := storyID(w, r)
	if !ok {
		return
	}
	st, found := s.feed.Story(id)
	if !found {
		writeError(w, http.StatusNotFound, "story not loaded")
		return
	}
	v := s.view(st)
	v.Content = st.PlainContent()
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	id, ok := storyID(w, r)
	if !ok {
		return
	}
	liked := s.feed.ToggleLike(id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":    id,
		"liked": liked,
	})
}

func (s *Server) handleLiked(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ids":     s.feed.LikedIDs(),
		"stories": s.views(s.feed.LikedStories()),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stories": s.views(s.feed.Search(r.URL.Query().Get("q"))),
	})
}

type chatView struct {
	ID       string              `json:"id"`
	StoryID  int                 `json:"story_id"`
	State    string              `json:"state"`
	Messages []model.ChatMessage `json:"messages"`
}

func chatResponse(id string, sess *chat.Session) chatView {
	return chatView{
		ID:       id,
		StoryID:  sess.Story().ID,
		State:    sess.State().String(),
		Messages: sess.Messages(),
	}
}

func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StoryID int `json:"story_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	st, found := s.feed.Story(req.StoryID)
	if !found {
		writeError(w, http.StatusNotFound, "story not loaded")
		return
	}
	id, sess := s.chats.New(st)
	writeJSON(w, http.StatusCreated, chatResponse(id, sess))
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (string, *chat.Session, bool) {
	id := mux.Vars(r)["sid"]
	sess, err := s.chats.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return "", nil, false
	}
	return id, sess, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	id, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, chatResponse(id, sess))
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	id, sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "empty message")
		return
	}

	if !sess.Send(r.Context(), req.Text) {
		writeError(w, http.StatusConflict, "a reply is still pending")
		return
	}
	writeJSON(w, http.StatusOK, chatResponse(id, sess))
}

func (s *Server) handleEndChat(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sid"]
	if err := s.chats.End(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type themeView struct {
	Dark    bool          `json:"dark"`
	Palette theme.Palette `json:"palette"`
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, themeView{Dark: s.theme.Dark(), Palette: s.theme.Palette()})
}

func (s *Server) handleThemeToggle(w http.ResponseWriter, r *http.Request) {
	dark := s.theme.Toggle()
	writeJSON(w, http.StatusOK, themeView{Dark: dark, Palette: s.theme.Palette()})
}

func storyID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ID")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
