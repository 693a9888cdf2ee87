package chat

import (
	"errors"
	"sync"

	"metaphorspace/internal/model"
	"metaphorspace/internal/responder"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("chat session not found")

// Registry keeps live sessions by id. Ended sessions are forgotten along
// with their transcript.
type Registry struct {
	responder responder.Responder
	logger    *zap.Logger
	opts      []Option

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(r responder.Responder, logger *zap.Logger, opts ...Option) *Registry {
	return &Registry{
		responder: r,
		logger:    logger,
		opts:      opts,
		sessions:  make(map[string]*Session),
	}
}

// New opens a session about story and returns its id.
func (r *Registry) New(story model.Story) (string, *Session) {
	id := uuid.New().String()
	s := NewSession(story, r.responder, r.logger.With(zap.String("session", id)), r.opts...)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.logger.Info("Chat session opened", zap.String("session", id), zap.Int("story", story.ID))
	return id, s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *Registry) End(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	r.logger.Info("Chat session ended", zap.String("session", id))
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
