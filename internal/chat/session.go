// Package chat holds per-story conversations with the responder.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"metaphorspace/internal/htmltext"
	"metaphorspace/internal/metrics"
	"metaphorspace/internal/model"
	"metaphorspace/internal/responder"

	"go.uber.org/zap"
)

const (
	DefaultMaxContextRunes = 500

	DefaultApology         = "متأسفم، در حال حاضر نمی‌توانم پاسخ دهم."
	DefaultNoAnswer        = "پاسخی یافت نشد."
	DefaultConnectionError = "خطای اتصال به سرور."
)

type State int

const (
	Idle State = iota
	AwaitingResponse
)

func (s State) String() string {
	if s == AwaitingResponse {
		return "awaiting_response"
	}
	return "idle"
}

type Option func(*Session)

func WithMaxContextRunes(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxContext = n
		}
	}
}

// WithFallbacks overrides the text shown when the responder rejects the
// request, answers with nothing, or cannot be reached. Empty strings keep
// the defaults.
func WithFallbacks(apology, noAnswer, connectionError string) Option {
	return func(s *Session) {
		if apology != "" {
			s.apology = apology
		}
		if noAnswer != "" {
			s.noAnswer = noAnswer
		}
		if connectionError != "" {
			s.connectionError = connectionError
		}
	}
}

// Session is one conversation about one story. Only one request is
// outstanding at a time; sends made while waiting are ignored.
type Session struct {
	story           model.Story
	responder       responder.Responder
	logger          *zap.Logger
	maxContext      int
	apology         string
	noAnswer        string
	connectionError string

	mu       sync.Mutex
	state    State
	input    string
	messages []model.ChatMessage
}

func NewSession(story model.Story, r responder.Responder, logger *zap.Logger, opts ...Option) *Session {
	s := &Session{
		story:           story,
		responder:       r,
		logger:          logger,
		maxContext:      DefaultMaxContextRunes,
		apology:         DefaultApology,
		noAnswer:        DefaultNoAnswer,
		connectionError: DefaultConnectionError,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// Submit sends the pending input.
func (s *Session) Submit(ctx context.Context) bool {
	return s.Send(ctx, s.Input())
}

// Send appends text as a user message, asks the responder and appends its
// reply, or a fallback text on failure. It blocks until the turn is over
// and reports whether a turn ran. Blank text and sends while a request is
// outstanding do nothing.
func (s *Session) Send(ctx context.Context, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	s.mu.Lock()
	if s.state == AwaitingResponse {
		s.mu.Unlock()
		return false
	}
	s.messages = append(s.messages, model.ChatMessage{Role: model.RoleUser, Content: text})
	s.input = ""
	s.state = AwaitingResponse
	s.mu.Unlock()

	start := time.Now()
	reply, outcome := s.ask(ctx, text)
	metrics.ChatTurn(outcome, time.Since(start))

	s.mu.Lock()
	s.messages = append(s.messages, model.ChatMessage{Role: model.RoleAI, Content: reply})
	s.state = Idle
	s.mu.Unlock()
	return true
}

func (s *Session) ask(ctx context.Context, text string) (string, string) {
	reply, err := s.responder.Generate(ctx, s.Context(), text)
	switch {
	case err == nil:
		return reply, "ok"
	case errors.Is(err, responder.ErrEmptyReply):
		s.logger.Warn("Responder returned no text", zap.Int("story", s.story.ID))
		return s.noAnswer, "empty"
	case errors.Is(err, responder.ErrRejected):
		s.logger.Error("Responder rejected request", zap.Int("story", s.story.ID), zap.Error(err))
		return s.apology, "rejected"
	default:
		s.logger.Error("Responder unreachable", zap.Int("story", s.story.ID), zap.Error(err))
		return s.connectionError, "transport"
	}
}

// Context is the plain text of the story body, cut to the context limit.
func (s *Session) Context() string {
	return htmltext.Truncate(s.story.PlainContent(), s.maxContext)
}

func (s *Session) Messages() []model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Story() model.Story {
	return s.story
}
