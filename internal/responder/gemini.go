package responder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-pro"

type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API host, e.g. for a proxy.
	BaseURL string
	Timeout time.Duration
	// RPS paces outgoing requests; <= 0 disables pacing.
	RPS float64
}

// Gemini answers through the generateContent endpoint.
type Gemini struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGemini creates a new Gemini responder.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}

	return &Gemini{
		client:  client,
		model:   model,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}, nil
}

// Generate sends the story context as the system instruction and the user's
// message as a single user turn.
func (g *Gemini) Generate(ctx context.Context, promptContext, userMessage string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("gemini rate limit: %w", err)
	}

	var config *genai.GenerateContentConfig
	if promptContext != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt(promptContext), genai.RoleUser),
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text("User: "+userMessage), config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			g.logger.Error("Gemini request rejected",
				zap.Int("status", apiErr.Code),
				zap.String("message", apiErr.Message))
			return "", fmt.Errorf("gemini status %d: %w: %w", apiErr.Code, ErrRejected, err)
		}
		g.logger.Error("Gemini request failed", zap.Error(err))
		return "", fmt.Errorf("gemini request: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

func systemPrompt(story string) string {
	return "You are talking with a reader about the following story. " +
		"Answer in the language the reader uses.\n\nStory:\n" + story
}
