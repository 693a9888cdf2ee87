// Package responder talks to the text-generation endpoint that answers
// questions about a story.
package responder

import (
	"context"
	"errors"
)

// ErrEmptyReply means the endpoint answered successfully but produced no text.
var ErrEmptyReply = errors.New("responder returned no text")

// ErrRejected means the endpoint was reached but refused the request with an
// error status. Anything else that fails is a transport problem.
var ErrRejected = errors.New("responder rejected the request")

// Responder generates a reply to userMessage, grounded in promptContext.
type Responder interface {
	Generate(ctx context.Context, promptContext, userMessage string) (string, error)
}
