// Package llm invokes chat models through eino with routing, retries and
// per-call accounting.
package llm

import (
	"context"

	"github.com/pario-ai/scribe/pkg/models"
)

// Response is the text and priced usage of one completed call.
type Response struct {
	Text     string
	Usage    models.TokenUsage
	Provider string
	Model    string
}

// Client sends a single-turn prompt to a chat model.
type Client interface {
	Invoke(ctx context.Context, prompt string) (Response, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, prompt string) (Response, error)

// Invoke calls f.
func (f ClientFunc) Invoke(ctx context.Context, prompt string) (Response, error) {
	return f(ctx, prompt)
}
