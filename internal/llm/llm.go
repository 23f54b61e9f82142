// Package llm defines the model endpoint contract used by classification and
// extraction, and its Anthropic-backed implementation.
package llm

import (
	"context"

	"github.com/rotisserie/eris"
)

var (
	// ErrModelTimeout means a call exceeded its time budget.
	ErrModelTimeout = eris.New("llm: model timeout")
	// ErrModelUnavailable means the endpoint failed or returned nothing usable.
	ErrModelUnavailable = eris.New("llm: model unavailable")
)

// Request is one "generate text from prompt" call.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int64
	// Phase labels the call for cost attribution ("classify", "extract/<section>").
	Phase string
}

// Model generates one text completion per request.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, req Request) (string, error)

// Generate implements Model.
func (f ModelFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
