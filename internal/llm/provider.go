// Package llm wraps hosted completion APIs behind a shared token budget and
// a rate-limit aware retry loop.
package llm

import (
	"context"
	"fmt"
)

// Request is a single completion call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Response carries the model text and the token usage the provider reported.
// TokensUsed is 0 when the provider does not report usage.
type Response struct {
	Text       string
	TokensUsed int
}

// Provider is a hosted completion API.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
}

// RateLimitError is returned by providers when the remote side throttled the
// call. Message is the provider's human readable text, which usually carries
// a wait hint and token counts.
type RateLimitError struct {
	Provider string
	Message  string
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited: %s", e.Provider, e.Message)
}

func (e *RateLimitError) Unwrap() error { return e.Err }
