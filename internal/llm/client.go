// Package llm abstracts the LLM backend: generate text and count tokens.
// The backend is an opaque service; decorators add retries and a global
// concurrency bound.
package llm

import (
	"context"
)

// GenerateRequest is one LLM call: a system prompt plus the user content
// (the rendered context plan and pass instructions).
type GenerateRequest struct {
	ModelID      string
	SystemPrompt string
	UserPrompt   string
}

// GenerateResult carries the model output and token accounting.
type GenerateResult struct {
	Text string

	// TokensUsed is the total token usage reported by the backend, when
	// available.
	TokensUsed *int

	// RequestID correlates the call with run log entries.
	RequestID string
}

// Client is the minimal backend interface the orchestrator calls through.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
	CountTokens(ctx context.Context, text, modelID string) (int, error)
}
