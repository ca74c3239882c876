// Package token provides token counting with a content-hash cache so that
// context planning never reuses stale counts after a text edit.
package token

import (
	"context"
	"unicode/utf8"
)

// Counter counts tokens of a text fragment for a given model. Counting must
// be deterministic and pure with respect to (text, modelID).
type Counter interface {
	Count(ctx context.Context, text, modelID string) (int, error)
}

// CounterFunc adapts a function to the Counter interface.
type CounterFunc func(ctx context.Context, text, modelID string) (int, error)

func (f CounterFunc) Count(ctx context.Context, text, modelID string) (int, error) {
	return f(ctx, text, modelID)
}

// HeuristicCounter estimates tokens from rune length. Calibrated at ~4
// characters per token, which tracks the Gemini tokenizer closely enough
// for budget planning and works offline.
type HeuristicCounter struct {
	charsPerToken float64
}

// NewHeuristicCounter returns a counter with default calibration.
func NewHeuristicCounter() *HeuristicCounter {
	return &HeuristicCounter{charsPerToken: 4.0}
}

// Count estimates tokens in text. The model ID is accepted for interface
// parity; the heuristic is model-independent.
func (c *HeuristicCounter) Count(_ context.Context, text, _ string) (int, error) {
	if text == "" {
		return 0, nil
	}
	// Rune count for proper unicode handling.
	runes := utf8.RuneCountInString(text)
	n := int(float64(runes) / c.charsPerToken)
	if n == 0 {
		n = 1
	}
	return n, nil
}
