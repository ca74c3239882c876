package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"inkwright/internal/types"
)

// RetryPolicy bounds transient-failure retries per call.
type RetryPolicy struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultRetryPolicy matches the orchestrator defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		BackoffBase: 500 * time.Millisecond,
		BackoffMax:  8 * time.Second,
	}
}

// RetryClient retries transient backend failures with exponential backoff.
// Configuration and parse errors are never retried here; they indicate a
// logic or data problem, not a fault of the wire.
type RetryClient struct {
	inner  Client
	policy RetryPolicy
	logger *zap.Logger
}

// WithRetry decorates inner with the retry policy.
func WithRetry(inner Client, policy RetryPolicy, logger *zap.Logger) *RetryClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &RetryClient{inner: inner, policy: policy, logger: logger.Named("retry")}
}

// Generate retries transient failures up to the policy limit.
func (c *RetryClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	var lastErr error
	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		result, err := c.inner.Generate(ctx, req)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, types.ErrTransient) {
			return nil, err
		}
		lastErr = err

		if attempt < c.policy.MaxRetries {
			backoff := c.policy.BackoffBase << attempt
			if backoff > c.policy.BackoffMax {
				backoff = c.policy.BackoffMax
			}
			c.logger.Debug("retrying after transient error",
				zap.Int("attempt", attempt+1),
				zap.Int("max", c.policy.MaxRetries),
				zap.Duration("backoff", backoff),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("all %d attempts failed: %w", c.policy.MaxRetries+1, lastErr)
}

// CountTokens passes through without retries; counting falls back to the
// heuristic counter upstream.
func (c *RetryClient) CountTokens(ctx context.Context, text, modelID string) (int, error) {
	return c.inner.CountTokens(ctx, text, modelID)
}

// ThrottledClient bounds concurrent backend calls across all runs with a
// weighted semaphore. Within one run passes are sequential; the bound
// protects the provider quota when many projects run agents at once.
type ThrottledClient struct {
	inner Client
	slots *semaphore.Weighted
}

// WithThrottle decorates inner with a global concurrency bound.
func WithThrottle(inner Client, maxConcurrent int) *ThrottledClient {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &ThrottledClient{
		inner: inner,
		slots: semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Generate acquires a slot for the duration of the backend call.
func (c *ThrottledClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if err := c.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.slots.Release(1)
	return c.inner.Generate(ctx, req)
}

// CountTokens acquires a slot for the duration of the backend call.
func (c *ThrottledClient) CountTokens(ctx context.Context, text, modelID string) (int, error) {
	if err := c.slots.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer c.slots.Release(1)
	return c.inner.CountTokens(ctx, text, modelID)
}
