package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"inkwright/internal/types"
)

// GeminiClient implements Client against the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	timeout time.Duration
	logger  *zap.Logger
}

// GeminiConfig holds backend settings.
type GeminiConfig struct {
	APIKey  string
	Timeout time.Duration
}

// NewGeminiClient creates the backend client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, &types.ConfigError{Detail: "Gemini API key is required (set GEMINI_API_KEY)"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		timeout: cfg.Timeout,
		logger:  logger.Named("llm"),
	}, nil
}

// callContext bounds a backend call by the per-call timeout while detaching
// it from run cancellation: a cancelled run lets the in-flight call finish,
// and the orchestrator observes the cancellation at the next pass boundary.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

// Generate sends one completion request with a bounded per-call timeout.
func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	requestID := uuid.NewString()
	callCtx, cancel := callContext(ctx, c.timeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromText(req.UserPrompt, genai.RoleUser),
	}
	var cfg *genai.GenerateContentConfig
	if req.SystemPrompt != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		}
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(callCtx, req.ModelID, contents, cfg)
	if err != nil {
		if classified := classify(err, "generate"); classified != nil {
			return nil, classified
		}
		return nil, fmt.Errorf("generate: %w", err)
	}

	text := resp.Text()
	result := &GenerateResult{Text: text, RequestID: requestID}
	if resp.UsageMetadata != nil {
		total := int(resp.UsageMetadata.TotalTokenCount)
		result.TokensUsed = &total
	}

	c.logger.Debug("generation complete",
		zap.String("request_id", requestID),
		zap.String("model", req.ModelID),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("response_bytes", len(text)))
	return result, nil
}

// CountTokens asks the backend tokenizer for an exact count.
func (c *GeminiClient) CountTokens(ctx context.Context, text, modelID string) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}
	resp, err := c.client.Models.CountTokens(callCtx, modelID, contents, nil)
	if err != nil {
		if classified := classify(err, "count_tokens"); classified != nil {
			return 0, classified
		}
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return int(resp.TotalTokens), nil
}

// classify maps backend failures onto the error taxonomy. Timeouts and
// upstream 429/5xx are transient (retried with backoff); everything else
// propagates as-is.
func classify(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &types.TransientError{Op: op, Err: err}
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code >= 500 {
			return &types.TransientError{Op: op, Err: err}
		}
	}
	return nil
}
