package llm

import (
	"context"
	"sync"
	"unicode/utf8"
)

// MockClient is a scripted backend for tests: responses are consumed in
// order, and every request is captured for assertions.
type MockClient struct {
	mu        sync.Mutex
	responses []MockResponse
	calls     []GenerateRequest
}

// MockResponse is one scripted reply; Err takes precedence over Text.
type MockResponse struct {
	Text string
	Err  error
}

// NewMockClient returns a client that replays the given responses. When the
// script runs out, the last response repeats.
func NewMockClient(responses ...MockResponse) *MockClient {
	return &MockClient{responses: responses}
}

// Generate pops the next scripted response.
func (m *MockClient) Generate(_ context.Context, req GenerateRequest) (*GenerateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	var resp MockResponse
	switch {
	case len(m.responses) == 0:
		resp = MockResponse{Text: "ok"}
	case len(m.calls) <= len(m.responses):
		resp = m.responses[len(m.calls)-1]
	default:
		resp = m.responses[len(m.responses)-1]
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	tokens := utf8.RuneCountInString(resp.Text) / 4
	return &GenerateResult{Text: resp.Text, TokensUsed: &tokens, RequestID: "mock"}, nil
}

// CountTokens estimates with the same 4-chars-per-token heuristic used by
// the offline counter.
func (m *MockClient) CountTokens(_ context.Context, text, _ string) (int, error) {
	return utf8.RuneCountInString(text) / 4, nil
}

// Calls returns a copy of the captured requests.
func (m *MockClient) Calls() []GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GenerateRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many Generate calls were made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
