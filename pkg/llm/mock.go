package llm

import (
	"context"
	"sync"
)

// MockProvider is a configurable Provider for tests.
// Responses are consumed in order; after the last one, the last is repeated.
// Set CompleteFunc to take full control.
type MockProvider struct {
	CompleteFunc func(ctx context.Context, prompt, system string) (*Completion, error)

	Responses []MockResponse
	ModelName string

	mu      sync.Mutex
	prompts []string
}

// MockResponse is one canned provider answer.
type MockResponse struct {
	Text string
	Err  error
}

// NewMockProvider returns a mock answering with texts in order.
func NewMockProvider(texts ...string) *MockProvider {
	m := &MockProvider{ModelName: "mock-model"}
	for _, t := range texts {
		m.Responses = append(m.Responses, MockResponse{Text: t})
	}
	return m
}

// Name implements Provider.
func (m *MockProvider) Name() string { return "mock" }

// Model implements Provider.
func (m *MockProvider) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Complete implements Provider.
func (m *MockProvider) Complete(ctx context.Context, prompt, system string) (*Completion, error) {
	m.mu.Lock()
	call := len(m.prompts)
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, system)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(m.Responses) == 0 {
		return &Completion{Model: m.Model()}, nil
	}
	if call >= len(m.Responses) {
		call = len(m.Responses) - 1
	}
	r := m.Responses[call]
	if r.Err != nil {
		return nil, r.Err
	}
	return &Completion{
		Text:  r.Text,
		Model: m.Model(),
		Usage: Usage{PromptTokens: len(prompt) / 4, CompletionTokens: len(r.Text) / 4, TotalTokens: (len(prompt) + len(r.Text)) / 4},
	}, nil
}

// Calls returns how many times Complete was invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns every prompt received, in call order.
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
