package handlers

import (
	"context"
	"sync"

	"github.com/ddsprasad/data-sense-ai/pkg/services"
)

type resolveCall struct {
	Question string
	Prior    *services.PriorContext
}

type mockResolver struct {
	mu sync.Mutex

	ResolveFunc func(ctx context.Context, question string, prior *services.PriorContext) *services.Resolution
	RefreshErr  error
	StatusValue services.Status

	calls     []resolveCall
	refreshes int
}

func (m *mockResolver) Resolve(ctx context.Context, question string, prior *services.PriorContext) *services.Resolution {
	m.mu.Lock()
	m.calls = append(m.calls, resolveCall{Question: question, Prior: prior})
	m.mu.Unlock()

	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, question, prior)
	}
	return succeededFor(question)
}

func (m *mockResolver) ResolveBatch(ctx context.Context, items []services.BatchItem) []*services.Resolution {
	out := make([]*services.Resolution, len(items))
	for i, item := range items {
		out[i] = m.Resolve(ctx, item.Question, item.Prior)
	}
	return out
}

func (m *mockResolver) RefreshSchema(ctx context.Context) error {
	m.mu.Lock()
	m.refreshes++
	m.mu.Unlock()
	return m.RefreshErr
}

func (m *mockResolver) Status() services.Status {
	return m.StatusValue
}

func (m *mockResolver) Calls() []resolveCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]resolveCall(nil), m.calls...)
}

func succeededFor(question string) *services.Resolution {
	return &services.Resolution{
		Question: question,
		SQL:      "SELECT COUNT(*) AS n FROM fact_loan",
		Rows:     []map[string]any{{"n": 42}},
		RowCount: 1,
		Outcome:  services.OutcomeSucceeded,
		Attempts: 1,
		Tables:   []string{"fact_loan"},
	}
}
