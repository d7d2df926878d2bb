package llm

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

type contextKey string

const (
	llmContextKey contextKey = "llm_context"
)

// WithContext returns a context carrying values that generation logs attach.
// The map is merged with values already on ctx.
func WithContext(ctx context.Context, values map[string]any) context.Context {
	existing := GetContext(ctx)
	if existing == nil {
		existing = make(map[string]any, len(values))
	}
	for k, v := range values {
		existing[k] = v
	}
	return context.WithValue(ctx, llmContextKey, existing)
}

// GetContext returns a copy of the values attached by WithContext, or nil.
func GetContext(ctx context.Context) map[string]any {
	c, ok := ctx.Value(llmContextKey).(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]any, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// WithTaskContext tags generation calls with the question task and attempt.
func WithTaskContext(ctx context.Context, taskID string, attempt int) context.Context {
	values := map[string]any{"attempt": attempt}
	if taskID != "" {
		values["task_id"] = taskID
	}
	return WithContext(ctx, values)
}

// contextFields renders the attached values as zap fields in key order.
func contextFields(ctx context.Context) []zap.Field {
	values := GetContext(ctx)
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, values[k]))
	}
	return fields
}
