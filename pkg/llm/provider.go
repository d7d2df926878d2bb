// Package llm talks to hosted language models and turns their behavior into
// typed generation results.
package llm

import "context"

// Usage is token accounting reported by a provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is a successful provider response.
type Completion struct {
	Text  string
	Model string
	Usage Usage
}

// Provider is one hosted chat model.
// Implementations return errors classified through ClassifyError.
type Provider interface {
	Complete(ctx context.Context, prompt, system string) (*Completion, error)
	// Name identifies the provider in logs and health output.
	Name() string
	// Model returns the configured model name.
	Model() string
}

// Embedder produces embedding vectors for texts.
type Embedder interface {
	CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error)
}
