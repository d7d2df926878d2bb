package llm

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// DefaultEmbeddingModel is used when no embedding model is configured.
const DefaultEmbeddingModel = "text-embedding-3-small"

// OpenAIConfig holds configuration for an OpenAI-compatible or Azure client.
type OpenAIConfig struct {
	Endpoint    string  // Base URL, e.g. "https://api.openai.com/v1"; required for Azure
	Model       string  // Model or Azure deployment name, e.g. "gpt-4o"
	APIKey      string  // Optional for local endpoints
	APIVersion  string  // Azure only
	Azure       bool    // Use Azure OpenAI authentication and routing
	Temperature float64 // Sampling temperature
	MaxTokens   int     // Completion cap, 0 = provider default
}

// OpenAIProvider calls chat completions on OpenAI, Azure OpenAI or any
// OpenAI-compatible server.
type OpenAIProvider struct {
	client      *openai.Client
	endpoint    string
	model       string
	name        string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewOpenAIProvider creates a provider from cfg.
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var clientConfig openai.ClientConfig
	name := "openai"
	switch {
	case cfg.Azure:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("endpoint is required for azure")
		}
		clientConfig = openai.DefaultAzureConfig(cfg.APIKey, strings.TrimSuffix(cfg.Endpoint, "/"))
		if cfg.APIVersion != "" {
			clientConfig.APIVersion = cfg.APIVersion
		}
		name = "azure"
	default:
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		if cfg.Endpoint != "" {
			clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
		}
	}

	temperature := float32(cfg.Temperature)
	if temperature == 0 {
		// go-openai drops a zero temperature from the request body
		temperature = math.SmallestNonzeroFloat32
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(clientConfig),
		endpoint:    clientConfig.BaseURL,
		model:       cfg.Model,
		name:        name,
		temperature: temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger.Named("llm"),
	}, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return p.name }

// Model implements Provider.
func (p *OpenAIProvider) Model() string { return p.model }

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt, system string) (*Completion, error) {
	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	p.logger.Debug("LLM request",
		zap.String("provider", p.name),
		zap.String("model", p.model),
		zap.Int("prompt_len", len(prompt)))

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	})
	if err != nil {
		llmErr := ClassifyError(err)
		llmErr.Model = p.model
		llmErr.Endpoint = p.endpoint
		return nil, llmErr
	}

	if len(resp.Choices) == 0 {
		return nil, &Error{Type: ErrorTypeEmpty, Message: "no choices in response", Model: p.model}
	}

	p.logger.Debug("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	model := resp.Model
	if model == "" {
		model = p.model
	}
	return &Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// CreateEmbeddings implements Embedder.
func (p *OpenAIProvider) CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error) {
	if model == "" {
		model = DefaultEmbeddingModel
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(model),
		Input: inputs,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", ClassifyError(err))
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("create embeddings: got %d vectors for %d inputs", len(resp.Data), len(inputs))
	}

	embeddings := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(inputs) {
			return nil, fmt.Errorf("create embeddings: index %d out of range", d.Index)
		}
		embeddings[d.Index] = d.Embedding
	}
	return embeddings, nil
}
