package llm

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ddsprasad/data-sense-ai/pkg/retry"
)

// ProviderConfig selects and configures a provider and its generation policy.
type ProviderConfig struct {
	Provider    string // "openai", "azure" or "anthropic"
	Endpoint    string
	Model       string
	APIVersion  string
	APIKey      string
	Temperature float64
	MaxTokens   int

	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	BreakerThreshold  int
	BreakerResetAfter time.Duration
}

// NewProvider creates the provider selected by cfg.Provider.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai", "azure":
		p, err := NewOpenAIProvider(OpenAIConfig{
			Endpoint:    cfg.Endpoint,
			Model:       cfg.Model,
			APIKey:      cfg.APIKey,
			APIVersion:  cfg.APIVersion,
			Azure:       strings.EqualFold(cfg.Provider, "azure"),
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create %s provider: %w", cfg.Provider, err)
		}
		return p, nil
	case "anthropic":
		endpoint := cfg.Endpoint
		if strings.Contains(endpoint, "api.openai.com") {
			endpoint = ""
		}
		p, err := NewAnthropicProvider(AnthropicConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Endpoint:    endpoint,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic provider: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// GeneratorConfig derives the generation policy from cfg.
func (cfg ProviderConfig) GeneratorConfig(systemMessage string) GeneratorConfig {
	rc := retry.DefaultConfig()
	rc.MaxRetries = cfg.MaxRetries
	if cfg.RetryDelay > 0 {
		rc.InitialDelay = cfg.RetryDelay
		if rc.MaxDelay < rc.InitialDelay {
			rc.MaxDelay = rc.InitialDelay
		}
	}
	return GeneratorConfig{
		Timeout: cfg.Timeout,
		Retry:   rc,
		Breaker: CircuitBreakerConfig{
			Threshold:  cfg.BreakerThreshold,
			ResetAfter: cfg.BreakerResetAfter,
		},
		SystemMessage: systemMessage,
	}
}
