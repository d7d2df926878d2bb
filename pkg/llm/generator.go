package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ddsprasad/data-sense-ai/pkg/apperrors"
	"github.com/ddsprasad/data-sense-ai/pkg/retry"
)

// GeneratorConfig controls a Generator.
type GeneratorConfig struct {
	Timeout       time.Duration // per provider call
	Retry         *retry.Config // transport retries; nil uses retry.DefaultConfig
	Breaker       CircuitBreakerConfig
	SystemMessage string
}

// GenerationResult is raw model text or a typed failure.
// Exactly one of Text and Failure is meaningful.
type GenerationResult struct {
	Text    string
	Model   string
	Usage   Usage
	Retries int // transport retries spent on this call

	Failure ErrorType // empty on success
	Err     error     // wraps apperrors.ErrTransportFailure for transport failures
}

// OK reports whether the call produced text.
func (r *GenerationResult) OK() bool { return r != nil && r.Failure == "" }

// Transport reports whether the failure came from the transport rather than
// from the model's answer.
func (r *GenerationResult) Transport() bool {
	return r != nil && r.Failure != "" && r.Failure != ErrorTypeEmpty
}

// Generator sends prompts to a Provider with a per-call timeout, transport
// retries and a circuit breaker. It never returns an error: every failure is
// reported in the GenerationResult.
type Generator struct {
	provider Provider
	cfg      GeneratorConfig
	breaker  *CircuitBreaker
	logger   *zap.Logger
}

// NewGenerator wraps provider.
func NewGenerator(provider Provider, cfg GeneratorConfig, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultConfig()
	}
	return &Generator{
		provider: provider,
		cfg:      cfg,
		breaker:  NewCircuitBreaker(cfg.Breaker),
		logger:   logger.Named("generator"),
	}
}

// Provider returns the wrapped provider.
func (g *Generator) Provider() Provider { return g.provider }

// BreakerState returns the circuit breaker state for health reporting.
func (g *Generator) BreakerState() CircuitState { return g.breaker.State() }

// Generate sends prompt to the model.
func (g *Generator) Generate(ctx context.Context, prompt string) *GenerationResult {
	fields := append(contextFields(ctx),
		zap.String("provider", g.provider.Name()),
		zap.String("model", g.provider.Model()))

	if err := g.breaker.Allow(); err != nil {
		g.logger.Warn("Generation short-circuited", append(fields, zap.Error(err))...)
		return transportFailure(NewError(ErrorTypeServiceError, "provider unavailable", false, err), 0)
	}

	retryCfg := *g.cfg.Retry
	result := &GenerationResult{}
	retryCfg.OnRetry = func(n int, delay time.Duration, err error) {
		result.Retries = n
		g.logger.Warn("Retrying generation call",
			append(fields,
				zap.Int("retry", n),
				zap.Duration("delay", delay),
				zap.String("error", err.Error()))...)
	}

	var completion *Completion
	start := time.Now()
	err := retry.DoIfRetryable(ctx, &retryCfg, func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()

		c, err := g.provider.Complete(callCtx, prompt, g.cfg.SystemMessage)
		if err != nil {
			return ClassifyError(err)
		}
		completion = c
		return nil
	})

	if err != nil {
		if ctx.Err() != nil {
			// Caller gave up; not the provider's fault.
			return transportFailure(NewError(ErrorTypeTimeout, "request cancelled", false, ctx.Err()), result.Retries)
		}
		llmErr := ClassifyError(err)
		if llmErr.Type == ErrorTypeEmpty {
			g.breaker.RecordSuccess()
			g.logger.Warn("Model returned no choices", fields...)
			result.Failure = ErrorTypeEmpty
			result.Err = llmErr
			return result
		}
		g.breaker.RecordFailure()
		g.logger.Error("Generation failed",
			append(fields,
				zap.String("failure", string(llmErr.Type)),
				zap.Int("retries", result.Retries),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("error", llmErr.Error()))...)
		return transportFailure(llmErr, result.Retries)
	}

	g.breaker.RecordSuccess()
	if completion == nil || strings.TrimSpace(completion.Text) == "" {
		g.logger.Warn("Model returned empty content", fields...)
		result.Failure = ErrorTypeEmpty
		result.Err = NewError(ErrorTypeEmpty, "empty response", false, nil)
		return result
	}

	result.Text = completion.Text
	result.Model = completion.Model
	result.Usage = completion.Usage

	g.logger.Info("Generation completed",
		append(fields,
			zap.Int("prompt_tokens", completion.Usage.PromptTokens),
			zap.Int("completion_tokens", completion.Usage.CompletionTokens),
			zap.Int("retries", result.Retries),
			zap.Duration("elapsed", time.Since(start)))...)
	return result
}

func transportFailure(err *Error, retries int) *GenerationResult {
	return &GenerationResult{
		Failure: err.Type,
		Err:     fmt.Errorf("%w: %w", apperrors.ErrTransportFailure, err),
		Retries: retries,
	}
}

