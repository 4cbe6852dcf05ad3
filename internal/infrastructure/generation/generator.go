// Package generation produces report and comparison content from an external
// language model. Every failure is reported as a
// *research.GenerationFailedError carrying its kind.
package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/reportcache-go/pkg/config"
)

// Generator turns a cache key into content.
type Generator interface {
	Generate(ctx context.Context, req research.GenerationRequest) (*research.GeneratedContent, error)
	Name() string
}

// New builds the generator selected by cfg. A provider without an API key
// degrades to the fallback generator.
func New(ctx context.Context, cfg *config.Config, logger *logging.ChanneledLogger) (Generator, error) {
	options := Options{
		MaxOutputTokens: cfg.MaxOutputTokens,
		Temperature:     cfg.Temperature,
	}

	switch cfg.GeneratorProvider {
	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			logger.Generation().Warn("GEMINI_API_KEY not set, using fallback analysis")
			return NewFallbackGenerator(), nil
		}
		options.Model = cfg.GeminiModel
		return NewGeminiGenerator(ctx, cfg.GeminiAPIKey, options, logger)
	case config.ProviderLemur:
		if cfg.AAIAPIKey == "" {
			logger.Generation().Warn("AAI_API_KEY not set, using fallback analysis")
			return NewFallbackGenerator(), nil
		}
		options.Model = cfg.LemurModel
		return NewLemurGenerator(cfg.AAIAPIKey, options, logger), nil
	case config.ProviderFallback:
		return NewFallbackGenerator(), nil
	}
	return nil, fmt.Errorf("unsupported generator provider %q", cfg.GeneratorProvider)
}

// Options are shared by the model-backed generators.
type Options struct {
	Model           string
	MaxOutputTokens int64
	Temperature     float64
}

// classify maps a transport error onto a failure kind.
func classify(ctx context.Context, err error) *research.GenerationFailedError {
	var failed *research.GenerationFailedError
	if errors.As(err, &failed) {
		return failed
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return research.NewGenerationFailed(research.FailureTimeout, err)
	}
	return research.NewGenerationFailed(research.FailureUpstreamError, err)
}
