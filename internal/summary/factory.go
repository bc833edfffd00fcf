package summary

import (
	"context"

	"github.com/deusflow/technews/internal/config"
	"github.com/deusflow/technews/internal/ratelimit"
)

// New builds the service selected by cfg. Without a credential the returned
// service is disabled. The returned func releases backend resources.
func New(ctx context.Context, cfg *config.Config) (*Service, func(), error) {
	opts := Options{
		MaxInput:   cfg.SummaryMaxInput,
		MinLength:  cfg.SummaryMinLength,
		MaxLength:  cfg.SummaryMaxLength,
		Retries:    cfg.SummaryRetries,
		RetryDelay: cfg.SummaryRetryDelay,
	}
	budget := ratelimit.NewBudget(cfg.SummaryRPS, cfg.MaxSummariesPerRun)
	noop := func() {}

	if cfg.SummaryAPIKey() == "" {
		return NewService(nil, opts, budget), noop, nil
	}

	switch cfg.SummaryProvider {
	case config.ProviderGemini:
		g, err := NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, noop, err
		}
		return NewService(g, opts, budget), g.Close, nil
	default:
		d := NewDeepSeekBackend(cfg.DeepSeekAPIKey, cfg.DeepSeekEndpoint, cfg.DeepSeekModel, cfg.RequestTimeout)
		return NewService(d, opts, budget), noop, nil
	}
}
