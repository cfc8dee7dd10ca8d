package llm

import (
	"context"

	"github.com/rs/zerolog"
)

// UsageRecorder counts outgoing requests per external API.
type UsageRecorder interface {
	IncrementAPIUsage(ctx context.Context, name string) error
}

// Gateway wraps a resolved provider with retry and usage accounting. It is
// the only type other packages should depend on for model completions.
type Gateway struct {
	provider Provider
	usage    UsageRecorder
	retry    RetryConfig
	log      zerolog.Logger
}

// GatewayOption customizes a Gateway.
type GatewayOption func(*Gateway)

// WithUsageRecorder makes the gateway bump the "llm" usage counter on every
// completion request.
func WithUsageRecorder(r UsageRecorder) GatewayOption {
	return func(g *Gateway) { g.usage = r }
}

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg RetryConfig) GatewayOption {
	return func(g *Gateway) { g.retry = cfg }
}

// NewGateway builds a gateway around an already-resolved provider.
func NewGateway(provider Provider, log zerolog.Logger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		provider: provider,
		retry:    DefaultRetryConfig,
		log:      log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Complete sends the prompt to the resolved provider and returns its raw
// text. Any failure comes back as an error; callers in the extraction path
// treat every error as "no result" rather than propagating it.
func (g *Gateway) Complete(ctx context.Context, prompt string) (string, error) {
	if g.usage != nil {
		if err := g.usage.IncrementAPIUsage(ctx, "llm"); err != nil {
			g.log.Warn().Err(err).Msg("api usage counter update failed")
		}
	}
	text, err := withRetry(ctx, g.retry, func(ctx context.Context) (string, error) {
		return g.provider.Complete(ctx, prompt)
	})
	if err != nil {
		g.log.Debug().Err(err).Str("provider", g.provider.Name()).Msg("llm completion failed")
		return "", err
	}
	return text, nil
}

// ProviderName exposes the resolved provider id, for logs and status display.
func (g *Gateway) ProviderName() string {
	return g.provider.Name()
}
