package payment

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/terangashop/server/internal/module/payment/provider"
	"github.com/terangashop/server/internal/shared/config"
	apperrors "github.com/terangashop/server/internal/shared/errors"
	"github.com/terangashop/server/internal/shared/metrics"
	"github.com/terangashop/server/internal/shared/retry"
)

// Registry holds the configured payment providers, keyed by method. It is
// built once at startup; resolution is a map lookup, never string branching
// at call sites.
type Registry struct {
	providers map[provider.Method]provider.Provider
}

// NewRegistry constructs providers for every enabled payment method. Missing
// credentials are a construction-time configuration error: the process
// refuses to start rather than failing on the first checkout.
func NewRegistry(cfg *config.Config, httpClient *http.Client, m *metrics.Metrics, logger *zap.Logger) (*Registry, error) {
	policy := retry.Policy{
		MaxAttempts:  cfg.Payment.Retry.MaxAttempts,
		InitialDelay: cfg.Payment.Retry.InitialDelay,
		MaxDelay:     cfg.Payment.Retry.MaxDelay,
	}
	breakerFor := func(name string) retry.BreakerSettings {
		return retry.BreakerSettings{
			Name:             name,
			FailureThreshold: cfg.Payment.Breaker.FailureThreshold,
			Timeout:          cfg.Payment.Breaker.Timeout,
			MaxHalfOpen:      cfg.Payment.Breaker.MaxHalfOpen,
		}
	}

	providers := make(map[provider.Method]provider.Provider)

	if cfg.Payment.Wave.Enabled {
		if cfg.Payment.Wave.APIKey == "" || cfg.Payment.Wave.WebhookSecret == "" {
			return nil, apperrors.Configuration("wave is enabled but api_key or webhook_secret is missing")
		}
		providers[provider.MethodWave] = provider.NewWaveProvider(
			&cfg.Payment.Wave,
			httpClient,
			retry.NewBreaker(breakerFor("wave")),
			policy, m, logger,
		)
	}

	if cfg.Payment.OrangeMoney.Enabled {
		om := &cfg.Payment.OrangeMoney
		if om.ClientID == "" || om.ClientSecret == "" || om.MerchantKey == "" || om.WebhookSecret == "" {
			return nil, apperrors.Configuration("orange money is enabled but credentials are incomplete")
		}
		providers[provider.MethodOrangeMoney] = provider.NewOrangeMoneyProvider(
			om,
			httpClient,
			retry.NewBreaker(breakerFor("orange_money")),
			policy, m, logger,
		)
	}

	if cfg.Payment.Stripe.Enabled {
		if cfg.Payment.Stripe.APIKey == "" || cfg.Payment.Stripe.WebhookSecret == "" {
			return nil, apperrors.Configuration("stripe is enabled but api_key or webhook_secret is missing")
		}
		providers[provider.MethodStripe] = provider.NewStripeProvider(&cfg.Payment.Stripe)
	}

	if len(providers) == 0 {
		return nil, apperrors.Configuration("no payment providers enabled")
	}

	return &Registry{providers: providers}, nil
}

// Get returns the provider for a method.
func (r *Registry) Get(method provider.Method) (provider.Provider, error) {
	p, ok := r.providers[method]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// Methods returns all registered payment methods.
func (r *Registry) Methods() []provider.Method {
	methods := make([]provider.Method, 0, len(r.providers))
	for m := range r.providers {
		methods = append(methods, m)
	}
	return methods
}
