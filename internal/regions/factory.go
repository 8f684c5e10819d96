package regions

import (
	"payhook/internal/config"
	"payhook/internal/crm"
	"payhook/internal/provider"
	"payhook/pkg/circuitbreaker"
)

// HTTPFactory builds live clients. The CRM client sits behind a circuit
// breaker per region. A provider without a secret is left nil.
func HTTPFactory(cb config.CircuitBreakerConfig) Factory {
	return func(region string, cfg config.RegionConfig) (Clients, error) {
		var crmClient crm.Client = crm.NewHTTPClient(region, cfg.CRM)
		if cb.Enabled {
			crmClient = crm.NewCircuitBreakerClient(crmClient, circuitbreaker.FromConfig("crm-"+region, cb))
		}

		clients := Clients{
			Region: region,
			CRM:    crmClient,
		}
		if cfg.Stripe.SecretKey != "" {
			clients.Stripe = provider.NewStripeClient(region, cfg.Stripe.SecretKey, nil)
		}
		if cfg.GoCardless.AccessToken != "" {
			clients.GoCardless = provider.NewGoCardlessClient(region, cfg.GoCardless)
		}
		return clients, nil
	}
}
