// Package regions maps a payment currency to the regional account set whose
// CRM and payment-provider credentials must be used for it.
package regions

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"payhook/internal/config"
	"payhook/internal/crm"
	"payhook/internal/provider"
	"payhook/pkg/errors"
)

var (
	ErrUnsupportedCurrency = errors.NewError("UNSUPPORTED_CURRENCY", "currency is not served by any region", http.StatusUnprocessableEntity).AsFatal()
	ErrMissingCredentials  = errors.NewError("MISSING_CREDENTIALS", "region is missing required credentials", http.StatusInternalServerError).AsFatal()
)

var currencyRegions = map[string]string{
	"gbp": config.RegionUK,
	"nok": config.RegionUK,
	"eur": config.RegionUK,
	"usd": config.RegionUS,
}

// RegionForCurrency returns the region serving currency, case-insensitively.
func RegionForCurrency(currency string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(currency))
	region, ok := currencyRegions[c]
	if !ok {
		return "", ErrUnsupportedCurrency.
			WithMessage(fmt.Sprintf("currency %q is not supported", currency)).
			WithDetail("currency", currency)
	}
	return region, nil
}

// Clients is the credential-scoped client set for one region.
type Clients struct {
	Region     string
	CRM        crm.Client
	Stripe     provider.Stripe
	GoCardless provider.GoCardless
}

// Factory builds the clients for one region from its configuration.
type Factory func(region string, cfg config.RegionConfig) (Clients, error)

type Resolver struct {
	clients       map[string]Clients
	defaultRegion string
}

// NewResolver validates every region's credentials and builds its clients
// once. Failing here keeps a misconfigured region from reaching any
// external call.
func NewResolver(regions map[string]config.RegionConfig, defaultRegion string, build Factory) (*Resolver, error) {
	r := &Resolver{
		clients:       make(map[string]Clients, len(regions)),
		defaultRegion: defaultRegion,
	}

	names := make([]string, 0, len(regions))
	for name := range regions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cfg := regions[name]
		if err := CheckCredentials(name, cfg); err != nil {
			return nil, err
		}
		clients, err := build(name, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to build clients for region %s: %w", name, err)
		}
		clients.Region = name
		r.clients[name] = clients
	}

	return r, nil
}

// CheckCredentials requires CRM credentials and at least one payment
// provider's secret.
func CheckCredentials(region string, cfg config.RegionConfig) error {
	var missing []string
	if cfg.CRM.BaseURL == "" {
		missing = append(missing, "crm.base_url")
	}
	if cfg.CRM.APIKey == "" {
		missing = append(missing, "crm.api_key")
	}
	if cfg.CRM.AccessKey == "" {
		missing = append(missing, "crm.access_key")
	}
	if cfg.Stripe.SecretKey == "" && cfg.GoCardless.AccessToken == "" {
		missing = append(missing, "stripe.secret_key or gocardless.access_token")
	}

	if len(missing) > 0 {
		return ErrMissingCredentials.
			WithMessage(fmt.Sprintf("region %s is missing %s", region, strings.Join(missing, ", "))).
			WithDetail("region", region).
			WithDetail("missing", missing)
	}
	return nil
}

// Resolve returns the clients for the region serving currency.
func (r *Resolver) Resolve(currency string) (Clients, error) {
	region, err := RegionForCurrency(currency)
	if err != nil {
		return Clients{}, err
	}
	return r.ForRegion(region)
}

func (r *Resolver) ForRegion(region string) (Clients, error) {
	clients, ok := r.clients[region]
	if !ok {
		return Clients{}, ErrMissingCredentials.
			WithMessage(fmt.Sprintf("region %s is not configured", region)).
			WithDetail("region", region)
	}
	return clients, nil
}

// ResolveFor prefers the currency, then the endpoint region hint, then the
// default region.
func (r *Resolver) ResolveFor(currency, regionHint string) (Clients, error) {
	if currency != "" {
		return r.Resolve(currency)
	}
	if regionHint != "" {
		return r.ForRegion(regionHint)
	}
	return r.ForRegion(r.defaultRegion)
}
