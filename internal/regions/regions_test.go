package regions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payhook/internal/config"
	"payhook/internal/crm/crmtest"
	"payhook/pkg/errors"
)

func regionConfig() config.RegionConfig {
	return config.RegionConfig{
		CRM:        config.CRMConfig{BaseURL: "https://crm.example.org", APIKey: "k", AccessKey: "a"},
		GoCardless: config.GoCardlessConfig{AccessToken: "gc"},
	}
}

func fakeFactory(region string, cfg config.RegionConfig) (Clients, error) {
	return Clients{CRM: crmtest.New()}, nil
}

func TestRegionForCurrency(t *testing.T) {
	tests := []struct {
		currency string
		region   string
		wantErr  bool
	}{
		{currency: "gbp", region: "uk"},
		{currency: "GBP", region: "uk"},
		{currency: "nok", region: "uk"},
		{currency: "eur", region: "uk"},
		{currency: "usd", region: "us"},
		{currency: " USD ", region: "us"},
		{currency: "jpy", wantErr: true},
		{currency: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.currency, func(t *testing.T) {
			region, err := RegionForCurrency(tt.currency)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnsupportedCurrency))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.region, region)
		})
	}
}

func TestResolver(t *testing.T) {
	r, err := NewResolver(map[string]config.RegionConfig{"uk": regionConfig(), "us": regionConfig()}, "uk", fakeFactory)
	require.NoError(t, err)

	clients, err := r.Resolve("usd")
	require.NoError(t, err)
	assert.Equal(t, "us", clients.Region)

	clients, err = r.ResolveFor("", "us")
	require.NoError(t, err)
	assert.Equal(t, "us", clients.Region)

	clients, err = r.ResolveFor("", "")
	require.NoError(t, err)
	assert.Equal(t, "uk", clients.Region)

	clients, err = r.ResolveFor("eur", "us")
	require.NoError(t, err)
	assert.Equal(t, "uk", clients.Region)

	_, err = r.ResolveFor("chf", "uk")
	assert.True(t, errors.Is(err, ErrUnsupportedCurrency))
}

func TestResolver_UnconfiguredRegion(t *testing.T) {
	r, err := NewResolver(map[string]config.RegionConfig{"uk": regionConfig()}, "uk", fakeFactory)
	require.NoError(t, err)

	_, err = r.Resolve("usd")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCredentials))
	assert.False(t, errors.ToErrorResponse(err).Details == nil)
}

func TestNewResolver_MissingCredentials(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.RegionConfig)
	}{
		{name: "crm api key", mutate: func(c *config.RegionConfig) { c.CRM.APIKey = "" }},
		{name: "crm access key", mutate: func(c *config.RegionConfig) { c.CRM.AccessKey = "" }},
		{name: "no provider", mutate: func(c *config.RegionConfig) { c.GoCardless.AccessToken = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := regionConfig()
			tt.mutate(&cfg)

			built := false
			_, err := NewResolver(map[string]config.RegionConfig{"uk": cfg}, "uk", func(region string, cfg config.RegionConfig) (Clients, error) {
				built = true
				return Clients{}, nil
			})

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingCredentials))
			assert.False(t, errors.ToErrorResponse(err).Details == nil)
			assert.False(t, built)
		})
	}
}

func TestHTTPFactory(t *testing.T) {
	cfg := regionConfig()
	clients, err := HTTPFactory(config.CircuitBreakerConfig{Enabled: true})("uk", cfg)
	require.NoError(t, err)

	assert.NotNil(t, clients.CRM)
	assert.NotNil(t, clients.GoCardless)
	assert.Nil(t, clients.Stripe)
}
