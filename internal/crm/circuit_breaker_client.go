package crm

import (
	"context"

	"payhook/pkg/circuitbreaker"
)

// CircuitBreakerClient trips after repeated CRM failures so that a CRM
// outage fails events fast instead of holding every request to timeout.
type CircuitBreakerClient struct {
	client Client
	cb     *circuitbreaker.Wrapper
}

func NewCircuitBreakerClient(client Client, cfg circuitbreaker.Config) *CircuitBreakerClient {
	return &CircuitBreakerClient{
		client: client,
		cb:     circuitbreaker.NewWrapper(cfg),
	}
}

func (c *CircuitBreakerClient) DuplicateCheck(ctx context.Context, person Person) ([]Candidate, error) {
	return circuitbreaker.Execute(ctx, c.cb, func() ([]Candidate, error) { return c.client.DuplicateCheck(ctx, person) })
}

func (c *CircuitBreakerClient) CreateConstituent(ctx context.Context, person Person) (string, error) {
	return circuitbreaker.Execute(ctx, c.cb, func() (string, error) { return c.client.CreateConstituent(ctx, person) })
}

func (c *CircuitBreakerClient) UpdateConstituent(ctx context.Context, id string, person Person) error {
	return circuitbreaker.Run(ctx, c.cb, func() error { return c.client.UpdateConstituent(ctx, id, person) })
}

func (c *CircuitBreakerClient) GetPreferences(ctx context.Context, constituentID string) (*Preferences, error) {
	return circuitbreaker.Execute(ctx, c.cb, func() (*Preferences, error) { return c.client.GetPreferences(ctx, constituentID) })
}

func (c *CircuitBreakerClient) UpdatePreferences(ctx context.Context, constituentID string, prefs Preferences) error {
	return circuitbreaker.Run(ctx, c.cb, func() error { return c.client.UpdatePreferences(ctx, constituentID, prefs) })
}

func (c *CircuitBreakerClient) AddActivity(ctx context.Context, activity Activity) (string, error) {
	return circuitbreaker.Execute(ctx, c.cb, func() (string, error) { return c.client.AddActivity(ctx, activity) })
}

func (c *CircuitBreakerClient) AddActiveTags(ctx context.Context, constituentID string, tags []string) error {
	return circuitbreaker.Run(ctx, c.cb, func() error { return c.client.AddActiveTags(ctx, constituentID, tags) })
}

func (c *CircuitBreakerClient) RemoveTag(ctx context.Context, constituentID, tag string) error {
	return circuitbreaker.Run(ctx, c.cb, func() error { return c.client.RemoveTag(ctx, constituentID, tag) })
}

func (c *CircuitBreakerClient) CreateTransaction(ctx context.Context, tx Transaction) (string, error) {
	return circuitbreaker.Execute(ctx, c.cb, func() (string, error) { return c.client.CreateTransaction(ctx, tx) })
}

func (c *CircuitBreakerClient) DeleteConstituent(ctx context.Context, constituentID string) error {
	return circuitbreaker.Run(ctx, c.cb, func() error { return c.client.DeleteConstituent(ctx, constituentID) })
}

func (c *CircuitBreakerClient) DeleteTransaction(ctx context.Context, transactionID string) error {
	return circuitbreaker.Run(ctx, c.cb, func() error { return c.client.DeleteTransaction(ctx, transactionID) })
}

func (c *CircuitBreakerClient) State() string {
	return c.cb.State()
}
