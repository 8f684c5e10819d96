// Package providertest provides in-memory Stripe and GoCardless clients.
package providertest

import (
	"context"
	"fmt"
	"sync"

	"payhook/internal/provider"
)

type recorder struct {
	mu     sync.Mutex
	calls  []string
	Errors map[string]error
}

func (r *recorder) record(method string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, method)
	if r.Errors == nil {
		return nil
	}
	return r.Errors[method]
}

// Calls lists recorded method names in call order.
func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s not found", kind, id)
}

type Stripe struct {
	recorder

	PaymentIntents  map[string]*provider.PaymentIntent
	Customers       map[string]*provider.Customer
	Subscriptions   map[string]*provider.Subscription
	UpdatedMetadata map[string]map[string]string
}

func NewStripe() *Stripe {
	return &Stripe{
		recorder:        recorder{Errors: map[string]error{}},
		PaymentIntents:  map[string]*provider.PaymentIntent{},
		Customers:       map[string]*provider.Customer{},
		Subscriptions:   map[string]*provider.Subscription{},
		UpdatedMetadata: map[string]map[string]string{},
	}
}

func (s *Stripe) GetPaymentIntent(ctx context.Context, id string) (*provider.PaymentIntent, error) {
	if err := s.record("GetPaymentIntent"); err != nil {
		return nil, err
	}
	if pi, ok := s.PaymentIntents[id]; ok {
		return pi, nil
	}
	return nil, notFound("payment intent", id)
}

func (s *Stripe) GetCustomer(ctx context.Context, id string) (*provider.Customer, error) {
	if err := s.record("GetCustomer"); err != nil {
		return nil, err
	}
	if c, ok := s.Customers[id]; ok {
		return c, nil
	}
	return nil, notFound("customer", id)
}

func (s *Stripe) GetSubscription(ctx context.Context, id string) (*provider.Subscription, error) {
	if err := s.record("GetSubscription"); err != nil {
		return nil, err
	}
	if sub, ok := s.Subscriptions[id]; ok {
		return sub, nil
	}
	return nil, notFound("subscription", id)
}

func (s *Stripe) UpdateCustomerMetadata(ctx context.Context, id string, metadata map[string]string) error {
	if err := s.record("UpdateCustomerMetadata"); err != nil {
		return err
	}
	s.mu.Lock()
	s.UpdatedMetadata[id] = metadata
	s.mu.Unlock()
	return nil
}

type GoCardless struct {
	recorder

	Payments        map[string]*provider.Payment
	Mandates        map[string]*provider.Mandate
	Customers       map[string]*provider.Customer
	Subscriptions   map[string]*provider.Subscription
	UpdatedMetadata map[string]map[string]string

	BillingRequest       *provider.BillingRequest
	BillingRequestFlow   *provider.BillingRequestFlow
	LastBillingRequest   provider.BillingRequestParams
	LastBillingFlowInput provider.BillingRequestFlowParams
}

func NewGoCardless() *GoCardless {
	return &GoCardless{
		recorder:        recorder{Errors: map[string]error{}},
		Payments:        map[string]*provider.Payment{},
		Mandates:        map[string]*provider.Mandate{},
		Customers:       map[string]*provider.Customer{},
		Subscriptions:   map[string]*provider.Subscription{},
		UpdatedMetadata: map[string]map[string]string{},
	}
}

func (g *GoCardless) GetPayment(ctx context.Context, id string) (*provider.Payment, error) {
	if err := g.record("GetPayment"); err != nil {
		return nil, err
	}
	if p, ok := g.Payments[id]; ok {
		return p, nil
	}
	return nil, notFound("payment", id)
}

func (g *GoCardless) GetMandate(ctx context.Context, id string) (*provider.Mandate, error) {
	if err := g.record("GetMandate"); err != nil {
		return nil, err
	}
	if m, ok := g.Mandates[id]; ok {
		return m, nil
	}
	return nil, notFound("mandate", id)
}

func (g *GoCardless) GetCustomer(ctx context.Context, id string) (*provider.Customer, error) {
	if err := g.record("GetCustomer"); err != nil {
		return nil, err
	}
	if c, ok := g.Customers[id]; ok {
		return c, nil
	}
	return nil, notFound("customer", id)
}

func (g *GoCardless) GetSubscription(ctx context.Context, id string) (*provider.Subscription, error) {
	if err := g.record("GetSubscription"); err != nil {
		return nil, err
	}
	if s, ok := g.Subscriptions[id]; ok {
		return s, nil
	}
	return nil, notFound("subscription", id)
}

func (g *GoCardless) UpdateCustomerMetadata(ctx context.Context, id string, metadata map[string]string) error {
	if err := g.record("UpdateCustomerMetadata"); err != nil {
		return err
	}
	g.mu.Lock()
	g.UpdatedMetadata[id] = metadata
	g.mu.Unlock()
	return nil
}

func (g *GoCardless) CreateBillingRequest(ctx context.Context, req provider.BillingRequestParams) (*provider.BillingRequest, error) {
	if err := g.record("CreateBillingRequest"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.LastBillingRequest = req
	g.mu.Unlock()
	if g.BillingRequest == nil {
		return &provider.BillingRequest{}, nil
	}
	return g.BillingRequest, nil
}

func (g *GoCardless) CreateBillingRequestFlow(ctx context.Context, req provider.BillingRequestFlowParams) (*provider.BillingRequestFlow, error) {
	if err := g.record("CreateBillingRequestFlow"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.LastBillingFlowInput = req
	g.mu.Unlock()
	if g.BillingRequestFlow == nil {
		return &provider.BillingRequestFlow{}, nil
	}
	return g.BillingRequestFlow, nil
}

var (
	_ provider.Stripe     = (*Stripe)(nil)
	_ provider.GoCardless = (*GoCardless)(nil)
)
