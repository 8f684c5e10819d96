package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"payhook/pkg/metrics"
)

const stripeService = "stripe"

type StripeClient struct {
	api    *client.API
	region string
}

// NewStripeClient builds a client for one regional Stripe account. backends
// may be nil to use Stripe's production endpoints.
func NewStripeClient(region, secretKey string, backends *stripe.Backends) *StripeClient {
	return &StripeClient{
		api:    client.New(secretKey, backends),
		region: region,
	}
}

func (s *StripeClient) observe(start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObserveExternalRequest(stripeService, s.region, status, time.Since(start))
}

func (s *StripeClient) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	start := time.Now()
	pi, err := s.api.PaymentIntents.Get(id, params)
	s.observe(start, err)
	if err != nil {
		return nil, fmt.Errorf("stripe: retrieve payment intent %s: %w", id, err)
	}
	return paymentIntentFromStripe(pi), nil
}

func (s *StripeClient) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	start := time.Now()
	c, err := s.api.Customers.Get(id, params)
	s.observe(start, err)
	if err != nil {
		return nil, fmt.Errorf("stripe: retrieve customer %s: %w", id, err)
	}
	return customerFromStripe(c), nil
}

func (s *StripeClient) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	start := time.Now()
	sub, err := s.api.Subscriptions.Get(id, params)
	s.observe(start, err)
	if err != nil {
		return nil, fmt.Errorf("stripe: retrieve subscription %s: %w", id, err)
	}
	return subscriptionFromStripe(sub), nil
}

func (s *StripeClient) UpdateCustomerMetadata(ctx context.Context, id string, metadata map[string]string) error {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	start := time.Now()
	_, err := s.api.Customers.Update(id, params)
	s.observe(start, err)
	if err != nil {
		return fmt.Errorf("stripe: update customer %s metadata: %w", id, err)
	}
	return nil
}

func paymentIntentFromStripe(pi *stripe.PaymentIntent) *PaymentIntent {
	out := &PaymentIntent{
		ID:       pi.ID,
		Amount:   pi.Amount,
		Currency: strings.ToLower(string(pi.Currency)),
		Status:   string(pi.Status),
		Metadata: pi.Metadata,
	}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
	}
	return out
}

func customerFromStripe(c *stripe.Customer) *Customer {
	first, last := SplitName(c.Name)
	out := &Customer{
		ID:        c.ID,
		Email:     c.Email,
		FirstName: first,
		LastName:  last,
		Metadata:  c.Metadata,
	}
	if c.Address != nil {
		out.AddressLine1 = c.Address.Line1
		out.City = c.Address.City
		out.PostalCode = c.Address.PostalCode
		out.CountryCode = c.Address.Country
	}
	return out
}

func subscriptionFromStripe(sub *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:       sub.ID,
		Status:   string(sub.Status),
		Currency: strings.ToLower(string(sub.Currency)),
		Metadata: sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		price := sub.Items.Data[0].Price
		out.Amount = price.UnitAmount
		if out.Currency == "" {
			out.Currency = strings.ToLower(string(price.Currency))
		}
		if price.Recurring != nil {
			out.Interval = string(price.Recurring.Interval)
		}
	}
	return out
}

// SplitName splits a full name at the first space.
func SplitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	parts := strings.SplitN(full, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}
