// Package provider adapts the payment providers' APIs to the handful of
// retrieve and update calls the event handlers need.
package provider

import (
	"context"
)

type Stripe interface {
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	UpdateCustomerMetadata(ctx context.Context, id string, metadata map[string]string) error
}

type GoCardless interface {
	GetPayment(ctx context.Context, id string) (*Payment, error)
	GetMandate(ctx context.Context, id string) (*Mandate, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	UpdateCustomerMetadata(ctx context.Context, id string, metadata map[string]string) error
	CreateBillingRequest(ctx context.Context, req BillingRequestParams) (*BillingRequest, error)
	CreateBillingRequestFlow(ctx context.Context, req BillingRequestFlowParams) (*BillingRequestFlow, error)
}

// Customer is the provider customer as far as the CRM cares about it.
type Customer struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	AddressLine1 string
	City         string
	PostalCode   string
	CountryCode  string
	Metadata     map[string]string
}

type PaymentIntent struct {
	ID         string
	Amount     int64
	Currency   string
	Status     string
	CustomerID string
	Metadata   map[string]string
}

type Subscription struct {
	ID         string
	CustomerID string
	Status     string
	Amount     int64
	Currency   string
	Interval   string
	Metadata   map[string]string
}

type Payment struct {
	ID          string            `json:"id"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Status      string            `json:"status"`
	ChargeDate  string            `json:"charge_date"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
	Links       PaymentLinks      `json:"links"`
}

type PaymentLinks struct {
	Mandate      string `json:"mandate"`
	Subscription string `json:"subscription"`
}

type Mandate struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Scheme   string            `json:"scheme"`
	Metadata map[string]string `json:"metadata"`
	Links    MandateLinks      `json:"links"`
}

type MandateLinks struct {
	Customer            string `json:"customer"`
	CustomerBankAccount string `json:"customer_bank_account"`
}

type PrefilledCustomer struct {
	GivenName    string `json:"given_name,omitempty"`
	FamilyName   string `json:"family_name,omitempty"`
	Email        string `json:"email,omitempty"`
	AddressLine1 string `json:"address_line1,omitempty"`
	City         string `json:"city,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	CountryCode  string `json:"country_code,omitempty"`
}

type BillingRequestParams struct {
	Scheme   string
	Currency string
	Metadata map[string]string
}

type BillingRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type BillingRequestFlowParams struct {
	BillingRequestID  string
	RedirectURI       string
	ExitURI           string
	PrefilledCustomer PrefilledCustomer
}

type BillingRequestFlow struct {
	ID               string `json:"id"`
	AuthorisationURL string `json:"authorisation_url"`
}
