package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"payhook/internal/config"
	"payhook/internal/rest"
)

const (
	goCardlessService    = "gocardless"
	goCardlessAPIVersion = "2015-07-06"

	GoCardlessLiveURL    = "https://api.gocardless.com"
	GoCardlessSandboxURL = "https://api-sandbox.gocardless.com"
)

type GoCardlessClient struct {
	api *rest.Client
}

// GoCardlessBaseURL maps the configured environment to the API host. Anything
// other than "live" is sandbox.
func GoCardlessBaseURL(environment string) string {
	if strings.EqualFold(environment, "live") {
		return GoCardlessLiveURL
	}
	return GoCardlessSandboxURL
}

func NewGoCardlessClient(region string, cfg config.GoCardlessConfig, opts ...rest.Option) *GoCardlessClient {
	return NewGoCardlessClientWithBaseURL(region, GoCardlessBaseURL(cfg.Environment), cfg.AccessToken, opts...)
}

func NewGoCardlessClientWithBaseURL(region, baseURL, accessToken string, opts ...rest.Option) *GoCardlessClient {
	opts = append([]rest.Option{
		rest.WithHeader("Authorization", "Bearer "+accessToken),
		rest.WithHeader("GoCardless-Version", goCardlessAPIVersion),
	}, opts...)
	return &GoCardlessClient{
		api: rest.New(goCardlessService, region, baseURL, opts...),
	}
}

func (g *GoCardlessClient) GetPayment(ctx context.Context, id string) (*Payment, error) {
	var out struct {
		Payments Payment `json:"payments"`
	}
	if err := g.api.Do(ctx, http.MethodGet, "/payments/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, fmt.Errorf("gocardless: retrieve payment %s: %w", id, err)
	}
	return &out.Payments, nil
}

func (g *GoCardlessClient) GetMandate(ctx context.Context, id string) (*Mandate, error) {
	var out struct {
		Mandates Mandate `json:"mandates"`
	}
	if err := g.api.Do(ctx, http.MethodGet, "/mandates/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, fmt.Errorf("gocardless: retrieve mandate %s: %w", id, err)
	}
	return &out.Mandates, nil
}

type goCardlessCustomer struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	GivenName    string            `json:"given_name"`
	FamilyName   string            `json:"family_name"`
	AddressLine1 string            `json:"address_line1"`
	City         string            `json:"city"`
	PostalCode   string            `json:"postal_code"`
	CountryCode  string            `json:"country_code"`
	Metadata     map[string]string `json:"metadata"`
}

func (g *GoCardlessClient) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var out struct {
		Customers goCardlessCustomer `json:"customers"`
	}
	if err := g.api.Do(ctx, http.MethodGet, "/customers/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, fmt.Errorf("gocardless: retrieve customer %s: %w", id, err)
	}
	c := out.Customers
	return &Customer{
		ID:           c.ID,
		Email:        c.Email,
		FirstName:    c.GivenName,
		LastName:     c.FamilyName,
		AddressLine1: c.AddressLine1,
		City:         c.City,
		PostalCode:   c.PostalCode,
		CountryCode:  c.CountryCode,
		Metadata:     c.Metadata,
	}, nil
}

func (g *GoCardlessClient) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	var out struct {
		Subscriptions struct {
			ID           string            `json:"id"`
			Amount       int64             `json:"amount"`
			Currency     string            `json:"currency"`
			Status       string            `json:"status"`
			IntervalUnit string            `json:"interval_unit"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscriptions"`
	}
	if err := g.api.Do(ctx, http.MethodGet, "/subscriptions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, fmt.Errorf("gocardless: retrieve subscription %s: %w", id, err)
	}
	s := out.Subscriptions
	return &Subscription{
		ID:       s.ID,
		Status:   s.Status,
		Amount:   s.Amount,
		Currency: strings.ToLower(s.Currency),
		Interval: s.IntervalUnit,
		Metadata: s.Metadata,
	}, nil
}

func (g *GoCardlessClient) UpdateCustomerMetadata(ctx context.Context, id string, metadata map[string]string) error {
	body := map[string]interface{}{
		"customers": map[string]interface{}{"metadata": metadata},
	}
	if err := g.api.Do(ctx, http.MethodPut, "/customers/"+url.PathEscape(id), body, nil); err != nil {
		return fmt.Errorf("gocardless: update customer %s metadata: %w", id, err)
	}
	return nil
}

func (g *GoCardlessClient) CreateBillingRequest(ctx context.Context, req BillingRequestParams) (*BillingRequest, error) {
	body := map[string]interface{}{
		"billing_requests": map[string]interface{}{
			"mandate_request": map[string]interface{}{
				"scheme":   req.Scheme,
				"currency": strings.ToUpper(req.Currency),
				"metadata": req.Metadata,
			},
		},
	}
	var out struct {
		BillingRequests BillingRequest `json:"billing_requests"`
	}
	if err := g.api.Do(ctx, http.MethodPost, "/billing_requests", body, &out); err != nil {
		return nil, fmt.Errorf("gocardless: create billing request: %w", err)
	}
	return &out.BillingRequests, nil
}

func (g *GoCardlessClient) CreateBillingRequestFlow(ctx context.Context, req BillingRequestFlowParams) (*BillingRequestFlow, error) {
	body := map[string]interface{}{
		"billing_request_flows": map[string]interface{}{
			"redirect_uri":       req.RedirectURI,
			"exit_uri":           req.ExitURI,
			"prefilled_customer": req.PrefilledCustomer,
			"links": map[string]string{
				"billing_request": req.BillingRequestID,
			},
		},
	}
	var out struct {
		BillingRequestFlows BillingRequestFlow `json:"billing_request_flows"`
	}
	if err := g.api.Do(ctx, http.MethodPost, "/billing_request_flows", body, &out); err != nil {
		return nil, fmt.Errorf("gocardless: create billing request flow: %w", err)
	}
	return &out.BillingRequestFlows, nil
}
