package crm

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"payhook/internal/config"
	"payhook/internal/rest"
)

const serviceName = "crm"

// HTTPClient talks to the CRM REST API. Every path is scoped by the API key
// and authenticated with the access key.
type HTTPClient struct {
	api *rest.Client
}

func NewHTTPClient(region string, cfg config.CRMConfig, opts ...rest.Option) *HTTPClient {
	base := strings.TrimRight(cfg.BaseURL, "/") + "/" + url.PathEscape(cfg.APIKey)
	opts = append([]rest.Option{rest.WithBasicAuth("payhook", cfg.AccessKey)}, opts...)
	return &HTTPClient{
		api: rest.New(serviceName, region, base, opts...),
	}
}

type idResponse struct {
	ID            string `json:"Id"`
	ConstituentID string `json:"ConstituentId"`
}

func (r idResponse) id() string {
	if r.ID != "" {
		return r.ID
	}
	return r.ConstituentID
}

func (c *HTTPClient) DuplicateCheck(ctx context.Context, person Person) ([]Candidate, error) {
	var out []Candidate
	if err := c.api.Do(ctx, http.MethodPost, "/constituents/DuplicateCheck", person, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) CreateConstituent(ctx context.Context, person Person) (string, error) {
	if person.Type == "" {
		person.Type = "Individual"
	}
	var out idResponse
	if err := c.api.Do(ctx, http.MethodPost, "/constituents", person, &out); err != nil {
		return "", err
	}
	if out.id() == "" {
		return "", ErrMissingID.WithMessage("create constituent returned no id")
	}
	return out.id(), nil
}

func (c *HTTPClient) UpdateConstituent(ctx context.Context, id string, person Person) error {
	return c.api.Do(ctx, http.MethodPut, "/constituents/"+url.PathEscape(id), person, nil)
}

func (c *HTTPClient) GetPreferences(ctx context.Context, constituentID string) (*Preferences, error) {
	var out Preferences
	if err := c.api.Do(ctx, http.MethodGet, "/constituents/"+url.PathEscape(constituentID)+"/Preferences", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) UpdatePreferences(ctx context.Context, constituentID string, prefs Preferences) error {
	body := struct {
		ConstituentID string       `json:"ConstituentId"`
		Items         []Preference `json:"PreferenceList"`
	}{ConstituentID: constituentID, Items: prefs.Items}
	return c.api.Do(ctx, http.MethodPost, "/constituents/Preferences", body, nil)
}

func (c *HTTPClient) AddActivity(ctx context.Context, activity Activity) (string, error) {
	var out idResponse
	if err := c.api.Do(ctx, http.MethodPost, "/activities", activity, &out); err != nil {
		return "", err
	}
	if out.id() == "" {
		return "", ErrMissingID.WithMessage("add activity returned no id")
	}
	return out.id(), nil
}

func (c *HTTPClient) AddActiveTags(ctx context.Context, constituentID string, tags []string) error {
	return c.api.Do(ctx, http.MethodPost, "/constituents/"+url.PathEscape(constituentID)+"/AddActiveTags", strings.Join(tags, ","), nil)
}

func (c *HTTPClient) RemoveTag(ctx context.Context, constituentID, tag string) error {
	return c.api.Do(ctx, http.MethodPost, "/constituents/"+url.PathEscape(constituentID)+"/RemoveTag", tag, nil)
}

func (c *HTTPClient) CreateTransaction(ctx context.Context, tx Transaction) (string, error) {
	if tx.Product == "" {
		tx.Product = "Donation"
	}
	var out idResponse
	if err := c.api.Do(ctx, http.MethodPost, "/transactions", tx, &out); err != nil {
		return "", err
	}
	if out.id() == "" {
		return "", ErrMissingID.WithMessage("create transaction returned no id")
	}
	return out.id(), nil
}

func (c *HTTPClient) DeleteConstituent(ctx context.Context, constituentID string) error {
	return c.api.Do(ctx, http.MethodDelete, "/constituents/"+url.PathEscape(constituentID), nil, nil)
}

func (c *HTTPClient) DeleteTransaction(ctx context.Context, transactionID string) error {
	return c.api.Do(ctx, http.MethodDelete, "/transactions/"+url.PathEscape(transactionID), nil, nil)
}
