// Package rest is the JSON-over-HTTP transport shared by the CRM and
// GoCardless adapters.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"payhook/internal/constants"
	"payhook/pkg/metrics"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Service    string
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s %s returned status %d: %s", e.Service, e.Method, e.Path, e.StatusCode, e.Body)
}

// IsRetryable reports 5xx and 429 responses as transient.
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

func WithHeader(key, value string) Option {
	return func(cl *Client) {
		cl.headers.Set(key, value)
	}
}

func WithBasicAuth(user, password string) Option {
	return func(cl *Client) {
		cl.basicUser, cl.basicPassword = user, password
	}
}

type Client struct {
	service string
	region  string
	baseURL string
	http    *http.Client
	headers http.Header

	basicUser     string
	basicPassword string
}

// New builds a client for baseURL. service and region label metrics.
func New(service, region, baseURL string, opts ...Option) *Client {
	c := &Client{
		service: service,
		region:  region,
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: constants.DefaultHTTPTimeout,
		},
		headers: http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends body as JSON and decodes the response into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range c.headers {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.basicUser != "" || c.basicPassword != "" {
		req.SetBasicAuth(c.basicUser, c.basicPassword)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveExternalRequest(c.service, c.region, "error", time.Since(start))
		return fmt.Errorf("%s request failed: %w", c.service, err)
	}
	defer resp.Body.Close()

	metrics.ObserveExternalRequest(c.service, c.region, fmt.Sprintf("%d", resp.StatusCode), time.Since(start))

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			Service:    c.service,
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode %s response: %w", c.service, err)
	}

	return nil
}
