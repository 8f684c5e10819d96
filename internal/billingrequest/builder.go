// Package billingrequest creates a GoCardless billing request for a donation
// form submission and returns the hosted flow the donor is redirected to.
package billingrequest

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"payhook/internal/config"
	"payhook/internal/constants"
	"payhook/internal/logger"
	"payhook/internal/metadata"
	"payhook/internal/orchestrator"
	"payhook/internal/provider"
	"payhook/internal/regions"
	"payhook/pkg/errors"
)

var ErrBillingRequest = errors.NewError("BILLING_REQUEST_FAILED", "Error creating billing request", http.StatusBadGateway)

// FormData is the donation form as posted to the admin API.
type FormData struct {
	Currency     string `json:"currency" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	Frequency    string `json:"frequency" binding:"required"`
	FirstName    string `json:"firstName" binding:"required"`
	LastName     string `json:"lastName" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	AddressLine1 string `json:"addressLine1"`
	City         string `json:"city"`
	PostalCode   string `json:"postalCode"`
	CountryCode  string `json:"countryCode"`
	Campaign     string `json:"campaign"`

	UTMSource           string `json:"utmSource"`
	UTMMedium           string `json:"utmMedium"`
	UTMCampaign         string `json:"utmCampaign"`
	InspirationDetails  string `json:"inspirationDetails"`
	InspirationQuestion string `json:"inspirationQuestion"`
}

// Details is the context attached to the billing request metadata.
func (f FormData) Details() metadata.Details {
	return metadata.Details{
		Currency:            strings.ToLower(strings.TrimSpace(f.Currency)),
		FirstName:           f.FirstName,
		LastName:            f.LastName,
		Amount:              f.Amount,
		Frequency:           f.Frequency,
		Campaign:            f.Campaign,
		UTMSource:           f.UTMSource,
		UTMMedium:           f.UTMMedium,
		UTMCampaign:         f.UTMCampaign,
		InspirationDetails:  f.InspirationDetails,
		InspirationQuestion: f.InspirationQuestion,
	}
}

func (f FormData) prefilled() provider.PrefilledCustomer {
	return provider.PrefilledCustomer{
		GivenName:    f.FirstName,
		FamilyName:   f.LastName,
		Email:        f.Email,
		AddressLine1: f.AddressLine1,
		City:         f.City,
		PostalCode:   f.PostalCode,
		CountryCode:  f.CountryCode,
	}
}

type Result struct {
	AuthorisationURL string                    `json:"authorisation_url"`
	BillingRequestID string                    `json:"billing_request_id"`
	Results          []orchestrator.StepResult `json:"steps,omitempty"`
}

type ClientResolver interface {
	Resolve(currency string) (regions.Clients, error)
}

type Builder struct {
	resolver ClientResolver
	cfg      config.BillingConfig
	logger   logger.Logger
}

func NewBuilder(resolver ClientResolver, cfg config.BillingConfig, log logger.Logger) *Builder {
	return &Builder{resolver: resolver, cfg: cfg, logger: log}
}

// Build runs budget metadata, create billing request and create billing
// request flow in order. A provider failure is returned as ErrBillingRequest
// carrying the step trail; a metadata overflow is returned as
// metadata.ErrBudgetExceeded.
func (b *Builder) Build(ctx context.Context, form FormData) (Result, error) {
	clients, err := b.resolver.Resolve(form.Currency)
	if err != nil {
		return Result{}, err
	}
	if clients.GoCardless == nil {
		return Result{}, regions.ErrMissingCredentials.
			WithMessage(fmt.Sprintf("region %s has no GoCardless account configured", clients.Region)).
			WithDetail("region", clients.Region)
	}
	gc := clients.GoCardless

	run := orchestrator.New("billing request", "", b.logger)
	details := form.Details()

	encoded, err := orchestrator.Do(ctx, run, "budget metadata", func(ctx context.Context) (string, error) {
		_, s, err := metadata.Budget(details, b.cfg.MetadataCeiling)
		return s, err
	})
	if err != nil {
		return Result{}, err
	}

	request, err := orchestrator.Do(ctx, run, "create billing request", func(ctx context.Context) (*provider.BillingRequest, error) {
		br, err := gc.CreateBillingRequest(ctx, provider.BillingRequestParams{
			Scheme:   b.cfg.Schemes[details.Currency],
			Currency: details.Currency,
			Metadata: map[string]string{constants.MetadataDetailsKey: encoded},
		})
		if err != nil {
			return nil, err
		}
		if br == nil || br.ID == "" {
			return nil, fmt.Errorf("billing request response carries no id")
		}
		return br, nil
	})
	if err != nil {
		return Result{}, b.failed(ctx, err)
	}

	flow, err := orchestrator.Do(ctx, run, "create billing request flow", func(ctx context.Context) (*provider.BillingRequestFlow, error) {
		f, err := gc.CreateBillingRequestFlow(ctx, provider.BillingRequestFlowParams{
			BillingRequestID:  request.ID,
			RedirectURI:       b.cfg.RedirectURI,
			ExitURI:           b.cfg.ExitURI,
			PrefilledCustomer: form.prefilled(),
		})
		if err != nil {
			return nil, err
		}
		if f == nil || f.AuthorisationURL == "" {
			return nil, fmt.Errorf("billing request flow response carries no authorisation url")
		}
		return f, nil
	})
	if err != nil {
		return Result{}, b.failed(ctx, err)
	}

	b.logger.InfowCtx(ctx, "Billing request created",
		"billing_request_id", request.ID,
		"region", clients.Region,
		"currency", details.Currency,
	)

	return Result{
		AuthorisationURL: flow.AuthorisationURL,
		BillingRequestID: request.ID,
		Results:          run.Results(),
	}, nil
}

func (b *Builder) failed(ctx context.Context, err error) error {
	out := ErrBillingRequest.WithCause(err)
	if stepErr, ok := orchestrator.AsStepError(err); ok {
		out = out.WithDetail("step", stepErr.Step).WithDetail("steps", stepErr.Results)
	}
	b.logger.ErrorwCtx(ctx, "Failed to create billing request", "error", err)
	return out
}
