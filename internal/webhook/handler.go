// Package webhook is the HTTP surface: the signed provider callbacks and the
// operator API over the event ledger.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"payhook/internal/billingrequest"
	"payhook/internal/config"
	"payhook/internal/constants"
	"payhook/internal/events"
	"payhook/internal/ledger"
	"payhook/internal/logger"
	"payhook/internal/regions"
	"payhook/internal/router"
	pkgerrors "payhook/pkg/errors"
	"payhook/pkg/metrics"
)

type EventRouter interface {
	Route(ctx context.Context, evt events.Event) (router.Result, error)
}

type Ledger interface {
	List(ctx context.Context, filter ledger.Filter) ([]ledger.Entry, error)
	FindLatest(ctx context.Context, eventID, eventType string) (*ledger.Entry, error)
	Requeue(ctx context.Context, eventID string) (*ledger.Entry, error)
}

type BillingBuilder interface {
	Build(ctx context.Context, form billingrequest.FormData) (billingrequest.Result, error)
}

type ClientResolver interface {
	Resolve(currency string) (regions.Clients, error)
	ForRegion(region string) (regions.Clients, error)
}

// DeliveryResponse is returned to the provider for every accepted delivery.
type DeliveryResponse struct {
	Received bool            `json:"received"`
	Events   []router.Result `json:"events"`
}

type Handler struct {
	router            EventRouter
	ledger            Ledger
	billing           BillingBuilder
	resolver          ClientResolver
	regions           map[string]config.RegionConfig
	maxBodyBytes      int64
	preferenceTimeout time.Duration
	logger            logger.Logger
}

type Option func(*Handler)

func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

func WithPreferenceTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.preferenceTimeout = d
		}
	}
}

func NewHandler(r EventRouter, l Ledger, billing BillingBuilder, resolver ClientResolver, regionCfg map[string]config.RegionConfig, log logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		router:            r,
		ledger:            l,
		billing:           billing,
		resolver:          resolver,
		regions:           regionCfg,
		maxBodyBytes:      constants.DefaultMaxBodyBytes,
		preferenceTimeout: constants.PreferenceLookupTimeout,
		logger:            log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the provider callbacks, rate limited when limit is
// non-nil, and the operator API.
func (h *Handler) RegisterRoutes(engine *gin.Engine, limit gin.HandlerFunc) {
	hooks := engine.Group("/webhooks")
	if limit != nil {
		hooks.Use(limit)
	}
	{
		hooks.POST("/stripe/:region", h.StripeWebhook)
		hooks.POST("/gocardless/:region", h.GoCardlessWebhook)
	}

	v1 := engine.Group("/api/v1")
	{
		ev := v1.Group("/events")
		{
			ev.GET("", h.ListEvents)
			ev.GET("/latest", h.LatestEvent)
			ev.POST("/:event_id/requeue", h.RequeueEvent)
		}

		v1.POST("/billing-requests", h.CreateBillingRequest)
		v1.GET("/preferences/:constituent_id", h.GetPreferences)
	}
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(pkgerrors.ToHTTPStatus(err), pkgerrors.ToErrorResponse(err))
}

func (h *Handler) readBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, pkgerrors.NewError("PAYLOAD_TOO_LARGE", "request body too large", http.StatusRequestEntityTooLarge).
				WithDetail("limit", tooLarge.Limit)
		}
		return nil, pkgerrors.ErrValidation.WithCause(err).WithMessage("failed to read request body")
	}
	return body, nil
}

func (h *Handler) regionConfig(region string) (config.RegionConfig, error) {
	cfg, ok := h.regions[region]
	if !ok {
		return config.RegionConfig{}, pkgerrors.ErrNotFound.
			WithMessage(fmt.Sprintf("region %s is not configured", region)).
			WithDetail("region", region)
	}
	return cfg, nil
}

// deliveryStatus maps a routing failure to the status the provider sees. A
// concurrent duplicate is 409; every other failure is 500 so the provider
// redelivers.
func deliveryStatus(err error) int {
	if pkgerrors.IsInFlight(err) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *Handler) reject(c *gin.Context, provider events.Provider, status int, err error) {
	metrics.WebhookDeliveriesTotal.WithLabelValues(string(provider), statusClass(status)).Inc()
	h.logger.WarnwCtx(c.Request.Context(), "Webhook delivery rejected",
		"provider", provider,
		"status", status,
		"error", err,
	)
	c.JSON(status, pkgerrors.ToErrorResponse(err))
}

func (h *Handler) accept(c *gin.Context, provider events.Provider, results []router.Result) {
	metrics.WebhookDeliveriesTotal.WithLabelValues(string(provider), statusClass(http.StatusOK)).Inc()
	c.JSON(http.StatusOK, DeliveryResponse{Received: true, Events: results})
}

func statusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}
