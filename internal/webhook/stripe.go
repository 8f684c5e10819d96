package webhook

import (
	"net/http"

	"github.com/gin-gonic/gin"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"payhook/internal/events"
	"payhook/internal/router"
	pkgerrors "payhook/pkg/errors"
)

const StripeSignatureHeader = "Stripe-Signature"

// StripeWebhook godoc
// @Summary      Receive a Stripe webhook
// @Description  Verifies the Stripe-Signature header against the region's endpoint secret and reconciles the event into the CRM
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        region  path      string  true  "Region key"
// @Success      200     {object}  DeliveryResponse
// @Failure      400     {object}  errors.ErrorResponse
// @Failure      401     {object}  errors.ErrorResponse
// @Failure      404     {object}  errors.ErrorResponse
// @Failure      409     {object}  errors.ErrorResponse
// @Failure      500     {object}  errors.ErrorResponse
// @Router       /webhooks/stripe/{region} [post]
func (h *Handler) StripeWebhook(c *gin.Context) {
	region := c.Param("region")

	cfg, err := h.regionConfig(region)
	if err != nil {
		h.reject(c, events.ProviderStripe, http.StatusNotFound, err)
		return
	}
	if cfg.Stripe.WebhookSecret == "" {
		h.reject(c, events.ProviderStripe, http.StatusNotFound,
			pkgerrors.ErrNotFound.WithMessage("stripe is not configured for this region").WithDetail("region", region))
		return
	}

	body, err := h.readBody(c)
	if err != nil {
		h.reject(c, events.ProviderStripe, pkgerrors.ToHTTPStatus(err), err)
		return
	}

	stripeEvent, err := stripewebhook.ConstructEventWithOptions(body, c.GetHeader(StripeSignatureHeader), cfg.Stripe.WebhookSecret,
		stripewebhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.reject(c, events.ProviderStripe, http.StatusUnauthorized, pkgerrors.ErrInvalidSignature.WithCause(err))
		return
	}

	evt, err := events.FromStripe(stripeEvent, region)
	if err != nil {
		h.reject(c, events.ProviderStripe, http.StatusBadRequest, err)
		return
	}

	result, err := h.router.Route(c.Request.Context(), evt)
	if err != nil {
		h.reject(c, events.ProviderStripe, deliveryStatus(err), err)
		return
	}

	h.accept(c, events.ProviderStripe, []router.Result{result})
}
