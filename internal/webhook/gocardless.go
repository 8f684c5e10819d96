package webhook

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"payhook/internal/events"
	"payhook/internal/router"
	pkgerrors "payhook/pkg/errors"
)

// GoCardlessWebhook godoc
// @Summary      Receive a GoCardless webhook
// @Description  Verifies the Webhook-Signature header and reconciles every event in the batch into the CRM
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        region  path      string  true  "Region key"
// @Success      200     {object}  DeliveryResponse
// @Failure      400     {object}  errors.ErrorResponse
// @Failure      404     {object}  errors.ErrorResponse
// @Failure      409     {object}  errors.ErrorResponse
// @Failure      498     {object}  errors.ErrorResponse
// @Failure      500     {object}  errors.ErrorResponse
// @Router       /webhooks/gocardless/{region} [post]
func (h *Handler) GoCardlessWebhook(c *gin.Context) {
	region := c.Param("region")

	cfg, err := h.regionConfig(region)
	if err != nil {
		h.reject(c, events.ProviderGoCardless, http.StatusNotFound, err)
		return
	}
	if cfg.GoCardless.WebhookSecret == "" {
		h.reject(c, events.ProviderGoCardless, http.StatusNotFound,
			pkgerrors.ErrNotFound.WithMessage("gocardless is not configured for this region").WithDetail("region", region))
		return
	}

	body, err := h.readBody(c)
	if err != nil {
		h.reject(c, events.ProviderGoCardless, pkgerrors.ToHTTPStatus(err), err)
		return
	}

	if !VerifyGoCardlessSignature(body, c.GetHeader(GoCardlessSignatureHeader), cfg.GoCardless.WebhookSecret) {
		h.reject(c, events.ProviderGoCardless, StatusInvalidToken, pkgerrors.ErrInvalidSignature)
		return
	}

	batch, err := events.ParseGoCardless(body, region)
	if err != nil {
		h.reject(c, events.ProviderGoCardless, http.StatusBadRequest, err)
		return
	}

	// Every event in the batch is attempted; one failure makes GoCardless
	// redeliver the whole batch and the ledger skips the settled ones.
	results := make([]router.Result, 0, len(batch))
	var failures []error
	for _, evt := range batch {
		result, err := h.router.Route(c.Request.Context(), evt)
		if err != nil {
			failures = append(failures, err)
			result.EventID = evt.ID
		}
		results = append(results, result)
	}

	if len(failures) > 0 {
		status := http.StatusConflict
		for _, f := range failures {
			if s := deliveryStatus(f); s != http.StatusConflict {
				status = http.StatusInternalServerError
				break
			}
		}
		h.reject(c, events.ProviderGoCardless, status, failures[0])
		return
	}

	h.accept(c, events.ProviderGoCardless, results)
}
