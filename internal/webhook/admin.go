package webhook

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"payhook/internal/billingrequest"
	"payhook/internal/constants"
	"payhook/internal/crm"
	"payhook/internal/ledger"
	"payhook/internal/regions"
	pkgerrors "payhook/pkg/errors"
)

// PreferencesResponse reports a constituent's preferences. Known is false
// when the CRM did not answer in time.
type PreferencesResponse struct {
	ConstituentID string           `json:"constituent_id"`
	Region        string           `json:"region"`
	Known         bool             `json:"known"`
	Preferences   []crm.Preference `json:"preferences"`
}

// ListEvents godoc
// @Summary      List ledger entries
// @Description  Lists processed webhook events, newest first
// @Tags         events
// @Produce      json
// @Param        status      query     string  false  "Status filter"
// @Param        event_type  query     string  false  "Event type filter"
// @Param        event_id    query     string  false  "Event id filter"
// @Param        limit       query     int     false  "Page size"
// @Param        offset      query     int     false  "Page offset"
// @Success      200  {array}   ledger.Entry
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /events [get]
func (h *Handler) ListEvents(c *gin.Context) {
	filter := ledger.Filter{
		EventID:   c.Query("event_id"),
		EventType: c.Query("event_type"),
		Status:    ledger.Status(c.Query("status")),
		Limit:     constants.DefaultLimit,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		h.HandleError(c, pkgerrors.ErrValidation.
			WithMessage(fmt.Sprintf("unknown status %q", filter.Status)).
			WithDetail("status", filter.Status))
		return
	}

	var err error
	if filter.Limit, err = intQuery(c, "limit", constants.DefaultLimit); err != nil {
		h.HandleError(c, err)
		return
	}
	if filter.Limit > constants.MaxLimit {
		filter.Limit = constants.MaxLimit
	}
	if filter.Offset, err = intQuery(c, "offset", 0); err != nil {
		h.HandleError(c, err)
		return
	}

	entries, err := h.ledger.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}

// LatestEvent godoc
// @Summary      Latest ledger entry
// @Description  Returns the newest entry matching an event id or an event type
// @Tags         events
// @Produce      json
// @Param        event_id    query     string  false  "Event id"
// @Param        event_type  query     string  false  "Event type"
// @Success      200  {object}  ledger.Entry
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /events/latest [get]
func (h *Handler) LatestEvent(c *gin.Context) {
	eventID, eventType := c.Query("event_id"), c.Query("event_type")
	if eventID == "" && eventType == "" {
		h.HandleError(c, pkgerrors.ErrValidation.WithMessage("event_id or event_type is required"))
		return
	}

	entry, err := h.ledger.FindLatest(c.Request.Context(), eventID, eventType)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// RequeueEvent godoc
// @Summary      Requeue an event
// @Description  Resets the event's ledger entry to received so the next delivery reprocesses it
// @Tags         events
// @Produce      json
// @Param        event_id  path      string  true  "Event id"
// @Success      200  {object}  ledger.Entry
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /events/{event_id}/requeue [post]
func (h *Handler) RequeueEvent(c *gin.Context) {
	entry, err := h.ledger.Requeue(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// CreateBillingRequest godoc
// @Summary      Start a GoCardless Direct Debit sign-up
// @Description  Creates a billing request and its hosted flow for a donation form submission
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        form  body      billingrequest.FormData  true  "Donation form"
// @Success      201   {object}  billingrequest.Result
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      502   {object}  errors.ErrorResponse
// @Router       /billing-requests [post]
func (h *Handler) CreateBillingRequest(c *gin.Context) {
	var form billingrequest.FormData
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, pkgerrors.ToErrorResponse(pkgerrors.ErrValidation.WithCause(err)))
		return
	}

	result, err := h.billing.Build(c.Request.Context(), form)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// GetPreferences godoc
// @Summary      Constituent preferences
// @Description  Looks up a constituent's contact preferences in the CRM of the region resolved from region or currency
// @Tags         crm
// @Produce      json
// @Param        constituent_id  path      string  true   "CRM constituent id"
// @Param        region          query     string  false  "Region key"
// @Param        currency        query     string  false  "Currency used to resolve the region"
// @Success      200  {object}  PreferencesResponse
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      502  {object}  errors.ErrorResponse
// @Router       /preferences/{constituent_id} [get]
func (h *Handler) GetPreferences(c *gin.Context) {
	constituentID := c.Param("constituent_id")

	var (
		clients regions.Clients
		err     error
	)
	if region := c.Query("region"); region != "" {
		clients, err = h.resolver.ForRegion(region)
	} else {
		clients, err = h.resolver.Resolve(c.Query("currency"))
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if clients.CRM == nil {
		h.HandleError(c, regions.ErrMissingCredentials.WithDetail("region", clients.Region))
		return
	}

	prefs, err := crm.LookupPreferences(c.Request.Context(), clients.CRM, constituentID, h.preferenceTimeout)
	if err != nil {
		h.HandleError(c, pkgerrors.NewError("CRM_UNAVAILABLE", "CRM request failed", http.StatusBadGateway).WithCause(err))
		return
	}

	resp := PreferencesResponse{
		ConstituentID: constituentID,
		Region:        clients.Region,
		Known:         prefs != nil,
		Preferences:   []crm.Preference{},
	}
	if prefs != nil {
		resp.Preferences = prefs.Items
	}
	c.JSON(http.StatusOK, resp)
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, pkgerrors.ErrValidation.
			WithMessage(fmt.Sprintf("%s must be a non-negative integer", key)).
			WithDetail(key, raw)
	}
	return n, nil
}
