// Package events normalizes inbound Stripe and GoCardless webhook payloads
// into a single Event shape the router dispatches on.
package events

import (
	"encoding/json"
	"net/http"
	"strings"

	"payhook/pkg/errors"
)

type Provider string

const (
	ProviderStripe     Provider = "stripe"
	ProviderGoCardless Provider = "gocardless"
)

type Family string

const (
	FamilyCheckout     Family = "checkout"
	FamilySubscription Family = "subscription"
	FamilyInvoice      Family = "invoice"
	FamilyMandate      Family = "mandate"
	FamilyPayment      Family = "payment"
	FamilyUnknown      Family = "unknown"
)

var ErrMalformedPayload = errors.NewError("MALFORMED_PAYLOAD", "webhook payload could not be parsed", http.StatusBadRequest)

// Event is one provider event. Exactly one of Stripe and GoCardless is set,
// matching Provider.
type Event struct {
	ID       string
	Type     string
	Provider Provider
	Family   Family
	// Region is the region of the endpoint the event arrived on. It is used
	// when the payload carries no currency.
	Region   string
	Currency string
	Livemode bool
	Raw      json.RawMessage

	Stripe     *StripeObject
	GoCardless *GoCardlessEvent
}

// Vars exposes the event to ignore-rule expressions.
func (e Event) Vars() map[string]interface{} {
	payload := map[string]interface{}{}
	if len(e.Raw) > 0 {
		_ = json.Unmarshal(e.Raw, &payload)
	}
	return map[string]interface{}{
		"id":         e.ID,
		"event_type": e.Type,
		"provider":   string(e.Provider),
		"family":     string(e.Family),
		"region":     e.Region,
		"currency":   e.Currency,
		"livemode":   e.Livemode,
		"payload":    payload,
	}
}

func normalizeCurrency(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}
