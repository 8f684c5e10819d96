package events

import (
	"encoding/json"
	"fmt"
)

const (
	GoCardlessResourcePayments = "payments"
	GoCardlessResourceMandates = "mandates"
)

// GoCardless actions this service acts on.
const (
	ActionCreated   = "created"
	ActionActive    = "active"
	ActionConfirmed = "confirmed"
	ActionPaidOut   = "paid_out"
	ActionFailed    = "failed"
	ActionCancelled = "cancelled"
	ActionExpired   = "expired"
)

type GoCardlessLinks struct {
	Payment        string `json:"payment,omitempty"`
	Mandate        string `json:"mandate,omitempty"`
	Customer       string `json:"customer,omitempty"`
	Subscription   string `json:"subscription,omitempty"`
	BillingRequest string `json:"billing_request,omitempty"`
	Organisation   string `json:"organisation,omitempty"`
}

type GoCardlessDetails struct {
	Origin      string `json:"origin,omitempty"`
	Cause       string `json:"cause,omitempty"`
	Scheme      string `json:"scheme,omitempty"`
	ReasonCode  string `json:"reason_code,omitempty"`
	Description string `json:"description,omitempty"`
}

type GoCardlessEvent struct {
	ID           string            `json:"id"`
	CreatedAt    string            `json:"created_at"`
	ResourceType string            `json:"resource_type"`
	Action       string            `json:"action"`
	Links        GoCardlessLinks   `json:"links"`
	Details      GoCardlessDetails `json:"details"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type goCardlessBody struct {
	Events []json.RawMessage `json:"events"`
}

// ParseGoCardless splits a GoCardless webhook body into events. The body has
// already been verified.
func ParseGoCardless(body []byte, region string) ([]Event, error) {
	var envelope goCardlessBody
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, ErrMalformedPayload.WithCause(err)
	}

	out := make([]Event, 0, len(envelope.Events))
	for i, raw := range envelope.Events {
		evt, err := ParseGoCardlessEvent(raw, region)
		if err != nil {
			return nil, ErrMalformedPayload.
				WithCause(err).
				WithMessage(fmt.Sprintf("failed to decode GoCardless event at index %d", i))
		}
		out = append(out, evt)
	}

	return out, nil
}

// ParseGoCardlessEvent decodes a single element of the events array.
func ParseGoCardlessEvent(raw []byte, region string) (Event, error) {
	var gc GoCardlessEvent
	if err := json.Unmarshal(raw, &gc); err != nil {
		return Event{}, err
	}

	evt := Event{
		ID:         gc.ID,
		Type:       gc.ResourceType + "." + gc.Action,
		Provider:   ProviderGoCardless,
		Family:     goCardlessFamily(gc.ResourceType),
		Region:     region,
		Raw:        json.RawMessage(raw),
		GoCardless: &gc,
	}

	if evt.ID == "" {
		evt.ID = FallbackKey(evt.Provider, evt.Type,
			gc.CreatedAt,
			gc.Links.Payment,
			gc.Links.Mandate,
			gc.Links.Customer,
			gc.Links.Subscription,
		)
	}

	return evt, nil
}

func goCardlessFamily(resourceType string) Family {
	switch resourceType {
	case GoCardlessResourcePayments:
		return FamilyPayment
	case GoCardlessResourceMandates:
		return FamilyMandate
	}
	return FamilyUnknown
}
