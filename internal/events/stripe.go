package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v82"
)

const (
	StripeCheckoutCompleted       = "checkout.session.completed"
	StripeCheckoutAsyncSucceeded  = "checkout.session.async_payment_succeeded"
	StripeSubscriptionCreated     = "customer.subscription.created"
	StripeSubscriptionUpdated     = "customer.subscription.updated"
	StripeSubscriptionDeleted     = "customer.subscription.deleted"
	StripeInvoicePaid             = "invoice.paid"
	StripeInvoicePaymentSucceeded = "invoice.payment_succeeded"
	StripeInvoicePaymentFailed    = "invoice.payment_failed"
)

var stripeFamilies = map[string]Family{
	StripeCheckoutCompleted:       FamilyCheckout,
	StripeCheckoutAsyncSucceeded:  FamilyCheckout,
	StripeSubscriptionCreated:     FamilySubscription,
	StripeSubscriptionUpdated:     FamilySubscription,
	StripeSubscriptionDeleted:     FamilySubscription,
	StripeInvoicePaid:             FamilyInvoice,
	StripeInvoicePaymentSucceeded: FamilyInvoice,
	StripeInvoicePaymentFailed:    FamilyInvoice,
}

// StripeObject holds the decoded data.object for the families this service
// handles. At most one field is set.
type StripeObject struct {
	Checkout     *CheckoutSession
	Subscription *Subscription
	Invoice      *Invoice

	// PreviousStatus is data.previous_attributes.status on update events.
	PreviousStatus string
}

// ExpandableID decodes a Stripe reference that is either an id string or an
// expanded object carrying an id.
type ExpandableID string

func (e *ExpandableID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = ExpandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = ExpandableID(obj.ID)
	return nil
}

func (e ExpandableID) String() string {
	return string(e)
}

type CustomerDetails struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Address struct {
		Line1      string `json:"line1"`
		City       string `json:"city"`
		PostalCode string `json:"postal_code"`
		Country    string `json:"country"`
	} `json:"address"`
}

type CheckoutSession struct {
	ID              string            `json:"id"`
	Mode            string            `json:"mode"`
	PaymentStatus   string            `json:"payment_status"`
	Status          string            `json:"status"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Customer        ExpandableID      `json:"customer"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails CustomerDetails   `json:"customer_details"`
	PaymentIntent   ExpandableID      `json:"payment_intent"`
	Subscription    ExpandableID      `json:"subscription"`
	Created         int64             `json:"created"`
	Metadata        map[string]string `json:"metadata"`
}

// Email prefers the address the customer typed at checkout.
func (s CheckoutSession) Email() string {
	if s.CustomerDetails.Email != "" {
		return s.CustomerDetails.Email
	}
	return s.CustomerEmail
}

type Subscription struct {
	ID       string            `json:"id"`
	Customer ExpandableID      `json:"customer"`
	Status   string            `json:"status"`
	Currency string            `json:"currency"`
	Created  int64             `json:"created"`
	Metadata map[string]string `json:"metadata"`
	Items    struct {
		Data []struct {
			Price struct {
				UnitAmount int64  `json:"unit_amount"`
				Currency   string `json:"currency"`
				Recurring  struct {
					Interval string `json:"interval"`
				} `json:"recurring"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// Amount is the unit amount of the first item in minor units.
func (s Subscription) Amount() int64 {
	if len(s.Items.Data) == 0 {
		return 0
	}
	return s.Items.Data[0].Price.UnitAmount
}

func (s Subscription) Interval() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.Recurring.Interval
}

func (s Subscription) currency() string {
	if s.Currency != "" {
		return s.Currency
	}
	if len(s.Items.Data) > 0 {
		return s.Items.Data[0].Price.Currency
	}
	return ""
}

type Invoice struct {
	ID            string            `json:"id"`
	Customer      ExpandableID      `json:"customer"`
	CustomerEmail string            `json:"customer_email"`
	CustomerName  string            `json:"customer_name"`
	Status        string            `json:"status"`
	BillingReason string            `json:"billing_reason"`
	AmountPaid    int64             `json:"amount_paid"`
	AmountDue     int64             `json:"amount_due"`
	Currency      string            `json:"currency"`
	Created       int64             `json:"created"`
	Metadata      map[string]string `json:"metadata"`
	// Subscription is set by API versions before 2025-03-31.
	Subscription ExpandableID `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription ExpandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// SubscriptionID reads the subscription link from either API shape.
func (i Invoice) SubscriptionID() string {
	if id := i.Parent.SubscriptionDetails.Subscription.String(); id != "" {
		return id
	}
	return i.Subscription.String()
}

// FromStripe normalizes a verified Stripe event. Types outside the handled
// families yield FamilyUnknown with no decoded object.
func FromStripe(evt stripe.Event, region string) (Event, error) {
	out := Event{
		ID:       evt.ID,
		Type:     string(evt.Type),
		Provider: ProviderStripe,
		Family:   FamilyUnknown,
		Region:   region,
		Livemode: evt.Livemode,
	}

	if evt.Data != nil {
		out.Raw = evt.Data.Raw
	}

	if family, ok := stripeFamilies[out.Type]; ok {
		out.Family = family
	}

	if out.Family == FamilyUnknown || len(out.Raw) == 0 {
		out.Stripe = &StripeObject{}
		if out.ID == "" {
			out.ID = FallbackKey(out.Provider, out.Type, strconv.FormatInt(evt.Created, 10), string(out.Raw))
		}
		return out, nil
	}

	obj, currency, err := decodeStripeObject(out.Family, out.Raw)
	if err != nil {
		return Event{}, ErrMalformedPayload.
			WithCause(err).
			WithMessage(fmt.Sprintf("failed to decode %s object", out.Type))
	}
	if evt.Data != nil && evt.Data.PreviousAttributes != nil {
		if s, ok := evt.Data.PreviousAttributes["status"].(string); ok {
			obj.PreviousStatus = s
		}
	}

	out.Stripe = obj
	out.Currency = normalizeCurrency(currency)

	if out.ID == "" {
		out.ID = FallbackKey(out.Provider, out.Type, objectID(obj))
	}

	return out, nil
}

// ParseStripe decodes a Stripe event body without signature verification.
// It serves replayed events whose signature was checked on first receipt.
func ParseStripe(body []byte, region string) (Event, error) {
	var evt stripe.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, ErrMalformedPayload.WithCause(err)
	}
	return FromStripe(evt, region)
}

func decodeStripeObject(family Family, raw json.RawMessage) (*StripeObject, string, error) {
	obj := &StripeObject{}

	switch family {
	case FamilyCheckout:
		var s CheckoutSession
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, "", err
		}
		obj.Checkout = &s
		return obj, s.Currency, nil
	case FamilySubscription:
		var s Subscription
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, "", err
		}
		obj.Subscription = &s
		return obj, s.currency(), nil
	case FamilyInvoice:
		var i Invoice
		if err := json.Unmarshal(raw, &i); err != nil {
			return nil, "", err
		}
		obj.Invoice = &i
		return obj, i.Currency, nil
	}

	return obj, "", nil
}

func objectID(obj *StripeObject) string {
	switch {
	case obj.Checkout != nil:
		return obj.Checkout.ID
	case obj.Subscription != nil:
		return obj.Subscription.ID
	case obj.Invoice != nil:
		return obj.Invoice.ID
	}
	return ""
}
