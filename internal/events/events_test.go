package events

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payhook/pkg/errors"
)

func TestParseStripe(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		family   Family
		currency string
		check    func(t *testing.T, evt Event)
	}{
		{
			name:     "checkout session with string references",
			body:     `{"id":"evt_1","type":"checkout.session.completed","livemode":true,"data":{"object":{"id":"cs_1","mode":"payment","payment_status":"paid","amount_total":2500,"currency":"GBP","customer":"cus_1","payment_intent":"pi_1","customer_details":{"email":"ada@example.org","name":"Ada Lovelace"},"metadata":{"campaign":"Spring"}}}}`,
			family:   FamilyCheckout,
			currency: "gbp",
			check: func(t *testing.T, evt Event) {
				require.NotNil(t, evt.Stripe.Checkout)
				assert.Equal(t, "pi_1", evt.Stripe.Checkout.PaymentIntent.String())
				assert.Equal(t, "cus_1", evt.Stripe.Checkout.Customer.String())
				assert.Equal(t, "ada@example.org", evt.Stripe.Checkout.Email())
				assert.True(t, evt.Livemode)
			},
		},
		{
			name:     "checkout session with expanded payment intent",
			body:     `{"id":"evt_2","type":"checkout.session.completed","data":{"object":{"id":"cs_2","payment_status":"paid","currency":"usd","payment_intent":{"id":"pi_2","amount":100}}}}`,
			family:   FamilyCheckout,
			currency: "usd",
			check: func(t *testing.T, evt Event) {
				assert.Equal(t, "pi_2", evt.Stripe.Checkout.PaymentIntent.String())
				assert.Empty(t, evt.Stripe.Checkout.Customer.String())
			},
		},
		{
			name:     "subscription currency falls back to price",
			body:     `{"id":"evt_3","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","customer":"cus_1","status":"canceled","items":{"data":[{"price":{"unit_amount":1000,"currency":"eur","recurring":{"interval":"month"}}}]}},"previous_attributes":{"status":"active"}}}`,
			family:   FamilySubscription,
			currency: "eur",
			check: func(t *testing.T, evt Event) {
				require.NotNil(t, evt.Stripe.Subscription)
				assert.Equal(t, int64(1000), evt.Stripe.Subscription.Amount())
				assert.Equal(t, "month", evt.Stripe.Subscription.Interval())
				assert.Equal(t, "active", evt.Stripe.PreviousStatus)
			},
		},
		{
			name:     "invoice with parent subscription details",
			body:     `{"id":"evt_4","type":"invoice.paid","data":{"object":{"id":"in_1","customer":"cus_1","amount_paid":1500,"currency":"gbp","parent":{"subscription_details":{"subscription":"sub_9"}}}}}`,
			family:   FamilyInvoice,
			currency: "gbp",
			check: func(t *testing.T, evt Event) {
				assert.Equal(t, "sub_9", evt.Stripe.Invoice.SubscriptionID())
			},
		},
		{
			name:     "invoice with legacy subscription field",
			body:     `{"id":"evt_5","type":"invoice.payment_failed","data":{"object":{"id":"in_2","subscription":"sub_3","currency":"usd"}}}`,
			family:   FamilyInvoice,
			currency: "usd",
			check: func(t *testing.T, evt Event) {
				assert.Equal(t, "sub_3", evt.Stripe.Invoice.SubscriptionID())
			},
		},
		{
			name:   "unhandled type",
			body:   `{"id":"evt_6","type":"charge.refunded","data":{"object":{"id":"ch_1","currency":"gbp"}}}`,
			family: FamilyUnknown,
			check: func(t *testing.T, evt Event) {
				require.NotNil(t, evt.Stripe)
				assert.Nil(t, evt.Stripe.Checkout)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := ParseStripe([]byte(tt.body), "uk")
			require.NoError(t, err)

			assert.Equal(t, ProviderStripe, evt.Provider)
			assert.Equal(t, tt.family, evt.Family)
			assert.Equal(t, tt.currency, evt.Currency)
			assert.Equal(t, "uk", evt.Region)
			assert.NotEmpty(t, evt.ID)
			tt.check(t, evt)
		})
	}
}

func TestParseStripe_MissingIDUsesContentKey(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		other string
	}{
		{
			name:  "handled family",
			body:  `{"type":"invoice.paid","data":{"object":{"id":"in_1","currency":"gbp"}}}`,
			other: `{"type":"invoice.paid","data":{"object":{"id":"in_2","currency":"gbp"}}}`,
		},
		{
			name:  "unhandled type",
			body:  `{"type":"charge.refunded","created":1700000000,"data":{"object":{"id":"ch_1"}}}`,
			other: `{"type":"charge.refunded","created":1700000000,"data":{"object":{"id":"ch_2"}}}`,
		},
		{
			name:  "no data object",
			body:  `{"type":"invoice.paid","created":1700000000}`,
			other: `{"type":"invoice.paid","created":1700000500}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := ParseStripe([]byte(tt.body), "uk")
			require.NoError(t, err)
			again, err := ParseStripe([]byte(tt.body), "uk")
			require.NoError(t, err)
			other, err := ParseStripe([]byte(tt.other), "uk")
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(first.ID, FallbackKeyPrefix))
			assert.Equal(t, first.ID, again.ID)
			assert.NotEqual(t, first.ID, other.ID)
		})
	}
}

func TestParseStripe_Malformed(t *testing.T) {
	_, err := ParseStripe([]byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{"amount_paid":"lots"}}}`), "uk")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedPayload))
}

func TestParseGoCardless(t *testing.T) {
	body := `{"events":[
		{"id":"EV1","created_at":"2024-01-01T00:00:00.000Z","resource_type":"payments","action":"confirmed","links":{"payment":"PM1"}},
		{"id":"EV2","resource_type":"mandates","action":"cancelled","links":{"mandate":"MD1"},"details":{"cause":"bank_account_closed"}},
		{"id":"EV3","resource_type":"billing_requests","action":"fulfilled","links":{"billing_request":"BRQ1"}}
	]}`

	evts, err := ParseGoCardless([]byte(body), "us")
	require.NoError(t, err)
	require.Len(t, evts, 3)

	assert.Equal(t, "EV1", evts[0].ID)
	assert.Equal(t, "payments.confirmed", evts[0].Type)
	assert.Equal(t, FamilyPayment, evts[0].Family)
	assert.Equal(t, "PM1", evts[0].GoCardless.Links.Payment)
	assert.Equal(t, "us", evts[0].Region)
	assert.Empty(t, evts[0].Currency)

	assert.Equal(t, FamilyMandate, evts[1].Family)
	assert.Equal(t, "bank_account_closed", evts[1].GoCardless.Details.Cause)

	assert.Equal(t, FamilyUnknown, evts[2].Family)
	assert.JSONEq(t, `{"id":"EV3","resource_type":"billing_requests","action":"fulfilled","links":{"billing_request":"BRQ1"}}`, string(evts[2].Raw))
}

func TestParseGoCardless_Malformed(t *testing.T) {
	_, err := ParseGoCardless([]byte(`{"events":"nope"}`), "uk")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedPayload))
}

func TestFallbackKey(t *testing.T) {
	a := FallbackKey(ProviderGoCardless, "payments.confirmed", "PM1", "")
	b := FallbackKey(ProviderGoCardless, "payments.confirmed", "PM1", "")
	c := FallbackKey(ProviderGoCardless, "payments.confirmed", "PM2", "")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, len(FallbackKeyPrefix)+64)
}

func TestEventVars(t *testing.T) {
	evt, err := ParseStripe([]byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{"id":"in_1","currency":"gbp","billing_reason":"subscription_create"}}}`), "uk")
	require.NoError(t, err)

	vars := evt.Vars()
	assert.Equal(t, "invoice", vars["family"])
	assert.Equal(t, "gbp", vars["currency"])
	payload := vars["payload"].(map[string]interface{})
	assert.Equal(t, "subscription_create", payload["billing_reason"])
}
