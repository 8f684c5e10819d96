package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"payhook/internal/billingrequest"
	"payhook/internal/config"
	"payhook/internal/crm"
	"payhook/internal/crm/crmtest"
	"payhook/internal/events"
	"payhook/internal/ledger"
	"payhook/internal/logger"
	"payhook/internal/provider/providertest"
	"payhook/internal/regions"
	"payhook/internal/router"
	pkgerrors "payhook/pkg/errors"
)

const (
	stripeSecret     = "whsec_test"
	gocardlessSecret = "gc_secret"
)

var testRegions = map[string]config.RegionConfig{
	"uk": {
		DefaultCurrency: "gbp",
		Stripe:          config.StripeConfig{WebhookSecret: stripeSecret},
		GoCardless:      config.GoCardlessConfig{WebhookSecret: gocardlessSecret},
	},
	"us": {DefaultCurrency: "usd"},
}

type clientStub struct {
	clients regions.Clients
	err     error
}

func (s clientStub) Resolve(currency string) (regions.Clients, error) { return s.clients, s.err }
func (s clientStub) ForRegion(region string) (regions.Clients, error) { return s.clients, s.err }
func (s clientStub) ResolveFor(currency, hint string) (regions.Clients, error) {
	return s.clients, s.err
}

type routerStub struct {
	errs  map[string]error
	calls []string
}

func (r *routerStub) Route(ctx context.Context, evt events.Event) (router.Result, error) {
	r.calls = append(r.calls, evt.ID)
	if err := r.errs[evt.ID]; err != nil {
		return router.Result{EventID: evt.ID, Status: ledger.StatusError, EventStatus: router.EventError}, err
	}
	return router.Result{EventID: evt.ID, Status: ledger.StatusCompleted}, nil
}

type billingStub struct {
	form billingrequest.FormData
	err  error
}

func (b *billingStub) Build(ctx context.Context, form billingrequest.FormData) (billingrequest.Result, error) {
	b.form = form
	if b.err != nil {
		return billingrequest.Result{}, b.err
	}
	return billingrequest.Result{AuthorisationURL: "https://pay.gocardless.com/flow/BRF1", BillingRequestID: "BRQ1"}, nil
}

type testServer struct {
	engine  *gin.Engine
	ledger  *ledger.Service
	crm     *crmtest.Fake
	billing *billingStub
}

func newTestServer(t *testing.T, r EventRouter, opts ...Option) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := crmtest.New()
	clients := regions.Clients{Region: "uk", CRM: fake, Stripe: providertest.NewStripe(), GoCardless: providertest.NewGoCardless()}
	ledgerSvc := ledger.NewService(ledger.NewMemoryRepository(), logger.NopLogger(), true, false)
	if r == nil {
		r = router.New(ledgerSvc, nil, clientStub{clients: clients}, nil, nil, router.Config{
			Production:        true,
			LockTTL:           time.Minute,
			PreferenceTimeout: 20 * time.Millisecond,
		}, logger.NopLogger())
	}

	s := &testServer{engine: gin.New(), ledger: ledgerSvc, crm: fake, billing: &billingStub{}}
	opts = append([]Option{WithPreferenceTimeout(20 * time.Millisecond)}, opts...)
	h := NewHandler(r, ledgerSvc, s.billing, clientStub{clients: clients}, testRegions, logger.NopLogger(), opts...)
	h.RegisterRoutes(s.engine, nil)
	return s
}

func (s *testServer) do(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func signStripe(body []byte, secret string) string {
	return stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   body,
		Secret:    secret,
		Timestamp: time.Now(),
	}).Header
}

const checkoutBody = `{"id":"evt_checkout","object":"event","type":"checkout.session.completed","livemode":true,"data":{"object":{"id":"cs_1","mode":"payment","payment_status":"paid","amount_total":2500,"currency":"gbp","customer_details":{"email":"ada@example.org","name":"Ada Lovelace"}}}}`

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp pkgerrors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.ErrorCode
}

func TestStripeWebhook_Reconciles(t *testing.T) {
	s := newTestServer(t, nil)
	body := []byte(checkoutBody)

	w := s.do(http.MethodPost, "/webhooks/stripe/uk", body, map[string]string{StripeSignatureHeader: signStripe(body, stripeSecret)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp DeliveryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Received)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "evt_checkout", resp.Events[0].EventID)
	assert.Equal(t, ledger.StatusCompleted, resp.Events[0].Status)
	assert.Len(t, s.crm.CallsTo("CreateTransaction"), 1)

	// Redelivery is acknowledged without touching the CRM again.
	w = s.do(http.MethodPost, "/webhooks/stripe/uk", body, map[string]string{StripeSignatureHeader: signStripe(body, stripeSecret)})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, s.crm.CallsTo("CreateTransaction"), 1)

	entry, err := s.ledger.FindLatest(context.Background(), "evt_checkout", "")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, entry.Status)
}

func TestStripeWebhook_Rejections(t *testing.T) {
	body := []byte(checkoutBody)

	tests := []struct {
		name     string
		path     string
		header   string
		opts     []Option
		wantCode int
		wantErr  string
	}{
		{
			name:     "bad signature",
			path:     "/webhooks/stripe/uk",
			header:   signStripe(body, "whsec_other"),
			wantCode: http.StatusUnauthorized,
			wantErr:  "INVALID_SIGNATURE",
		},
		{
			name:     "missing signature",
			path:     "/webhooks/stripe/uk",
			wantCode: http.StatusUnauthorized,
			wantErr:  "INVALID_SIGNATURE",
		},
		{
			name:     "unknown region",
			path:     "/webhooks/stripe/fr",
			header:   signStripe(body, stripeSecret),
			wantCode: http.StatusNotFound,
			wantErr:  "NOT_FOUND",
		},
		{
			name:     "region without stripe",
			path:     "/webhooks/stripe/us",
			header:   signStripe(body, stripeSecret),
			wantCode: http.StatusNotFound,
			wantErr:  "NOT_FOUND",
		},
		{
			name:     "body too large",
			path:     "/webhooks/stripe/uk",
			header:   signStripe(body, stripeSecret),
			opts:     []Option{WithMaxBodyBytes(16)},
			wantCode: http.StatusRequestEntityTooLarge,
			wantErr:  "PAYLOAD_TOO_LARGE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &routerStub{}
			s := newTestServer(t, r, tt.opts...)

			w := s.do(http.MethodPost, tt.path, body, map[string]string{StripeSignatureHeader: tt.header})
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, errorCode(t, w))
			assert.Empty(t, r.calls)
		})
	}
}

func TestStripeWebhook_RoutingFailures(t *testing.T) {
	body := []byte(checkoutBody)

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "in flight", err: pkgerrors.ErrInFlight, wantCode: http.StatusConflict},
		{name: "step failure", err: errors.New("crm down"), wantCode: http.StatusInternalServerError},
		{name: "missing credentials", err: regions.ErrMissingCredentials, wantCode: http.StatusInternalServerError},
		{name: "handler rejects payload", err: events.ErrMalformedPayload.WithMessage("payment event has no links.payment"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &routerStub{errs: map[string]error{"evt_checkout": tt.err}}
			s := newTestServer(t, r)

			w := s.do(http.MethodPost, "/webhooks/stripe/uk", body, map[string]string{StripeSignatureHeader: signStripe(body, stripeSecret)})
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, []string{"evt_checkout"}, r.calls)
		})
	}
}

const gocardlessBatch = `{"events":[
	{"id":"EV1","resource_type":"payments","action":"submitted","links":{"payment":"PM1"}},
	{"id":"EV2","resource_type":"mandates","action":"active","links":{"mandate":"MD1"}}
]}`

func TestVerifyGoCardlessSignature(t *testing.T) {
	body := []byte(gocardlessBatch)
	sig := SignGoCardless(body, gocardlessSecret)

	assert.True(t, VerifyGoCardlessSignature(body, sig, gocardlessSecret))
	assert.True(t, VerifyGoCardlessSignature(body, strings.ToUpper(sig), gocardlessSecret))
	assert.False(t, VerifyGoCardlessSignature(body, sig, "other"))
	assert.False(t, VerifyGoCardlessSignature(append(body, ' '), sig, gocardlessSecret))
	assert.False(t, VerifyGoCardlessSignature(body, "", gocardlessSecret))
	assert.False(t, VerifyGoCardlessSignature(body, "not-hex", gocardlessSecret))
	assert.False(t, VerifyGoCardlessSignature(body, sig, ""))
}

func TestGoCardlessWebhook(t *testing.T) {
	body := []byte(gocardlessBatch)
	signed := map[string]string{GoCardlessSignatureHeader: SignGoCardless(body, gocardlessSecret)}

	tests := []struct {
		name      string
		path      string
		headers   map[string]string
		errs      map[string]error
		wantCode  int
		wantCalls []string
	}{
		{
			name:      "batch routed",
			path:      "/webhooks/gocardless/uk",
			headers:   signed,
			wantCode:  http.StatusOK,
			wantCalls: []string{"EV1", "EV2"},
		},
		{
			name:     "invalid signature",
			path:     "/webhooks/gocardless/uk",
			headers:  map[string]string{GoCardlessSignatureHeader: SignGoCardless(body, "other")},
			wantCode: StatusInvalidToken,
		},
		{
			name:     "region without gocardless",
			path:     "/webhooks/gocardless/us",
			headers:  signed,
			wantCode: http.StatusNotFound,
		},
		{
			name:      "one failure fails the batch",
			path:      "/webhooks/gocardless/uk",
			headers:   signed,
			errs:      map[string]error{"EV1": errors.New("crm down")},
			wantCode:  http.StatusInternalServerError,
			wantCalls: []string{"EV1", "EV2"},
		},
		{
			name:      "only in-flight failures",
			path:      "/webhooks/gocardless/uk",
			headers:   signed,
			errs:      map[string]error{"EV2": pkgerrors.ErrInFlight},
			wantCode:  http.StatusConflict,
			wantCalls: []string{"EV1", "EV2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &routerStub{errs: tt.errs}
			s := newTestServer(t, r)

			w := s.do(http.MethodPost, tt.path, body, tt.headers)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCalls, r.calls)
		})
	}
}

func TestGoCardlessWebhook_MalformedBatch(t *testing.T) {
	r := &routerStub{}
	s := newTestServer(t, r)
	body := []byte(`{"events":"nope"}`)

	w := s.do(http.MethodPost, "/webhooks/gocardless/uk", body, map[string]string{GoCardlessSignatureHeader: SignGoCardless(body, gocardlessSecret)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MALFORMED_PAYLOAD", errorCode(t, w))
	assert.Empty(t, r.calls)
}

func TestEventsAPI(t *testing.T) {
	s := newTestServer(t, &routerStub{})
	ctx := context.Background()
	s.ledger.Upsert(ctx, ledger.Record{EventID: "evt_1", EventType: "invoice.paid", Status: ledger.StatusCompleted})
	s.ledger.Upsert(ctx, ledger.Record{EventID: "evt_2", EventType: "invoice.paid", Status: ledger.StatusError})

	t.Run("list filtered by status", func(t *testing.T) {
		w := s.do(http.MethodGet, "/api/v1/events?status=error", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var entries []ledger.Entry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, "evt_2", entries[0].EventID)
	})

	t.Run("list rejects bad query", func(t *testing.T) {
		for _, q := range []string{"status=bogus", "limit=-1", "offset=x"} {
			w := s.do(http.MethodGet, "/api/v1/events?"+q, nil, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, q)
		}
	})

	t.Run("latest", func(t *testing.T) {
		w := s.do(http.MethodGet, "/api/v1/events/latest?event_id=evt_1", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var entry ledger.Entry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
		assert.Equal(t, ledger.StatusCompleted, entry.Status)

		assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/events/latest", nil, nil).Code)
		assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/events/latest?event_id=evt_9", nil, nil).Code)
	})

	t.Run("requeue", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/v1/events/evt_2/requeue", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var entry ledger.Entry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
		assert.Equal(t, ledger.StatusReceived, entry.Status)

		assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/v1/events/evt_9/requeue", nil, nil).Code)
	})
}

func TestCreateBillingRequest(t *testing.T) {
	s := newTestServer(t, &routerStub{})
	valid := `{"currency":"GBP","amount":"10","frequency":"monthly","firstName":"Ada","lastName":"Lovelace","email":"ada@example.org"}`

	w := s.do(http.MethodPost, "/api/v1/billing-requests", []byte(valid), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res billingrequest.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "BRQ1", res.BillingRequestID)
	assert.Equal(t, "Lovelace", s.billing.form.LastName)

	w = s.do(http.MethodPost, "/api/v1/billing-requests", []byte(`{"currency":"GBP","email":"not-an-email"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))

	s.billing.err = billingrequest.ErrBillingRequest.WithDetail("step", "create billing request")
	w = s.do(http.MethodPost, "/api/v1/billing-requests", []byte(valid), nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "BILLING_REQUEST_FAILED", errorCode(t, w))
}

func TestGetPreferences(t *testing.T) {
	t.Run("known", func(t *testing.T) {
		s := newTestServer(t, &routerStub{})
		s.crm.Prefs = &crm.Preferences{Items: []crm.Preference{{Type: "Channel", Name: "Email", Allowed: true}}}

		w := s.do(http.MethodGet, "/api/v1/preferences/C1?currency=gbp", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp PreferencesResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Known)
		assert.Equal(t, "uk", resp.Region)
		require.Len(t, resp.Preferences, 1)
		assert.Equal(t, "Email", resp.Preferences[0].Name)
	})

	t.Run("slow crm", func(t *testing.T) {
		s := newTestServer(t, &routerStub{})
		s.crm.PrefsDelay = time.Second

		w := s.do(http.MethodGet, "/api/v1/preferences/C1?region=uk", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp PreferencesResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Known)
		assert.Empty(t, resp.Preferences)
	})
}
