package router

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payhook/internal/config"
	"payhook/internal/crm/crmtest"
	"payhook/internal/events"
	"payhook/internal/handlers"
	"payhook/internal/ledger"
	"payhook/internal/logger"
	"payhook/internal/notify"
	"payhook/internal/orchestrator"
	"payhook/internal/provider"
	"payhook/internal/provider/providertest"
	"payhook/internal/regions"
	pkgerrors "payhook/pkg/errors"
	"payhook/pkg/models"
	"payhook/pkg/retry"
)

type stubResolver struct {
	clients  regions.Clients
	err      error
	currency string
	hint     string
	calls    int
}

func (s *stubResolver) ResolveFor(currency, hint string) (regions.Clients, error) {
	s.calls++
	s.currency, s.hint = currency, hint
	if s.err != nil {
		return regions.Clients{}, s.err
	}
	return s.clients, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (n *recordingNotifier) Notify(ctx context.Context, alert notify.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
}

type harness struct {
	router   *Router
	repo     *ledger.MemoryRepository
	ledger   *ledger.Service
	locker   *ledger.MemoryLocker
	crm      *crmtest.Fake
	stripe   *providertest.Stripe
	gc       *providertest.GoCardless
	resolver *stubResolver
	notifier *recordingNotifier
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	retryErrored bool
	rules        []config.IgnoreRule
	production   bool
}

func withRetryErrored() harnessOption {
	return func(c *harnessConfig) { c.retryErrored = true }
}

func withRules(rules ...config.IgnoreRule) harnessOption {
	return func(c *harnessConfig) { c.rules = rules }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	hc := harnessConfig{production: true}
	for _, opt := range opts {
		opt(&hc)
	}

	h := &harness{
		repo:     ledger.NewMemoryRepository(),
		locker:   ledger.NewMemoryLocker(),
		crm:      crmtest.New(),
		stripe:   providertest.NewStripe(),
		gc:       providertest.NewGoCardless(),
		notifier: &recordingNotifier{},
	}
	h.ledger = ledger.NewService(h.repo, logger.NopLogger(), hc.production, hc.retryErrored)
	h.resolver = &stubResolver{clients: regions.Clients{
		Region:     "uk",
		CRM:        h.crm,
		Stripe:     h.stripe,
		GoCardless: h.gc,
	}}

	rules, err := CompileRules(hc.rules)
	require.NoError(t, err)

	h.router = New(h.ledger, h.locker, h.resolver, rules, h.notifier, Config{
		Production:        hc.production,
		LockTTL:           time.Minute,
		PreferenceTimeout: 20 * time.Millisecond,
	}, logger.NopLogger())
	return h
}

func (h *harness) entry(t *testing.T, eventID string) *ledger.Entry {
	t.Helper()
	e, err := h.ledger.FindLatest(context.Background(), eventID, "")
	require.NoError(t, err)
	return e
}

const checkoutBody = `{"id":"evt_checkout","type":"checkout.session.completed","livemode":true,"data":{"object":{"id":"cs_1","mode":"payment","payment_status":"paid","amount_total":2500,"currency":"gbp","customer_details":{"email":"ada@example.org","name":"Ada Lovelace"}}}}`

func stripeEvent(t *testing.T, body string) events.Event {
	t.Helper()
	evt, err := events.ParseStripe([]byte(body), "uk")
	require.NoError(t, err)
	return evt
}

func TestRoute_CheckoutDeliveredTwice(t *testing.T) {
	h := newHarness(t)
	evt := stripeEvent(t, checkoutBody)

	first, err := h.router.Route(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, handlers.EventCompleted, first.EventStatus)
	assert.Equal(t, ledger.StatusCompleted, first.Status)
	assert.Equal(t, "evt_checkout", first.EventID)

	second, err := h.router.Route(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, handlers.EventIgnored, second.EventStatus)
	assert.Empty(t, second.Status)

	assert.Len(t, h.crm.CallsTo("CreateTransaction"), 1)
	assert.Equal(t, "gbp", h.resolver.currency)
	assert.Equal(t, 1, h.resolver.calls)

	entry := h.entry(t, "evt_checkout")
	assert.Equal(t, ledger.StatusCompleted, entry.Status)
	assert.Equal(t, "C1", entry.ConstituentID)
	assert.Equal(t, "T2", entry.TransactionID)
	assert.False(t, entry.TestFlag)

	var trail []orchestrator.StepResult
	require.NoError(t, json.Unmarshal([]byte(entry.Notes), &trail))
	require.NotEmpty(t, trail)
	for _, step := range trail {
		assert.True(t, step.Success, step.Step)
	}
}

func TestRoute_IgnoreRule(t *testing.T) {
	h := newHarness(t, withRules(config.IgnoreRule{
		Name:       "test_mode_stripe",
		Expression: `provider == "stripe" && !livemode`,
	}))

	body := `{"id":"evt_test","type":"checkout.session.completed","livemode":false,"data":{"object":{"id":"cs_2","mode":"payment","payment_status":"paid","amount_total":100,"currency":"gbp"}}}`
	res, err := h.router.Route(context.Background(), stripeEvent(t, body))
	require.NoError(t, err)
	assert.Equal(t, handlers.EventIgnored, res.EventStatus)
	assert.Contains(t, res.Message, "test_mode_stripe")

	_, err = h.ledger.FindLatest(context.Background(), "evt_test", "")
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.Empty(t, h.crm.Methods())
	assert.Zero(t, h.resolver.calls)

	res, err = h.router.Route(context.Background(), stripeEvent(t, checkoutBody))
	require.NoError(t, err)
	assert.Equal(t, handlers.EventCompleted, res.EventStatus)
}

func TestRoute_InFlight(t *testing.T) {
	h := newHarness(t)
	release, acquired, err := h.locker.Acquire(context.Background(), "evt_checkout", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = h.router.Route(context.Background(), stripeEvent(t, checkoutBody))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsInFlight(err))
	assert.Empty(t, h.crm.Methods())

	release()

	res, err := h.router.Route(context.Background(), stripeEvent(t, checkoutBody))
	require.NoError(t, err)
	assert.Equal(t, handlers.EventCompleted, res.EventStatus)
}

func TestRoute_StepFailure(t *testing.T) {
	tests := []struct {
		name         string
		opts         []harnessOption
		wantRedelive string
	}{
		{name: "error is terminal by default", wantRedelive: handlers.EventIgnored},
		{name: "error is retried when configured", opts: []harnessOption{withRetryErrored()}, wantRedelive: handlers.EventCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.opts...)
			h.crm.Errors["CreateTransaction"] = errors.New("crm returned 500")

			res, err := h.router.Route(context.Background(), stripeEvent(t, checkoutBody))
			require.Error(t, err)
			assert.Equal(t, EventError, res.EventStatus)

			entry := h.entry(t, "evt_checkout")
			assert.Equal(t, ledger.StatusError, entry.Status)
			assert.Equal(t, "C1", entry.ConstituentID)
			assert.Empty(t, entry.TransactionID)

			var trail []orchestrator.StepResult
			require.NoError(t, json.Unmarshal([]byte(entry.Notes), &trail))
			last := trail[len(trail)-1]
			assert.Equal(t, "create transaction", last.Step)
			assert.False(t, last.Success)

			require.Len(t, h.notifier.alerts, 1)
			alert := h.notifier.alerts[0]
			assert.Equal(t, "evt_checkout", alert.Context["event_id"])
			assert.Equal(t, "create transaction", alert.Context["step"])

			delete(h.crm.Errors, "CreateTransaction")
			res, err = h.router.Route(context.Background(), stripeEvent(t, checkoutBody))
			require.NoError(t, err)
			assert.Equal(t, tt.wantRedelive, res.EventStatus)
		})
	}
}

type downProducer struct {
	mu       sync.Mutex
	attempts int
}

func (p *downProducer) Publish(context.Context, string, models.MessageEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	return errors.New("kafka: leader not available")
}

func (p *downProducer) Close() error { return nil }

func TestRoute_FailureAlertDoesNotDelayResponse(t *testing.T) {
	h := newHarness(t)
	h.crm.Errors["CreateTransaction"] = errors.New("crm returned 500")

	producer := &downProducer{}
	notifier := notify.New(producer, config.BrokerConfig{
		Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}},
	}, logger.NopLogger())
	kafkaNotifier, ok := notifier.(*notify.KafkaNotifier)
	require.True(t, ok)

	r := New(h.ledger, h.locker, h.resolver, nil, notifier, Config{
		Production: true,
		LockTTL:    time.Minute,
	}, logger.NopLogger())

	start := time.Now()
	_, err := r.Route(context.Background(), stripeEvent(t, checkoutBody))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, ledger.StatusError, h.entry(t, "evt_checkout").Status)

	waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, kafkaNotifier.Wait(waitCtx))

	producer.mu.Lock()
	defer producer.mu.Unlock()
	assert.Equal(t, 3, producer.attempts)
}

func TestRoute_ResolverFailure(t *testing.T) {
	h := newHarness(t)
	h.resolver.err = regions.ErrUnsupportedCurrency.WithMessage(`currency "jpy" is not supported`)

	_, err := h.router.Route(context.Background(), stripeEvent(t, checkoutBody))
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, regions.ErrUnsupportedCurrency))

	assert.Empty(t, h.crm.Methods())
	assert.Equal(t, ledger.StatusError, h.entry(t, "evt_checkout").Status)
	assert.Len(t, h.notifier.alerts, 1)
}

func TestRoute_UnknownFamilyLeavesRowProcessing(t *testing.T) {
	h := newHarness(t)
	body := `{"id":"evt_refund","type":"charge.refunded","livemode":true,"data":{"object":{"id":"ch_1"}}}`

	res, err := h.router.Route(context.Background(), stripeEvent(t, body))
	require.NoError(t, err)
	assert.Equal(t, handlers.EventIgnored, res.EventStatus)
	assert.Equal(t, "uk", h.resolver.hint)
	assert.Equal(t, ledger.StatusProcessing, h.entry(t, "evt_refund").Status)
}

func TestRoute_IDLessUnknownFamilyGetsContentKey(t *testing.T) {
	h := newHarness(t)
	refund := `{"type":"charge.refunded","created":1700000000,"livemode":true,"data":{"object":{"id":"ch_1"}}}`
	dispute := `{"type":"charge.dispute.created","created":1700000001,"livemode":true,"data":{"object":{"id":"dp_1"}}}`

	first := stripeEvent(t, refund)
	second := stripeEvent(t, dispute)
	require.NotEqual(t, first.ID, second.ID)

	for _, evt := range []events.Event{first, second} {
		res, err := h.router.Route(context.Background(), evt)
		require.NoError(t, err)
		assert.Equal(t, handlers.EventIgnored, res.EventStatus)
	}

	entry, err := h.ledger.FindLatest(context.Background(), "", "charge.refunded")
	require.NoError(t, err)
	assert.Equal(t, first.ID, entry.EventID)
	assert.Equal(t, ledger.StatusProcessing, entry.Status)
}

func TestRoute_LedgerUnavailable(t *testing.T) {
	h := newHarness(t)
	h.repo.Err = errors.New("connection refused")

	res, err := h.router.Route(context.Background(), stripeEvent(t, checkoutBody))
	require.NoError(t, err)
	assert.Equal(t, handlers.EventCompleted, res.EventStatus)
	assert.Len(t, h.crm.CallsTo("CreateTransaction"), 1)
}

func TestRoute_RequeueReprocesses(t *testing.T) {
	h := newHarness(t)
	evt := stripeEvent(t, checkoutBody)

	_, err := h.router.Route(context.Background(), evt)
	require.NoError(t, err)

	_, err = h.ledger.Requeue(context.Background(), evt.ID)
	require.NoError(t, err)

	res, err := h.router.Route(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, handlers.EventCompleted, res.EventStatus)
	assert.Len(t, h.crm.CallsTo("CreateTransaction"), 2)
	assert.Equal(t, 2, h.entry(t, evt.ID).Attempts)
}

func TestRoute_GoCardlessNonSubscriptionPayment(t *testing.T) {
	h := newHarness(t)
	h.gc.Payments["PM1"] = &provider.Payment{ID: "PM1", Amount: 1500, Links: provider.PaymentLinks{Mandate: "MD1"}}

	evts, err := ParseBody(events.ProviderGoCardless, "uk", []byte(`{"events":[{"id":"EV1","resource_type":"payments","action":"confirmed","links":{"payment":"PM1"}}]}`))
	require.NoError(t, err)
	require.Len(t, evts, 1)

	res, err := h.router.Route(context.Background(), evts[0])
	require.NoError(t, err)
	assert.Equal(t, handlers.EventNA, res.EventStatus)
	assert.Empty(t, h.crm.Methods())
	assert.Equal(t, "", h.resolver.currency)
	assert.Equal(t, "uk", h.resolver.hint)
	assert.Equal(t, ledger.StatusSkipped, h.entry(t, "EV1").Status)
}

func TestRoute_ConcurrentDuplicates(t *testing.T) {
	h := newHarness(t)
	evt := stripeEvent(t, checkoutBody)

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.router.Route(context.Background(), evt)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			assert.True(t, pkgerrors.IsInFlight(err))
		}
	}
	assert.Len(t, h.crm.CallsTo("CreateTransaction"), 1)
}

func TestReplayHandler(t *testing.T) {
	h := newHarness(t)
	handle := h.router.ReplayHandler()

	msg := models.NewReplay("test", "stripe", "uk", []byte(checkoutBody))
	require.NoError(t, handle(context.Background(), *msg))
	assert.Len(t, h.crm.CallsTo("CreateTransaction"), 1)
	assert.Equal(t, ledger.StatusCompleted, h.entry(t, "evt_checkout").Status)

	bad := models.NewReplay("test", "stripe", "uk", []byte(`not json`))
	err := handle(context.Background(), *bad)
	require.Error(t, err)
	var fatal retry.FatalError
	assert.True(t, errors.As(err, &fatal))

	alert := models.NewAlert("test", "x", "", nil)
	assert.NoError(t, handle(context.Background(), *alert))
}

func TestParseBody_UnknownProvider(t *testing.T) {
	_, err := ParseBody("paypal", "uk", []byte(`{}`))
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, events.ErrMalformedPayload))
}

func TestCompileRules(t *testing.T) {
	rules, err := CompileRules(nil)
	require.NoError(t, err)
	assert.Nil(t, rules)

	_, err = CompileRules([]config.IgnoreRule{{Name: "broken", Expression: "provider =="}})
	assert.Error(t, err)

	rules, err = CompileRules([]config.IgnoreRule{{Name: "us", Expression: `region == "us"`}})
	require.NoError(t, err)
	assert.Equal(t, 1, rules.Len())
}
