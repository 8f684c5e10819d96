// Package router takes a parsed provider event through ignore rules, the
// in-flight lock and the ledger claim, dispatches it to its handler group and
// records the terminal ledger status.
package router

import (
	"context"
	"fmt"
	"time"

	"payhook/internal/config"
	"payhook/internal/constants"
	"payhook/internal/events"
	"payhook/internal/handlers"
	"payhook/internal/ledger"
	"payhook/internal/logger"
	"payhook/internal/notify"
	"payhook/internal/orchestrator"
	"payhook/internal/regions"
	"payhook/pkg/cel"
	pkgerrors "payhook/pkg/errors"
	"payhook/pkg/logging"
	"payhook/pkg/metrics"
	"payhook/pkg/tracing"
)

const (
	tracerName = "payhook-router"

	// EventError is reported for deliveries that failed.
	EventError = "error"
)

// Result is what the webhook layer reports back for one event. Status is
// empty when nothing was written to the ledger.
type Result struct {
	EventID     string        `json:"event_id"`
	Message     string        `json:"message"`
	Status      ledger.Status `json:"status,omitempty"`
	EventStatus string        `json:"event_status"`
}

// ClientResolver picks the regional clients for one processing attempt.
type ClientResolver interface {
	ResolveFor(currency, regionHint string) (regions.Clients, error)
}

type Config struct {
	Production        bool
	DefaultCampaign   string
	LockTTL           time.Duration
	PreferenceTimeout time.Duration
}

// ConfigFrom reads the router settings out of the service configuration.
func ConfigFrom(cfg *config.Config) Config {
	ttl := time.Duration(cfg.Routing.LockTTLSeconds) * time.Second
	return Config{
		Production:        cfg.App.IsProduction(),
		DefaultCampaign:   cfg.App.DefaultCampaign,
		LockTTL:           ttl,
		PreferenceTimeout: constants.PreferenceLookupTimeout,
	}
}

type Router struct {
	ledger   *ledger.Service
	locker   ledger.Locker
	resolver ClientResolver
	rules    *cel.Rules
	notifier notify.Notifier
	cfg      Config
	logger   logger.Logger
}

func New(ledgerSvc *ledger.Service, locker ledger.Locker, resolver ClientResolver, rules *cel.Rules, notifier notify.Notifier, cfg Config, log logger.Logger) *Router {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = constants.DefaultLockTTLSeconds * time.Second
	}
	if locker == nil {
		locker = ledger.NewMemoryLocker()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}
	return &Router{
		ledger:   ledgerSvc,
		locker:   locker,
		resolver: resolver,
		rules:    rules,
		notifier: notifier,
		cfg:      cfg,
		logger:   log,
	}
}

// CompileRules builds the ignore rules from configuration.
func CompileRules(rules []config.IgnoreRule) (*cel.Rules, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}
	defs := make([]cel.Rule, 0, len(rules))
	for _, r := range rules {
		defs = append(defs, cel.Rule{Name: r.Name, Expression: r.Expression})
	}
	return cel.NewRules(evaluator, defs)
}

// Route processes evt once. A non-nil error means the provider should
// redeliver: ErrInFlight for a concurrent duplicate, anything else for a
// failed attempt that has been recorded as error.
func (r *Router) Route(ctx context.Context, evt events.Event) (Result, error) {
	start := time.Now()
	ctx = logging.WithEvent(ctx, string(evt.Provider), evt.ID)
	ctx, span := tracing.StartSpan(ctx, tracerName, "route "+evt.Type,
		"provider", string(evt.Provider),
		"family", string(evt.Family),
		logging.EventIDKey, evt.ID,
	)

	res, err := r.route(ctx, evt)
	res.EventID = evt.ID
	tracing.EndSpan(span, err)

	label := res.EventStatus
	if res.Status != "" {
		label = string(res.Status)
	}
	if err != nil && label == "" {
		label = EventError
	}
	metrics.IncWebhookEvent(string(evt.Provider), string(evt.Family), label)
	metrics.ObserveWebhookDuration(string(evt.Provider), string(evt.Family), time.Since(start))

	return res, err
}

func (r *Router) route(ctx context.Context, evt events.Event) (Result, error) {
	if name, matched, err := r.rules.Match(ctx, evt.Vars()); matched {
		metrics.IgnoreRuleMatchesTotal.WithLabelValues(name).Inc()
		r.logger.InfowCtx(ctx, "Event dropped by ignore rule", "rule", name, "event_type", evt.Type)
		return Result{
			Message:     fmt.Sprintf("ignored by rule %s", name),
			EventStatus: handlers.EventIgnored,
		}, nil
	} else if err != nil {
		r.logger.WarnwCtx(ctx, "Ignore rule evaluation failed", "error", err)
	}

	release, acquired, err := r.locker.Acquire(ctx, evt.ID, r.cfg.LockTTL)
	if err != nil {
		r.logger.WarnwCtx(ctx, "Event lock unavailable, relying on ledger claim", "error", err)
	} else if !acquired {
		metrics.InFlightConflictsTotal.Inc()
		r.logger.InfowCtx(ctx, "Event already in flight", "event_type", evt.Type)
		return Result{EventStatus: EventError, Message: "event is already being processed"},
			pkgerrors.ErrInFlight.WithDetail("event_id", evt.ID)
	}
	defer release()

	entry, claimed, err := r.ledger.Claim(ctx, evt.ID, evt.Type)
	switch {
	case err != nil:
		r.logger.WarnwCtx(ctx, "Ledger claim failed, processing anyway", "error", err)
	case !claimed:
		r.logger.InfowCtx(ctx, "Duplicate delivery", "prior_status", entry.Status)
		return Result{
			Message:     fmt.Sprintf("event already %s", entry.Status),
			EventStatus: handlers.EventIgnored,
		}, nil
	}

	clients, err := r.resolver.ResolveFor(evt.Currency, evt.Region)
	if err != nil {
		return r.fail(ctx, evt, err)
	}

	handler, ok := handlers.For(evt.Family)
	if !ok {
		// The claimed row stays processing.
		r.logger.InfowCtx(ctx, "No handler for event", "event_type", evt.Type)
		return Result{
			Message:     fmt.Sprintf("no handler for event type %s", evt.Type),
			EventStatus: handlers.EventIgnored,
		}, nil
	}

	outcome, err := handler(ctx, handlers.Deps{
		Clients:           clients,
		Logger:            r.logger,
		Production:        r.cfg.Production,
		DefaultCampaign:   r.cfg.DefaultCampaign,
		PreferenceTimeout: r.cfg.PreferenceTimeout,
	}, evt)
	if err != nil {
		return r.fail(ctx, evt, err)
	}

	if outcome.Status != "" {
		notes := outcome.Message
		if len(outcome.Results) > 0 {
			notes = orchestrator.Trail(outcome.Results)
		}
		r.ledger.Upsert(ctx, recordFor(evt, outcome.Status, notes, outcome.IDs))
	}

	r.logger.InfowCtx(ctx, "Event processed",
		"event_type", evt.Type,
		"status", outcome.Status,
		"event_status", outcome.EventStatus,
	)

	return Result{
		Message:     outcome.Message,
		Status:      outcome.Status,
		EventStatus: outcome.EventStatus,
	}, nil
}

// fail records the attempt as error with whatever trail and ids it got to,
// and raises a notification.
func (r *Router) fail(ctx context.Context, evt events.Event, err error) (Result, error) {
	notes := err.Error()
	ids := orchestrator.IDs{EventID: evt.ID}
	step := ""
	if stepErr, ok := orchestrator.AsStepError(err); ok {
		notes = orchestrator.Trail(stepErr.Results)
		ids = stepErr.IDs
		step = stepErr.Step
	}

	r.ledger.Upsert(ctx, recordFor(evt, ledger.StatusError, notes, ids))

	r.logger.ErrorwCtx(ctx, "Event processing failed",
		"event_type", evt.Type,
		"step", step,
		"error", err,
	)

	alertContext := map[string]interface{}{
		"event_id":   evt.ID,
		"event_type": evt.Type,
		"provider":   string(evt.Provider),
		"region":     evt.Region,
	}
	if step != "" {
		alertContext["step"] = step
	}
	if ids.ConstituentID != "" {
		alertContext["constituent_id"] = ids.ConstituentID
	}
	r.notifier.Notify(ctx, notify.Alert{
		Message: fmt.Sprintf("Failed to process %s event %s", evt.Type, evt.ID),
		Err:     err,
		Context: alertContext,
	})

	return Result{
		Message:     err.Error(),
		Status:      ledger.StatusError,
		EventStatus: EventError,
	}, err
}

func recordFor(evt events.Event, status ledger.Status, notes string, ids orchestrator.IDs) ledger.Record {
	return ledger.Record{
		EventID:           evt.ID,
		EventType:         evt.Type,
		Status:            status,
		Notes:             notes,
		ConstituentID:     ids.ConstituentID,
		GatewayCustomerID: ids.GatewayCustomerID,
		SubscriptionID:    ids.SubscriptionID,
		TransactionID:     ids.TransactionID,
	}
}
