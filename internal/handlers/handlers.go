// Package handlers turns one provider event into its CRM side effects. Each
// family runs a fixed sequence of orchestrator steps against the regional
// clients it is given.
package handlers

import (
	"context"
	"fmt"
	"time"

	"payhook/internal/constants"
	"payhook/internal/events"
	"payhook/internal/ledger"
	"payhook/internal/logger"
	"payhook/internal/orchestrator"
	"payhook/internal/regions"
)

// EventStatus values reported back to the provider-facing layer.
const (
	EventProcessed = "processed"
	EventCompleted = "completed"
	EventSkipped   = "skipped"
	EventNA        = "N/A"
	EventIgnored   = "ignored"
)

// Deps carries everything one processing attempt needs. Clients are resolved
// once per attempt and never re-resolved mid-sequence.
type Deps struct {
	Clients           regions.Clients
	Logger            logger.Logger
	Production        bool
	DefaultCampaign   string
	PreferenceTimeout time.Duration
}

func (d Deps) campaignDefault() string {
	if d.DefaultCampaign != "" {
		return d.DefaultCampaign
	}
	return constants.DefaultCampaign
}

func (d Deps) log() logger.Logger {
	if d.Logger == nil {
		return logger.NopLogger()
	}
	return d.Logger
}

// Outcome is a non-error handler result. Status is the ledger status to
// record; guard outcomes (skipped, N/A, ignored) are outcomes, not errors.
type Outcome struct {
	Status      ledger.Status
	EventStatus string
	Message     string
	Results     []orchestrator.StepResult
	IDs         orchestrator.IDs
}

// Handler processes one event. A returned error is a *orchestrator.StepError
// whenever at least one step ran.
type Handler func(ctx context.Context, deps Deps, evt events.Event) (Outcome, error)

var registry = map[events.Family]Handler{
	events.FamilyCheckout:     HandleCheckout,
	events.FamilySubscription: HandleSubscription,
	events.FamilyInvoice:      HandleInvoice,
	events.FamilyPayment:      HandlePayment,
	events.FamilyMandate:      HandleMandate,
}

// For returns the handler for family, if any.
func For(family events.Family) (Handler, bool) {
	h, ok := registry[family]
	return h, ok
}

func done(run *orchestrator.Run, status ledger.Status, eventStatus, message string) Outcome {
	return Outcome{
		Status:      status,
		EventStatus: eventStatus,
		Message:     message,
		Results:     run.Results(),
		IDs:         run.IDs,
	}
}

func processed(run *orchestrator.Run, message string) Outcome {
	return done(run, ledger.StatusProcessed, EventProcessed, message)
}

func completed(run *orchestrator.Run, message string) Outcome {
	return done(run, ledger.StatusCompleted, EventCompleted, message)
}

func skipped(run *orchestrator.Run, message string) Outcome {
	return done(run, ledger.StatusSkipped, EventSkipped, message)
}

func ignored(run *orchestrator.Run, message string) Outcome {
	return done(run, ledger.StatusIgnored, EventIgnored, message)
}

func malformed(evt events.Event, what string) error {
	return events.ErrMalformedPayload.
		WithMessage(fmt.Sprintf("%s event %s carries no %s", evt.Type, evt.ID, what)).
		AsFatal()
}

// majorUnits converts a provider minor-unit amount.
func majorUnits(minor int64) float64 {
	return float64(minor) / 100
}

func dateFromUnix(sec int64) string {
	if sec <= 0 {
		return time.Now().UTC().Format("2006-01-02")
	}
	return time.Unix(sec, 0).UTC().Format("2006-01-02")
}
