// Package orchestrator runs ordered sequences of dependent external calls and
// keeps a per-step audit trail that survives the first failure.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"payhook/internal/logger"
	"payhook/pkg/errors"
	"payhook/pkg/logging"
	"payhook/pkg/metrics"
	"payhook/pkg/tracing"
)

type StepResult struct {
	Step    string `json:"step"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// IDs are the identifiers resolved so far during one processing attempt.
type IDs struct {
	EventID           string `json:"eventId,omitempty"`
	ConstituentID     string `json:"constituentId,omitempty"`
	GatewayCustomerID string `json:"gatewayCustomerId,omitempty"`
	SubscriptionID    string `json:"subscriptionId,omitempty"`
	TransactionID     string `json:"transactionId,omitempty"`
}

// StepError is returned by the first failing step. Results holds every step
// attempted so far, the failed one last.
type StepError struct {
	Step    string
	Results []StepResult
	IDs
	Cause error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Cause)
}

func (e *StepError) Unwrap() error {
	return e.Cause
}

// AsStepError extracts a *StepError from err's chain.
func AsStepError(err error) (*StepError, bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr, true
	}
	return nil, false
}

// Run is one processing attempt. It is not safe for concurrent use; steps
// run strictly in sequence.
type Run struct {
	name    string
	results []StepResult
	failed  bool
	logger  logger.Logger

	IDs IDs
}

func New(name, eventID string, log logger.Logger) *Run {
	if log == nil {
		log = logger.NopLogger()
	}
	return &Run{
		name:   name,
		logger: log,
		IDs:    IDs{EventID: eventID},
	}
}

// Step executes fn under name. After a failure every later Step call is
// refused so that a caller ignoring an error cannot extend the trail.
func (r *Run) Step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if r.failed {
		return fmt.Errorf("run %s already failed, refusing step %q", r.name, name)
	}

	ctx, span := tracing.StartSpan(ctx, "payhook-orchestrator", "step "+name,
		"run", r.name,
		logging.EventIDKey, r.IDs.EventID,
	)
	start := time.Now()

	err := invoke(ctx, fn)
	tracing.EndSpan(span, err)

	if err == nil {
		metrics.ObserveStep(name, "success", time.Since(start))
		r.results = append(r.results, StepResult{Step: name, Success: true})
		r.logger.DebugwCtx(ctx, "Step succeeded", "run", r.name, "step", name)
		return nil
	}

	metrics.ObserveStep(name, "failure", time.Since(start))
	r.results = append(r.results, StepResult{Step: name, Success: false, Error: err.Error()})
	r.failed = true
	r.logger.WarnwCtx(ctx, "Step failed", "run", r.name, "step", name, "error", err)

	return &StepError{
		Step:    name,
		Results: r.Results(),
		IDs:     r.IDs,
		Cause:   err,
	}
}

func invoke(ctx context.Context, fn func(ctx context.Context) error) error {
	return errors.Safely(func() error { return fn(ctx) })
}

// Do is Step for calls that produce a value.
func Do[T any](ctx context.Context, r *Run, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Step(ctx, name, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (r *Run) Results() []StepResult {
	out := make([]StepResult, len(r.results))
	copy(out, r.results)
	return out
}

func (r *Run) Failed() bool {
	return r.failed
}

// Trail serializes results for the ledger notes column.
func Trail(results []StepResult) string {
	if len(results) == 0 {
		return "[]"
	}
	b, err := json.Marshal(results)
	if err != nil {
		return "[]"
	}
	return string(b)
}
