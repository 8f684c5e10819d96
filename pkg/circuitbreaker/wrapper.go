// Package circuitbreaker guards calls to the CRM and the ledger database
// with sony/gobreaker and exports breaker state as Prometheus metrics.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"payhook/internal/config"
	"payhook/pkg/metrics"
)

type Config struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	ReadyToTrip func(counts gobreaker.Counts) bool
	// IsSuccessful marks errors that do not count as failures, such as a
	// lookup that found nothing.
	IsSuccessful func(err error) bool
}

func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: tripAt(3, 0.5),
	}
}

// FromConfig overlays the non-zero settings of cfg on DefaultConfig(name).
func FromConfig(name string, cfg config.CircuitBreakerConfig) Config {
	c := DefaultConfig(name)
	if cfg.MaxRequests > 0 {
		c.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		c.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		c.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		c.ReadyToTrip = tripAt(cfg.MinRequests, cfg.FailureRatio)
	}
	return c
}

func tripAt(minRequests uint32, ratio float64) func(gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		if counts.Requests < minRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
	}
}

// Wrapper is a named breaker. A nil *Wrapper runs calls unguarded.
type Wrapper struct {
	cb           *gobreaker.CircuitBreaker
	isSuccessful func(err error) bool
}

func NewWrapper(cfg Config) *Wrapper {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:         cfg.Name,
		MaxRequests:  cfg.MaxRequests,
		Interval:     cfg.Interval,
		Timeout:      cfg.Timeout,
		ReadyToTrip:  cfg.ReadyToTrip,
		IsSuccessful: cfg.IsSuccessful,
		OnStateChange: func(name string, _, to gobreaker.State) {
			setStateGauge(name, to)
		},
	})
	setStateGauge(cfg.Name, cb.State())
	return &Wrapper{cb: cb, isSuccessful: cfg.IsSuccessful}
}

// Execute runs fn through w. A rejected call wraps gobreaker.ErrOpenState or
// gobreaker.ErrTooManyRequests.
func Execute[T any](ctx context.Context, w *Wrapper, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if w == nil {
		return fn()
	}

	var out T
	_, err := w.cb.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := fn()
		out = v
		return nil, err
	})
	w.record(err)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, fmt.Errorf("circuit breaker %s rejected call: %w", w.cb.Name(), err)
	}
	if err != nil {
		return zero, err
	}
	return out, nil
}

// Run is Execute for calls without a result.
func Run(ctx context.Context, w *Wrapper, fn func() error) error {
	_, err := Execute(ctx, w, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// State is "disabled" for a nil breaker.
func (w *Wrapper) State() string {
	if w == nil {
		return "disabled"
	}
	return w.cb.State().String()
}

func (w *Wrapper) IsOpen() bool {
	return w != nil && w.cb.State() == gobreaker.StateOpen
}

func (w *Wrapper) Name() string {
	if w == nil {
		return ""
	}
	return w.cb.Name()
}

func (w *Wrapper) record(err error) {
	name := w.cb.Name()
	metrics.CircuitBreakerRequests.WithLabelValues(name, w.cb.State().String()).Inc()
	if err != nil && (w.isSuccessful == nil || !w.isSuccessful(err)) {
		metrics.CircuitBreakerFailures.WithLabelValues(name).Inc()
	}
}

var stateValues = map[gobreaker.State]float64{
	gobreaker.StateClosed:   0,
	gobreaker.StateHalfOpen: 1,
	gobreaker.StateOpen:     2,
}

func setStateGauge(name string, state gobreaker.State) {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValues[state])
}
