package ledger

import (
	"context"

	"payhook/internal/config"
	"payhook/pkg/circuitbreaker"
	pkgerrors "payhook/pkg/errors"
)

// CircuitBreakerRepository fails ledger calls fast while Postgres is down.
// Not-found and validation errors do not count as failures.
type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Wrapper
}

// NewCircuitBreakerRepository wraps repo. With the breaker disabled calls
// pass straight through.
func NewCircuitBreakerRepository(repo Repository, cfg config.CircuitBreakerConfig) *CircuitBreakerRepository {
	r := &CircuitBreakerRepository{repo: repo}
	if cfg.Enabled {
		cbConfig := circuitbreaker.FromConfig("postgres-ledger", cfg)
		cbConfig.IsSuccessful = func(err error) bool {
			return err == nil || pkgerrors.IsNotFound(err) || pkgerrors.IsValidation(err)
		}
		r.cb = circuitbreaker.NewWrapper(cbConfig)
	}
	return r
}

func (r *CircuitBreakerRepository) FindLatest(ctx context.Context, eventID, eventType string) (*Entry, error) {
	return circuitbreaker.Execute(ctx, r.cb, func() (*Entry, error) {
		return r.repo.FindLatest(ctx, eventID, eventType)
	})
}

func (r *CircuitBreakerRepository) Upsert(ctx context.Context, rec Record) (string, error) {
	return circuitbreaker.Execute(ctx, r.cb, func() (string, error) {
		return r.repo.Upsert(ctx, rec)
	})
}

type claimResult struct {
	entry   *Entry
	claimed bool
}

func (r *CircuitBreakerRepository) Claim(ctx context.Context, rec Record, reprocessable []Status) (*Entry, bool, error) {
	res, err := circuitbreaker.Execute(ctx, r.cb, func() (claimResult, error) {
		entry, claimed, err := r.repo.Claim(ctx, rec, reprocessable)
		return claimResult{entry: entry, claimed: claimed}, err
	})
	if err != nil {
		return nil, false, err
	}
	return res.entry, res.claimed, nil
}

func (r *CircuitBreakerRepository) Requeue(ctx context.Context, eventID string) (*Entry, error) {
	return circuitbreaker.Execute(ctx, r.cb, func() (*Entry, error) {
		return r.repo.Requeue(ctx, eventID)
	})
}

func (r *CircuitBreakerRepository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	return circuitbreaker.Execute(ctx, r.cb, func() ([]Entry, error) {
		return r.repo.List(ctx, filter)
	})
}

// State is the breaker state, or "disabled".
func (r *CircuitBreakerRepository) State() string {
	return r.cb.State()
}
