package crm

import (
	"context"
	"time"

	"payhook/internal/constants"
	"payhook/pkg/metrics"
)

type preferencesResult struct {
	prefs *Preferences
	err   error
}

// LookupPreferences fetches a constituent's preferences, giving up after
// timeout. A timeout yields (nil, nil): callers treat preferences as unknown
// and carry on. The underlying request is cancelled when the timer wins.
func LookupPreferences(ctx context.Context, client Client, constituentID string, timeout time.Duration) (*Preferences, error) {
	if timeout <= 0 {
		timeout = constants.PreferenceLookupTimeout
	}

	lookupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan preferencesResult, 1)
	go func() {
		prefs, err := client.GetPreferences(lookupCtx, constituentID)
		done <- preferencesResult{prefs: prefs, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.prefs, res.err
	case <-timer.C:
		metrics.PreferenceLookupTimeoutsTotal.Inc()
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
