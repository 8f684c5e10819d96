package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payhook/internal/config"
	"payhook/internal/logger"
	pkgerrors "payhook/pkg/errors"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		status Status
		valid  bool
		done   bool
	}{
		{StatusReceived, true, false},
		{StatusProcessing, true, false},
		{StatusCompleted, true, true},
		{StatusProcessed, true, true},
		{StatusError, true, false},
		{StatusIgnored, true, true},
		{StatusSkipped, true, true},
		{Status("N/A"), false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.status.Valid())
			assert.Equal(t, tt.done, tt.status.Done())
		})
	}
}

func TestReprocessable(t *testing.T) {
	assert.Equal(t, []Status{StatusReceived, StatusProcessing}, Reprocessable(false))
	assert.Equal(t, []Status{StatusReceived, StatusProcessing, StatusError}, Reprocessable(true))
}

func TestMemoryRepository_ClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	reprocessable := Reprocessable(false)

	entry, claimed, err := repo.Claim(ctx, Record{EventID: "evt_1", EventType: "invoice.paid"}, reprocessable)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, StatusProcessing, entry.Status)
	assert.Equal(t, 1, entry.Attempts)

	// A crashed attempt left the row processing; the next delivery takes over.
	entry, claimed, err = repo.Claim(ctx, Record{EventID: "evt_1", EventType: "invoice.paid"}, reprocessable)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, 2, entry.Attempts)

	_, err = repo.Upsert(ctx, Record{EventID: "evt_1", Status: StatusProcessed, TransactionID: "T1"})
	require.NoError(t, err)

	entry, claimed, err = repo.Claim(ctx, Record{EventID: "evt_1"}, reprocessable)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, StatusProcessed, entry.Status)
	assert.Equal(t, "T1", entry.TransactionID)
	assert.Equal(t, "invoice.paid", entry.EventType)
	require.NotNil(t, entry.ProcessedAt)

	requeued, err := repo.Requeue(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, requeued.Status)
	assert.Nil(t, requeued.ProcessedAt)

	_, claimed, err = repo.Claim(ctx, Record{EventID: "evt_1"}, reprocessable)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestMemoryRepository_ErrorStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	_, err := repo.Upsert(ctx, Record{EventID: "EV1", Status: StatusError, Notes: "[]"})
	require.NoError(t, err)

	_, claimed, err := repo.Claim(ctx, Record{EventID: "EV1"}, Reprocessable(false))
	require.NoError(t, err)
	assert.False(t, claimed)

	_, claimed, err = repo.Claim(ctx, Record{EventID: "EV1"}, Reprocessable(true))
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestMemoryRepository_UpsertKeepsIDsAndValidates(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	id, err := repo.Upsert(ctx, Record{EventID: "EV1", EventType: "payments.confirmed", Status: StatusProcessing, ConstituentID: "C1"})
	require.NoError(t, err)

	again, err := repo.Upsert(ctx, Record{EventID: "EV1", Status: StatusProcessed, TransactionID: "T1"})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	entry, err := repo.FindLatest(ctx, "EV1", "")
	require.NoError(t, err)
	assert.Equal(t, "C1", entry.ConstituentID)
	assert.Equal(t, "T1", entry.TransactionID)
	assert.Equal(t, "payments.confirmed", entry.EventType)

	_, err = repo.Upsert(ctx, Record{EventID: "EV2", Status: Status("bogus")})
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = repo.Upsert(ctx, Record{Status: StatusProcessed})
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestMemoryRepository_FindLatestAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	for _, rec := range []Record{
		{EventID: "a", EventType: "invoice.paid", Status: StatusProcessed},
		{EventID: "b", EventType: "invoice.paid", Status: StatusError},
		{EventID: "c", EventType: "checkout.session.completed", Status: StatusCompleted},
	} {
		_, err := repo.Upsert(ctx, rec)
		require.NoError(t, err)
	}

	latest, err := repo.FindLatest(ctx, "", "invoice.paid")
	require.NoError(t, err)
	assert.Equal(t, "b", latest.EventID)

	_, err = repo.FindLatest(ctx, "missing", "")
	assert.True(t, pkgerrors.IsNotFound(err))

	_, err = repo.FindLatest(ctx, "", "")
	assert.True(t, pkgerrors.IsValidation(err))

	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].EventID)

	errored, err := repo.List(ctx, Filter{Status: StatusError})
	require.NoError(t, err)
	require.Len(t, errored, 1)
	assert.Equal(t, "b", errored[0].EventID)

	page, err := repo.List(ctx, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].EventID)
}

func TestService_UpsertSwallowsFailures(t *testing.T) {
	repo := NewMemoryRepository()
	repo.Err = errors.New("connection refused")
	svc := NewService(repo, logger.NopLogger(), true, false)

	id := svc.Upsert(context.Background(), Record{EventID: "EV1", Status: StatusProcessed})
	assert.Empty(t, id)
}

func TestService_TestFlag(t *testing.T) {
	tests := []struct {
		name       string
		production bool
		want       bool
	}{
		{name: "production", production: true, want: false},
		{name: "staging", production: false, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMemoryRepository()
			svc := NewService(repo, logger.NopLogger(), tt.production, false)

			entry, claimed, err := svc.Claim(context.Background(), "EV1", "payments.confirmed")
			require.NoError(t, err)
			assert.True(t, claimed)
			assert.Equal(t, tt.want, entry.TestFlag)

			require.NotEmpty(t, svc.Upsert(context.Background(), Record{EventID: "EV1", Status: StatusProcessed, TestFlag: !tt.want}))
			entry, err = svc.FindLatest(context.Background(), "EV1", "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, entry.TestFlag)
		})
	}
}

func TestCircuitBreakerRepository_NotFoundDoesNotTrip(t *testing.T) {
	repo := NewCircuitBreakerRepository(NewMemoryRepository(), config.CircuitBreakerConfig{
		Enabled:      true,
		FailureRatio: 0.5,
		MinRequests:  2,
	})

	for i := 0; i < 5; i++ {
		_, err := repo.FindLatest(context.Background(), "missing", "")
		require.True(t, pkgerrors.IsNotFound(err))
	}
	assert.Equal(t, "closed", repo.State())

	entry, claimed, err := repo.Claim(context.Background(), Record{EventID: "EV1"}, Reprocessable(false))
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, "EV1", entry.EventID)
}

func TestCircuitBreakerRepository_Disabled(t *testing.T) {
	repo := NewCircuitBreakerRepository(NewMemoryRepository(), config.CircuitBreakerConfig{})
	assert.Equal(t, "disabled", repo.State())

	id, err := repo.Upsert(context.Background(), Record{EventID: "EV1", Status: StatusIgnored})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()

	release, ok, err := locker.Acquire(ctx, "evt_1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.Acquire(ctx, "evt_1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = locker.Acquire(ctx, "evt_2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	release()
	release()

	_, ok, err = locker.Acquire(ctx, "evt_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLocker_Expiry(t *testing.T) {
	locker := NewMemoryLocker()
	now := time.Now()
	locker.now = func() time.Time { return now }

	staleRelease, ok, _ := locker.Acquire(context.Background(), "evt_1", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = locker.Acquire(context.Background(), "evt_1", time.Second)
	require.True(t, ok)

	// The expired holder must not release the new holder's lock.
	staleRelease()
	_, ok, _ = locker.Acquire(context.Background(), "evt_1", time.Second)
	assert.False(t, ok)
}
