package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"payhook/internal/constants"
	pkgerrors "payhook/pkg/errors"
)

// MemoryRepository is a Repository backed by a map. It follows the same
// claim semantics as PostgresRepository.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time

	// Err, when set, is returned by every call.
	Err error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

func (r *MemoryRepository) tick() time.Time {
	// Distinct timestamps keep FindLatest ordering deterministic.
	t := r.now().UTC()
	for _, e := range r.entries {
		if !t.After(e.UpdatedAt) {
			t = e.UpdatedAt.Add(time.Microsecond)
		}
	}
	return t
}

func (r *MemoryRepository) FindLatest(ctx context.Context, eventID, eventType string) (*Entry, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	if eventID == "" && eventType == "" {
		return nil, pkgerrors.ErrValidation.WithMessage("event id or event type is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *Entry
	for _, e := range r.entries {
		if eventID != "" && e.EventID != eventID {
			continue
		}
		if eventType != "" && e.EventType != eventType {
			continue
		}
		if latest == nil || e.UpdatedAt.After(latest.UpdatedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil, pkgerrors.ErrNotFound.WithMessage("no ledger entry found")
	}
	out := *latest
	return &out, nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, rec Record) (string, error) {
	if r.Err != nil {
		return "", r.Err
	}
	if rec.EventID == "" {
		return "", pkgerrors.ErrValidation.WithMessage("event id is required")
	}
	if !rec.Status.Valid() {
		return "", pkgerrors.ErrValidation.WithMessage(fmt.Sprintf("invalid status %q", rec.Status))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.tick()
	e, ok := r.entries[rec.EventID]
	if !ok {
		e = &Entry{ID: uuid.NewString(), EventID: rec.EventID, CreatedAt: now}
		r.entries[rec.EventID] = e
	}

	if rec.EventType != "" {
		e.EventType = rec.EventType
	}
	e.Status = rec.Status
	e.Notes = rec.Notes
	e.TestFlag = rec.TestFlag
	setIfPresent(&e.ConstituentID, rec.ConstituentID)
	setIfPresent(&e.GatewayCustomerID, rec.GatewayCustomerID)
	setIfPresent(&e.SubscriptionID, rec.SubscriptionID)
	setIfPresent(&e.TransactionID, rec.TransactionID)
	e.ProcessedAt = nil
	if rec.Status.Done() || rec.Status == StatusError {
		t := now
		e.ProcessedAt = &t
	}
	e.UpdatedAt = now

	return e.ID, nil
}

func setIfPresent(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (r *MemoryRepository) Claim(ctx context.Context, rec Record, reprocessable []Status) (*Entry, bool, error) {
	if r.Err != nil {
		return nil, false, r.Err
	}
	if rec.EventID == "" {
		return nil, false, pkgerrors.ErrValidation.WithMessage("event id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.tick()
	e, ok := r.entries[rec.EventID]
	if !ok {
		e = &Entry{
			ID:        uuid.NewString(),
			EventID:   rec.EventID,
			EventType: rec.EventType,
			Status:    StatusProcessing,
			TestFlag:  rec.TestFlag,
			Attempts:  1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		r.entries[rec.EventID] = e
		out := *e
		return &out, true, nil
	}

	if !containsStatus(reprocessable, e.Status) {
		out := *e
		return &out, false, nil
	}

	e.Status = StatusProcessing
	if rec.EventType != "" {
		e.EventType = rec.EventType
	}
	e.Attempts++
	e.UpdatedAt = now
	out := *e
	return &out, true, nil
}

func containsStatus(statuses []Status, s Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) Requeue(ctx context.Context, eventID string) (*Entry, error) {
	if r.Err != nil {
		return nil, r.Err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[eventID]
	if !ok {
		return nil, pkgerrors.ErrNotFound.WithMessage(fmt.Sprintf("event %s not found", eventID))
	}
	e.Status = StatusReceived
	e.ProcessedAt = nil
	e.UpdatedAt = r.tick()
	out := *e
	return &out, nil
}

func (r *MemoryRepository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if r.Err != nil {
		return nil, r.Err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := []Entry{}
	for _, e := range r.entries {
		if filter.EventID != "" && e.EventID != filter.EventID {
			continue
		}
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		entries = append(entries, *e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = constants.DefaultLimit
	}
	if limit > constants.MaxLimit {
		limit = constants.MaxLimit
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(entries) {
			return []Entry{}, nil
		}
		entries = entries[filter.Offset:]
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
