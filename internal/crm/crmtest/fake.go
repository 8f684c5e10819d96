// Package crmtest provides an in-memory crm.Client that records calls.
package crmtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"payhook/internal/crm"
)

type Call struct {
	Method string
	Args   []interface{}
}

// Fake is a crm.Client. Set Errors[method] to make a method fail.
type Fake struct {
	mu sync.Mutex

	Calls      []Call
	Errors     map[string]error
	Candidates []crm.Candidate
	Prefs      *crm.Preferences
	PrefsDelay time.Duration

	nextID int
}

func New() *Fake {
	return &Fake{Errors: map[string]error{}}
}

func (f *Fake) record(method string, args ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Method: method, Args: args})
	return f.Errors[method]
}

func (f *Fake) newID(prefix string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return fmt.Sprintf("%s%d", prefix, f.nextID)
}

// Methods lists recorded method names in call order.
func (f *Fake) Methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		out = append(out, c.Method)
	}
	return out
}

// CallsTo returns the recorded calls of method.
func (f *Fake) CallsTo(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *Fake) DuplicateCheck(ctx context.Context, person crm.Person) ([]crm.Candidate, error) {
	if err := f.record("DuplicateCheck", person); err != nil {
		return nil, err
	}
	return f.Candidates, nil
}

func (f *Fake) CreateConstituent(ctx context.Context, person crm.Person) (string, error) {
	if err := f.record("CreateConstituent", person); err != nil {
		return "", err
	}
	return f.newID("C"), nil
}

func (f *Fake) UpdateConstituent(ctx context.Context, id string, person crm.Person) error {
	return f.record("UpdateConstituent", id, person)
}

func (f *Fake) GetPreferences(ctx context.Context, constituentID string) (*crm.Preferences, error) {
	if err := f.record("GetPreferences", constituentID); err != nil {
		return nil, err
	}
	if f.PrefsDelay > 0 {
		select {
		case <-time.After(f.PrefsDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.Prefs, nil
}

func (f *Fake) UpdatePreferences(ctx context.Context, constituentID string, prefs crm.Preferences) error {
	return f.record("UpdatePreferences", constituentID, prefs)
}

func (f *Fake) AddActivity(ctx context.Context, activity crm.Activity) (string, error) {
	if err := f.record("AddActivity", activity); err != nil {
		return "", err
	}
	return f.newID("A"), nil
}

func (f *Fake) AddActiveTags(ctx context.Context, constituentID string, tags []string) error {
	return f.record("AddActiveTags", constituentID, tags)
}

func (f *Fake) RemoveTag(ctx context.Context, constituentID, tag string) error {
	return f.record("RemoveTag", constituentID, tag)
}

func (f *Fake) CreateTransaction(ctx context.Context, tx crm.Transaction) (string, error) {
	if err := f.record("CreateTransaction", tx); err != nil {
		return "", err
	}
	return f.newID("T"), nil
}

func (f *Fake) DeleteConstituent(ctx context.Context, constituentID string) error {
	return f.record("DeleteConstituent", constituentID)
}

func (f *Fake) DeleteTransaction(ctx context.Context, transactionID string) error {
	return f.record("DeleteTransaction", transactionID)
}

var _ crm.Client = (*Fake)(nil)
