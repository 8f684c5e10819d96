// Package ledger records every provider event this service has seen and
// guards against processing one twice.
package ledger

import (
	"time"
)

type Status string

const (
	StatusReceived   Status = "received"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusProcessed  Status = "processed"
	StatusError      Status = "error"
	StatusIgnored    Status = "ignored"
	StatusSkipped    Status = "skipped"
)

func (s Status) Valid() bool {
	switch s {
	case StatusReceived, StatusProcessing, StatusCompleted, StatusProcessed,
		StatusError, StatusIgnored, StatusSkipped:
		return true
	}
	return false
}

// Done reports statuses after which an event is never processed again on
// redelivery.
func (s Status) Done() bool {
	switch s {
	case StatusCompleted, StatusProcessed, StatusIgnored, StatusSkipped:
		return true
	}
	return false
}

// Reprocessable lists the statuses a redelivered event may be claimed from.
// processing is included so that an attempt interrupted by a crash is picked
// up again; concurrent deliveries are excluded by the event lock.
func Reprocessable(retryErrored bool) []Status {
	statuses := []Status{StatusReceived, StatusProcessing}
	if retryErrored {
		statuses = append(statuses, StatusError)
	}
	return statuses
}

type Entry struct {
	ID                string     `json:"id"`
	EventID           string     `json:"event_id"`
	EventType         string     `json:"event_type"`
	Status            Status     `json:"status"`
	Notes             string     `json:"notes"`
	ConstituentID     string     `json:"constituent_id,omitempty"`
	GatewayCustomerID string     `json:"gateway_customer_id,omitempty"`
	SubscriptionID    string     `json:"subscription_id,omitempty"`
	TransactionID     string     `json:"transaction_id,omitempty"`
	TestFlag          bool       `json:"test_flag"`
	Attempts          int        `json:"attempts"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Record is a write to the ledger. Empty ids leave the stored values alone.
type Record struct {
	EventID           string
	EventType         string
	Status            Status
	Notes             string
	ConstituentID     string
	GatewayCustomerID string
	SubscriptionID    string
	TransactionID     string
	TestFlag          bool
}

type Filter struct {
	EventID   string
	EventType string
	Status    Status
	Limit     int
	Offset    int
}
