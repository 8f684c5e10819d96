package models

import "time"

const (
	KindAlert  = "alert"
	KindReplay = "replay"
)

// Payload keys.
const (
	FieldMessage  = "message"
	FieldStack    = "stack"
	FieldContext  = "context"
	FieldProvider = "provider"
	FieldRegion   = "region"
	FieldBody     = "body"
)

type MessageEnvelope struct {
	ID        string                 `json:"id"`
	Kind      string                 `json:"kind"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
	Metadata  Metadata               `json:"metadata"`
}

type Metadata struct {
	TraceID  string   `json:"trace_id,omitempty"`
	EventID  string   `json:"event_id,omitempty"`
	Provider string   `json:"provider,omitempty"`
	Region   string   `json:"region,omitempty"`
	Attempt  int      `json:"attempt,omitempty"`
	DLQ      *DLQInfo `json:"dlq,omitempty"`
}

// DLQInfo is attached when a replay could not be processed.
type DLQInfo struct {
	Reason      string    `json:"reason"`
	SourceTopic string    `json:"source_topic"`
	FailedAt    time.Time `json:"failed_at"`
}
