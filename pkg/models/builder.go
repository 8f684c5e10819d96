package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageEnvelopeBuilder struct {
	envelope *MessageEnvelope
}

func NewMessageEnvelopeBuilder() *MessageEnvelopeBuilder {
	return &MessageEnvelopeBuilder{
		envelope: &MessageEnvelope{
			Payload:  make(map[string]interface{}),
			Metadata: Metadata{},
		},
	}
}

func (b *MessageEnvelopeBuilder) WithID(id string) *MessageEnvelopeBuilder {
	b.envelope.ID = id
	return b
}

func (b *MessageEnvelopeBuilder) WithKind(kind string) *MessageEnvelopeBuilder {
	b.envelope.Kind = kind
	return b
}

func (b *MessageEnvelopeBuilder) WithSource(source string) *MessageEnvelopeBuilder {
	b.envelope.Source = source
	return b
}

func (b *MessageEnvelopeBuilder) WithTimestamp(timestamp time.Time) *MessageEnvelopeBuilder {
	b.envelope.Timestamp = timestamp
	return b
}

func (b *MessageEnvelopeBuilder) WithPayloadField(name string, value interface{}) *MessageEnvelopeBuilder {
	b.envelope.SetPayloadField(name, value)
	return b
}

func (b *MessageEnvelopeBuilder) WithMetadata(metadata Metadata) *MessageEnvelopeBuilder {
	b.envelope.Metadata = metadata
	return b
}

func (b *MessageEnvelopeBuilder) WithTraceID(traceID string) *MessageEnvelopeBuilder {
	b.envelope.Metadata.TraceID = traceID
	return b
}

func (b *MessageEnvelopeBuilder) WithEvent(provider, region, eventID string) *MessageEnvelopeBuilder {
	b.envelope.Metadata.Provider = provider
	b.envelope.Metadata.Region = region
	b.envelope.Metadata.EventID = eventID
	return b
}

func (b *MessageEnvelopeBuilder) Build() *MessageEnvelope {
	if b.envelope.ID == "" {
		b.envelope.ID = uuid.NewString()
	}
	if b.envelope.Timestamp.IsZero() {
		b.envelope.Timestamp = time.Now().UTC()
	}
	return b.envelope
}

// NewAlert builds the failure notification published to the alerts topic.
func NewAlert(source, message, stack string, context map[string]interface{}) *MessageEnvelope {
	if context == nil {
		context = map[string]interface{}{}
	}
	return NewMessageEnvelopeBuilder().
		WithKind(KindAlert).
		WithSource(source).
		WithPayloadField(FieldMessage, message).
		WithPayloadField(FieldStack, stack).
		WithPayloadField(FieldContext, context).
		Build()
}

// NewReplay wraps a raw provider webhook body so the replay consumer can feed
// it back through the router.
func NewReplay(source, provider, region string, body []byte) *MessageEnvelope {
	return NewMessageEnvelopeBuilder().
		WithKind(KindReplay).
		WithSource(source).
		WithEvent(provider, region, "").
		WithPayloadField(FieldProvider, provider).
		WithPayloadField(FieldRegion, region).
		WithPayloadField(FieldBody, string(body)).
		Build()
}
