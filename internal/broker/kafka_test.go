package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payhook/internal/config"
	"payhook/internal/logger"
	"payhook/pkg/models"
)

type recordingProducer struct {
	mu        sync.Mutex
	published []models.MessageEnvelope
	topics    []string
	err       error
}

func (p *recordingProducer) Publish(ctx context.Context, topic string, msg models.MessageEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, msg)
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func testConsumer(dlq Producer) *KafkaConsumer {
	return &KafkaConsumer{
		cfg: config.KafkaConfig{
			DLQTopic: "payhook.replay.dlq",
			Retry: config.RetryConfig{
				MaxAttempts:     2,
				InitialInterval: time.Millisecond,
				MaxInterval:     time.Millisecond,
				Multiplier:      1,
			},
		},
		logger:      logger.NopLogger(),
		dlqProducer: dlq,
		serviceName: "test",
	}
}

func replayBytes(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(models.NewReplay("test", "stripe", "uk", []byte(`{"id":"evt_1"}`)))
	require.NoError(t, err)
	return body
}

func TestHandleMessage_Success(t *testing.T) {
	dlq := &recordingProducer{}
	c := testConsumer(dlq)

	var got models.MessageEnvelope
	c.handleMessage(context.Background(), "payhook.replay", replayBytes(t), nil, func(ctx context.Context, msg models.MessageEnvelope) error {
		got = msg
		return nil
	})

	assert.Equal(t, `{"id":"evt_1"}`, got.GetString(models.FieldBody))
	assert.Equal(t, 1, got.Metadata.Attempt)
	assert.Empty(t, dlq.published)
}

func TestHandleMessage_RetriesThenDLQ(t *testing.T) {
	dlq := &recordingProducer{}
	c := testConsumer(dlq)

	calls := 0
	c.handleMessage(context.Background(), "payhook.replay", replayBytes(t), nil, func(ctx context.Context, msg models.MessageEnvelope) error {
		calls++
		return errors.New("crm unavailable")
	})

	assert.Equal(t, 2, calls)
	require.Len(t, dlq.published, 1)
	assert.Equal(t, "payhook.replay.dlq", dlq.topics[0])
	require.NotNil(t, dlq.published[0].Metadata.DLQ)
	assert.Equal(t, "payhook.replay", dlq.published[0].Metadata.DLQ.SourceTopic)
	assert.Contains(t, dlq.published[0].Metadata.DLQ.Reason, "crm unavailable")
}

func TestHandleMessage_PanicIsRecovered(t *testing.T) {
	dlq := &recordingProducer{}
	c := testConsumer(dlq)

	assert.NotPanics(t, func() {
		c.handleMessage(context.Background(), "payhook.replay", replayBytes(t), nil, func(ctx context.Context, msg models.MessageEnvelope) error {
			panic("boom")
		})
	})
	assert.Len(t, dlq.published, 1)
}

func TestHandleMessage_DropsUndecodableAndInvalid(t *testing.T) {
	dlq := &recordingProducer{}
	c := testConsumer(dlq)

	called := false
	handler := func(ctx context.Context, msg models.MessageEnvelope) error {
		called = true
		return nil
	}

	c.handleMessage(context.Background(), "payhook.replay", []byte("not json"), nil, handler)
	c.handleMessage(context.Background(), "payhook.replay", []byte(`{"id":"m1","kind":"replay","source":"x","timestamp":"2026-01-01T00:00:00Z","payload":{}}`), nil, handler)

	assert.False(t, called)
	assert.Empty(t, dlq.published)
}

func TestHandleMessage_NoDLQ(t *testing.T) {
	c := testConsumer(nil)

	assert.NotPanics(t, func() {
		c.handleMessage(context.Background(), "payhook.replay", replayBytes(t), nil, func(ctx context.Context, msg models.MessageEnvelope) error {
			return errors.New("still failing")
		})
	})
}

func TestFactory(t *testing.T) {
	_, err := NewProducer(config.BrokerConfig{Type: "rabbitmq"}, logger.NopLogger())
	assert.Error(t, err)

	_, err = NewConsumer(config.BrokerConfig{Type: "kafka"}, logger.NopLogger())
	assert.Error(t, err)

	assert.False(t, Enabled(config.BrokerConfig{}))
	assert.True(t, Enabled(config.BrokerConfig{Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}}}))

	p, err := NewProducer(config.BrokerConfig{Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}}}, logger.NopLogger())
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
