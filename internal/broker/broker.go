// Package broker moves envelopes over Kafka: alerts out to the notification
// topic and replayed webhook bodies in from the replay topic.
package broker

import (
	"context"
	"fmt"

	"payhook/internal/config"
	"payhook/internal/logger"
	"payhook/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, msg models.MessageEnvelope) error
	Close() error
}

// Consumer reads one topic in the background until ctx is cancelled. A
// handler error is retried per the configured policy, then the message is
// parked on the DLQ.
type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, msg models.MessageEnvelope) error

// Enabled reports whether a broker is configured. Without one, alerts are
// only logged and the replay consumer does not run.
func Enabled(cfg config.BrokerConfig) bool {
	return len(cfg.Kafka.Brokers) > 0
}

func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	if err := checkType(cfg); err != nil {
		return nil, err
	}
	return NewKafkaProducer(cfg.Kafka, log), nil
}

func NewConsumer(cfg config.BrokerConfig, log logger.Logger) (Consumer, error) {
	if err := checkType(cfg); err != nil {
		return nil, err
	}
	return NewKafkaConsumer(cfg.Kafka, log), nil
}

func checkType(cfg config.BrokerConfig) error {
	switch cfg.Type {
	case "kafka", "":
		if !Enabled(cfg) {
			return fmt.Errorf("no kafka brokers configured")
		}
		return nil
	}
	return fmt.Errorf("unknown broker type: %s", cfg.Type)
}
