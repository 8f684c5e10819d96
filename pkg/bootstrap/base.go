// Package bootstrap holds the startup and shutdown plumbing shared by the
// service and the operator commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"payhook/internal/broker"
	"payhook/internal/config"
	"payhook/internal/logger"
)

type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Producer broker.Producer
	Consumer broker.Consumer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{Config: cfg, Logger: log}
}

// InitBroker connects the alert producer and, with withConsumer, the replay
// consumer. Without configured brokers both stay nil.
func (b *Base) InitBroker(serviceName string, withConsumer bool) error {
	if !broker.Enabled(b.Config.Broker) {
		b.Logger.Info("No broker configured, alerts will be logged only")
		return nil
	}

	producer, err := broker.NewProducer(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}

	var consumer broker.Consumer
	if withConsumer {
		consumer, err = broker.NewConsumer(b.Config.Broker, b.Logger)
		if err != nil {
			_ = producer.Close()
			return fmt.Errorf("failed to create consumer: %w", err)
		}
		consumer.SetServiceName(serviceName)
	}

	b.Producer, b.Consumer = producer, consumer
	b.Logger.Infow("Broker connected",
		"brokers", b.Config.Broker.Kafka.Brokers,
		"consumer", withConsumer,
	)
	return nil
}

func (b *Base) closeBroker() error {
	var errs []error
	if b.Consumer != nil {
		if err := b.Consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close: %w", err))
		}
		b.Consumer = nil
	}
	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close: %w", err))
		}
		b.Producer = nil
	}
	return errors.Join(errs...)
}

// Shutdown runs the caller's hook first so in-flight requests can still
// publish alerts, then closes the broker.
func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	var errs []error
	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}
	errs = append(errs, b.closeBroker())

	if err := errors.Join(errs...); err != nil {
		b.Logger.Errorw("Shutdown finished with errors", "error", err)
		return fmt.Errorf("shutdown: %w", err)
	}
	b.Logger.Info("Shutdown complete")
	return nil
}
