// Package notify sends best-effort failure notifications. A notification
// never fails the caller: delivery problems are logged and counted.
package notify

import (
	"context"
	"sync"
	"time"

	"payhook/internal/broker"
	"payhook/internal/config"
	"payhook/internal/constants"
	"payhook/internal/logger"
	"payhook/pkg/errors"
	"payhook/pkg/logging"
	"payhook/pkg/metrics"
	"payhook/pkg/models"
	"payhook/pkg/retry"
	"payhook/pkg/tracing"
)

const (
	statusSent   = "sent"
	statusFailed = "failed"
	statusLogged = "logged"
)

// Alert describes one failure. Context is copied into the published payload.
type Alert struct {
	Message string
	Err     error
	Context map[string]interface{}
}

func (a Alert) stack() string {
	if a.Err == nil {
		return ""
	}
	if s := errors.StackTrace(a.Err); s != "" {
		return s
	}
	return a.Err.Error()
}

type Notifier interface {
	Notify(ctx context.Context, alert Alert)
}

// LogNotifier only writes the alert to the log. It is used when no broker is
// configured.
type LogNotifier struct {
	logger logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

func (n *LogNotifier) Notify(ctx context.Context, alert Alert) {
	logAlert(ctx, n.logger, alert)
	metrics.NotificationsTotal.WithLabelValues(statusLogged).Inc()
}

// KafkaNotifier logs alerts and publishes them to the alerts topic in the
// background. Each publish, retries included, is bounded by timeout.
type KafkaNotifier struct {
	producer broker.Producer
	topic    string
	policy   retry.Policy
	timeout  time.Duration
	logger   logger.Logger
	pending  sync.WaitGroup
}

func NewKafkaNotifier(producer broker.Producer, cfg config.KafkaConfig, log logger.Logger) *KafkaNotifier {
	topic := cfg.AlertsTopic
	if topic == "" {
		topic = constants.DefaultAlertsTopic
	}
	return &KafkaNotifier{
		producer: producer,
		topic:    topic,
		policy:   retry.PolicyFromConfig(cfg.Retry),
		timeout:  constants.NotifyTimeout,
		logger:   log,
	}
}

func (n *KafkaNotifier) Notify(ctx context.Context, alert Alert) {
	logAlert(ctx, n.logger, alert)

	envelope := models.NewAlert(constants.ServiceName, alert.Message, alert.stack(), alert.Context)
	envelope.Metadata.TraceID = tracing.TraceID(ctx)
	if envelope.Metadata.TraceID == "" {
		envelope.Metadata.TraceID = logging.GetTraceID(ctx)
	}
	if id, ok := alert.Context["event_id"].(string); ok {
		envelope.Metadata.EventID = id
	}
	if p, ok := alert.Context["provider"].(string); ok {
		envelope.Metadata.Provider = p
	}

	// Detached from ctx so the alert still goes out after the failed
	// delivery's request is finished.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	n.pending.Add(1)
	go func() {
		defer n.pending.Done()
		defer cancel()
		n.publish(pubCtx, envelope)
	}()
}

func (n *KafkaNotifier) publish(ctx context.Context, envelope *models.MessageEnvelope) {
	err := retry.Retry(ctx, n.policy, func() error {
		return n.producer.Publish(ctx, n.topic, *envelope)
	})
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(statusFailed).Inc()
		n.logger.ErrorwCtx(ctx, "Failed to publish failure notification",
			"topic", n.topic,
			"alert_id", envelope.ID,
			"error", err,
		)
		return
	}
	metrics.NotificationsTotal.WithLabelValues(statusSent).Inc()
}

// Wait blocks until background publishes finish or ctx is done. Call it
// before closing the producer.
func (n *KafkaNotifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func logAlert(ctx context.Context, log logger.Logger, alert Alert) {
	if log == nil {
		return
	}
	fields := []interface{}{"alert", alert.Message}
	if alert.Err != nil {
		fields = append(fields, "error", alert.Err)
	}
	for k, v := range alert.Context {
		fields = append(fields, k, v)
	}
	log.ErrorwCtx(ctx, "Failure notification", fields...)
}

// New picks the Kafka notifier when a producer is available.
func New(producer broker.Producer, cfg config.BrokerConfig, log logger.Logger) Notifier {
	if producer == nil || !broker.Enabled(cfg) {
		return NewLogNotifier(log)
	}
	return NewKafkaNotifier(producer, cfg.Kafka, log)
}
