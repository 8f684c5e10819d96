package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Total number of inbound webhook deliveries by provider and HTTP status class (count)",
		},
		[]string{"provider", "status"},
	)

	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of routed events by provider, family and resulting ledger status (count)",
		},
		[]string{"provider", "family", "status"},
	)

	WebhookProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_processing_duration_ms",
			Help:    "End-to-end event routing duration in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"provider", "family"},
	)

	StepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_steps_total",
			Help: "Total number of orchestrated steps by name and outcome (count)",
		},
		[]string{"step", "status"},
	)

	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_step_duration_ms",
			Help:    "Duration of a single orchestrated external call in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"step"},
	)

	InFlightConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_in_flight_conflicts_total",
			Help: "Total number of deliveries rejected because the same event was already being processed (count)",
		},
	)

	IgnoreRuleMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_ignore_rule_matches_total",
			Help: "Total number of events dropped by an ignore rule (count)",
		},
		[]string{"rule"},
	)

	MetadataTrimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadata_trims_total",
			Help: "Total number of field groups removed to fit the metadata budget (count)",
		},
		[]string{"group"},
	)

	LedgerOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Total number of ledger operations by kind and outcome (count)",
		},
		[]string{"operation", "status"},
	)

	LedgerOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_ms",
			Help:    "Duration of ledger operations in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"operation"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "failure_notifications_total",
			Help: "Total number of failure notifications by outcome (count)",
		},
		[]string{"status"},
	)

	ExternalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "external_requests_total",
			Help: "Total number of requests to CRM and payment providers (count)",
		},
		[]string{"service", "region", "status"},
	)

	ExternalRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "external_request_duration_ms",
			Help:    "Duration of requests to CRM and payment providers in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"service", "region"},
	)

	PreferenceLookupTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_preference_lookup_timeouts_total",
			Help: "Total number of CRM preference lookups abandoned after the local deadline (count)",
		},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)
)

func RegisterWebhookMetrics() {
	prometheus.MustRegister(WebhookDeliveriesTotal)
	prometheus.MustRegister(WebhookEventsTotal)
	prometheus.MustRegister(WebhookProcessingDuration)
	prometheus.MustRegister(StepsTotal)
	prometheus.MustRegister(StepDuration)
	prometheus.MustRegister(InFlightConflictsTotal)
	prometheus.MustRegister(IgnoreRuleMatchesTotal)
	prometheus.MustRegister(MetadataTrimsTotal)
	prometheus.MustRegister(LedgerOperationsTotal)
	prometheus.MustRegister(LedgerOperationDuration)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(ExternalRequestsTotal)
	prometheus.MustRegister(ExternalRequestDuration)
	prometheus.MustRegister(PreferenceLookupTimeoutsTotal)
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func ObserveWebhookDuration(provider, family string, duration time.Duration) {
	WebhookProcessingDuration.WithLabelValues(provider, family).Observe(float64(duration.Milliseconds()))
}

func IncWebhookEvent(provider, family, status string) {
	WebhookEventsTotal.WithLabelValues(provider, family, status).Inc()
}

func ObserveStep(step, status string, duration time.Duration) {
	StepsTotal.WithLabelValues(step, status).Inc()
	StepDuration.WithLabelValues(step).Observe(float64(duration.Milliseconds()))
}

func IncMetadataTrim(group string) {
	MetadataTrimsTotal.WithLabelValues(group).Inc()
}

func ObserveLedgerOperation(operation, status string, duration time.Duration) {
	LedgerOperationsTotal.WithLabelValues(operation, status).Inc()
	LedgerOperationDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func ObserveExternalRequest(service, region, status string, duration time.Duration) {
	ExternalRequestsTotal.WithLabelValues(service, region, status).Inc()
	ExternalRequestDuration.WithLabelValues(service, region).Observe(float64(duration.Milliseconds()))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}
