package tracing

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// KindHeader carries the envelope kind so consumers can tag spans before
// decoding the body.
const KindHeader = "payhook-kind"

const kafkaTracer = "payhook-kafka"

// MessageHeaders builds the headers for an outbound envelope of the given kind.
func MessageHeaders(ctx context.Context, kind string) []kafka.Header {
	headers := []kafka.Header{{Key: KindHeader, Value: []byte(kind)}}
	return InjectTraceContext(ctx, headers)
}

// InjectTraceContext writes the span context of ctx into headers.
func InjectTraceContext(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := &headerCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.headers
}

func ExtractTraceContext(ctx context.Context, headers []kafka.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, &headerCarrier{headers: headers})
}

// StartConsumeSpan continues the producer's trace for a message read from topic.
func StartConsumeSpan(ctx context.Context, topic string, headers []kafka.Header) (context.Context, trace.Span) {
	carrier := &headerCarrier{headers: headers}
	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)
	return GetTracer(kafkaTracer).Start(ctx, "consume "+topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", topic),
			attribute.String("payhook.message.kind", carrier.Get(KindHeader)),
		),
	)
}

type headerCarrier struct {
	headers []kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, len(c.headers))
	for i, h := range c.headers {
		keys[i] = h.Key
	}
	return keys
}
