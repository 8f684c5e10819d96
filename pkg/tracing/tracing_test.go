package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"payhook/internal/config"
)

func TestInit_Disabled(t *testing.T) {
	tp, err := Init(config.TracingConfig{}, "payhook-service")
	require.NoError(t, err)
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()
}

func TestSampler(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SamplerConfig
		want string
	}{
		{"default", config.SamplerConfig{}, "AlwaysOnSampler"},
		{"off", config.SamplerConfig{Type: "always_off"}, "AlwaysOffSampler"},
		{"ratio", config.SamplerConfig{Type: "traceidratio", Param: 0.5}, "TraceIDRatioBased{0.5}"},
		{"parent ratio", config.SamplerConfig{Type: "parentbased_traceidratio", Param: 0.5}, "ParentBased{root:TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, Sampler(tt.cfg).Description(), tt.want)
		})
	}
}

func TestEndSpan_RecordsError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	ctx, span := tp.Tracer("test").Start(context.Background(), "route")
	assert.NotEmpty(t, TraceID(ctx))
	EndSpan(span, errors.New("crm unavailable"))

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, otelcodes.Error, ended[0].Status().Code)
	assert.Equal(t, "crm unavailable", ended[0].Status().Description)

	assert.Empty(t, TraceID(context.Background()))
}
