package logging

import (
	"context"
)

type ctxKey string

const (
	TraceIDKey     = "trace_id"
	RequestIDKey   = "request_id"
	EventIDKey     = "event_id"
	ProviderKey    = "provider"
	ServiceNameKey = "service_name"
)

func with(ctx context.Context, key, value string) context.Context {
	return context.WithValue(ctx, ctxKey(key), value)
}

func get(ctx context.Context, key string) string {
	if v, ok := ctx.Value(ctxKey(key)).(string); ok {
		return v
	}
	return ""
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return with(ctx, TraceIDKey, traceID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return with(ctx, RequestIDKey, requestID)
}

// WithEvent tags ctx with the provider event being processed.
func WithEvent(ctx context.Context, provider, eventID string) context.Context {
	return with(with(ctx, ProviderKey, provider), EventIDKey, eventID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return with(ctx, ServiceNameKey, serviceName)
}

func GetTraceID(ctx context.Context) string {
	return get(ctx, TraceIDKey)
}

func GetRequestID(ctx context.Context) string {
	return get(ctx, RequestIDKey)
}

func GetEventID(ctx context.Context) string {
	return get(ctx, EventIDKey)
}

func GetServiceName(ctx context.Context) string {
	return get(ctx, ServiceNameKey)
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 10)

	for _, key := range []string{TraceIDKey, RequestIDKey, ProviderKey, EventIDKey, ServiceNameKey} {
		if v := get(ctx, key); v != "" {
			fields = append(fields, key, v)
		}
	}

	return fields
}
