package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetLogFields(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithEvent(ctx, "stripe", "evt_1")

	assert.Equal(t, []interface{}{
		"request_id", "req-1",
		"provider", "stripe",
		"event_id", "evt_1",
	}, GetLogFields(ctx))
	assert.Equal(t, "evt_1", GetEventID(ctx))
	assert.Empty(t, GetTraceID(ctx))
}

func TestKeysDoNotCollideWithPlainStrings(t *testing.T) {
	ctx := context.WithValue(context.Background(), "event_id", "plain")
	assert.Empty(t, GetEventID(ctx))
}
