package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerRegistry_Check(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	failing := func(ctx context.Context) error { return errors.New("down") }

	tests := []struct {
		name     string
		critical []func(ctx context.Context) error
		optional []func(ctx context.Context) error
		want     Status
	}{
		{name: "no checks", want: StatusHealthy},
		{name: "all healthy", critical: []func(ctx context.Context) error{ok}, optional: []func(ctx context.Context) error{ok}, want: StatusHealthy},
		{name: "optional failing", critical: []func(ctx context.Context) error{ok}, optional: []func(ctx context.Context) error{failing}, want: StatusDegraded},
		{name: "critical failing", critical: []func(ctx context.Context) error{failing}, optional: []func(ctx context.Context) error{failing}, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			for i, fn := range tt.critical {
				r.Register(NewFuncChecker("critical-"+string(rune('a'+i)), fn))
			}
			for i, fn := range tt.optional {
				r.RegisterOptional(NewFuncChecker("optional-"+string(rune('a'+i)), fn))
			}

			h := r.Check(context.Background())
			assert.Equal(t, tt.want, h.Status)
			assert.Len(t, h.Checks, len(tt.critical)+len(tt.optional))
		})
	}
}

func TestCheckerRegistry_TimesOutSlowChecks(t *testing.T) {
	r := NewCheckerRegistry()
	r.timeout = 20 * time.Millisecond
	r.RegisterOptional(NewFuncChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	h := r.Check(context.Background())
	assert.Equal(t, StatusDegraded, h.Status)
	assert.Contains(t, h.Checks["slow"].Message, "deadline exceeded")
}

func TestCheckerRegistry_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := NewCheckerRegistry()
	r.Register(NewFuncChecker("postgresql", func(ctx context.Context) error { return errors.New("connection refused") }))

	engine := gin.New()
	engine.GET("/health", r.Handler())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var h Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, "connection refused", h.Checks["postgresql"].Message)
}
