package cel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventVars(eventType, provider, family, currency string, livemode bool, payload map[string]interface{}) map[string]interface{} {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return map[string]interface{}{
		"id":         "evt_1",
		"event_type": eventType,
		"provider":   provider,
		"family":     family,
		"region":     "uk",
		"currency":   currency,
		"livemode":   livemode,
		"payload":    payload,
	}
}

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestValidateExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{
			name:      "valid simple expression",
			expr:      `event_type == "invoice.paid"`,
			wantError: false,
		},
		{
			name:      "valid payload access",
			expr:      `payload.amount_total > 100.0`,
			wantError: false,
		},
		{
			name:      "invalid expression",
			expr:      `invalid syntax here!!!`,
			wantError: true,
		},
		{
			name:      "undefined variable",
			expr:      `source == "api"`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFilterExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{
			name:      "valid bool expression",
			expr:      `family == "checkout"`,
			wantError: false,
		},
		{
			name:      "non-bool expression",
			expr:      `currency`,
			wantError: true,
		},
		{
			name:      "valid startsWith",
			expr:      `event_type.startsWith("customer.")`,
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateFilterExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIgnoreRuleExamplesCompile(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	for name, expr := range IgnoreRuleExamples {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, eval.ValidateFilterExpression(expr))
		})
	}
}

func TestEvaluateFilter(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name string
		expr string
		vars map[string]interface{}
		want bool
	}{
		{
			name: "test mode stripe event",
			expr: IgnoreRuleExamples["test_mode_stripe"],
			vars: eventVars("invoice.paid", "stripe", "invoice", "gbp", false, nil),
			want: true,
		},
		{
			name: "live stripe event",
			expr: IgnoreRuleExamples["test_mode_stripe"],
			vars: eventVars("invoice.paid", "stripe", "invoice", "gbp", true, nil),
			want: false,
		},
		{
			name: "zero amount checkout",
			expr: IgnoreRuleExamples["zero_amount_checkout"],
			vars: eventVars("checkout.session.completed", "stripe", "checkout", "gbp", true, map[string]interface{}{"amount_total": float64(0)}),
			want: true,
		},
		{
			name: "checkout without amount",
			expr: IgnoreRuleExamples["zero_amount_checkout"],
			vars: eventVars("checkout.session.completed", "stripe", "checkout", "gbp", true, nil),
			want: false,
		},
		{
			name: "unsupported currency",
			expr: IgnoreRuleExamples["unsupported_currencies"],
			vars: eventVars("invoice.paid", "stripe", "invoice", "jpy", true, nil),
			want: true,
		},
		{
			name: "no currency",
			expr: IgnoreRuleExamples["unsupported_currencies"],
			vars: eventVars("mandates.created", "gocardless", "mandate", "", true, nil),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.EvaluateFilter(context.Background(), tt.expr, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRules_Match(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	rules, err := NewRules(eval, []Rule{
		{Name: "payouts", Expression: IgnoreRuleExamples["gocardless_payouts"]},
		{Expression: `family == "unknown"`},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rules.Len())

	name, ok, err := rules.Match(context.Background(), eventVars("payouts.paid", "gocardless", "unknown", "", true, nil))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "payouts", name)

	name, ok, err = rules.Match(context.Background(), eventVars("charge.refunded", "stripe", "unknown", "gbp", true, nil))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "rule_1", name)

	_, ok, err = rules.Match(context.Background(), eventVars("invoice.paid", "stripe", "invoice", "gbp", true, nil))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRules_EvaluationErrorDoesNotMatch(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	rules, err := NewRules(eval, []Rule{
		{Name: "needs_amount", Expression: `payload.amount_total == 0.0`},
		{Name: "livemode_off", Expression: `!livemode`},
	})
	require.NoError(t, err)

	_, ok, err := rules.Match(context.Background(), eventVars("invoice.paid", "stripe", "invoice", "gbp", true, nil))
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs_amount")

	name, ok, err := rules.Match(context.Background(), eventVars("invoice.paid", "stripe", "invoice", "gbp", false, nil))
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, "livemode_off", name)
}

func TestNewRules_InvalidExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	_, err = NewRules(eval, []Rule{{Name: "bad", Expression: `currency`}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestRules_Nil(t *testing.T) {
	var rules *Rules
	assert.Equal(t, 0, rules.Len())
	_, ok, err := rules.Match(context.Background(), nil)
	assert.False(t, ok)
	assert.NoError(t, err)
}
