package cel

// IgnoreRuleExamples are expressions operators commonly configure under
// routing.ignore_rules.
var IgnoreRuleExamples = map[string]string{
	"test_mode_stripe":       `provider == "stripe" && !livemode`,
	"customer_events":        `event_type.startsWith("customer.")`,
	"unknown_family":         `family == "unknown"`,
	"us_region":              `region == "us"`,
	"zero_amount_checkout":   `event_type == "checkout.session.completed" && has(payload.amount_total) && double(payload.amount_total) == 0.0`,
	"gocardless_payouts":     `provider == "gocardless" && event_type.startsWith("payouts.")`,
	"unsupported_currencies": `currency != "" && !(currency in ["gbp", "eur", "nok", "usd"])`,
}
