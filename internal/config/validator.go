package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateApp(cfg.App, cfg.Regions); err != nil {
		errors = append(errors, err)
	}

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateRouting(cfg.Routing); err != nil {
		errors = append(errors, err)
	}

	if err := validateBilling(cfg.Billing); err != nil {
		errors = append(errors, err)
	}

	errors = append(errors, validateRegions(cfg.Regions)...)

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateApp(cfg AppConfig, regions map[string]RegionConfig) error {
	if cfg.DefaultRegion == "" {
		return &ValidationError{
			Field:   "app.default_region",
			Message: "default region is required",
		}
	}

	if _, ok := regions[cfg.DefaultRegion]; !ok {
		return &ValidationError{
			Field:   "app.default_region",
			Message: fmt.Sprintf("default region %q has no regions.%s block", cfg.DefaultRegion, cfg.DefaultRegion),
		}
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	if cfg.MaxBodyBytes < 0 {
		return &ValidationError{
			Field:   "server.max_body_bytes",
			Message: "max body size must be non-negative",
		}
	}

	return nil
}

// validateBroker accepts an empty broker list: alerts then go to the log only
// and the replay command is unavailable.
func validateBroker(cfg BrokerConfig) error {
	if cfg.Type != "" && cfg.Type != "kafka" {
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka)", cfg.Type),
		}
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return nil
	}

	return validateKafka(cfg.Kafka)
}

func validateKafka(cfg KafkaConfig) error {
	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.AlertsTopic == "" {
		return &ValidationError{
			Field:   "broker.kafka.alerts_topic",
			Message: "alerts topic is required when brokers are configured",
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.multiplier",
			Message: "multiplier must be non-negative",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if err := validatePostgres(cfg.Postgres); err != nil {
		return err
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required for the event ledger",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateRouting(cfg RoutingConfig) error {
	if cfg.LockTTLSeconds < 0 {
		return &ValidationError{
			Field:   "routing.lock_ttl_seconds",
			Message: "lock TTL must be non-negative",
		}
	}

	for i, rule := range cfg.IgnoreRules {
		if strings.TrimSpace(rule.Expression) == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("routing.ignore_rules[%d].expression", i),
				Message: "ignore rule expression cannot be empty",
			}
		}
	}

	return nil
}

func validateBilling(cfg BillingConfig) error {
	if cfg.MetadataCeiling < 0 {
		return &ValidationError{
			Field:   "billing.metadata_ceiling",
			Message: "metadata ceiling must be non-negative",
		}
	}

	for field, raw := range map[string]string{"billing.redirect_uri": cfg.RedirectURI, "billing.exit_uri": cfg.ExitURI} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &ValidationError{
				Field:   field,
				Message: fmt.Sprintf("must be an absolute URL, got %q", raw),
			}
		}
	}

	return nil
}

func validateRegions(regions map[string]RegionConfig) []error {
	var errs []error

	if len(regions) == 0 {
		return []error{&ValidationError{
			Field:   "regions",
			Message: "at least one region is required",
		}}
	}

	for name, region := range regions {
		if name != RegionUK && name != RegionUS {
			errs = append(errs, &ValidationError{
				Field:   "regions." + name,
				Message: fmt.Sprintf("unknown region (supported: %s, %s)", RegionUK, RegionUS),
			})
			continue
		}

		if region.CRM.BaseURL == "" {
			errs = append(errs, &ValidationError{
				Field:   "regions." + name + ".crm.base_url",
				Message: "CRM base URL is required",
			})
		}

		env := strings.ToLower(region.GoCardless.Environment)
		if env != "" && env != "sandbox" && env != "live" {
			errs = append(errs, &ValidationError{
				Field:   "regions." + name + ".gocardless.environment",
				Message: fmt.Sprintf("invalid environment: %s (valid: sandbox, live)", region.GoCardless.Environment),
			})
		}
	}

	return errs
}
