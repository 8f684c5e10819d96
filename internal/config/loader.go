package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"payhook/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.default_region", RegionUK)
	viper.SetDefault("app.default_campaign", constants.DefaultCampaign)

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout_seconds", 30)
	viper.SetDefault("server.write_timeout_seconds", 30)
	viper.SetDefault("server.max_body_bytes", constants.DefaultMaxBodyBytes)

	viper.SetDefault("broker.type", "kafka")
	viper.SetDefault("broker.kafka.alerts_topic", constants.DefaultAlertsTopic)
	viper.SetDefault("broker.kafka.replay_topic", constants.DefaultReplayTopic)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("routing.lock_ttl_seconds", constants.DefaultLockTTLSeconds)
	viper.SetDefault("billing.metadata_ceiling", constants.DefaultMetadataCeiling)
}

func bindEnvVariables() {
	viper.BindEnv("app.environment", "APP_ENVIRONMENT")

	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.kafka.alerts_topic", "BROKER_KAFKA_ALERTS_TOPIC")
	viper.BindEnv("broker.kafka.replay_topic", "BROKER_KAFKA_REPLAY_TOPIC")
	viper.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("logging.level", "LOGGING_LEVEL")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")

	// Regional secrets are never expected in the YAML file.
	for _, region := range []string{RegionUK, RegionUS} {
		prefix := "REGIONS_" + strings.ToUpper(region) + "_"
		viper.BindEnv("regions."+region+".crm.api_key", prefix+"CRM_API_KEY")
		viper.BindEnv("regions."+region+".crm.access_key", prefix+"CRM_ACCESS_KEY")
		viper.BindEnv("regions."+region+".stripe.secret_key", prefix+"STRIPE_SECRET_KEY")
		viper.BindEnv("regions."+region+".stripe.webhook_secret", prefix+"STRIPE_WEBHOOK_SECRET")
		viper.BindEnv("regions."+region+".gocardless.access_token", prefix+"GOCARDLESS_ACCESS_TOKEN")
		viper.BindEnv("regions."+region+".gocardless.webhook_secret", prefix+"GOCARDLESS_WEBHOOK_SECRET")
	}
}

// applyEnvOverrides handles values viper cannot unmarshal from a single env
// string, and region secrets that viper does not surface through a map key.
func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	for name, region := range cfg.Regions {
		key := "regions." + name
		overrideString(&region.CRM.APIKey, key+".crm.api_key")
		overrideString(&region.CRM.AccessKey, key+".crm.access_key")
		overrideString(&region.Stripe.SecretKey, key+".stripe.secret_key")
		overrideString(&region.Stripe.WebhookSecret, key+".stripe.webhook_secret")
		overrideString(&region.GoCardless.AccessToken, key+".gocardless.access_token")
		overrideString(&region.GoCardless.WebhookSecret, key+".gocardless.webhook_secret")
		cfg.Regions[name] = region
	}

	return nil
}

func overrideString(dst *string, key string) {
	if v := viper.GetString(key); v != "" {
		*dst = v
	}
}
