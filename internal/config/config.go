package config

import (
	"strings"
	"time"
)

const (
	EnvironmentProduction = "production"

	RegionUK = "uk"
	RegionUS = "us"
)

type Config struct {
	App            AppConfig               `mapstructure:"app"`
	Server         ServerConfig            `mapstructure:"server"`
	Database       DatabaseConfig          `mapstructure:"database"`
	Broker         BrokerConfig            `mapstructure:"broker"`
	Logging        LoggingConfig           `mapstructure:"logging"`
	CircuitBreaker CircuitBreakerConfig    `mapstructure:"circuit_breaker"`
	RateLimit      RateLimitConfig         `mapstructure:"rate_limit"`
	Tracing        TracingConfig           `mapstructure:"tracing"`
	Routing        RoutingConfig           `mapstructure:"routing"`
	Billing        BillingConfig           `mapstructure:"billing"`
	Regions        map[string]RegionConfig `mapstructure:"regions"`
}

type AppConfig struct {
	Environment     string `mapstructure:"environment"`
	DefaultRegion   string `mapstructure:"default_region"`
	DefaultCampaign string `mapstructure:"default_campaign"`
}

// IsProduction reports whether ledger rows are written with test_flag=false
// and non-subscription payments are skipped.
func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvironmentProduction)
}

type ServerConfig struct {
	Port                int   `mapstructure:"port"`
	ReadTimeoutSeconds  int   `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int   `mapstructure:"write_timeout_seconds"`
	MaxBodyBytes        int64 `mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers     []string    `mapstructure:"brokers"`
	GroupID     string      `mapstructure:"group_id"`
	AlertsTopic string      `mapstructure:"alerts_topic"`
	ReplayTopic string      `mapstructure:"replay_topic"`
	DLQTopic    string      `mapstructure:"dlq_topic"`
	Retry       RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

type RoutingConfig struct {
	IgnoreRules        []IgnoreRule `mapstructure:"ignore_rules"`
	RetryErroredEvents bool         `mapstructure:"retry_errored_events"`
	LockTTLSeconds     int          `mapstructure:"lock_ttl_seconds"`
}

// IgnoreRule is a CEL boolean expression; a matching event is acknowledged
// without touching the ledger.
type IgnoreRule struct {
	Name       string `mapstructure:"name"`
	Expression string `mapstructure:"expression"`
}

type BillingConfig struct {
	RedirectURI     string            `mapstructure:"redirect_uri"`
	ExitURI         string            `mapstructure:"exit_uri"`
	Schemes         map[string]string `mapstructure:"schemes"`
	MetadataCeiling int               `mapstructure:"metadata_ceiling"`
}

type RegionConfig struct {
	DefaultCurrency string           `mapstructure:"default_currency"`
	CRM             CRMConfig        `mapstructure:"crm"`
	Stripe          StripeConfig     `mapstructure:"stripe"`
	GoCardless      GoCardlessConfig `mapstructure:"gocardless"`
}

type CRMConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	AccessKey string `mapstructure:"access_key"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type GoCardlessConfig struct {
	AccessToken   string `mapstructure:"access_token"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	Environment   string `mapstructure:"environment"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
