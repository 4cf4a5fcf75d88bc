// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// OTP store backends.
const (
	OTPStoreMemory = "memory"
	OTPStoreRedis  = "redis"
)

const minSessionSecretLen = 16

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the portal HTTP server listens on (e.g. :3000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health server; empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`

	// GenieACSURL is the base URL of the GenieACS NBI (e.g. http://acs:7557).
	GenieACSURL      string        `mapstructure:"GENIEACS_URL"`
	GenieACSUsername string        `mapstructure:"GENIEACS_USERNAME"`
	GenieACSPassword string        `mapstructure:"GENIEACS_PASSWORD"`
	GenieACSTimeout  time.Duration `mapstructure:"GENIEACS_TIMEOUT"`

	// GatewayTimeout bounds each WhatsApp gateway request.
	GatewayTimeout time.Duration `mapstructure:"GATEWAY_TIMEOUT"`
	// FonnteURL overrides the Fonnte send endpoint.
	FonnteURL string `mapstructure:"FONNTE_URL"`

	AdminUsername string `mapstructure:"ADMIN_USERNAME"`
	// AdminPasswordHash is a bcrypt hash of the admin password. Preferred over AdminPassword.
	AdminPasswordHash string `mapstructure:"ADMIN_PASSWORD_HASH"`
	// AdminPassword is a plain-text fallback for development. Rejected when Env is production.
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`

	// SessionSecret signs session cookies (HS256). At least 16 bytes.
	SessionSecret string        `mapstructure:"SESSION_SECRET"`
	SessionTTL    time.Duration `mapstructure:"SESSION_TTL"`

	// SettingsFile is the path of the runtime settings document.
	SettingsFile string `mapstructure:"SETTINGS_FILE"`

	// OTPStore selects where pending codes live: memory or redis.
	OTPStore      string `mapstructure:"OTP_STORE"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// OTPSweepInterval is how often expired in-memory codes are purged; 0 disables the sweeper.
	OTPSweepInterval time.Duration `mapstructure:"OTP_SWEEP_INTERVAL"`

	// RefreshConcurrency caps in-flight task posts during a bulk refresh.
	RefreshConcurrency int `mapstructure:"REFRESH_CONCURRENCY"`
	// RefreshSettleDelay is how long a single admin refresh waits for the task to be processed.
	RefreshSettleDelay time.Duration `mapstructure:"REFRESH_SETTLE_DELAY"`

	// DatabaseURL is the Postgres DSN for the audit log; empty disables auditing.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Env is the application environment (e.g. "development", "production").
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Telemetry (optional). When Kafka brokers are set, portal events are also emitted to Kafka.
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for telemetry events.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty keeps telemetry in-process only.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`

	// Worker-only: Loki URL for the telemetry worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read builds Config from .env and the environment without the portal server checks.
// cmd/migrate and cmd/worker use it since they need neither GenieACS nor admin credentials.
func Read() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("GRPC_ADDR", ":8081")
	v.SetDefault("GENIEACS_URL", "")
	v.SetDefault("GENIEACS_USERNAME", "")
	v.SetDefault("GENIEACS_PASSWORD", "")
	v.SetDefault("GENIEACS_TIMEOUT", "15s")
	v.SetDefault("GATEWAY_TIMEOUT", "15s")
	v.SetDefault("FONNTE_URL", "https://api.fonnte.com/send")
	v.SetDefault("ADMIN_USERNAME", "admin")
	v.SetDefault("ADMIN_PASSWORD_HASH", "")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("SETTINGS_FILE", "settings.json")
	v.SetDefault("OTP_STORE", OTPStoreMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("OTP_SWEEP_INTERVAL", "1m")
	v.SetDefault("REFRESH_CONCURRENCY", 8)
	v.SetDefault("REFRESH_SETTLE_DELAY", "3s")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "portal-telemetry")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "portal-telemetry-worker")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "genieacs-portal")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.RefreshConcurrency <= 0 {
		cfg.RefreshConcurrency = 8
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.GenieACSURL == "" {
		return errors.New("config: GENIEACS_URL must be set")
	}
	if len(c.SessionSecret) < minSessionSecretLen {
		return errors.New("config: SESSION_SECRET must be at least 16 bytes")
	}
	if c.AdminPasswordHash == "" && c.AdminPassword == "" {
		return errors.New("config: ADMIN_PASSWORD_HASH or ADMIN_PASSWORD must be set")
	}
	if c.AdminPassword != "" && c.Env == "production" {
		return errors.New("config: ADMIN_PASSWORD must not be used when APP_ENV=production; set ADMIN_PASSWORD_HASH")
	}
	switch c.OTPStore {
	case OTPStoreMemory:
	case OTPStoreRedis:
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR must be set when OTP_STORE=redis")
		}
	default:
		return errors.New("config: OTP_STORE must be memory or redis")
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: SESSION_TTL must be positive")
	}
	if c.OTPSweepInterval < 0 {
		return errors.New("config: OTP_SWEEP_INTERVAL must not be negative")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
