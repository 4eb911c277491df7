// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full service configuration. Every field has a usable dev
// default; production deployments override through the environment.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `env:"REGISTRYD_ADDR" envDefault:":8700"`
	// LogLevel is the minimum level emitted ("debug", "info", "warn", "error").
	LogLevel string `env:"REGISTRYD_LOG_LEVEL" envDefault:"info"`
	// DevMode switches to the in-memory store and console logging.
	DevMode bool `env:"REGISTRYD_DEV_MODE" envDefault:"false"`

	// TLDConfigPath is the YAML file with TLD definitions.
	TLDConfigPath string `env:"REGISTRYD_TLD_CONFIG" envDefault:"tlds.yaml"`

	// PostgresURL is the entity store DSN. Required unless DevMode.
	PostgresURL string `env:"REGISTRYD_POSTGRES_URL"`
	// RedisURL is the task queue address. Required unless DevMode.
	RedisURL string `env:"REGISTRYD_REDIS_URL"`

	// KafkaBrokers enables the history event stream when non-empty.
	KafkaBrokers []string `env:"REGISTRYD_KAFKA_BROKERS"`
	// KafkaHistoryTopic is the topic committed history entries are published to.
	KafkaHistoryTopic string `env:"REGISTRYD_KAFKA_HISTORY_TOPIC" envDefault:"registry.history"`

	// SuperuserRegistrars may run commands with ownership and status checks
	// bypassed when they ask for it per request.
	SuperuserRegistrars []string `env:"REGISTRYD_SUPERUSER_REGISTRARS"`

	// SessionTTL bounds how long an idle EPP session stays valid.
	SessionTTL time.Duration `env:"REGISTRYD_SESSION_TTL" envDefault:"1h"`

	// AsyncDeletionDelay is how long a deletion task waits before the worker
	// may verify and execute it.
	AsyncDeletionDelay time.Duration `env:"REGISTRYD_ASYNC_DELETION_DELAY" envDefault:"5m"`
	// AsyncPollInterval is the worker's idle sleep between queue polls.
	AsyncPollInterval time.Duration `env:"REGISTRYD_ASYNC_POLL_INTERVAL" envDefault:"5s"`

	// ResaveBatchSize is the per-transaction batch size for bulk resaves.
	ResaveBatchSize int `env:"REGISTRYD_RESAVE_BATCH_SIZE" envDefault:"100"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"REGISTRYD_SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Load parses the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if !cfg.DevMode {
		if cfg.PostgresURL == "" {
			return Config{}, fmt.Errorf("REGISTRYD_POSTGRES_URL is required outside dev mode")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REGISTRYD_REDIS_URL is required outside dev mode")
		}
	}
	return cfg, nil
}
