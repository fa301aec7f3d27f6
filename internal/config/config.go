package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds process-level settings, populated from environment variables.
// Per-run inputs (datasets, labels, steps, regions) live in RunSpec instead.
type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json text"`

	// Workers bounds the per-parameter materialization pool.
	Workers int `envconfig:"VERIF_WORKERS" default:"4" validate:"gte=1,lte=64"`

	// Kafka result events are enabled when brokers are set.
	KafkaBrokers      []string `envconfig:"KAFKA_BROKERS"`
	KafkaResultsTopic string   `envconfig:"KAFKA_RESULTS_TOPIC" default:"verification-results"`

	// PushgatewayURL enables metric pushes for these run-to-completion jobs.
	PushgatewayURL string `envconfig:"PUSHGATEWAY_URL" validate:"omitempty,url"`
}

// Load reads configuration from environment variables, applying defaults
// where unset, and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate configuration: %w", err)
	}
	return &cfg, nil
}

// KafkaEnabled reports whether result events should be published.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }
