package kafka_config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`

	ProducerMaxAttempts  int           `envconfig:"KAFKA_PRODUCER_MAX_ATTEMPTS"`
	ProducerBatchTimeout time.Duration `envconfig:"KAFKA_PRODUCER_BATCH_TIMEOUT"`
	ProducerRequireAcks  int           `envconfig:"KAFKA_PRODUCER_REQUIRE_ACKS"` // -1 all, 0 none, 1 leader
	ProducerCompression  string        `envconfig:"KAFKA_PRODUCER_COMPRESSION"`
	ProducerAsync        bool          `envconfig:"KAFKA_PRODUCER_ASYNC"`

	ConsumerStartOffset       int64         `envconfig:"KAFKA_CONSUMER_START_OFFSET"` // -1 newest, -2 oldest
	ConsumerMinBytes          int           `envconfig:"KAFKA_CONSUMER_MIN_BYTES"`
	ConsumerMaxBytes          int           `envconfig:"KAFKA_CONSUMER_MAX_BYTES"`
	ConsumerMaxWait           time.Duration `envconfig:"KAFKA_CONSUMER_MAX_WAIT"`
	ConsumerCommitInterval    time.Duration `envconfig:"KAFKA_CONSUMER_COMMIT_INTERVAL"`
	ConsumerHeartbeatInterval time.Duration `envconfig:"KAFKA_CONSUMER_HEARTBEAT_INTERVAL"`
	ConsumerSessionTimeout    time.Duration `envconfig:"KAFKA_CONSUMER_SESSION_TIMEOUT"`
	ConsumerRebalanceTimeout  time.Duration `envconfig:"KAFKA_CONSUMER_REBALANCE_TIMEOUT"`
	ConsumerMaxRetries        int           `envconfig:"KAFKA_CONSUMER_MAX_RETRIES"`
	ConsumerFetchBackoff      time.Duration `envconfig:"KAFKA_CONSUMER_FETCH_BACKOFF"`
}

func Defaults() *Config {
	return &Config{
		Brokers: []string{DefaultKafkaBrokers},

		ProducerMaxAttempts:  DefaultProducerMaxAttempts,
		ProducerBatchTimeout: DefaultProducerBatchTimeout,
		ProducerRequireAcks:  DefaultProducerRequireAcks,
		ProducerCompression:  DefaultProducerCompression,
		ProducerAsync:        DefaultProducerAsync,

		ConsumerStartOffset:       DefaultConsumerStartOffset,
		ConsumerMinBytes:          DefaultConsumerMinBytes,
		ConsumerMaxBytes:          DefaultConsumerMaxBytes,
		ConsumerMaxWait:           DefaultConsumerMaxWait,
		ConsumerCommitInterval:    DefaultConsumerCommitInterval,
		ConsumerHeartbeatInterval: DefaultConsumerHeartbeatInterval,
		ConsumerSessionTimeout:    DefaultConsumerSessionTimeout,
		ConsumerRebalanceTimeout:  DefaultConsumerRebalanceTimeout,
		ConsumerMaxRetries:        DefaultConsumerMaxRetries,
		ConsumerFetchBackoff:      DefaultConsumerFetchBackoff,
	}
}

// Load reads the KAFKA_* environment over Defaults and validates the result.
func Load() (*Config, error) {
	cfg := Defaults()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("read kafka configuration: %w", err)
	}
	for i, broker := range cfg.Brokers {
		cfg.Brokers[i] = strings.TrimSpace(broker)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	var errors []string

	if len(cfg.Brokers) == 0 {
		errors = append(errors, "At least one Kafka broker is required")
	}
	for i, broker := range cfg.Brokers {
		if broker == "" {
			errors = append(errors, fmt.Sprintf("Broker %d cannot be empty", i))
		}
	}

	if cfg.ProducerMaxAttempts <= 0 {
		errors = append(errors, fmt.Sprintf("ProducerMaxAttempts must be positive, got: %d", cfg.ProducerMaxAttempts))
	}
	if cfg.ProducerBatchTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ProducerBatchTimeout must be positive, got: %s", cfg.ProducerBatchTimeout))
	}

	validCompressions := map[string]bool{
		"none": true, "gzip": true, "snappy": true, "lz4": true, "zstd": true,
	}
	if !validCompressions[cfg.ProducerCompression] {
		errors = append(errors, fmt.Sprintf("ProducerCompression must be one of [none, gzip, snappy, lz4, zstd], got: %s", cfg.ProducerCompression))
	}

	validAcks := map[int]bool{-1: true, 0: true, 1: true}
	if !validAcks[cfg.ProducerRequireAcks] {
		errors = append(errors, fmt.Sprintf("ProducerRequireAcks must be -1, 0, or 1, got: %d", cfg.ProducerRequireAcks))
	}

	if cfg.ConsumerStartOffset != -1 && cfg.ConsumerStartOffset != -2 {
		errors = append(errors, fmt.Sprintf("ConsumerStartOffset must be -1 (newest) or -2 (oldest), got: %d", cfg.ConsumerStartOffset))
	}
	if cfg.ConsumerMinBytes <= 0 || cfg.ConsumerMaxBytes < cfg.ConsumerMinBytes {
		errors = append(errors, fmt.Sprintf("ConsumerMinBytes/MaxBytes must satisfy 0 < min <= max, got: %d/%d", cfg.ConsumerMinBytes, cfg.ConsumerMaxBytes))
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"ConsumerMaxWait", cfg.ConsumerMaxWait},
		{"ConsumerCommitInterval", cfg.ConsumerCommitInterval},
		{"ConsumerHeartbeatInterval", cfg.ConsumerHeartbeatInterval},
		{"ConsumerSessionTimeout", cfg.ConsumerSessionTimeout},
		{"ConsumerRebalanceTimeout", cfg.ConsumerRebalanceTimeout},
		{"ConsumerFetchBackoff", cfg.ConsumerFetchBackoff},
	}
	for _, d := range positive {
		if d.value <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", d.name, d.value))
		}
	}

	if cfg.ConsumerMaxRetries < 0 {
		errors = append(errors, fmt.Sprintf("ConsumerMaxRetries cannot be negative, got: %d", cfg.ConsumerMaxRetries))
	}

	if len(errors) > 0 {
		errMsg := "Kafka configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration(logFunc func(msg string, args ...any)) {
	if logFunc == nil {
		return
	}

	logFunc("Kafka configuration loaded successfully",
		"brokers", cfg.Brokers,
		"producer_max_attempts", cfg.ProducerMaxAttempts,
		"producer_require_acks", cfg.ProducerRequireAcks,
		"producer_compression", cfg.ProducerCompression,
		"producer_async", cfg.ProducerAsync,
		"consumer_start_offset", cfg.ConsumerStartOffset,
		"consumer_max_retries", cfg.ConsumerMaxRetries,
	)
}
