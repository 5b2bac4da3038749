// Package relayconfig loads the Outbox Relay's configuration the way
// internal/storage/config.go and internal/api/config.go load theirs:
// env-var driven with hardcoded defaults, plus an optional static YAML
// file (spec.md §9's fleet-wide tuning knobs) merged in with
// dario.cat/mergo before env vars get the final word.
package relayconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

const (
	defaultBatchSize       = 100
	defaultLeaseFor        = 30 * time.Second
	defaultRetryBackoff    = 5 * time.Second
	defaultRetryMaxAttempt = 5
	defaultPollBase        = 100 * time.Millisecond
	defaultPollMax         = 5 * time.Second
	defaultPollMultiplier  = 2.0
	defaultPollJitter      = 0.1
	defaultRateLimit       = 0.0 // 0 disables throttling
	defaultRateBurst       = 1
)

// Static validation errors.
var (
	ErrDatabaseURLEmpty  = errors.New("relayconfig: database URL cannot be empty")
	ErrNoKafkaBrokers    = errors.New("relayconfig: at least one kafka broker is required")
	ErrEventTopicEmpty   = errors.New("relayconfig: event topic cannot be empty")
	ErrCommandTopicEmpty = errors.New("relayconfig: command topic cannot be empty")
	ErrInvalidBatchSize  = errors.New("relayconfig: batch size must be positive")
	ErrInvalidLeaseFor   = errors.New("relayconfig: lease duration must be positive")
	ErrInvalidMaxAttempt = errors.New("relayconfig: retry max attempts must be positive")
	ErrPollBaseAfterMax  = errors.New("relayconfig: poll base interval exceeds poll max interval")
)

// KafkaConfig configures the relay's transport side.
type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	EventTopic   string   `yaml:"event_topic"`
	CommandTopic string   `yaml:"command_topic"`
	// RateLimit throttles publish throughput in messages/second; zero
	// disables throttling.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// RetryConfig configures the outbox retry budget (spec.md §4.5).
type RetryConfig struct {
	Backoff     Duration `yaml:"backoff"`
	MaxAttempts int64    `yaml:"max_attempts"`
}

// PollConfig configures the relay's idle-poll backoff schedule
// (spec.md §4.6).
type PollConfig struct {
	Base       Duration `yaml:"base"`
	Max        Duration `yaml:"max"`
	Multiplier float64  `yaml:"multiplier"`
	Jitter     float64  `yaml:"jitter"`
}

// Config is the Outbox Relay's full runtime configuration.
type Config struct {
	DatabaseURL string      `yaml:"database_url"`
	Kafka       KafkaConfig `yaml:"kafka"`
	BatchSize   int         `yaml:"batch_size"`
	LeaseFor    Duration    `yaml:"lease_for"`
	Retry       RetryConfig `yaml:"retry"`
	Poll        PollConfig  `yaml:"poll"`
	InstanceID  string      `yaml:"instance_id"`
	ProcessID   int         `yaml:"process_id"`
	LogLevel    slog.Level  `yaml:"-"`
}

// Defaults returns the hardcoded baseline every Config starts from.
func Defaults() Config {
	return Config{
		BatchSize: defaultBatchSize,
		Kafka: KafkaConfig{
			RateLimit: defaultRateLimit,
			RateBurst: defaultRateBurst,
		},
		LeaseFor: Duration(defaultLeaseFor),
		Retry: RetryConfig{
			Backoff:     Duration(defaultRetryBackoff),
			MaxAttempts: defaultRetryMaxAttempt,
		},
		Poll: PollConfig{
			Base:       Duration(defaultPollBase),
			Max:        Duration(defaultPollMax),
			Multiplier: defaultPollMultiplier,
			Jitter:     defaultPollJitter,
		},
		LogLevel: slog.LevelInfo,
	}
}

// LoadConfig builds a Config from, in increasing priority order: hardcoded
// defaults, the YAML file at yamlPath (skipped if yamlPath is empty), then
// environment variables. yamlPath lets fleet operators pin batch size,
// lease duration, and retry/backoff knobs without redeploying.
func LoadConfig(yamlPath string) (Config, error) {
	config := Defaults()

	if yamlPath != "" {
		fileConfig, err := loadYAML(yamlPath)
		if err != nil {
			return Config{}, err
		}

		if err := mergo.Merge(&config, fileConfig, mergo.WithOverride); err != nil {
			return Config{}, fmt.Errorf("relayconfig: merge file config: %w", err)
		}
	}

	loadDatabase(&config)
	loadKafka(&config)
	loadBatchAndLease(&config)
	loadRetry(&config)
	loadPoll(&config)
	loadInstance(&config)
	loadLogLevel(&config)

	return config, nil
}

func loadYAML(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("relayconfig: read %s: %w", path, err)
	}

	var fileConfig Config
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return Config{}, fmt.Errorf("relayconfig: parse %s: %w", path, err)
	}

	return fileConfig, nil
}

// Validate checks the configuration is complete enough to run a Relay.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	if len(c.Kafka.Brokers) == 0 {
		return ErrNoKafkaBrokers
	}

	if strings.TrimSpace(c.Kafka.EventTopic) == "" {
		return ErrEventTopicEmpty
	}

	if strings.TrimSpace(c.Kafka.CommandTopic) == "" {
		return ErrCommandTopicEmpty
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidBatchSize, c.BatchSize)
	}

	if c.LeaseFor <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidLeaseFor, time.Duration(c.LeaseFor))
	}

	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxAttempt, c.Retry.MaxAttempts)
	}

	if c.Poll.Base > c.Poll.Max {
		return fmt.Errorf("%w: base=%s max=%s", ErrPollBaseAfterMax, time.Duration(c.Poll.Base), time.Duration(c.Poll.Max))
	}

	return nil
}

func loadDatabase(config *Config) {
	if value := os.Getenv("RELAY_DATABASE_URL"); value != "" {
		config.DatabaseURL = value
	}
}

func loadKafka(config *Config) {
	if value := os.Getenv("RELAY_KAFKA_BROKERS"); value != "" {
		config.Kafka.Brokers = splitAndTrim(value)
	}

	if value := os.Getenv("RELAY_KAFKA_EVENT_TOPIC"); value != "" {
		config.Kafka.EventTopic = value
	}

	if value := os.Getenv("RELAY_KAFKA_COMMAND_TOPIC"); value != "" {
		config.Kafka.CommandTopic = value
	}

	if value := os.Getenv("RELAY_KAFKA_RATE_LIMIT"); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			config.Kafka.RateLimit = parsed
		}
	}

	if value := os.Getenv("RELAY_KAFKA_RATE_BURST"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			config.Kafka.RateBurst = parsed
		}
	}
}

func loadBatchAndLease(config *Config) {
	if value := os.Getenv("RELAY_BATCH_SIZE"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			config.BatchSize = parsed
		}
	}

	if value := os.Getenv("RELAY_LEASE_FOR"); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			config.LeaseFor = Duration(parsed)
		}
	}
}

func loadRetry(config *Config) {
	if value := os.Getenv("RELAY_RETRY_BACKOFF"); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			config.Retry.Backoff = Duration(parsed)
		}
	}

	if value := os.Getenv("RELAY_RETRY_MAX_ATTEMPTS"); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			config.Retry.MaxAttempts = parsed
		}
	}
}

func loadPoll(config *Config) {
	if value := os.Getenv("RELAY_POLL_BASE"); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			config.Poll.Base = Duration(parsed)
		}
	}

	if value := os.Getenv("RELAY_POLL_MAX"); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			config.Poll.Max = Duration(parsed)
		}
	}

	if value := os.Getenv("RELAY_POLL_MULTIPLIER"); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			config.Poll.Multiplier = parsed
		}
	}

	if value := os.Getenv("RELAY_POLL_JITTER"); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			config.Poll.Jitter = parsed
		}
	}
}

func loadInstance(config *Config) {
	if value := os.Getenv("RELAY_INSTANCE_ID"); value != "" {
		config.InstanceID = value
	}

	if value := os.Getenv("RELAY_PROCESS_ID"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			config.ProcessID = parsed
		}
	}
}

func loadLogLevel(config *Config) {
	value := os.Getenv("LOG_LEVEL")
	if value == "" {
		return
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		config.LogLevel = slog.LevelDebug
	case "info":
		config.LogLevel = slog.LevelInfo
	case "warn", "warning":
		config.LogLevel = slog.LevelWarn
	case "error":
		config.LogLevel = slog.LevelError
	}
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
