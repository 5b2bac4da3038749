// Package workerconfig loads a Worker Loop binary's configuration the
// same way internal/relayconfig loads the Outbox Relay's: env-var driven
// with hardcoded defaults, plus an optional static YAML file merged in
// with dario.cat/mergo before env vars get the final word.
package workerconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

const (
	defaultMinBytes = 1
	defaultMaxBytes = 10e6
)

// Static validation errors.
var (
	ErrDatabaseURLEmpty   = errors.New("workerconfig: database URL cannot be empty")
	ErrNoKafkaBrokers     = errors.New("workerconfig: at least one kafka broker is required")
	ErrTopicEmpty         = errors.New("workerconfig: topic cannot be empty")
	ErrConsumerGroupEmpty = errors.New("workerconfig: consumer group cannot be empty")
)

// KafkaConfig configures the worker's transport side: the single topic it
// subscribes to and the consumer group its replicas share (spec.md §4.10).
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumer_group"`
	MinBytes      int      `yaml:"min_bytes"`
	MaxBytes      int      `yaml:"max_bytes"`
}

// Config is one Worker Loop binary's full runtime configuration. A single
// binary hosts one Loop bound to one Runner kind (projection, saga, or
// command), so one topic/consumer-group pair is sufficient.
type Config struct {
	DatabaseURL string      `yaml:"database_url"`
	Kafka       KafkaConfig `yaml:"kafka"`
	WorkerName  string      `yaml:"worker_name"`
	LogLevel    slog.Level  `yaml:"-"`
}

// Defaults returns the hardcoded baseline every Config starts from.
func Defaults() Config {
	return Config{
		Kafka: KafkaConfig{
			MinBytes: defaultMinBytes,
			MaxBytes: defaultMaxBytes,
		},
		LogLevel: slog.LevelInfo,
	}
}

// LoadConfig builds a Config from, in increasing priority order: hardcoded
// defaults, the YAML file at yamlPath (skipped if yamlPath is empty), then
// environment variables.
func LoadConfig(yamlPath string) (Config, error) {
	config := Defaults()

	if yamlPath != "" {
		fileConfig, err := loadYAML(yamlPath)
		if err != nil {
			return Config{}, err
		}

		if err := mergo.Merge(&config, fileConfig, mergo.WithOverride); err != nil {
			return Config{}, fmt.Errorf("workerconfig: merge file config: %w", err)
		}
	}

	loadDatabase(&config)
	loadKafka(&config)
	loadWorkerName(&config)
	loadLogLevel(&config)

	return config, nil
}

func loadYAML(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("workerconfig: read %s: %w", path, err)
	}

	var fileConfig Config
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return Config{}, fmt.Errorf("workerconfig: parse %s: %w", path, err)
	}

	return fileConfig, nil
}

// Validate checks the configuration is complete enough to run a Worker Loop.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	if len(c.Kafka.Brokers) == 0 {
		return ErrNoKafkaBrokers
	}

	if strings.TrimSpace(c.Kafka.Topic) == "" {
		return ErrTopicEmpty
	}

	if strings.TrimSpace(c.Kafka.ConsumerGroup) == "" {
		return ErrConsumerGroupEmpty
	}

	return nil
}

func loadDatabase(config *Config) {
	if value := os.Getenv("WORKER_DATABASE_URL"); value != "" {
		config.DatabaseURL = value
	}
}

func loadKafka(config *Config) {
	if value := os.Getenv("WORKER_KAFKA_BROKERS"); value != "" {
		config.Kafka.Brokers = splitAndTrim(value)
	}

	if value := os.Getenv("WORKER_KAFKA_TOPIC"); value != "" {
		config.Kafka.Topic = value
	}

	if value := os.Getenv("WORKER_KAFKA_CONSUMER_GROUP"); value != "" {
		config.Kafka.ConsumerGroup = value
	}

	if value := os.Getenv("WORKER_KAFKA_MIN_BYTES"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			config.Kafka.MinBytes = parsed
		}
	}

	if value := os.Getenv("WORKER_KAFKA_MAX_BYTES"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			config.Kafka.MaxBytes = parsed
		}
	}
}

func loadWorkerName(config *Config) {
	if value := os.Getenv("WORKER_NAME"); value != "" {
		config.WorkerName = value
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
