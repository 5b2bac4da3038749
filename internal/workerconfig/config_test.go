package workerconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/outboxkit/internal/workerconfig"
)

func clearWorkerEnv(t *testing.T) {
	t.Helper()

	keys := []string{
		"WORKER_DATABASE_URL", "WORKER_KAFKA_BROKERS", "WORKER_KAFKA_TOPIC",
		"WORKER_KAFKA_CONSUMER_GROUP", "WORKER_KAFKA_MIN_BYTES", "WORKER_KAFKA_MAX_BYTES",
		"WORKER_NAME", "LOG_LEVEL",
	}

	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadConfig_DefaultsWithoutEnvOrFile(t *testing.T) {
	clearWorkerEnv(t)

	config, err := workerconfig.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, workerconfig.Defaults().Kafka, config.Kafka)
}

func TestLoadConfig_EnvOverridesDefaults(t *testing.T) {
	clearWorkerEnv(t)
	t.Setenv("WORKER_DATABASE_URL", "postgres://localhost/worker")
	t.Setenv("WORKER_KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("WORKER_KAFKA_TOPIC", "events")
	t.Setenv("WORKER_KAFKA_CONSUMER_GROUP", "order_summary")

	config, err := workerconfig.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/worker", config.DatabaseURL)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, config.Kafka.Brokers)
	assert.Equal(t, "events", config.Kafka.Topic)
	assert.Equal(t, "order_summary", config.Kafka.ConsumerGroup)
}

func TestLoadConfig_FileOverridesDefaultsButNotEnv(t *testing.T) {
	clearWorkerEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kafka:\n  topic: events\n  consumer_group: order_summary\n"), 0o600))

	t.Setenv("WORKER_KAFKA_TOPIC", "commands")

	config, err := workerconfig.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "commands", config.Kafka.Topic, "env var wins over file value")
	assert.Equal(t, "order_summary", config.Kafka.ConsumerGroup, "file value wins over default when env unset")
}

func TestValidate_RejectsMissingDatabaseURL(t *testing.T) {
	config := workerconfig.Defaults()
	config.Kafka.Brokers = []string{"broker:9092"}
	config.Kafka.Topic = "events"
	config.Kafka.ConsumerGroup = "order_summary"

	err := config.Validate()
	require.ErrorIs(t, err, workerconfig.ErrDatabaseURLEmpty)
}

func TestValidate_RejectsMissingConsumerGroup(t *testing.T) {
	config := workerconfig.Defaults()
	config.DatabaseURL = "postgres://localhost/worker"
	config.Kafka.Brokers = []string{"broker:9092"}
	config.Kafka.Topic = "events"

	err := config.Validate()
	require.ErrorIs(t, err, workerconfig.ErrConsumerGroupEmpty)
}

func TestValidate_AcceptsCompleteConfig(t *testing.T) {
	config := workerconfig.Defaults()
	config.DatabaseURL = "postgres://localhost/worker"
	config.Kafka.Brokers = []string{"broker:9092"}
	config.Kafka.Topic = "events"
	config.Kafka.ConsumerGroup = "order_summary"

	require.NoError(t, config.Validate())
}
