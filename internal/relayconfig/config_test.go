package relayconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/outboxkit/internal/relayconfig"
)

func clearRelayEnv(t *testing.T) {
	t.Helper()

	keys := []string{
		"RELAY_DATABASE_URL", "RELAY_KAFKA_BROKERS", "RELAY_KAFKA_EVENT_TOPIC",
		"RELAY_KAFKA_COMMAND_TOPIC", "RELAY_KAFKA_RATE_LIMIT", "RELAY_KAFKA_RATE_BURST",
		"RELAY_BATCH_SIZE", "RELAY_LEASE_FOR", "RELAY_RETRY_BACKOFF", "RELAY_RETRY_MAX_ATTEMPTS",
		"RELAY_POLL_BASE", "RELAY_POLL_MAX", "RELAY_POLL_MULTIPLIER", "RELAY_POLL_JITTER",
		"RELAY_INSTANCE_ID", "RELAY_PROCESS_ID", "LOG_LEVEL",
	}

	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadConfig_DefaultsWithoutEnvOrFile(t *testing.T) {
	clearRelayEnv(t)

	config, err := relayconfig.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 100, config.BatchSize)
	assert.Equal(t, relayconfig.Defaults().Poll, config.Poll)
}

func TestLoadConfig_EnvOverridesDefaults(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("RELAY_DATABASE_URL", "postgres://localhost/relay")
	t.Setenv("RELAY_KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("RELAY_BATCH_SIZE", "250")

	config, err := relayconfig.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/relay", config.DatabaseURL)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, config.Kafka.Brokers)
	assert.Equal(t, 250, config.BatchSize)
}

func TestLoadConfig_FileOverridesDefaultsButNotEnv(t *testing.T) {
	clearRelayEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: 50\nlease_for: 45s\n"), 0o600))

	t.Setenv("RELAY_BATCH_SIZE", "999")

	config, err := relayconfig.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 999, config.BatchSize, "env var wins over file value")
	assert.Equal(t, "45s", config.LeaseFor.String(), "file value wins over default when env unset")
}

func TestValidate_RejectsMissingDatabaseURL(t *testing.T) {
	config := relayconfig.Defaults()
	config.Kafka.Brokers = []string{"broker:9092"}
	config.Kafka.EventTopic = "events"
	config.Kafka.CommandTopic = "commands"

	err := config.Validate()
	require.ErrorIs(t, err, relayconfig.ErrDatabaseURLEmpty)
}

func TestValidate_RejectsPollBaseAfterMax(t *testing.T) {
	config := relayconfig.Defaults()
	config.DatabaseURL = "postgres://localhost/relay"
	config.Kafka.Brokers = []string{"broker:9092"}
	config.Kafka.EventTopic = "events"
	config.Kafka.CommandTopic = "commands"
	config.Poll.Base = config.Poll.Max + 1

	err := config.Validate()
	require.ErrorIs(t, err, relayconfig.ErrPollBaseAfterMax)
}

func TestValidate_AcceptsCompleteConfig(t *testing.T) {
	config := relayconfig.Defaults()
	config.DatabaseURL = "postgres://localhost/relay"
	config.Kafka.Brokers = []string{"broker:9092"}
	config.Kafka.EventTopic = "events"
	config.Kafka.CommandTopic = "commands"

	require.NoError(t, config.Validate())
}
