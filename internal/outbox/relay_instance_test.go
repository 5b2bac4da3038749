package outbox_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/outboxkit/internal/outbox"
)

func TestRelayInstance_FormatsAndParsesRoundTrip(t *testing.T) {
	owner, err := outbox.NewRelayInstance("instance-1", 42)
	require.NoError(t, err)

	parsed, err := outbox.ParseRelayInstance(owner.String())

	require.NoError(t, err)
	assert.Equal(t, owner, parsed)
	assert.Equal(t, "instance-1:42", owner.String())
}

func TestRelayInstance_RejectsEmptyInstanceID(t *testing.T) {
	_, err := outbox.NewRelayInstance("", 1)

	require.Error(t, err)
	assert.True(t, errors.Is(err, outbox.ErrEmptyInstanceID))
}

func TestParseRelayInstance_RejectsMissingSeparator(t *testing.T) {
	_, err := outbox.ParseRelayInstance("instance-1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, outbox.ErrMissingSeparator))
}

func TestParseRelayInstance_RejectsNonNumericProcessID(t *testing.T) {
	_, err := outbox.ParseRelayInstance("instance-1:not-a-number")

	require.Error(t, err)
	assert.True(t, errors.Is(err, outbox.ErrInvalidProcessID))
}

func TestParseRelayInstance_RejectsEmptyHalves(t *testing.T) {
	_, err := outbox.ParseRelayInstance(":42")
	require.Error(t, err)
	assert.True(t, errors.Is(err, outbox.ErrEmptyInstanceID))

	_, err = outbox.ParseRelayInstance("instance-1:")
	require.Error(t, err)
	assert.True(t, errors.Is(err, outbox.ErrEmptyProcessID))
}
