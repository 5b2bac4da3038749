package ids

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventId_IsUUIDv7(t *testing.T) {
	id, err := NewEventId()
	require.NoError(t, err)

	parsed, err := uuid.Parse(id.String())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestParseEventId_RejectsNonV7(t *testing.T) {
	v4 := uuid.New() // random, version 4

	_, err := ParseEventId(v4.String())
	require.ErrorIs(t, err, ErrNotUUIDv7)
}

func TestParseEventId_RejectsEmpty(t *testing.T) {
	_, err := ParseEventId("")
	require.ErrorIs(t, err, ErrEmpty)
}

func TestParseEventId_RoundTrips(t *testing.T) {
	id, err := NewEventId()
	require.NoError(t, err)

	reparsed, err := ParseEventId(id.String())
	require.NoError(t, err)
	assert.Equal(t, id.String(), reparsed.String())
}

func TestTimestamp_IsSortableAndRecent(t *testing.T) {
	before := time.Now().Add(-time.Second)

	id, err := NewOutboxId()
	require.NoError(t, err)

	after := time.Now().Add(time.Second)

	ts := time.UnixMilli(id.Timestamp())
	assert.True(t, ts.After(before))
	assert.True(t, ts.Before(after))
}

func TestTimestamp_OrdersIncreasingly(t *testing.T) {
	first, err := NewMessageId()
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)

	second, err := NewMessageId()
	require.NoError(t, err)

	assert.LessOrEqual(t, first.Timestamp(), second.Timestamp())
	assert.True(t, first.String() < second.String(), "UUIDv7 strings sort lexicographically by time")
}

func TestEventId_MarshalJSONRoundTrips(t *testing.T) {
	id, err := NewEventId()
	require.NoError(t, err)

	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, `"`+id.String()+`"`, string(data))

	var decoded EventId
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id.String(), decoded.String())
}

func TestEventId_UnmarshalJSONRejectsNonV7(t *testing.T) {
	v4 := uuid.New()
	data, err := json.Marshal(v4.String())
	require.NoError(t, err)

	var decoded EventId
	err = json.Unmarshal(data, &decoded)
	require.ErrorIs(t, err, ErrNotUUIDv7)
}

func TestDistinctIdTypes_DoNotMixAtCompileTime(t *testing.T) {
	// This test exists to document the intent; the compiler is the real
	// enforcer. If this package ever collapses all ids to one type, this
	// test still passes but the type system no longer protects callers.
	eventID, err := NewEventId()
	require.NoError(t, err)

	outboxID, err := NewOutboxId()
	require.NoError(t, err)

	assert.NotEqual(t, eventID.String(), outboxID.String())
}
