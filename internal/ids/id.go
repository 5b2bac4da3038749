// Package ids provides strongly-typed, time-sortable identifiers for every
// entity in the outbox framework. All identifiers are UUIDv7: the framework
// refuses non-v7 values at entity boundaries so that every id sorts by
// creation time without a separate timestamp column.
package ids

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotUUIDv7 is returned when a value is not a valid version-7 UUID.
var ErrNotUUIDv7 = errors.New("value is not a UUIDv7")

// ErrEmpty is returned when parsing an empty identifier string.
var ErrEmpty = errors.New("identifier cannot be empty")

// rawID is the shared representation behind every typed identifier in this
// package. It is not exported; each concrete type wraps it so that, e.g.,
// an EventId and an OutboxId are never interchangeable at compile time.
type rawID struct {
	value uuid.UUID
}

func newRaw() (rawID, error) {
	v, err := uuid.NewV7()
	if err != nil {
		return rawID{}, fmt.Errorf("%w: %w", ErrNotUUIDv7, err)
	}

	return rawID{value: v}, nil
}

func parseRaw(s string) (rawID, error) {
	if s == "" {
		return rawID{}, ErrEmpty
	}

	v, err := uuid.Parse(s)
	if err != nil {
		return rawID{}, fmt.Errorf("%w: %w", ErrNotUUIDv7, err)
	}

	if v.Version() != 7 {
		return rawID{}, fmt.Errorf("%w: %s has version %d", ErrNotUUIDv7, s, v.Version())
	}

	return rawID{value: v}, nil
}

func (r rawID) String() string { return r.value.String() }

// MarshalJSON emits the identifier as its canonical UUID string, so every
// wrapping type (EventId, MessageId, ...) round-trips across the transport
// boundary without each needing its own implementation.
func (r rawID) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.value.String())
}

// UnmarshalJSON parses the canonical UUID string form, enforcing the same
// v7 requirement as parseRaw.
func (r *rawID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := parseRaw(s)
	if err != nil {
		return err
	}

	*r = parsed

	return nil
}

// Timestamp returns the Unix-millisecond prefix encoded in a UUIDv7 value.
func (r rawID) Timestamp() int64 {
	sec, nsec := r.value.Time().UnixTime()

	return sec*1000 + nsec/int64(1e6)
}
