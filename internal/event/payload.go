package event

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrNullPayload is returned when an event or command payload is JSON null
// or empty, which spec.md §3 disallows ("payload (opaque JSON, non-null)").
var ErrNullPayload = errors.New("payload cannot be null")

// Payload is an opaque, validated JSON document. The framework never
// interprets its contents; it only guarantees the bytes are valid,
// non-null JSON.
type Payload struct {
	raw json.RawMessage
}

// NewPayload validates raw bytes as non-null JSON and wraps them.
func NewPayload(raw []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Payload{}, ErrNullPayload
	}

	if !json.Valid(trimmed) {
		return Payload{}, errors.New("payload is not valid JSON")
	}

	return Payload{raw: json.RawMessage(trimmed)}, nil
}

// Bytes returns the raw JSON bytes.
func (p Payload) Bytes() []byte { return p.raw }

// MarshalJSON implements json.Marshaler by emitting the wrapped document
// verbatim.
func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p.raw) == 0 {
		return []byte("null"), nil
	}

	return p.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler, validating non-nullness.
func (p *Payload) UnmarshalJSON(data []byte) error {
	validated, err := NewPayload(data)
	if err != nil {
		return err
	}

	*p = validated

	return nil
}
