package relayconfig

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is time.Duration with YAML support for Go's duration string
// syntax ("45s", "2m30s"), since yaml.v3 only knows how to decode a bare
// int64 into a plain time.Duration field.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("relayconfig: decode duration: %w", err)
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("relayconfig: parse duration %q: %w", raw, err)
	}

	*d = Duration(parsed)

	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// String renders d the same way time.Duration does.
func (d Duration) String() string {
	return time.Duration(d).String()
}
