// Package command implements the Command Pipeline's dispatcher half of
// spec.md §3/§4.7: canonical command hashing and the Command Dispatcher
// that wraps one CommandHandler invocation in a Unit of Work. The
// idempotency dedupe half lives in internal/idempotency.
package command

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalHash implements spec.md §3's Command Hash: canonicalize the
// payload by recursively sorting object keys lexicographically, then
// SHA-256 the UTF-8 serialization, emitted as 64-char lowercase hex.
// encoding/json already sorts map[string]any keys lexicographically when
// marshaling (documented behavior), so decoding into interface{} with
// UseNumber (to avoid float64 rounding large integers) and re-marshaling
// is sufficient canonicalization without a hand-rolled key sort.
func CanonicalHash(payload []byte) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)

	return hex.EncodeToString(sum[:]), nil
}

// Canonicalize returns payload's canonical JSON serialization: object keys
// sorted lexicographically at every nesting level, numbers preserved
// exactly as written.
func Canonicalize(payload []byte) ([]byte, error) {
	var value any

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("canonicalize payload: decode: %w", err)
	}

	canonical, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: encode: %w", err)
	}

	return canonical, nil
}
