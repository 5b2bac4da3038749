// Package names provides validated snake_case identifiers shared across the
// outbox framework: aggregate types, event/command names, saga and
// projector names, relation names, and subject kinds. Rejection is total —
// no silent normalization is ever applied.
package names

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrEmpty is returned when a name is the empty string.
	ErrEmpty = errors.New("name cannot be empty")
	// ErrTooLong is returned when a name exceeds its type's maximum length.
	ErrTooLong = errors.New("name exceeds maximum length")
	// ErrInvalidFormat is returned when a name contains characters outside [a-z0-9_].
	ErrInvalidFormat = errors.New("name must be snake_case ASCII [a-z0-9_]")
)

var pattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// validate enforces the shared snake_case/non-empty/max-length contract.
// kind is used only to make error messages self-describing.
func validate(kind, value string, maxLen int) error {
	if value == "" {
		return fmt.Errorf("%s: %w", kind, ErrEmpty)
	}

	if len(value) > maxLen {
		return fmt.Errorf("%s %q: %w (max %d)", kind, value, ErrTooLong, maxLen)
	}

	if !pattern.MatchString(value) {
		return fmt.Errorf("%s %q: %w", kind, value, ErrInvalidFormat)
	}

	return nil
}

// short is the budget for names bounded at 50 chars by spec.
const short = 50

// long is the budget for names bounded at 100 chars by spec.
const long = 100
