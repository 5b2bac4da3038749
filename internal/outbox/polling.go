package outbox

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNonFiniteBackoffMultiplier is returned constructing a backoff
// multiplier that is NaN, infinite, or less than 1.0.
var ErrNonFiniteBackoffMultiplier = errors.New("backoff multiplier must be finite and >= 1.0")

// ErrJitterRatioOutOfRange is returned constructing a jitter ratio outside
// [0.0, 1.0] or non-finite.
var ErrJitterRatioOutOfRange = errors.New("jitter ratio must be finite and within [0, 1]")

// ErrBaseGreaterThanMax is returned constructing PollingOptions whose base
// interval exceeds its max interval.
var ErrBaseGreaterThanMax = errors.New("poll base interval is greater than max interval")

// BackoffMultiplier scales the idle-poll interval on each empty fetch
// (spec.md §4.5). 1.0 disables growth.
type BackoffMultiplier float64

// NewBackoffMultiplier validates value is finite and at least 1.0.
func NewBackoffMultiplier(value float64) (BackoffMultiplier, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 1.0 {
		return 0, fmt.Errorf("%w: %v", ErrNonFiniteBackoffMultiplier, value)
	}
	return BackoffMultiplier(value), nil
}

// JitterRatio widens each grown poll interval by this fraction
// (interval × (1 + ratio)); the widening is fixed, not random (spec.md §4.5).
type JitterRatio float64

// NewJitterRatio validates value is finite and within [0, 1].
func NewJitterRatio(value float64) (JitterRatio, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0.0 || value > 1.0 {
		return 0, fmt.Errorf("%w: %v", ErrJitterRatioOutOfRange, value)
	}
	return JitterRatio(value), nil
}

// PollingOptions bounds the relay's idle-poll backoff schedule: how long
// it waits before re-fetching when the previous fetch returned nothing,
// growing from Base towards Max by Multiplier, widened by Jitter.
type PollingOptions struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier BackoffMultiplier
	Jitter     JitterRatio
}

// NewPollingOptions validates Base does not exceed Max.
func NewPollingOptions(base, max time.Duration, multiplier BackoffMultiplier, jitter JitterRatio) (PollingOptions, error) {
	if base > max {
		return PollingOptions{}, fmt.Errorf("%w: base=%s max=%s", ErrBaseGreaterThanMax, base, max)
	}
	return PollingOptions{Base: base, Max: max, Multiplier: multiplier, Jitter: jitter}, nil
}

// Next computes the following poll interval from current: grow by
// opts.Multiplier, widen by opts.Jitter, then clamp to opts.Max.
func Next(current time.Duration, opts PollingOptions) time.Duration {
	nextMs := float64(current.Milliseconds()) * float64(opts.Multiplier)
	if nextMs < 0 {
		nextMs = 0
	}

	if opts.Jitter > 0 {
		nextMs *= 1.0 + float64(opts.Jitter)
	}

	maxMs := float64(opts.Max.Milliseconds())
	if nextMs > maxMs {
		nextMs = maxMs
	}

	return time.Duration(math.Round(nextMs)) * time.Millisecond
}
