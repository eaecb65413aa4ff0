package queue

import (
	"fmt"
	"time"
)

// Backend-imposed bounds. Lease durations and retention periods outside
// these ranges are clamped silently before submission, matching SQS limits.
const (
	MinLeaseDuration = 1 * time.Second
	MaxLeaseDuration = 12 * time.Hour

	MinRetentionPeriod = 60 * time.Second
	MaxRetentionPeriod = 14 * 24 * time.Hour

	// DefaultMaxReceiveCount is used when a queue is resolved from the
	// backend without a locally known retry policy. The backend does not
	// persist this concept.
	DefaultMaxReceiveCount = 3

	// DefaultLeaseDuration matches the SQS default visibility timeout.
	DefaultLeaseDuration = 30 * time.Second
)

// Config is the immutable retry/lease/retention policy bound to a queue
// instance. Changing policy requires creating a new queue binding.
type Config struct {
	// MaxReceiveCount is the retry threshold: attempts at or above it
	// route a rejected message to the dead-letter queue instead of
	// requeueing it.
	MaxReceiveCount int

	// LeaseDuration is the visibility timeout requested on reservation.
	LeaseDuration time.Duration

	// RetentionPeriod is how long the backend keeps unconsumed messages.
	// Zero means the backend default.
	RetentionPeriod time.Duration
}

// DefaultConfig returns the policy used when none is supplied.
func DefaultConfig() Config {
	return Config{
		MaxReceiveCount: DefaultMaxReceiveCount,
		LeaseDuration:   DefaultLeaseDuration,
	}
}

// Validate checks the invariants from the configuration surface.
func (c Config) Validate() error {
	if c.MaxReceiveCount <= 0 {
		return fmt.Errorf("maxReceiveCount must be positive, got %d", c.MaxReceiveCount)
	}
	if c.LeaseDuration <= 0 {
		return fmt.Errorf("leaseDuration must be positive, got %s", c.LeaseDuration)
	}
	if c.RetentionPeriod < 0 {
		return fmt.Errorf("retentionPeriod must not be negative, got %s", c.RetentionPeriod)
	}
	return nil
}

// LeaseSeconds returns the lease duration clamped to backend bounds, in
// whole seconds as the backend requires.
func (c Config) LeaseSeconds() int32 {
	return int32(clampDuration(c.LeaseDuration, MinLeaseDuration, MaxLeaseDuration) / time.Second)
}

// RetentionSeconds returns the retention period clamped to backend bounds,
// in whole seconds, and false when the backend default should apply.
func (c Config) RetentionSeconds() (int32, bool) {
	if c.RetentionPeriod == 0 {
		return 0, false
	}
	return int32(clampDuration(c.RetentionPeriod, MinRetentionPeriod, MaxRetentionPeriod) / time.Second), true
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
