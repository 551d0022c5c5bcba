// Package clock defines simulation time. Timestamps count whole seconds from
// the start of a run.
package clock

import (
	"math"
	"time"
)

// Timestamp is a simulation time in seconds.
type Timestamp int64

const (
	// Never is the wake time of an object that does not need to be revisited.
	Never Timestamp = math.MaxInt64
	// Invalid signals a failed step.
	Invalid Timestamp = -1
)

// Add returns t advanced by dt seconds. The result saturates at Never.
func (t Timestamp) Add(dt float64) Timestamp {
	if t == Never || math.IsInf(dt, 1) || math.IsNaN(dt) {
		return Never
	}
	if dt >= float64(Never-t) {
		return Never
	}
	return t + Timestamp(dt)
}

// Sub returns the number of seconds between u and t.
func (t Timestamp) Sub(u Timestamp) float64 {
	return float64(t - u)
}

// Time converts t to wall-clock time relative to the run start.
func (t Timestamp) Time(start time.Time) time.Time {
	return start.Add(time.Duration(t) * time.Second)
}

// Format renders t as RFC3339 relative to start, or "NEVER".
func (t Timestamp) Format(start time.Time) string {
	switch t {
	case Never:
		return "NEVER"
	case Invalid:
		return "INVALID"
	}
	return t.Time(start).UTC().Format(time.RFC3339)
}

// Min returns the earlier of two timestamps.
func Min(a, b Timestamp) Timestamp {
	if a < b {
		return a
	}
	return b
}
