package interconnection

import (
	"fmt"
	"strings"
)

// Status of the interconnection after the last advance.
type Status int

const (
	OK Status = iota
	Overcapacity
	Overfrequency
	Underfrequency
	Blackout
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Overcapacity:
		return "OVERCAPACITY"
	case Overfrequency:
		return "OVERFREQUENCY"
	case Underfrequency:
		return "UNDERFREQUENCY"
	case Blackout:
		return "BLACKOUT"
	default:
		return "UNKNOWN"
	}
}

// Bounds is the policy applied at commit when frequency leaves
// [minimum, maximum].
type Bounds int

const (
	NoBounds Bounds = iota
	SoftBounds
	HardBounds
)

func (b Bounds) String() string {
	switch b {
	case NoBounds:
		return "NONE"
	case SoftBounds:
		return "SOFT"
	case HardBounds:
		return "HARD"
	default:
		return fmt.Sprintf("Bounds(%d)", int(b))
	}
}

// ParseBounds reads NONE, SOFT or HARD. Empty defaults to NONE.
func ParseBounds(s string) (Bounds, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE":
		return NoBounds, nil
	case "SOFT":
		return SoftBounds, nil
	case "HARD":
		return HardBounds, nil
	}
	return NoBounds, fmt.Errorf("frequency bounds %q is not NONE, SOFT or HARD", s)
}

// Initialize selects the initial condition check.
type Initialize int

const (
	Transient Initialize = iota
	Steady
	Balanced
)

func (i Initialize) String() string {
	switch i {
	case Transient:
		return "TRANSIENT"
	case Steady:
		return "STEADY"
	case Balanced:
		return "BALANCED"
	default:
		return fmt.Sprintf("Initialize(%d)", int(i))
	}
}

// ParseInitialize reads TRANSIENT, STEADY or BALANCED. Empty defaults to
// TRANSIENT.
func ParseInitialize(s string) (Initialize, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "TRANSIENT":
		return Transient, nil
	case "STEADY":
		return Steady, nil
	case "BALANCED":
		return Balanced, nil
	}
	return Transient, fmt.Errorf("initialize %q is not TRANSIENT, STEADY or BALANCED", s)
}

// InitResult reports whether Init completed or must be retried once control
// areas have registered.
type InitResult int

const (
	Done InitResult = iota
	Deferred
)

func (r InitResult) String() string {
	if r == Deferred {
		return "DEFERRED"
	}
	return "DONE"
}
