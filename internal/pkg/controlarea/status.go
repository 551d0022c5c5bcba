package controlarea

import (
	"fmt"
	"strings"
)

// Status of a control area, in decreasing priority.
type Status int

const (
	OK Status = iota
	Overcapacity
	Constrained
	Island
	Unscheduled
	Blackout
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Overcapacity:
		return "OVERCAPACITY"
	case Constrained:
		return "CONSTRAINED"
	case Island:
		return "ISLAND"
	case Unscheduled:
		return "UNSCHEDULED"
	case Blackout:
		return "BLACKOUT"
	default:
		return "UNKNOWN"
	}
}

// ScheduleSource selects where the exchange schedule comes from.
type ScheduleSource int

const (
	Central ScheduleSource = iota
	Local
)

func (s ScheduleSource) String() string {
	switch s {
	case Central:
		return "CENTRAL"
	case Local:
		return "LOCAL"
	default:
		return "UNKNOWN"
	}
}

// ParseScheduleSource reads CENTRAL or LOCAL. Empty defaults to CENTRAL.
func ParseScheduleSource(s string) (ScheduleSource, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "CENTRAL":
		return Central, nil
	case "LOCAL":
		return Local, nil
	}
	return Central, fmt.Errorf("schedule source %q is not CENTRAL or LOCAL", s)
}

// FailurePolicy is the set of actions taken when no schedule is found. The
// empty set escalates to UNSCHEDULED with a warning.
type FailurePolicy uint8

const (
	Ignore FailurePolicy = 1 << iota
	Dump

	None FailurePolicy = 0
)

// Has reports whether p includes every flag of q.
func (p FailurePolicy) Has(q FailurePolicy) bool {
	return q != None && p&q == q
}

func (p FailurePolicy) String() string {
	if p == None {
		return "NONE"
	}
	var parts []string
	if p.Has(Ignore) {
		parts = append(parts, "IGNORE")
	}
	if p.Has(Dump) {
		parts = append(parts, "DUMP")
	}
	return strings.Join(parts, "|")
}

// ParseFailurePolicy reads a "|" separated set such as "IGNORE|DUMP".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	var p FailurePolicy
	for _, part := range strings.Split(s, "|") {
		switch strings.ToUpper(strings.TrimSpace(part)) {
		case "", "NONE":
		case "IGNORE":
			p |= Ignore
		case "DUMP":
			p |= Dump
		default:
			return None, fmt.Errorf("schedule failure policy %q is not recognized", part)
		}
	}
	return p, nil
}
