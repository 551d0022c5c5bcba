// Package intertie models a transmission tie between two control areas.
package intertie

import (
	"math"

	"github.com/google/uuid"
	"github.com/ohowland/interconnect/internal/pkg/clock"
	"github.com/ohowland/interconnect/internal/pkg/fault"
	"github.com/ohowland/interconnect/internal/pkg/msg"
	"github.com/ohowland/interconnect/internal/pkg/report"
)

// Status of an intertie after the last network solve.
type Status int

const (
	OK Status = iota
	Overcapacity
	OutOfService
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Overcapacity:
		return "OVERCAPACITY"
	case OutOfService:
		return "OUTOFSERVICE"
	default:
		return "UNKNOWN"
	}
}

// Config is the static description of an intertie.
type Config struct {
	Name       string  `json:"Name"`
	Admittance float64 `json:"Admittance"` // MW per unit angle, default 1
	Capacity   float64 `json:"Capacity"`   // MW, 0 is unlimited
	Schedule   float64 `json:"Schedule"`   // MW, positive from -> to
	InService  bool    `json:"InService"`
}

// Intertie connects two control areas by PID.
type Intertie struct {
	pid    uuid.UUID
	from   uuid.UUID
	to     uuid.UUID
	config Config
	flow   float64
	status Status
}

// New returns an intertie from one area to another.
func New(config Config, from, to uuid.UUID) (*Intertie, error) {
	if config.Admittance == 0 {
		config.Admittance = 1
	}
	switch {
	case from == to:
		return nil, fault.Configuration(config.Name, "intertie connects an area to itself")
	case !(config.Admittance > 0) || math.IsInf(config.Admittance, 0):
		return nil, fault.Configuration(config.Name, "admittance %g must be positive", config.Admittance)
	case config.Capacity < 0 || math.IsNaN(config.Capacity):
		return nil, fault.Configuration(config.Name, "capacity %g must not be negative", config.Capacity)
	}
	t := &Intertie{
		pid:    uuid.New(),
		from:   from,
		to:     to,
		config: config,
	}
	if !config.InService {
		t.status = OutOfService
	}
	return t, nil
}

// PID is an accessor for the process id
func (t *Intertie) PID() uuid.UUID { return t.pid }

// Name is an accessor for the configured name
func (t *Intertie) Name() string { return t.config.Name }

// IsA reports the intertie capability.
func (t *Intertie) IsA(kind string) bool { return kind == msg.KindIntertie }

// From is the sending control area.
func (t *Intertie) From() uuid.UUID {
	return t.from
}

// To is the receiving control area.
func (t *Intertie) To() uuid.UUID {
	return t.to
}

// Admittance in MW per radian.
func (t *Intertie) Admittance() float64 {
	return t.config.Admittance
}

// Capacity is the thermal limit in MW.
func (t *Intertie) Capacity() float64 {
	return t.config.Capacity
}

// InService reports whether the tie is closed.
func (t *Intertie) InService() bool {
	return t.config.InService
}

// Flow is the solved transfer from From to To, in MW.
func (t *Intertie) Flow() float64 {
	return t.flow
}

// Schedule is the agreed transfer from From to To, in MW.
func (t *Intertie) Schedule() float64 {
	return t.config.Schedule
}

// Status reports the loading band of the last solution.
func (t *Intertie) Status() Status {
	return t.status
}

// SetSchedule replaces the agreed transfer.
func (t *Intertie) SetSchedule(v float64) {
	t.config.Schedule = v
}

// Actual is the metered transfer, equal to the solved flow.
func (t *Intertie) Actual() float64 { return t.flow }

// SetInService opens or closes the tie. The owning interconnection notices
// the topology change at its next sync.
func (t *Intertie) SetInService(b bool) {
	t.config.InService = b
	if !b {
		t.flow = 0
		t.status = OutOfService
	} else if t.status == OutOfService {
		t.status = OK
	}
}

// SetFlow records the result of a network solve.
func (t *Intertie) SetFlow(flow float64, overloaded bool) {
	if !t.config.InService {
		t.flow = 0
		t.status = OutOfService
		return
	}
	t.flow = flow
	if overloaded {
		t.status = Overcapacity
	} else {
		t.status = OK
	}
}

// Snapshot reports the intertie state.
func (t *Intertie) Snapshot(now clock.Timestamp) report.Snapshot {
	inService := 0.0
	if t.config.InService {
		inService = 1
	}
	return report.Snapshot{
		Time: now,
		PID:  t.pid,
		Kind: msg.KindIntertie,
		Name: t.config.Name,
		Properties: []report.Property{
			report.Quantity("flow", "MW", t.flow),
			report.Quantity("schedule", "MW", t.config.Schedule),
			report.Quantity("actual", "MW", t.Actual()),
			report.Quantity("capacity", "MW", t.config.Capacity),
			report.Quantity("admittance", "MW", t.config.Admittance),
			report.Property{Name: "in_service", Value: inService, Text: boolText(t.config.InService)},
			report.Enum("status", int(t.status), t.status.String()),
		},
	}
}

func boolText(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
