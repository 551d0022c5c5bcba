// Package dispatch resolves exchange schedules for control areas that take
// their schedule from a central authority.
package dispatch

import (
	"github.com/google/uuid"
	"github.com/ohowland/interconnect/internal/pkg/msg"
)

// Dispatcher collects member status and hands back a schedule per member.
type Dispatcher interface {
	UpdateStatus(uuid.UUID, Status)
	DropStatus(uuid.UUID)
	Solve() error
	Schedule(uuid.UUID) (float64, bool)
}

// Status is the part of a control area's accounting the scheduler needs.
type Status struct {
	Net      float64 `json:"Net"`
	Capacity float64 `json:"Capacity"`
	Demand   float64 `json:"Demand"`
	Losses   float64 `json:"Losses"`
}

// FromUpdate maps an accounting tuple to a Status.
func FromUpdate(u msg.Update) Status {
	return Status{
		Net:      u.Net(),
		Capacity: u.Capacity,
		Demand:   u.Demand,
		Losses:   u.Losses,
	}
}
