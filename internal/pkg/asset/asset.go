/*
Package asset holds what generators and loads share: the device abstraction
they read telemetry through and the path their contribution takes to the
owning control area.
*/
package asset

import (
	"github.com/google/uuid"
	"github.com/ohowland/interconnect/internal/pkg/msg"
)

// Identifier is implemented by every unit.
type Identifier interface {
	PID() uuid.UUID
	Name() string
}

// DeviceController is the hardware abstraction layer
type DeviceController interface {
	ReadDeviceStatus() (MachineStatus, error)
	WriteDeviceControl(MachineControl) error
}

// MachineStatus is what a unit reads from its device each step.
type MachineStatus struct {
	Online bool    `json:"Online"`
	KW     float64 `json:"KW"` // MW: generator setpoint or load demand
}

// MachineControl is written back to the device after regulation.
type MachineControl struct {
	KW float64 `json:"KW"`
}

// Unit computes its accounting contribution at a given frequency.
type Unit interface {
	Identifier
	Contribution(frequency, nominal float64) (msg.Update, error)
}

// Send computes the contribution of u and delivers it to its area.
func Send(u Unit, area msg.Receiver, frequency, nominal float64) error {
	c, err := u.Contribution(frequency, nominal)
	if err != nil {
		return err
	}
	return area.Notify(msg.New(u.PID(), msg.Accounting, c))
}
