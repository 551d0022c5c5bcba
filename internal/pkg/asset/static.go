package asset

import "sync"

// StaticDevice is an in-memory device. Writes are kept and returned by the
// next read.
type StaticDevice struct {
	mux    *sync.Mutex
	status MachineStatus
}

// NewStaticDevice returns a device reporting status until written.
func NewStaticDevice(status MachineStatus) *StaticDevice {
	return &StaticDevice{mux: &sync.Mutex{}, status: status}
}

// ReadDeviceStatus returns the current status.
func (d *StaticDevice) ReadDeviceStatus() (MachineStatus, error) {
	d.mux.Lock()
	defer d.mux.Unlock()
	return d.status, nil
}

// WriteDeviceControl stores the control setpoint.
func (d *StaticDevice) WriteDeviceControl(c MachineControl) error {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.status.KW = c.KW
	return nil
}

// SetOnline changes the availability reported by the device.
func (d *StaticDevice) SetOnline(b bool) {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.status.Online = b
}
