// Package modbusunit reads generator and load telemetry from a Modbus TCP
// device.
package modbusunit

import (
	"fmt"

	"github.com/ohowland/interconnect/internal/pkg/asset"
	"github.com/ohowland/interconnect/internal/pkg/comm/modbuscomm"
	"go.uber.org/zap"
)

// Config describes the target and its register map.
type Config struct {
	Target    modbuscomm.PollerConfig `json:"TargetConfig" yaml:"target"`
	Registers []modbuscomm.Register   `json:"Registers" yaml:"registers"`
	Power     string                  `json:"Power" yaml:"power"`   // register holding MW, default "kw"
	Online    string                  `json:"Online" yaml:"online"` // register holding availability, optional
}

// ModbusUnit implements asset.DeviceController.
type ModbusUnit struct {
	comm      modbuscomm.ModbusComm
	readable  []modbuscomm.Register
	writeable []modbuscomm.Register
	power     string
	online    string
}

// New connects a unit to its Modbus target.
func New(cfg Config, logger *zap.Logger) (*ModbusUnit, error) {
	return NewWithComm(modbuscomm.NewPoller(cfg.Target, logger), cfg)
}

// NewWithComm builds a unit on an existing register transport.
func NewWithComm(comm modbuscomm.ModbusComm, cfg Config) (*ModbusUnit, error) {
	if cfg.Power == "" {
		cfg.Power = "kw"
	}
	for _, r := range cfg.Registers {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	u := &ModbusUnit{
		comm:      comm,
		readable:  modbuscomm.FilterRegisters(cfg.Registers, modbuscomm.ReadOnly),
		writeable: modbuscomm.FilterRegisters(cfg.Registers, modbuscomm.WriteOnly),
		power:     cfg.Power,
		online:    cfg.Online,
	}
	if !contains(u.readable, u.power) {
		return nil, fmt.Errorf("modbus unit: power register %q is not readable", u.power)
	}
	if u.online != "" && !contains(u.readable, u.online) {
		return nil, fmt.Errorf("modbus unit: online register %q is not readable", u.online)
	}
	return u, nil
}

// ReadDeviceStatus requests a physical device read over the communication interface
func (u *ModbusUnit) ReadDeviceStatus() (asset.MachineStatus, error) {
	values, err := u.comm.Read(u.readable)
	if err != nil {
		return asset.MachineStatus{}, err
	}
	kw, ok := values[u.power]
	if !ok {
		return asset.MachineStatus{}, fmt.Errorf("modbus unit: no value for %s", u.power)
	}
	status := asset.MachineStatus{Online: true, KW: kw}
	if u.online != "" {
		status.Online = values[u.online] != 0
	}
	return status, nil
}

// WriteDeviceControl writes the setpoint when the power register is writeable.
func (u *ModbusUnit) WriteDeviceControl(c asset.MachineControl) error {
	if !contains(u.writeable, u.power) {
		return nil
	}
	return u.comm.Write(u.writeable, map[string]float64{u.power: c.KW})
}

func contains(registers []modbuscomm.Register, name string) bool {
	for _, r := range registers {
		if r.Name == name {
			return true
		}
	}
	return false
}
