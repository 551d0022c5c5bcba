package config

import (
	"fmt"

	"github.com/ohowland/interconnect/internal/lib/asset/modbusunit"
	"github.com/ohowland/interconnect/internal/pkg/asset"
	"github.com/ohowland/interconnect/internal/pkg/asset/generator"
	"github.com/ohowland/interconnect/internal/pkg/asset/load"
	"github.com/ohowland/interconnect/internal/pkg/controlarea"
	"github.com/ohowland/interconnect/internal/pkg/dispatch"
	"github.com/ohowland/interconnect/internal/pkg/interconnection"
	"github.com/ohowland/interconnect/internal/pkg/intertie"
	"github.com/ohowland/interconnect/internal/pkg/msg"
	"github.com/ohowland/interconnect/internal/pkg/report"
	"go.uber.org/zap"
)

// Binding ties a unit to the area it reports to.
type Binding struct {
	Unit asset.Unit
	Area *controlarea.Area
}

// Network is the set of simulation objects built from a Model. Areas and
// interties are registered with the interconnection in model order.
type Network struct {
	Interconnection *interconnection.Interconnection
	Areas           []*controlarea.Area
	Interties       []*intertie.Intertie
	Generators      []*generator.Asset
	Loads           []*load.Asset
	Bindings        []Binding
	// Dispatch is nil when no area takes a CENTRAL schedule.
	Dispatch *dispatch.Central
}

// Reporters returns every object that exposes a snapshot, interconnection
// first.
func (n *Network) Reporters() []report.Reporter {
	r := []report.Reporter{n.Interconnection}
	for _, a := range n.Areas {
		r = append(r, a)
	}
	for _, t := range n.Interties {
		r = append(r, t)
	}
	for _, g := range n.Generators {
		r = append(r, g)
	}
	for _, l := range n.Loads {
		r = append(r, l)
	}
	return r
}

// Area looks up an area by name.
func (n *Network) Area(name string) (*controlarea.Area, bool) {
	for _, a := range n.Areas {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

// Intertie looks up an intertie by name.
func (n *Network) Intertie(name string) (*intertie.Intertie, bool) {
	for _, t := range n.Interties {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// DeviceFactory opens the device behind a Modbus unit description.
type DeviceFactory func(modbusunit.Config, *zap.Logger) (asset.DeviceController, error)

// ModbusDevices opens units on Modbus TCP.
func ModbusDevices(cfg modbusunit.Config, logger *zap.Logger) (asset.DeviceController, error) {
	return modbusunit.New(cfg, logger)
}

// Build creates and wires the simulation objects. devices opens units that
// name a Modbus target; nil uses ModbusDevices.
func (m Model) Build(logger *zap.Logger, devices DeviceFactory) (*Network, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if devices == nil {
		devices = ModbusDevices
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	icm := m.Interconnection
	if icm.FrequencyResolution > 0 {
		if err := interconnection.SetFrequencyResolution(icm.FrequencyResolution); err != nil {
			return nil, err
		}
	}
	bounds, _ := interconnection.ParseBounds(icm.FrequencyBounds)
	initialize, _ := interconnection.ParseInitialize(icm.Initialize)
	ic, err := interconnection.New(interconnection.Config{
		Name:             icm.Name,
		Frequency:        icm.Frequency,
		NominalFrequency: icm.NominalFrequency,
		MinimumFrequency: icm.MinimumFrequency,
		MaximumFrequency: icm.MaximumFrequency,
		Damping:          icm.Damping,
		Bounds:           bounds,
		Initialize:       initialize,
	}, logger)
	if err != nil {
		return nil, err
	}

	n := &Network{Interconnection: ic}
	byName := make(map[string]*controlarea.Area)
	for _, am := range m.Areas {
		a, err := m.buildArea(am, logger)
		if err != nil {
			return nil, err
		}
		a.Attach(ic)
		if err := ic.Register(msg.KindControlArea, a); err != nil {
			return nil, err
		}
		if a.Config().ScheduleSource == controlarea.Central {
			if n.Dispatch == nil {
				n.Dispatch = dispatch.NewCentral(logger)
			}
			a.SetScheduler(n.Dispatch)
		}
		byName[am.Name] = a
		n.Areas = append(n.Areas, a)

		for _, gm := range am.Generators {
			g, err := buildGenerator(gm, devices, logger)
			if err != nil {
				return nil, err
			}
			if err := a.AddUnit(g); err != nil {
				return nil, err
			}
			n.Generators = append(n.Generators, g)
			n.Bindings = append(n.Bindings, Binding{Unit: g, Area: a})
		}
		for _, lm := range am.Loads {
			l, err := buildLoad(lm, devices, logger)
			if err != nil {
				return nil, err
			}
			if err := a.AddUnit(l); err != nil {
				return nil, err
			}
			n.Loads = append(n.Loads, l)
			n.Bindings = append(n.Bindings, Binding{Unit: l, Area: a})
		}
	}

	for _, tm := range m.Interties {
		inService := true
		if tm.InService != nil {
			inService = *tm.InService
		}
		t, err := intertie.New(intertie.Config{
			Name:       tm.Name,
			Admittance: tm.Admittance,
			Capacity:   tm.Capacity,
			Schedule:   tm.Schedule,
			InService:  inService,
		}, byName[tm.From].PID(), byName[tm.To].PID())
		if err != nil {
			return nil, err
		}
		if err := ic.Register(msg.KindIntertie, t); err != nil {
			return nil, err
		}
		n.Interties = append(n.Interties, t)
	}
	return n, nil
}

func (m Model) buildArea(am AreaModel, logger *zap.Logger) (*controlarea.Area, error) {
	source, _ := controlarea.ParseScheduleSource(am.ScheduleSource)
	policy, _ := controlarea.ParseFailurePolicy(am.OnScheduleFailure)
	c := am.Curve
	return controlarea.New(controlarea.Config{
		Name:              am.Name,
		ScheduleSource:    source,
		Forecast:          am.Forecast,
		Bias:              am.Bias,
		ACEFilter:         am.ACEFilter,
		InternalLosses:    am.InternalLosses,
		AGCGain:           am.AGCGain,
		OnScheduleFailure: policy,
		Curve: controlarea.Curve{
			Pmax: c.Pmax, D: c.D, Qu: c.Qu, Qr: c.Qr,
			Pmin: c.Pmin, S: c.S, Qw: c.Qw, Qg: c.Qg,
		},
	}, logger)
}

func buildGenerator(gm GeneratorModel, devices DeviceFactory, logger *zap.Logger) (*generator.Asset, error) {
	var device asset.DeviceController
	if gm.Modbus != nil {
		d, err := devices(*gm.Modbus, logger)
		if err != nil {
			return nil, fmt.Errorf("generator %s: %w", gm.Name, err)
		}
		device = d
	}
	return generator.New(generator.Config{
		Name:         gm.Name,
		Inertia:      gm.Inertia,
		Capacity:     gm.Capacity,
		Setpoint:     gm.Setpoint,
		Droop:        gm.Droop,
		Losses:       gm.Losses,
		Dispatchable: gm.Dispatchable,
	}, device, logger)
}

func buildLoad(lm LoadModel, devices DeviceFactory, logger *zap.Logger) (*load.Asset, error) {
	var device asset.DeviceController
	if lm.Modbus != nil {
		d, err := devices(*lm.Modbus, logger)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", lm.Name, err)
		}
		device = d
	}
	stages := make([]load.Stage, 0, len(lm.UFLS))
	for _, s := range lm.UFLS {
		stages = append(stages, load.Stage{Frequency: s.Frequency, Fraction: s.Fraction})
	}
	var dr *load.Response
	if lm.DR != nil {
		dr = &load.Response{
			Fraction: lm.DR.Fraction,
			A:        lm.DR.A,
			B:        lm.DR.B,
			C:        lm.DR.C,
			D:        lm.DR.D,
			X:        lm.DR.X,
		}
	}
	return load.New(load.Config{
		Name:    lm.Name,
		Inertia: lm.Inertia,
		Demand:  lm.Demand,
		UFLS:    stages,
		DR:      dr,
	}, device, logger)
}
