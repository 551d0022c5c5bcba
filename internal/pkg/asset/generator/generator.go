// Package generator models a governor-controlled generating unit.
package generator

import (
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/ohowland/interconnect/internal/pkg/asset"
	"github.com/ohowland/interconnect/internal/pkg/clock"
	"github.com/ohowland/interconnect/internal/pkg/fault"
	"github.com/ohowland/interconnect/internal/pkg/msg"
	"github.com/ohowland/interconnect/internal/pkg/report"
	"go.uber.org/zap"
)

// Kind is the report kind of a generator snapshot.
const Kind = "generator"

// Config is the static description of a generator.
type Config struct {
	Name         string  `json:"Name"`
	Inertia      float64 `json:"Inertia"`  // MJ
	Capacity     float64 `json:"Capacity"` // MW
	Setpoint     float64 `json:"Setpoint"` // MW
	Droop        float64 `json:"Droop"`    // pu, 0 disables governor response
	Losses       float64 `json:"Losses"`   // pu of output
	Dispatchable bool    `json:"Dispatchable"`
}

// Asset is a generator.
type Asset struct {
	mux    *sync.Mutex
	pid    uuid.UUID
	device asset.DeviceController
	config Config
	logger *zap.Logger

	online   bool
	setpoint float64
	output   float64
}

// New returns a configured generator reading its setpoint from device.
func New(config Config, device asset.DeviceController, logger *zap.Logger) (*Asset, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for name, v := range map[string]float64{
		"inertia":  config.Inertia,
		"capacity": config.Capacity,
		"setpoint": config.Setpoint,
		"droop":    config.Droop,
		"losses":   config.Losses,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fault.Configuration(config.Name, "%s %g must be finite and not negative", name, v)
		}
	}
	if config.Losses >= 1 {
		return nil, fault.Configuration(config.Name, "losses %g must be below 1", config.Losses)
	}
	if device == nil {
		device = asset.NewStaticDevice(asset.MachineStatus{Online: true, KW: config.Setpoint})
	}
	return &Asset{
		mux:      &sync.Mutex{},
		pid:      uuid.New(),
		device:   device,
		config:   config,
		logger:   logger.Named("generator").With(zap.String("unit", config.Name)),
		online:   true,
		setpoint: config.Setpoint,
	}, nil
}

// PID is an accessor for the process id
func (a *Asset) PID() uuid.UUID { return a.pid }

// Name is an accessor for the configured name
func (a *Asset) Name() string { return a.config.Name }

// Capacity is the rated output.
func (a *Asset) Capacity() float64 { return a.config.Capacity }

// Dispatchable reports whether AGC may move the setpoint.
func (a *Asset) Dispatchable() bool { return a.config.Dispatchable }

// Setpoint returns the scheduled output.
func (a *Asset) Setpoint() float64 {
	a.mux.Lock()
	defer a.mux.Unlock()
	return a.setpoint
}

// Output returns the output computed by the last Contribution.
func (a *Asset) Output() float64 {
	a.mux.Lock()
	defer a.mux.Unlock()
	return a.output
}

// Contribution reads the device and returns the unit's accounting at the
// given frequency. A failed read keeps the last known setpoint.
func (a *Asset) Contribution(frequency, nominal float64) (msg.Update, error) {
	status, err := a.device.ReadDeviceStatus()

	a.mux.Lock()
	defer a.mux.Unlock()
	if err != nil {
		a.logger.Warn("device read failed, using last setpoint", zap.Error(err))
	} else {
		a.online = status.Online
		a.setpoint = clamp(status.KW, 0, a.config.Capacity)
	}
	if !a.online {
		a.output = 0
		return msg.Update{}, nil
	}

	out := a.setpoint
	if a.config.Droop > 0 && nominal > 0 {
		out -= a.config.Capacity * (frequency/nominal - 1) / a.config.Droop
	}
	a.output = clamp(out, 0, a.config.Capacity)
	return msg.Update{
		Inertia:  a.config.Inertia,
		Capacity: a.config.Capacity,
		Supply:   a.output,
		Losses:   a.output * a.config.Losses,
	}, nil
}

// Regulate moves the setpoint by delta within [0, capacity] and returns the
// change actually applied.
func (a *Asset) Regulate(delta float64) float64 {
	if !a.config.Dispatchable || math.IsNaN(delta) {
		return 0
	}
	a.mux.Lock()
	next := clamp(a.setpoint+delta, 0, a.config.Capacity)
	applied := next - a.setpoint
	a.setpoint = next
	a.mux.Unlock()

	if err := a.device.WriteDeviceControl(asset.MachineControl{KW: next}); err != nil {
		a.logger.Warn("device write failed", zap.Error(err))
	}
	return applied
}

// Snapshot reports the generator state.
func (a *Asset) Snapshot(now clock.Timestamp) report.Snapshot {
	a.mux.Lock()
	defer a.mux.Unlock()
	online := 0.0
	if a.online {
		online = 1
	}
	return report.Snapshot{
		Time: now,
		PID:  a.pid,
		Kind: Kind,
		Name: a.config.Name,
		Properties: []report.Property{
			report.Quantity("setpoint", "MW", a.setpoint),
			report.Quantity("output", "MW", a.output),
			report.Quantity("capacity", "MW", a.config.Capacity),
			report.Quantity("inertia", "MJ", a.config.Inertia),
			report.Property{Name: "online", Value: online, Text: map[bool]string{true: "TRUE", false: "FALSE"}[a.online]},
		},
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
