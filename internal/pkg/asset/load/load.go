// Package load models an aggregate load with under-frequency load shedding
// and an optional state-space demand response.
package load

import (
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/ohowland/interconnect/internal/pkg/asset"
	"github.com/ohowland/interconnect/internal/pkg/clock"
	"github.com/ohowland/interconnect/internal/pkg/fault"
	"github.com/ohowland/interconnect/internal/pkg/msg"
	"github.com/ohowland/interconnect/internal/pkg/report"
	"go.uber.org/zap"
)

// Kind is the report kind of a load snapshot.
const Kind = "load"

// Status of a load.
type Status int

const (
	Online Status = iota
	Shedding
	Offline
	Constrained // demand response is curtailing
)

func (s Status) String() string {
	switch s {
	case Online:
		return "ONLINE"
	case Shedding:
		return "SHEDDING"
	case Offline:
		return "OFFLINE"
	case Constrained:
		return "CONSTRAINED"
	default:
		return "UNKNOWN"
	}
}

// Stage is one under-frequency shedding step: below Frequency, Fraction of
// the demand is dropped.
type Stage struct {
	Frequency float64 `json:"Frequency"` // Hz
	Fraction  float64 `json:"Fraction"`  // pu of demand
}

// Config is the static description of a load.
type Config struct {
	Name    string    `json:"Name"`
	Inertia float64   `json:"Inertia"` // MJ
	Demand  float64   `json:"Demand"`  // MW
	UFLS    []Stage   `json:"UFLS"`
	DR      *Response `json:"DR,omitempty"`
}

// Asset is a load.
type Asset struct {
	mux    *sync.Mutex
	pid    uuid.UUID
	device asset.DeviceController
	config Config
	logger *zap.Logger

	dr     *responder
	demand float64
	shed   float64
	status Status
}

// New returns a configured load reading its demand from device.
func New(config Config, device asset.DeviceController, logger *zap.Logger) (*Asset, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Inertia < 0 || config.Demand < 0 || math.IsNaN(config.Inertia+config.Demand) || math.IsInf(config.Inertia+config.Demand, 0) {
		return nil, fault.Configuration(config.Name, "inertia %g and demand %g must be finite and not negative", config.Inertia, config.Demand)
	}
	stages := append([]Stage(nil), config.UFLS...)
	for _, s := range stages {
		if !(s.Frequency > 0) || !(s.Fraction >= 0 && s.Fraction <= 1) {
			return nil, fault.Configuration(config.Name, "ufls stage %+v is invalid", s)
		}
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].Frequency > stages[j].Frequency })
	config.UFLS = stages

	var dr *responder
	if config.DR != nil {
		r, err := newResponder(*config.DR)
		if err != nil {
			return nil, fault.Configuration(config.Name, "%v", err)
		}
		dr = r
	}

	if device == nil {
		device = asset.NewStaticDevice(asset.MachineStatus{Online: true, KW: config.Demand})
	}
	return &Asset{
		mux:    &sync.Mutex{},
		pid:    uuid.New(),
		device: device,
		config: config,
		dr:     dr,
		logger: logger.Named("load").With(zap.String("unit", config.Name)),
		demand: config.Demand,
	}, nil
}

// PID is an accessor for the process id
func (a *Asset) PID() uuid.UUID { return a.pid }

// Name is an accessor for the configured name
func (a *Asset) Name() string { return a.config.Name }

// Status returns the status after the last Contribution.
func (a *Asset) Status() Status {
	a.mux.Lock()
	defer a.mux.Unlock()
	return a.status
}

// Shed returns the fraction of demand currently shed.
func (a *Asset) Shed() float64 {
	a.mux.Lock()
	defer a.mux.Unlock()
	return a.shed
}

// Response returns the last demand response output and state. ok is false
// without a response model.
func (a *Asset) Response() (y float64, x []float64, ok bool) {
	a.mux.Lock()
	defer a.mux.Unlock()
	if a.dr == nil {
		return 0, nil, false
	}
	return a.dr.y, a.dr.state(), true
}

// Contribution reads the device and returns the load's accounting at the
// given frequency. Shedding latches until frequency recovers above every
// stage. The demand response model advances one step per call.
func (a *Asset) Contribution(frequency, nominal float64) (msg.Update, error) {
	status, err := a.device.ReadDeviceStatus()

	a.mux.Lock()
	defer a.mux.Unlock()
	if err != nil {
		a.logger.Warn("device read failed, using last demand", zap.Error(err))
	} else {
		a.demand = math.Max(status.KW, 0)
		if !status.Online {
			a.status = Offline
			a.shed = 0
			return msg.Update{}, nil
		}
	}

	tripped, recovered := a.trip(frequency)
	switch {
	case recovered:
		if a.shed > 0 {
			a.logger.Info("load restored", zap.Float64("frequency", frequency))
		}
		a.shed = 0
	case tripped > a.shed:
		a.logger.Info("load shedding", zap.Float64("frequency", frequency), zap.Float64("fraction", tripped))
		a.shed = tripped
	}
	demand := a.demand
	a.status = Online
	if a.dr != nil {
		u := 0.0
		if nominal > 0 {
			u = frequency/nominal - 1
		}
		if a.dr.step(u) < 0 {
			a.status = Constrained
		}
		demand = a.dr.demand(demand)
	}
	if a.shed > 0 {
		a.status = Shedding
	}
	return msg.Update{
		Inertia: a.config.Inertia,
		Demand:  demand * (1 - a.shed),
	}, nil
}

// trip returns the largest fraction whose threshold is above frequency, and
// whether frequency is above every threshold.
func (a *Asset) trip(frequency float64) (float64, bool) {
	var fraction float64
	recovered := true
	for _, s := range a.config.UFLS {
		if frequency < s.Frequency {
			recovered = false
			fraction = math.Max(fraction, s.Fraction)
		}
	}
	return fraction, recovered
}

// Snapshot reports the load state.
func (a *Asset) Snapshot(now clock.Timestamp) report.Snapshot {
	a.mux.Lock()
	defer a.mux.Unlock()
	return report.Snapshot{
		Time: now,
		PID:  a.pid,
		Kind: Kind,
		Name: a.config.Name,
		Properties: []report.Property{
			report.Quantity("demand", "MW", a.demand),
			report.Quantity("shed", "pu", a.shed),
			report.Quantity("response", "pu", a.response()),
			report.Quantity("inertia", "MJ", a.config.Inertia),
			report.Enum("status", int(a.status), a.status.String()),
		},
	}
}

func (a *Asset) response() float64 {
	if a.dr == nil {
		return 0
	}
	return a.dr.y
}
