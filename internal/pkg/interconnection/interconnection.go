/*
Package interconnection integrates the frequency of a synchronous
interconnection. Control areas report their aggregate accounting once per
step; the interconnection solves the intertie flows, advances the swing
equation and checks the result against its frequency bounds at commit.
*/
package interconnection

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/ohowland/interconnect/internal/pkg/clock"
	"github.com/ohowland/interconnect/internal/pkg/fault"
	"github.com/ohowland/interconnect/internal/pkg/msg"
	"github.com/ohowland/interconnect/internal/pkg/solver"
	"go.uber.org/zap"
)

// FrequencyResolution is the frequency change, in Hz, that forces the next
// wake. It applies to every interconnection in the process.
var FrequencyResolution = 0.001

// SetFrequencyResolution changes FrequencyResolution.
func SetFrequencyResolution(hz float64) error {
	if !(hz > 0) || math.IsInf(hz, 0) {
		return fmt.Errorf("frequency resolution %g must be positive", hz)
	}
	FrequencyResolution = hz
	return nil
}

// steadyTolerance is the largest residual injection, relative to the
// injection norm, accepted by a STEADY start.
const steadyTolerance = 0.001

// Area is a control area as seen by the interconnection.
type Area interface {
	msg.Registrant
	Injection() float64
	SetExchange(actual float64, island bool)
}

// Line is an intertie as seen by the interconnection.
type Line interface {
	msg.Registrant
	From() uuid.UUID
	To() uuid.UUID
	Admittance() float64
	Capacity() float64
	InService() bool
	SetFlow(flow float64, overloaded bool)
}

// Config is the static description of an interconnection.
type Config struct {
	Name             string     `json:"Name"`
	Frequency        float64    `json:"Frequency"`        // Hz, initial
	NominalFrequency float64    `json:"NominalFrequency"` // Hz
	MinimumFrequency float64    `json:"MinimumFrequency"` // Hz
	MaximumFrequency float64    `json:"MaximumFrequency"` // Hz
	Damping          float64    `json:"Damping"`          // MW/Hz
	Bounds           Bounds     `json:"Bounds"`
	Initialize       Initialize `json:"Initialize"`
}

// Interconnection is the synchronous system frequency integrator.
type Interconnection struct {
	pid    uuid.UUID
	config Config
	logger *zap.Logger

	areas     []Area
	lines     []Line
	solver    *solver.Solver
	inService []bool
	solution  solver.Solution

	initialized bool
	updates     int
	totals      msg.Update
	imbalance   float64

	frequency float64
	f0        float64
	fr        float64
	df        float64
	t0        clock.Timestamp
	next      clock.Timestamp

	lastSolution clock.Timestamp
	status       Status
}

// New returns a configured Interconnection. Zero frequencies default to the
// 60 Hz nominal with a 59.5 to 60.5 Hz band.
func New(config Config, logger *zap.Logger) (*Interconnection, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Name == "" {
		config.Name = "interconnection"
	}
	if config.NominalFrequency == 0 {
		config.NominalFrequency = 60
	}
	if config.Frequency == 0 {
		config.Frequency = config.NominalFrequency
	}
	if config.MinimumFrequency == 0 {
		config.MinimumFrequency = config.NominalFrequency - 0.5
	}
	if config.MaximumFrequency == 0 {
		config.MaximumFrequency = config.NominalFrequency + 0.5
	}
	switch {
	case !(config.NominalFrequency > 0) || math.IsInf(config.NominalFrequency, 0):
		return nil, fault.Configuration(config.Name, "nominal frequency %g must be positive", config.NominalFrequency)
	case !(config.Frequency > 0) || math.IsInf(config.Frequency, 0):
		return nil, fault.Configuration(config.Name, "frequency %g must be positive", config.Frequency)
	case !(config.MinimumFrequency < config.MaximumFrequency):
		return nil, fault.Configuration(config.Name, "minimum frequency %g must be below maximum %g", config.MinimumFrequency, config.MaximumFrequency)
	case math.IsNaN(config.Damping) || math.IsInf(config.Damping, 0):
		return nil, fault.Configuration(config.Name, "damping %g is not finite", config.Damping)
	}
	return &Interconnection{
		pid:       uuid.New(),
		config:    config,
		logger:    logger.Named("interconnection"),
		solver:    solver.New(config.Name),
		frequency: config.Frequency,
		f0:        config.Frequency,
		next:      clock.Never,
	}, nil
}

// PID is an accessor for the process id
func (ic *Interconnection) PID() uuid.UUID { return ic.pid }

// Name is an accessor for the configured name
func (ic *Interconnection) Name() string { return ic.config.Name }

// IsA reports the interconnection capability.
func (ic *Interconnection) IsA(kind string) bool { return kind == "interconnection" }

// Config returns the configuration as given to New, with defaults applied.
func (ic *Interconnection) Config() Config { return ic.config }

// Areas returns the registered control areas in registration order.
func (ic *Interconnection) Areas() []Area { return append([]Area(nil), ic.areas...) }

// Lines returns the registered interties in registration order.
func (ic *Interconnection) Lines() []Line { return append([]Line(nil), ic.lines...) }

// Register adds a control area or intertie.
func (ic *Interconnection) Register(kind string, obj msg.Registrant) error {
	if obj == nil {
		return fault.Configuration(ic.config.Name, "cannot register a nil %s", kind)
	}
	if !obj.IsA(kind) {
		return fault.Configuration(obj.Name(), "object is not a %s", kind)
	}
	switch kind {
	case msg.KindControlArea:
		area, ok := obj.(Area)
		if !ok {
			return fault.Configuration(obj.Name(), "object does not implement a control area")
		}
		ic.areas = append(ic.areas, area)
	case msg.KindIntertie:
		line, ok := obj.(Line)
		if !ok {
			return fault.Configuration(obj.Name(), "object does not implement an intertie")
		}
		ic.lines = append(ic.lines, line)
	default:
		return fault.Configuration(obj.Name(), "cannot register kind %q", kind)
	}
	if ic.initialized {
		ic.solver.Invalidate()
	}
	ic.logger.Debug("registered", zap.String("kind", kind), zap.String("name", obj.Name()))
	return nil
}

// Notify handles Registration and accounting messages.
func (ic *Interconnection) Notify(m msg.Msg) error {
	switch m.Topic() {
	case msg.Register:
		r, ok := m.Payload().(msg.Registration)
		if !ok {
			return fault.Message(ic.config.Name, "register payload %T is not a registration", m.Payload())
		}
		return ic.Register(r.Kind, r.Object)
	case msg.Accounting:
		u, err := msg.AsUpdate(m)
		if err != nil {
			return fault.Message(ic.config.Name, "%v", err)
		}
		return ic.ApplyAreaStatus(u)
	}
	return fault.Message(ic.config.Name, "unexpected %v message from %s", m.Topic(), m.PID())
}

// ApplyAreaStatus accumulates one control area's aggregate.
func (ic *Interconnection) ApplyAreaStatus(u msg.Update) error {
	if len(ic.areas) == 0 {
		return fault.Configuration(ic.config.Name, "update received but no control areas are registered")
	}
	ic.totals = ic.totals.Add(u)
	ic.updates++
	return nil
}

// Updates returns the number of area updates received this step.
func (ic *Interconnection) Updates() int { return ic.updates }

// Init checks the configuration and builds the network. It is deferred until
// at least one control area has registered.
func (ic *Interconnection) Init() (InitResult, error) {
	if len(ic.areas) == 0 {
		ic.logger.Debug("init deferred: no control areas")
		return Deferred, nil
	}
	if ic.frequency != ic.config.NominalFrequency {
		ic.logger.Warn("initial off-nominal frequency",
			zap.Float64("frequency", ic.frequency),
			zap.Float64("nominal", ic.config.NominalFrequency))
	}
	if ic.config.Damping < 0 {
		return Done, fault.Configuration(ic.config.Name, "negative damping %g is not allowed", ic.config.Damping)
	}

	if len(ic.lines) > 0 {
		if err := ic.build(); err != nil {
			return Done, err
		}
		if !ic.solver.IsReady() || !ic.solver.IsUsed() {
			return Done, fault.Configuration(ic.config.Name, "solver is not ready")
		}
		if err := ic.solve(); err != nil {
			return Done, err
		}
		ic.lastSolution = ic.t0

		switch ic.config.Initialize {
		case Balanced:
			return Done, fault.Configuration(ic.config.Name, "balanced initialization is not supported")
		case Steady:
			if err := ic.checkSteady(); err != nil {
				return Done, err
			}
		case Transient:
		default:
			return Done, fault.Configuration(ic.config.Name, "initialize value %d is invalid", int(ic.config.Initialize))
		}
	} else if len(ic.areas) > 1 {
		return Done, fault.Configuration(ic.config.Name, "system has %d control areas but no interties", len(ic.areas))
	}

	ic.initialized = true
	ic.logger.Info("initialized",
		zap.Int("controlareas", len(ic.areas)),
		zap.Int("interties", len(ic.lines)),
		zap.Stringer("initialize", ic.config.Initialize))
	return Done, nil
}

// checkSteady requires the residual injection left after the network solve
// to be small against the injections themselves.
func (ic *Interconnection) checkSteady() error {
	b := ic.solver.Injections()
	r := solver.Norm2(ic.solution.Residual)
	limit := steadyTolerance * solver.Norm2(b)
	if r > limit {
		return &fault.Error{
			Kind:      fault.ErrConfiguration,
			Object:    ic.config.Name,
			Quantity:  "residual",
			Value:     r,
			Threshold: limit,
			Detail:    "interconnection is not at steady state",
		}
	}
	return nil
}

// Initialized reports whether Init completed.
func (ic *Interconnection) Initialized() bool { return ic.initialized }

// PreCommit captures the frequency at the start of the step.
func (ic *Interconnection) PreCommit(t0 clock.Timestamp) {
	ic.f0 = ic.frequency
	ic.fr = ic.frequency/ic.config.NominalFrequency - 1
	ic.t0 = t0
	ic.lastSolution = t0
}

// PreSync resets the accumulators and rebuilds the network when the topology
// changed since the last build.
func (ic *Interconnection) PreSync() error {
	if len(ic.areas) > 0 {
		ic.updates = 0
		ic.totals = msg.Update{}
	}
	if !ic.initialized || len(ic.lines) == 0 {
		return nil
	}
	if ic.solver.Stale() || ic.topologyChanged() {
		ic.logger.Info("topology changed, rebuilding network")
		return ic.build()
	}
	return nil
}

func (ic *Interconnection) topologyChanged() bool {
	if len(ic.inService) != len(ic.lines) {
		return true
	}
	for i, l := range ic.lines {
		if l.InService() != ic.inService[i] {
			return true
		}
	}
	return false
}

func (ic *Interconnection) build() error {
	index := make(map[uuid.UUID]int, len(ic.areas))
	nodes := make([]solver.Node, len(ic.areas))
	for i, a := range ic.areas {
		index[a.PID()] = i
		nodes[i] = a
	}
	branches := make([]solver.Branch, len(ic.lines))
	ic.inService = make([]bool, len(ic.lines))
	for l, line := range ic.lines {
		from, ok := index[line.From()]
		if !ok {
			return fault.Configuration(line.Name(), "from area %s is not registered", line.From())
		}
		to, ok := index[line.To()]
		if !ok {
			return fault.Configuration(line.Name(), "to area %s is not registered", line.To())
		}
		branches[l] = solver.Branch{
			From:       from,
			To:         to,
			Admittance: line.Admittance(),
			Capacity:   line.Capacity(),
			InService:  line.InService(),
		}
		ic.inService[l] = line.InService()
	}
	return ic.solver.Build(nodes, branches)
}

// solve runs the network solve and pushes the results to areas and lines.
// Without interties every area is its own balancing island of one.
func (ic *Interconnection) solve() error {
	if len(ic.lines) == 0 || !ic.solver.IsUsed() {
		for _, a := range ic.areas {
			a.SetExchange(0, false)
		}
		return nil
	}
	ic.solver.RefreshInjections()
	sol, err := ic.solver.Solve()
	if err != nil {
		return err
	}
	ic.solution = sol
	for i, a := range ic.areas {
		a.SetExchange(sol.Exchange[i], sol.Island[i])
	}
	for l, line := range ic.lines {
		line.SetFlow(sol.Flows[l], sol.Overloaded[l])
	}
	return nil
}

// Solution returns the last network solution.
func (ic *Interconnection) Solution() solver.Solution { return ic.solution }

// Advance solves the network and integrates frequency from the start of the
// step to t1. It returns the next time frequency needs to be revisited.
// Calling it again with the same t1 gives the same result.
func (ic *Interconnection) Advance(t1 clock.Timestamp) (clock.Timestamp, error) {
	dt := t1.Sub(ic.t0)
	if err := ic.solve(); err != nil {
		return clock.Invalid, err
	}
	ic.lastSolution = t1

	ic.warn()
	ic.imbalance = ic.totals.Net()
	ic.df = 0
	ic.next = clock.Never
	ic.frequency = ic.f0

	if ic.totals.Inertia >= 1e-9 {
		wr := ic.f0 / ic.config.NominalFrequency
		ic.df = 2 / (ic.totals.Inertia * wr * wr) * (ic.imbalance - ic.totals.Demand*ic.config.Damping*ic.fr)
		ic.frequency = ic.f0 + ic.df*dt
		ic.next = nextWake(t1, ic.df)
	}
	ic.status = ic.evaluate()

	ic.logger.Debug("advance",
		zap.Int64("t1", int64(t1)),
		zap.Float64("supply", ic.totals.Supply),
		zap.Float64("demand", ic.totals.Demand),
		zap.Float64("losses", ic.totals.Losses),
		zap.Float64("imbalance", ic.imbalance),
		zap.Float64("imbalance_pct", ic.imbalance/ic.totals.Supply*100),
		zap.Float64("inertia", ic.totals.Inertia),
		zap.Float64("frequency", ic.frequency),
		zap.Float64("dfdt", ic.df),
		zap.Int64("steady_until", int64(ic.next)),
	)
	return ic.next, nil
}

// nextWake is the time the frequency moves by one resolution step, no sooner
// than one second after t1.
func nextWake(t1 clock.Timestamp, df float64) clock.Timestamp {
	if df == 0 {
		return clock.Never
	}
	dt1 := FrequencyResolution / math.Abs(df)
	if dt1 < 1 {
		dt1 = 1
	}
	return t1.Add(dt1)
}

func (ic *Interconnection) warn() {
	check := func(name string, v float64, negative, zero string) {
		if v < 0 {
			ic.logger.Warn(negative, zap.Float64(name, v))
		}
		if v < 1e-9 {
			ic.logger.Warn(zero, zap.Float64(name, v))
		}
	}
	check("inertia", ic.totals.Inertia, "system inertia is negative", "system inertia is zero")
	check("capacity", ic.totals.Capacity, "system capacity is negative", "system capacity is zero")
	check("supply", ic.totals.Supply, "supply is negative", "supply is zero")
	check("demand", ic.totals.Demand, "demand is negative", "demand is zero")
}

func (ic *Interconnection) evaluate() Status {
	switch {
	case ic.totals.Supply > ic.totals.Capacity:
		return Overcapacity
	case ic.frequency > ic.config.MaximumFrequency:
		return Overfrequency
	case ic.frequency < ic.config.MinimumFrequency:
		return Underfrequency
	case ic.totals.Supply == 0 || ic.totals.Demand == 0:
		return Blackout
	}
	return OK
}

// Commit checks the integrated frequency. Out of bounds frequency is
// handled according to the configured Bounds policy.
func (ic *Interconnection) Commit() error {
	f := ic.frequency
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return fault.Numerical(ic.config.Name, "frequency", f, "frequency is not finite")
	case f < 0:
		return fault.Numerical(ic.config.Name, "frequency", f, "frequency is negative")
	}
	lo, hi := ic.config.MinimumFrequency, ic.config.MaximumFrequency
	if f >= lo && f <= hi {
		return nil
	}
	threshold := lo
	if f > hi {
		threshold = hi
	}
	switch ic.config.Bounds {
	case NoBounds:
		return nil
	case SoftBounds:
		ic.logger.Warn("frequency out of bounds",
			zap.Float64("frequency", f),
			zap.Float64("minimum", lo),
			zap.Float64("maximum", hi))
		return nil
	case HardBounds:
		return fault.Bounds(ic.config.Name, "frequency", f, threshold)
	}
	return fault.Configuration(ic.config.Name, "frequency bounds value %d is invalid", int(ic.config.Bounds))
}

// Fatal reports whether err must halt the run.
func Fatal(err error) bool {
	return errors.Is(err, fault.ErrNumerical) || errors.Is(err, fault.ErrBounds) || errors.Is(err, fault.ErrConfiguration)
}

// Frequency is the system frequency in Hz.
func (ic *Interconnection) Frequency() float64 {
	return ic.frequency
}

// NominalFrequency is the configured base frequency in Hz.
func (ic *Interconnection) NominalFrequency() float64 {
	return ic.config.NominalFrequency
}

// Imbalance is supply minus demand minus losses over all areas, in MW.
func (ic *Interconnection) Imbalance() float64 {
	return ic.imbalance
}

// Accounting returns the interconnection-wide aggregate of the current step.
func (ic *Interconnection) Accounting() msg.Update {
	return ic.totals
}

// Status reports the frequency band.
func (ic *Interconnection) Status() Status {
	return ic.status
}

// Next is the time of the next scheduled event.
func (ic *Interconnection) Next() clock.Timestamp {
	return ic.next
}

// DfDt is the rate of change of frequency in Hz/s.
func (ic *Interconnection) DfDt() float64 {
	return ic.df
}

// LastSolution is the time of the last network solve.
func (ic *Interconnection) LastSolution() clock.Timestamp { return ic.lastSolution }
