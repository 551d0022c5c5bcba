/*
Package controlarea implements a balancing authority: it sums the accounting
updates of its generators and loads, forwards the aggregate to the
interconnection, and after the network solve computes its area control error,
resolves an exchange schedule and redistributes regulation.
*/
package controlarea

import (
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/ohowland/interconnect/internal/pkg/clock"
	"github.com/ohowland/interconnect/internal/pkg/fault"
	"github.com/ohowland/interconnect/internal/pkg/msg"
	"github.com/ohowland/interconnect/internal/pkg/report"
	"go.uber.org/zap"
)

// Unit is a generator or load that reports into an area.
type Unit interface {
	PID() uuid.UUID
	Name() string
}

// Regulator is a unit that accepts AGC setpoint changes.
type Regulator interface {
	Unit
	Dispatchable() bool
	Capacity() float64
	Regulate(delta float64) float64
}

// Scheduler supplies central schedules by area PID.
type Scheduler interface {
	Schedule(uuid.UUID) (float64, bool)
}

// Config is the static description of a control area.
type Config struct {
	Name              string         `json:"Name"`
	ScheduleSource    ScheduleSource `json:"ScheduleSource"`
	Forecast          float64        `json:"Forecast"`       // MW
	Bias              float64        `json:"Bias"`           // MW/Hz, negative
	ACEFilter         []float64      `json:"ACEFilter"`      // a1, a2
	InternalLosses    float64        `json:"InternalLosses"` // pu of supply
	AGCGain           float64        `json:"AGCGain"`        // pu of ACE per step
	OnScheduleFailure FailurePolicy  `json:"OnScheduleFailure"`
	Curve             Curve          `json:"Curve"`
}

// ScheduleDump is the algebraic state retained when a schedule fails under the DUMP
// policy.
type ScheduleDump struct {
	Source     ScheduleSource
	Reason     string
	Curve      Curve
	Solution   Solution
	Accounting msg.Update
	Schedule   float64
	Offered    float64 // central value, NaN when none was received
}

// Area is a control area.
type Area struct {
	pid       uuid.UUID
	config    Config
	logger    *zap.Logger
	filter    *Filter
	upstream  msg.Receiver
	scheduler Scheduler

	units map[uuid.UUID]Unit
	order []uuid.UUID
	seen  map[uuid.UUID]bool

	synced    bool
	totals    msg.Update
	imbalance float64

	schedule    float64
	actual      float64
	ace         float64
	island      bool
	unscheduled bool
	solution    Solution
	status      Status
	dump        *ScheduleDump
}

// New returns a configured Area.
func New(config Config, logger *zap.Logger) (*Area, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch {
	case config.Name == "":
		return nil, fault.Configuration("controlarea", "name is required")
	case config.InternalLosses < 0 || config.InternalLosses >= 1 || math.IsNaN(config.InternalLosses):
		return nil, fault.Configuration(config.Name, "internal losses %g must be in [0,1)", config.InternalLosses)
	case config.AGCGain < 0 || config.AGCGain > 1 || math.IsNaN(config.AGCGain):
		return nil, fault.Configuration(config.Name, "agc gain %g must be in [0,1]", config.AGCGain)
	case math.IsNaN(config.Bias) || math.IsInf(config.Bias, 0):
		return nil, fault.Configuration(config.Name, "bias %g is not finite", config.Bias)
	case config.ScheduleSource == Local && !config.Curve.Valid():
		return nil, fault.Configuration(config.Name, "schedule curve %+v has negative or non-finite terms", config.Curve)
	}
	filter, err := NewFilter(config.ACEFilter)
	if err != nil {
		return nil, fault.Configuration(config.Name, "%v", err)
	}

	a := &Area{
		pid:      uuid.New(),
		config:   config,
		logger:   logger.Named("controlarea").With(zap.String("area", config.Name)),
		filter:   filter,
		units:    make(map[uuid.UUID]Unit),
		seen:     make(map[uuid.UUID]bool),
		schedule: config.Forecast,
	}
	if config.Bias > 0 {
		a.logger.Warn("frequency bias is positive; expected negative MW/Hz", zap.Float64("bias", config.Bias))
	}
	return a, nil
}

// PID is an accessor for the process id
func (a *Area) PID() uuid.UUID { return a.pid }

// Name is an accessor for the configured name
func (a *Area) Name() string { return a.config.Name }

// IsA reports the control area capability.
func (a *Area) IsA(kind string) bool { return kind == msg.KindControlArea }

// Config returns the area configuration.
func (a *Area) Config() Config { return a.config }

// Attach sets the receiver of the aggregate update, normally the
// interconnection.
func (a *Area) Attach(upstream msg.Receiver) {
	a.upstream = upstream
}

// SetScheduler sets the source of central schedules.
func (a *Area) SetScheduler(s Scheduler) {
	a.scheduler = s
}

// AddUnit registers a unit. Only registered units may send updates.
func (a *Area) AddUnit(u Unit) error {
	if _, ok := a.units[u.PID()]; ok {
		return fault.Configuration(a.config.Name, "unit %s is already registered", u.Name())
	}
	a.units[u.PID()] = u
	a.order = append(a.order, u.PID())
	return nil
}

// Units returns the registered units in registration order.
func (a *Area) Units() []Unit {
	units := make([]Unit, 0, len(a.order))
	for _, pid := range a.order {
		units = append(units, a.units[pid])
	}
	return units
}

// Reset zeroes the accumulators and opens a new update window.
func (a *Area) Reset() {
	a.totals = msg.Update{}
	a.imbalance = 0
	a.synced = false
	for pid := range a.seen {
		delete(a.seen, pid)
	}
}

// Notify handles accounting messages from units.
func (a *Area) Notify(m msg.Msg) error {
	if m.Topic() != msg.Accounting {
		return fault.Message(a.config.Name, "unexpected %v message from %s", m.Topic(), m.PID())
	}
	u, err := msg.AsUpdate(m)
	if err != nil {
		return fault.Message(a.config.Name, "%v", err)
	}
	return a.ApplyUpdate(m.PID(), u)
}

// ApplyUpdate folds one unit contribution into the running totals.
func (a *Area) ApplyUpdate(sender uuid.UUID, u msg.Update) error {
	switch {
	case a.synced:
		return fault.Message(a.config.Name, "update from %s after sync", sender)
	case a.units[sender] == nil:
		return fault.Message(a.config.Name, "update from unregistered unit %s", sender)
	case a.seen[sender]:
		return fault.Message(a.config.Name, "duplicate update from %s", a.units[sender].Name())
	case !u.Finite():
		return fault.Message(a.config.Name, "update %v from %s is not finite", u, a.units[sender].Name())
	}
	a.seen[sender] = true
	a.totals = a.totals.Add(u)
	return nil
}

// Sync closes the update window, adds internal losses and forwards the
// aggregate upstream.
func (a *Area) Sync() error {
	if a.synced {
		return fault.Message(a.config.Name, "already synced this step")
	}
	a.synced = true
	a.totals.Losses += a.config.InternalLosses * a.totals.Supply
	a.imbalance = a.totals.Net()
	if a.upstream == nil {
		return nil
	}
	return a.upstream.Notify(msg.New(a.pid, msg.Accounting, a.totals))
}

// Injection is the net power the area offers to the network.
func (a *Area) Injection() float64 { return a.imbalance }

// SetExchange records the solved exchange with the rest of the interconnection.
func (a *Area) SetExchange(actual float64, island bool) {
	a.actual = actual
	a.island = island
}

// Accounting returns the aggregate of the current step.
func (a *Area) Accounting() msg.Update { return a.totals }

// Imbalance is local supply minus demand minus losses, in MW.
func (a *Area) Imbalance() float64 {
	return a.imbalance
}

// Schedule is the net scheduled export over the area's interties.
func (a *Area) Schedule() float64 {
	return a.schedule
}

// Actual is the net metered export over the area's interties.
func (a *Area) Actual() float64 {
	return a.actual
}

// ACE is the area control error of the last step, in MW.
func (a *Area) ACE() float64 {
	return a.ace
}

// Status reports the result of the last schedule.
func (a *Area) Status() Status {
	return a.status
}

// Solution returns the last dispatch schedule.
func (a *Area) Solution() Solution {
	return a.solution
}

// LastDump returns the state retained by the most recent DUMP.
func (a *Area) LastDump() (ScheduleDump, bool) {
	if a.dump == nil {
		return ScheduleDump{}, false
	}
	return *a.dump, true
}

// ComputeACE updates the filtered area control error.
func (a *Area) ComputeACE(frequency, nominal float64) float64 {
	raw := (a.actual - a.schedule) - a.config.Bias*(frequency-nominal)
	a.ace = a.filter.Apply(raw)
	return a.ace
}

// SolveLocalSchedule solves the area's curves. The schedule becomes the
// forecast plus the exchange adjustment.
func (a *Area) SolveLocalSchedule() (Solution, error) {
	sol := a.config.Curve.Solve()
	a.solution = sol
	switch sol.Outcome {
	case SolutionUnconstrained, SolutionConstrained:
		a.schedule = a.config.Forecast + sol.Dq
		return sol, nil
	case SolutionNone:
		return sol, fault.Schedule(a.config.Name, "supply and demand curves do not cross")
	default:
		return sol, fault.Schedule(a.config.Name, "schedule curve is invalid")
	}
}

// SolveCentralSchedule accepts a centrally computed schedule when the area
// can deliver it.
func (a *Area) SolveCentralSchedule(value float64) error {
	lo := -(a.totals.Demand + a.totals.Losses)
	hi := a.totals.Capacity - a.totals.Demand - a.totals.Losses
	switch {
	case math.IsNaN(value) || math.IsInf(value, 0):
		return fault.Schedule(a.config.Name, "central schedule is not finite")
	case value < lo:
		return &fault.Error{Kind: fault.ErrSchedule, Object: a.config.Name, Quantity: "schedule", Value: value, Threshold: lo}
	case value > hi:
		return &fault.Error{Kind: fault.ErrSchedule, Object: a.config.Name, Quantity: "schedule", Value: value, Threshold: hi}
	}
	a.schedule = value
	return nil
}

// PostSync runs after the network solve: schedule, ACE, AGC and status.
func (a *Area) PostSync(frequency, nominal float64) error {
	a.unscheduled = false
	a.solution = Solution{}

	offered := math.NaN()
	var err error
	switch a.config.ScheduleSource {
	case Local:
		_, err = a.SolveLocalSchedule()
	case Central:
		if a.scheduler == nil {
			err = fault.Schedule(a.config.Name, "no central scheduler")
			break
		}
		v, ok := a.scheduler.Schedule(a.pid)
		if !ok {
			err = fault.Schedule(a.config.Name, "no central schedule received")
			break
		}
		offered = v
		err = a.SolveCentralSchedule(v)
	}
	if err != nil {
		if !errors.Is(err, fault.ErrSchedule) {
			return err
		}
		a.scheduleFailed(err, offered)
	}

	a.ComputeACE(frequency, nominal)
	a.regulate()
	a.status = a.evaluate()
	return nil
}

func (a *Area) scheduleFailed(err error, offered float64) {
	policy := a.config.OnScheduleFailure
	if policy.Has(Dump) {
		a.dump = &ScheduleDump{
			Source:     a.config.ScheduleSource,
			Reason:     err.Error(),
			Curve:      a.config.Curve,
			Solution:   a.solution,
			Accounting: a.totals,
			Schedule:   a.schedule,
			Offered:    offered,
		}
		a.logger.Warn("schedule failure dump",
			zap.Error(err),
			zap.Stringer("source", a.config.ScheduleSource),
			zap.Stringer("outcome", a.solution.Outcome),
			zap.Float64("q", a.solution.Q),
			zap.Float64("qs", a.solution.Qs),
			zap.Float64("qd", a.solution.Qd),
			zap.Float64("ps", a.solution.Ps),
			zap.Float64("pd", a.solution.Pd),
			zap.Float64("supply", a.totals.Supply),
			zap.Float64("demand", a.totals.Demand),
			zap.Float64("losses", a.totals.Losses),
			zap.Float64("capacity", a.totals.Capacity),
			zap.Float64("schedule", a.schedule),
			zap.Float64("offered", offered),
		)
	}
	if policy.Has(Ignore) {
		a.logger.Debug("schedule failure ignored", zap.Error(err))
		return
	}
	a.unscheduled = true
	if policy == None {
		a.logger.Warn("schedule failed", zap.Error(err))
	}
}

// regulate splits -gain*ACE across dispatchable units by capacity.
func (a *Area) regulate() {
	if a.config.AGCGain <= 0 || a.ace == 0 {
		return
	}
	var regulators []Regulator
	var capacity float64
	for _, pid := range a.order {
		r, ok := a.units[pid].(Regulator)
		if !ok || !r.Dispatchable() {
			continue
		}
		regulators = append(regulators, r)
		capacity += math.Max(r.Capacity(), 0)
	}
	if len(regulators) == 0 {
		return
	}
	total := -a.config.AGCGain * a.ace
	for _, r := range regulators {
		share := 1 / float64(len(regulators))
		if capacity > 0 {
			share = math.Max(r.Capacity(), 0) / capacity
		}
		r.Regulate(total * share)
	}
}

func (a *Area) evaluate() Status {
	switch {
	case a.totals.Supply > a.totals.Capacity:
		return Overcapacity
	case a.island:
		return Island
	case a.unscheduled:
		return Unscheduled
	case a.solution.Outcome == SolutionConstrained:
		return Constrained
	case a.totals.Supply == 0 || a.totals.Demand == 0:
		return Blackout
	}
	return OK
}

// Snapshot reports the area state.
func (a *Area) Snapshot(now clock.Timestamp) report.Snapshot {
	return report.Snapshot{
		Time: now,
		PID:  a.pid,
		Kind: msg.KindControlArea,
		Name: a.config.Name,
		Properties: []report.Property{
			report.Quantity("inertia", "MJ", a.totals.Inertia),
			report.Quantity("capacity", "MW", a.totals.Capacity),
			report.Quantity("supply", "MW", a.totals.Supply),
			report.Quantity("demand", "MW", a.totals.Demand),
			report.Quantity("losses", "MW", a.totals.Losses),
			report.Quantity("imbalance", "MW", a.imbalance),
			report.Quantity("forecast", "MW", a.config.Forecast),
			report.Quantity("schedule", "MW", a.schedule),
			report.Quantity("actual", "MW", a.actual),
			report.Quantity("ace", "MW", a.ace),
			report.Quantity("bias", "MW/Hz", a.config.Bias),
			report.Quantity("qs", "MW", a.solution.Qs),
			report.Quantity("qd", "MW", a.solution.Qd),
			report.Quantity("ps", "$/MWh", a.solution.Ps),
			report.Quantity("pd", "$/MWh", a.solution.Pd),
			report.Quantity("dq", "MW", a.solution.Dq),
			report.Quantity("dp", "$/MWh", a.solution.Dp),
			report.Enum("schedule_source", int(a.config.ScheduleSource), a.config.ScheduleSource.String()),
			report.Enum("status", int(a.status), a.status.String()),
		},
	}
}
