package controlarea

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/ohowland/interconnect/internal/pkg/fault"
	"github.com/ohowland/interconnect/internal/pkg/msg"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gotest.tools/v3/assert"
)

type unit struct {
	pid          uuid.UUID
	name         string
	capacity     float64
	dispatchable bool
	regulated    float64
}

func newUnit(name string, capacity float64, dispatchable bool) *unit {
	return &unit{pid: uuid.New(), name: name, capacity: capacity, dispatchable: dispatchable}
}

func (u *unit) PID() uuid.UUID { return u.pid }
func (u *unit) Name() string { return u.name }
func (u *unit) Capacity() float64 { return u.capacity }
func (u *unit) Dispatchable() bool { return u.dispatchable }
func (u *unit) Regulate(delta float64) float64 {
	u.regulated += delta
	return delta
}

type upstream struct {
	got []msg.Msg
}

func (r *upstream) Notify(m msg.Msg) error {
	r.got = append(r.got, m)
	return nil
}

type scheduler map[uuid.UUID]float64

func (s scheduler) Schedule(pid uuid.UUID) (float64, bool) {
	v, ok := s[pid]
	return v, ok
}

func newArea(t *testing.T, config Config, logger *zap.Logger) *Area {
	t.Helper()
	if config.Name == "" {
		config.Name = "west"
	}
	a, err := New(config, logger)
	assert.NilError(t, err)
	return a
}

func TestNewRejectsBadConfig(t *testing.T) {
	for _, config := range []Config{
		{},
		{Name: "a", InternalLosses: 1},
		{Name: "a", AGCGain: -0.1},
		{Name: "a", ACEFilter: []float64{2}},
		{Name: "a", Bias: math.NaN()},
		{Name: "a", ScheduleSource: Local, Curve: Curve{D: -1}},
	} {
		_, err := New(config, nil)
		assert.Assert(t, errors.Is(err, fault.ErrConfiguration), "config %+v", config)
	}
}

func TestApplyUpdateWindow(t *testing.T) {
	a := newArea(t, Config{}, nil)
	g := newUnit("g1", 100, true)
	assert.NilError(t, a.AddUnit(g))
	assert.Assert(t, errors.Is(a.AddUnit(g), fault.ErrConfiguration))

	a.Reset()
	assert.NilError(t, a.ApplyUpdate(g.PID(), msg.Update{Capacity: 100, Supply: 60}))

	err := a.ApplyUpdate(g.PID(), msg.Update{Capacity: 100, Supply: 60})
	assert.Assert(t, errors.Is(err, fault.ErrMessage))
	assert.Equal(t, a.Accounting().Supply, 60.0)

	err = a.ApplyUpdate(uuid.New(), msg.Update{Supply: 1})
	assert.Assert(t, errors.Is(err, fault.ErrMessage))

	a.Reset()
	assert.NilError(t, a.ApplyUpdate(g.PID(), msg.Update{Capacity: 100, Supply: 50}))
	assert.Equal(t, a.Accounting().Supply, 50.0)
}

func TestNotifyTextUpdate(t *testing.T) {
	a := newArea(t, Config{}, nil)
	l := newUnit("l1", 0, false)
	assert.NilError(t, a.AddUnit(l))
	a.Reset()

	assert.NilError(t, a.Notify(msg.New(l.PID(), msg.Accounting, "1,0,0,40,0")))
	assert.Equal(t, a.Accounting().Demand, 40.0)

	err := a.Notify(msg.New(l.PID(), msg.Accounting, "1,0,0"))
	assert.Assert(t, errors.Is(err, fault.ErrMessage))
	err = a.Notify(msg.New(l.PID(), msg.Status, nil))
	assert.Assert(t, errors.Is(err, fault.ErrMessage))
}

func TestSyncForwardsOnce(t *testing.T) {
	a := newArea(t, Config{InternalLosses: 0.1}, nil)
	up := &upstream{}
	a.Attach(up)
	g := newUnit("g1", 100, true)
	assert.NilError(t, a.AddUnit(g))

	a.Reset()
	assert.NilError(t, a.ApplyUpdate(g.PID(), msg.Update{Inertia: 5, Capacity: 100, Supply: 50, Demand: 30, Losses: 1}))
	assert.NilError(t, a.Sync())
	assert.Assert(t, errors.Is(a.Sync(), fault.ErrMessage))
	assert.Assert(t, errors.Is(a.ApplyUpdate(g.PID(), msg.Update{}), fault.ErrMessage))

	assert.Equal(t, len(up.got), 1)
	u, err := msg.AsUpdate(up.got[0])
	assert.NilError(t, err)
	assert.Equal(t, up.got[0].PID(), a.PID())
	assert.Equal(t, u.Losses, 6.0)
	assert.Equal(t, a.Injection(), 14.0)
	assert.Equal(t, a.Imbalance(), 14.0)
}

func TestComputeACE(t *testing.T) {
	a := newArea(t, Config{Forecast: 3, Bias: -10}, nil)
	a.SetExchange(5, false)
	assert.Equal(t, a.ComputeACE(60.5, 60), 7.0)
	assert.Equal(t, a.ACE(), 7.0)
}

func TestLocalSchedule(t *testing.T) {
	c := referenceCurve()
	c.Qg = 0
	a := newArea(t, Config{ScheduleSource: Local, Forecast: 25, Curve: c}, nil)

	sol, err := a.SolveLocalSchedule()
	assert.NilError(t, err)
	assert.Equal(t, sol.Outcome, SolutionConstrained)
	assert.Equal(t, a.Schedule(), 15.0)
}

func TestConstrainedScheduleStatus(t *testing.T) {
	c := referenceCurve()
	c.Qg = 0
	a := newArea(t, Config{ScheduleSource: Local, Forecast: 25, Curve: c}, nil)
	g := newUnit("g1", 100, true)
	assert.NilError(t, a.AddUnit(g))
	a.Reset()
	assert.NilError(t, a.ApplyUpdate(g.PID(), msg.Update{Capacity: 100, Supply: 50, Demand: 40}))
	assert.NilError(t, a.Sync())

	assert.NilError(t, a.PostSync(60, 60))
	assert.Equal(t, a.Solution().Outcome, SolutionConstrained)
	assert.Equal(t, a.Solution().Outcome.String(), "CONSTRAINED")
	assert.Equal(t, a.Status(), Constrained)
	assert.Equal(t, a.Status().String(), "CONSTRAINED")
	_, ok := a.LastDump()
	assert.Assert(t, !ok)
}

func TestCentralScheduleFeasibility(t *testing.T) {
	a := newArea(t, Config{}, nil)
	g := newUnit("g1", 100, true)
	assert.NilError(t, a.AddUnit(g))
	a.Reset()
	assert.NilError(t, a.ApplyUpdate(g.PID(), msg.Update{Capacity: 100, Supply: 50, Demand: 40}))
	assert.NilError(t, a.Sync())

	assert.NilError(t, a.SolveCentralSchedule(30))
	assert.Equal(t, a.Schedule(), 30.0)

	for _, v := range []float64{61, -41, math.NaN(), math.Inf(1)} {
		err := a.SolveCentralSchedule(v)
		assert.Assert(t, errors.Is(err, fault.ErrSchedule), "value %g", v)
	}
	assert.Equal(t, a.Schedule(), 30.0)
}

func failingArea(t *testing.T, policy FailurePolicy, logger *zap.Logger) *Area {
	t.Helper()
	a := newArea(t, Config{
		ScheduleSource:    Local,
		Forecast:          12,
		OnScheduleFailure: policy,
		Curve:             Curve{Pmax: 100, Pmin: 20, Qu: 50, Qr: 10, Qw: 30, Qg: 10},
	}, logger)
	g := newUnit("g1", 100, true)
	assert.NilError(t, a.AddUnit(g))
	a.Reset()
	assert.NilError(t, a.ApplyUpdate(g.PID(), msg.Update{Capacity: 100, Supply: 50, Demand: 50}))
	assert.NilError(t, a.Sync())
	return a
}

func TestScheduleFailureNone(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	a := failingArea(t, None, zap.New(core))

	assert.NilError(t, a.PostSync(60, 60))
	assert.Equal(t, a.Status(), Unscheduled)
	assert.Equal(t, logs.FilterMessage("schedule failed").Len(), 1)
	_, ok := a.LastDump()
	assert.Assert(t, !ok)
}

func TestScheduleFailureIgnore(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	a := failingArea(t, Ignore, zap.New(core))

	assert.NilError(t, a.PostSync(60, 60))
	assert.Equal(t, a.Status(), OK)
	assert.Equal(t, a.Schedule(), 12.0)
	assert.Equal(t, logs.Len(), 0)
}

func TestScheduleFailureDump(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	a := failingArea(t, Dump, zap.New(core))

	assert.NilError(t, a.PostSync(60, 60))
	assert.Equal(t, a.Status(), Unscheduled)
	assert.Equal(t, logs.FilterMessage("schedule failure dump").Len(), 1)

	dump, ok := a.LastDump()
	assert.Assert(t, ok)
	assert.Equal(t, dump.Source, Local)
	assert.Equal(t, dump.Solution.Outcome, SolutionNone)
	assert.Equal(t, dump.Accounting.Supply, 50.0)
	assert.Assert(t, math.IsNaN(dump.Offered))
}

func TestCentralScheduleMissing(t *testing.T) {
	a := newArea(t, Config{}, nil)
	a.Reset()
	assert.NilError(t, a.Sync())
	a.SetScheduler(scheduler{})
	assert.NilError(t, a.PostSync(60, 60))
	assert.Equal(t, a.Status(), Unscheduled)
}

func TestAGCSplitByCapacity(t *testing.T) {
	a := newArea(t, Config{ScheduleSource: Local, Curve: referenceCurve(), AGCGain: 0.5}, nil)
	big := newUnit("big", 300, true)
	small := newUnit("small", 100, true)
	fixed := newUnit("fixed", 500, false)
	for _, u := range []*unit{big, small, fixed} {
		assert.NilError(t, a.AddUnit(u))
	}
	a.Reset()
	assert.NilError(t, a.Sync())
	a.SetExchange(8, false)

	assert.NilError(t, a.PostSync(60, 60))
	assert.Equal(t, a.ACE(), 8.0)
	assert.Equal(t, big.regulated, -3.0)
	assert.Equal(t, small.regulated, -1.0)
	assert.Equal(t, fixed.regulated, 0.0)
}

func TestStatusPriority(t *testing.T) {
	a := newArea(t, Config{}, nil)
	g := newUnit("g1", 100, true)
	assert.NilError(t, a.AddUnit(g))
	sched := scheduler{a.PID(): 0}
	a.SetScheduler(sched)

	step := func(u msg.Update, island bool) Status {
		a.Reset()
		assert.NilError(t, a.ApplyUpdate(g.PID(), u))
		assert.NilError(t, a.Sync())
		a.SetExchange(0, island)
		assert.NilError(t, a.PostSync(60, 60))
		return a.Status()
	}

	assert.Equal(t, step(msg.Update{Capacity: 100, Supply: 50, Demand: 50}, false), OK)
	assert.Equal(t, step(msg.Update{Capacity: 100, Supply: 50, Demand: 50}, true), Island)
	assert.Equal(t, step(msg.Update{Capacity: 40, Supply: 50, Demand: 50}, true), Overcapacity)
	assert.Equal(t, step(msg.Update{Capacity: 100, Supply: 0, Demand: 50}, false), Blackout)

	delete(sched, a.PID())
	assert.Equal(t, step(msg.Update{Capacity: 100, Supply: 50, Demand: 50}, false), Unscheduled)
}

func TestParseEnums(t *testing.T) {
	p, err := ParseFailurePolicy("ignore|DUMP")
	assert.NilError(t, err)
	assert.Assert(t, p.Has(Ignore))
	assert.Assert(t, p.Has(Dump))
	assert.Equal(t, p.String(), "IGNORE|DUMP")

	p, err = ParseFailurePolicy("")
	assert.NilError(t, err)
	assert.Equal(t, p, None)
	assert.Equal(t, p.String(), "NONE")

	_, err = ParseFailurePolicy("RETRY")
	assert.Assert(t, err != nil)

	s, err := ParseScheduleSource("local")
	assert.NilError(t, err)
	assert.Equal(t, s, Local)
	_, err = ParseScheduleSource("market")
	assert.Assert(t, err != nil)
}

func TestSnapshot(t *testing.T) {
	a := newArea(t, Config{Forecast: 10}, nil)
	snap := a.Snapshot(5)
	assert.Equal(t, snap.Kind, msg.KindControlArea)
	p, ok := snap.Property("schedule")
	assert.Assert(t, ok)
	assert.Equal(t, p.Text, "10.000 MW")
}
