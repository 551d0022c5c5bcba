package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ohowland/interconnect/internal/lib/asset/modbusunit"
	"github.com/ohowland/interconnect/internal/pkg/asset"
	"github.com/ohowland/interconnect/internal/pkg/controlarea"
	"github.com/ohowland/interconnect/internal/pkg/interconnection"
	"go.uber.org/zap"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

const twoArea = `
interconnection:
  name: west
  damping: 1
  frequency_bounds: HARD
  initialize: STEADY
areas:
  - name: A
    schedule_source: LOCAL
    bias: -10
    on_schedule_failure: IGNORE|DUMP
    curve: {pmax: 100, d: 12, qu: 50, qr: 10, pmin: 20, s: 20, qw: 30, qg: 10}
    generators:
      - {name: A-G1, inertia: 500, capacity: 150, setpoint: 100, dispatchable: true}
    loads:
      - name: A-L1
        demand: 80
        ufls:
          - {frequency: 59.0, fraction: 0.25}
          - {frequency: 59.3, fraction: 0.1}
  - name: B
    generators:
      - {name: B-G1, inertia: 250, capacity: 80, setpoint: 50}
    loads:
      - {name: B-L1, demand: 70}
interties:
  - {name: A-B, from: A, to: B, capacity: 50}
`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(twoArea))
	assert.NilError(t, err)
	assert.Equal(t, m.Interconnection.Name, "west")
	assert.Assert(t, is.Len(m.Areas, 2))
	assert.Equal(t, m.Areas[0].Curve.Qu, 50.0)
	assert.Assert(t, is.Len(m.Areas[0].Loads[0].UFLS, 2))
	assert.Equal(t, m.Interties[0].From, "A")
	assert.Assert(t, m.Interties[0].InService == nil)
}

func TestParseRejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte("interconnection: {name: west, color: red}\nareas: [{name: A}]\n"))
	assert.ErrorContains(t, err, "color")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  string
	}{
		{"no areas", "interconnection: {name: west}\n", "at least one area"},
		{"duplicate area", "areas: [{name: A}, {name: A}]\ninterties: [{name: t, from: A, to: A}]\n", `duplicate area name "A"`},
		{"unknown endpoint", "areas: [{name: A}, {name: B}]\ninterties: [{name: t, from: A, to: C}]\n", `unknown area "C"`},
		{"self loop", "areas: [{name: A}, {name: B}]\ninterties: [{name: t, from: A, to: A}]\n", "to itself"},
		{"no interties", "areas: [{name: A}, {name: B}]\n", "need at least one intertie"},
		{"bounds", "interconnection: {frequency_bounds: TIGHT}\nareas: [{name: A}]\n", "TIGHT"},
		{"initialize", "interconnection: {initialize: COLD}\nareas: [{name: A}]\n", "COLD"},
		{"schedule source", "areas: [{name: A, schedule_source: REMOTE}]\n", "REMOTE"},
		{"failure policy", "areas: [{name: A, on_schedule_failure: RETRY}]\n", "RETRY"},
		{"filter order", "areas: [{name: A, ace_filter: [0.1, 0.1, 0.1]}]\n", "at most 2"},
		{"duplicate unit", "areas: [{name: A, generators: [{name: u, capacity: 1}], loads: [{name: u, demand: 1}]}]\n", `duplicate unit name "u"`},
		{"unnamed unit", "areas: [{name: A, loads: [{demand: 1}]}]\n", "unit name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.model))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	assert.NilError(t, os.WriteFile(path, []byte(twoArea), 0o600))
	m, err := Load(path)
	assert.NilError(t, err)
	assert.Equal(t, len(m.Areas), 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading model")
}

func TestLoadExampleModel(t *testing.T) {
	m, err := Load(filepath.Join("..", "..", "..", "config", "twoarea.yaml"))
	assert.NilError(t, err)
	n, err := m.Build(zap.NewNop(), nil)
	assert.NilError(t, err)
	assert.Equal(t, len(n.Areas), 2)
	assert.Assert(t, n.Dispatch != nil)
}

func TestBuild(t *testing.T) {
	m, err := Parse([]byte(twoArea))
	assert.NilError(t, err)
	n, err := m.Build(zap.NewNop(), nil)
	assert.NilError(t, err)

	ic := n.Interconnection
	assert.Equal(t, ic.Name(), "west")
	assert.Equal(t, ic.Config().Bounds, interconnection.HardBounds)
	assert.Equal(t, ic.Config().Initialize, interconnection.Steady)
	assert.Equal(t, len(ic.Areas()), 2)
	assert.Equal(t, len(ic.Lines()), 1)

	a, ok := n.Area("A")
	assert.Assert(t, ok)
	assert.Equal(t, a.Config().ScheduleSource, controlarea.Local)
	assert.Equal(t, a.Config().OnScheduleFailure, controlarea.Ignore|controlarea.Dump)
	assert.Equal(t, len(a.Units()), 2)

	b, ok := n.Area("B")
	assert.Assert(t, ok)
	assert.Equal(t, b.Config().ScheduleSource, controlarea.Central)
	assert.Assert(t, n.Dispatch != nil)

	tie, ok := n.Intertie("A-B")
	assert.Assert(t, ok)
	assert.Equal(t, tie.From(), a.PID())
	assert.Equal(t, tie.To(), b.PID())
	assert.Assert(t, tie.InService())
	assert.Equal(t, tie.Admittance(), 1.0)

	assert.Equal(t, len(n.Bindings), 4)
	assert.Equal(t, n.Bindings[0].Area, a)
	assert.Equal(t, n.Bindings[3].Area, b)
	assert.Equal(t, len(n.Reporters()), 1+2+1+2+2)

	_, ok = n.Area("C")
	assert.Assert(t, !ok)
}

func TestBuildLocalOnlyHasNoDispatch(t *testing.T) {
	m, err := Parse([]byte("areas: [{name: A, schedule_source: LOCAL}]\n"))
	assert.NilError(t, err)
	n, err := m.Build(nil, nil)
	assert.NilError(t, err)
	assert.Assert(t, n.Dispatch == nil)
}

func TestBuildOutOfServiceIntertie(t *testing.T) {
	m, err := Parse([]byte("areas: [{name: A}, {name: B}]\ninterties: [{name: t, from: A, to: B, in_service: false}]\n"))
	assert.NilError(t, err)
	n, err := m.Build(nil, nil)
	assert.NilError(t, err)
	assert.Assert(t, !n.Interties[0].InService())
}

func TestBuildDemandResponse(t *testing.T) {
	m, err := Parse([]byte(`
areas:
  - name: A
    loads:
      - name: l
        demand: 100
        dr:
          fraction: 0.5
          a: [[0]]
          b: [[0]]
          c: [[0]]
          d: [[10]]
`))
	assert.NilError(t, err)
	n, err := m.Build(nil, nil)
	assert.NilError(t, err)

	u, err := n.Loads[0].Contribution(59.4, 60)
	assert.NilError(t, err)
	assert.Assert(t, math.Abs(u.Demand-95) < 1e-9, "demand %g", u.Demand)

	m.Areas[0].Loads[0].DR.B = [][]float64{{0}, {0}}
	_, err = m.Build(nil, nil)
	assert.ErrorContains(t, err, "matrix B")
}

func TestBuildRejectsInvalidPhysics(t *testing.T) {
	m, err := Parse([]byte("areas: [{name: A, generators: [{name: g, capacity: -1}]}]\n"))
	assert.NilError(t, err)
	_, err = m.Build(nil, nil)
	assert.ErrorContains(t, err, "capacity")
}

func TestBuildModbusDevice(t *testing.T) {
	m, err := Parse([]byte(`
areas:
  - name: A
    generators:
      - name: g
        capacity: 150
        setpoint: 10
        modbus:
          target: {ip_addr: 127.0.0.1, port: "502", slave_id: 1}
          registers:
            - {name: kw, address: 0, type: f32, access: read-write}
`))
	assert.NilError(t, err)

	var opened []modbusunit.Config
	device := asset.NewStaticDevice(asset.MachineStatus{Online: true, KW: 42})
	n, err := m.Build(nil, func(cfg modbusunit.Config, _ *zap.Logger) (asset.DeviceController, error) {
		opened = append(opened, cfg)
		return device, nil
	})
	assert.NilError(t, err)
	assert.Assert(t, is.Len(opened, 1))
	assert.Equal(t, opened[0].Target.IPAddr, "127.0.0.1")
	assert.Equal(t, opened[0].Registers[0].Name, "kw")

	u, err := n.Generators[0].Contribution(60, 60)
	assert.NilError(t, err)
	assert.Equal(t, u.Supply, 42.0)
}
