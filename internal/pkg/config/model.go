/*
Package config loads the simulation model and the runtime settings.

The model is a YAML file describing one interconnection, its control areas
with their generators and loads, and the interties between the areas. The
runtime settings (logging, HTTP address, stepping, recorders) come from viper
with GRIDSIM_ environment overrides.
*/
package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/ohowland/interconnect/internal/lib/asset/modbusunit"
	"github.com/ohowland/interconnect/internal/pkg/controlarea"
	"github.com/ohowland/interconnect/internal/pkg/interconnection"
	"gopkg.in/yaml.v3"
)

// Model is the root of a model file.
type Model struct {
	Interconnection InterconnectionModel `yaml:"interconnection" json:"interconnection"`
	Areas           []AreaModel          `yaml:"areas" json:"areas"`
	Interties       []IntertieModel      `yaml:"interties,omitempty" json:"interties,omitempty"`
}

// InterconnectionModel describes the synchronous system.
type InterconnectionModel struct {
	Name                string  `yaml:"name" json:"name"`
	Frequency           float64 `yaml:"frequency,omitempty" json:"frequency,omitempty"`
	NominalFrequency    float64 `yaml:"nominal_frequency,omitempty" json:"nominal_frequency,omitempty"`
	MinimumFrequency    float64 `yaml:"minimum_frequency,omitempty" json:"minimum_frequency,omitempty"`
	MaximumFrequency    float64 `yaml:"maximum_frequency,omitempty" json:"maximum_frequency,omitempty"`
	Damping             float64 `yaml:"damping,omitempty" json:"damping,omitempty"`
	FrequencyBounds     string  `yaml:"frequency_bounds,omitempty" json:"frequency_bounds,omitempty"`
	FrequencyResolution float64 `yaml:"frequency_resolution,omitempty" json:"frequency_resolution,omitempty"`
	Initialize          string  `yaml:"initialize,omitempty" json:"initialize,omitempty"`
}

// CurveModel holds the demand and supply curve parameters of a LOCAL area.
type CurveModel struct {
	Pmax float64 `yaml:"pmax" json:"pmax"`
	D    float64 `yaml:"d" json:"d"`
	Qu   float64 `yaml:"qu" json:"qu"`
	Qr   float64 `yaml:"qr" json:"qr"`
	Pmin float64 `yaml:"pmin" json:"pmin"`
	S    float64 `yaml:"s" json:"s"`
	Qw   float64 `yaml:"qw" json:"qw"`
	Qg   float64 `yaml:"qg" json:"qg"`
}

// AreaModel describes one control area and the units it owns.
type AreaModel struct {
	Name              string           `yaml:"name" json:"name"`
	ScheduleSource    string           `yaml:"schedule_source,omitempty" json:"schedule_source,omitempty"`
	Forecast          float64          `yaml:"forecast,omitempty" json:"forecast,omitempty"`
	Bias              float64          `yaml:"bias,omitempty" json:"bias,omitempty"`
	ACEFilter         []float64        `yaml:"ace_filter,omitempty" json:"ace_filter,omitempty"`
	InternalLosses    float64          `yaml:"internal_losses,omitempty" json:"internal_losses,omitempty"`
	AGCGain           float64          `yaml:"agc_gain,omitempty" json:"agc_gain,omitempty"`
	OnScheduleFailure string           `yaml:"on_schedule_failure,omitempty" json:"on_schedule_failure,omitempty"`
	Curve             CurveModel       `yaml:"curve,omitempty" json:"curve,omitempty"`
	Generators        []GeneratorModel `yaml:"generators,omitempty" json:"generators,omitempty"`
	Loads             []LoadModel      `yaml:"loads,omitempty" json:"loads,omitempty"`
}

// GeneratorModel describes a generator. Modbus, when present, replaces the
// static setpoint with device telemetry.
type GeneratorModel struct {
	Name         string             `yaml:"name" json:"name"`
	Inertia      float64            `yaml:"inertia" json:"inertia"`
	Capacity     float64            `yaml:"capacity" json:"capacity"`
	Setpoint     float64            `yaml:"setpoint" json:"setpoint"`
	Droop        float64            `yaml:"droop,omitempty" json:"droop,omitempty"`
	Losses       float64            `yaml:"losses,omitempty" json:"losses,omitempty"`
	Dispatchable bool               `yaml:"dispatchable,omitempty" json:"dispatchable,omitempty"`
	Modbus       *modbusunit.Config `yaml:"modbus,omitempty" json:"modbus,omitempty"`
}

// StageModel is one under-frequency load shedding stage.
type StageModel struct {
	Frequency float64 `yaml:"frequency" json:"frequency"`
	Fraction  float64 `yaml:"fraction" json:"fraction"`
}

// ResponseModel is a load's demand response state-space model.
type ResponseModel struct {
	Fraction float64     `yaml:"fraction" json:"fraction"`
	A        [][]float64 `yaml:"a" json:"a"`
	B        [][]float64 `yaml:"b" json:"b"`
	C        [][]float64 `yaml:"c" json:"c"`
	D        [][]float64 `yaml:"d,omitempty" json:"d,omitempty"`
	X        []float64   `yaml:"x,omitempty" json:"x,omitempty"`
}

// LoadModel describes a load.
type LoadModel struct {
	Name    string             `yaml:"name" json:"name"`
	Inertia float64            `yaml:"inertia,omitempty" json:"inertia,omitempty"`
	Demand  float64            `yaml:"demand" json:"demand"`
	UFLS    []StageModel       `yaml:"ufls,omitempty" json:"ufls,omitempty"`
	DR      *ResponseModel     `yaml:"dr,omitempty" json:"dr,omitempty"`
	Modbus  *modbusunit.Config `yaml:"modbus,omitempty" json:"modbus,omitempty"`
}

// IntertieModel connects two areas by name.
type IntertieModel struct {
	Name       string  `yaml:"name" json:"name"`
	From       string  `yaml:"from" json:"from"`
	To         string  `yaml:"to" json:"to"`
	Admittance float64 `yaml:"admittance,omitempty" json:"admittance,omitempty"`
	Capacity   float64 `yaml:"capacity,omitempty" json:"capacity,omitempty"`
	Schedule   float64 `yaml:"schedule,omitempty" json:"schedule,omitempty"`
	InService  *bool   `yaml:"in_service,omitempty" json:"in_service,omitempty"`
}

// Load reads and validates a model file.
func Load(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Model{}, fmt.Errorf("reading model %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return Model{}, fmt.Errorf("model %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a model. Unknown fields are rejected.
func Parse(data []byte) (Model, error) {
	var m Model
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Model{}, fmt.Errorf("parsing model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Model{}, err
	}
	return m, nil
}

// Validate checks names, references and enumerations. Physical limits are
// checked again when the objects are built.
func (m *Model) Validate() error {
	var errs []error
	ic := m.Interconnection
	if _, err := interconnection.ParseBounds(ic.FrequencyBounds); err != nil {
		errs = append(errs, err)
	}
	if _, err := interconnection.ParseInitialize(ic.Initialize); err != nil {
		errs = append(errs, err)
	}
	if ic.FrequencyResolution < 0 || math.IsNaN(ic.FrequencyResolution) {
		errs = append(errs, fmt.Errorf("frequency_resolution must be >= 0, got %g", ic.FrequencyResolution))
	}
	if len(m.Areas) == 0 {
		errs = append(errs, errors.New("at least one area is required"))
	}

	areas := make(map[string]bool)
	units := make(map[string]bool)
	unit := func(area, name string) {
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("area %s: unit name is required", area))
		case units[name]:
			errs = append(errs, fmt.Errorf("area %s: duplicate unit name %q", area, name))
		}
		units[name] = true
	}
	for i, a := range m.Areas {
		switch {
		case a.Name == "":
			errs = append(errs, fmt.Errorf("area %d: name is required", i))
		case areas[a.Name]:
			errs = append(errs, fmt.Errorf("duplicate area name %q", a.Name))
		}
		areas[a.Name] = true
		if _, err := controlarea.ParseScheduleSource(a.ScheduleSource); err != nil {
			errs = append(errs, fmt.Errorf("area %s: %w", a.Name, err))
		}
		if _, err := controlarea.ParseFailurePolicy(a.OnScheduleFailure); err != nil {
			errs = append(errs, fmt.Errorf("area %s: %w", a.Name, err))
		}
		if len(a.ACEFilter) > 2 {
			errs = append(errs, fmt.Errorf("area %s: ace_filter takes at most 2 coefficients, got %d", a.Name, len(a.ACEFilter)))
		}
		for _, g := range a.Generators {
			unit(a.Name, g.Name)
		}
		for _, l := range a.Loads {
			unit(a.Name, l.Name)
		}
	}

	ties := make(map[string]bool)
	for i, t := range m.Interties {
		switch {
		case t.Name == "":
			errs = append(errs, fmt.Errorf("intertie %d: name is required", i))
		case ties[t.Name]:
			errs = append(errs, fmt.Errorf("duplicate intertie name %q", t.Name))
		}
		ties[t.Name] = true
		if !areas[t.From] {
			errs = append(errs, fmt.Errorf("intertie %s: unknown area %q", t.Name, t.From))
		}
		if !areas[t.To] {
			errs = append(errs, fmt.Errorf("intertie %s: unknown area %q", t.Name, t.To))
		}
		if t.From == t.To && t.From != "" {
			errs = append(errs, fmt.Errorf("intertie %s: connects area %s to itself", t.Name, t.From))
		}
	}
	if len(m.Areas) > 1 && len(m.Interties) == 0 {
		errs = append(errs, fmt.Errorf("%d areas need at least one intertie", len(m.Areas)))
	}
	return errors.Join(errs...)
}
