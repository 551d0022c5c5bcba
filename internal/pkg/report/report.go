// Package report holds the read-only view of simulation objects handed to
// recorders, metrics and the web service.
package report

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/ohowland/interconnect/internal/pkg/clock"
)

// Property is one named scalar with its human-readable rendering.
type Property struct {
	Name  string  `json:"Name" bson:"name"`
	Unit  string  `json:"Unit,omitempty" bson:"unit,omitempty"`
	Value float64 `json:"Value" bson:"value"`
	Text  string  `json:"Text" bson:"text"`
}

// Quantity builds a numeric property rendered with its unit.
func Quantity(name, unit string, value float64) Property {
	text := fmt.Sprintf("%.3f", value)
	if math.IsInf(value, 0) || math.IsNaN(value) {
		text = fmt.Sprint(value)
	}
	if unit != "" {
		text += " " + unit
	}
	return Property{Name: name, Unit: unit, Value: value, Text: text}
}

// Enum builds a property whose value is an enumeration ordinal.
func Enum(name string, ordinal int, text string) Property {
	return Property{Name: name, Value: float64(ordinal), Text: text}
}

// Snapshot is the state of one object at the end of a step.
type Snapshot struct {
	Time       clock.Timestamp `json:"Time" bson:"time"`
	PID        uuid.UUID       `json:"PID" bson:"pid"`
	Kind       string          `json:"Kind" bson:"kind"`
	Name       string          `json:"Name" bson:"name"`
	Properties []Property      `json:"Properties" bson:"properties"`
}

// Property looks up a property by name.
func (s Snapshot) Property(name string) (Property, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Frame is every snapshot taken at the end of one step.
type Frame struct {
	Time      clock.Timestamp `json:"Time"`
	Snapshots []Snapshot      `json:"Snapshots"`
}

// Find returns the snapshot for the named object of the given kind.
func (f Frame) Find(kind, name string) (Snapshot, bool) {
	for _, s := range f.Snapshots {
		if s.Kind == kind && s.Name == name {
			return s, true
		}
	}
	return Snapshot{}, false
}

// Reporter is implemented by objects that expose a snapshot.
type Reporter interface {
	Snapshot(t clock.Timestamp) Snapshot
}
