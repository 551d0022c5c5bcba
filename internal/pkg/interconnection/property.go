package interconnection

import (
	"sort"

	"github.com/ohowland/interconnect/internal/pkg/clock"
	"github.com/ohowland/interconnect/internal/pkg/fault"
	"github.com/ohowland/interconnect/internal/pkg/report"
)

// Kind is the report kind of an interconnection snapshot.
const Kind = "interconnection"

func (ic *Interconnection) properties() map[string]report.Property {
	props := []report.Property{
		report.Quantity("frequency", "Hz", ic.frequency),
		report.Quantity("nominal_frequency", "Hz", ic.config.NominalFrequency),
		report.Quantity("minimum_frequency", "Hz", ic.config.MinimumFrequency),
		report.Quantity("maximum_frequency", "Hz", ic.config.MaximumFrequency),
		report.Quantity("frequency_resolution", "Hz", FrequencyResolution),
		report.Quantity("dfdt", "Hz/s", ic.df),
		report.Quantity("supply", "MW", ic.totals.Supply),
		report.Quantity("demand", "MW", ic.totals.Demand),
		report.Quantity("losses", "MW", ic.totals.Losses),
		report.Quantity("imbalance", "MW", ic.imbalance),
		report.Quantity("inertia", "MJ", ic.totals.Inertia),
		report.Quantity("capacity", "MW", ic.totals.Capacity),
		report.Quantity("damping", "MW/Hz", ic.config.Damping),
		report.Enum("status", int(ic.status), ic.status.String()),
		report.Enum("frequency_bounds", int(ic.config.Bounds), ic.config.Bounds.String()),
		report.Enum("initialize", int(ic.config.Initialize), ic.config.Initialize.String()),
	}
	m := make(map[string]report.Property, len(props))
	for _, p := range props {
		m[p.Name] = p
	}
	return m
}

// Property returns one named property.
func (ic *Interconnection) Property(name string) (report.Property, error) {
	p, ok := ic.properties()[name]
	if !ok {
		return report.Property{}, fault.Configuration(ic.config.Name, "no property %q", name)
	}
	return p, nil
}

// Snapshot reports every property, sorted by name.
func (ic *Interconnection) Snapshot(now clock.Timestamp) report.Snapshot {
	m := ic.properties()
	props := make([]report.Property, 0, len(m))
	for _, p := range m {
		props = append(props, p)
	}
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
	return report.Snapshot{
		Time:       now,
		PID:        ic.pid,
		Kind:       Kind,
		Name:       ic.config.Name,
		Properties: props,
	}
}
