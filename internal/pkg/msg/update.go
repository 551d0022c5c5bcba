package msg

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Update is the accounting tuple exchanged between units, control areas and
// the interconnection.
type Update struct {
	Inertia  float64 `json:"Inertia" bson:"inertia"`   // MJ
	Capacity float64 `json:"Capacity" bson:"capacity"` // MW
	Supply   float64 `json:"Supply" bson:"supply"`     // MW
	Demand   float64 `json:"Demand" bson:"demand"`     // MW
	Losses   float64 `json:"Losses" bson:"losses"`     // MW
}

// Add returns the element-wise sum.
func (u Update) Add(o Update) Update {
	return Update{
		Inertia:  u.Inertia + o.Inertia,
		Capacity: u.Capacity + o.Capacity,
		Supply:   u.Supply + o.Supply,
		Demand:   u.Demand + o.Demand,
		Losses:   u.Losses + o.Losses,
	}
}

// Net is the injection supply-demand-losses.
func (u Update) Net() float64 {
	return u.Supply - u.Demand - u.Losses
}

// Finite reports whether every field is a finite number.
func (u Update) Finite() bool {
	for _, v := range u.fields() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (u Update) fields() [5]float64 {
	return [5]float64{u.Inertia, u.Capacity, u.Supply, u.Demand, u.Losses}
}

// String renders the text form accepted by ParseUpdate.
func (u Update) String() string {
	f := u.fields()
	parts := make([]string, len(f))
	for i, v := range f {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// ParseUpdate reads "inertia,capacity,supply,demand,losses". Anything other
// than exactly five finite numbers is rejected.
func ParseUpdate(s string) (Update, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 5 {
		return Update{}, fmt.Errorf("update %q: expected 5 fields, got %d", s, len(parts))
	}
	var f [5]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Update{}, fmt.Errorf("update %q: field %d: %w", s, i+1, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Update{}, fmt.Errorf("update %q: field %d is not finite", s, i+1)
		}
		f[i] = v
	}
	return Update{f[0], f[1], f[2], f[3], f[4]}, nil
}

// AsUpdate extracts an Update from a message payload, accepting either the
// struct or its text form.
func AsUpdate(m Msg) (Update, error) {
	switch p := m.Payload().(type) {
	case Update:
		if !p.Finite() {
			return Update{}, fmt.Errorf("update %v is not finite", p)
		}
		return p, nil
	case *Update:
		if p == nil {
			return Update{}, fmt.Errorf("nil update")
		}
		return AsUpdate(New(m.PID(), m.Topic(), *p))
	case string:
		return ParseUpdate(p)
	default:
		return Update{}, fmt.Errorf("payload %T is not an update", p)
	}
}
