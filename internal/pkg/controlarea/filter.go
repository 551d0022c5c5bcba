package controlarea

import (
	"fmt"
	"math"
)

// Filter is an all-pole smoothing filter applied to raw ACE:
//
//	y[n] = x[n] - a1*y[n-1] - a2*y[n-2]
//
// With no coefficients it passes the input through.
type Filter struct {
	a    []float64
	prev [2]float64
}

// NewFilter checks that the poles lie inside the unit circle.
func NewFilter(coefficients []float64) (*Filter, error) {
	for _, c := range coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("ace filter coefficient %g is not finite", c)
		}
	}
	switch len(coefficients) {
	case 0:
	case 1:
		if math.Abs(coefficients[0]) >= 1 {
			return nil, fmt.Errorf("ace filter a1=%g is unstable", coefficients[0])
		}
	case 2:
		a1, a2 := coefficients[0], coefficients[1]
		if math.Abs(a2) >= 1 || math.Abs(a1) >= 1+a2 {
			return nil, fmt.Errorf("ace filter a1=%g a2=%g is unstable", a1, a2)
		}
	default:
		return nil, fmt.Errorf("ace filter takes at most 2 coefficients, got %d", len(coefficients))
	}
	return &Filter{a: append([]float64(nil), coefficients...)}, nil
}

// Apply feeds one sample through the filter.
func (f *Filter) Apply(x float64) float64 {
	y := x
	for i, a := range f.a {
		y -= a * f.prev[i]
	}
	f.prev[1] = f.prev[0]
	f.prev[0] = y
	return y
}

// Reset clears the filter history.
func (f *Filter) Reset() {
	f.prev = [2]float64{}
}
