package controlarea

import "math"

// tolerance for treating the crossing as inside a curve range
const tolerance = 1e-9

// Outcome of solving the local supply and demand curves.
type Outcome int

const (
	SolutionNone Outcome = iota
	SolutionUnconstrained
	SolutionConstrained
	SolutionError
)

func (o Outcome) String() string {
	switch o {
	case SolutionNone:
		return "NONE"
	case SolutionUnconstrained:
		return "UNCONSTRAINED"
	case SolutionConstrained:
		return "CONSTRAINED"
	case SolutionError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Curve holds the linear demand and supply price curves of an area.
//
// Demand price Pd(q) = Pmax + D*(Qu-q) on [Qu-Qr, Qu].
// Supply price Ps(q) = Pmin + S*(q-Qw) on [Qw, Qw+Qg].
type Curve struct {
	Pmax float64 `json:"Pmax"`
	D    float64 `json:"D"`
	Qu   float64 `json:"Qu"`
	Qr   float64 `json:"Qr"`
	Pmin float64 `json:"Pmin"`
	S    float64 `json:"S"`
	Qw   float64 `json:"Qw"`
	Qg   float64 `json:"Qg"`
}

// Solution of a curve solve. Dq is the exchange adjustment, positive when the
// area can supply more than it demands.
type Solution struct {
	Outcome Outcome `json:"Outcome"`
	Q       float64 `json:"Q"`
	Qs      float64 `json:"Qs"`
	Qd      float64 `json:"Qd"`
	Ps      float64 `json:"Ps"`
	Pd      float64 `json:"Pd"`
	Dq      float64 `json:"Dq"`
	Dp      float64 `json:"Dp"`
}

// Valid reports whether every parameter is finite and the slopes and ranges
// are not negative.
func (c Curve) Valid() bool {
	for _, v := range []float64{c.Pmax, c.D, c.Qu, c.Qr, c.Pmin, c.S, c.Qw, c.Qg} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return c.D >= 0 && c.S >= 0 && c.Qr >= 0 && c.Qg >= 0
}

// Pd is the demand price at q. Pmax is the price at Qu; below Qu the price
// rises, reaching Pmax + D*Qr at Qu-Qr.
func (c Curve) Pd(q float64) float64 { return c.Pmax + c.D*(c.Qu-q) }

// Ps is the supply price at q.
func (c Curve) Ps(q float64) float64 { return c.Pmin + c.S*(q-c.Qw) }

// Solve intersects the curves and clamps the crossing into each range.
func (c Curve) Solve() Solution {
	if !c.Valid() {
		return Solution{Outcome: SolutionError}
	}

	var q float64
	if c.D+c.S == 0 {
		if c.Pmax != c.Pmin {
			return Solution{Outcome: SolutionNone}
		}
		// flat and equal prices: take the lowest quantity both curves share
		q = math.Max(c.Qu-c.Qr, c.Qw)
	} else {
		q = (c.Pmax - c.Pmin + c.D*c.Qu + c.S*c.Qw) / (c.D + c.S)
	}
	if q < 0 || math.IsNaN(q) || math.IsInf(q, 0) {
		return Solution{Outcome: SolutionNone, Q: q}
	}

	qs, supplyClamped := clamp(q, c.Qw, c.Qw+c.Qg)
	qd, demandClamped := clamp(q, c.Qu-c.Qr, c.Qu)
	sol := Solution{
		Outcome: SolutionUnconstrained,
		Q:       q,
		Qs:      qs,
		Qd:      qd,
		Ps:      c.Ps(qs),
		Pd:      c.Pd(qd),
	}
	if supplyClamped || demandClamped {
		sol.Outcome = SolutionConstrained
		sol.Dq = qs - qd
		sol.Dp = sol.Pd - sol.Ps
	}
	return sol
}

// clamp limits q to [lo, hi]; q within tolerance of a bound is left as is.
func clamp(q, lo, hi float64) (float64, bool) {
	switch {
	case q < lo-tolerance:
		return lo, true
	case q > hi+tolerance:
		return hi, true
	}
	return q, false
}
