package load

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Response is a discrete state-space demand response model driven by the
// per-unit frequency deviation u = f/f_nom - 1, advanced once per step:
//
//	x[k+1] = A x[k] + B u[k]
//	y[k]   = C x[k] + D u[k]
//
// y[0] is the relative change of the responsive part of the demand.
type Response struct {
	Fraction float64     `json:"Fraction"` // pu of demand under response control
	A        [][]float64 `json:"A"`        // n x n
	B        [][]float64 `json:"B"`        // n x 1
	C        [][]float64 `json:"C"`        // p x n
	D        [][]float64 `json:"D"`        // p x 1, empty for none
	X        []float64   `json:"X"`        // initial state, empty for zero
}

type responder struct {
	fraction   float64
	a, b, c, d *mat.Dense
	x          *mat.VecDense
	y          float64
}

func newResponder(r Response) (*responder, error) {
	if !(r.Fraction >= 0 && r.Fraction <= 1) {
		return nil, fmt.Errorf("response fraction %g is not within [0, 1]", r.Fraction)
	}
	n := len(r.A)
	if n == 0 {
		return nil, fmt.Errorf("response model has no states")
	}
	a, err := dense("A", r.A, n, n)
	if err != nil {
		return nil, err
	}
	b, err := dense("B", r.B, n, 1)
	if err != nil {
		return nil, err
	}
	p := len(r.C)
	if p == 0 {
		return nil, fmt.Errorf("response model has no outputs")
	}
	c, err := dense("C", r.C, p, n)
	if err != nil {
		return nil, err
	}
	d := mat.NewDense(p, 1, nil)
	if len(r.D) > 0 {
		if d, err = dense("D", r.D, p, 1); err != nil {
			return nil, err
		}
	}
	x := mat.NewVecDense(n, nil)
	switch len(r.X) {
	case 0:
	case n:
		for i, v := range r.X {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("response state X[%d] is not finite", i)
			}
			x.SetVec(i, v)
		}
	default:
		return nil, fmt.Errorf("response state X has %d elements, want %d", len(r.X), n)
	}
	return &responder{fraction: r.Fraction, a: a, b: b, c: c, d: d, x: x}, nil
}

func dense(name string, rows [][]float64, r, c int) (*mat.Dense, error) {
	if len(rows) != r {
		return nil, fmt.Errorf("response matrix %s has %d rows, want %d", name, len(rows), r)
	}
	m := mat.NewDense(r, c, nil)
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("response matrix %s row %d has %d columns, want %d", name, i, len(row), c)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("response matrix %s[%d][%d] is not finite", name, i, j)
			}
			m.Set(i, j, v)
		}
	}
	return m, nil
}

// step returns the output for input u and advances the state.
func (r *responder) step(u float64) float64 {
	in := mat.NewVecDense(1, []float64{u})

	var y, du mat.VecDense
	y.MulVec(r.c, r.x)
	du.MulVec(r.d, in)
	y.AddVec(&y, &du)

	var next, bu mat.VecDense
	next.MulVec(r.a, r.x)
	bu.MulVec(r.b, in)
	next.AddVec(&next, &bu)
	r.x.CopyVec(&next)

	r.y = y.AtVec(0)
	return r.y
}

// demand splits base into its fixed and responsive parts and applies the
// last output to the responsive part, which never goes negative.
func (r *responder) demand(base float64) float64 {
	responsive := base * r.fraction
	return base - responsive + math.Max(responsive*(1+r.y), 0)
}

// state returns a copy of the state vector.
func (r *responder) state() []float64 {
	return append([]float64(nil), r.x.RawVector().Data...)
}
