package controlarea

import (
	"testing"

	"gotest.tools/v3/assert"
)

func referenceCurve() Curve {
	return Curve{Pmax: 100, Qu: 50, Qr: 10, D: 12, Pmin: 20, S: 20, Qw: 30, Qg: 10}
}

func TestCurveUnconstrainedAtBoundary(t *testing.T) {
	sol := referenceCurve().Solve()
	assert.Equal(t, sol.Outcome, SolutionUnconstrained)
	assert.Equal(t, sol.Q, 40.0)
	assert.Equal(t, sol.Qs, 40.0)
	assert.Equal(t, sol.Qd, 40.0)
	assert.Equal(t, sol.Ps, sol.Pd)
	assert.Equal(t, sol.Dq, 0.0)
	assert.Equal(t, sol.Dp, 0.0)
}

func TestCurveConstrained(t *testing.T) {
	c := referenceCurve()
	c.Qg = 0
	sol := c.Solve()
	assert.Equal(t, sol.Outcome, SolutionConstrained)
	assert.Equal(t, sol.Qs, 30.0)
	assert.Equal(t, sol.Qd, 40.0)
	assert.Equal(t, sol.Dq, -10.0)
	assert.Equal(t, sol.Ps, 20.0)
	assert.Equal(t, sol.Pd, 220.0)
	assert.Equal(t, sol.Dp, 200.0)
}

func TestCurveDemandPriceRange(t *testing.T) {
	c := referenceCurve()
	assert.Equal(t, c.Pd(c.Qu), c.Pmax)
	assert.Equal(t, c.Pd(c.Qu-c.Qr), c.Pmax+c.D*c.Qr)
	assert.Assert(t, c.Pd(c.Qu-c.Qr/2) > c.Pmax)
	assert.Equal(t, c.Ps(c.Qw), c.Pmin)
	assert.Equal(t, c.Ps(c.Qw+c.Qg), c.Pmin+c.S*c.Qg)
}

func TestCurveNoCrossing(t *testing.T) {
	c := Curve{Pmax: 100, Pmin: 20, Qu: 50, Qr: 10, Qw: 30, Qg: 10}
	assert.Equal(t, c.Solve().Outcome, SolutionNone)

	// crossing at negative quantity
	c = Curve{Pmax: 0, D: 1, Qu: 0, Pmin: 100, S: 1, Qw: 0}
	assert.Equal(t, c.Solve().Outcome, SolutionNone)
}

func TestCurveFlatEqualPrices(t *testing.T) {
	c := Curve{Pmax: 50, Pmin: 50, Qu: 50, Qr: 20, Qw: 35, Qg: 10}
	sol := c.Solve()
	assert.Equal(t, sol.Outcome, SolutionUnconstrained)
	assert.Equal(t, sol.Q, 35.0)
}

func TestCurveInvalid(t *testing.T) {
	c := referenceCurve()
	c.S = -1
	assert.Equal(t, c.Solve().Outcome, SolutionError)
	assert.Assert(t, !c.Valid())
}
