package fault

import (
	"errors"
	"fmt"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestBoundsError(t *testing.T) {
	err := Bounds("wecc", "frequency", 58.2, 59.5)
	assert.Assert(t, errors.Is(err, ErrBounds))
	assert.Assert(t, !errors.Is(err, ErrNumerical))
	assert.Equal(t, err.Error(), "wecc: out of bounds: frequency=58.2 (threshold 59.5)")
}

func TestWrappedConfiguration(t *testing.T) {
	err := fmt.Errorf("init: %w", Configuration("east", "negative damping %g", -1.0))
	assert.Assert(t, errors.Is(err, ErrConfiguration))

	var fe *Error
	assert.Assert(t, errors.As(err, &fe))
	assert.Equal(t, fe.Object, "east")
	assert.Assert(t, is.Contains(err.Error(), "negative damping -1"))
}

func TestNumericalOmitsThreshold(t *testing.T) {
	err := Numerical("wecc", "frequency", -1, "frequency is negative")
	assert.Equal(t, err.Error(), "wecc: numerical failure: frequency=-1: frequency is negative")
}
