package solver

import (
	"math"

	"github.com/google/go-cmp/cmp"
)

var floatApprox = cmp.Comparer(func(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
})
