/*
solver.go resolves intertie flows from control area injections using a DC
network formulation. Each connected group of areas is grounded at its lowest
indexed member; the grounded Laplacian is factorised once per topology and the
resulting flow sensitivities are reused until the next Build.
*/

package solver

import (
	"errors"
	"fmt"
	"math"

	"github.com/ohowland/interconnect/internal/pkg/fault"
	"gonum.org/v1/gonum/mat"
)

// MaxCondition is the largest acceptable condition number of the grounded
// network matrix.
const MaxCondition = 1e12

var (
	// ErrNotReady is returned by Solve before a successful Build.
	ErrNotReady = errors.New("solver is not ready")
	// ErrStale is returned by Solve after the topology was invalidated.
	ErrStale = errors.New("solver topology is stale")
)

// Node is a control area as seen by the solver.
type Node interface {
	Injection() float64
}

// Branch is an intertie between two node indices.
type Branch struct {
	From       int
	To         int
	Admittance float64
	Capacity   float64 // 0 means unlimited
	InService  bool
}

// Solution is the result of one Solve. Flows are positive From to To.
type Solution struct {
	Flows      []float64
	Exchange   []float64
	Residual   []float64
	Island     []bool
	Overloaded []bool
}

// network is the immutable product of Build.
type network struct {
	n, m      int
	branches  []Branch
	island    []bool
	incidence *mat.Dense // m x n, nil when m == 0
	ainv      *mat.Dense // n x n grounded inverse
	sens      *mat.Dense // m x n flow sensitivities, nil when m == 0
}

// Solver owns the network matrices for one interconnection.
type Solver struct {
	name  string
	nodes []Node
	net   *network
	b     *mat.VecDense
	stale bool
	err   error
}

// New returns an unbuilt solver. name identifies it in errors.
func New(name string) *Solver {
	return &Solver{name: name, err: ErrNotReady}
}

// Build assembles and factorises the network. On failure the previous
// factorisation is discarded and the solver reports not ready.
func (s *Solver) Build(nodes []Node, branches []Branch) error {
	s.net = nil
	s.nodes = nil
	s.b = nil
	s.stale = false

	net, err := build(s.name, len(nodes), branches)
	if err != nil {
		s.err = err
		return err
	}
	s.net = net
	s.nodes = append([]Node(nil), nodes...)
	s.b = mat.NewVecDense(len(nodes), nil)
	s.err = nil
	return nil
}

// Invalidate marks the topology as changed. Solve fails until the next Build.
func (s *Solver) Invalidate() {
	s.stale = true
}

// Stale reports whether a rebuild is pending.
func (s *Solver) Stale() bool {
	return s.stale
}

// IsReady reports whether the last Build succeeded.
func (s *Solver) IsReady() bool {
	return s.net != nil && s.err == nil
}

// IsUsed reports whether any branch was built. A single area network has
// nothing to solve.
func (s *Solver) IsUsed() bool {
	return s.net != nil && s.net.m > 0
}

// RefreshInjections reads the current injection of every node into b.
func (s *Solver) RefreshInjections() {
	if s.net == nil {
		return
	}
	for i, n := range s.nodes {
		s.b.SetVec(i, n.Injection())
	}
}

// Injections returns a copy of the injection vector.
func (s *Solver) Injections() []float64 {
	if s.b == nil {
		return nil
	}
	return append([]float64(nil), s.b.RawVector().Data...)
}

// Inverse returns a copy of the grounded network inverse.
func (s *Solver) Inverse() *mat.Dense {
	if s.net == nil {
		return nil
	}
	return mat.DenseCopyOf(s.net.ainv)
}

// Solve computes flows from the current injections.
func (s *Solver) Solve() (Solution, error) {
	if s.net == nil {
		return Solution{}, fmt.Errorf("%s: %w", s.name, s.err)
	}
	if s.stale {
		return Solution{}, fmt.Errorf("%s: %w", s.name, ErrStale)
	}
	net := s.net
	sol := Solution{
		Flows:      make([]float64, net.m),
		Exchange:   make([]float64, net.n),
		Residual:   make([]float64, net.n),
		Island:     append([]bool(nil), net.island...),
		Overloaded: make([]bool, net.m),
	}

	if net.m > 0 {
		var x mat.VecDense
		x.MulVec(net.sens, s.b)
		var exchange mat.VecDense
		exchange.MulVec(net.incidence.T(), &x)
		for l := 0; l < net.m; l++ {
			sol.Flows[l] = x.AtVec(l)
			if c := net.branches[l].Capacity; c > 0 && math.Abs(sol.Flows[l]) > c {
				sol.Overloaded[l] = true
			}
		}
		for i := 0; i < net.n; i++ {
			sol.Exchange[i] = exchange.AtVec(i)
		}
	}
	for i := 0; i < net.n; i++ {
		sol.Residual[i] = s.b.AtVec(i) - sol.Exchange[i]
	}
	for _, v := range sol.Flows {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return sol, fault.Numerical(s.name, "flow", v, "non-finite intertie flow")
		}
	}
	return sol, nil
}

// Norm2 returns the euclidean norm of v.
func Norm2(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return mat.Norm(mat.NewVecDense(len(v), append([]float64(nil), v...)), 2)
}

func build(name string, n int, branches []Branch) (*network, error) {
	if n == 0 {
		return nil, fault.Configuration(name, "no nodes to build")
	}
	m := len(branches)
	for l, br := range branches {
		switch {
		case br.From < 0 || br.From >= n || br.To < 0 || br.To >= n:
			return nil, fault.Configuration(name, "branch %d endpoints (%d,%d) out of range", l, br.From, br.To)
		case br.From == br.To:
			return nil, fault.Configuration(name, "branch %d connects node %d to itself", l, br.From)
		case br.InService && (!(br.Admittance > 0) || math.IsInf(br.Admittance, 0)):
			return nil, fault.Configuration(name, "branch %d admittance %g must be positive and finite", l, br.Admittance)
		}
	}

	// connected components over in-service branches
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for _, br := range branches {
		if !br.InService {
			continue
		}
		a, b := find(br.From), find(br.To)
		if a < b {
			parent[b] = a
		} else if b < a {
			parent[a] = b
		}
	}
	size := make(map[int]int)
	for i := 0; i < n; i++ {
		size[find(i)]++
	}
	island := make([]bool, n)
	reduced := make([]int, n) // index in the grounded matrix, -1 for references
	k := 0
	for i := 0; i < n; i++ {
		root := find(i)
		island[i] = size[root] == 1
		if root == i {
			reduced[i] = -1
			continue
		}
		reduced[i] = k
		k++
	}

	net := &network{
		n:        n,
		m:        m,
		branches: append([]Branch(nil), branches...),
		island:   island,
		ainv:     mat.NewDense(n, n, nil),
	}

	if k > 0 {
		lr := mat.NewDense(k, k, nil)
		add := func(i, j int, v float64) {
			ri, rj := reduced[i], reduced[j]
			if ri < 0 || rj < 0 {
				return
			}
			lr.Set(ri, rj, lr.At(ri, rj)+v)
		}
		for _, br := range branches {
			if !br.InService {
				continue
			}
			y := br.Admittance
			add(br.From, br.From, y)
			add(br.To, br.To, y)
			add(br.From, br.To, -y)
			add(br.To, br.From, -y)
		}

		var lu mat.LU
		lu.Factorize(lr)
		if c := lu.Cond(); c > MaxCondition || math.IsNaN(c) {
			return nil, fault.Numerical(name, "condition", c, "network matrix is ill-conditioned")
		}
		var inv mat.Dense
		if err := inv.Inverse(lr); err != nil {
			return nil, fault.Numerical(name, "condition", lu.Cond(), err.Error())
		}
		for i := 0; i < n; i++ {
			if reduced[i] < 0 {
				continue
			}
			for j := 0; j < n; j++ {
				if reduced[j] < 0 {
					continue
				}
				net.ainv.Set(i, j, inv.At(reduced[i], reduced[j]))
			}
		}
	}

	if m > 0 {
		net.incidence = mat.NewDense(m, n, nil)
		ya := mat.NewDense(m, n, nil)
		for l, br := range branches {
			if !br.InService {
				continue
			}
			net.incidence.Set(l, br.From, 1)
			net.incidence.Set(l, br.To, -1)
			ya.Set(l, br.From, br.Admittance)
			ya.Set(l, br.To, -br.Admittance)
		}
		net.sens = &mat.Dense{}
		net.sens.Mul(ya, net.ainv)
	}
	return net, nil
}
