// Package synth solves GR(1) games. It computes the system's winning region
// by a three-level nested fixpoint, extracts a winning strategy from the
// fixpoint's intermediate iterates, and, when the specification is
// unrealizable, runs the dual computation to produce a counterstrategy for
// the environment.
//
// Everything here is single-threaded and synchronous: the fixpoints are
// sequential loops of pure set operations, with intermediates freed inside
// each loop body to bound the peak node count.
package synth

import (
	log "github.com/sirupsen/logrus"

	"github.com/johnyf/marduk/bdd"
	"github.com/johnyf/marduk/game"
)

// Options selects encoding details of the extracted artifacts.
type Options struct {
	// OneHot selects a one-hot encoding for the strategy's memory counter
	// instead of the default binary encoding.
	OneHot bool
}

// Trace holds the intermediate fixpoint iterates of the final outer round.
// Y[j][r] is the r-th least-fixpoint iterate for guarantee j; X[j][r][i] is
// the converged greatest-fixpoint value for assumption i inside iterate r.
// The strategy extractor consumes and releases it piecewise: the X array
// right after rule rho3 is built, the Y array after rho2.
type Trace struct {
	Y [][]bdd.Set
	X [][][]bdd.Set
}

func newTrace(n int) *Trace {
	return &Trace{
		Y: make([][]bdd.Set, n),
		X: make([][][]bdd.Set, n),
	}
}

// resetGuarantee frees every entry recorded for guarantee j. Called at the
// start of each outer round so that only the final round's trace survives.
func (t *Trace) resetGuarantee(j int) {
	for _, y := range t.Y[j] {
		y.Free()
	}
	t.Y[j] = nil
	for _, row := range t.X[j] {
		for _, x := range row {
			x.Free()
		}
	}
	t.X[j] = nil
}

// popConverged drops the last recorded iterate for guarantee j: it is the
// duplicate that witnessed convergence and carries no information.
func (t *Trace) popConverged(j int) {
	r := len(t.Y[j]) - 1
	t.Y[j][r].Free()
	t.Y[j] = t.Y[j][:r]
	for _, x := range t.X[j][r] {
		x.Free()
	}
	t.X[j] = t.X[j][:r]
}

// FreeX releases the X array. The extractor calls this as soon as rho3 is
// built to bound peak memory.
func (t *Trace) FreeX() {
	for j := range t.X {
		for _, row := range t.X[j] {
			for _, x := range row {
				x.Free()
			}
		}
		t.X[j] = nil
	}
	t.X = nil
}

// FreeY releases the Y array.
func (t *Trace) FreeY() {
	for j := range t.Y {
		for _, y := range t.Y[j] {
			y.Free()
		}
		t.Y[j] = nil
	}
	t.Y = nil
}

// Free releases whatever is left of the trace.
func (t *Trace) Free() {
	if t.X != nil {
		t.FreeX()
	}
	if t.Y != nil {
		t.FreeY()
	}
}

// Solver computes the winning region of a game and owns the narrowed copies
// of the initial predicates that the realizability test may produce.
type Solver struct {
	g     *game.Game
	opts  Options
	stats *Stats

	nextIn  bdd.Set
	nextOut bdd.Set

	envInit bdd.Set
	sysInit bdd.Set
	init    bdd.Set

	win   bdd.Set
	trace *Trace
}

// NewSolver prepares a solver for the given game.
func NewSolver(g *game.Game, opts Options) *Solver {
	return &Solver{
		g:       g,
		opts:    opts,
		stats:   newStats(),
		nextIn:  g.NextInputCube(),
		nextOut: g.NextOutputCube(),
		envInit: g.EnvInit.Copy(),
		sysInit: g.SysInit.Copy(),
		init:    g.Init.Copy(),
	}
}

// Stats returns the counters collected so far.
func (s *Solver) Stats() *Stats { return s.stats }

// EnvInit returns the environment initial predicate, narrowed to the winning
// region if Realizable found initial states outside it.
func (s *Solver) EnvInit() bdd.Set { return s.envInit }

// SysInit returns the system initial predicate, possibly narrowed.
func (s *Solver) SysInit() bdd.Set { return s.sysInit }

// Init returns the combined initial predicate, possibly narrowed.
func (s *Solver) Init() bdd.Set { return s.init }

// WinningRegion returns the computed winning region. Valid after Solve.
func (s *Solver) WinningRegion() bdd.Set { return s.win }

// CoAx is the enforceable-predecessor operator: the states from which the
// system can force the next state into z, whatever input the environment
// plays.
//
//	coax(z) = ∀i′. ¬env_trans ∨ ∃o′. (sys_trans ∧ z′)
func (s *Solver) CoAx(z bdd.Set) bdd.Set {
	s.stats.CoaxCalls++
	swapped := s.g.SwapPresentNext(z)
	canReach := s.g.SysTrans.AndExists(swapped, s.nextOut)
	swapped.Free()
	notEnv := s.g.EnvTrans.Not()
	allowed := canReach.Or(notEnv)
	canReach.Free()
	notEnv.Free()
	result := allowed.Forall(s.nextIn)
	allowed.Free()
	return result
}

// Solve computes the winning region together with the fixpoint trace of the
// final outer round. The outer greatest fixpoint in Z updates Z after every
// guarantee index j (not once per round); this in-place update order is part
// of the algorithm's observable behavior, because the recorded trace and
// hence the extracted strategy depend on it.
//
// Edge cases kept on purpose: with no guarantees Z stays the full state set
// and the trace is empty; with no assumptions the innermost fixpoint starts
// at and stays at Z, recorded as a single iterate.
func (s *Solver) Solve() (bdd.Set, *Trace) {
	mgr := s.g.Mgr
	n := len(s.g.Guarantees)
	m := len(s.g.Assumptions)

	trace := newTrace(n)
	z := mgr.One()
	oldZ := mgr.Zero()

	for !z.Eq(oldZ) {
		s.stats.OuterRounds++
		log.Infof("winning region: outer round %d, %d live nodes", s.stats.OuterRounds, mgr.NodeCount())

		oldZ.Free()
		oldZ = z.Copy()

		for j := 0; j < n; j++ {
			trace.resetGuarantee(j)

			y := mgr.Zero()
			oldY := mgr.One()
			r := 0
			for !y.Eq(oldY) {
				trace.X[j] = append(trace.X[j], nil)
				oldY.Free()
				oldY = y.Copy()

				coaxZ := s.CoAx(z)
				coaxY := s.CoAx(y)
				goalStep := s.g.Guarantees[j].And(coaxZ)
				seed := goalStep.Or(coaxY)
				coaxZ.Free()
				coaxY.Free()
				goalStep.Free()

				y.Free()
				y = mgr.Zero()

				if m == 0 {
					// no assumptions: X = Z immediately
					x := z.Copy()
					trace.X[j][r] = append(trace.X[j][r], x.Copy())
					grown := y.Or(x)
					y.Free()
					x.Free()
					y = grown
				}
				for i := 0; i < m; i++ {
					x := z.Copy()
					oldX := mgr.Zero()
					for !x.Eq(oldX) {
						oldX.Free()
						oldX = x.Copy()

						notA := s.g.Assumptions[i].Not()
						coaxX := s.CoAx(x)
						stall := notA.And(coaxX)
						notA.Free()
						coaxX.Free()

						x.Free()
						x = seed.Or(stall)
						stall.Free()
					}
					oldX.Free()
					trace.X[j][r] = append(trace.X[j][r], x.Copy())

					grown := y.Or(x)
					y.Free()
					x.Free()
					y = grown
				}
				seed.Free()
				trace.Y[j] = append(trace.Y[j], y.Copy())
				r++
			}
			oldY.Free()
			trace.popConverged(j)

			// Gauss-Seidel: Z takes the new Y after every guarantee
			z.Free()
			z = y
		}
		mgr.Reclaim()
	}
	oldZ.Free()

	s.win = z.Copy()
	s.trace = trace
	s.stats.WinSize = z.Size()
	return z, trace
}

// Realizable decides whether the specification is realizable: for every
// environment-controlled initial choice there must be a system initial
// choice landing in the winning region.
//
// As in the source this has a documented side effect: when the test passes
// but some initial states lie outside the winning region, the solver's
// copies of the initial predicates are narrowed to their winning part, so
// that downstream synthesis starts from winning states only. The Game itself
// is never modified.
func (s *Solver) Realizable() bool {
	outCube := s.g.PresentOutputCube()
	inCube := s.g.PresentInputCube()
	defer outCube.Free()
	defer inCube.Free()

	winAndSysInit := s.win.And(s.sysInit)
	canChoose := winAndSysInit.Exists(outCube)
	winAndSysInit.Free()
	notEnvInit := s.envInit.Not()
	ok := notEnvInit.Or(canChoose)
	okAllInputs := ok.Forall(inCube)
	notEnvInit.Free()
	canChoose.Free()
	ok.Free()

	realizable := okAllInputs.IsOne()
	okAllInputs.Free()

	if realizable && !s.init.Leq(s.win) {
		log.Warnf("not all initial states are winning; narrowing initial predicates to the winning region")
		narrow := func(p bdd.Set) bdd.Set {
			q := p.And(s.win)
			p.Free()
			return q
		}
		s.envInit = narrow(s.envInit)
		s.sysInit = narrow(s.sysInit)
		s.init = narrow(s.init)
	}
	log.Infof("specification realizable: %v", realizable)
	return realizable
}
