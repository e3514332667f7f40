package synth

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/johnyf/marduk/bdd"
	"github.com/johnyf/marduk/game"
)

// DualTrace holds every round of the environment-side fixpoint. Unlike the
// system side, the dual extractor needs all rounds: Z[a] is the a-th least
// fixpoint iterate (Z[0] is empty), Y[a][j] the converged greatest-fixpoint
// value for guarantee j in round a, X[a][j][i][c] the c-th least-fixpoint
// iterate for assumption i. Z stays available after extraction; the
// diagnosis subsystem tests candidate reduced specifications against it.
type DualTrace struct {
	Z []bdd.Set
	Y [][]bdd.Set
	X [][][][]bdd.Set
}

// FreeY releases the Y array.
func (t *DualTrace) FreeY() {
	for a := range t.Y {
		for _, y := range t.Y[a] {
			y.Free()
		}
		t.Y[a] = nil
	}
	t.Y = nil
}

// FreeX releases the X array.
func (t *DualTrace) FreeX() {
	for a := range t.X {
		for _, byGuarantee := range t.X[a] {
			for _, byAssumption := range byGuarantee {
				for _, x := range byAssumption {
					x.Free()
				}
			}
		}
		t.X[a] = nil
	}
	t.X = nil
}

// Free releases the whole trace, the Z array included.
func (t *DualTrace) Free() {
	if t.Y != nil {
		t.FreeY()
	}
	if t.X != nil {
		t.FreeX()
	}
	for _, z := range t.Z {
		z.Free()
	}
	t.Z = nil
}

// Counterstrategy is the environment's winning strategy relation, the proof
// artifact produced when the specification is unrealizable. Two memory
// counters are attached: ix picks the assumption to satisfy next, jx the
// guarantee being prevented, with jx = 0 reserved to mean "not yet
// committed".
type Counterstrategy struct {
	Relation bdd.Set
	Ix       *Counter
	Jx       *Counter
}

// Free releases the relation and the counter predicates.
func (cs *Counterstrategy) Free() {
	cs.Relation.Free()
	cs.Ix.Free()
	cs.Jx.Free()
}

// CounterSolver mirrors Solver with the environment and system roles
// swapped. It is invoked only when the realizability test fails.
type CounterSolver struct {
	g     *game.Game
	stats *Stats

	nextIn  bdd.Set
	nextOut bdd.Set

	win   bdd.Set
	trace *DualTrace
}

// NewCounterSolver prepares the dual solver for the given game.
func NewCounterSolver(g *game.Game) *CounterSolver {
	return &CounterSolver{
		g:       g,
		stats:   newStats(),
		nextIn:  g.NextInputCube(),
		nextOut: g.NextOutputCube(),
	}
}

// Stats returns the counters collected so far.
func (c *CounterSolver) Stats() *Stats { return c.stats }

// EnvWinningRegion returns the environment's winning region. Valid after
// SolveEnv.
func (c *CounterSolver) EnvWinningRegion() bdd.Set { return c.win }

// coaxEnv is the dual preimage: states from which the environment can force
// the next state into z whatever output the system plays.
//
//	coax_env(z) = ∃i′. env_trans ∧ ∀o′. (¬sys_trans ∨ z′)
func (c *CounterSolver) coaxEnv(z bdd.Set) bdd.Set {
	c.stats.CoaxEnvCalls++
	swapped := c.g.SwapPresentNext(z)
	notSys := c.g.SysTrans.Not()
	targetOrForbidden := notSys.Or(swapped)
	notSys.Free()
	swapped.Free()
	envMoves := targetOrForbidden.Forall(c.nextOut)
	targetOrForbidden.Free()
	result := envMoves.AndExists(c.g.EnvTrans, c.nextIn)
	envMoves.Free()
	return result
}

// coaxEnvInput is coaxEnv without quantifying the next input: it keeps the
// (state, next input) pairs, so the extracted rules fix the input witness.
func (c *CounterSolver) coaxEnvInput(z bdd.Set) bdd.Set {
	swapped := c.g.SwapPresentNext(z)
	notSys := c.g.SysTrans.Not()
	targetOrForbidden := notSys.Or(swapped)
	notSys.Free()
	swapped.Free()
	envMoves := targetOrForbidden.Forall(c.nextOut)
	targetOrForbidden.Free()
	result := envMoves.And(c.g.EnvTrans)
	envMoves.Free()
	return result
}

// SolveEnv computes the environment's winning region, the complement of the
// system's winning-region formula: a least fixpoint in Z of a union over
// guarantees of greatest fixpoints in Y of intersections over assumptions of
// least fixpoints in X. All rounds of the trace are retained.
func (c *CounterSolver) SolveEnv() (bdd.Set, *DualTrace) {
	mgr := c.g.Mgr
	n := len(c.g.Guarantees)
	m := len(c.g.Assumptions)

	z := mgr.Zero()
	oldZ := mgr.One()
	trace := &DualTrace{
		Z: []bdd.Set{z.Copy()},
		Y: [][]bdd.Set{nil},
		X: [][][][]bdd.Set{nil},
	}

	a := 1
	for !z.Eq(oldZ) {
		log.Infof("env winning region: round %d, %d live nodes", a, mgr.NodeCount())
		oldZ.Free()
		oldZ = z.Copy()

		unionY := mgr.Zero()
		coaxEnvZ := c.coaxEnv(z)
		trace.Y = append(trace.Y, make([]bdd.Set, n))
		trace.X = append(trace.X, make([][][]bdd.Set, n))

		for j := 0; j < n; j++ {
			trace.X[a][j] = make([][]bdd.Set, m)

			y := mgr.One()
			oldY := mgr.Zero()
			notG := c.g.Guarantees[j].Not()
			evade := notG.Or(coaxEnvZ)
			notG.Free()

			for !y.Eq(oldY) {
				oldY.Free()
				oldY = y.Copy()

				interX := mgr.One()
				coaxEnvY := c.coaxEnv(y)
				stay := evade.And(coaxEnvY)
				coaxEnvY.Free()

				for i := 0; i < m; i++ {
					x := mgr.Zero()
					oldX := mgr.One()
					row := []bdd.Set{x.Copy()}
					for !x.Eq(oldX) {
						oldX.Free()
						oldX = x.Copy()

						cx := c.coaxEnv(x)
						progress := c.g.Assumptions[i].Or(cx)
						cx.Free()
						x.Free()
						x = stay.And(progress)
						progress.Free()

						row = append(row, x.Copy())
					}
					oldX.Free()
					for _, old := range trace.X[a][j][i] {
						old.Free()
					}
					trace.X[a][j][i] = row

					shrunk := interX.And(x)
					interX.Free()
					x.Free()
					interX = shrunk
				}
				stay.Free()
				y.Free()
				y = interX
			}
			oldY.Free()
			evade.Free()

			trace.Y[a][j] = y.Copy()
			grown := unionY.Or(y)
			y.Free()
			unionY.Free()
			unionY = grown
		}
		coaxEnvZ.Free()

		z.Free()
		z = unionY
		trace.Z = append(trace.Z, z.Copy())
		a++
		mgr.Reclaim()
	}
	oldZ.Free()

	c.win = z.Copy()
	c.trace = trace
	c.stats.CounterWin = z.Size()
	return z, trace
}

// andAll conjoins the given sets into a fresh result without consuming the
// arguments. The rho rules below are long conjunctions; building them through
// one helper keeps the ownership bookkeeping in one place.
func andAll(mgr *bdd.Manager, sets ...bdd.Set) bdd.Set {
	acc := mgr.One()
	for _, s := range sets {
		grown := acc.And(s)
		acc.Free()
		acc = grown
	}
	return acc
}

// ExtractCounterstrategy derives the environment's strategy from the dual
// trace. The memory is the pair (ix, jx): ix cycles over the assumptions to
// satisfy, jx holds the guarantee being evaded, with the reserved value 0
// meaning the environment has not committed yet (the commitment may depend
// on the system's move, which rho1 cannot foresee).
//
// The four rules:
//   - rho1: force the play from Z[a] into Z[a-1]; jx′ is reset to the
//     sentinel.
//   - rho2: jx = 0 and descent into Z[a-1] is impossible: commit jx to a j
//     whose Y[a][j] the play can be held in.
//   - rho3: assumption ix is satisfied here: keep evading guarantee jx and
//     advance ix to (ix+1) mod m.
//   - rho4: descend the X iterates recorded for (a, jx, ix) until assumption
//     ix is reached.
//
// The Y array is released after rho3, the X array after rho4; the Z array is
// kept on the trace for the diagnosis consumer.
func (c *CounterSolver) ExtractCounterstrategy() (*Counterstrategy, error) {
	if c.trace == nil {
		return nil, errors.New("synth: SolveEnv must run before ExtractCounterstrategy")
	}
	m := len(c.g.Assumptions)
	n := len(c.g.Guarantees)
	if m == 0 {
		return nil, errors.WithMessage(ErrEmptyTrace, "counterstrategy needs at least one assumption")
	}

	mgr := c.g.Mgr
	trace := c.trace
	rounds := len(trace.Z)

	ix := newCounter(mgr, m, "ix", false)
	// n+1 values: 0 is the "not yet committed" sentinel
	jx := newCounter(mgr, n+1, "jx", false)

	jxNextEq0 := jx.SwapPresentNext(jx.Init)
	relation := mgr.Zero()
	accumulate := func(piece bdd.Set) {
		grown := relation.Or(piece)
		piece.Free()
		relation.Free()
		relation = grown
	}

	// rho1: descend the Z iterates, leaving jx uncommitted.
	ip1 := ix.Init.Copy()
	for i := 0; i < m; i++ {
		ixEqI := ip1
		ixNextEqI := ix.SwapPresentNext(ixEqI)
		for a := 1; a < rounds; a++ {
			notPrev := trace.Z[a-1].Not()
			force := c.coaxEnvInput(trace.Z[a-1])
			piece := andAll(mgr, ixEqI, ixNextEqI, jxNextEq0,
				trace.Z[a], notPrev, force, c.g.EnvTrans)
			notPrev.Free()
			force.Free()
			accumulate(piece)
		}
		ixNextEqI.Free()
		adv := ix.Trans.Constrain(ixEqI)
		ixEqI.Free()
		ip1 = ix.SwapPresentNext(adv)
		adv.Free()
	}
	ip1.Free()
	jxNextEq0.Free()

	// rho2 and rho3 share their loop shape over (a, j, i).
	for a := 1; a < rounds; a++ {
		notPrev := trace.Z[a-1].Not()
		noDescent := c.coaxEnv(trace.Z[a-1])
		stuck := noDescent.Not()
		noDescent.Free()

		jp1 := jx.Trans.Constrain(jx.Init) // skip the sentinel: first value is 1
		swapped := jx.SwapPresentNext(jp1)
		jp1.Free()
		jp1 = swapped

		for j := 0; j < n; j++ {
			jxEqJ := jp1
			jxNextEqJ := jx.SwapPresentNext(jxEqJ)
			holdY := c.coaxEnvInput(trace.Y[a][j])

			ip1 := ix.Init.Copy()
			for i := 0; i < m; i++ {
				ixEqI := ip1
				ixNextEqI := ix.SwapPresentNext(ixEqI)
				adv := ix.Trans.Constrain(ixEqI)
				ixNextEqIPlus1 := adv

				// rho2: commit jx
				piece := andAll(mgr, ixEqI, ixNextEqI, jx.Init, jxNextEqJ,
					trace.Z[a], notPrev, holdY, stuck, c.g.EnvTrans)
				accumulate(piece)

				// rho3: assumption i reached, advance ix
				piece = andAll(mgr, ixEqI, ixNextEqIPlus1, jxEqJ, jxNextEqJ,
					c.g.Assumptions[i], trace.Z[a], notPrev, holdY, stuck, c.g.EnvTrans)
				accumulate(piece)

				ixNextEqI.Free()
				ip1 = ix.SwapPresentNext(adv)
				adv.Free()
				ixEqI.Free()
			}
			ip1.Free()
			holdY.Free()

			jxNextEqJ.Free()
			adv := jx.Trans.Constrain(jxEqJ)
			jxEqJ.Free()
			jp1 = jx.SwapPresentNext(adv)
			adv.Free()
		}
		jp1.Free()
		notPrev.Free()
		stuck.Free()
	}
	trace.FreeY()

	// rho4: descend the X iterates toward assumption ix.
	for a := 1; a < rounds; a++ {
		notPrev := trace.Z[a-1].Not()
		noDescent := c.coaxEnv(trace.Z[a-1])
		stuck := noDescent.Not()
		noDescent.Free()

		jp1 := jx.Trans.Constrain(jx.Init)
		swapped := jx.SwapPresentNext(jp1)
		jp1.Free()
		jp1 = swapped

		for j := 0; j < n; j++ {
			jxEqJ := jp1
			jxNextEqJ := jx.SwapPresentNext(jxEqJ)

			ip1 := ix.Init.Copy()
			for i := 0; i < m; i++ {
				ixEqI := ip1
				ixNextEqI := ix.SwapPresentNext(ixEqI)

				row := trace.X[a][j][i]
				for k := 1; k < len(row); k++ {
					notLower := row[k-1].Not()
					force := c.coaxEnvInput(row[k-1])
					piece := andAll(mgr, ixEqI, ixNextEqI, jxEqJ, jxNextEqJ,
						row[k], notLower, trace.Z[a], notPrev, force, stuck, c.g.EnvTrans)
					notLower.Free()
					force.Free()
					accumulate(piece)
				}

				ixNextEqI.Free()
				adv := ix.Trans.Constrain(ixEqI)
				ixEqI.Free()
				ip1 = ix.SwapPresentNext(adv)
				adv.Free()
			}
			ip1.Free()

			jxNextEqJ.Free()
			adv := jx.Trans.Constrain(jxEqJ)
			jxEqJ.Free()
			jp1 = jx.SwapPresentNext(adv)
			adv.Free()
		}
		jp1.Free()
		notPrev.Free()
		stuck.Free()
	}
	trace.FreeX()

	one := mgr.One()
	reachable := c.g.Reachable(c.g.Init, c.g.Trans, one)
	one.Free()
	restricted := relation.Restrict(reachable)
	relation.Free()
	reachable.Free()

	log.Infof("counterstrategy extracted: %d nodes over %d rounds", restricted.Size(), rounds-1)
	return &Counterstrategy{Relation: restricted, Ix: ix, Jx: jx}, nil
}
