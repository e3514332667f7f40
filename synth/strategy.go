package synth

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/johnyf/marduk/bdd"
)

// ErrEmptyTrace signals that strategy extraction ran on a trace with no
// recorded Y iterate for some guarantee. That happens only when the winning
// region was computed for a game without guarantees, a configuration the
// extractor does not support; it is a caller bug, not an input condition.
var ErrEmptyTrace = errors.New("synth: fixpoint trace has no iterate to extract from")

// Strategy is the winning strategy relation over (present state, next
// state, memory) tuples, together with the memory counter it introduced.
// A correct implementation may follow any move the relation allows, forever.
type Strategy struct {
	Relation bdd.Set
	Jx       *Counter
}

// Free releases the strategy relation and its counter predicates.
func (st *Strategy) Free() {
	st.Relation.Free()
	st.Jx.Free()
}

// ExtractStrategy turns the fixpoint trace of the last Solve into a single
// strategy relation, restricted to the states reachable from the (possibly
// narrowed) initial predicate. The trace is consumed: its X array is
// released as soon as rho3 is built, the Y array after rho2, to bound peak
// memory during extraction.
//
// The relation is the union of three rules, all conjoined with the game's
// transition relation:
//   - rho1: in a state satisfying guarantee jx, any move staying in the
//     winning region is allowed and the memory advances to (jx+1) mod n.
//   - rho2: a move descending the Y attractor for guarantee jx, memory held.
//   - rho3: while assumption i is violated, a move descending the X iterates
//     recorded for (jx, i), memory held.
func (s *Solver) ExtractStrategy() (*Strategy, error) {
	if s.trace == nil {
		return nil, errors.New("synth: Solve must run before ExtractStrategy")
	}
	n := len(s.g.Guarantees)
	if n == 0 {
		return nil, errors.WithMessage(ErrEmptyTrace, "game has no guarantees")
	}
	for j := range s.trace.Y {
		if len(s.trace.Y[j]) == 0 {
			return nil, errors.WithMessagef(ErrEmptyTrace, "guarantee %d", j)
		}
	}

	mgr := s.g.Mgr
	one := mgr.One()
	reachable := s.g.Reachable(s.init, s.g.Trans, one)
	one.Free()

	jx := newCounter(mgr, n, "jx", s.opts.OneHot)

	rho3 := s.calcRho3(jx, reachable)
	s.trace.FreeX()
	s.stats.Rho3Size = rho3.Size()

	rho2 := s.calcRho2(jx, reachable)
	s.trace.FreeY()
	s.stats.Rho2Size = rho2.Size()

	rho1 := s.calcRho1(jx)
	s.stats.Rho1Size = rho1.Size()
	s.trace = nil

	union := rho3.Or(rho2)
	rho3.Free()
	rho2.Free()
	relation := union.Or(rho1)
	union.Free()
	rho1.Free()

	// not a hard intersection: pick a cheap representative that agrees with
	// the relation on every reachable state
	restricted := relation.Restrict(reachable)
	relation.Free()
	reachable.Free()

	log.Infof("strategy extracted: %d nodes (rho1 %d, rho2 %d, rho3 %d)",
		restricted.Size(), s.stats.Rho1Size, s.stats.Rho2Size, s.stats.Rho3Size)
	return &Strategy{Relation: restricted, Jx: jx}, nil
}

// calcRho1 builds the fallback rule: when guarantee j holds and memory is j,
// every transition that stays inside the winning region is allowed, and the
// memory advances.
func (s *Solver) calcRho1(jx *Counter) bdd.Set {
	mgr := s.g.Mgr
	rho1 := mgr.Zero()
	jp1 := jx.Init.Copy()

	for j := 0; j < len(s.g.Guarantees); j++ {
		jxEqJ := jp1
		jp1 = jx.Trans.Constrain(jxEqJ) // jx′ = (j+1) mod n, over next literals

		onGoal := jxEqJ.And(s.g.Guarantees[j])
		advance := onGoal.And(jp1)
		onGoal.Free()
		grown := rho1.Or(advance)
		advance.Free()
		rho1.Free()
		rho1 = grown

		jxEqJ.Free()
		next := jx.SwapPresentNext(jp1)
		jp1.Free()
		jp1 = next
	}
	jp1.Free()

	nextWin := s.g.SwapPresentNext(s.win)
	stayWin := s.win.And(s.g.Trans)
	frame := stayWin.And(nextWin)
	stayWin.Free()
	nextWin.Free()

	out := rho1.And(frame)
	rho1.Free()
	frame.Free()
	return out
}

// calcRho2 builds the per-guarantee attractor rule from the Y iterates: in a
// state first reached at iterate r, move into the union of the earlier
// iterates.
func (s *Solver) calcRho2(jx *Counter, reachable bdd.Set) bdd.Set {
	mgr := s.g.Mgr
	rho2 := mgr.Zero()
	jp1 := jx.Init.Copy()

	for j := 0; j < len(s.g.Guarantees); j++ {
		ys := s.trace.Y[j]
		low := ys[0].Copy()
		tmp := mgr.Zero()

		for r := 1; r < len(ys); r++ {
			nextLow := s.g.SwapPresentNext(low)
			yr := ys[r].Restrict(reachable)
			notLow := low.Not()
			fresh := notLow.Restrict(reachable)
			notLow.Free()

			entered := yr.And(fresh)
			yr.Free()
			fresh.Free()
			move := entered.And(nextLow)
			entered.Free()
			nextLow.Free()

			grown := tmp.Or(move)
			move.Free()
			tmp.Free()
			tmp = grown

			wider := low.Or(ys[r])
			low.Free()
			low = wider
		}
		low.Free()

		jxEqJ := jp1
		jxHold := jx.SwapPresentNext(jxEqJ) // jx′ = j: memory committed to j
		held := tmp.And(jxEqJ)
		tmp.Free()
		piece := held.And(jxHold)
		held.Free()
		jxHold.Free()
		grown := rho2.Or(piece)
		piece.Free()
		rho2.Free()
		rho2 = grown

		adv := jx.Trans.Constrain(jxEqJ)
		jxEqJ.Free()
		jp1 = jx.SwapPresentNext(adv)
		adv.Free()
	}
	jp1.Free()

	out := rho2.And(s.g.Trans)
	rho2.Free()
	return out
}

// calcRho3 builds the innermost attractor rule from the X iterates: while
// assumption i fails, move from the first X iterate containing the state
// into the union of the smaller ones.
func (s *Solver) calcRho3(jx *Counter, reachable bdd.Set) bdd.Set {
	mgr := s.g.Mgr
	rho3 := mgr.Zero()
	jp1 := jx.Init.Copy()

	for j := 0; j < len(s.g.Guarantees); j++ {
		low := mgr.Zero()
		tmp := mgr.Zero()

		for _, row := range s.trace.X[j] {
			for i, x := range row {
				nextX := s.g.SwapPresentNext(x)
				xr := x.Restrict(reachable)
				notLow := low.Not()
				fresh := notLow.Restrict(reachable)
				notLow.Free()

				move := xr.And(fresh)
				xr.Free()
				fresh.Free()
				if i < len(s.g.Assumptions) {
					notA := s.g.Assumptions[i].Not()
					gated := move.And(notA)
					notA.Free()
					move.Free()
					move = gated
				}
				full := move.And(nextX)
				move.Free()
				nextX.Free()

				grown := tmp.Or(full)
				full.Free()
				tmp.Free()
				tmp = grown

				wider := low.Or(x)
				low.Free()
				low = wider
			}
		}
		low.Free()

		jxEqJ := jp1
		jxHold := jx.SwapPresentNext(jxEqJ)
		held := tmp.And(jxEqJ)
		tmp.Free()
		piece := held.And(jxHold)
		held.Free()
		jxHold.Free()
		grown := rho3.Or(piece)
		piece.Free()
		rho3.Free()
		rho3 = grown

		adv := jx.Trans.Constrain(jxEqJ)
		jxEqJ.Free()
		jp1 = jx.SwapPresentNext(adv)
		adv.Free()
	}
	jp1.Free()

	out := rho3.And(s.g.Trans)
	rho3.Free()
	return out
}
