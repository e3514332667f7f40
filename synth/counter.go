package synth

import (
	"fmt"

	"github.com/johnyf/marduk/bdd"
	"github.com/johnyf/marduk/game"
)

// Counter is a bounded memory counter jx (or ix) attached to a strategy: an
// integer in [0, n) over auxiliary present/next variable pairs, with a
// modulo-increment transition relation and initial value 0.
type Counter struct {
	N     int
	Trans bdd.Set // "counter′ = (counter+1) mod n", unconditionally
	Init  bdd.Set // "counter = 0"
	PS    []bdd.Set
	NS    []bdd.Set
	Vars  []*game.Variable
}

// newCounter builds the counter's variables and its modulo-increment
// relation, in binary or one-hot encoding. The variables are owned by the
// strategy that created them, not by the Game.
func newCounter(m *bdd.Manager, n int, name string, oneHot bool) *Counter {
	if n <= 0 {
		panic(fmt.Sprintf("synth: modulo-increment counter over %d values makes no sense", n))
	}
	if oneHot {
		return newOneHotCounter(m, n, name)
	}
	return newBinaryCounter(m, n, name)
}

func counterVars(m *bdd.Manager, bits int, name string) ([]*game.Variable, []bdd.Set, []bdd.Set) {
	vars := make([]*game.Variable, 0, bits)
	ps := make([]bdd.Set, 0, bits)
	ns := make([]bdd.Set, 0, bits)
	for i := 0; i < bits; i++ {
		v := game.NewVariable(m, fmt.Sprintf("%s_%d", name, i), game.State)
		vars = append(vars, v)
		ps = append(ps, v.PS)
		ns = append(ns, v.NS)
	}
	return vars, ps, ns
}

// newBinaryCounter encodes the counter in ceil(log2(n)) bits. The increment
// relation is a ripple carry; a reset clause maps n-1 back to 0.
func newBinaryCounter(m *bdd.Manager, n int, name string) *Counter {
	bits := 0
	for (1 << bits) < n {
		bits++
	}
	if bits == 0 { // n = 1
		bits = 1
	}
	vars, ps, ns := counterVars(m, bits, name)

	trans := m.One()
	carry := m.One()
	for i := 0; i < bits; i++ {
		sum := carry.Xor(ps[i])
		bit := ns[i].Iff(sum)
		sum.Free()
		grown := trans.And(bit)
		bit.Free()
		trans.Free()
		trans = grown

		nextCarry := carry.And(ps[i])
		carry.Free()
		carry = nextCarry
	}
	carry.Free()

	resetCond := m.One()
	resetState := m.One()
	start := m.One()
	sel := n - 1
	for i := 0; i < bits; i++ {
		lit := ps[i]
		if sel&0x1 == 0 {
			lit = ps[i].Not()
			defer lit.Free()
		}
		grown := resetCond.And(lit)
		resetCond.Free()
		resetCond = grown
		sel >>= 1

		notNS := ns[i].Not()
		grownReset := resetState.And(notNS)
		notNS.Free()
		resetState.Free()
		resetState = grownReset

		notPS := ps[i].Not()
		grownStart := start.And(notPS)
		notPS.Free()
		start.Free()
		start = grownStart
	}

	increase := resetCond.Or(trans)
	notReset := resetCond.Not()
	reset := notReset.Or(resetState)
	full := increase.And(reset)
	increase.Free()
	notReset.Free()
	reset.Free()
	resetCond.Free()
	resetState.Free()
	trans.Free()

	return &Counter{N: n, Trans: full, Init: start, PS: ps, NS: ns, Vars: vars}
}

// newOneHotCounter uses one variable pair per counter value.
func newOneHotCounter(m *bdd.Manager, n int, name string) *Counter {
	vars, ps, ns := counterVars(m, n, name)

	// valueAt(i) = literal i positive, all others negative
	valueAt := func(lits []bdd.Set, i int) bdd.Set {
		state := m.One()
		for j := range lits {
			lit := lits[j]
			if j != i {
				lit = lits[j].Not()
				defer lit.Free()
			}
			grown := state.And(lit)
			state.Free()
			state = grown
		}
		return state
	}

	trans := m.Zero()
	for i := 0; i < n; i++ {
		cur := valueAt(ps, i)
		next := valueAt(ns, (i+1)%n)
		step := cur.And(next)
		cur.Free()
		next.Free()
		grown := trans.Or(step)
		step.Free()
		trans.Free()
		trans = grown
	}

	return &Counter{N: n, Trans: trans, Init: valueAt(ps, 0), PS: ps, NS: ns, Vars: vars}
}

// SwapPresentNext exchanges the counter's own present and next literals in s.
func (c *Counter) SwapPresentNext(s bdd.Set) bdd.Set {
	return s.Swap(c.PS, c.NS)
}

// Free releases the counter's relations. Its variables stay allocated; BDD
// variables are never removed from a manager.
func (c *Counter) Free() {
	c.Trans.Free()
	c.Init.Free()
}
