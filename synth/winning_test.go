package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnyf/marduk/bdd"
	"github.com/johnyf/marduk/game"
)

// buildGame wires a request/grant game with the given relations. Assumptions
// and guarantees are passed as predicates over the present variables.
func buildGame(t *testing.T, m *bdd.Manager, vars []*game.Variable,
	envTrans, sysTrans, envInit, sysInit bdd.Set, assumptions, guarantees []bdd.Set) *game.Game {
	t.Helper()
	g, err := game.New(m, vars, envTrans, sysTrans, envInit, sysInit, assumptions, guarantees)
	require.NoError(t, err)
	return g
}

// grantGame is the smallest realizable game: one input, one output, free
// transitions, no assumptions, guarantee "grant holds".
func grantGame(t *testing.T) (*bdd.Manager, *game.Game, *game.Variable, *game.Variable) {
	t.Helper()
	m := bdd.NewManager()
	req := game.NewVariable(m, "req", game.Input)
	grant := game.NewVariable(m, "grant", game.Output)
	g := buildGame(t, m, []*game.Variable{req, grant},
		m.One(), m.One(), m.One(), m.One(),
		nil, []bdd.Set{grant.PS})
	return m, g, req, grant
}

func TestCoAxFreeTransitions(t *testing.T) {
	m, g, _, _ := grantGame(t)
	s := NewSolver(g, Options{})

	// with unconstrained transitions the system can force anything non-empty
	all := s.CoAx(m.One())
	assert.True(t, all.IsOne())

	none := s.CoAx(m.Zero())
	assert.True(t, none.IsZero())
}

func TestCoAxForcedToggle(t *testing.T) {
	m := bdd.NewManager()
	b := game.NewVariable(m, "b", game.Output)
	// the system is forced to toggle b each step
	toggle := b.NS.Iff(b.PS.Not())
	g := buildGame(t, m, []*game.Variable{b},
		m.One(), toggle, m.One(), m.One(), nil, []bdd.Set{b.PS})
	s := NewSolver(g, Options{})

	// the only way to be in {b} next is to be in {¬b} now
	pre := s.CoAx(b.PS)
	assert.True(t, pre.Eq(b.PS.Not()))
}

func TestSolveGrantScenario(t *testing.T) {
	_, g, _, _ := grantGame(t)
	s := NewSolver(g, Options{})

	win, trace := s.Solve()
	assert.True(t, win.IsOne(), "the system can always set grant next")
	assert.Equal(t, 1, s.Stats().OuterRounds, "must converge in exactly one outer round")

	// with no assumptions the inner fixpoint equals Z on its first iteration
	require.Len(t, trace.Y[0], 1)
	require.Len(t, trace.X[0], 1)
	require.Len(t, trace.X[0][0], 1)
	assert.True(t, trace.X[0][0][0].Eq(win))

	assert.True(t, s.Realizable())
	assert.True(t, s.Init().IsOne(), "all initial states win, nothing to narrow")

	// a fixpoint of the game is also a fixpoint of the preimage operator
	again := s.CoAx(win)
	assert.True(t, again.Eq(win))
}

func TestSolveNoGuarantees(t *testing.T) {
	m := bdd.NewManager()
	req := game.NewVariable(m, "req", game.Input)
	grant := game.NewVariable(m, "grant", game.Output)
	g := buildGame(t, m, []*game.Variable{req, grant},
		m.One(), m.One(), m.One(), m.One(), nil, nil)
	s := NewSolver(g, Options{})

	win, trace := s.Solve()
	assert.True(t, win.IsOne(), "no guarantees is vacuously realizable")
	assert.Empty(t, trace.Y)
	assert.True(t, s.Realizable())
}

func TestSolveUnsatisfiableGuarantee(t *testing.T) {
	m := bdd.NewManager()
	req := game.NewVariable(m, "req", game.Input)
	grant := game.NewVariable(m, "grant", game.Output)
	g := buildGame(t, m, []*game.Variable{req, grant},
		m.One(), m.One(), m.One(), m.One(),
		[]bdd.Set{m.One()}, []bdd.Set{m.Zero()})
	s := NewSolver(g, Options{})

	win, _ := s.Solve()
	assert.True(t, win.IsZero())
	assert.False(t, s.Realizable())
}

func TestSolveLatchedGrantNarrowsInit(t *testing.T) {
	m := bdd.NewManager()
	req := game.NewVariable(m, "req", game.Input)
	grant := game.NewVariable(m, "grant", game.Output)

	// grant is latched: once low, low forever
	latch := grant.NS.Iff(grant.PS)
	g := buildGame(t, m, []*game.Variable{req, grant},
		m.One(), latch, m.One(), m.One(),
		[]bdd.Set{m.One()}, []bdd.Set{grant.PS})
	s := NewSolver(g, Options{})

	win, _ := s.Solve()
	assert.True(t, win.Eq(grant.PS), "only already-granting states are winning")

	// realizable because the system may pick grant initially, but the
	// losing half of the initial states must be narrowed away
	assert.True(t, s.Realizable())
	assert.True(t, s.Init().Eq(grant.PS))
	assert.True(t, s.SysInit().Eq(grant.PS))
}

func TestTraceMonotone(t *testing.T) {
	m := bdd.NewManager()
	b := game.NewVariable(m, "b", game.Output)
	toggle := b.NS.Iff(b.PS.Not())
	g := buildGame(t, m, []*game.Variable{b},
		m.One(), toggle, m.One(), m.One(),
		[]bdd.Set{m.One()}, []bdd.Set{b.PS})
	s := NewSolver(g, Options{})

	win, trace := s.Solve()
	assert.True(t, win.IsOne())

	// Y iterates grow, and each is contained in the final winning region's
	// round value
	require.Len(t, trace.Y[0], 2)
	assert.True(t, trace.Y[0][0].Eq(b.PS), "first attractor layer is the goal itself")
	assert.True(t, trace.Y[0][1].IsOne())
	for r := 1; r < len(trace.Y[0]); r++ {
		assert.True(t, trace.Y[0][r-1].Leq(trace.Y[0][r]), "Y must never shrink")
	}
	// every recorded X lies inside the corresponding Y iterate
	for r, row := range trace.X[0] {
		for _, x := range row {
			assert.True(t, x.Leq(trace.Y[0][r]))
		}
	}
}

func TestSolveIsDeterministic(t *testing.T) {
	// same game, two fresh managers: identical outcomes, guaranteed by the
	// prescribed ascending processing order
	run := func() (int, bool) {
		m := bdd.NewManager()
		req := game.NewVariable(m, "req", game.Input)
		grant := game.NewVariable(m, "grant", game.Output)
		latch := grant.NS.Iff(grant.PS)
		g := buildGame(t, m, []*game.Variable{req, grant},
			m.One(), latch, m.One(), m.One(),
			[]bdd.Set{req.PS}, []bdd.Set{grant.PS})
		s := NewSolver(g, Options{})
		win, trace := s.Solve()
		iterates := 0
		for j := range trace.Y {
			iterates += len(trace.Y[j])
		}
		return iterates, win.Eq(grant.PS)
	}
	it1, w1 := run()
	it2, w2 := run()
	assert.Equal(t, it1, it2)
	assert.Equal(t, w1, w2)
}
