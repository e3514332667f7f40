package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnyf/marduk/bdd"
)

// oneBitGame builds the smallest interesting game: one input, one output,
// unconstrained transitions.
func oneBitGame(t *testing.T) (*bdd.Manager, *Game, *Variable, *Variable) {
	t.Helper()
	m := bdd.NewManager()
	in := NewVariable(m, "req", Input)
	out := NewVariable(m, "grant", Output)

	g, err := New(m, []*Variable{in, out},
		m.One(), m.One(), m.One(), m.One(), nil, nil)
	require.NoError(t, err)
	return m, g, in, out
}

func TestNewValidation(t *testing.T) {
	m := bdd.NewManager()
	_, err := New(nil, nil, bdd.Set{}, bdd.Set{}, bdd.Set{}, bdd.Set{}, nil, nil)
	assert.Error(t, err)

	_, err = New(m, nil, m.One(), m.One(), m.One(), m.One(), nil, nil)
	assert.Error(t, err, "a game needs at least one variable")

	other := bdd.NewManager()
	v := NewVariable(other, "x", Input)
	_, err = New(m, []*Variable{v}, m.One(), m.One(), m.One(), m.One(), nil, nil)
	assert.Error(t, err, "variables must live on the game's manager")
}

func TestDerivedPredicates(t *testing.T) {
	m := bdd.NewManager()
	in := NewVariable(m, "req", Input)
	out := NewVariable(m, "grant", Output)

	envInit := in.PS.Not()
	sysInit := out.PS.Not()
	g, err := New(m, []*Variable{in, out}, m.One(), m.One(), envInit, sysInit, nil, nil)
	require.NoError(t, err)

	assert.True(t, g.Init.Eq(envInit.And(sysInit)))
	assert.True(t, g.Trans.IsOne())
}

func TestCubes(t *testing.T) {
	_, g, in, out := oneBitGame(t)

	assert.True(t, g.NextInputCube().Eq(in.NS))
	assert.True(t, g.NextOutputCube().Eq(out.NS))
	assert.True(t, g.PresentInputCube().Eq(in.PS))
	assert.True(t, g.AllPresentCube().Eq(in.PS.And(out.PS)))
}

func TestSwapPresentNext(t *testing.T) {
	_, g, in, out := oneBitGame(t)

	s := in.PS.And(out.PS.Not())
	swapped := g.SwapPresentNext(s)
	assert.True(t, swapped.Eq(in.NS.And(out.NS.Not())))
}

func TestReachable(t *testing.T) {
	m := bdd.NewManager()
	b := NewVariable(m, "b", Output)

	// b' = ¬b: a two-state cycle
	trans := b.NS.Iff(b.PS.Not())
	init := b.PS.Not()
	g, err := New(m, []*Variable{b}, m.One(), trans, m.One(), init, nil, nil)
	require.NoError(t, err)

	reach := g.Reachable(g.Init, g.Trans, m.One())
	assert.True(t, reach.IsOne(), "both values of b are reachable")

	// with a self-loop transition only the initial state is reachable
	stay := b.NS.Iff(b.PS)
	reach2 := g.Reachable(init, stay, m.One())
	assert.True(t, reach2.Eq(init))
}

func TestVarKindString(t *testing.T) {
	assert.Equal(t, "input", Input.String())
	assert.Equal(t, "output", Output.String())
	assert.Equal(t, "state", State.String())
}
