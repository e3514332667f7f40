package bdd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantsAndLiterals(t *testing.T) {
	m := NewManager()
	one := m.One()
	zero := m.Zero()

	assert.True(t, one.IsOne())
	assert.True(t, zero.IsZero())
	assert.False(t, one.Eq(zero))

	a := m.NewVar("a")
	b := m.NewVar("b")
	assert.False(t, a.Eq(b))
	assert.Equal(t, 2, m.NumVars())
	assert.Equal(t, "a", m.VarName(0))
}

func TestBooleanOperators(t *testing.T) {
	m := NewManager()
	a := m.NewVar("a")
	b := m.NewVar("b")

	ab := a.And(b)
	ba := b.And(a)
	if !ab.Eq(ba) {
		t.Error("Expected a∧b and b∧a to be the same node")
	}

	// De Morgan: ¬(a∧b) == ¬a ∨ ¬b
	lhs := ab.Not()
	na := a.Not()
	nb := b.Not()
	rhs := na.Or(nb)
	assert.True(t, lhs.Eq(rhs), "De Morgan should hold by hash-consing")

	// a ⊕ a == 0, a ⊕ ¬a == 1
	assert.True(t, a.Xor(a).IsZero())
	assert.True(t, a.Xor(na).IsOne())

	// a → (a ∨ b) is a tautology
	assert.True(t, a.Implies(a.Or(b)).IsOne())
	assert.True(t, a.Leq(a.Or(b)))
	assert.False(t, a.Or(b).Leq(a))

	assert.True(t, a.Iff(a).IsOne())
	assert.True(t, a.Ite(b, b).Eq(b))
}

func TestManagerMismatchPanics(t *testing.T) {
	m1 := NewManager()
	m2 := NewManager()
	a := m1.NewVar("a")
	b := m2.NewVar("b")

	defer func() {
		r := recover()
		require.NotNil(t, r, "combining sets from two managers must panic")
		assert.Equal(t, ErrMismatch, r)
	}()
	a.And(b)
}

func TestQuantification(t *testing.T) {
	m := NewManager()
	a := m.NewVar("a")
	b := m.NewVar("b")
	c := m.NewVar("c")

	f := a.And(b).Or(a.Not().And(c))
	cubeA := a.Copy()

	// ∃a. f == b ∨ c
	ex := f.Exists(cubeA)
	bc := b.Or(c)
	assert.True(t, ex.Eq(bc))

	// ∀a. f == b ∧ c
	fa := f.Forall(cubeA)
	assert.True(t, fa.Eq(b.And(c)))

	// multi-variable cube
	cubeAB := a.And(b)
	assert.True(t, f.Exists(cubeAB).IsOne())

	// quantifying a variable not in the support is the identity
	d := m.NewVar("d")
	assert.True(t, f.Exists(d).Eq(f))
}

func TestAndExistsMatchesAndThenExists(t *testing.T) {
	m := NewManager()
	a := m.NewVar("a")
	b := m.NewVar("b")
	c := m.NewVar("c")

	f := a.Or(b)
	g := b.Iff(c)
	cube := b.Copy()

	direct := f.AndExists(g, cube)
	viaAnd := f.And(g).Exists(cube)
	assert.True(t, direct.Eq(viaAnd))
}

func TestConstrainSubstitutesCubes(t *testing.T) {
	m := NewManager()
	a := m.NewVar("a")
	b := m.NewVar("b")

	// (a ↔ b) constrained by the cube a gives b
	f := a.Iff(b)
	cof := f.Constrain(a)
	assert.True(t, cof.Eq(b))

	// and by ¬a gives ¬b
	cof2 := f.Constrain(a.Not())
	assert.True(t, cof2.Eq(b.Not()))

	assert.True(t, f.Constrain(f).IsOne())
}

func TestRestrictAgreesOnCareSet(t *testing.T) {
	m := NewManager()
	a := m.NewVar("a")
	b := m.NewVar("b")

	f := a.And(b)
	care := a.Copy()

	r := f.Restrict(care)
	// r must agree with f wherever the care set holds:
	// (care ∧ r) == (care ∧ f)
	assert.True(t, care.And(r).Eq(care.And(f)))
	// and here the minimized form is just b
	assert.True(t, r.Eq(b))
}

func TestSwapExchangesVariables(t *testing.T) {
	m := NewManager()
	aPS := m.NewVar("a_ps")
	aNS := m.NewVar("a_ns")
	bPS := m.NewVar("b_ps")
	bNS := m.NewVar("b_ns")

	f := aPS.And(bPS.Not())
	swapped := f.Swap([]Set{aPS, bPS}, []Set{aNS, bNS})
	want := aNS.And(bNS.Not())
	assert.True(t, swapped.Eq(want))

	// swapping twice is the identity
	back := swapped.Swap([]Set{aPS, bPS}, []Set{aNS, bNS})
	assert.True(t, back.Eq(f))
}

func TestSupportAndLargestCube(t *testing.T) {
	m := NewManager()
	a := m.NewVar("a")
	b := m.NewVar("b")
	c := m.NewVar("c")

	f := a.And(b).Or(c)
	sup := f.Support()
	assert.True(t, sup.Eq(a.And(b).And(c)))

	// constants have empty support: the cube is ONE untouched
	assert.True(t, m.One().Support().IsOne())
	assert.True(t, m.Zero().Support().IsOne())

	// shortest root-to-one path of a∧b ∨ c is the two-literal cube ¬a∧c
	cube := f.LargestCube()
	assert.True(t, cube.Eq(a.Not().And(c)))
	assert.True(t, cube.Leq(f), "largest cube must be contained in the set")

	assert.True(t, m.Zero().LargestCube().IsZero())
	assert.True(t, m.One().LargestCube().IsOne())
}

func TestCountMinterm(t *testing.T) {
	m := NewManager()
	a := m.NewVar("a")
	b := m.NewVar("b")
	_ = m.NewVar("c")

	f := a.And(b)
	assert.Equal(t, 2.0, f.CountMinterm(3)) // a∧b leaves c free
	assert.Equal(t, 8.0, m.One().CountMinterm(3))
	assert.Equal(t, 0.0, m.Zero().CountMinterm(3))
}

func TestReclaimKeepsLiveSets(t *testing.T) {
	m := NewManager()
	a := m.NewVar("a")
	b := m.NewVar("b")

	keep := a.Iff(b)
	tmp := a.Xor(b)
	grew := m.NodeCount()
	tmp.Free()
	m.Reclaim()

	assert.Less(t, m.NodeCount(), grew, "dead nodes should be swept")

	// the survivor is still usable and still canonical
	again := a.Iff(b)
	assert.True(t, keep.Eq(again))
	assert.True(t, keep.And(a).Eq(a.And(b)))
}

func TestCopyAndFreeOwnership(t *testing.T) {
	m := NewManager()
	a := m.NewVar("a")

	s := a.Not()
	s2 := s.Copy()
	s.Free()

	// the second reference keeps the node alive across a sweep
	m.Reclaim()
	assert.True(t, s2.Or(a).IsOne())
}
