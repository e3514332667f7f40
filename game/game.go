// Package game holds the immutable model of a GR(1) game: the variable set
// split into inputs and outputs, the environment and system transition
// relations, the initial-condition predicates, and the ordered lists of
// assumptions and guarantees. It is fully populated before any solver runs
// and read-only afterwards.
package game

import (
	"github.com/pkg/errors"

	"github.com/johnyf/marduk/bdd"
)

// VarKind classifies a game variable.
type VarKind int

const (
	// Input variables are controlled by the environment.
	Input VarKind = iota
	// Output variables are controlled by the system.
	Output
	// State variables are auxiliary, e.g. the strategy's memory counters.
	State
)

func (k VarKind) String() string {
	switch k {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return "state"
	}
}

// Variable is a named game variable with its present- and next-state
// literals. Variables are created once and never change.
type Variable struct {
	Name string
	Kind VarKind
	PS   bdd.Set
	NS   bdd.Set
}

// NewVariable allocates the present and next literal for a variable.
func NewVariable(m *bdd.Manager, name string, kind VarKind) *Variable {
	return &Variable{
		Name: name,
		Kind: kind,
		PS:   m.NewVar(name + "_ps"),
		NS:   m.NewVar(name + "_ns"),
	}
}

// Game bundles everything the solvers consume. All predicates share one
// manager; Trans is EnvTrans ∧ SysTrans and Init is EnvInit ∧ SysInit.
type Game struct {
	Mgr  *bdd.Manager
	Vars []*Variable

	EnvTrans bdd.Set
	SysTrans bdd.Set
	Trans    bdd.Set

	EnvInit bdd.Set
	SysInit bdd.Set
	Init    bdd.Set

	Assumptions []bdd.Set
	Guarantees  []bdd.Set
}

// New validates the bundle and derives the combined transition and initial
// predicates.
func New(m *bdd.Manager, vars []*Variable, envTrans, sysTrans, envInit, sysInit bdd.Set,
	assumptions, guarantees []bdd.Set) (*Game, error) {

	if m == nil {
		return nil, errors.New("game: nil manager")
	}
	if len(vars) == 0 {
		return nil, errors.New("game: no variables")
	}
	for _, v := range vars {
		if v.PS.Manager() != m || v.NS.Manager() != m {
			return nil, errors.Errorf("game: variable %q was created on a different manager", v.Name)
		}
	}
	for _, s := range []bdd.Set{envTrans, sysTrans, envInit, sysInit} {
		if s.Manager() != m {
			return nil, errors.New("game: transition or initial predicate from a different manager")
		}
	}
	g := &Game{
		Mgr:      m,
		Vars:     vars,
		EnvTrans: envTrans,
		SysTrans: sysTrans,
		Trans:    envTrans.And(sysTrans),
		EnvInit:  envInit,
		SysInit:  sysInit,
		Init:     envInit.And(sysInit),
	}
	g.Assumptions = append(g.Assumptions, assumptions...)
	g.Guarantees = append(g.Guarantees, guarantees...)
	return g, nil
}

// ----- Variable cubes and lists -----

func (g *Game) cube(kind VarKind, next bool) bdd.Set {
	c := g.Mgr.One()
	for _, v := range g.Vars {
		if v.Kind != kind {
			continue
		}
		lit := v.PS
		if next {
			lit = v.NS
		}
		old := c
		c = c.And(lit)
		old.Free()
	}
	return c
}

// NextInputCube is the product of the next-state input literals.
func (g *Game) NextInputCube() bdd.Set { return g.cube(Input, true) }

// NextOutputCube is the product of the next-state output literals.
func (g *Game) NextOutputCube() bdd.Set { return g.cube(Output, true) }

// PresentInputCube is the product of the present-state input literals.
func (g *Game) PresentInputCube() bdd.Set { return g.cube(Input, false) }

// PresentOutputCube is the product of the present-state output literals.
func (g *Game) PresentOutputCube() bdd.Set { return g.cube(Output, false) }

// AllPresentCube is the product of every present-state literal.
func (g *Game) AllPresentCube() bdd.Set {
	c := g.Mgr.One()
	for _, v := range g.Vars {
		old := c
		c = c.And(v.PS)
		old.Free()
	}
	return c
}

// PresentVars returns the present literals of all game variables, in
// declaration order.
func (g *Game) PresentVars() []bdd.Set {
	out := make([]bdd.Set, 0, len(g.Vars))
	for _, v := range g.Vars {
		out = append(out, v.PS)
	}
	return out
}

// NextVars returns the next literals of all game variables, in declaration
// order.
func (g *Game) NextVars() []bdd.Set {
	out := make([]bdd.Set, 0, len(g.Vars))
	for _, v := range g.Vars {
		out = append(out, v.NS)
	}
	return out
}

// SwapPresentNext exchanges present and next literals of the game variables
// in s, turning a predicate over states into one over successor states.
func (g *Game) SwapPresentNext(s bdd.Set) bdd.Set {
	return s.Swap(g.PresentVars(), g.NextVars())
}

// Reachable computes the states reachable from init via trans without ever
// leaving invar. The result is a predicate over present variables.
func (g *Game) Reachable(init, trans, invar bdd.Set) bdd.Set {
	presentCube := g.AllPresentCube()
	defer presentCube.Free()

	reach := init.And(invar)
	old := g.Mgr.Zero()
	for !reach.Eq(old) {
		old.Free()
		old = reach.Copy()

		constrained := reach.And(invar)
		reach.Free()
		reach = constrained

		image := reach.AndExists(trans, presentCube)
		step := image.Swap(g.PresentVars(), g.NextVars())
		image.Free()

		next := reach.Or(step)
		step.Free()
		reach.Free()
		reach = next
	}
	old.Free()
	return reach
}
