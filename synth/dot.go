package synth

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/johnyf/marduk/bdd"
	"github.com/johnyf/marduk/game"
)

// enumeration above this many variables is pointless to look at and
// exponential to produce
const maxDotVars = 12

// Dot renders a strategy or counterstrategy relation as a Graphviz digraph
// by enumerating the states over the given variables (game variables plus
// the memory counters attached to the relation). A debugging aid for small
// games only; init, when non-zero, marks the initial states.
func Dot(title string, relation bdd.Set, vars []*game.Variable, init bdd.Set) (string, error) {
	if len(vars) > maxDotVars {
		return "", errors.Errorf("synth: refusing to enumerate %d variables for a DOT graph (max %d)", len(vars), maxDotVars)
	}
	mgr := relation.Manager()
	total := 1 << len(vars)

	cubeFor := func(k int, next bool) bdd.Set {
		cube := mgr.One()
		for b, v := range vars {
			lit := v.PS
			if next {
				lit = v.NS
			}
			if k&(1<<b) == 0 {
				neg := lit.Not()
				grown := cube.And(neg)
				neg.Free()
				cube.Free()
				cube = grown
			} else {
				grown := cube.And(lit)
				cube.Free()
				cube = grown
			}
		}
		return cube
	}

	labelFor := func(k int) string {
		parts := make([]string, 0, len(vars))
		for b, v := range vars {
			val := 0
			if k&(1<<b) != 0 {
				val = 1
			}
			parts = append(parts, fmt.Sprintf("%s=%d", v.Name, val))
		}
		return strings.Join(parts, " ")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("digraph %q {\n", title))
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=circle];\n\n")

	// a state is drawn when the relation offers at least one move from it
	live := make([]bool, total)
	for k := 0; k < total; k++ {
		ps := cubeFor(k, false)
		moves := relation.And(ps)
		live[k] = !moves.IsZero()
		moves.Free()

		if live[k] {
			inInit := false
			if !init.IsZero() {
				marked := init.And(ps)
				inInit = !marked.IsZero()
				marked.Free()
			}
			shape := ""
			if inInit {
				shape = ", shape=doublecircle"
			}
			sb.WriteString(fmt.Sprintf("  s%d [label=\"%s\"%s];\n", k, labelFor(k), shape))
		}
		ps.Free()
	}
	sb.WriteString("\n")

	for k := 0; k < total; k++ {
		if !live[k] {
			continue
		}
		ps := cubeFor(k, false)
		from := relation.And(ps)
		ps.Free()
		for k2 := 0; k2 < total; k2++ {
			ns := cubeFor(k2, true)
			edge := from.And(ns)
			if !edge.IsZero() {
				sb.WriteString(fmt.Sprintf("  s%d -> s%d;\n", k, k2))
			}
			edge.Free()
			ns.Free()
		}
		from.Free()
	}

	sb.WriteString("}\n")
	return sb.String(), nil
}
