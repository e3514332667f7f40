// Command gr1demo synthesizes a two-client arbiter and prints the solver
// statistics together with a Graphviz rendering of the extracted strategy.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/johnyf/marduk/bdd"
	"github.com/johnyf/marduk/game"
	"github.com/johnyf/marduk/synth"
)

// arbiterGame builds the classic arbiter: two request inputs, two grant
// outputs, grants mutually exclusive. The system must serve each pending
// request infinitely often; the environment promises to withdraw requests
// infinitely often.
func arbiterGame(m *bdd.Manager) (*game.Game, error) {
	r1 := game.NewVariable(m, "r1", game.Input)
	r2 := game.NewVariable(m, "r2", game.Input)
	g1 := game.NewVariable(m, "g1", game.Output)
	g2 := game.NewVariable(m, "g2", game.Output)
	vars := []*game.Variable{r1, r2, g1, g2}

	bothGrants := g1.NS.And(g2.NS)
	mutex := bothGrants.Not()
	bothGrants.Free()

	served1 := r1.PS.Not().Or(g1.PS)
	served2 := r2.PS.Not().Or(g2.PS)
	quiet1 := r1.PS.Not()
	quiet2 := r2.PS.Not()

	noGrant1 := g1.PS.Not()
	noGrant2 := g2.PS.Not()
	sysInit := noGrant1.And(noGrant2)
	noGrant1.Free()
	noGrant2.Free()

	return game.New(m, vars,
		m.One(), mutex,
		m.One(), sysInit,
		[]bdd.Set{quiet1, quiet2},
		[]bdd.Set{served1, served2})
}

func main() {
	log.SetLevel(log.WarnLevel)

	m := bdd.NewManager()
	g, err := arbiterGame(m)
	if err != nil {
		log.Fatalf("building arbiter game: %v", err)
	}

	fmt.Println("=== GR(1) synthesis demo: two-client arbiter ===")
	fmt.Println()

	solver := synth.NewSolver(g, synth.Options{})
	win, _ := solver.Solve()
	fmt.Printf("winning region: %d BDD nodes\n", win.Size())

	if !solver.Realizable() {
		fmt.Println("specification is unrealizable, deriving a counterstrategy")
		cs := synth.NewCounterSolver(g)
		cs.SolveEnv()
		counter, err := cs.ExtractCounterstrategy()
		if err != nil {
			log.Fatalf("extracting counterstrategy: %v", err)
		}
		fmt.Println()
		fmt.Println(cs.Stats().Table())
		counter.Free()
		os.Exit(1)
	}
	fmt.Println("specification is realizable")

	strategy, err := solver.ExtractStrategy()
	if err != nil {
		log.Fatalf("extracting strategy: %v", err)
	}
	defer strategy.Free()

	fmt.Println()
	fmt.Println(solver.Stats().Table())

	dotVars := append([]*game.Variable{}, g.Vars...)
	dotVars = append(dotVars, strategy.Jx.Vars...)
	start := solver.Init().And(strategy.Jx.Init)
	dot, err := synth.Dot("arbiter strategy", strategy.Relation, dotVars, start)
	start.Free()
	if err != nil {
		log.Fatalf("rendering strategy: %v", err)
	}
	fmt.Println(dot)
}
