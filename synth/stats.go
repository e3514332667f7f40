package synth

import (
	"fmt"
	"strings"
)

// Stats collects counters over a synthesis run: fixpoint rounds, preimage
// calls, and the sizes of the produced relations. Long-running fixpoints are
// a capacity concern, not an error, so the counters are the only
// non-convergence diagnostic.
type Stats struct {
	OuterRounds  int // winning-region outer fixpoint rounds
	CoaxCalls    int // system-side preimage computations
	CoaxEnvCalls int // environment-side preimage computations

	WinSize    int // nodes in the winning region
	Rho1Size   int // nodes in strategy rule rho1
	Rho2Size   int
	Rho3Size   int
	CounterWin int // nodes in the environment's winning region
}

func newStats() *Stats { return &Stats{} }

// Table renders the counters as a markdown table.
func (s *Stats) Table() string {
	var sb strings.Builder
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	rows := []struct {
		name  string
		value int
	}{
		{"outer rounds", s.OuterRounds},
		{"coax calls", s.CoaxCalls},
		{"coax_env calls", s.CoaxEnvCalls},
		{"winning region size", s.WinSize},
		{"rho1 size", s.Rho1Size},
		{"rho2 size", s.Rho2Size},
		{"rho3 size", s.Rho3Size},
		{"env winning region size", s.CounterWin},
	}
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("| %s | %d |\n", r.name, r.value))
	}
	return sb.String()
}
