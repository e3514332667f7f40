// Package bdd is a reduced ordered binary decision diagram engine used to
// represent and manipulate sets of game states symbolically.
//
// Sets are hash-consed: two Sets denote the same Boolean function iff they
// hold the same node index, so equality is an identity test. Every operation
// returns a fresh root reference that the caller owns and must Free; the
// manager reclaims dead nodes on demand (Reclaim), typically between fixpoint
// rounds.
//
// The engine is single-threaded by design: the solver that drives it is a
// sequential loop of pure set operations.
package bdd

import (
	"math"

	"github.com/pkg/errors"
)

// ErrMismatch is the panic value raised when Sets from different managers
// are combined. This is a programming error and is never coerced.
var ErrMismatch = errors.New("bdd: operands belong to different managers")

// terminal indices; level of a terminal sorts below every variable.
const (
	zeroIx        = 0
	oneIx         = 1
	terminalLevel = math.MaxInt32
)

type node struct {
	level int32
	low   int32
	high  int32
}

type cacheKey struct {
	op      uint8
	f, g, h int32
}

const (
	opIte uint8 = iota
	opAndExists
	opExists
	opConstrain
	opRestrict
)

// Manager owns the node store, the unique table, the operation cache and the
// root reference counts of all Sets it has handed out.
type Manager struct {
	nodes    []node
	unique   map[node]int32
	freeIxs  []int32
	cache    map[cacheKey]int32
	roots    map[int32]int
	varNames []string
	varIxs   []int32 // level -> index of the positive literal node
}

// NewManager creates an empty manager with no variables.
func NewManager() *Manager {
	m := &Manager{
		unique: make(map[node]int32),
		cache:  make(map[cacheKey]int32),
		roots:  make(map[int32]int),
	}
	// slots 0 and 1 are the terminals and are never swept
	m.nodes = append(m.nodes,
		node{level: terminalLevel, low: zeroIx, high: zeroIx},
		node{level: terminalLevel, low: oneIx, high: oneIx},
	)
	return m
}

// Set is an immutable predicate over the manager's variables. The zero value
// is invalid; obtain Sets from the manager or from operations on other Sets.
type Set struct {
	m  *Manager
	ix int32
}

// NewVar creates a fresh variable at the next level and returns its positive
// literal. Variables are created once, at game construction time, and are
// never reordered.
func (m *Manager) NewVar(name string) Set {
	level := int32(len(m.varNames))
	m.varNames = append(m.varNames, name)
	ix := m.mk(level, zeroIx, oneIx)
	m.varIxs = append(m.varIxs, ix)
	m.retain(ix)
	return Set{m: m, ix: ix}
}

// NumVars returns the number of variables created so far.
func (m *Manager) NumVars() int { return len(m.varNames) }

// VarName returns the name given to the variable at the given level.
func (m *Manager) VarName(level int) string { return m.varNames[level] }

// One returns the all-states set.
func (m *Manager) One() Set {
	m.retain(oneIx)
	return Set{m: m, ix: oneIx}
}

// Zero returns the empty set.
func (m *Manager) Zero() Set {
	m.retain(zeroIx)
	return Set{m: m, ix: zeroIx}
}

// mk returns the index of the node (level, low, high), reusing an existing
// node when possible. Reduction: low == high collapses to the child.
func (m *Manager) mk(level, low, high int32) int32 {
	if low == high {
		return low
	}
	key := node{level: level, low: low, high: high}
	if ix, ok := m.unique[key]; ok {
		return ix
	}
	var ix int32
	if k := len(m.freeIxs); k > 0 {
		ix = m.freeIxs[k-1]
		m.freeIxs = m.freeIxs[:k-1]
		m.nodes[ix] = key
	} else {
		ix = int32(len(m.nodes))
		m.nodes = append(m.nodes, key)
	}
	m.unique[key] = ix
	return ix
}

func (m *Manager) retain(ix int32) {
	m.roots[ix]++
}

func (m *Manager) release(ix int32) {
	c, ok := m.roots[ix]
	if !ok {
		panic(errors.Errorf("bdd: Free of a Set that is not live (node %d)", ix))
	}
	if c == 1 {
		delete(m.roots, ix)
	} else {
		m.roots[ix] = c - 1
	}
}

// wrap retains ix and returns it as a Set owned by the caller.
func (m *Manager) wrap(ix int32) Set {
	m.retain(ix)
	return Set{m: m, ix: ix}
}

// Free releases this reference. The Set must not be used afterwards.
// Freeing intermediates as soon as the algorithm is done with them bounds
// the peak node count, which is the dominant resource in fixpoint
// computations.
func (s Set) Free() {
	s.m.release(s.ix)
}

// Copy returns a new reference to the same set. Both references must
// eventually be freed.
func (s Set) Copy() Set {
	return s.m.wrap(s.ix)
}

// Manager returns the manager this set belongs to.
func (s Set) Manager() *Manager { return s.m }

// Eq reports whether the two sets denote the same Boolean function.
// Hash-consing makes this an identity test.
func (s Set) Eq(t Set) bool {
	s.check(t)
	return s.ix == t.ix
}

// IsOne reports whether the set is all states.
func (s Set) IsOne() bool { return s.ix == oneIx }

// IsZero reports whether the set is empty.
func (s Set) IsZero() bool { return s.ix == zeroIx }

// Size returns the number of nodes in the diagram rooted at s, terminals
// included.
func (s Set) Size() int {
	seen := map[int32]struct{}{}
	var walk func(ix int32)
	walk = func(ix int32) {
		if _, ok := seen[ix]; ok {
			return
		}
		seen[ix] = struct{}{}
		if ix > oneIx {
			walk(s.m.nodes[ix].low)
			walk(s.m.nodes[ix].high)
		}
	}
	walk(s.ix)
	return len(seen)
}

func (s Set) check(t Set) {
	if s.m != t.m {
		panic(ErrMismatch)
	}
}

// NodeCount returns the number of live nodes in the manager's store.
func (m *Manager) NodeCount() int {
	return len(m.nodes) - len(m.freeIxs)
}

// Reclaim sweeps every node unreachable from a live root and clears the
// operation cache. The winning-region solver calls this between outer
// fixpoint rounds.
func (m *Manager) Reclaim() {
	marked := make(map[int32]struct{}, len(m.roots))
	var mark func(ix int32)
	mark = func(ix int32) {
		if _, ok := marked[ix]; ok {
			return
		}
		marked[ix] = struct{}{}
		if ix > oneIx {
			mark(m.nodes[ix].low)
			mark(m.nodes[ix].high)
		}
	}
	mark(zeroIx)
	mark(oneIx)
	for ix := range m.roots {
		mark(ix)
	}
	for _, ix := range m.varIxs {
		mark(ix)
	}
	for ix := int32(2); ix < int32(len(m.nodes)); ix++ {
		if _, live := marked[ix]; live {
			continue
		}
		key := m.nodes[ix]
		if key == (node{}) {
			continue // slot already swept earlier
		}
		delete(m.unique, key)
		m.nodes[ix] = node{}
		m.freeIxs = append(m.freeIxs, ix)
	}
	m.cache = make(map[cacheKey]int32)
}

func (m *Manager) level(ix int32) int32 { return m.nodes[ix].level }

// cofactors of ix with respect to the variable at the given level.
func (m *Manager) cofactors(ix, level int32) (low, high int32) {
	n := m.nodes[ix]
	if n.level != level {
		return ix, ix
	}
	return n.low, n.high
}
