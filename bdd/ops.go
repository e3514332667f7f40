package bdd

// Boolean operations and quantification. All exported operations return a
// fresh root owned by the caller. Internal helpers work on raw node indices
// and rely on the operation cache for sharing; indices produced inside a
// single operation stay alive because nothing reclaims between them.

// ----- Core: if-then-else -----

func (m *Manager) ite(f, g, h int32) int32 {
	// terminal cases
	if f == oneIx {
		return g
	}
	if f == zeroIx {
		return h
	}
	if g == h {
		return g
	}
	if g == oneIx && h == zeroIx {
		return f
	}
	key := cacheKey{op: opIte, f: f, g: g, h: h}
	if r, ok := m.cache[key]; ok {
		return r
	}
	top := m.level(f)
	if l := m.level(g); l < top {
		top = l
	}
	if l := m.level(h); l < top {
		top = l
	}
	f0, f1 := m.cofactors(f, top)
	g0, g1 := m.cofactors(g, top)
	h0, h1 := m.cofactors(h, top)
	r := m.mk(top, m.ite(f0, g0, h0), m.ite(f1, g1, h1))
	m.cache[key] = r
	return r
}

func (m *Manager) not(f int32) int32 { return m.ite(f, zeroIx, oneIx) }

// Not returns the complement of s.
func (s Set) Not() Set {
	return s.m.wrap(s.m.not(s.ix))
}

// And returns the intersection of s and t.
func (s Set) And(t Set) Set {
	s.check(t)
	return s.m.wrap(s.m.ite(s.ix, t.ix, zeroIx))
}

// Or returns the union of s and t.
func (s Set) Or(t Set) Set {
	s.check(t)
	return s.m.wrap(s.m.ite(s.ix, oneIx, t.ix))
}

// Xor returns the symmetric difference of s and t.
func (s Set) Xor(t Set) Set {
	s.check(t)
	return s.m.wrap(s.m.ite(s.ix, s.m.not(t.ix), t.ix))
}

// Implies returns ¬s ∨ t.
func (s Set) Implies(t Set) Set {
	s.check(t)
	return s.m.wrap(s.m.ite(s.ix, t.ix, oneIx))
}

// Iff returns s ↔ t.
func (s Set) Iff(t Set) Set {
	s.check(t)
	return s.m.wrap(s.m.ite(s.ix, t.ix, s.m.not(t.ix)))
}

// Ite returns if-s-then-t-else-u.
func (s Set) Ite(t, u Set) Set {
	s.check(t)
	s.check(u)
	return s.m.wrap(s.m.ite(s.ix, t.ix, u.ix))
}

// Leq reports whether s is a subset of t (s implies t).
func (s Set) Leq(t Set) bool {
	s.check(t)
	return s.m.ite(s.ix, s.m.not(t.ix), zeroIx) == zeroIx
}

// ----- Quantification -----

// skip positive literals of the cube that are above level.
func (m *Manager) cubeAt(cube, level int32) int32 {
	for cube > oneIx && m.level(cube) < level {
		cube = m.nodes[cube].high
	}
	return cube
}

func (m *Manager) exists(f, cube int32) int32 {
	if f <= oneIx {
		return f
	}
	cube = m.cubeAt(cube, m.level(f))
	if cube == oneIx {
		return f
	}
	key := cacheKey{op: opExists, f: f, g: cube}
	if r, ok := m.cache[key]; ok {
		return r
	}
	top := m.level(f)
	f0, f1 := m.cofactors(f, top)
	var r int32
	if m.level(cube) == top {
		rest := m.nodes[cube].high
		r = m.ite(m.exists(f0, rest), oneIx, m.exists(f1, rest))
	} else {
		r = m.mk(top, m.exists(f0, cube), m.exists(f1, cube))
	}
	m.cache[key] = r
	return r
}

// Exists quantifies the variables of cube (a conjunction of positive
// literals) existentially out of s.
func (s Set) Exists(cube Set) Set {
	s.check(cube)
	return s.m.wrap(s.m.exists(s.ix, cube.ix))
}

// Forall quantifies the variables of cube universally out of s.
func (s Set) Forall(cube Set) Set {
	s.check(cube)
	return s.m.wrap(s.m.not(s.m.exists(s.m.not(s.ix), cube.ix)))
}

func (m *Manager) andExists(f, g, cube int32) int32 {
	if f == zeroIx || g == zeroIx {
		return zeroIx
	}
	if f == oneIx {
		return m.exists(g, cube)
	}
	if g == oneIx {
		return m.exists(f, cube)
	}
	if f > g {
		f, g = g, f // conjunction commutes; canonical order doubles cache hits
	}
	key := cacheKey{op: opAndExists, f: f, g: g, h: cube}
	if r, ok := m.cache[key]; ok {
		return r
	}
	top := m.level(f)
	if l := m.level(g); l < top {
		top = l
	}
	c := m.cubeAt(cube, top)
	f0, f1 := m.cofactors(f, top)
	g0, g1 := m.cofactors(g, top)
	var r int32
	if c > oneIx && m.level(c) == top {
		rest := m.nodes[c].high
		r = m.ite(m.andExists(f0, g0, rest), oneIx, m.andExists(f1, g1, rest))
	} else {
		r = m.mk(top, m.andExists(f0, g0, c), m.andExists(f1, g1, c))
	}
	m.cache[key] = r
	return r
}

// AndExists computes ∃cube. (s ∧ t) without building the full conjunction,
// the relational-product step of every preimage computation.
func (s Set) AndExists(t, cube Set) Set {
	s.check(t)
	s.check(cube)
	return s.m.wrap(s.m.andExists(s.ix, t.ix, cube.ix))
}

// ----- Generalized cofactor and care-set minimization -----

func (m *Manager) constrain(f, c int32) int32 {
	if c == zeroIx {
		return zeroIx
	}
	if c == oneIx || f <= oneIx {
		return f
	}
	if f == c {
		return oneIx
	}
	key := cacheKey{op: opConstrain, f: f, g: c}
	if r, ok := m.cache[key]; ok {
		return r
	}
	top := m.level(f)
	if l := m.level(c); l < top {
		top = l
	}
	f0, f1 := m.cofactors(f, top)
	c0, c1 := m.cofactors(c, top)
	var r int32
	switch {
	case c1 == zeroIx:
		r = m.constrain(f0, c0)
	case c0 == zeroIx:
		r = m.constrain(f1, c1)
	default:
		r = m.mk(top, m.constrain(f0, c0), m.constrain(f1, c1))
	}
	m.cache[key] = r
	return r
}

// Constrain computes the generalized cofactor of s by c. When c is a cube
// this substitutes the cube's values into s and drops its variables.
func (s Set) Constrain(c Set) Set {
	s.check(c)
	return s.m.wrap(s.m.constrain(s.ix, c.ix))
}

func (m *Manager) restrict(f, c int32) int32 {
	if c == zeroIx {
		return zeroIx
	}
	if c == oneIx || f <= oneIx {
		return f
	}
	key := cacheKey{op: opRestrict, f: f, g: c}
	if r, ok := m.cache[key]; ok {
		return r
	}
	var r int32
	if m.level(c) < m.level(f) {
		// variable of c does not occur in f: widen the care set
		cn := m.nodes[c]
		r = m.restrict(f, m.ite(cn.low, oneIx, cn.high))
	} else {
		top := m.level(f)
		f0, f1 := m.cofactors(f, top)
		c0, c1 := m.cofactors(c, top)
		switch {
		case c1 == zeroIx:
			r = m.restrict(f0, c0)
		case c0 == zeroIx:
			r = m.restrict(f1, c1)
		default:
			r = m.mk(top, m.restrict(f0, c0), m.restrict(f1, c1))
		}
	}
	m.cache[key] = r
	return r
}

// Restrict returns a set that agrees with s on every state of the care set
// c and is chosen to have a small diagram (Coudert-Madre restrict). Used to
// minimize strategies against the reachable states.
func (s Set) Restrict(c Set) Set {
	s.check(c)
	return s.m.wrap(s.m.restrict(s.ix, c.ix))
}

// ----- Variable permutation -----

// Swap exchanges the variables xs[i] and ys[i] in s. Both slices hold
// positive literals; this is how present and next state are traded in
// preimage computations.
func (s Set) Swap(xs, ys []Set) Set {
	m := s.m
	perm := make([]int32, len(m.varNames))
	for i := range perm {
		perm[i] = int32(i)
	}
	for i := range xs {
		xs[i].check(s)
		ys[i].check(s)
		a := m.level(xs[i].ix)
		b := m.level(ys[i].ix)
		perm[a], perm[b] = b, a
	}
	memo := make(map[int32]int32)
	var walk func(ix int32) int32
	walk = func(ix int32) int32 {
		if ix <= oneIx {
			return ix
		}
		if r, ok := memo[ix]; ok {
			return r
		}
		n := m.nodes[ix]
		low := walk(n.low)
		high := walk(n.high)
		r := m.ite(m.varIxs[perm[n.level]], high, low)
		memo[ix] = r
		return r
	}
	return m.wrap(walk(s.ix))
}

// ----- Structural queries -----

// Support returns the cube of variables occurring in s.
func (s Set) Support() Set {
	m := s.m
	levels := map[int32]struct{}{}
	seen := map[int32]struct{}{}
	var walk func(ix int32)
	walk = func(ix int32) {
		if ix <= oneIx {
			return
		}
		if _, ok := seen[ix]; ok {
			return
		}
		seen[ix] = struct{}{}
		levels[m.nodes[ix].level] = struct{}{}
		walk(m.nodes[ix].low)
		walk(m.nodes[ix].high)
	}
	walk(s.ix)
	cube := int32(oneIx)
	for level := int32(len(m.varNames)) - 1; level >= 0; level-- {
		if _, ok := levels[level]; ok {
			cube = m.mk(level, zeroIx, cube)
		}
	}
	return m.wrap(cube)
}

// LargestCube returns one cube of s with the fewest literals, hence the most
// states. Returns the empty set when s is empty.
func (s Set) LargestCube() Set {
	m := s.m
	type path struct {
		literals int32
		cube     int32
	}
	const unreachable = int32(1) << 30
	memo := map[int32]path{
		zeroIx: {literals: unreachable, cube: zeroIx},
		oneIx:  {literals: 0, cube: oneIx},
	}
	var walk func(ix int32) path
	walk = func(ix int32) path {
		if p, ok := memo[ix]; ok {
			return p
		}
		n := m.nodes[ix]
		lo := walk(n.low)
		hi := walk(n.high)
		var p path
		if lo.literals <= hi.literals {
			p = path{literals: lo.literals + 1, cube: m.mk(n.level, lo.cube, zeroIx)}
		} else {
			p = path{literals: hi.literals + 1, cube: m.mk(n.level, zeroIx, hi.cube)}
		}
		memo[ix] = p
		return p
	}
	p := walk(s.ix)
	if p.literals >= unreachable {
		return m.Zero()
	}
	return m.wrap(p.cube)
}

// CountMinterm returns the number of assignments over nvars variables that
// satisfy s.
func (s Set) CountMinterm(nvars int) float64 {
	m := s.m
	memo := map[int32]float64{zeroIx: 0, oneIx: 1}
	var density func(ix int32) float64
	density = func(ix int32) float64 {
		if d, ok := memo[ix]; ok {
			return d
		}
		n := m.nodes[ix]
		d := (density(n.low) + density(n.high)) / 2
		memo[ix] = d
		return d
	}
	total := 1.0
	for i := 0; i < nvars; i++ {
		total *= 2
	}
	return density(s.ix) * total
}
