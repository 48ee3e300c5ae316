package csp

import (
	"sort"
	"time"
)

// orderLit is one entry of the literal map: the order literal of the owning
// map key stands for `vs.Name() <= value`.
type orderLit struct {
	vs    *VarState
	value int64
}

// coeffState is one edge of the variable-to-constraint index. For sum
// constraints co is the coefficient of the variable; for distinct
// constraints it is a signed term index.
type coeffState struct {
	co int64
	cs constraintState
}

// State is the propagation engine of one solving thread.
//
// It mirrors the host's Boolean view of order literals as integer variable
// bounds, keeps the cached constraint bounds in sync, and drives constraint
// propagation to a fixpoint in check. All mutations are scoped to decision
// levels and reverted by undo. A State is never shared between threads.
type State struct {
	cfg      *Config
	vars     []*VarState
	varState map[string]*VarState
	litmap   map[Lit][]orderLit
	levels   []*level
	v2cs     map[string][]coeffState
	l2c      map[Lit][]Constraint
	todo     *orderedSet[constraintState]
	cstate   map[Constraint]constraintState

	// factsIntegrated counts how many order literals attached to the true
	// and false constant have been integrated on the top level.
	factsIntegrated [2]int
	// lerpLast remembers where the last total-check scan stopped.
	lerpLast int
	// trailOffset tracks how much of the init trail simplify consumed.
	trailOffset int

	minimizeBound    int64
	hasMinimizeBound bool
	// minimizeLevel marks the lowest level on which the minimize constraint
	// may not have been fully propagated after a bound update.
	minimizeLevel int

	// udiff and ldiff accumulate bound changes between check calls.
	udiff *boundDiffs
	ldiff *boundDiffs

	stats ThreadStats
}

// newState creates a state ready to propagate decision level zero. The l2c
// map is shared with the owning propagator.
func newState(cfg *Config, l2c map[Lit][]Constraint) *State {
	return &State{
		cfg:      cfg,
		varState: make(map[string]*VarState),
		litmap:   make(map[Lit][]orderLit),
		levels:   []*level{newLevel(0)},
		v2cs:     make(map[string][]coeffState),
		l2c:      l2c,
		todo:     newOrderedSet[constraintState](),
		cstate:   make(map[Constraint]constraintState),
		udiff:    newBoundDiffs(),
		ldiff:    newBoundDiffs(),
	}
}

// MinimizeBound returns the current bound of the minimize constraint.
func (s *State) MinimizeBound() (int64, bool) { return s.minimizeBound, s.hasMinimizeBound }

// updateMinimizeBound tightens the minimize bound of this state and queues
// the minimize constraint for propagation on the lowest affected level.
func (s *State) updateMinimizeBound(m *Minimize, dl int, bound int64) {
	switch {
	case !s.hasMinimizeBound || bound < s.minimizeBound:
		s.minimizeBound = bound
		s.hasMinimizeBound = true
		s.minimizeLevel = dl
		s.todo.Add(s.constraintStateOf(m))
	case dl < s.minimizeLevel:
		s.minimizeLevel = dl
		s.todo.Add(s.constraintStateOf(m))
	}
}

// VarValue is one entry of an extracted assignment.
type VarValue struct {
	Var   string
	Value int64
}

// assignmentValues returns the current lower bound of every variable. On a
// total assignment the lower and upper bounds coincide, making this the
// value assignment.
func (s *State) assignmentValues() []VarValue {
	out := make([]VarValue, len(s.vars))
	for i, vs := range s.vars {
		out[i] = VarValue{Var: vs.Name(), Value: vs.LowerBound()}
	}
	return out
}

// value returns the current value of var, or the static minimum if the
// variable is unknown.
func (s *State) value(varName string) int64 {
	if vs, ok := s.varState[varName]; ok {
		return vs.LowerBound()
	}
	return s.cfg.MinInt
}

func (s *State) pushLevel(dl int) {
	if s.currentLevel().level < dl {
		s.levels = append(s.levels, newLevel(dl))
	}
}

func (s *State) popLevel() {
	if len(s.levels) <= 1 {
		panic("csp: undo without decision level")
	}
	s.levels = s.levels[:len(s.levels)-1]
}

func (s *State) currentLevel() *level { return s.levels[len(s.levels)-1] }

func (s *State) varStateOf(varName string) *VarState {
	vs, ok := s.varState[varName]
	if !ok {
		panic("csp: unknown variable " + varName)
	}
	return vs
}

func (s *State) constraintStateOf(c Constraint) constraintState {
	cs, ok := s.cstate[c]
	if !ok {
		panic("csp: no state for constraint")
	}
	return cs
}

// getLiteral returns the order literal for `vs.Name() <= value`, allocating
// and watching a fresh host literal if none exists. Values outside the
// static bounds map to the constant literals.
func (s *State) getLiteral(vs *VarState, value int64, cc clauseCreator) Lit {
	if value < vs.MinBound() {
		return -TrueLit
	}
	if value >= vs.MaxBound() {
		return TrueLit
	}
	if !vs.HasLiteral(value) {
		lit := cc.AddLiteral()
		// The host's default heuristic assigns literals false. Flipping the
		// literal for non-negative values biases the search towards
		// assignments close to zero.
		if value >= 0 {
			lit = -lit
		}
		vs.SetLiteral(value, lit)
		s.litmap[lit] = append(s.litmap[lit], orderLit{vs, value})
		cc.AddWatch(lit)
		cc.AddWatch(-lit)
	}
	return vs.Literal(value)
}

// reasonLiteral returns a literal witnessing the current bound of vs for
// reason generation. With RefineIntroduce enabled this is getLiteral; when
// disabled and no literal exists for value, the nearest existing literal on
// the witnessing side is used instead, weakening the reason without
// allocating.
func (s *State) reasonLiteral(vs *VarState, value int64, cc clauseCreator, upper bool) Lit {
	if value < vs.MinBound() {
		return -TrueLit
	}
	if value >= vs.MaxBound() {
		return TrueLit
	}
	if s.cfg.RefineIntroduce || vs.HasLiteral(value) {
		return s.getLiteral(vs, value, cc)
	}
	if upper {
		if v, ok := vs.SuccValue(value); ok {
			return vs.Literal(v)
		}
		return TrueLit
	}
	if v, ok := vs.PrevValue(value); ok {
		return vs.Literal(v)
	}
	return -TrueLit
}

// removeLiteral drops the pair (vs,value) from the literal map entry of lit.
func (s *State) removeLiteral(vs *VarState, lit Lit, value int64) {
	if lit == TrueLit || lit == -TrueLit {
		panic("csp: removing constant literal")
	}
	vec := s.litmap[lit]
	for i, ol := range vec {
		if ol.vs == vs && ol.value == value {
			vec = append(vec[:i], vec[i+1:]...)
			break
		}
	}
	if len(vec) == 0 {
		delete(s.litmap, lit)
	} else {
		s.litmap[lit] = vec
	}
}

// updateLiteral is getLiteral extended with on-the-fly simplification: with
// truth set and on decision level zero, the value is associated with the
// corresponding constant literal and the previous literal is fixed with a
// unit clause. The Boolean result is false iff the host reports a conflict
// for that unit clause.
func (s *State) updateLiteral(vs *VarState, value int64, cc clauseCreator, truth Truth) (bool, Lit) {
	if truth == TruthOpen || cc.Assignment().DecisionLevel() > 0 {
		return true, s.getLiteral(vs, value, cc)
	}
	lit := TrueLit
	if truth == TruthFalse {
		lit = -TrueLit
	}
	if value < vs.MinBound() || value >= vs.MaxBound() {
		old := s.getLiteral(vs, value, cc)
		if old == lit {
			return true, lit
		}
		return cc.AddClause([]Lit{unitFor(old, truth)}, 0), lit
	}
	if !vs.HasLiteral(value) {
		vs.SetLiteral(value, lit)
		s.litmap[lit] = append(s.litmap[lit], orderLit{vs, value})
		return true, lit
	}
	old := vs.Literal(value)
	if old == lit {
		return true, lit
	}
	// A value forced to both constants is a top-level conflict reported with
	// the empty clause; the map is left alone in that case.
	if old == -lit {
		return cc.AddClause(nil, 0), lit
	}
	vs.SetLiteral(value, lit)
	s.removeLiteral(vs, old, value)
	s.litmap[lit] = append(s.litmap[lit], orderLit{vs, value})
	return cc.AddClause([]Lit{unitFor(old, truth)}, 0), lit
}

func unitFor(old Lit, truth Truth) Lit {
	if truth == TruthTrue {
		return old
	}
	return -old
}

// addReason adds a reason clause, dropping literals that are permanently
// false when reason refinement is enabled.
func (s *State) addReason(cc clauseCreator, reason []Lit, flags ClauseFlag) bool {
	if !s.cfg.RefineReasons {
		return cc.AddClause(reason, flags)
	}
	ass := cc.Assignment()
	filtered := make([]Lit, 0, len(reason))
	for _, lit := range reason {
		if ass.IsFixed(lit) && ass.IsFalse(lit) {
			continue
		}
		filtered = append(filtered, lit)
	}
	return cc.AddClause(filtered, flags)
}

// addVariable creates the VarState for var.
func (s *State) addVariable(varName string) {
	vs := newVarState(varName, s.cfg.MinInt, s.cfg.MaxInt)
	s.varState[varName] = vs
	s.vars = append(s.vars, vs)
}

// addConstraint creates the state of a sum-shaped constraint, indexes its
// variables, and queues it for propagation.
func (s *State) addConstraint(c sumLike) {
	cs := newSumState(c)
	for _, e := range c.Elements() {
		vs := s.varStateOf(e.Var)
		s.v2cs[e.Var] = append(s.v2cs[e.Var], coeffState{e.Coef, cs})
		if e.Coef > 0 {
			cs.lower += vs.LowerBound() * e.Coef
			cs.upper += vs.UpperBound() * e.Coef
		} else {
			cs.lower += vs.UpperBound() * e.Coef
			cs.upper += vs.LowerBound() * e.Coef
		}
	}
	s.cstate[c] = cs
	s.todo.Add(cs)
}

// removeConstraint detaches a sum-shaped constraint from the lookup
// structures. Used for translated constraints and the minimize objective of
// a finished solving step.
func (s *State) removeConstraint(c sumLike) {
	cs := s.cstate[c]
	for _, e := range c.Elements() {
		edges := s.v2cs[e.Var]
		for i, edge := range edges {
			if edge.cs == cs && edge.co == e.Coef {
				s.v2cs[e.Var] = append(edges[:i], edges[i+1:]...)
				break
			}
		}
	}
	delete(s.cstate, c)
	lvl := s.currentLevel()
	for i, inactive := range lvl.inactive {
		if inactive == cs {
			lvl.inactive = append(lvl.inactive[:i], lvl.inactive[i+1:]...)
			break
		}
	}
}

// addDistinct creates the state of a distinct constraint, computes the
// initial term bounds, and indexes the variables under signed term indices.
func (s *State) addDistinct(d *Distinct) {
	ds := newDistinctState(d)
	for i, term := range d.terms {
		ds.initTerm(s, i)
		for _, e := range term.Elements {
			idx := int64(i + 1)
			if e.Coef <= 0 {
				idx = -idx
			}
			s.v2cs[e.Var] = append(s.v2cs[e.Var], coeffState{idx, ds})
		}
	}
	s.cstate[d] = ds
	s.todo.Add(ds)
}

// markInactive marks cs inactive on the current level if it is removable.
func (s *State) markInactive(cs constraintState) {
	lvl := s.currentLevel()
	if cs.taggedRemovable() && !cs.markedInactive() {
		cs.setInactive(lvl.level)
		lvl.inactive = append(lvl.inactive, cs)
	}
}

// simplify integrates fixed literals from the host's trail and runs
// propagation to a fixpoint. Called during initialization only.
func (s *State) simplify(cc *initCC) bool {
	ass := cc.Assignment()

	for {
		if !cc.Propagate() {
			return false
		}

		trail := ass.Trail()
		trailOffset := len(trail)
		if s.trailOffset == trailOffset && s.todo.Len() == 0 {
			return true
		}

		if !s.propagate(cc, trail[s.trailOffset:trailOffset]) {
			return false
		}
		s.trailOffset = trailOffset

		if !s.check(cc) {
			return false
		}
	}
}

// propagate integrates newly assigned order literals: bounds are adjusted
// and affected constraints are queued for the next check.
func (s *State) propagate(cc clauseCreator, changes []Lit) bool {
	start := time.Now()
	defer func() { s.stats.TimePropagate += time.Since(start) }()

	ass := cc.Assignment()

	// open a new decision level if necessary
	s.pushLevel(ass.DecisionLevel())

	for _, lit := range changes {
		for _, c := range s.l2c[lit] {
			// translated constraints are gone; nothing to queue for them
			if cs, ok := s.cstate[c]; ok {
				s.todo.Add(cs)
			}
		}
		if !s.updateDomain(cc, lit) {
			return false
		}
	}

	return true
}

// propagateVariable propagates an implied neighboring order literal. For
// sign > 0 the literal for value is implied true by lit, for sign < 0 it is
// implied false. Facts are simplified to constants on the fly.
func (s *State) propagateVariable(cc clauseCreator, vs *VarState, value int64, lit Lit, sign int) bool {
	ass := cc.Assignment()

	con := vs.Literal(value)
	if sign < 0 {
		con = -con
	}

	if ass.IsFixed(lit) && !ass.IsFixed(con) {
		ok, nl := s.updateLiteral(vs, value, cc, TruthOf(sign > 0))
		if !ok {
			return false
		}
		con = nl
		if sign < 0 {
			con = -con
		}
	}

	if !ass.IsTrue(con) {
		if !cc.AddClause([]Lit{-lit, con}, 0) {
			return false
		}
	}

	return true
}

// updateConstraints feeds an accumulated bound diff of var into the
// attached constraint states, detaching the ones that became removable.
func (s *State) updateConstraints(varName string, diff int64) {
	lvl := s.currentLevel()

	edges := s.v2cs[varName]
	i := 0
	for j := range edges {
		e := edges[j]
		if !e.cs.removable(lvl.level) {
			if e.cs.update(e.co, diff) {
				s.todo.Add(e.cs)
			}
			if i < j {
				edges[i], edges[j] = edges[j], edges[i]
			}
			i++
		} else {
			lvl.removedV2cs = append(lvl.removedV2cs, removedEntry{varName, e.co, e.cs})
		}
	}
	s.v2cs[varName] = edges[:i]
}

// updateDomain adjusts variable bounds for an assigned order literal and
// propagates the neighboring order literals. With chained propagation only
// the adjacent literal is implied; otherwise every weaker literal of the
// variable is implied directly from the witness.
func (s *State) updateDomain(cc clauseCreator, lit Lit) bool {
	lvl := s.currentLevel()

	if vec, ok := s.litmap[lit]; ok {
		start := 0
		if lit == TrueLit {
			start = s.factsIntegrated[0]
		}
		// iterate over a snapshot: fact simplification may grow or shrink
		// the entry under our feet
		pairs := append([]orderLit(nil), vec[start:]...)
		for _, ol := range pairs {
			vs, value := ol.vs, ol.value

			// update the upper bound
			if vs.UpperBound() > value {
				diff := value - vs.UpperBound()
				if lvl.undoUpper.Add(vs) {
					vs.PushUpper()
				}
				vs.setUpperBound(value)
				s.udiff.Add(vs.Name(), diff)
			}

			// make the succeeding literal(s) true
			for v := value; ; {
				succ, ok := vs.SuccValue(v)
				if !ok {
					break
				}
				if !s.propagateVariable(cc, vs, succ, lit, 1) {
					return false
				}
				if s.cfg.PropagateChain {
					break
				}
				v = succ
			}
		}
	}

	if vec, ok := s.litmap[-lit]; ok {
		start := 0
		if lit == TrueLit {
			start = s.factsIntegrated[1]
		}
		pairs := append([]orderLit(nil), vec[start:]...)
		for _, ol := range pairs {
			vs, value := ol.vs, ol.value

			// update the lower bound
			if vs.LowerBound() < value+1 {
				diff := value + 1 - vs.LowerBound()
				if lvl.undoLower.Add(vs) {
					vs.PushLower()
				}
				vs.setLowerBound(value + 1)
				s.ldiff.Add(vs.Name(), diff)
			}

			// make the preceding literal(s) false
			for v := value; ; {
				prev, ok := vs.PrevValue(v)
				if !ok {
					break
				}
				if !s.propagateVariable(cc, vs, prev, lit, -1) {
					return false
				}
				if s.cfg.PropagateChain {
					break
				}
				v = prev
			}
		}
	}

	return true
}

// integrateDomain integrates `literal -> var in domain` by chaining order
// literals in both directions over the domain's interval borders.
func (s *State) integrateDomain(cc clauseCreator, literal Lit, varName string, domain [][2]int64) bool {
	ass := cc.Assignment()
	if ass.IsFalse(literal) {
		return true
	}
	if ass.IsTrue(literal) {
		literal = TrueLit
	}
	vs := s.varStateOf(varName)

	// left to right: var >= hi(i-1) implies var >= lo(i)
	var py int64
	hasPy := false
	for _, iv := range domain {
		x := iv[0]
		ly := TrueLit
		if hasPy {
			ly = -s.getLiteral(vs, py-1, cc)
		}
		truth := TruthOpen
		if literal == TrueLit && ass.IsTrue(ly) {
			truth = TruthFalse
		}
		ok, lx := s.updateLiteral(vs, x-1, cc, truth)
		if !ok || !cc.AddClause([]Lit{-literal, -ly, -lx}, 0) {
			return false
		}
		py = iv[1]
		hasPy = true
	}

	// right to left: var < lo(i+1) implies var < hi(i)
	var px int64
	hasPx := false
	for i := len(domain) - 1; i >= 0; i-- {
		y := domain[i][1]
		ly := TrueLit
		if hasPx {
			ly = s.getLiteral(vs, px-1, cc)
		}
		truth := TruthOpen
		if literal == TrueLit && ass.IsTrue(ly) {
			truth = TruthTrue
		}
		ok, lx := s.updateLiteral(vs, y-1, cc, truth)
		if !ok || !cc.AddClause([]Lit{-literal, -ly, lx}, 0) {
			return false
		}
		px = domain[i][0]
		hasPx = true
	}

	return true
}

// integrateSimple integrates a sum constraint over a single variable
// without creating a constraint state. For strict constraints whose value
// slot is still free, the activation literal itself doubles as the order
// literal.
func (s *State) integrateSimple(cc clauseCreator, c *SumConstraint, strict bool) bool {
	ass := cc.Assignment()
	clit := c.ActivationLiteral()

	// the constraint is never propagated
	if !strict && ass.IsFalse(clit) {
		return true
	}

	e := c.elements[0]
	vs := s.varStateOf(e.Var)

	var truth Truth
	var value int64
	if e.Coef > 0 {
		truth = ass.Value(clit)
		value = floorDiv(c.rhs, e.Coef)
	} else {
		truth = ass.Value(-clit)
		value = ceilDiv(c.rhs, e.Coef) - 1
	}

	if strict && vs.MinBound() <= value && value < vs.MaxBound() && !vs.HasLiteral(value) {
		lit := clit
		if e.Coef < 0 {
			lit = -lit
		}
		switch truth {
		case TruthOpen:
			cc.AddWatch(lit)
			cc.AddWatch(-lit)
		case TruthTrue:
			lit = TrueLit
		default:
			lit = -TrueLit
		}
		vs.SetLiteral(value, lit)
		s.litmap[lit] = append(s.litmap[lit], orderLit{vs, value})
		return true
	}

	ok, lit := s.updateLiteral(vs, value, cc, truth)
	if !ok {
		return false
	}
	if e.Coef < 0 {
		lit = -lit
	}
	if !cc.AddClause([]Lit{-clit, lit}, 0) {
		return false
	}
	if strict && !cc.AddClause([]Lit{-lit, clit}, 0) {
		return false
	}
	return true
}

// undo reverts all mutations of the current decision level: bound stacks
// are popped, cached constraint bounds are rolled back, inactive marks are
// cleared, and detached index edges are reattached.
func (s *State) undo() {
	start := time.Now()
	defer func() { s.stats.TimeUndo += time.Since(start) }()

	lvl := s.currentLevel()

	for _, vs := range lvl.undoLower.Items() {
		value := vs.LowerBound()
		vs.PopLower()
		diff := value - vs.LowerBound() - s.ldiff.Get(vs.Name())
		if diff != 0 {
			for _, e := range s.v2cs[vs.Name()] {
				e.cs.undo(e.co, diff)
			}
		}
	}
	s.ldiff.Clear()

	for _, vs := range lvl.undoUpper.Items() {
		value := vs.UpperBound()
		vs.PopUpper()
		diff := value - vs.UpperBound() - s.udiff.Get(vs.Name())
		if diff != 0 {
			for _, e := range s.v2cs[vs.Name()] {
				e.cs.undo(e.co, diff)
			}
		}
	}
	s.udiff.Clear()

	for _, cs := range lvl.inactive {
		cs.markActive()
	}

	for _, e := range lvl.removedV2cs {
		s.v2cs[e.varName] = append(s.v2cs[e.varName], coeffState{e.co, e.cs})
	}

	s.popLevel()
	// pending work queued before a conflict is invalid now
	s.todo.Clear()
}

// numFacts returns how many order literals are attached to the true and
// false constant.
func (s *State) numFacts() [2]int {
	return [2]int{len(s.litmap[TrueLit]), len(s.litmap[-TrueLit])}
}

// check integrates facts that are not yet integrated on the current level,
// drains the accumulated bound diffs into the constraint states, and
// propagates the queued constraints until nothing changes.
func (s *State) check(cc clauseCreator) bool {
	start := time.Now()
	defer func() { s.stats.TimeCheck += time.Since(start) }()

	ass := cc.Assignment()
	lvl := s.currentLevel()
	// Check is usually called for levels that have been propagated. The
	// exception is a minimize bound update while backtracking.
	if ass.DecisionLevel() != lvl.level && lvl.level >= s.minimizeLevel {
		return true
	}

	// Watches for the constant literals never fire, so fact integration has
	// to be re-driven until it stabilizes.
	for {
		if s.factsIntegrated != s.numFacts() {
			if !s.updateDomain(cc, TrueLit) {
				return false
			}
			s.factsIntegrated = s.numFacts()
		}

		s.udiff.Each(func(v string, diff int64) { s.updateConstraints(v, diff) })
		s.udiff.Clear()
		s.ldiff.Each(func(v string, diff int64) { s.updateConstraints(v, diff) })
		s.ldiff.Clear()

		todo := s.todo
		s.todo = newOrderedSet[constraintState]()
		for _, cs := range todo.Items() {
			if !ass.IsFalse(cs.literal()) {
				if !cs.propagate(s, cc) {
					return false
				}
			} else {
				s.markInactive(cs)
			}
		}

		if s.factsIntegrated == s.numFacts() {
			return true
		}
	}
}

// checkFull introduces an order literal for the midpoint of the first
// variable that is not assigned yet, giving the host a new branching
// decision. Variables are scanned circularly from the last stop. On fully
// assigned states the active constraints are optionally verified.
func (s *State) checkFull(cc clauseCreator) {
	for off := 0; off < len(s.vars); off++ {
		i := (s.lerpLast + off) % len(s.vars)
		vs := s.vars[i]
		if !vs.IsAssigned() {
			s.lerpLast = i
			s.getLiteral(vs, lerp(vs.LowerBound(), vs.UpperBound()), cc)
			return
		}
	}

	if s.cfg.CheckSolution {
		ass := cc.Assignment()
		for lit, constraints := range s.l2c {
			if !ass.IsTrue(lit) {
				continue
			}
			for _, c := range constraints {
				if cs, ok := s.cstate[c]; ok && !cs.checkFull(s) {
					panic("csp: constraint violated on total assignment")
				}
			}
		}
	}
}

// update prepares the state for a new solving step: the minimize bound is
// reset, literals the host no longer knows are dropped, and literals fixed
// on the top level are remapped onto the constant literals.
func (s *State) update(cc *initCC) {
	ass := cc.Assignment()

	s.minimizeBound = 0
	s.hasMinimizeBound = false
	s.minimizeLevel = 0

	type litEntry struct {
		lit Lit
		vec []orderLit
	}
	var removeInvalid, removeFixed []litEntry
	for lit, vec := range s.litmap {
		if lit == TrueLit || lit == -TrueLit {
			continue
		}
		if !ass.HasLiteral(lit) {
			removeInvalid = append(removeInvalid, litEntry{lit, vec})
		} else if ass.IsFixed(lit) {
			removeFixed = append(removeFixed, litEntry{lit, vec})
		}
	}

	// drop solve-step local literals; iteration order does not matter
	for _, e := range removeInvalid {
		for _, ol := range e.vec {
			ol.vs.UnsetLiteral(ol.value)
		}
		delete(s.litmap, e.lit)
	}

	// Remap bounds attached to top-level facts onto the constants. The
	// facts may not have been integrated yet, so they are appended without
	// touching the integration counters. Sorted for reproducible order.
	sort.Slice(removeFixed, func(i, j int) bool { return removeFixed[i].lit < removeFixed[j].lit })
	for _, e := range removeFixed {
		lit := TrueLit
		if !ass.IsTrue(e.lit) {
			lit = -TrueLit
		}
		for _, ol := range e.vec {
			s.litmap[lit] = append(s.litmap[lit], ol)
			ol.vs.SetLiteral(ol.value, lit)
		}
		delete(s.litmap, e.lit)
	}
}

// cleanupFacts removes the (vs,value) pairs of the given constant literal
// matched by pred. Stale non-constant literals found in a slot are fixed
// with locked equivalence clauses before removal.
func (s *State) cleanupFacts(cc *initCC, lit Lit, pred func(orderLit) bool) bool {
	vec, ok := s.litmap[lit]
	if !ok {
		return true
	}

	// adjust the count of already integrated facts
	idx := 0
	if lit == -TrueLit {
		idx = 1
	}
	num := s.factsIntegrated[idx]
	for _, ol := range vec[:min(num, len(vec))] {
		if pred(ol) {
			s.factsIntegrated[idx]--
		}
	}

	i := removeIf(vec, pred)
	for _, ol := range vec[i:] {
		old := ol.vs.Literal(ol.value)
		if old != lit {
			// Cannot happen if propagation is complete, but theory
			// extensions may leave a stale literal behind: make it equal to
			// the constant before dropping it.
			if !cc.AddClause([]Lit{-lit, old}, ClauseLock) {
				return false
			}
			if !cc.AddClause([]Lit{-old, lit}, ClauseLock) {
				return false
			}
			s.removeLiteral(ol.vs, old, ol.value)
		}
		ol.vs.UnsetLiteral(ol.value)
	}
	s.litmap[lit] = vec[:i]

	return true
}

// cleanupLiterals drops order literals that fact propagation made
// redundant: everything but the current bound witnesses.
func (s *State) cleanupLiterals(cc *initCC) bool {
	// make sure all top-level literals are mapped onto the constants
	s.update(cc)

	return s.cleanupFacts(cc, TrueLit, func(ol orderLit) bool { return ol.value != ol.vs.UpperBound() }) &&
		s.cleanupFacts(cc, -TrueLit, func(ol orderLit) bool { return ol.value != ol.vs.LowerBound()-1 })
}

// updateBounds imports the bounds discovered by another thread's state,
// forcing facts for the strictest ones. Conflicting bounds surface as a
// failed unit clause.
func (s *State) updateBounds(cc *initCC, other *State) bool {
	// upper bounds
	for _, ol := range other.litmap[TrueLit] {
		vs := s.varStateOf(ol.vs.Name())
		if ol.vs.UpperBound() < vs.UpperBound() {
			if ok, _ := s.updateLiteral(vs, ol.vs.UpperBound(), cc, TruthTrue); !ok {
				return false
			}
		}
	}

	// lower bounds
	for _, ol := range other.litmap[-TrueLit] {
		vs := s.varStateOf(ol.vs.Name())
		if vs.LowerBound() < ol.vs.LowerBound() {
			if ok, _ := s.updateLiteral(vs, ol.vs.LowerBound()-1, cc, TruthFalse); !ok {
				return false
			}
		}
	}

	return s.updateDomain(cc, TrueLit)
}

// copyFrom rebuilds this state as a clone of the master state. Called once
// per non-master thread at the end of initialization.
func (s *State) copyFrom(master *State) {
	if s.udiff.Len() != 0 || s.ldiff.Len() != 0 || master.udiff.Len() != 0 || master.ldiff.Len() != 0 {
		panic("csp: state copy with pending bound diffs")
	}

	s.factsIntegrated = master.factsIntegrated

	// make sure there is an empty var state for each variable
	for _, vs := range master.vars[len(s.vars):] {
		s.addVariable(vs.Name())
	}
	for _, vs := range s.vars {
		vs.clear()
	}

	// copy the literal map
	s.litmap = make(map[Lit][]orderLit, len(master.litmap))
	for lit, vec := range master.litmap {
		for _, ol := range vec {
			vs := s.varStateOf(ol.vs.Name())
			vs.SetLiteral(ol.value, lit)
			s.litmap[lit] = append(s.litmap[lit], orderLit{vs, ol.value})
		}
	}

	// copy the master's bound stacks
	for i, vs := range s.vars {
		vs.lowerStack = append(vs.lowerStack[:0], master.vars[i].lowerStack...)
		vs.upperStack = append(vs.upperStack[:0], master.vars[i].upperStack...)
	}

	// copy constraint states and the variable index
	s.cstate = make(map[Constraint]constraintState, len(master.cstate))
	for c, cs := range master.cstate {
		s.cstate[c] = cs.copyState()
	}
	s.v2cs = make(map[string][]coeffState, len(master.v2cs))
	for varName, edges := range master.v2cs {
		out := make([]coeffState, len(edges))
		for i, e := range edges {
			out[i] = coeffState{e.co, s.constraintStateOf(e.cs.constraint())}
		}
		s.v2cs[varName] = out
	}

	// adjust the level frame and the todo queue
	s.currentLevel().copyFrom(s, master.currentLevel())
	s.todo.Clear()
	for _, cs := range master.todo.Items() {
		s.todo.Add(s.constraintStateOf(cs.constraint()))
	}
}
