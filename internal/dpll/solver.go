// Package dpll provides a small Boolean search engine implementing the host
// side of the csp propagator contract: literal allocation, watches, clause
// addition during search, native weight constraints, and propagator
// callbacks at every propagation fixpoint.
//
// The solver enumerates total assignments with a chronological DFS that
// tries both polarities of every decision, which makes model enumeration
// complete without blocking clauses. It is deliberately simple; it exists
// so the propagator can be exercised end-to-end and is not a competitive
// SAT solver.
package dpll

import (
	"fmt"
	"sort"

	"github.com/gitrdm/gocsp/pkg/csp"
)

// Propagator is the callback interface the solver drives. The csp
// Propagator satisfies it.
type Propagator interface {
	Init(init csp.PropagateInit) bool
	Propagate(control csp.PropagateControl, changes []csp.Lit) bool
	Check(control csp.PropagateControl) bool
	Undo(threadID int, ass csp.Assignment, changes []csp.Lit)
	GetAssignment(threadID int) []csp.VarValue
	OnModel(threadID int)
}

// Model is one total assignment found during solving.
type Model struct {
	// Values is the integer assignment extracted from the propagator.
	Values []csp.VarValue
	// TrueAtoms lists the program atoms (literals allocated with NewAtom)
	// that are true in the model.
	TrueAtoms []csp.Lit
}

// clause is a disjunction of literals. Tagged clauses are local to one
// solving step.
type clause struct {
	lits   []csp.Lit
	tagged bool
}

// weightCon is the native constraint `lit <-> sum of weights of true
// literals <= bound`. All weights are positive.
type weightCon struct {
	lit   csp.Lit
	wlits []csp.WeightedLit
	bound int64
}

// levelRec tracks one decision of the DFS.
type levelRec struct {
	lit        csp.Lit // the decision literal
	flipped    bool    // both polarities tried
	propagated bool    // the propagator saw changes on this level
	trailPos   int     // trail length before the decision
}

// Solver is a chronological DFS host. A Solver is bound to one goroutine;
// use Clone to run portfolio threads.
type Solver struct {
	thread   int
	numVars  int
	atoms    int // number of program atoms; vars 2..atoms+1 are reported in models
	assign   []int8
	level    []int
	trail    []csp.Lit
	reported int // trail prefix already delivered to the propagator
	levels   []levelRec
	clauses  []clause
	weights  []weightCon
	watched  map[csp.Lit]bool
	conflict bool
	prop     Propagator

	checkMode csp.CheckMode
	threads   int

	// Polarity chooses the first branch for a decision variable. The
	// default branches false first, which pairs with the propagator's
	// flipped order literals to prefer small non-negative values.
	Polarity func(v int) bool
}

// New creates a solver prepared for the given number of portfolio threads.
func New(threads int) *Solver {
	if threads < 1 {
		threads = 1
	}
	s := &Solver{
		watched: make(map[csp.Lit]bool),
		threads: threads,
	}
	// literal 1 is the constant true literal
	v := s.newVar()
	if v != 1 {
		panic("dpll: true literal must be 1")
	}
	s.assignLit(csp.TrueLit)
	s.reported = len(s.trail)
	return s
}

// Register installs the propagator driven by this solver.
func (s *Solver) Register(p Propagator) { s.prop = p }

func (s *Solver) newVar() int {
	s.numVars++
	s.assign = append(s.assign, 0)
	s.level = append(s.level, 0)
	return s.numVars
}

// NewAtom allocates a program atom before initialization. Atoms are
// reported in models and can guard constraints.
func (s *Solver) NewAtom() csp.Lit {
	lit := csp.Lit(s.newVar())
	if int(lit) != s.atoms+2 {
		panic("dpll: atoms must be allocated before solving")
	}
	s.atoms = int(lit) - 1
	return lit
}

// AddProgramClause adds a clause over program atoms before solving.
func (s *Solver) AddProgramClause(lits ...csp.Lit) {
	s.clauses = append(s.clauses, clause{lits: append([]csp.Lit(nil), lits...)})
}

func (s *Solver) varOf(lit csp.Lit) int {
	if lit < 0 {
		return int(-lit)
	}
	return int(lit)
}

func (s *Solver) value(lit csp.Lit) csp.Truth {
	v := s.varOf(lit)
	if v < 1 || v > s.numVars {
		return csp.TruthOpen
	}
	a := s.assign[v-1]
	if a == 0 {
		return csp.TruthOpen
	}
	if (a > 0) == (lit > 0) {
		return csp.TruthTrue
	}
	return csp.TruthFalse
}

func (s *Solver) assignLit(lit csp.Lit) {
	v := s.varOf(lit)
	if s.assign[v-1] != 0 {
		panic("dpll: literal already assigned")
	}
	if lit > 0 {
		s.assign[v-1] = 1
	} else {
		s.assign[v-1] = -1
	}
	s.level[v-1] = len(s.levels)
	s.trail = append(s.trail, lit)
}

func (s *Solver) decisionLevel() int { return len(s.levels) }

// bcp runs unit propagation over clauses and weight constraints until
// nothing changes. It returns false on conflict.
func (s *Solver) bcp() bool {
	if s.conflict {
		return false
	}
	for {
		changed := false

		for i := range s.clauses {
			c := &s.clauses[i]
			var unit csp.Lit
			open := 0
			sat := false
			for _, lit := range c.lits {
				switch s.value(lit) {
				case csp.TruthTrue:
					sat = true
				case csp.TruthOpen:
					open++
					unit = lit
				}
				if sat {
					break
				}
			}
			if sat {
				continue
			}
			switch open {
			case 0:
				s.conflict = true
				return false
			case 1:
				s.assignLit(unit)
				changed = true
			}
		}

		for i := range s.weights {
			progress, ok := s.propagateWeight(&s.weights[i])
			if !ok {
				s.conflict = true
				return false
			}
			if progress {
				changed = true
			}
		}

		if !changed {
			return true
		}
	}
}

// propagateWeight enforces `w.lit <-> sum <= w.bound` by counting. It
// reports whether it assigned a literal and whether the constraint is
// consistent.
func (s *Solver) propagateWeight(w *weightCon) (bool, bool) {
	var sumTrue, sumOpen int64
	for _, wl := range w.wlits {
		switch s.value(wl.Lit) {
		case csp.TruthTrue:
			sumTrue += wl.Weight
		case csp.TruthOpen:
			sumOpen += wl.Weight
		}
	}

	switch s.value(w.lit) {
	case csp.TruthOpen:
		if sumTrue > w.bound {
			s.assignLit(-w.lit)
			return true, true
		}
		if sumTrue+sumOpen <= w.bound {
			s.assignLit(w.lit)
			return true, true
		}
	case csp.TruthTrue:
		if sumTrue > w.bound {
			return false, false
		}
		progress := false
		for _, wl := range w.wlits {
			if s.value(wl.Lit) == csp.TruthOpen && sumTrue+wl.Weight > w.bound {
				s.assignLit(-wl.Lit)
				progress = true
			}
		}
		return progress, true
	case csp.TruthFalse:
		if sumTrue+sumOpen <= w.bound {
			return false, false
		}
		progress := false
		for _, wl := range w.wlits {
			if s.value(wl.Lit) == csp.TruthOpen && sumTrue+sumOpen-wl.Weight <= w.bound {
				s.assignLit(wl.Lit)
				sumTrue += wl.Weight
				sumOpen -= wl.Weight
				progress = true
			}
		}
		return progress, true
	}
	return false, true
}

// pendingChanges collects newly assigned watched literals since the last
// delivery to the propagator.
func (s *Solver) pendingChanges() []csp.Lit {
	var changes []csp.Lit
	for _, lit := range s.trail[s.reported:] {
		// a watch fires for the literal that became true
		if s.watched[lit] {
			changes = append(changes, lit)
		}
	}
	s.reported = len(s.trail)
	return changes
}

func (s *Solver) progressMark() [3]int {
	return [3]int{len(s.trail), s.numVars, len(s.clauses)}
}

func (s *Solver) isTotal() bool { return len(s.trail) == s.numVars }

// decide branches on the first unassigned variable.
func (s *Solver) decide() {
	for v := 1; v <= s.numVars; v++ {
		if s.assign[v-1] != 0 {
			continue
		}
		lit := csp.Lit(v)
		pol := false
		if s.Polarity != nil {
			pol = s.Polarity(v)
		}
		if !pol {
			lit = -lit
		}
		s.levels = append(s.levels, levelRec{lit: lit, trailPos: len(s.trail)})
		s.assignLit(lit)
		return
	}
	panic("dpll: decide on total assignment")
}

// backtrack pops decision levels until a decision can be flipped. It
// returns false when the search space is exhausted.
func (s *Solver) backtrack() bool {
	s.conflict = false
	for {
		if s.decisionLevel() == 0 {
			return false
		}
		rec := s.levels[len(s.levels)-1]

		// unassign everything from this level
		for i := len(s.trail) - 1; i >= rec.trailPos; i-- {
			v := s.varOf(s.trail[i])
			s.assign[v-1] = 0
		}
		undone := append([]csp.Lit(nil), s.trail[rec.trailPos:]...)
		s.trail = s.trail[:rec.trailPos]
		if s.reported > len(s.trail) {
			s.reported = len(s.trail)
		}
		s.levels = s.levels[:len(s.levels)-1]

		if rec.propagated {
			s.prop.Undo(s.thread, s.assignment(), undone)
		}

		if !rec.flipped {
			s.levels = append(s.levels, levelRec{lit: -rec.lit, flipped: true, trailPos: len(s.trail)})
			s.assignLit(-rec.lit)
			return true
		}
	}
}

// dropTagged removes solve-step local clauses between steps.
func (s *Solver) dropTagged() {
	n := 0
	for _, c := range s.clauses {
		if !c.tagged {
			s.clauses[n] = c
			n++
		}
	}
	s.clauses = s.clauses[:n]
}

// Solve runs one solving step and returns every model, tightening the
// propagator's minimize bound on each one. It can be called again after
// adding further constraint directives to the propagator (multi-shot).
func (s *Solver) Solve() ([]Model, error) {
	if s.prop == nil {
		return nil, fmt.Errorf("dpll: no propagator registered")
	}
	if !s.InitStep() {
		return nil, nil
	}
	return s.Search(), nil
}

// InitStep starts a solving step: tagged clauses of the previous step are
// dropped and the propagator is initialized. It reports false when the
// problem is conflicting on the top level.
func (s *Solver) InitStep() bool {
	if s.decisionLevel() != 0 {
		panic("dpll: solve on open decision level")
	}

	s.dropTagged()
	s.conflict = false

	if !s.bcp() {
		return false
	}
	if !s.prop.Init(&initFacade{s}) {
		return false
	}
	// Facts established before or during init were integrated by the
	// propagator's own simplification; they are not delivered again.
	s.reported = len(s.trail)
	return true
}

// Search enumerates all models of the current step. InitStep must have
// succeeded before.
func (s *Solver) Search() []Model {
	var models []Model
	for {
		if !s.bcp() {
			if !s.backtrack() {
				return models
			}
			continue
		}

		if changes := s.pendingChanges(); len(changes) > 0 {
			if s.decisionLevel() > 0 {
				s.levels[len(s.levels)-1].propagated = true
			}
			if !s.prop.Propagate(&controlFacade{s}, changes) {
				if !s.backtrack() {
					return models
				}
			}
			continue
		}

		mark := s.progressMark()
		if s.checkMode == csp.CheckModeFixpoint || s.checkMode == csp.CheckModeBoth ||
			(s.checkMode == csp.CheckModeTotal && s.isTotal()) {
			if !s.prop.Check(&controlFacade{s}) {
				if !s.backtrack() {
					return models
				}
				continue
			}
			if s.progressMark() != mark {
				continue
			}
		}

		if s.isTotal() {
			models = append(models, s.model())
			s.prop.OnModel(s.thread)
			if !s.backtrack() {
				return models
			}
			continue
		}

		s.decide()
	}
}

func (s *Solver) model() Model {
	m := Model{Values: s.prop.GetAssignment(s.thread)}
	for v := 2; v <= s.atoms+1; v++ {
		if s.assign[v-1] > 0 {
			m.TrueAtoms = append(m.TrueAtoms, csp.Lit(v))
		}
	}
	return m
}

// Clone duplicates the solver for a portfolio thread. Must be called on a
// solver at decision level zero.
func (s *Solver) Clone(thread int) *Solver {
	if s.decisionLevel() != 0 {
		panic("dpll: clone on open decision level")
	}
	cp := &Solver{
		thread:    thread,
		numVars:   s.numVars,
		atoms:     s.atoms,
		assign:    append([]int8(nil), s.assign...),
		level:     append([]int(nil), s.level...),
		trail:     append([]csp.Lit(nil), s.trail...),
		reported:  s.reported,
		clauses:   make([]clause, len(s.clauses)),
		weights:   append([]weightCon(nil), s.weights...),
		watched:   make(map[csp.Lit]bool, len(s.watched)),
		prop:      s.prop,
		checkMode: s.checkMode,
		threads:   s.threads,
	}
	for i, c := range s.clauses {
		cp.clauses[i] = clause{lits: append([]csp.Lit(nil), c.lits...), tagged: c.tagged}
	}
	for lit, on := range s.watched {
		cp.watched[lit] = on
	}
	return cp
}

// SortModels orders models canonically for comparison in tests.
func SortModels(models []Model) {
	sort.Slice(models, func(i, j int) bool { return ModelKey(models[i]) < ModelKey(models[j]) })
}

// ModelKey returns a canonical string identity for a model.
func ModelKey(m Model) string {
	key := ""
	for _, a := range m.TrueAtoms {
		key += fmt.Sprintf("a%d,", a)
	}
	for _, v := range m.Values {
		key += fmt.Sprintf("%s=%d,", v.Var, v.Value)
	}
	return key
}
