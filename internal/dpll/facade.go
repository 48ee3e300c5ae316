package dpll

import "github.com/gitrdm/gocsp/pkg/csp"

// addClause appends a clause and reports false if it is falsified under the
// current assignment. Unit literals are picked up by the next bcp pass.
func (s *Solver) addClause(lits []csp.Lit, tagged bool) bool {
	c := clause{lits: append([]csp.Lit(nil), lits...), tagged: tagged}
	s.clauses = append(s.clauses, c)
	for _, lit := range c.lits {
		if s.value(lit) != csp.TruthFalse {
			return true
		}
	}
	s.conflict = true
	return false
}

func (s *Solver) assignment() csp.Assignment { return &assignFacade{s} }

// assignFacade exposes the solver's assignment through the host contract.
type assignFacade struct {
	s *Solver
}

func (a *assignFacade) Value(lit csp.Lit) csp.Truth { return a.s.value(lit) }

func (a *assignFacade) IsTrue(lit csp.Lit) bool { return a.s.value(lit) == csp.TruthTrue }

func (a *assignFacade) IsFalse(lit csp.Lit) bool { return a.s.value(lit) == csp.TruthFalse }

func (a *assignFacade) IsFixed(lit csp.Lit) bool {
	v := a.s.varOf(lit)
	return a.s.assign[v-1] != 0 && a.s.level[v-1] == 0
}

func (a *assignFacade) HasLiteral(lit csp.Lit) bool {
	v := a.s.varOf(lit)
	return v >= 1 && v <= a.s.numVars
}

func (a *assignFacade) Level(lit csp.Lit) int { return a.s.level[a.s.varOf(lit)-1] }

func (a *assignFacade) DecisionLevel() int { return a.s.decisionLevel() }

func (a *assignFacade) Trail() []csp.Lit { return a.s.trail }

func (a *assignFacade) IsTotal() bool { return a.s.isTotal() }

func (a *assignFacade) Size() int { return len(a.s.trail) }

// initFacade implements csp.PropagateInit.
type initFacade struct {
	s *Solver
}

func (f *initFacade) AddLiteral() csp.Lit { return csp.Lit(f.s.newVar()) }

func (f *initFacade) AddWatch(lit csp.Lit) { f.s.watched[lit] = true }

func (f *initFacade) AddClause(clause []csp.Lit) bool { return f.s.addClause(clause, false) }

func (f *initFacade) AddWeightConstraint(lit csp.Lit, wlits []csp.WeightedLit, bound int64) bool {
	f.s.weights = append(f.s.weights, weightCon{
		lit:   lit,
		wlits: append([]csp.WeightedLit(nil), wlits...),
		bound: bound,
	})
	if _, ok := f.s.propagateWeight(&f.s.weights[len(f.s.weights)-1]); !ok {
		f.s.conflict = true
		return false
	}
	return true
}

func (f *initFacade) Propagate() bool { return f.s.bcp() }

func (f *initFacade) Assignment() csp.Assignment { return f.s.assignment() }

func (f *initFacade) SolverLiteral(lit csp.Lit) csp.Lit { return lit }

func (f *initFacade) NumberOfThreads() int { return f.s.threads }

func (f *initFacade) SetCheckMode(mode csp.CheckMode) { f.s.checkMode = mode }

// controlFacade implements csp.PropagateControl.
type controlFacade struct {
	s *Solver
}

func (f *controlFacade) ThreadID() int { return f.s.thread }

func (f *controlFacade) AddLiteral() csp.Lit { return csp.Lit(f.s.newVar()) }

func (f *controlFacade) AddWatch(lit csp.Lit) { f.s.watched[lit] = true }

func (f *controlFacade) AddClause(clause []csp.Lit, flags csp.ClauseFlag) bool {
	return f.s.addClause(clause, flags&csp.ClauseTag != 0)
}

func (f *controlFacade) Propagate() bool { return f.s.bcp() }

func (f *controlFacade) Assignment() csp.Assignment { return f.s.assignment() }
