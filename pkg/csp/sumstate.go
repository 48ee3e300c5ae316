package csp

import "fmt"

// sumState caches the running lower and upper bound of a sum constraint (or
// of the minimize objective, which propagates the same way against the
// current minimize bound).
//
// The cached bounds are maintained incrementally: update adds the weighted
// bound diffs reported by the engine, undo subtracts them again. Propagation
// works entirely on the caches and never rescans the variables.
type sumState struct {
	baseState
	con   sumLike
	lower int64
	upper int64
}

func newSumState(con sumLike) *sumState { return &sumState{con: con} }

func (cs *sumState) constraint() Constraint { return cs.con }

func (cs *sumState) literal() Lit { return cs.con.ActivationLiteral() }

func (cs *sumState) taggedRemovable() bool { return cs.con.removable() }

// update adjusts the cached bounds after one of the constraint's variables
// changed by diff under coefficient co. A positive weighted diff tightens
// the lower bound and makes the constraint a propagation candidate.
func (cs *sumState) update(co, diff int64) bool {
	if co*diff < 0 {
		cs.upper += co * diff
		return false
	}
	cs.lower += co * diff
	return true
}

// undo reverts an earlier update by the same weighted diff.
func (cs *sumState) undo(co, diff int64) {
	if co*diff > 0 {
		cs.lower -= co * diff
	} else {
		cs.upper -= co * diff
	}
}

// verifyState recomputes the cached bounds from scratch and panics on any
// mismatch. Enabled by the CheckState option.
func (cs *sumState) verifyState(s *State) {
	var lower, upper int64
	for _, e := range cs.con.Elements() {
		vs := s.varStateOf(e.Var)
		if e.Coef > 0 {
			lower += e.Coef * vs.LowerBound()
			upper += e.Coef * vs.UpperBound()
		} else {
			lower += e.Coef * vs.UpperBound()
			upper += e.Coef * vs.LowerBound()
		}
	}
	if lower > upper || lower != cs.lower || upper != cs.upper {
		panic(fmt.Sprintf("csp: cached bounds [%d,%d] drifted from [%d,%d] for %v",
			cs.lower, cs.upper, lower, upper, cs.con))
	}
}

// generateReason collects the bound literals that produced the cached lower
// bound plus the negated activation literal. It returns the number of
// literals in the reason that are not fixed on level zero; the caller uses
// the count to decide whether derived literals are facts.
//
// The literal for element i sits at index i so that the propagation loop can
// temporarily swap in the derived literal.
func (cs *sumState) generateReason(s *State, cc clauseCreator) (int, []Lit) {
	clit := cs.literal()
	ass := cc.Assignment()
	numGuess := 0
	if cs.con.tagged() {
		// tagged clauses are step local and never become facts
		numGuess = 1
	}
	lbs := make([]Lit, 0, len(cs.con.Elements())+1)
	for _, e := range cs.con.Elements() {
		vs := s.varStateOf(e.Var)
		var lit Lit
		if e.Coef > 0 {
			// any literal below the lower bound is false
			lit = s.reasonLiteral(vs, vs.LowerBound()-1, cc, false)
		} else {
			// any literal at or above the upper bound is true
			lit = -s.reasonLiteral(vs, vs.UpperBound(), cc, true)
		}
		if !ass.IsFixed(lit) {
			numGuess++
		}
		lbs = append(lbs, lit)
	}
	if !ass.IsFixed(clit) {
		numGuess++
	}
	lbs = append(lbs, -clit)
	return numGuess, lbs
}

// propagate enforces the constraint against the cached bounds.
//
// The slack of the constraint with respect to the lower bound determines
// what can happen: negative slack means the constraint is violated and a
// conflict clause is added; otherwise the order literals of each element are
// tightened just enough that the slack stays non-negative. Thanks to the
// order encoding, only the single strongest bound per element has to be
// enforced.
func (cs *sumState) propagate(s *State, cc clauseCreator) bool {
	ass := cc.Assignment()
	rhs, hasRHS := cs.con.bound(s)

	if s.cfg.CheckState && !cs.markedInactive() {
		cs.verifyState(s)
	}

	// skip constraints that cannot become false
	if !hasRHS || cs.upper <= rhs {
		s.markInactive(cs)
		return true
	}
	slack := rhs - cs.lower

	// handles empty and false constraints
	if slack < 0 {
		s.markInactive(cs)
		_, lbs := cs.generateReason(s, cc)
		return s.addReason(cc, lbs, tagFlag(cs.con.tagged()))
	}

	if !ass.IsTrue(cs.literal()) {
		return true
	}

	numGuess, lbs := cs.generateReason(s, cc)

	clauses := 0
	for i, e := range cs.con.Elements() {
		vs := s.varStateOf(e.Var)

		// discount the element's own literal if it is a guess
		adjust := 0
		if !ass.IsFixed(lbs[i]) {
			adjust = 1
		}

		// if every other literal of the reason is fixed on level zero, the
		// derived literal can be simplified to a fact right away
		var lit Lit
		var diff, value int64
		if e.Coef > 0 {
			truth := TruthOpen
			if numGuess == adjust {
				truth = TruthTrue
			}
			diff = slack + e.Coef*vs.LowerBound()
			value = floorDiv(diff, e.Coef)
			// order literals at or above the upper bound are true already
			if value >= vs.UpperBound() {
				continue
			}
			ok, l := s.updateLiteral(vs, value, cc, truth)
			if !ok {
				return false
			}
			lit = l
		} else {
			truth := TruthOpen
			if numGuess == adjust {
				truth = TruthFalse
			}
			diff = slack + e.Coef*vs.UpperBound()
			value = ceilDiv(diff, e.Coef)
			// order literals below the lower bound are false already
			if value <= vs.LowerBound() {
				continue
			}
			ok, l := s.updateLiteral(vs, value-1, cc, truth)
			if !ok {
				return false
			}
			lit = -l
		}

		// the chosen value keeps the slack non-negative without exceeding
		// the coefficient, which would weaken the propagation
		if rem := diff - e.Coef*value; rem < 0 || rem >= abs64(e.Coef) {
			panic(fmt.Sprintf("csp: propagation value %d out of range for %v", value, cs.con))
		}

		if !ass.IsTrue(lit) {
			lbs[i], lit = lit, lbs[i]
			if !s.addReason(cc, lbs, tagFlag(cs.con.tagged())) {
				return false
			}
			lbs[i] = lit
			clauses++
			if s.cfg.ClauseLimit > 0 && clauses >= s.cfg.ClauseLimit {
				// finish the remaining elements on the next check
				s.todo.Add(cs)
				return true
			}
		}
	}

	return true
}

// estimate computes the number of order literals a translation to a weight
// constraint would need.
func (cs *sumState) estimate(s *State, slack int64) int64 {
	var est int64
	for _, e := range cs.con.Elements() {
		vs := s.varStateOf(e.Var)
		if e.Coef > 0 {
			value := floorDiv(slack+e.Coef*vs.LowerBound(), e.Coef)
			est += min(value+1, vs.UpperBound()) - vs.LowerBound()
		} else {
			value := ceilDiv(slack+e.Coef*vs.UpperBound(), e.Coef)
			est += vs.UpperBound() - max(value-1, vs.LowerBound())
		}
	}
	return est
}

// translate replaces a small enough sum constraint by a host weight
// constraint. Constraints that can no longer become false are dropped
// without replacement. The second return value reports removal.
func (cs *sumState) translate(cc *initCC, s *State) (bool, bool) {
	ass := cc.Assignment()

	if cs.con.tagged() {
		return true, false
	}

	rhs, _ := cs.con.bound(s)
	if ass.IsFalse(cs.literal()) || cs.upper <= rhs {
		s.removeConstraint(cs.con)
		return true, true
	}

	slack := rhs - cs.lower
	if slack < 0 {
		panic("csp: translating conflicting constraint")
	}

	if cs.estimate(s, slack) >= int64(s.cfg.WeightConstraintLimit) {
		return true, false
	}

	var wlits []WeightedLit
	for _, e := range cs.con.Elements() {
		vs := s.varStateOf(e.Var)
		if e.Coef > 0 {
			value := floorDiv(slack+e.Coef*vs.LowerBound(), e.Coef)
			for i := vs.LowerBound(); i < min(value+1, vs.UpperBound()); i++ {
				wlits = append(wlits, WeightedLit{Lit: -s.getLiteral(vs, i, cc), Weight: e.Coef})
			}
		} else {
			value := ceilDiv(slack+e.Coef*vs.UpperBound(), e.Coef)
			for i := max(value-1, vs.LowerBound()); i < vs.UpperBound(); i++ {
				wlits = append(wlits, WeightedLit{Lit: s.getLiteral(vs, i, cc), Weight: -e.Coef})
			}
		}
	}

	if s.cfg.LiteralsOnly {
		return true, false
	}

	var lit Lit
	if ass.IsTrue(cs.literal()) {
		lit = cs.literal()
	} else {
		lit = cc.AddLiteral()
		if !cc.AddClause([]Lit{-cs.literal(), lit}, 0) {
			return false, false
		}
	}

	ret := cc.AddWeightConstraint(lit, wlits, slack)
	s.removeConstraint(cs.con)
	return ret, true
}

// checkFull verifies the constraint against the final values of its
// variables. Only called on total assignments.
func (cs *sumState) checkFull(s *State) bool {
	rhs, hasRHS := cs.con.bound(s)
	if !hasRHS {
		return true
	}
	var lhs int64
	for _, e := range cs.con.Elements() {
		lhs += e.Coef * s.varStateOf(e.Var).LowerBound()
	}
	return lhs <= rhs
}

func (cs *sumState) copyState() constraintState {
	cp := *cs
	return &cp
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
