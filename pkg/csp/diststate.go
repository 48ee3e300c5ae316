package csp

// distinctState captures the per-thread state of a distinct constraint. For
// every term it caches the current lower and upper value; two inverse maps
// index the terms by those values so that an assigned term can find the
// terms it collides with in constant time.
//
// The v2cs edges of a distinct constraint carry signed term indices instead
// of coefficients: an element of term i is indexed by +(i+1) if its
// coefficient is positive and by -(i+1) otherwise, so the sign records the
// coefficient sign, not which bound moved. Changed terms are marked dirty and
// recomputed lazily before the next propagation.
type distinctState struct {
	baseState
	con      *Distinct
	dirty    *orderedSet[int64]
	todo     *orderedSet[int64]
	mapUpper map[int64][]int
	mapLower map[int64][]int
	assigned [][2]int64
}

func newDistinctState(con *Distinct) *distinctState {
	return &distinctState{
		con:      con,
		dirty:    newOrderedSet[int64](),
		todo:     newOrderedSet[int64](),
		mapUpper: make(map[int64][]int),
		mapLower: make(map[int64][]int),
		assigned: make([][2]int64, len(con.terms)),
	}
}

func (ds *distinctState) constraint() Constraint { return ds.con }

func (ds *distinctState) literal() Lit { return ds.con.ActivationLiteral() }

// Distinct constraints are detached only while provably false.
func (ds *distinctState) taggedRemovable() bool { return true }

// initTerm recomputes the bounds of term i and files them in the value
// maps. The term must not currently be indexed.
func (ds *distinctState) initTerm(s *State, i int) {
	term := ds.con.terms[i]
	lower, upper := term.Offset, term.Offset
	for _, e := range term.Elements {
		vs := s.varStateOf(e.Var)
		if e.Coef > 0 {
			upper += e.Coef * vs.UpperBound()
			lower += e.Coef * vs.LowerBound()
		} else {
			upper += e.Coef * vs.LowerBound()
			lower += e.Coef * vs.UpperBound()
		}
	}
	ds.assigned[i] = [2]int64{lower, upper}
	ds.mapUpper[upper] = append(ds.mapUpper[upper], i)
	ds.mapLower[lower] = append(ds.mapLower[lower], i)
}

// update marks the term behind the signed index dirty and queues it for
// propagation.
func (ds *distinctState) update(co, _ int64) bool {
	ds.dirty.Add(abs64(co) - 1)
	ds.todo.Add(co)
	return true
}

// undo clears pending propagation and marks the term dirty so its bounds
// are recomputed from the restored variable bounds.
func (ds *distinctState) undo(co, _ int64) {
	ds.dirty.Add(abs64(co) - 1)
	ds.todo.Clear()
}

// refresh recomputes all dirty terms.
func (ds *distinctState) refresh(s *State) {
	for _, di := range ds.dirty.Items() {
		i := int(di)
		lower, upper := ds.assigned[i][0], ds.assigned[i][1]
		ds.mapLower[lower] = removeIndex(ds.mapLower[lower], i)
		ds.mapUpper[upper] = removeIndex(ds.mapUpper[upper], i)
		ds.initTerm(s, i)
	}
	ds.dirty.Clear()
}

func removeIndex(s []int, x int) []int {
	for i, y := range s {
		if y == x {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// translate keeps distinct constraints with the propagator.
func (ds *distinctState) translate(*initCC, *State) (bool, bool) { return true, false }

// propagateCollision propagates under the assumption that term i is
// assigned and one of term j's bounds, selected by sgn, matches its value.
// For sgn > 0 the upper bound of term j is pushed down, for sgn < 0 its
// lower bound is pushed up.
//
// The generated reasons are not necessarily unit for arbitrary linear
// terms; they still guarantee conflict detection, and the clauses can
// become unit later.
func (ds *distinctState) propagateCollision(cc clauseCreator, s *State, sgn int64, i, j int) bool {
	ass := cc.Assignment()

	reason := make([]Lit, 0, 2*len(ds.con.terms[i].Elements)+2*len(ds.con.terms[j].Elements))
	isFact := len(ds.con.terms[j].Elements) == 1

	// the assigned term contributes both of its bound witnesses
	for _, e := range ds.con.terms[i].Elements {
		vs := s.varStateOf(e.Var)
		lit := -s.getLiteral(vs, vs.UpperBound(), cc)
		if !ass.IsFixed(lit) {
			isFact = false
		}
		reason = append(reason, lit)
		lit = s.getLiteral(vs, vs.LowerBound()-1, cc)
		if !ass.IsFixed(lit) {
			isFact = false
		}
		reason = append(reason, lit)
	}

	// the bounded term contributes the witness of the colliding bound and
	// receives the strict tightening
	for _, e := range ds.con.terms[j].Elements {
		vs := s.varStateOf(e.Var)
		if sgn*e.Coef > 0 {
			lit := -s.getLiteral(vs, vs.UpperBound(), cc)
			if !ass.IsFixed(lit) {
				isFact = false
			}
			reason = append(reason, lit)

			truth := TruthOpen
			if isFact {
				truth = TruthTrue
			}
			ok, con := s.updateLiteral(vs, vs.UpperBound()-1, cc, truth)
			if !ok {
				return false
			}
			reason = append(reason, con)
			if ass.IsTrue(con) {
				return true
			}
		} else {
			lit := s.getLiteral(vs, vs.LowerBound()-1, cc)
			if !ass.IsFixed(lit) {
				isFact = false
			}
			reason = append(reason, lit)

			truth := TruthOpen
			if isFact {
				truth = TruthFalse
			}
			ok, con := s.updateLiteral(vs, vs.LowerBound(), cc, truth)
			if !ok {
				return false
			}
			reason = append(reason, -con)
			if ass.IsTrue(-con) {
				return true
			}
		}
	}

	return s.addReason(cc, reason, 0)
}

// propagate dispatches the queued terms.
//
// An assigned term pushes every term sharing its value strictly away. A term
// whose bound moved onto the value of an already assigned term is pushed
// away from that value, unless the assigned term is itself queued and will
// handle the collision.
func (ds *distinctState) propagate(s *State, cc clauseCreator) bool {
	ds.refresh(s)

	for _, di := range ds.todo.Items() {
		j := int(abs64(di) - 1)
		lower, upper := ds.assigned[j][0], ds.assigned[j][1]
		switch {
		case lower == upper:
			for _, k := range ds.mapUpper[upper] {
				if j != k && !ds.propagateCollision(cc, s, 1, j, k) {
					return false
				}
			}
			for _, k := range ds.mapLower[lower] {
				if j != k && !ds.propagateCollision(cc, s, -1, j, k) {
					return false
				}
			}
		case di < 0:
			for _, k := range ds.mapUpper[upper] {
				if ds.assigned[k][0] == ds.assigned[k][1] {
					if ds.todo.Has(int64(k+1)) || ds.todo.Has(int64(-k-1)) {
						break
					}
					if !ds.propagateCollision(cc, s, 1, k, j) {
						return false
					}
					break
				}
			}
		default:
			for _, k := range ds.mapLower[lower] {
				if ds.assigned[k][0] == ds.assigned[k][1] {
					if ds.todo.Has(int64(k+1)) || ds.todo.Has(int64(-k-1)) {
						break
					}
					if !ds.propagateCollision(cc, s, -1, k, j) {
						return false
					}
					break
				}
			}
		}
	}
	ds.todo.Clear()

	return true
}

// checkFull verifies pairwise distinctness against the final values.
func (ds *distinctState) checkFull(s *State) bool {
	values := make(map[int64]struct{}, len(ds.con.terms))
	for _, term := range ds.con.terms {
		value := term.Offset
		for _, e := range term.Elements {
			value += e.Coef * s.varStateOf(e.Var).UpperBound()
		}
		if _, ok := values[value]; ok {
			return false
		}
		values[value] = struct{}{}
	}
	return true
}

func (ds *distinctState) copyState() constraintState {
	cp := newDistinctState(ds.con)
	cp.inactiveLevel = ds.inactiveLevel
	for value, indices := range ds.mapUpper {
		cp.mapUpper[value] = append([]int(nil), indices...)
	}
	for value, indices := range ds.mapLower {
		cp.mapLower[value] = append([]int(nil), indices...)
	}
	copy(cp.assigned, ds.assigned)
	return cp
}
