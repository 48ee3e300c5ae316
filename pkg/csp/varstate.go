package csp

import (
	"fmt"
	"sort"
)

// orderMap is an ordered mapping from integer values to order literals. It
// is kept sorted by value so that the literal lattice supports predecessor
// and successor queries in logarithmic time. Insertions shift the tail of
// the backing slices; the map stays small because order literals are created
// lazily.
type orderMap struct {
	values []int64
	lits   []Lit
}

// find returns the position of value and whether it is present.
func (m *orderMap) find(value int64) (int, bool) {
	i := sort.Search(len(m.values), func(i int) bool { return m.values[i] >= value })
	return i, i < len(m.values) && m.values[i] == value
}

func (m *orderMap) Has(value int64) bool {
	_, ok := m.find(value)
	return ok
}

func (m *orderMap) Get(value int64) (Lit, bool) {
	i, ok := m.find(value)
	if !ok {
		return 0, false
	}
	return m.lits[i], true
}

// Set inserts or replaces the literal for value.
func (m *orderMap) Set(value int64, lit Lit) {
	i, ok := m.find(value)
	if ok {
		m.lits[i] = lit
		return
	}
	m.values = append(m.values, 0)
	m.lits = append(m.lits, 0)
	copy(m.values[i+1:], m.values[i:])
	copy(m.lits[i+1:], m.lits[i:])
	m.values[i] = value
	m.lits[i] = lit
}

// Unset removes the entry for value if present.
func (m *orderMap) Unset(value int64) {
	i, ok := m.find(value)
	if !ok {
		return
	}
	m.values = append(m.values[:i], m.values[i+1:]...)
	m.lits = append(m.lits[:i], m.lits[i+1:]...)
}

// Prev returns the largest value smaller than value that has a literal.
func (m *orderMap) Prev(value int64) (int64, bool) {
	i := sort.Search(len(m.values), func(i int) bool { return m.values[i] >= value })
	if i == 0 {
		return 0, false
	}
	return m.values[i-1], true
}

// Succ returns the smallest value larger than value that has a literal.
func (m *orderMap) Succ(value int64) (int64, bool) {
	i := sort.Search(len(m.values), func(i int) bool { return m.values[i] > value })
	if i == len(m.values) {
		return 0, false
	}
	return m.values[i], true
}

func (m *orderMap) Len() int { return len(m.values) }

// Each calls f for every value/literal pair in ascending value order.
func (m *orderMap) Each(f func(value int64, lit Lit)) {
	for i, v := range m.values {
		f(v, m.lits[i])
	}
}

func (m *orderMap) Clear() {
	m.values = m.values[:0]
	m.lits = m.lits[:0]
}

// VarState tracks the per-thread state of one integer variable: the stacks
// of lower and upper bound snapshots and the order literals created for it.
//
// The bound stacks always contain at least one element. The bottom element
// is the static extremum from the configuration and never changes; the top
// element is the current bound. A new entry is pushed the first time a
// decision level tightens the bound and popped when the level is undone.
type VarState struct {
	name       string
	lowerStack []int64
	upperStack []int64
	literals   orderMap
}

// newVarState creates the state for var with the given static extrema.
func newVarState(name string, min, max int64) *VarState {
	return &VarState{
		name:       name,
		lowerStack: []int64{min},
		upperStack: []int64{max},
	}
}

// Name returns the variable identifier.
func (vs *VarState) Name() string { return vs.name }

// PushLower grows the lower bound stack by one, copying the top value.
func (vs *VarState) PushLower() {
	vs.lowerStack = append(vs.lowerStack, vs.LowerBound())
}

// PushUpper grows the upper bound stack by one, copying the top value.
func (vs *VarState) PushUpper() {
	vs.upperStack = append(vs.upperStack, vs.UpperBound())
}

// PopLower removes the top entry of the lower bound stack. The static
// extremum at the bottom must remain.
func (vs *VarState) PopLower() {
	if len(vs.lowerStack) <= 1 {
		panic("csp: pop on static lower bound")
	}
	vs.lowerStack = vs.lowerStack[:len(vs.lowerStack)-1]
}

// PopUpper removes the top entry of the upper bound stack. The static
// extremum at the bottom must remain.
func (vs *VarState) PopUpper() {
	if len(vs.upperStack) <= 1 {
		panic("csp: pop on static upper bound")
	}
	vs.upperStack = vs.upperStack[:len(vs.upperStack)-1]
}

// LowerBound returns the current lower bound.
func (vs *VarState) LowerBound() int64 { return vs.lowerStack[len(vs.lowerStack)-1] }

// UpperBound returns the current upper bound.
func (vs *VarState) UpperBound() int64 { return vs.upperStack[len(vs.upperStack)-1] }

func (vs *VarState) setLowerBound(v int64) { vs.lowerStack[len(vs.lowerStack)-1] = v }

func (vs *VarState) setUpperBound(v int64) { vs.upperStack[len(vs.upperStack)-1] = v }

// MinBound returns the static lower extremum.
func (vs *VarState) MinBound() int64 { return vs.lowerStack[0] }

// MaxBound returns the static upper extremum.
func (vs *VarState) MaxBound() int64 { return vs.upperStack[0] }

// IsAssigned reports whether the variable has a single admissible value.
func (vs *VarState) IsAssigned() bool { return vs.LowerBound() == vs.UpperBound() }

// HasLiteral reports whether value is associated with an order literal. The
// value must lie in [MinBound,MaxBound).
func (vs *VarState) HasLiteral(value int64) bool { return vs.literals.Has(value) }

// Literal returns the order literal for value. The value must be associated
// with a literal.
func (vs *VarState) Literal(value int64) Lit {
	lit, ok := vs.literals.Get(value)
	if !ok {
		panic(fmt.Sprintf("csp: no order literal for %s<=%d", vs.name, value))
	}
	return lit
}

// SetLiteral associates value with lit.
func (vs *VarState) SetLiteral(value int64, lit Lit) { vs.literals.Set(value, lit) }

// UnsetLiteral drops the association for value.
func (vs *VarState) UnsetLiteral(value int64) { vs.literals.Unset(value) }

// PrevValue returns the largest value below value that has a literal.
func (vs *VarState) PrevValue(value int64) (int64, bool) { return vs.literals.Prev(value) }

// SuccValue returns the smallest value above value that has a literal.
func (vs *VarState) SuccValue(value int64) (int64, bool) { return vs.literals.Succ(value) }

// clear resets the state to the static extrema and drops all literals. Used
// when thread states are rebuilt from the master during initialization.
func (vs *VarState) clear() {
	vs.lowerStack = vs.lowerStack[:1]
	vs.upperStack = vs.upperStack[:1]
	vs.literals.Clear()
}

func (vs *VarState) String() string {
	return fmt.Sprintf("%s=[%d,%d]", vs.name, vs.LowerBound(), vs.UpperBound())
}
