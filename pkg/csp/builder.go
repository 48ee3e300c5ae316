package csp

import (
	"fmt"
	"sort"
	"strings"
)

// Rel is a relation operator of a linear constraint before normalization.
type Rel int8

// Relation operators accepted by Builder.AddLinear.
const (
	RelLE Rel = iota // <=
	RelGE            // >=
	RelLT            // <
	RelGT            // >
	RelEQ            // =
	RelNE            // !=
)

func (r Rel) String() string {
	switch r {
	case RelLE:
		return "<="
	case RelGE:
		return ">="
	case RelLT:
		return "<"
	case RelGT:
		return ">"
	case RelEQ:
		return "="
	case RelNE:
		return "!="
	}
	return "?"
}

// Builder is the intake seam between the constraint translator and the
// propagator. It normalizes linear constraints to the `sum <= rhs` form the
// engine consumes, desugars equality, inequality, and small distinct
// constraints, and buffers clauses so that integration cannot conflict
// before Finalize flushes them.
//
// A Builder is only valid during Propagator.Init and must not be retained.
type Builder struct {
	init     PropagateInit
	prop     *Propagator
	clauses  [][]Lit
	minimize *Minimize
	seen     map[string]struct{}
}

func newBuilder(init PropagateInit, prop *Propagator, minimize *Minimize) *Builder {
	return &Builder{
		init:     init,
		prop:     prop,
		minimize: minimize,
		seen:     make(map[string]struct{}),
	}
}

// The Builder doubles as the clause creator handed to the integration
// routines: clauses are buffered and unit propagation is a no-op, so
// integration itself can never fail. Conflicts surface when Finalize
// flushes the buffer.

// AddLiteral allocates a fresh solver literal.
func (b *Builder) AddLiteral() Lit { return b.init.AddLiteral() }

// AddWatch watches the given solver literal.
func (b *Builder) AddWatch(lit Lit) { b.init.AddWatch(lit) }

// AddClause buffers a clause for Finalize.
func (b *Builder) AddClause(clause []Lit, _ ClauseFlag) bool {
	b.clauses = append(b.clauses, append([]Lit(nil), clause...))
	return true
}

// Propagate pretends to run unit propagation.
func (b *Builder) Propagate() bool { return true }

// Assignment returns the host's top-level assignment.
func (b *Builder) Assignment() Assignment { return b.init.Assignment() }

// SolverLiteral maps a program literal to a solver literal.
func (b *Builder) SolverLiteral(lit Lit) Lit { return b.init.SolverLiteral(lit) }

// normalizeElements folds constant terms into the right-hand side, combines
// duplicate variables, and drops zero coefficients. The element order of
// first appearance is kept.
func normalizeElements(elems []Element, rhs int64) ([]Element, int64) {
	out := make([]Element, 0, len(elems))
	index := make(map[string]int, len(elems))
	for _, e := range elems {
		if e.Coef == 0 {
			continue
		}
		if e.Var == "" {
			rhs -= e.Coef
			continue
		}
		if i, ok := index[e.Var]; ok {
			out[i].Coef += e.Coef
			continue
		}
		index[e.Var] = len(out)
		out = append(out, e)
	}
	return slicesDeleteZero(out), rhs
}

func slicesDeleteZero(elems []Element) []Element {
	n := removeIf(elems, func(e Element) bool { return e.Coef == 0 })
	return elems[:n]
}

func gcd64(x, y int64) int64 {
	x, y = abs64(x), abs64(y)
	for y != 0 {
		x, y = y, x%y
	}
	return x
}

// AddLinear adds the linear constraint `activation -> sum(elems) rel rhs`.
// With strict set the reverse implication holds as well. Elements may
// contain constants (empty variable name) and repeated variables; they are
// normalized away before the constraint reaches the engine.
func (b *Builder) AddLinear(literal Lit, elems []Element, rel Rel, rhs int64, strict bool) {
	elems, rhs = normalizeElements(elems, rhs)

	// divide by the gcd of the coefficients and the bound
	d := rhs
	for _, e := range elems {
		d = gcd64(d, e.Coef)
	}
	if d > 1 {
		for i := range elems {
			elems[i].Coef /= d
		}
		rhs /= d
	}

	if b.prop.cfg.SortConstraints {
		sort.SliceStable(elems, func(i, j int) bool {
			if elems[i].Var != elems[j].Var {
				return elems[i].Var < elems[j].Var
			}
			return elems[i].Coef < elems[j].Coef
		})
	}

	b.addNormalized(literal, elems, rel, rhs, strict)
}

// addNormalized rewrites the relation to the `<=` form, introducing
// auxiliary literals for equality and inequality.
func (b *Builder) addNormalized(literal Lit, elems []Element, rel Rel, rhs int64, strict bool) {
	switch rel {
	case RelGT:
		rel = RelGE
		rhs++
	case RelLT:
		rel = RelLE
		rhs--
	}

	if rel == RelGE {
		rel = RelLE
		rhs = -rhs
		elems = negateElements(elems)
	}

	switch rel {
	case RelLE:
		if strict && len(elems) == 1 {
			b.addConstraint(literal, elems, rhs, true)
			return
		}
		b.addConstraint(literal, elems, rhs, false)

	case RelEQ:
		a, c := literal, literal
		if strict {
			if b.Assignment().IsTrue(literal) {
				a, c = TrueLit, TrueLit
			} else {
				a = b.AddLiteral()
				c = b.AddLiteral()
			}
			// normalization does not propagate, so these cannot fail
			b.AddClause([]Lit{-literal, a}, 0)
			b.AddClause([]Lit{-literal, c}, 0)
			b.AddClause([]Lit{-a, -c, literal}, 0)
		}
		b.addNormalized(a, elems, RelLE, rhs, strict)
		b.addNormalized(c, elems, RelGE, rhs, strict)
		return

	case RelNE:
		if strict {
			b.addNormalized(-literal, elems, RelEQ, rhs, true)
			return
		}
		a := b.AddLiteral()
		c := b.AddLiteral()
		b.addNormalized(a, elems, RelLT, rhs, false)
		b.addNormalized(c, elems, RelGT, rhs, false)
		b.AddClause([]Lit{a, c, -literal}, 0)
		b.AddClause([]Lit{-a, -c}, 0)
		return
	}

	// the reverse implication of a strict `<=` constraint
	if strict {
		b.addNormalized(-literal, elems, RelGT, rhs, false)
	}
}

func negateElements(elems []Element) []Element {
	out := make([]Element, len(elems))
	for i, e := range elems {
		out[i] = Element{Coef: -e.Coef, Var: e.Var}
	}
	return out
}

// addConstraint registers a fully normalized `<=` constraint with the
// propagator. Singleton constraints are integrated directly through order
// literals; anything else gets a constraint state.
func (b *Builder) addConstraint(literal Lit, elems []Element, rhs int64, strict bool) {
	if !strict && b.Assignment().IsFalse(literal) {
		return
	}

	if b.prop.cfg.SortConstraints {
		key := constraintKey(literal, elems, rhs, strict)
		if _, ok := b.seen[key]; ok {
			return
		}
		b.seen[key] = struct{}{}
	}

	c := NewSumConstraint(literal, elems, rhs)
	if len(elems) == 1 {
		b.prop.addVariable(elems[0].Var)
		b.prop.addSimple(b, c, strict)
		return
	}
	if strict {
		panic("csp: strict constraint with more than one element")
	}
	b.prop.addSum(b, c)
}

func constraintKey(literal Lit, elems []Element, rhs int64, strict bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|%d|%t", literal, rhs, strict)
	for _, e := range elems {
		fmt.Fprintf(&sb, "|%d*%s", e.Coef, e.Var)
	}
	return sb.String()
}

// AddMinimize appends a term to the minimize objective. Constant terms use
// an empty variable name and end up in the objective's adjustment.
func (b *Builder) AddMinimize(co int64, varName string) {
	if b.minimize == nil {
		b.minimize = NewMinimize()
	}

	if varName != "" {
		b.prop.addVariable(varName)
	}

	if co == 0 {
		return
	}

	b.minimize.elements = append(b.minimize.elements, Element{Coef: co, Var: varName})
}

// AddDistinct adds a distinct constraint over the given terms. Constraints
// with up to two terms are desugared into opposing sum constraints; larger
// ones are handed to the distinct propagator.
func (b *Builder) AddDistinct(literal Lit, terms []DistinctTerm) {
	if b.Assignment().IsFalse(literal) {
		return
	}

	if len(terms) > 2 {
		for _, term := range terms {
			for _, e := range term.Elements {
				b.prop.addVariable(e.Var)
			}
		}
		b.prop.addDistinct(b, NewDistinct(literal, terms))
		return
	}

	for i, ti := range terms {
		for _, tj := range terms[i+1:] {
			// value(ti) != value(tj) with value = offset + sum
			rhs := tj.Offset - ti.Offset

			celems := make([]Element, 0, len(ti.Elements)+len(tj.Elements))
			celems = append(celems, ti.Elements...)
			celems = append(celems, negateElements(tj.Elements)...)
			celems, crhs := normalizeElements(celems, rhs)

			if len(celems) == 0 {
				if crhs == 0 {
					b.AddClause([]Lit{-literal}, 0)
					return
				}
				continue
			}

			a := b.AddLiteral()
			c := b.AddLiteral()

			b.AddClause([]Lit{a, c, -literal}, 0)
			b.AddClause([]Lit{-a, -c}, 0)

			b.addConstraint(a, celems, crhs-1, false)
			b.addConstraint(c, negateElements(celems), -crhs-1, false)
		}
	}
}

// AddDom adds the domain statement `activation -> var in union of [lo,hi)`.
func (b *Builder) AddDom(literal Lit, varName string, intervals [][2]int64) {
	if b.Assignment().IsFalse(literal) {
		return
	}

	b.prop.addVariable(varName)
	set := NewIntervalSet(intervals...)
	b.prop.addDom(b, literal, varName, set.Intervals())
}

// Finalize folds the minimize objective into normal form and flushes the
// buffered clauses. It returns false if the host reports a conflict.
func (b *Builder) Finalize() bool {
	if b.minimize != nil {
		var adjust int64
		b.minimize.elements, adjust = normalizeMinimize(b.minimize.elements)
		b.minimize.adjust += adjust
	}

	for _, clause := range b.clauses {
		if !b.init.AddClause(clause) || !b.init.Propagate() {
			return false
		}
	}
	b.clauses = nil

	return true
}

// normalizeMinimize combines duplicate variables and moves constant terms
// into the adjustment so that the reported objective value stays
// `sum - adjust`.
func normalizeMinimize(elems []Element) ([]Element, int64) {
	var adjust int64
	out := make([]Element, 0, len(elems))
	index := make(map[string]int, len(elems))
	for _, e := range elems {
		if e.Coef == 0 {
			continue
		}
		if e.Var == "" {
			adjust -= e.Coef
			continue
		}
		if i, ok := index[e.Var]; ok {
			out[i].Coef += e.Coef
			continue
		}
		index[e.Var] = len(out)
		out = append(out, e)
	}
	return slicesDeleteZero(out), adjust
}
