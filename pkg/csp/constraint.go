package csp

import (
	"fmt"
	"strings"
)

// Constraint is the common interface of the constraint records handed to the
// propagation engine: sum constraints, distinct constraints, and the
// minimize objective. Constraint values are immutable after construction and
// shared by all thread states; per-thread bookkeeping lives in the
// constraint states.
type Constraint interface {
	// ActivationLiteral returns the host literal whose truth switches the
	// constraint on.
	ActivationLiteral() Lit
}

// SumConstraint represents `activation -> c_0*x_0 + ... + c_n*x_n <= rhs`.
type SumConstraint struct {
	literal  Lit
	elements []Element
	rhs      int64
}

// NewSumConstraint creates a sum constraint. The elements must be free of
// constant terms and duplicate variables; the Builder establishes this
// normal form.
func NewSumConstraint(literal Lit, elements []Element, rhs int64) *SumConstraint {
	return &SumConstraint{literal: literal, elements: elements, rhs: rhs}
}

// ActivationLiteral returns the literal guarding the constraint.
func (c *SumConstraint) ActivationLiteral() Lit { return c.literal }

// Elements returns the coefficient/variable pairs of the constraint.
func (c *SumConstraint) Elements() []Element { return c.elements }

// bound returns the right-hand side. Sum constraints always have one.
func (c *SumConstraint) bound(*State) (int64, bool) { return c.rhs, true }

func (c *SumConstraint) tagged() bool    { return false }
func (c *SumConstraint) removable() bool { return true }

func (c *SumConstraint) String() string {
	var b strings.Builder
	for i, e := range c.elements {
		if i > 0 {
			b.WriteString(" + ")
		}
		fmt.Fprintf(&b, "%d*%s", e.Coef, e.Var)
	}
	fmt.Fprintf(&b, " <= %d", c.rhs)
	return b.String()
}

// Minimize represents the linear objective `minimize c_0*x_0 + ... - adjust`.
// It is propagated like a sum constraint whose right-hand side is the
// current minimize bound of the thread state; the bound tightens as the host
// reports models. The activation literal is the constant true literal and
// its propagation clauses are tagged so they vanish between solve steps.
type Minimize struct {
	elements []Element
	adjust   int64
}

// NewMinimize creates an empty minimize objective.
func NewMinimize() *Minimize { return &Minimize{} }

// ActivationLiteral of a minimize objective is the constant true literal.
func (c *Minimize) ActivationLiteral() Lit { return TrueLit }

// Elements returns the terms of the objective.
func (c *Minimize) Elements() []Element { return c.elements }

// Adjust returns the constant normalization term of the objective.
func (c *Minimize) Adjust() int64 { return c.adjust }

// bound returns the current minimize bound of the state, if one is set.
func (c *Minimize) bound(s *State) (int64, bool) { return s.minimizeBound, s.hasMinimizeBound }

func (c *Minimize) tagged() bool    { return true }
func (c *Minimize) removable() bool { return false }

// sumLike is the shared shape of sum and minimize constraints as seen by the
// sum propagation code.
type sumLike interface {
	Constraint
	Elements() []Element
	bound(*State) (int64, bool)
	tagged() bool
	removable() bool
}

// DistinctTerm is one term `offset + c_0*x_0 + ... + c_n*x_n` of a distinct
// constraint.
type DistinctTerm struct {
	Offset   int64
	Elements []Element
}

// Distinct represents `activation -> terms pairwise distinct`.
type Distinct struct {
	literal Lit
	terms   []DistinctTerm
}

// NewDistinct creates a distinct constraint over the given terms.
func NewDistinct(literal Lit, terms []DistinctTerm) *Distinct {
	return &Distinct{literal: literal, terms: terms}
}

// ActivationLiteral returns the literal guarding the constraint.
func (c *Distinct) ActivationLiteral() Lit { return c.literal }

// Terms returns the linear terms that must be pairwise distinct.
func (c *Distinct) Terms() []DistinctTerm { return c.terms }
