package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gitrdm/gocsp/pkg/csp"
)

// TermSpec is one coefficient/variable pair of a linear expression. An
// empty variable denotes a constant.
type TermSpec struct {
	Coef int64  `yaml:"coef"`
	Var  string `yaml:"var,omitempty"`
}

// SumSpec describes a linear constraint `terms rel rhs`.
type SumSpec struct {
	Terms []TermSpec `yaml:"terms"`
	Rel   string     `yaml:"rel"`
	RHS   int64      `yaml:"rhs"`
}

// DistinctTermSpec is one term of a distinct constraint.
type DistinctTermSpec struct {
	Offset int64      `yaml:"offset,omitempty"`
	Terms  []TermSpec `yaml:"terms"`
}

// DistinctSpec describes a pairwise-distinct constraint.
type DistinctSpec struct {
	Terms []DistinctTermSpec `yaml:"terms"`
}

// DomSpec restricts a variable to a union of half-open intervals.
type DomSpec struct {
	Var       string     `yaml:"var"`
	Intervals [][2]int64 `yaml:"intervals"`
}

// ConstraintSpec is a tagged union; exactly one field may be set.
type ConstraintSpec struct {
	Sum      *SumSpec      `yaml:"sum,omitempty"`
	Distinct *DistinctSpec `yaml:"distinct,omitempty"`
	Dom      *DomSpec      `yaml:"dom,omitempty"`
}

// MinimizeSpec describes the objective.
type MinimizeSpec struct {
	Terms []TermSpec `yaml:"terms"`
}

// Problem is the YAML representation of a CSP instance.
type Problem struct {
	MinInt      *int64           `yaml:"min_int,omitempty"`
	MaxInt      *int64           `yaml:"max_int,omitempty"`
	Constraints []ConstraintSpec `yaml:"constraints"`
	Minimize    *MinimizeSpec    `yaml:"minimize,omitempty"`
}

// LoadProblem reads a problem description from a YAML file.
func LoadProblem(path string) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading problem: %w", err)
	}
	var p Problem
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing problem %s: %w", path, err)
	}
	return &p, nil
}

// Config derives the propagator configuration from the problem bounds.
func (p *Problem) Config() csp.Config {
	cfg := csp.DefaultConfig()
	if p.MinInt != nil {
		cfg.MinInt = *p.MinInt
	}
	if p.MaxInt != nil {
		cfg.MaxInt = *p.MaxInt
	}
	return cfg
}

func parseRel(s string) (csp.Rel, error) {
	switch s {
	case "<=", "":
		return csp.RelLE, nil
	case ">=":
		return csp.RelGE, nil
	case "<":
		return csp.RelLT, nil
	case ">":
		return csp.RelGT, nil
	case "=", "==":
		return csp.RelEQ, nil
	case "!=":
		return csp.RelNE, nil
	}
	return 0, fmt.Errorf("unknown relation %q", s)
}

func elements(terms []TermSpec) []csp.Element {
	out := make([]csp.Element, len(terms))
	for i, t := range terms {
		out[i] = csp.Element{Coef: t.Coef, Var: t.Var}
	}
	return out
}

// Apply queues all constraints of the problem on the propagator.
func (p *Problem) Apply(prop *csp.Propagator) error {
	for i, c := range p.Constraints {
		set := 0
		if c.Sum != nil {
			set++
		}
		if c.Distinct != nil {
			set++
		}
		if c.Dom != nil {
			set++
		}
		if set != 1 {
			return fmt.Errorf("constraint %d: exactly one of sum, distinct, dom required", i)
		}

		switch {
		case c.Sum != nil:
			rel, err := parseRel(c.Sum.Rel)
			if err != nil {
				return fmt.Errorf("constraint %d: %w", i, err)
			}
			prop.AddSum(csp.TrueLit, elements(c.Sum.Terms), rel, c.Sum.RHS, false)

		case c.Distinct != nil:
			terms := make([]csp.DistinctTerm, len(c.Distinct.Terms))
			for j, dt := range c.Distinct.Terms {
				terms[j] = csp.DistinctTerm{Offset: dt.Offset, Elements: elements(dt.Terms)}
			}
			prop.AddDistinct(csp.TrueLit, terms)

		case c.Dom != nil:
			prop.AddDom(csp.TrueLit, c.Dom.Var, c.Dom.Intervals)
		}
	}

	if p.Minimize != nil {
		for _, t := range p.Minimize.Terms {
			prop.AddMinimizeTerm(t.Coef, t.Var)
		}
	}

	return nil
}
