package csp_test

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrdm/gocsp/internal/dpll"
	"github.com/gitrdm/gocsp/pkg/csp"
)

// render turns a model into a canonical string like "@2 x=1 y=2", where @N
// is a true program atom.
func render(m dpll.Model) string {
	var parts []string
	for _, a := range m.TrueAtoms {
		parts = append(parts, fmt.Sprintf("@%d", a))
	}
	values := append([]csp.VarValue(nil), m.Values...)
	sort.Slice(values, func(i, j int) bool { return values[i].Var < values[j].Var })
	for _, v := range values {
		parts = append(parts, fmt.Sprintf("%s=%d", v.Var, v.Value))
	}
	return strings.Join(parts, " ")
}

// renderAll dedups and sorts the rendered models. Auxiliary literals can
// make the host enumerate the same projected model more than once, like any
// solver without projection would.
func renderAll(models []dpll.Model) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range models {
		key := render(m)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func config(lo, hi int64, mut ...func(*csp.Config)) csp.Config {
	cfg := csp.DefaultConfig()
	cfg.MinInt, cfg.MaxInt = lo, hi
	for _, f := range mut {
		f(&cfg)
	}
	return cfg
}

// solve runs one solving step for the given program.
func solve(t *testing.T, cfg csp.Config, build func(p *csp.Propagator, s *dpll.Solver)) []string {
	t.Helper()
	prop, err := csp.NewPropagator(cfg, nil)
	require.NoError(t, err)
	s := dpll.New(1)
	build(prop, s)
	s.Register(prop)
	models, err := s.Solve()
	require.NoError(t, err)
	return renderAll(models)
}

// solveBoth solves the program with and without translation to weight
// constraints and requires identical models.
func solveBoth(t *testing.T, lo, hi int64, build func(p *csp.Propagator, s *dpll.Solver)) []string {
	t.Helper()
	translated := solve(t, config(lo, hi), build)
	kept := solve(t, config(lo, hi, func(c *csp.Config) { c.WeightConstraintLimit = 0 }), build)
	require.Equal(t, kept, translated, "translation changed the model set")
	return translated
}

func TestSolveSingletonEquality(t *testing.T) {
	models := solveBoth(t, -20, 20, func(p *csp.Propagator, _ *dpll.Solver) {
		p.AddSum(csp.TrueLit, []csp.Element{{Coef: 1, Var: "x"}}, csp.RelEQ, 5, false)
	})
	assert.Equal(t, []string{"x=5"}, models)
}

func TestSolveIntervalFromFacts(t *testing.T) {
	models := solveBoth(t, -3, 3, func(p *csp.Propagator, _ *dpll.Solver) {
		p.AddSum(csp.TrueLit, []csp.Element{{Coef: 1, Var: "x"}}, csp.RelLE, 1, false)
		p.AddSum(csp.TrueLit, []csp.Element{{Coef: 1, Var: "x"}}, csp.RelGE, -1, false)
	})
	assert.Equal(t, []string{"x=-1", "x=0", "x=1"}, models)
}

func TestSolveCoupledSystem(t *testing.T) {
	models := solveBoth(t, -20, 20, func(p *csp.Propagator, _ *dpll.Solver) {
		p.AddSum(csp.TrueLit, []csp.Element{{1, "y"}, {-5, "x"}}, csp.RelLE, 0, false)
		p.AddSum(csp.TrueLit, []csp.Element{{-1, "y"}, {5, "x"}}, csp.RelLE, 0, false)
		p.AddSum(csp.TrueLit, []csp.Element{{15, "x"}}, csp.RelLE, 15, false)
		p.AddSum(csp.TrueLit, []csp.Element{{10, "x"}}, csp.RelLE, 7, false)
	})
	assert.Equal(t, []string{
		"x=-1 y=-5",
		"x=-2 y=-10",
		"x=-3 y=-15",
		"x=-4 y=-20",
		"x=0 y=0",
	}, models)
}

func TestSolveInconsistent(t *testing.T) {
	models := solveBoth(t, -20, 20, func(p *csp.Propagator, _ *dpll.Solver) {
		p.AddSum(csp.TrueLit, []csp.Element{{1, "x"}, {-1, "y"}}, csp.RelLE, -1, false)
		p.AddSum(csp.TrueLit, []csp.Element{{1, "y"}, {-1, "x"}}, csp.RelLE, -1, false)
	})
	assert.Empty(t, models)
}

func TestSolveDifference(t *testing.T) {
	models := solveBoth(t, 0, 2, func(p *csp.Propagator, _ *dpll.Solver) {
		p.AddDifference(csp.TrueLit, "x", "y", -1, false)
	})
	assert.Equal(t, []string{
		"x=0 y=1",
		"x=0 y=2",
		"x=1 y=2",
	}, models)
}

func TestSolveDistinctPair(t *testing.T) {
	models := solveBoth(t, 0, 1, func(p *csp.Propagator, _ *dpll.Solver) {
		p.AddDistinct(csp.TrueLit, []csp.DistinctTerm{
			{Elements: []csp.Element{{1, "x"}}},
			{Elements: []csp.Element{{1, "y"}}},
		})
	})
	assert.Equal(t, []string{"x=0 y=1", "x=1 y=0"}, models)
}

func TestSolveDistinctCoefficients(t *testing.T) {
	models := solveBoth(t, 2, 3, func(p *csp.Propagator, _ *dpll.Solver) {
		p.AddDistinct(csp.TrueLit, []csp.DistinctTerm{
			{Elements: []csp.Element{{2, "x"}}},
			{Elements: []csp.Element{{3, "y"}}},
		})
	})
	assert.Equal(t, []string{"x=2 y=2", "x=2 y=3", "x=3 y=3"}, models)
}

func TestSolveDistinctThreeTerms(t *testing.T) {
	models := solveBoth(t, 0, 2, func(p *csp.Propagator, _ *dpll.Solver) {
		p.AddDistinct(csp.TrueLit, []csp.DistinctTerm{
			{Elements: []csp.Element{{1, "x"}}},
			{Elements: []csp.Element{{1, "y"}}},
			{Elements: []csp.Element{{1, "z"}}},
		})
	})
	assert.Equal(t, []string{
		"x=0 y=1 z=2",
		"x=0 y=2 z=1",
		"x=1 y=0 z=2",
		"x=1 y=2 z=0",
		"x=2 y=0 z=1",
		"x=2 y=1 z=0",
	}, models)
}

func TestSolveWeightedEquality(t *testing.T) {
	models := solveBoth(t, -3, 3, func(p *csp.Propagator, _ *dpll.Solver) {
		p.AddSum(csp.TrueLit, []csp.Element{{5, "x"}, {10, "y"}}, csp.RelEQ, 20, false)
	})
	assert.Equal(t, []string{"x=-2 y=3", "x=0 y=2", "x=2 y=1"}, models)
}

func TestSolveActivationChoice(t *testing.T) {
	models := solveBoth(t, -6, 6, func(p *csp.Propagator, s *dpll.Solver) {
		a := s.NewAtom()
		p.AddSum(a, []csp.Element{{1, "x"}}, csp.RelLE, -5, false)
		p.AddSum(-a, []csp.Element{{-1, "x"}}, csp.RelLE, -5, false)
	})
	assert.Equal(t, []string{
		"@2 x=-5",
		"@2 x=-6",
		"x=5",
		"x=6",
	}, models)
}

func TestSolveStrictBodyAtom(t *testing.T) {
	models := solveBoth(t, 0, 2, func(p *csp.Propagator, s *dpll.Solver) {
		a := s.NewAtom()
		p.AddSum(a, []csp.Element{{1, "x"}}, csp.RelLE, 1, true)
	})
	assert.Equal(t, []string{"@2 x=0", "@2 x=1", "x=2"}, models)
}

func TestSolveStrictConstraintEnforced(t *testing.T) {
	// :- not a. with a :- &sum { x } <= 1.
	models := solveBoth(t, 0, 2, func(p *csp.Propagator, s *dpll.Solver) {
		a := s.NewAtom()
		s.AddProgramClause(a)
		p.AddSum(a, []csp.Element{{1, "x"}}, csp.RelLE, 1, true)
	})
	assert.Equal(t, []string{"@2 x=0", "@2 x=1"}, models)
}

func TestSolveDomain(t *testing.T) {
	models := solveBoth(t, -20, 20, func(p *csp.Propagator, _ *dpll.Solver) {
		p.AddDom(csp.TrueLit, "x", [][2]int64{{1, 3}, {4, 6}, {7, 9}})
	})
	assert.Equal(t, []string{"x=1", "x=2", "x=4", "x=5", "x=7", "x=8"}, models)
}

func TestSolveEmptySums(t *testing.T) {
	t.Run("trivially true", func(t *testing.T) {
		models := solveBoth(t, 0, 0, func(p *csp.Propagator, _ *dpll.Solver) {
			p.AddSum(csp.TrueLit, []csp.Element{{1, ""}}, csp.RelLE, 2, false)
		})
		assert.Equal(t, []string{""}, models)
	})
	t.Run("trivially false", func(t *testing.T) {
		models := solveBoth(t, 0, 0, func(p *csp.Propagator, _ *dpll.Solver) {
			p.AddSum(csp.TrueLit, []csp.Element{{2, ""}}, csp.RelLE, 1, false)
		})
		assert.Empty(t, models)
	})
}

func TestSolveMinimize(t *testing.T) {
	run := func(t *testing.T, constant int64) []dpll.Model {
		t.Helper()
		prop, err := csp.NewPropagator(config(0, 3), nil)
		require.NoError(t, err)
		s := dpll.New(1)
		// x + y >= 5, minimize x + 2y (+ constant)
		prop.AddSum(csp.TrueLit, []csp.Element{{1, "x"}, {1, "y"}}, csp.RelGE, 5, false)
		prop.AddMinimizeTerm(1, "x")
		prop.AddMinimizeTerm(2, "y")
		if constant != 0 {
			prop.AddMinimizeTerm(constant, "")
		}
		s.Register(prop)
		models, err := s.Solve()
		require.NoError(t, err)
		require.NotEmpty(t, models)
		return models
	}

	objective := func(m dpll.Model, constant int64) int64 {
		vals := make(map[string]int64)
		for _, v := range m.Values {
			vals[v.Var] = v.Value
		}
		return vals["x"] + 2*vals["y"] + constant
	}

	t.Run("finds the optimum", func(t *testing.T) {
		models := run(t, 0)
		last := models[len(models)-1]
		assert.Equal(t, int64(7), objective(last, 0))
		for _, m := range models {
			assert.GreaterOrEqual(t, objective(m, 0), int64(7))
		}
	})

	t.Run("constant shifts the objective", func(t *testing.T) {
		models := run(t, 5)
		last := models[len(models)-1]
		assert.Equal(t, int64(12), objective(last, 5))
	})

	t.Run("descent is strictly improving", func(t *testing.T) {
		models := run(t, 0)
		for i := 1; i < len(models); i++ {
			assert.Less(t, objective(models[i], 0), objective(models[i-1], 0))
		}
	})
}

func TestSolveGuardedSum(t *testing.T) {
	// {a}. with a -> x + y <= 0
	models := solveBoth(t, 0, 1, func(p *csp.Propagator, s *dpll.Solver) {
		a := s.NewAtom()
		p.AddSum(a, []csp.Element{{1, "x"}, {1, "y"}}, csp.RelLE, 0, false)
	})
	assert.Equal(t, []string{
		"@2 x=0 y=0",
		"x=0 y=0",
		"x=0 y=1",
		"x=1 y=0",
		"x=1 y=1",
	}, models)
}

func TestSolveMultiShotMultiElement(t *testing.T) {
	prop, err := csp.NewPropagator(config(0, 3), nil)
	require.NoError(t, err)
	s := dpll.New(1)
	s.Register(prop)

	prop.AddSum(csp.TrueLit, []csp.Element{{1, "x"}, {1, "y"}}, csp.RelLE, 3, false)
	models, err := s.Solve()
	require.NoError(t, err)
	assert.Len(t, renderAll(models), 10)

	prop.AddSum(csp.TrueLit, []csp.Element{{1, "x"}, {1, "y"}}, csp.RelGE, 3, false)
	models, err = s.Solve()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"x=0 y=3",
		"x=1 y=2",
		"x=2 y=1",
		"x=3 y=0",
	}, renderAll(models))
}

func TestSolveMultiShotTightening(t *testing.T) {
	prop, err := csp.NewPropagator(config(0, 3), nil)
	require.NoError(t, err)
	s := dpll.New(1)
	s.Register(prop)

	step := func() []string {
		models, err := s.Solve()
		require.NoError(t, err)
		return renderAll(models)
	}

	prop.AddSum(csp.TrueLit, []csp.Element{{1, "x"}}, csp.RelLE, 2, false)
	assert.Equal(t, []string{"x=0", "x=1", "x=2"}, step())

	prop.AddSum(csp.TrueLit, []csp.Element{{1, "x"}}, csp.RelLE, 1, false)
	assert.Equal(t, []string{"x=0", "x=1"}, step())

	prop.AddSum(csp.TrueLit, []csp.Element{{1, "x"}}, csp.RelLE, 0, false)
	assert.Equal(t, []string{"x=0"}, step())

	// facts learned in earlier steps persist: weakening cannot undo them
	prop.AddSum(csp.TrueLit, []csp.Element{{1, "x"}}, csp.RelLE, 2, false)
	assert.Equal(t, []string{"x=0"}, step())
}

func TestSolveMultiShotConflict(t *testing.T) {
	prop, err := csp.NewPropagator(config(0, 3), nil)
	require.NoError(t, err)
	s := dpll.New(1)
	s.Register(prop)

	prop.AddSum(csp.TrueLit, []csp.Element{{1, "x"}}, csp.RelGE, 2, false)
	models, err := s.Solve()
	require.NoError(t, err)
	assert.Len(t, renderAll(models), 2)

	prop.AddSum(csp.TrueLit, []csp.Element{{1, "x"}}, csp.RelLE, 1, false)
	models, err = s.Solve()
	require.NoError(t, err)
	assert.Empty(t, models)
}

func TestSolveChainedAndDirectPropagation(t *testing.T) {
	// a system whose propagation repeatedly tightens bounds; exercised with
	// chained propagation disabled as well
	for _, chain := range []bool{true, false} {
		name := "chain"
		if !chain {
			name = "direct"
		}
		t.Run(name, func(t *testing.T) {
			models := solve(t, config(-20, 20, func(c *csp.Config) { c.PropagateChain = chain }),
				func(p *csp.Propagator, _ *dpll.Solver) {
					p.AddSum(csp.TrueLit, []csp.Element{{1, "y"}, {-5, "x"}}, csp.RelLE, 0, false)
					p.AddSum(csp.TrueLit, []csp.Element{{-1, "y"}, {5, "x"}}, csp.RelLE, 0, false)
					p.AddSum(csp.TrueLit, []csp.Element{{15, "x"}}, csp.RelLE, 15, false)
					p.AddSum(csp.TrueLit, []csp.Element{{10, "x"}}, csp.RelLE, 7, false)
				})
			assert.Len(t, models, 5)
		})
	}
}

func TestSolveConfigVariants(t *testing.T) {
	build := func(p *csp.Propagator, _ *dpll.Solver) {
		p.AddSum(csp.TrueLit, []csp.Element{{5, "x"}, {10, "y"}}, csp.RelEQ, 20, false)
		p.AddDistinct(csp.TrueLit, []csp.DistinctTerm{
			{Elements: []csp.Element{{1, "x"}}},
			{Elements: []csp.Element{{1, "y"}}},
			{Offset: 1, Elements: []csp.Element{{1, "y"}}},
		})
	}
	want := solve(t, config(-3, 3), build)
	require.NotEmpty(t, want)

	variants := map[string]func(*csp.Config){
		"no refine reasons":   func(c *csp.Config) { c.RefineReasons = false },
		"no refine introduce": func(c *csp.Config) { c.RefineIntroduce = false },
		"no sorting":          func(c *csp.Config) { c.SortConstraints = false },
		"clause limit":        func(c *csp.Config) { c.ClauseLimit = 1 },
		"literals only":       func(c *csp.Config) { c.LiteralsOnly = true },
		"check state":         func(c *csp.Config) { c.CheckState = true },
		"no translation":      func(c *csp.Config) { c.WeightConstraintLimit = 0 },
	}
	for name, mut := range variants {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, solve(t, config(-3, 3, mut), build))
		})
	}
}
