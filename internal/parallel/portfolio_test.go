package parallel

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gitrdm/gocsp/internal/dpll"
	"github.com/gitrdm/gocsp/pkg/csp"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func buildProblem(t *testing.T, threads int) *dpll.Solver {
	t.Helper()
	cfg := csp.DefaultConfig()
	cfg.MinInt, cfg.MaxInt = 0, 2
	prop, err := csp.NewPropagator(cfg, nil)
	require.NoError(t, err)

	prop.AddDistinct(csp.TrueLit, []csp.DistinctTerm{
		{Elements: []csp.Element{{Coef: 1, Var: "x"}}},
		{Elements: []csp.Element{{Coef: 1, Var: "y"}}},
		{Elements: []csp.Element{{Coef: 1, Var: "z"}}},
	})

	s := dpll.New(threads)
	s.Register(prop)
	return s
}

func TestPortfolioMatchesSingleThread(t *testing.T) {
	single, err := buildProblem(t, 1).Solve()
	require.NoError(t, err)
	dpll.SortModels(single)
	require.Len(t, single, 6)

	portfolio, err := Solve(context.Background(), buildProblem(t, 4), Config{Threads: 4})
	require.NoError(t, err)

	require.Len(t, portfolio, len(single))
	for i := range single {
		assert.Equal(t, dpll.ModelKey(single[i]), dpll.ModelKey(portfolio[i]))
	}
}

func TestPortfolioUnsatisfiable(t *testing.T) {
	cfg := csp.DefaultConfig()
	cfg.MinInt, cfg.MaxInt = 0, 1
	prop, err := csp.NewPropagator(cfg, nil)
	require.NoError(t, err)
	prop.AddDistinct(csp.TrueLit, []csp.DistinctTerm{
		{Elements: []csp.Element{{Coef: 1, Var: "x"}}},
		{Elements: []csp.Element{{Coef: 1, Var: "y"}}},
		{Elements: []csp.Element{{Coef: 1, Var: "z"}}},
	})

	s := dpll.New(2)
	s.Register(prop)
	models, err := Solve(context.Background(), s, Config{Threads: 2})
	require.NoError(t, err)
	assert.Empty(t, models)
}

func TestPortfolioDefaultsThreads(t *testing.T) {
	// threads <= 0 falls back to the CPU count; the solver is sized to match
	models, err := Solve(context.Background(), buildProblem(t, runtime.NumCPU()), Config{})
	require.NoError(t, err)
	assert.Len(t, models, 6)
}
