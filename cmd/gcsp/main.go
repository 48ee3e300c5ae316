// Command gcsp solves CSP instances described in YAML files with the gocsp
// propagation engine on top of the built-in DPLL host.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gitrdm/gocsp/internal/dpll"
	"github.com/gitrdm/gocsp/internal/parallel"
	"github.com/gitrdm/gocsp/pkg/csp"
)

var (
	flagVerbose   bool
	flagThreads   int
	flagMaxModels int
)

func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	return config.Build()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gcsp",
		Short:         "Integer constraint solving with an order-encoding propagator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	solveCmd := &cobra.Command{
		Use:   "solve <problem.yaml>",
		Short: "Enumerate the models of a problem",
		Args:  cobra.ExactArgs(1),
		RunE:  runSolve,
	}
	solveCmd.Flags().IntVarP(&flagThreads, "threads", "t", 1, "number of portfolio threads")
	solveCmd.Flags().IntVarP(&flagMaxModels, "models", "n", 0, "print at most n models (0 = all)")
	root.AddCommand(solveCmd)

	return root
}

func runSolve(cmd *cobra.Command, args []string) error {
	log, err := newLogger(flagVerbose)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	problem, err := LoadProblem(args[0])
	if err != nil {
		return err
	}

	cfg := problem.Config()
	prop, err := csp.NewPropagator(cfg, log)
	if err != nil {
		return err
	}
	if err := problem.Apply(prop); err != nil {
		return err
	}

	threads := flagThreads
	if threads < 1 {
		threads = 1
	}
	if problem.Minimize != nil && threads > 1 {
		log.Warn("optimization runs single threaded", zap.Int("requested", threads))
		threads = 1
	}

	solver := dpll.New(threads)
	solver.Register(prop)

	var models []dpll.Model
	if threads > 1 {
		models, err = parallel.Solve(context.Background(), solver, parallel.Config{Threads: threads})
		if err != nil {
			return err
		}
	} else {
		models, err = solver.Solve()
		if err != nil {
			return err
		}
	}

	step, _ := prop.Statistics()
	prop.LogStatistics(step)

	if len(models) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "UNSATISFIABLE")
		return nil
	}

	if problem.Minimize != nil {
		// branch and bound leaves the optimum as the last model
		models = models[len(models)-1:]
	}

	seen := make(map[string]bool, len(models))
	unique := models[:0]
	for _, m := range models {
		if key := dpll.ModelKey(m); !seen[key] {
			seen[key] = true
			unique = append(unique, m)
		}
	}
	models = unique

	dpll.SortModels(models)
	limit := len(models)
	if flagMaxModels > 0 && flagMaxModels < limit {
		limit = flagMaxModels
	}
	for i := 0; i < limit; i++ {
		fmt.Fprintf(cmd.OutOrStdout(), "Answer %d: %s\n", i+1, formatModel(models[i]))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "SATISFIABLE (%d models)\n", len(models))
	return nil
}

func formatModel(m dpll.Model) string {
	values := append([]csp.VarValue(nil), m.Values...)
	sort.Slice(values, func(i, j int) bool { return values[i].Var < values[j].Var })
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%s=%d", v.Var, v.Value)
	}
	return strings.Join(parts, " ")
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
