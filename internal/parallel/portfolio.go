// Package parallel runs portfolio searches over several host threads. Each
// thread drives its own clone of the Boolean solver against the shared
// propagator; the per-thread propagator states never share mutable memory
// after initialization, so the threads only synchronize when merging
// models.
package parallel

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gitrdm/gocsp/internal/dpll"
)

// Config holds the portfolio settings.
type Config struct {
	// Threads is the number of solver clones to run. Zero or negative
	// defaults to the number of CPU cores.
	Threads int
}

// polarity returns the decision polarity policy of a thread. Thread zero
// keeps the default (branch false first); odd threads branch true first;
// the remaining threads alternate by variable parity, giving the portfolio
// distinct traversal orders of the same model set.
func polarity(thread int) func(v int) bool {
	switch {
	case thread == 0:
		return nil
	case thread%2 == 1:
		return func(int) bool { return true }
	default:
		return func(v int) bool { return v%2 == 0 }
	}
}

// Solve initializes one solving step on the base solver and searches it
// with the configured number of threads. The returned models are
// deduplicated and sorted canonically. The base solver must have been
// created with the same thread count.
func Solve(ctx context.Context, base *dpll.Solver, cfg Config) ([]dpll.Model, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	if !base.InitStep() {
		return nil, nil
	}

	solvers := make([]*dpll.Solver, threads)
	solvers[0] = base
	for i := 1; i < threads; i++ {
		solvers[i] = base.Clone(i)
	}
	for i, s := range solvers {
		s.Polarity = polarity(i)
	}

	var mu sync.Mutex
	merged := make(map[string]dpll.Model)

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range solvers {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			models := s.Search()
			mu.Lock()
			for _, m := range models {
				merged[dpll.ModelKey(m)] = m
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]dpll.Model, 0, len(merged))
	for _, k := range keys {
		out = append(out, merged[k])
	}
	return out, nil
}
