package csp

import "time"

// ThreadStats holds timing statistics of one solving thread. Times are wall
// clock measured with time.Since; precision follows the runtime clock.
type ThreadStats struct {
	TimePropagate time.Duration
	TimeCheck     time.Duration
	TimeUndo      time.Duration
}

// Reset returns all counters to zero.
func (t *ThreadStats) Reset() { *t = ThreadStats{} }

// Accu adds the counters of other to t.
func (t *ThreadStats) Accu(other ThreadStats) {
	t.TimePropagate += other.TimePropagate
	t.TimeCheck += other.TimeCheck
	t.TimeUndo += other.TimeUndo
}

// Stats aggregates propagator statistics over one solving step or, in the
// accumulated form, over all steps so far.
type Stats struct {
	NumVariables   int
	NumConstraints int
	TimeInit       time.Duration
	Threads        []ThreadStats
}

// Reset returns all counters to zero, keeping the thread slots.
func (s *Stats) Reset() {
	s.NumVariables = 0
	s.NumConstraints = 0
	s.TimeInit = 0
	for i := range s.Threads {
		s.Threads[i].Reset()
	}
}

// Accu adds the times of other to s and keeps the larger of the variable and
// constraint counts, growing the thread slots as needed.
func (s *Stats) Accu(other Stats) {
	if other.NumVariables > s.NumVariables {
		s.NumVariables = other.NumVariables
	}
	if other.NumConstraints > s.NumConstraints {
		s.NumConstraints = other.NumConstraints
	}
	s.TimeInit += other.TimeInit

	for len(s.Threads) < len(other.Threads) {
		s.Threads = append(s.Threads, ThreadStats{})
	}
	for i := range other.Threads {
		s.Threads[i].Accu(other.Threads[i])
	}
}
