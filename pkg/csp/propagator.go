package csp

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Propagator is the facade registered with the host solver. It owns the
// global constraint program, one propagation State per solving thread, and
// the bound of the minimize objective.
//
// Constraint directives are queued with the Add methods and integrated by
// the next Init call, which the host issues once per solving step before
// search. The remaining callbacks dispatch to the state of the calling
// thread. Only Init and the Add methods touch shared data; the host
// guarantees they are not called concurrently with search callbacks.
type Propagator struct {
	cfg Config
	log *zap.Logger

	// l2c maps activation literals to their constraints. The map is shared
	// with all thread states.
	l2c     map[Lit][]Constraint
	states  []*State
	vars    *orderedSet[string]
	program []func(*Builder)

	minimize         *Minimize
	minimizeBound    int64
	hasMinimizeBound bool

	statsStep Stats
	statsAccu Stats
}

// NewPropagator creates a propagator with the given configuration. A nil
// logger disables logging.
func NewPropagator(cfg Config, log *zap.Logger) (*Propagator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Propagator{
		cfg:  cfg,
		log:  log,
		l2c:  make(map[Lit][]Constraint),
		vars: newOrderedSet[string](),
	}, nil
}

// Config returns the propagator's configuration.
func (p *Propagator) Config() Config { return p.cfg }

// state returns the state of the given thread, growing the registry as
// needed.
func (p *Propagator) state(threadID int) *State {
	for len(p.states) <= threadID {
		p.states = append(p.states, newState(&p.cfg, p.l2c))
	}
	return p.states[threadID]
}

// AddSum queues the linear constraint `activation -> sum(elems) rel rhs`
// for the next Init; with strict set, the reverse implication holds too.
func (p *Propagator) AddSum(literal Lit, elems []Element, rel Rel, rhs int64, strict bool) {
	elems = append([]Element(nil), elems...)
	p.program = append(p.program, func(b *Builder) {
		b.AddLinear(b.SolverLiteral(literal), elems, rel, rhs, strict)
	})
}

// AddDifference queues the difference constraint `activation -> u - v <= rhs`.
func (p *Propagator) AddDifference(literal Lit, u, v string, rhs int64, strict bool) {
	p.AddSum(literal, []Element{{Coef: 1, Var: u}, {Coef: -1, Var: v}}, RelLE, rhs, strict)
}

// AddDistinct queues a distinct constraint over the given terms.
func (p *Propagator) AddDistinct(literal Lit, terms []DistinctTerm) {
	terms = append([]DistinctTerm(nil), terms...)
	p.program = append(p.program, func(b *Builder) {
		b.AddDistinct(b.SolverLiteral(literal), terms)
	})
}

// AddDom queues the domain statement `activation -> var in union of [lo,hi)`.
func (p *Propagator) AddDom(literal Lit, varName string, intervals [][2]int64) {
	intervals = append([][2]int64(nil), intervals...)
	p.program = append(p.program, func(b *Builder) {
		b.AddDom(b.SolverLiteral(literal), varName, intervals)
	})
}

// AddMinimizeTerm queues one term of the minimize objective. An empty
// variable name adds a constant.
func (p *Propagator) AddMinimizeTerm(co int64, varName string) {
	p.program = append(p.program, func(b *Builder) {
		b.AddMinimize(co, varName)
	})
}

// addVariable registers a variable on the master state.
func (p *Propagator) addVariable(varName string) {
	if p.vars.Add(varName) {
		p.state(0).addVariable(varName)
	}
}

// addSum registers a sum-shaped constraint with the master state.
func (p *Propagator) addSum(cc clauseCreator, c sumLike) {
	lit := c.ActivationLiteral()
	cc.AddWatch(lit)
	p.l2c[lit] = append(p.l2c[lit], c)
	for _, e := range c.Elements() {
		p.addVariable(e.Var)
	}
	p.state(0).addConstraint(c)
	p.statsStep.NumConstraints++
}

// addSimple integrates a singleton constraint through order literals.
func (p *Propagator) addSimple(cc clauseCreator, c *SumConstraint, strict bool) bool {
	return p.state(0).integrateSimple(cc, c, strict)
}

// addDistinct registers a distinct constraint with the master state.
func (p *Propagator) addDistinct(cc clauseCreator, d *Distinct) {
	lit := d.ActivationLiteral()
	cc.AddWatch(lit)
	p.l2c[lit] = append(p.l2c[lit], d)
	p.state(0).addDistinct(d)
	p.statsStep.NumConstraints++
}

// addDom integrates a domain statement on the master state.
func (p *Propagator) addDom(cc clauseCreator, literal Lit, varName string, intervals [][2]int64) bool {
	return p.state(0).integrateDomain(cc, literal, varName, intervals)
}

// addMinimize installs the minimize objective.
func (p *Propagator) addMinimize(cc clauseCreator, m *Minimize) {
	p.minimize = m
	p.addSum(cc, m)
}

// removeMinimize detaches the minimize objective of the previous step.
func (p *Propagator) removeMinimize() *Minimize {
	m := p.minimize
	p.minimize = nil
	if m == nil {
		return nil
	}
	lit := m.ActivationLiteral()
	vec := p.l2c[lit]
	for i, c := range vec {
		if c == Constraint(m) {
			p.l2c[lit] = append(vec[:i], vec[i+1:]...)
			break
		}
	}
	if len(p.l2c[lit]) == 0 {
		delete(p.l2c, lit)
	}
	p.state(0).removeConstraint(m)
	return m
}

// HasMinimize reports whether a minimize objective is installed.
func (p *Propagator) HasMinimize() bool { return p.minimize != nil }

// Init extracts the queued constraint directives, reconciles the thread
// states of the previous solving step, simplifies the master state,
// translates small constraints to host weight constraints, and clones the
// master for all other threads. It returns false if the problem is
// conflicting on the top level; the host then concludes unsatisfiability.
func (p *Propagator) Init(init PropagateInit) bool {
	start := time.Now()
	defer func() { p.statsStep.TimeInit += time.Since(start) }()

	init.SetCheckMode(CheckModeFixpoint)
	cc := newInitCC(init)

	// the minimize objective is re-added with the new bounds below
	minimize := p.removeMinimize()

	// drop solve-step local literals and remap top-level facts
	for _, s := range p.states {
		s.update(cc)
	}

	// integrate the queued directives
	b := newBuilder(init, p, minimize)
	program := p.program
	p.program = nil
	for _, directive := range program {
		directive(b)
	}
	if !b.Finalize() {
		return false
	}
	p.statsStep.NumVariables = p.vars.Len()

	master := p.state(0)

	// gather bounds discovered by the other threads in the previous step
	for _, s := range p.states[1:] {
		if !master.updateBounds(cc, s) {
			return false
		}
	}

	// propagate the newly added constraints
	if !master.simplify(cc) {
		return false
	}

	// remove literals made redundant by simplification
	if !master.cleanupLiterals(cc) {
		return false
	}

	// translate small enough constraints to weight constraints
	translated := 0
	lits := make([]Lit, 0, len(p.l2c))
	for lit := range p.l2c {
		lits = append(lits, lit)
	}
	sort.Slice(lits, func(i, j int) bool { return lits[i] < lits[j] })
	for _, lit := range lits {
		constraints := p.l2c[lit]
		j := 0
		for _, c := range constraints {
			ok, removed := master.constraintStateOf(c).translate(cc, master)
			if !ok {
				return false
			}
			if removed {
				translated++
				continue
			}
			constraints[j] = c
			j++
		}
		if j == 0 {
			delete(p.l2c, lit)
		} else {
			p.l2c[lit] = constraints[:j]
		}
	}

	// The minimize objective is added last so that its tagged clauses
	// cannot be triggered transitively by the translation.
	if b.minimize != nil {
		if ma, native := init.(MinimizeAdder); p.cfg.TranslateMinimize && native {
			p.translateMinimize(ma, cc, master, b.minimize)
		} else {
			p.addMinimize(cc, b.minimize)
		}
	}

	// clone the master state for the other threads
	n := init.NumberOfThreads()
	if len(p.states) > n {
		p.states = p.states[:n]
	}
	for i := 1; i < n; i++ {
		p.state(i).copyFrom(master)
	}

	p.log.Debug("propagator initialized",
		zap.Int("variables", p.vars.Len()),
		zap.Int("constraints", p.statsStep.NumConstraints),
		zap.Int("translated", translated),
		zap.Int("threads", n),
	)

	return true
}

// translateMinimize hands the objective to the host's native optimization.
// Integer terms are decomposed over order literals: a variable x with
// bounds [lb,ub] contributes `co` for every value v in [lb,ub) whose order
// literal is false. The constant part `co*lb - adjust` shifts all models
// equally and is left to the caller querying the objective.
func (p *Propagator) translateMinimize(ma MinimizeAdder, cc *initCC, master *State, m *Minimize) {
	for _, e := range m.elements {
		vs := master.varStateOf(e.Var)
		for v := vs.LowerBound(); v < vs.UpperBound(); v++ {
			ma.AddMinimizeLiteral(-master.getLiteral(vs, v, cc), e.Coef)
		}
	}
}

// Propagate integrates newly assigned watched literals on the calling
// thread. It returns false on conflict.
func (p *Propagator) Propagate(control PropagateControl, changes []Lit) bool {
	return p.state(control.ThreadID()).propagate(newControlCC(control), changes)
}

// Check propagates queued constraints and pending facts to a fixpoint. On
// total assignments it introduces an order literal for an unassigned
// variable, giving the host a new branching decision. It returns false on
// conflict.
func (p *Propagator) Check(control PropagateControl) bool {
	ass := control.Assignment()
	size := ass.Size()
	s := p.state(control.ThreadID())

	if p.minimize != nil && p.hasMinimizeBound {
		s.updateMinimizeBound(p.minimize, ass.DecisionLevel(), p.minimizeBound+p.minimize.adjust)
	}

	cc := newControlCC(control)
	if !s.check(cc) {
		return false
	}

	// If check introduced new literals, they are watched and guarantee a
	// follow-up propagate call; fresh branching literals can wait.
	if size == ass.Size() && ass.IsTotal() {
		s.checkFull(cc)
	}

	return true
}

// Undo reverts the topmost decision level of the given thread. It must not
// fail.
func (p *Propagator) Undo(threadID int, _ Assignment, _ []Lit) {
	p.state(threadID).undo()
}

// GetAssignment returns the variable values of the given thread. Should be
// called on total assignments, where lower and upper bounds coincide.
func (p *Propagator) GetAssignment(threadID int) []VarValue {
	return p.state(threadID).assignmentValues()
}

// GetValue returns the value of a variable on the given thread.
func (p *Propagator) GetValue(varName string, threadID int) int64 {
	return p.state(threadID).value(varName)
}

// GetMinimizeValue evaluates the minimize objective on the given thread.
// Should be called on total assignments.
func (p *Propagator) GetMinimizeValue(threadID int) int64 {
	if p.minimize == nil {
		panic("csp: no minimize objective")
	}
	var bound int64
	for _, e := range p.minimize.elements {
		bound += e.Coef * p.state(threadID).value(e.Var)
	}
	return bound - p.minimize.adjust
}

// UpdateMinimize sets the bound of the minimize objective. The engine
// enforces `objective <= bound` from the next check on.
func (p *Propagator) UpdateMinimize(bound int64) {
	if p.minimize == nil {
		panic("csp: no minimize objective")
	}
	p.minimizeBound = bound
	p.hasMinimizeBound = true
}

// OnModel reports a model found on the given thread, tightening the
// minimize bound so that only strictly better models remain.
func (p *Propagator) OnModel(threadID int) {
	if p.minimize == nil {
		return
	}
	value := p.GetMinimizeValue(threadID)
	if !p.hasMinimizeBound || value-1 < p.minimizeBound {
		p.UpdateMinimize(value - 1)
	}
}

// Statistics gathers the per-thread statistics into the step statistics,
// folds them into the accumulated statistics, and returns both. The step
// and thread counters are reset afterwards.
func (p *Propagator) Statistics() (step, accu Stats) {
	p.statsStep.Threads = p.statsStep.Threads[:0]
	for _, s := range p.states {
		p.statsStep.Threads = append(p.statsStep.Threads, s.stats)
	}
	p.statsAccu.Accu(p.statsStep)

	step = p.statsStep
	step.Threads = append([]ThreadStats(nil), p.statsStep.Threads...)
	accu = p.statsAccu
	accu.Threads = append([]ThreadStats(nil), p.statsAccu.Threads...)

	p.statsStep.Reset()
	for _, s := range p.states {
		s.stats.Reset()
	}

	return step, accu
}

// LogStatistics writes a statistics summary through the propagator logger.
func (p *Propagator) LogStatistics(step Stats) {
	fields := []zap.Field{
		zap.Int("variables", step.NumVariables),
		zap.Int("constraints", step.NumConstraints),
		zap.Duration("time_init", step.TimeInit),
	}
	for i, t := range step.Threads {
		fields = append(fields,
			zap.Duration(fmt.Sprintf("thread_%d_propagate", i), t.TimePropagate),
			zap.Duration(fmt.Sprintf("thread_%d_check", i), t.TimeCheck),
			zap.Duration(fmt.Sprintf("thread_%d_undo", i), t.TimeUndo),
		)
	}
	p.log.Info("solving step finished", fields...)
}
