package csp

// CheckMode controls when the host calls the propagator's Check callback.
type CheckMode int8

// Check modes requested via PropagateInit.SetCheckMode.
const (
	CheckModeOff      CheckMode = iota // never call Check
	CheckModeFixpoint                  // call Check at every propagation fixpoint
	CheckModeTotal                     // call Check on total assignments only
	CheckModeBoth                      // fixpoint and total
)

// ClauseFlag qualifies clauses added to the host.
type ClauseFlag uint8

const (
	// ClauseTag marks a clause as local to the current solving step. Tagged
	// clauses are removed when the next step starts.
	ClauseTag ClauseFlag = 1 << iota
	// ClauseLock excludes a clause from clause deletion.
	ClauseLock
)

// Assignment is the host's view of the current Boolean assignment.
type Assignment interface {
	// Value returns the three-valued truth of lit.
	Value(lit Lit) Truth
	// IsTrue reports whether lit is assigned true.
	IsTrue(lit Lit) bool
	// IsFalse reports whether lit is assigned false.
	IsFalse(lit Lit) bool
	// IsFixed reports whether lit is assigned on decision level zero.
	IsFixed(lit Lit) bool
	// HasLiteral reports whether lit is a valid literal of the assignment.
	HasLiteral(lit Lit) bool
	// Level returns the decision level on which lit was assigned. The
	// literal must be assigned.
	Level(lit Lit) int
	// DecisionLevel returns the current decision level.
	DecisionLevel() int
	// Trail returns the literals assigned so far, in assignment order. The
	// slice is owned by the host and only valid until the callback returns.
	Trail() []Lit
	// IsTotal reports whether every literal is assigned.
	IsTotal() bool
	// Size returns the number of assigned literals.
	Size() int
}

// PropagateInit is the host interface available during initialization. It
// mirrors the init object of the host's propagator contract: literals,
// watches, clauses and weight constraints may be added before search starts.
type PropagateInit interface {
	// AddLiteral allocates a fresh solver literal.
	AddLiteral() Lit
	// AddWatch requests a propagate callback when lit is assigned.
	AddWatch(lit Lit)
	// AddClause adds a problem clause. It returns false if the clause is
	// conflicting on decision level zero.
	AddClause(clause []Lit) bool
	// AddWeightConstraint adds the native constraint `lit <-> sum of weights
	// of true literals <= bound`. It returns false on immediate conflict.
	AddWeightConstraint(lit Lit, wlits []WeightedLit, bound int64) bool
	// Propagate runs unit propagation and returns false on conflict.
	Propagate() bool
	// Assignment returns the current (top-level) assignment.
	Assignment() Assignment
	// SolverLiteral maps a program literal to a solver literal.
	SolverLiteral(lit Lit) Lit
	// NumberOfThreads returns how many solving threads the host will run.
	NumberOfThreads() int
	// SetCheckMode configures when Check callbacks happen.
	SetCheckMode(mode CheckMode)
}

// PropagateControl is the host interface available during search callbacks.
type PropagateControl interface {
	// ThreadID identifies the solving thread issuing the callback.
	ThreadID() int
	// AddLiteral allocates a fresh solver literal.
	AddLiteral() Lit
	// AddWatch requests a propagate callback when lit is assigned.
	AddWatch(lit Lit)
	// AddClause adds a clause qualified by flags. It returns false if the
	// clause is conflicting under the current assignment.
	AddClause(clause []Lit, flags ClauseFlag) bool
	// Propagate runs unit propagation and returns false on conflict.
	Propagate() bool
	// Assignment returns the current assignment of the thread.
	Assignment() Assignment
}

// MinimizeAdder is an optional host capability. Hosts that natively optimize
// weighted literals may receive the minimize objective directly when the
// TranslateMinimize option is set.
type MinimizeAdder interface {
	// AddMinimizeLiteral registers weight for lit in the host's objective.
	AddMinimizeLiteral(lit Lit, weight int64)
}

// clauseCreator is the engine's uniform view of the two host phases. The
// init and control adapters normalize literal allocation, watches, clause
// addition, and assignment access so the propagation code does not care
// whether it runs during initialization or search.
type clauseCreator interface {
	AddLiteral() Lit
	AddWatch(lit Lit)
	AddClause(clause []Lit, flags ClauseFlag) bool
	Propagate() bool
	Assignment() Assignment
}

// initCC adapts PropagateInit to the clauseCreator interface. Clauses added
// during initialization are problem clauses; the tag and lock flags do not
// apply and unit propagation runs after every added clause.
type initCC struct {
	init PropagateInit
}

func newInitCC(init PropagateInit) *initCC { return &initCC{init: init} }

func (cc *initCC) AddLiteral() Lit { return cc.init.AddLiteral() }

func (cc *initCC) AddWatch(lit Lit) {
	cc.init.AddWatch(lit)
}

func (cc *initCC) AddClause(clause []Lit, flags ClauseFlag) bool {
	if flags&ClauseTag != 0 {
		panic("csp: tagged clause during initialization")
	}
	return cc.init.AddClause(clause) && cc.init.Propagate()
}

func (cc *initCC) Propagate() bool { return cc.init.Propagate() }

func (cc *initCC) Assignment() Assignment { return cc.init.Assignment() }

// AddWeightConstraint forwards a weight constraint to the host.
func (cc *initCC) AddWeightConstraint(lit Lit, wlits []WeightedLit, bound int64) bool {
	return cc.init.AddWeightConstraint(lit, wlits, bound)
}

// controlCC adapts PropagateControl to the clauseCreator interface.
type controlCC struct {
	control PropagateControl
}

func newControlCC(control PropagateControl) *controlCC { return &controlCC{control: control} }

func (cc *controlCC) AddLiteral() Lit { return cc.control.AddLiteral() }

func (cc *controlCC) AddWatch(lit Lit) { cc.control.AddWatch(lit) }

func (cc *controlCC) AddClause(clause []Lit, flags ClauseFlag) bool {
	return cc.control.AddClause(clause, flags) && cc.control.Propagate()
}

func (cc *controlCC) Propagate() bool { return cc.control.Propagate() }

func (cc *controlCC) Assignment() Assignment { return cc.control.Assignment() }
