package csp

import "fmt"

// removedEntry records a variable-to-constraint edge that was detached from
// the v2cs index while a constraint was inactive. The edge is reattached on
// undo.
type removedEntry struct {
	varName string
	co      int64
	cs      constraintState
}

// level captures the engine state local to one decision level: the
// variables whose bounds changed (for snapshot restoration), the constraints
// marked inactive, and the detached v2cs edges.
type level struct {
	level       int
	inactive    []constraintState
	removedV2cs []removedEntry
	undoUpper   *orderedSet[*VarState]
	undoLower   *orderedSet[*VarState]
}

func newLevel(dl int) *level {
	return &level{
		level:     dl,
		undoUpper: newOrderedSet[*VarState](),
		undoLower: newOrderedSet[*VarState](),
	}
}

// copyFrom rebuilds this frame from the frame of another thread state,
// mapping variable and constraint states into the receiver's state. Both
// frames must describe the same decision level.
func (l *level) copyFrom(s *State, other *level) {
	if l.level != other.level {
		panic("csp: level mismatch in state copy")
	}

	l.undoLower.Clear()
	for _, vs := range other.undoLower.Items() {
		l.undoLower.Add(s.varStateOf(vs.Name()))
	}

	l.undoUpper.Clear()
	for _, vs := range other.undoUpper.Items() {
		l.undoUpper.Add(s.varStateOf(vs.Name()))
	}

	l.inactive = l.inactive[:0]
	for _, cs := range other.inactive {
		l.inactive = append(l.inactive, s.constraintStateOf(cs.constraint()))
	}

	l.removedV2cs = l.removedV2cs[:0]
	for _, e := range other.removedV2cs {
		l.removedV2cs = append(l.removedV2cs, removedEntry{
			varName: e.varName,
			co:      e.co,
			cs:      s.constraintStateOf(e.cs.constraint()),
		})
	}
}

func (l *level) String() string {
	return fmt.Sprintf("%d:l=%v/u=%v", l.level, l.undoLower.Items(), l.undoUpper.Items())
}
