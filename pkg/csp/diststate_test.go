package csp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// distinctFixture builds a state with a distinct constraint over the
// variables, each ranging over [0,max].
func distinctFixture(max int64, vars ...string) (*State, *mockHost, *Distinct) {
	s, h := newTestState(func(c *Config) { c.MinInt, c.MaxInt = 0, max })
	var terms []DistinctTerm
	for _, v := range vars {
		s.addVariable(v)
		terms = append(terms, DistinctTerm{Elements: []Element{{1, v}}})
	}
	d := NewDistinct(TrueLit, terms)
	s.addDistinct(d)
	return s, h, d
}

// fix forces var to the given value with level-zero facts.
func fix(t *testing.T, s *State, h *mockHost, varName string, value int64) {
	t.Helper()
	cc := newInitCC(h)
	vs := s.varStateOf(varName)
	if value > vs.MinBound() {
		ok, _ := s.updateLiteral(vs, value-1, cc, TruthFalse)
		require.True(t, ok)
	}
	if value < vs.MaxBound() {
		ok, _ := s.updateLiteral(vs, value, cc, TruthTrue)
		require.True(t, ok)
	}
}

func TestDistinctInitBounds(t *testing.T) {
	s, _, d := distinctFixture(3, "x", "y")
	ds := s.constraintStateOf(d).(*distinctState)

	assert.Equal(t, [2]int64{0, 3}, ds.assigned[0])
	assert.Equal(t, [2]int64{0, 3}, ds.assigned[1])
	assert.ElementsMatch(t, []int{0, 1}, ds.mapLower[0])
	assert.ElementsMatch(t, []int{0, 1}, ds.mapUpper[3])
}

func TestDistinctPushesCollidingTerm(t *testing.T) {
	s, h, _ := distinctFixture(1, "x", "y")
	ctl := &mockControl{mockHost: h}

	// x = 1 forces y < 1
	fix(t, s, h, "x", 1)
	require.True(t, s.check(newControlCC(ctl)))

	assert.Equal(t, int64(0), s.varStateOf("y").UpperBound())
	assert.True(t, s.varStateOf("y").IsAssigned())
}

func TestDistinctConflictOnEqualAssignment(t *testing.T) {
	s, h, _ := distinctFixture(3, "x", "y")
	ctl := &mockControl{mockHost: h}

	fix(t, s, h, "x", 2)
	fix(t, s, h, "y", 2)
	assert.False(t, s.check(newControlCC(ctl)))
}

func TestDistinctThreeTermsPermutation(t *testing.T) {
	s, h, _ := distinctFixture(2, "x", "y", "z")
	ctl := &mockControl{mockHost: h}

	fix(t, s, h, "x", 0)
	fix(t, s, h, "y", 1)
	require.True(t, s.check(newControlCC(ctl)))

	// the remaining term is forced to the last free value
	assert.Equal(t, int64(2), s.varStateOf("z").LowerBound())
	assert.True(t, s.varStateOf("z").IsAssigned())
}

func TestDistinctWithCoefficientsAndOffsets(t *testing.T) {
	// terms 2x, y+3, and z over [0,3]
	fixture := func() (*State, *mockHost) {
		s, h := newTestState(func(c *Config) { c.MinInt, c.MaxInt = 0, 3 })
		s.addVariable("x")
		s.addVariable("y")
		s.addVariable("z")
		d := NewDistinct(TrueLit, []DistinctTerm{
			{Elements: []Element{{2, "x"}}},
			{Offset: 3, Elements: []Element{{1, "y"}}},
			{Elements: []Element{{1, "z"}}},
		})
		s.addDistinct(d)
		return s, h
	}

	t.Run("distinct term values pass", func(t *testing.T) {
		s, h := fixture()
		ctl := &mockControl{mockHost: h}
		fix(t, s, h, "x", 2) // 2x = 4
		fix(t, s, h, "y", 0) // y+3 = 3
		require.True(t, s.check(newControlCC(ctl)))
	})

	t.Run("colliding term values conflict", func(t *testing.T) {
		s, h := fixture()
		ctl := &mockControl{mockHost: h}
		fix(t, s, h, "x", 2) // 2x = 4
		fix(t, s, h, "y", 1) // y+3 = 4
		assert.False(t, s.check(newControlCC(ctl)))
	})
}

func TestDistinctUndoClearsTodo(t *testing.T) {
	s, h, d := distinctFixture(3, "x", "y")
	ds := s.constraintStateOf(d).(*distinctState)
	ctl := &mockControl{mockHost: h}
	require.True(t, s.check(newControlCC(ctl)))

	cc := newInitCC(h)
	vs := s.varStateOf("x")
	lit := s.getLiteral(vs, 1, cc)

	h.dl = 1
	h.set(lit, 1)
	require.True(t, s.propagate(newControlCC(ctl), []Lit{lit}))
	require.True(t, s.check(newControlCC(ctl)))

	s.undo()
	h.unset(lit)
	h.dl = 0

	assert.Equal(t, 0, ds.todo.Len())
	require.True(t, s.check(newControlCC(ctl)))
	assert.Equal(t, [2]int64{0, 3}, ds.assigned[0])
}

func TestDistinctCheckFull(t *testing.T) {
	s, _, d := distinctFixture(3, "x", "y")
	ds := s.constraintStateOf(d)

	sv := func(name string, v int64) {
		vs := s.varStateOf(name)
		vs.setLowerBound(v)
		vs.setUpperBound(v)
	}

	sv("x", 1)
	sv("y", 2)
	assert.True(t, ds.checkFull(s))

	sv("y", 1)
	assert.False(t, ds.checkFull(s))
}

func TestDistinctCopyState(t *testing.T) {
	s, h, d := distinctFixture(3, "x", "y")
	ctl := &mockControl{mockHost: h}
	fix(t, s, h, "x", 1)
	require.True(t, s.check(newControlCC(ctl)))

	ds := s.constraintStateOf(d).(*distinctState)
	cp := ds.copyState().(*distinctState)

	assert.Equal(t, ds.assigned, cp.assigned)
	assert.Equal(t, ds.mapLower, cp.mapLower)
	assert.Equal(t, ds.mapUpper, cp.mapUpper)

	// the copy must not alias the index slices
	cp.mapLower[0] = append(cp.mapLower[0], 99)
	assert.NotEqual(t, ds.mapLower[0], cp.mapLower[0])
}
