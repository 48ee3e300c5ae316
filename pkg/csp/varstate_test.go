package csp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderMap(t *testing.T) {
	var m orderMap

	m.Set(5, 10)
	m.Set(1, 20)
	m.Set(3, 30)

	assert.Equal(t, 3, m.Len())
	assert.True(t, m.Has(3))
	assert.False(t, m.Has(2))

	lit, ok := m.Get(1)
	require.True(t, ok)
	assert.Equal(t, Lit(20), lit)

	// replace keeps the size
	m.Set(1, 25)
	lit, _ = m.Get(1)
	assert.Equal(t, Lit(25), lit)
	assert.Equal(t, 3, m.Len())

	t.Run("prev and succ", func(t *testing.T) {
		v, ok := m.Prev(5)
		require.True(t, ok)
		assert.Equal(t, int64(3), v)

		v, ok = m.Prev(4)
		require.True(t, ok)
		assert.Equal(t, int64(3), v)

		_, ok = m.Prev(1)
		assert.False(t, ok)

		v, ok = m.Succ(1)
		require.True(t, ok)
		assert.Equal(t, int64(3), v)

		v, ok = m.Succ(4)
		require.True(t, ok)
		assert.Equal(t, int64(5), v)

		_, ok = m.Succ(5)
		assert.False(t, ok)
	})

	t.Run("each ascends", func(t *testing.T) {
		var values []int64
		m.Each(func(v int64, _ Lit) { values = append(values, v) })
		assert.Equal(t, []int64{1, 3, 5}, values)
	})

	m.Unset(3)
	assert.False(t, m.Has(3))
	assert.Equal(t, 2, m.Len())
	v, ok := m.Succ(1)
	require.True(t, ok)
	assert.Equal(t, int64(5), v)

	m.Clear()
	assert.Equal(t, 0, m.Len())
}

func TestVarStateBounds(t *testing.T) {
	vs := newVarState("x", -10, 10)

	assert.Equal(t, "x", vs.Name())
	assert.Equal(t, int64(-10), vs.LowerBound())
	assert.Equal(t, int64(10), vs.UpperBound())
	assert.Equal(t, int64(-10), vs.MinBound())
	assert.Equal(t, int64(10), vs.MaxBound())
	assert.False(t, vs.IsAssigned())

	vs.PushUpper()
	vs.setUpperBound(5)
	assert.Equal(t, int64(5), vs.UpperBound())
	assert.Equal(t, int64(10), vs.MaxBound())

	vs.PushLower()
	vs.setLowerBound(5)
	assert.True(t, vs.IsAssigned())

	vs.PopUpper()
	vs.PopLower()
	assert.Equal(t, int64(-10), vs.LowerBound())
	assert.Equal(t, int64(10), vs.UpperBound())

	// the static extremum must survive
	assert.Panics(t, func() { vs.PopLower() })
	assert.Panics(t, func() { vs.PopUpper() })
}

func TestVarStateLiterals(t *testing.T) {
	vs := newVarState("x", -10, 10)

	vs.SetLiteral(0, 4)
	vs.SetLiteral(5, -6)

	assert.True(t, vs.HasLiteral(0))
	assert.False(t, vs.HasLiteral(1))
	assert.Equal(t, Lit(4), vs.Literal(0))
	assert.Equal(t, Lit(-6), vs.Literal(5))
	assert.Panics(t, func() { vs.Literal(1) })

	v, ok := vs.PrevValue(5)
	require.True(t, ok)
	assert.Equal(t, int64(0), v)
	v, ok = vs.SuccValue(0)
	require.True(t, ok)
	assert.Equal(t, int64(5), v)
	_, ok = vs.PrevValue(0)
	assert.False(t, ok)
	_, ok = vs.SuccValue(5)
	assert.False(t, ok)

	vs.UnsetLiteral(0)
	assert.False(t, vs.HasLiteral(0))

	vs.clear()
	assert.False(t, vs.HasLiteral(5))
	assert.Equal(t, int64(-10), vs.LowerBound())
	assert.Equal(t, int64(10), vs.UpperBound())
}

func TestVarStateString(t *testing.T) {
	vs := newVarState("x", -3, 7)
	assert.Equal(t, "x=[-3,7]", vs.String())
}
