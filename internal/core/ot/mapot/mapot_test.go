package mapot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/otsync/internal/core/ot"
)

func newSystem() *ot.System[Operation[string]] {
	return ot.NewSystem[Operation[string]](NewRules[string](OrderedCompare[string]))
}

func fold(t *testing.T, base *State[string], seqs ...[]Operation[string]) *State[string] {
	t.Helper()
	s := base.Clone()
	for _, seq := range seqs {
		require.NoError(t, ot.Apply[Operation[string]](s, seq...))
	}
	return s
}

func TestTransformConverges(t *testing.T) {
	sys := newSystem()
	base := NewState[string]()
	require.NoError(t, base.Apply(Set("name", nil, Ptr("ann"))))

	cases := []struct {
		name        string
		left, right Operation[string]
	}{
		{"disjoint keys", Set("bio", nil, Ptr("hi")), Set("avatar", nil, Ptr("a.png"))},
		{"same key lexicographic", Set("name", Ptr("ann"), Ptr("bob")), Set("name", Ptr("ann"), Ptr("zed"))},
		{"same key same value", Set("name", Ptr("ann"), Ptr("bob")), Set("name", Ptr("ann"), Ptr("bob"))},
		{"delete vs set", Set("name", Ptr("ann"), nil), Set("name", Ptr("ann"), Ptr("amy"))},
		{"multi key", Operation[string]{
			"name": {Prev: Ptr("ann"), Next: Ptr("cat")},
			"bio":  {Prev: nil, Next: Ptr("x")},
		}, Operation[string]{
			"name": {Prev: Ptr("ann"), Next: Ptr("bea")},
			"bio":  {Prev: nil, Next: Ptr("y")},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, pair := range [][2]Operation[string]{{tc.left, tc.right}, {tc.right, tc.left}} {
				l, r := []Operation[string]{pair[0]}, []Operation[string]{pair[1]}
				res, err := sys.Transform(l, r)
				require.NoError(t, err)
				assert.True(t, fold(t, base, l, res.Right).Equal(fold(t, base, r, res.Left)))
			}
		})
	}
}

func TestLexicographicWinner(t *testing.T) {
	sys := newSystem()
	base := NewState[string]()
	l := []Operation[string]{Set("k", nil, Ptr("apple"))}
	r := []Operation[string]{Set("k", nil, Ptr("pear"))}

	res, err := sys.Transform(l, r)
	require.NoError(t, err)
	got, _ := fold(t, base, l, res.Right).Get("k")
	assert.Equal(t, "pear", got)

	// the winning side needs no adjustment
	assert.Empty(t, res.Left)
}

func TestTransformPrevMismatchIsFatal(t *testing.T) {
	_, err := newSystem().Transform(
		[]Operation[string]{Set("k", Ptr("a"), Ptr("b"))},
		[]Operation[string]{Set("k", Ptr("c"), Ptr("d"))},
	)
	assert.True(t, ot.IsFatal(err))
}

func TestSquash(t *testing.T) {
	sys := newSystem()
	base := NewState[string]()

	ops := []Operation[string]{
		Set("a", nil, Ptr("1")),
		Set("b", nil, Ptr("2")),
		Set("a", Ptr("1"), Ptr("3")),
	}
	squashed := sys.Squash(ops)
	require.Len(t, squashed, 1)
	assert.Equal(t, Operation[string]{
		"a": {Prev: nil, Next: Ptr("3")},
		"b": {Prev: nil, Next: Ptr("2")},
	}, squashed[0])
	assert.True(t, fold(t, base, ops).Equal(fold(t, base, squashed)))

	// exact inverses annihilate
	set := Set("a", nil, Ptr("1"))
	assert.Empty(t, sys.Squash([]Operation[string]{set, NewRules[string](OrderedCompare[string]).Invert(set)}))

	// a broken chain does not combine
	_, ok := NewRules[string](OrderedCompare[string]).Squash(Set("a", nil, Ptr("1")), Set("a", Ptr("2"), Ptr("3")))
	assert.False(t, ok)
}

func TestInvertRoundTrip(t *testing.T) {
	rules := NewRules[string](OrderedCompare[string])
	base := NewState[string]()
	require.NoError(t, base.Apply(Set("x", nil, Ptr("old"))))

	op := Operation[string]{
		"x": {Prev: Ptr("old"), Next: nil},
		"y": {Prev: nil, Next: Ptr("new")},
	}
	after := fold(t, base, []Operation[string]{op, rules.Invert(op)})
	assert.True(t, base.Equal(after))
	assert.True(t, rules.IsEmpty(Set("x", Ptr("v"), Ptr("v"))))
	assert.True(t, rules.IsEmpty(Operation[string]{}))
}

func TestStateRejectsStaleEdit(t *testing.T) {
	s := NewState[string]()
	require.NoError(t, s.Apply(s.SetOp("k", Ptr("v"))))
	err := s.Apply(Set("k", nil, Ptr("w")))
	assert.ErrorIs(t, err, ot.ErrApply)

	v, ok := s.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, map[string]string{"k": "v"}, s.Values())
}

func TestOrderedCompare(t *testing.T) {
	assert.Equal(t, 0, OrderedCompare[int](nil, nil))
	assert.Equal(t, -1, OrderedCompare(nil, Ptr(1)))
	assert.Equal(t, 1, OrderedCompare(Ptr(1), nil))
	assert.Equal(t, -1, OrderedCompare(Ptr(1), Ptr(2)))
}
