package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/otsync/internal/core/ot"
)

func fold(t *testing.T, base *State, seqs ...[]Op) *State {
	t.Helper()
	s := base.Clone()
	for _, seq := range seqs {
		require.NoError(t, ot.Apply[Op](s, seq...))
	}
	return s
}

func TestConcurrentCreateMoreParticipantsWins(t *testing.T) {
	sys := ot.NewSystem[Op](Rules{})
	base := NewState()

	a := Create("R", Entry{Name: "team", Participants: []string{"alice", "bob"}})
	b := Create("R", Entry{Name: "team", Participants: []string{"alice", "bob", "carol"}})

	for _, pair := range [][2]Op{{a, b}, {b, a}} {
		l, r := []Op{pair[0]}, []Op{pair[1]}
		res, err := sys.Transform(l, r)
		require.NoError(t, err)

		left := fold(t, base, l, res.Right)
		right := fold(t, base, r, res.Left)
		assert.True(t, left.Equal(right))

		got, ok := left.Get("R")
		require.True(t, ok)
		assert.Len(t, got.Participants, 3)
	}
}

func TestCreateTieBreaksByName(t *testing.T) {
	sys := ot.NewSystem[Op](Rules{})
	a := Create("R", Entry{Name: "alpha", Participants: []string{"x"}})
	b := Create("R", Entry{Name: "beta", Participants: []string{"y"}})

	res, err := sys.Transform([]Op{a}, []Op{b})
	require.NoError(t, err)
	got, _ := fold(t, NewState(), []Op{a}, res.Right).Get("R")
	assert.Equal(t, "beta", got.Name)
}

func TestIdenticalOpsCancel(t *testing.T) {
	sys := ot.NewSystem[Op](Rules{})
	e := Entry{Name: "n", Participants: []string{"a"}}

	res, err := sys.Transform([]Op{Create("R", e)}, []Op{Create("R", e)})
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())

	res, err = sys.Transform([]Op{Drop("R", e)}, []Op{Drop("R", e)})
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())
}

func TestDisagreeingCreateAndDropIsFatal(t *testing.T) {
	sys := ot.NewSystem[Op](Rules{})
	e := Entry{Name: "n", Participants: []string{"a"}}

	_, err := sys.Transform([]Op{Create("R", e)}, []Op{Drop("R", e)})
	assert.True(t, ot.IsFatal(err))

	_, err = sys.Transform([]Op{Drop("R", e)}, []Op{Drop("R", Entry{Name: "m"})})
	assert.True(t, ot.IsFatal(err))
}

func TestDifferentIDsPassThrough(t *testing.T) {
	sys := ot.NewSystem[Op](Rules{})
	a := Create("A", Entry{Name: "a"})
	b := Create("B", Entry{Name: "b"})
	res, err := sys.Transform([]Op{a}, []Op{b})
	require.NoError(t, err)
	assert.Equal(t, []Op{a}, res.Left)
	assert.Equal(t, []Op{b}, res.Right)
}

func TestSquashAndInvert(t *testing.T) {
	sys := ot.NewSystem[Op](Rules{})
	e := Entry{Name: "n", Participants: []string{"b", "a"}}
	c := Create("R", e)

	assert.Empty(t, sys.Squash([]Op{c, Rules{}.Invert(c)}))
	assert.Len(t, sys.Squash([]Op{c, Create("S", e)}), 2)

	base := NewState()
	assert.True(t, base.Equal(fold(t, base, []Op{c}, sys.Invert([]Op{c}))))
	assert.Equal(t, []string{"a", "b"}, c.Entry.Participants)
}

func TestStateApplyErrors(t *testing.T) {
	s := NewState()
	e := Entry{Name: "n"}
	require.NoError(t, s.Apply(Create("R", e)))
	assert.ErrorIs(t, s.Apply(Create("R", e)), ot.ErrApply)
	assert.ErrorIs(t, s.Apply(Drop("R", Entry{Name: "other"})), ot.ErrApply)
	assert.ErrorIs(t, s.Apply(Drop("Q", e)), ot.ErrApply)
	require.NoError(t, s.Apply(Op{}))
	assert.Equal(t, []string{"R"}, s.IDs())
}
