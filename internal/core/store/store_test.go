package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/otsync/internal/core/events/bus"
)

func TestStoreSetNotifies(t *testing.T) {
	s := New("doc-1", 0, nil)
	defer func() { _ = s.Close() }()

	var seen []int
	sub, err := s.Subscribe(func(v int) { seen = append(seen, v) })
	require.NoError(t, err)

	require.NoError(t, s.Set(1))
	require.NoError(t, s.Set(2))
	assert.Equal(t, 2, s.Get())
	assert.Equal(t, []int{1, 2}, seen)

	require.NoError(t, s.Unsubscribe(sub))
	require.NoError(t, s.Set(3))
	assert.Equal(t, []int{1, 2}, seen)
}

func TestStoresShareBusByTopic(t *testing.T) {
	b := bus.New()
	a := New("a", "", b)
	c := New("c", "", b)

	var got []string
	_, err := a.Subscribe(func(v string) { got = append(got, "a:"+v) })
	require.NoError(t, err)
	_, err = c.Subscribe(func(v string) { got = append(got, "c:"+v) })
	require.NoError(t, err)

	require.NoError(t, a.Set("x"))
	require.NoError(t, c.Set("y"))
	assert.Equal(t, []string{"a:x", "c:y"}, got)

	// closing a store over a shared bus leaves the bus running
	require.NoError(t, a.Close())
	require.NoError(t, c.Set("z"))
	assert.Len(t, got, 3)
}
