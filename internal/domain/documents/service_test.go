package documents

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/otsync/internal/core/ot"
	"github.com/zeusync/otsync/internal/core/ot/roster"
)

type textDoc struct{ state *State }

func (d *textDoc) State() *State { return d.state }

func (d *textDoc) Add(ops ...Operation) error { return ot.Apply[Operation](d.state, ops...) }

type listDoc struct{ state *ListState }

func (d *listDoc) State() *ListState { return d.state }

func (d *listDoc) Add(ops ...ListOp) error { return ot.Apply[ListOp](d.state, ops...) }

func TestTextService(t *testing.T) {
	svc := NewTextService(&textDoc{state: NewState()}, "client-a")

	require.NoError(t, svc.Insert(0, "hello world"))
	require.NoError(t, svc.Replace(6, 5, "there"))
	assert.Equal(t, "hello there", svc.Text())
	require.NoError(t, svc.Delete(5, 6))
	assert.Equal(t, "hello", svc.Text())

	assert.ErrorIs(t, svc.Insert(9, "x"), ErrOutOfRange)
	assert.ErrorIs(t, svc.Delete(3, 5), ErrOutOfRange)
	assert.ErrorIs(t, svc.Delete(-1, 1), ErrOutOfRange)
}

func TestListService(t *testing.T) {
	doc := &listDoc{state: NewListState()}
	svc := NewListService(doc)

	id, err := svc.Create("notes", []string{"bob", "alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{id}, svc.IDs())

	entry, ok := doc.state.Get(id)
	require.True(t, ok)
	assert.Equal(t, []string{"alice", "bob"}, entry.Participants)

	require.NoError(t, svc.Drop(id))
	assert.Empty(t, svc.IDs())
	assert.ErrorIs(t, svc.Drop(id), ErrUnknownDocument)
}

func TestConcurrentDocumentCreates(t *testing.T) {
	sys := NewListSystem()
	small := roster.Create("doc", roster.Entry{Name: "plan", Participants: []string{"a"}})
	big := roster.Create("doc", roster.Entry{Name: "plan", Participants: []string{"a", "b"}})

	res, err := sys.Transform([]ListOp{small}, []ListOp{big})
	require.NoError(t, err)

	s := NewListState()
	require.NoError(t, ot.Apply[ListOp](s, small))
	require.NoError(t, ot.Apply[ListOp](s, res.Right...))
	entry, _ := s.Get("doc")
	assert.Len(t, entry.Participants, 2)
}

func TestCodecs(t *testing.T) {
	env, err := Codec{}.Encode(Insert(3, "x", "c1"))
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"documents.insert","value":{"pos":3,"content":"x","origin":"c1"}}`, string(raw))

	op, err := Codec{}.Decode(ot.Envelope{Type: TagDelete, Value: json.RawMessage(`{"pos":1,"content":"ab"}`)})
	require.NoError(t, err)
	assert.Equal(t, Delete(1, "ab"), op)

	for _, env := range []ot.Envelope{
		{Type: TagInsert, Value: json.RawMessage(`{"pos":-1,"content":"x"}`)},
		{Type: TagDelete, Value: json.RawMessage(`{"pos":"1"}`)},
		{Type: "documents.move", Value: json.RawMessage(`{}`)},
	} {
		_, err := Codec{}.Decode(env)
		assert.ErrorIs(t, err, ot.ErrSerialization)
	}

	listEnv, err := ListCodec{}.Encode(roster.Create("d", roster.Entry{Name: "n"}))
	require.NoError(t, err)
	decoded, err := ListCodec{}.Decode(listEnv)
	require.NoError(t, err)
	assert.Equal(t, "d", decoded.ID)

	_, err = ListCodec{}.Decode(ot.Envelope{Type: TagEntry, Value: json.RawMessage(`{"id":"","entry":{"name":"n","participants":null},"remove":false}`)})
	assert.ErrorIs(t, err, ot.ErrSerialization)
}
