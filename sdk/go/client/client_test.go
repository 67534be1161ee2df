package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/otsync/internal/config"
	"github.com/zeusync/otsync/internal/core/observability/log"
	"github.com/zeusync/otsync/internal/core/ot/node"
	"github.com/zeusync/otsync/internal/core/protocol"
	"github.com/zeusync/otsync/internal/core/protocol/websocket"
	"github.com/zeusync/otsync/internal/core/repository"
	"github.com/zeusync/otsync/internal/domain/profile"
)

func startServer(t *testing.T) (*repository.Repository, config.ClientConfig) {
	t.Helper()
	repo := repository.New(nil, log.Nop())
	ws := websocket.NewServer(node.NewHandler(repo, log.Nop()), protocol.DefaultConfig(), log.Nop())
	srv := httptest.NewServer(ws)
	t.Cleanup(func() {
		_ = ws.Close()
		srv.Close()
	})

	cfg := config.Default().Client
	cfg.ServerAddr = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	cfg.SyncInterval = time.Hour
	cfg.RetryDelay = 10 * time.Millisecond
	return repo, cfg
}

func newClient(t *testing.T, cfg config.ClientConfig) *Client {
	t.Helper()
	c, err := New(cfg, WithLogger(log.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, c.Close()) })
	return c
}

func TestChatConverges(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	repo, cfg := startServer(t)

	alice, err := newClient(t, cfg).Chat(ctx, "r1", "alice", "peer-a")
	require.NoError(t, err)
	bob, err := newClient(t, cfg).Chat(ctx, "r1", "bob", "peer-b")
	require.NoError(t, err)

	_, err = alice.Service.SendMessage("hi bob")
	require.NoError(t, err)
	_, err = bob.Service.SendMessage("hi alice")
	require.NoError(t, err)

	require.NoError(t, alice.Doc.Sync(ctx))
	require.NoError(t, bob.Doc.Sync(ctx))
	require.NoError(t, alice.Doc.Sync(ctx))

	assert.Len(t, alice.Doc.State().Messages(), 2)
	assert.True(t, alice.Doc.State().Equal(bob.Doc.State()))
	assert.Equal(t, alice.Doc.Revision(), bob.Doc.Revision())

	head, _ := repo.Head(ChatID("r1"))
	assert.Equal(t, head, alice.Doc.Revision())
}

func TestBackgroundSyncPushesEdits(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	repo, cfg := startServer(t)

	me, err := newClient(t, cfg).Profile(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, me.Service.Set(profile.FieldName, "Alice"))

	// Add wakes the sync loop, so the edit reaches the server without an
	// explicit Sync.
	require.Eventually(t, func() bool {
		_, n := repo.Head(ProfileID("alice"))
		return n == 1 && me.Doc.Pending() == 0
	}, 5*time.Second, 10*time.Millisecond)

	other, err := newClient(t, cfg).Profile(ctx, "alice")
	require.NoError(t, err)
	name, ok := other.Service.Get(profile.FieldName)
	assert.True(t, ok)
	assert.Equal(t, "Alice", name)
}

func TestDocumentsAndText(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, cfg := startServer(t)
	c := newClient(t, cfg)

	lib, err := c.Library(ctx, "alice")
	require.NoError(t, err)
	id, err := lib.Service.Create("notes", []string{"alice", "bob"})
	require.NoError(t, err)
	require.NoError(t, lib.Doc.Sync(ctx))
	assert.Equal(t, []string{id}, lib.Service.IDs())

	first, err := c.Text(ctx, id, "alice")
	require.NoError(t, err)
	require.NoError(t, first.Service.Insert(0, "hello"))
	require.NoError(t, first.Doc.Sync(ctx))

	second, err := newClient(t, cfg).Text(ctx, id, "bob")
	require.NoError(t, err)
	assert.Equal(t, "hello", second.Service.Text())
}

func TestContactsAndRooms(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, cfg := startServer(t)
	c := newClient(t, cfg)

	book, err := c.Contacts(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, book.Service.Add("bob-key", "Bob"))
	require.NoError(t, book.Doc.Sync(ctx))
	assert.Contains(t, book.Service.List(), "bob-key")

	rs, err := c.Rooms(ctx, "alice")
	require.NoError(t, err)
	id, err := rs.Service.Dialog("bob-key")
	require.NoError(t, err)
	require.NoError(t, rs.Doc.Sync(ctx))
	room, ok := rs.Service.Get(id)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"alice", "bob-key"}, room.Participants)
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.Default().Client
	cfg.Transport = "carrier-pigeon"
	_, err := New(cfg, WithLogger(log.Nop()))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = config.Default().Client
	cfg.ServerAddr = ""
	_, err = New(cfg, WithLogger(log.Nop()))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOpenAfterClose(t *testing.T) {
	_, cfg := startServer(t)
	c, err := New(cfg, WithLogger(log.Nop()))
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.Profile(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestOpenUnreachableServer(t *testing.T) {
	cfg := config.Default().Client
	cfg.ServerAddr = "ws://127.0.0.1:1/ws"
	c := newClient(t, cfg)

	_, err := c.Profile(context.Background(), "alice")
	require.Error(t, err)
	assert.True(t, node.IsTransient(err))
}
