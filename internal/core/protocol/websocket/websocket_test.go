package websocket

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/otsync/internal/core/observability/log"
	"github.com/zeusync/otsync/internal/core/ot"
	"github.com/zeusync/otsync/internal/core/ot/node"
	"github.com/zeusync/otsync/internal/core/protocol"
	"github.com/zeusync/otsync/internal/core/repository"
)

func startServer(t *testing.T) (*Server, *repository.Repository, string) {
	t.Helper()
	repo := repository.New(nil, log.Nop())
	srv := NewServer(node.NewHandler(repo, log.Nop()), protocol.DefaultConfig(), log.Nop())
	httpSrv := httptest.NewServer(srv)
	t.Cleanup(func() {
		_ = srv.Close()
		httpSrv.Close()
	})
	return srv, repo, "ws" + strings.TrimPrefix(httpSrv.URL, "http")
}

func TestRoundTrip(t *testing.T) {
	srv, repo, url := startServer(t)
	client := NewClient(url, protocol.DefaultConfig(), log.Nop())
	defer func() { _ = client.Close() }()

	remote := node.NewRemote(client)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := remote.Checkout(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, ot.RootCommitID, snap.Revision)

	res, err := remote.Push(ctx, "doc", node.PushRequest{
		From:       ot.RootCommitID,
		PushID:     "p1",
		Operations: []ot.Envelope{{Type: "t", Value: []byte(`1`)}},
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	head, count := repo.Head("doc")
	assert.Equal(t, res.Revision, head)
	assert.Equal(t, 1, count)

	_, err = remote.Fetch(ctx, "doc", "unknown")
	assert.ErrorIs(t, err, protocol.ErrUnknownRevision)
	assert.EqualValues(t, 3, srv.Served())
}

func TestConcurrentRequestsShareConnection(t *testing.T) {
	_, _, url := startServer(t)
	client := NewClient(url, protocol.DefaultConfig(), log.Nop())
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := protocol.NewRequest(protocol.MethodCheckout, "doc")
			resp, err := client.RoundTrip(ctx, req)
			if err == nil && resp.ID != req.ID {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestServerRejectsInvalidFrames(t *testing.T) {
	_, _, url := startServer(t)
	client := NewClient(url, protocol.DefaultConfig(), log.Nop())
	defer func() { _ = client.Close() }()

	req := protocol.NewRequest(protocol.MethodFetch, "doc")
	resp, err := client.RoundTrip(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ErrorCodeInvalidMessage, resp.Error.Code)
}

func TestDialFailureIsTransient(t *testing.T) {
	client := NewClient("ws://127.0.0.1:1/ws", protocol.DefaultConfig(), log.Nop())
	_, err := client.RoundTrip(context.Background(), protocol.NewRequest(protocol.MethodCheckout, "doc"))
	require.Error(t, err)
	assert.Equal(t, protocol.ErrorCodeDialFailed, protocol.GetErrorCode(err))
	assert.True(t, node.IsTransient(err))
}

func TestClosedClient(t *testing.T) {
	_, _, url := startServer(t)
	client := NewClient(url, protocol.DefaultConfig(), log.Nop())
	_, err := client.RoundTrip(context.Background(), protocol.NewRequest(protocol.MethodCheckout, "doc"))
	require.NoError(t, err)

	require.NoError(t, client.Close())
	_, err = client.RoundTrip(context.Background(), protocol.NewRequest(protocol.MethodCheckout, "doc"))
	assert.ErrorIs(t, err, protocol.ErrTransportClosed)
	assert.False(t, node.IsTransient(err))
}

func TestCloseDuringPendingDial(t *testing.T) {
	// the listener never accepts, so the handshake hangs until its timeout
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	config := protocol.DefaultConfig()
	config.WriteTimeout = 2 * time.Second
	client := NewClient("ws://"+ln.Addr().String()+"/ws", config, log.Nop())

	errs := make(chan error, 1)
	go func() {
		_, err := client.RoundTrip(context.Background(), protocol.NewRequest(protocol.MethodCheckout, "doc"))
		errs <- err
	}()
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.dialing != nil
	}, time.Second, 5*time.Millisecond)

	closed := make(chan struct{})
	go func() {
		_ = client.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Close waited for the pending dial")
	}

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, protocol.ErrTransportClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("request still waiting after close")
	}
}

func TestServerShutdownDropsClients(t *testing.T) {
	srv, _, url := startServer(t)
	client := NewClient(url, protocol.DefaultConfig(), log.Nop())
	defer func() { _ = client.Close() }()

	_, err := client.RoundTrip(context.Background(), protocol.NewRequest(protocol.MethodCheckout, "doc"))
	require.NoError(t, err)

	require.NoError(t, srv.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = client.RoundTrip(ctx, protocol.NewRequest(protocol.MethodCheckout, "doc"))
	require.Error(t, err)
	assert.True(t, node.IsTransient(err))
}
