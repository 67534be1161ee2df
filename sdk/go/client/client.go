// Package client is the Go SDK for otsync: it dials a server over websocket
// or QUIC and opens typed, continuously synced documents on it.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zeusync/otsync/internal/config"
	"github.com/zeusync/otsync/internal/core/events/bus"
	"github.com/zeusync/otsync/internal/core/observability/log"
	"github.com/zeusync/otsync/internal/core/ot"
	"github.com/zeusync/otsync/internal/core/ot/manager"
	"github.com/zeusync/otsync/internal/core/ot/node"
	"github.com/zeusync/otsync/internal/core/protocol"
	"github.com/zeusync/otsync/internal/core/protocol/quic"
	"github.com/zeusync/otsync/internal/core/protocol/websocket"
)

// Client represents one connection to an otsync server shared by every
// document opened through it.
type Client struct {
	config  config.ClientConfig
	logger  log.Log
	events  bus.EventBus
	ownsBus bool

	transport protocol.RoundTripper
	remote    *node.Remote

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closers []func() error
	closed  atomic.Bool
}

// Option configures a Client.
type Option func(*options)

type options struct {
	logger log.Log
	events bus.EventBus
	tls    *tls.Config
	rt     protocol.RoundTripper
}

// WithLogger sets the client logger.
func WithLogger(logger log.Log) Option {
	return func(o *options) { o.logger = logger }
}

// WithEventBus delivers state changes of every opened document on events.
func WithEventBus(events bus.EventBus) Option {
	return func(o *options) { o.events = events }
}

// WithTLS overrides the TLS configuration of the QUIC transport.
func WithTLS(cfg *tls.Config) Option {
	return func(o *options) { o.tls = cfg }
}

// WithTransport skips dialing and sends every request through rt.
func WithTransport(rt protocol.RoundTripper) Option {
	return func(o *options) { o.rt = rt }
}

// New creates a client for cfg. The connection is established lazily by
// the first request.
func New(cfg config.ClientConfig, opts ...Option) (*Client, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Provide()
	}
	ownsBus := o.events == nil
	if ownsBus {
		o.events = bus.New()
	}
	logger := o.logger.With(log.String("component", "client"))

	rt := o.rt
	if rt == nil {
		if cfg.ServerAddr == "" {
			return nil, fmt.Errorf("%w: empty server address", ErrInvalidConfig)
		}
		switch cfg.Transport {
		case config.TransportWebsocket:
			rt = websocket.NewClient(cfg.ServerAddr, cfg.Protocol(), logger)
		case config.TransportQUIC:
			rt = quic.NewClient(cfg.ServerAddr, o.tls, cfg.Protocol(), logger)
		default:
			return nil, fmt.Errorf("%w: transport %q", ErrInvalidConfig, cfg.Transport)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config:    cfg,
		logger:    logger,
		events:    o.events,
		ownsBus:   ownsBus,
		transport: rt,
		remote:    node.NewRemote(rt),
		ctx:       ctx,
		cancel:    cancel,
	}
	logger.Info("Client created",
		log.String("transport", cfg.Transport),
		log.String("server_addr", cfg.ServerAddr),
	)
	return c, nil
}

// Remote exposes the untyped node for tools that work on envelopes.
func (c *Client) Remote() node.Raw { return c.remote }

// Events returns the bus document state changes are published on.
func (c *Client) Events() bus.EventBus { return c.events }

// Close stops every opened document and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return nil
	}
	c.closed.Store(true)
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	var all error
	for _, fn := range closers {
		all = errors.Join(all, fn())
	}
	all = errors.Join(all, c.remote.Close())
	if c.ownsBus {
		all = errors.Join(all, c.events.Close())
	}
	c.logger.Info("Client closed")
	return all
}

// Session is an opened document together with its domain service.
type Session[O any, S manager.Snapshot[O, S], V any] struct {
	Doc     *manager.Manager[O, S]
	Service V
}

// Open checks out document and keeps it synced in the background until the
// client is closed.
func Open[O any, S manager.Snapshot[O, S]](ctx context.Context, c *Client, document string, system *ot.System[O], codec ot.Codec[O], newState func() S) (*manager.Manager[O, S], error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	connectCtx, cancel := context.WithTimeout(ctx, c.config.Protocol().WriteTimeout)
	defer cancel()

	m := manager.New[O, S](system, node.Bind[O](c.remote, document, codec), newState,
		manager.WithLogger(c.logger),
		manager.WithEventBus(c.events),
		manager.WithSyncInterval(c.config.SyncInterval),
		manager.WithRetryDelay(c.config.RetryDelay),
	)
	if err := m.Checkout(connectCtx); err != nil {
		return nil, fmt.Errorf("open %s: %w", document, err)
	}

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		_ = m.Close()
		return nil, ErrClientClosed
	}
	c.closers = append(c.closers, m.Close)
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		if err := m.Run(c.ctx); err != nil {
			c.logger.Error("Document stopped", log.Document(document), log.Error(err))
		}
	}()
	return m, nil
}
