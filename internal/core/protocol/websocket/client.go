// Package websocket carries protocol frames over a single websocket
// connection per client. Requests are multiplexed and matched to responses
// by id.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/otsync/internal/core/observability/log"
	"github.com/zeusync/otsync/internal/core/protocol"
)

// Client is a protocol.RoundTripper over websocket. It dials lazily and
// redials on the next request after the connection drops.
type Client struct {
	url    string
	config protocol.Config
	dialer *websocket.Dialer
	header http.Header
	logger log.Log

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan protocol.Response
	closed  bool

	// dialing is closed when the dial in flight finishes.
	dialing    chan struct{}
	cancelDial context.CancelFunc

	writeMu sync.Mutex
}

var _ protocol.RoundTripper = (*Client)(nil)

// NewClient creates a client for a ws:// or wss:// url.
func NewClient(url string, config protocol.Config, logger log.Log) *Client {
	if logger == nil {
		logger = log.Provide()
	}
	config = config.WithDefaults()
	return &Client{
		url:    url,
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.WriteTimeout,
		},
		logger:  logger.With(log.String("component", "websocket_client"), log.String("url", url)),
		pending: make(map[string]chan protocol.Response),
	}
}

// RoundTrip sends req and waits for the response with the same id.
func (c *Client) RoundTrip(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	data, err := protocol.Marshal(req, c.config.MaxMessageSize)
	if err != nil {
		return protocol.Response{}, err
	}

	conn, err := c.connect(ctx)
	if err != nil {
		return protocol.Response{}, err
	}

	ch := make(chan protocol.Response, 1)
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return protocol.Response{}, protocol.NewProtocolError(protocol.ErrorCodeConnectionLost, "connection dropped", protocol.ErrConnectionLost)
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()
	defer c.forget(req.ID)

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.drop(conn, err)
		return protocol.Response{}, protocol.NewProtocolError(protocol.ErrorCodeConnectionLost, "write request", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return protocol.Response{}, protocol.NewProtocolError(protocol.ErrorCodeConnectionLost, "connection dropped", protocol.ErrConnectionLost)
		}
		return resp, nil
	case <-ctx.Done():
		return protocol.Response{}, ctx.Err()
	}
}

// Close closes the connection. Later requests fail with ErrTransportClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	if c.cancelDial != nil {
		c.cancelDial()
	}
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closed"),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.drop(conn, nil)
	return nil
}

func errClientClosed() error {
	return protocol.NewProtocolError(protocol.ErrorCodeTransportClosed, "client closed", protocol.ErrTransportClosed)
}

// connect returns the live connection, dialing one if needed. Only one dial
// runs at a time; other callers wait for it without holding the lock.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	for {
		c.mu.Lock()
		switch {
		case c.closed:
			c.mu.Unlock()
			return nil, errClientClosed()
		case c.conn != nil:
			conn := c.conn
			c.mu.Unlock()
			return conn, nil
		case c.dialing == nil:
			dialCtx, cancel := context.WithCancel(ctx)
			c.dialing, c.cancelDial = make(chan struct{}), cancel
			c.mu.Unlock()
			return c.dial(dialCtx)
		}
		wait := c.dialing
		c.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelDial()
	close(c.dialing)
	c.dialing, c.cancelDial = nil, nil

	if c.closed {
		if conn != nil {
			_ = conn.Close()
		}
		return nil, errClientClosed()
	}
	if err != nil {
		return nil, protocol.NewProtocolError(protocol.ErrorCodeDialFailed, "dial "+c.url, errors.Wrap(err, "websocket handshake"))
	}
	conn.SetReadLimit(int64(c.config.MaxMessageSize))

	c.conn = conn
	c.pending = make(map[string]chan protocol.Response)
	go c.readLoop(conn)

	c.logger.Info("Connected")
	return conn, nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.drop(conn, err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		resp, err := protocol.UnmarshalResponse(data, c.config.MaxMessageSize)
		if err != nil {
			c.logger.Warn("Dropping malformed response", log.Error(err))
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// drop discards conn and fails every request waiting on it.
func (c *Client) drop(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	waiting := c.pending
	c.pending = make(map[string]chan protocol.Response)
	c.mu.Unlock()

	_ = conn.Close()
	for _, ch := range waiting {
		close(ch)
	}

	if cause != nil && !websocket.IsCloseError(cause, websocket.CloseNormalClosure) {
		c.logger.Warn("Connection lost", log.Error(cause), log.Int("waiting", len(waiting)))
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
