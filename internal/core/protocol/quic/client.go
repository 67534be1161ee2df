// Package quic carries protocol frames over QUIC, one bidirectional stream
// per request.
package quic

import (
	"context"
	"crypto/tls"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/otsync/internal/core/observability/log"
	"github.com/zeusync/otsync/internal/core/protocol"
)

// Client is a protocol.RoundTripper over a QUIC connection. The connection
// is dialed on first use and again after it fails.
type Client struct {
	addr      string
	tlsConfig *tls.Config
	config    protocol.Config
	logger    log.Log

	mu     sync.Mutex
	conn   *quic.Conn
	closed bool
}

var _ protocol.RoundTripper = (*Client)(nil)

// NewClient creates a client for addr. A nil tlsConfig is built from the
// config's InsecureSkipVerify setting.
func NewClient(addr string, tlsConfig *tls.Config, config protocol.Config, logger log.Log) *Client {
	if logger == nil {
		logger = log.Provide()
	}
	if tlsConfig == nil {
		tlsConfig = ClientTLS(config.InsecureSkipVerify)
	}
	return &Client{
		addr:      addr,
		tlsConfig: tlsConfig,
		config:    config.WithDefaults(),
		logger:    logger.With(log.String("component", "quic_client"), log.String("address", addr)),
	}
}

// RoundTrip opens a stream, writes req, half-closes and reads the response.
func (c *Client) RoundTrip(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	data, err := protocol.Marshal(req, c.config.MaxMessageSize)
	if err != nil {
		return protocol.Response{}, err
	}

	conn, err := c.connect(ctx)
	if err != nil {
		return protocol.Response{}, err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return protocol.Response{}, ctx.Err()
		}
		c.drop(conn, err)
		return protocol.Response{}, protocol.NewProtocolError(protocol.ErrorCodeConnectionLost, "open stream", err)
	}

	deadline := time.Now().Add(c.config.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = stream.SetDeadline(deadline)

	if _, err = stream.Write(data); err != nil {
		stream.CancelRead(0)
		return protocol.Response{}, protocol.NewProtocolError(protocol.ErrorCodeStreamReset, "write request", err)
	}
	// closes the send direction only
	if err = stream.Close(); err != nil {
		return protocol.Response{}, protocol.NewProtocolError(protocol.ErrorCodeStreamClosed, "close request stream", err)
	}

	body, err := readFrame(stream, c.config.MaxMessageSize)
	if err != nil {
		return protocol.Response{}, err
	}
	return protocol.UnmarshalResponse(body, c.config.MaxMessageSize)
}

// Close closes the connection. Later requests fail with ErrTransportClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.CloseWithError(0, "client closed")
}

func (c *Client) connect(ctx context.Context) (*quic.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, protocol.NewProtocolError(protocol.ErrorCodeTransportClosed, "client closed", protocol.ErrTransportClosed)
	}
	if c.conn != nil {
		select {
		case <-c.conn.Context().Done():
			c.conn = nil
		default:
			return c.conn, nil
		}
	}

	conn, err := quic.DialAddr(ctx, c.addr, c.tlsConfig, &quic.Config{
		MaxIdleTimeout:  c.config.IdleTimeout,
		KeepAlivePeriod: c.config.IdleTimeout / 2,
	})
	if err != nil {
		return nil, protocol.NewProtocolError(protocol.ErrorCodeDialFailed, "dial "+c.addr, errors.Wrap(err, "quic handshake"))
	}

	c.conn = conn
	c.logger.Info("Connected")
	return conn, nil
}

func (c *Client) drop(conn *quic.Conn, cause error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	_ = conn.CloseWithError(0, "dropped")
	c.logger.Warn("Connection lost", log.Error(cause))
}

// readFrame reads one frame up to the end of the stream.
func readFrame(r io.Reader, maxSize int) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, int64(maxSize)+1))
	if err != nil {
		return nil, protocol.NewProtocolError(protocol.ErrorCodeStreamReset, "read frame", err)
	}
	if len(body) > maxSize {
		return nil, protocol.NewProtocolError(protocol.ErrorCodeMessageTooLarge, "frame exceeds limit", protocol.ErrMessageTooLarge)
	}
	return body, nil
}
