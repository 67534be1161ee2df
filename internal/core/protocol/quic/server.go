package quic

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/otsync/internal/core/observability/log"
	"github.com/zeusync/otsync/internal/core/protocol"
)

// Server accepts QUIC connections and answers one request per stream.
type Server struct {
	handler   protocol.Handler
	tlsConfig *tls.Config
	config    protocol.Config
	logger    log.Log

	mu       sync.Mutex
	listener *quic.Listener
	wg       sync.WaitGroup
}

// NewServer creates a server. A nil tlsConfig gets a self-signed certificate
// when the server starts.
func NewServer(handler protocol.Handler, tlsConfig *tls.Config, config protocol.Config, logger log.Log) *Server {
	if logger == nil {
		logger = log.Provide()
	}
	return &Server{
		handler:   handler,
		tlsConfig: tlsConfig,
		config:    config.WithDefaults(),
		logger:    logger.With(log.String("component", "quic_server")),
	}
}

// Listen binds addr. Use Addr to learn the port when addr ends in :0.
func (s *Server) Listen(addr string) error {
	tlsConfig := s.tlsConfig
	if tlsConfig == nil {
		var err error
		if tlsConfig, err = GenerateSelfSignedTLS(); err != nil {
			return errors.Wrap(err, "failed to create TLS config")
		}
	}

	// Configure QUIC
	quicConfig := &quic.Config{
		MaxIdleTimeout:     s.config.IdleTimeout,
		MaxIncomingStreams: 1000,
	}

	listener, err := quic.ListenAddr(addr, tlsConfig, quicConfig)
	if err != nil {
		return errors.Wrap(err, "failed to start QUIC listener")
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("QUIC listener started", log.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is done or the listener closes.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("quic server is not listening")
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			cancel()
			s.wg.Wait()
			if ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			return errors.Wrap(err, "accept")
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(connCtx, conn)
		}()
	}
}

// Close stops accepting connections.
func (s *Server) Close() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return nil
	}
	return listener.Close()
}

func (s *Server) handleConnection(ctx context.Context, conn *quic.Conn) {
	logger := s.logger.With(log.String("remote", conn.RemoteAddr().String()))
	logger.Debug("Client connected")
	defer logger.Debug("Client disconnected")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			_ = conn.CloseWithError(0, "server closing")
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleStream(ctx, stream, logger)
		}()
	}
}

func (s *Server) handleStream(ctx context.Context, stream *quic.Stream, logger log.Log) {
	defer func() { _ = stream.Close() }()
	_ = stream.SetDeadline(time.Now().Add(s.config.ReadTimeout))

	var resp protocol.Response
	body, err := readFrame(stream, s.config.MaxMessageSize)
	if err == nil {
		var req protocol.Request
		if req, err = protocol.UnmarshalRequest(body, s.config.MaxMessageSize); err == nil {
			resp = s.handler.Handle(ctx, req)
		} else {
			resp = protocol.Failure(req.ID, err)
		}
	} else {
		resp = protocol.Failure("", err)
	}

	data, err := protocol.Marshal(resp, s.config.MaxMessageSize)
	if err != nil {
		logger.Error("Encoding response failed", log.Error(err))
		data, _ = protocol.Marshal(protocol.Failure(resp.ID, err), 0)
	}
	_ = stream.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if _, err = stream.Write(data); err != nil {
		logger.Debug("Writing response failed", log.Error(err))
	}
}
