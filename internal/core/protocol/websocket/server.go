package websocket

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/otsync/internal/core/observability/log"
	"github.com/zeusync/otsync/internal/core/protocol"
)

// Server upgrades HTTP requests to websocket connections and answers every
// request frame through a protocol.Handler.
type Server struct {
	handler  protocol.Handler
	config   protocol.Config
	upgrader websocket.Upgrader
	logger   log.Log

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool

	served atomic.Uint64
}

// NewServer creates the endpoint upgrading HTTP requests to websocket
// connections served by handler.
func NewServer(handler protocol.Handler, config protocol.Config, logger log.Log) *Server {
	if logger == nil {
		logger = log.Provide()
	}
	config = config.WithDefaults()
	return &Server{
		handler: handler,
		config:  config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		logger: logger.With(log.String("component", "websocket_server")),
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP handles one client connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", log.Error(err), log.String("remote", r.RemoteAddr))
		return
	}
	if !s.track(conn) {
		_ = conn.Close()
		return
	}
	defer s.untrack(conn)

	logger := s.logger.With(log.String("remote", r.RemoteAddr))
	logger.Debug("Client connected")
	s.serve(r.Context(), conn, logger)
	logger.Debug("Client disconnected")
}

// Served returns the number of requests answered so far.
func (s *Server) Served() uint64 { return s.served.Load() }

// Close disconnects every client.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	return nil
}

func (s *Server) serve(ctx context.Context, conn *websocket.Conn, logger log.Log) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn.SetReadLimit(int64(s.config.MaxMessageSize))
	_ = conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	write := func(resp protocol.Response) {
		data, err := protocol.Marshal(resp, s.config.MaxMessageSize)
		if err != nil {
			logger.Error("Encoding response failed", log.Error(err))
			data, _ = protocol.Marshal(protocol.Failure(resp.ID, err), 0)
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		if err = conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Debug("Writing response failed", log.Error(err))
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.ping(ctx, conn, &writeMu)
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("Websocket read failed", log.Error(err))
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		if messageType != websocket.TextMessage {
			continue
		}

		req, err := protocol.UnmarshalRequest(data, s.config.MaxMessageSize)
		if err != nil {
			write(protocol.Failure(req.ID, err))
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := s.handler.Handle(ctx, req)
			s.served.Add(1)
			write(resp)
		}()
	}

	cancel()
	wg.Wait()
}

// ping keeps idle connections inside the read deadline.
func (s *Server) ping(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex) {
	ticker := time.NewTicker(s.config.ReadTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteTimeout))
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}
