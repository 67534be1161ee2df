// Package server runs the otsync document server: one repository shared by
// the websocket, QUIC and HTTP endpoints.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/otsync/internal/config"
	"github.com/zeusync/otsync/internal/core/events/bus"
	"github.com/zeusync/otsync/internal/core/observability/log"
	"github.com/zeusync/otsync/internal/core/ot/node"
	"github.com/zeusync/otsync/internal/core/protocol/quic"
	"github.com/zeusync/otsync/internal/core/protocol/websocket"
	"github.com/zeusync/otsync/internal/core/repository"
)

// Server-specific errors
var (
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrInvalidConfig        = errors.New("invalid server configuration")
)

// Server owns the listeners of every transport.
type Server struct {
	config config.ServerConfig
	repo   *repository.Repository
	events bus.EventBus
	logger log.Log

	handler *node.Handler
	ws      *websocket.Server
	quic    *quic.Server

	running atomic.Bool
	commits atomic.Uint64

	mu        sync.Mutex
	httpAddr  net.Addr
	ready     chan struct{}
	readyOnce sync.Once
}

// New wires the websocket and QUIC transports to repo. A nil events bus
// disables commit notifications; a nil logger uses the process logger.
func New(cfg *config.Config, repo *repository.Repository, events bus.EventBus, logger log.Log) (*Server, error) {
	if logger == nil {
		logger = log.Provide()
	}
	logger = logger.With(log.String("component", "server"))

	tlsConfig, err := loadTLS(cfg.Server)
	if err != nil {
		return nil, err
	}

	handler := node.NewHandler(repo, logger)
	s := &Server{
		config:  cfg.Server,
		repo:    repo,
		events:  events,
		logger:  logger,
		handler: handler,
		ws:      websocket.NewServer(handler, cfg.Server.Protocol(), logger),
		quic:    quic.NewServer(handler, tlsConfig, cfg.Server.Protocol(), logger),
		ready:   make(chan struct{}),
	}

	if events != nil {
		if _, err = events.Subscribe(repository.TopicCommits, repository.EventCommitted, s.onCommit); err != nil {
			return nil, fmt.Errorf("subscribe to commits: %w", err)
		}
	}
	return s, nil
}

// Run binds every listener and serves until ctx is done or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}
	defer s.running.Store(false)

	ln, err := net.Listen("tcp", s.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.HTTPAddr, err)
	}
	if err = s.quic.Listen(s.config.QUICAddr); err != nil {
		_ = ln.Close()
		return err
	}

	httpServer := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: s.config.ReadTimeout,
	}

	s.mu.Lock()
	s.httpAddr = ln.Addr()
	s.readyOnce.Do(func() { close(s.ready) })
	s.mu.Unlock()

	s.logger.Info("Server started",
		log.String("http_addr", ln.Addr().String()),
		log.String("quic_addr", s.quic.Addr().String()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return s.quic.Serve(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.ws.Close()
		_ = s.quic.Close()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	s.logger.Info("Server stopped", log.Int64("commits", int64(s.commits.Load())))
	return err
}

// Ready is closed once every listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// HTTPAddr returns the bound HTTP address, nil before Ready.
func (s *Server) HTTPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpAddr
}

// QUICAddr returns the bound QUIC address, nil before Ready.
func (s *Server) QUICAddr() net.Addr { return s.quic.Addr() }

func (s *Server) onCommit(ev bus.Event) error {
	commit, ok := ev.Data().(repository.CommitEvent)
	if !ok {
		return nil
	}
	s.commits.Add(1)
	s.logger.Debug("Document advanced",
		log.Document(commit.Document),
		log.Revision(commit.Revision.String()),
		log.Int("operations", commit.Operations),
	)
	return nil
}

func loadTLS(cfg config.ServerConfig) (*tls.Config, error) {
	if cfg.CertFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: load certificate: %v", ErrInvalidConfig, err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{quic.NextProto},
		MinVersion:   tls.VersionTLS13,
	}, nil
}
