// ============================================================================
// Beaver-Chat Server - Composition Root
// ============================================================================
//
// Package: internal/server
// File: server.go
// Function: Binds the chat listener, owns the room, handler, and worker pool,
// and turns every accepted connection into one pool job.
//
// Data Flow:
//   listener.Accept ─▶ pool.Submit(job)
//                         │
//                         ▼ (worker goroutine)
//            request.Read ─▶ handler.Handle / Reject ─▶ conn.Write ─▶ Close
//
// Lifecycle:
//   1. New() - validate static pages, build room/handler/pool
//   2. Serve(ctx, ln) - single-threaded accept loop until ctx is cancelled
//      or the listener fails
//   3. On exit: close listener, Stop() the pool (drains queued connections)
//
// Error Handling:
//   - Startup (bind, missing pages, pool size): returned to the caller
//   - Per-connection I/O: logged at warn, connection dropped
//   - Everything else is contained inside the job by the handler and the
//     worker's panic recovery
//
// Known Limitation:
//   There is no read timeout. A client that connects and never sends a
//   complete request occupies one worker until it disconnects.
//
// ============================================================================

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ChuLiYu/beaver-chat/internal/chat"
	"github.com/ChuLiYu/beaver-chat/internal/handler"
	"github.com/ChuLiYu/beaver-chat/internal/metrics"
	"github.com/ChuLiYu/beaver-chat/internal/request"
	"github.com/ChuLiYu/beaver-chat/internal/static"
	"github.com/ChuLiYu/beaver-chat/internal/worker"
)

var log = slog.Default()

// rejectDrainTimeout bounds how long a rejected connection is drained so the
// client sees the response before the socket is torn down.
const rejectDrainTimeout = 100 * time.Millisecond

// Config holds the chat listener settings
type Config struct {
	Host         string
	Port         int
	Threads      int
	MessageRate  float64 // messages per second per sender, 0 disables
	MessageBurst int
}

// Addr returns host:port
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server is the chat server
type Server struct {
	config    Config
	room      *chat.Room
	files     *static.Table
	handler   *handler.Handler
	pool      *worker.Pool
	collector *metrics.Collector
	health    *HealthServer

	mu       sync.Mutex
	listener net.Listener
}

// Option configures a Server
type Option func(*Server)

// WithCollector reports pool and request metrics to c
func WithCollector(c *metrics.Collector) Option {
	return func(s *Server) { s.collector = c }
}

// WithHealth keeps h's serving status in step with the accept loop
func WithHealth(h *HealthServer) Option {
	return func(s *Server) { s.health = h }
}

// New builds a server. files must contain every page in static.RequiredPages.
func New(config Config, files *static.Table, opts ...Option) (*Server, error) {
	if files == nil {
		return nil, errors.New("static file table is required")
	}
	if err := files.Require(static.RequiredPages...); err != nil {
		return nil, err
	}

	s := &Server{
		config: config,
		room:   chat.NewRoom(),
		files:  files,
	}
	for _, opt := range opts {
		opt(s)
	}

	handlerOpts := []handler.Option{handler.WithMessageRate(config.MessageRate, config.MessageBurst)}
	var poolOpts []worker.Option
	if s.collector != nil {
		handlerOpts = append(handlerOpts, handler.WithRecorder(s.collector))
		poolOpts = append(poolOpts, worker.WithObserver(s.collector))
	}
	s.handler = handler.New(s.room, files, handlerOpts...)

	pool, err := worker.NewPool(config.Threads, poolOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	s.pool = pool

	return s, nil
}

// Room exposes the shared chat state
func (s *Server) Room() *chat.Room {
	return s.room
}

// Addr returns the bound listener address, or nil before Serve
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe binds config.Addr() and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		s.pool.Stop()
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. It returns nil on
// a clean shutdown. Before returning it closes ln and waits for every
// accepted connection to be handled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		ln.Close()
	}()

	defer func() {
		if s.health != nil {
			s.health.SetServing(false)
		}
		s.pool.Stop()
		log.Info("Server stopped", "room", s.room.Stats())
	}()

	log.Info("Listening for connections",
		"addr", fmt.Sprintf("http://%s/", ln.Addr()),
		"threads", s.pool.WorkerCount(),
		"static_files", s.files.Len(),
	)
	if s.health != nil {
		s.health.SetServing(true)
	}

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			backoff = nextBackoff(backoff)
			log.Warn("Accept failed", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if err := s.pool.Go(func() { s.serveConn(conn) }); err != nil {
			log.Warn("Dropping connection", "remote", conn.RemoteAddr(), "error", err)
			conn.Close()
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		return time.Second
	}
	return d
}

// serveConn handles exactly one request on conn and closes it.
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr()

	req, err := request.Read(conn)
	switch {
	case err == nil:
		s.write(conn, s.handler.Handle(req))

	case errors.Is(err, request.ErrEmptyRequest):
		log.Debug("Connection closed without a request", "remote", remote)

	case errors.Is(err, request.ErrRequestTooLarge):
		log.Warn("Rejected oversized request", "remote", remote, "limit", request.MaxRequestSize)
		s.write(conn, s.handler.Reject(err))
		drain(conn)

	default:
		log.Warn("Failed to read request", "remote", remote, "error", err)
	}
}

func (s *Server) write(conn net.Conn, resp handler.Response) {
	if _, err := conn.Write(resp.Bytes()); err != nil {
		log.Warn("Failed to write response", "remote", conn.RemoteAddr(), "error", err)
	}
}

type closeWriter interface {
	CloseWrite() error
}

// drain half-closes conn and discards what the client is still sending, so
// closing a socket with unread data does not reset away the response.
func drain(conn net.Conn) {
	if cw, ok := conn.(closeWriter); ok {
		_ = cw.CloseWrite()
	}
	_ = conn.SetReadDeadline(time.Now().Add(rejectDrainTimeout))
	_, _ = io.Copy(io.Discard, io.LimitReader(conn, 1<<20))
}
