// Package server implements the TCP intake listener that accepts framed
// email submissions and hands them to the spool.
package server

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/artisan-hosting/mailing-server/internal/protocol"
	"github.com/artisan-hosting/mailing-server/internal/spool"
	"github.com/artisan-hosting/mailing-server/internal/state"
	"github.com/artisan-hosting/mailing-server/internal/telemetry"
)

// DefaultReadTimeout bounds how long a client may take to deliver one
// frame.
const DefaultReadTimeout = 30 * time.Second

// DefaultDrainTimeout is the maximum wait for in-flight connections on
// shutdown.
const DefaultDrainTimeout = 10 * time.Second

// Config holds the intake server settings.
type Config struct {
	// Bind is the TCP listen address.
	Bind string

	// ReadTimeout bounds a single client interaction.
	ReadTimeout time.Duration

	// DrainTimeout bounds the shutdown drain.
	DrainTimeout time.Duration
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
}

// Server accepts framed submissions on a TCP port. One frame is handled
// per connection; every event, accepted or not, bumps the persisted
// event counter.
type Server struct {
	cfg     Config
	queue   *spool.Dispatcher
	store   *state.Store
	metrics *telemetry.Metrics
	logger  *slog.Logger

	paused atomic.Bool

	mu   sync.Mutex
	addr net.Addr
}

// New creates a Server. Config defaults are applied automatically.
func New(cfg Config, queue *spool.Dispatcher, store *state.Store, metrics *telemetry.Metrics, logger *slog.Logger) *Server {
	cfg.ApplyDefaults()
	return &Server{
		cfg:     cfg,
		queue:   queue,
		store:   store,
		metrics: metrics,
		logger:  logger.With("component", "server"),
	}
}

// Pause makes the server answer submissions with an error status while a
// reload is in progress.
func (s *Server) Pause() { s.paused.Store(true) }

// Resume ends a pause.
func (s *Server) Resume() { s.paused.Store(false) }

// Addr returns the bound listen address, or nil before Run has bound it.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run listens on cfg.Bind and serves until ctx is cancelled, then drains
// in-flight connections up to the drain timeout.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Bind)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	s.logger.Info("intake listening", "addr", ln.Addr())

	// Unblock Accept on cancellation.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(conn)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.DrainTimeout):
		s.logger.Warn("drain timeout exceeded")
	}

	return ctx.Err()
}

// handle processes one frame from one connection.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(s.cfg.ReadTimeout))

	msg, err := protocol.ReadMessage(bufio.NewReader(conn))
	if err != nil {
		s.logger.Error("unreadable frame", "remote", conn.RemoteAddr(), "error", err)
		s.respond(conn, protocol.NewStatus(protocol.StatusError))
		s.bumpEvents()
		return
	}

	if s.paused.Load() {
		s.respond(conn, protocol.NewStatus(protocol.StatusError))
		return
	}

	if msg.Flags&protocol.FlagOptimized == 0 {
		// Plain frame: ask the client to resend in the optimized format.
		s.metrics.Sidegrades.Inc()
		s.logger.Warn("plain frame received, requesting optimized resend",
			"remote", conn.RemoteAddr())
		s.respond(conn, protocol.NewSidegrade())
		s.bumpEvents()
		return
	}

	email, err := protocol.DecodeEmail(msg)
	if err != nil {
		s.logger.Error("undecodable email payload", "remote", conn.RemoteAddr(), "error", err)
		s.respond(conn, protocol.NewStatus(protocol.StatusError))
		s.bumpEvents()
		return
	}

	id := s.queue.Enqueue(email)
	s.logger.Debug("submission accepted", "id", id, "remote", conn.RemoteAddr())
	s.respond(conn, protocol.NewStatus(protocol.StatusOk))
	s.bumpEvents()
}

func (s *Server) respond(conn net.Conn, msg protocol.Message) {
	if err := protocol.WriteMessage(conn, msg); err != nil {
		s.logger.Debug("response write failed", "remote", conn.RemoteAddr(), "error", err)
	}
}

func (s *Server) bumpEvents() {
	if err := s.store.BumpEvents(); err != nil {
		s.logger.Error("state update failed", "error", err)
	}
}
