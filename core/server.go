package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"k8s.io/utils/clock"

	"github.com/searchktools/http1-server/config"
	"github.com/searchktools/http1-server/core/http"
	"github.com/searchktools/http1-server/core/middleware"
	"github.com/searchktools/http1-server/core/observability"
	"github.com/searchktools/http1-server/core/pools"
	"github.com/searchktools/http1-server/core/static"
	"github.com/searchktools/http1-server/core/upload"
)

// tcpKeepAlivePeriod is the TCP keepalive probe interval on accepted
// sockets.
const tcpKeepAlivePeriod = 30 * time.Second

// Options carries the collaborators a Server is built with. Nil fields
// get defaults: the standard logger, the wall clock and the OS
// filesystem.
type Options struct {
	Logger logrus.FieldLogger
	Clock  clock.PassiveClock
	Fs     afero.Fs
}

// Server is the HTTP/1.1 server: one acceptor goroutine handing accepted
// connections to a fixed worker pool. A connection is owned by the
// worker that dequeued it until it closes.
type Server struct {
	cfg   *config.Config
	log   logrus.FieldLogger
	clock clock.PassiveClock

	responder *http.Responder
	rate      *middleware.RateLimiter
	size      *middleware.SizeLimiter
	gate      *middleware.Gate
	resolver  *static.Resolver
	uploads   *upload.Store
	metrics   *observability.Collector
	dashboard *observability.Dashboard
	pool      *pools.WorkerPool

	mu      sync.Mutex
	ln      *net.TCPListener
	serving bool
	conns   map[*Connection]struct{}

	stop     chan struct{}
	stopOnce sync.Once
	served   chan struct{}

	// Acceptor-only housekeeping timestamps.
	lastStatus time.Time
	lastPrune  time.Time
}

// New builds a server from cfg. It starts the worker pool, so every
// server returned must be shut down.
func New(cfg *config.Config, opts Options) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	resolver, err := static.NewResolver(cfg.DocumentRoot, opts.Fs)
	if err != nil {
		return nil, fmt.Errorf("document root %s: %w", cfg.DocumentRoot, err)
	}

	rate := middleware.NewRateLimiter(cfg.RateLimit, opts.Clock)
	size := middleware.NewSizeLimiter(cfg.Limits)
	s := &Server{
		cfg:   cfg,
		log:   opts.Logger,
		clock: opts.Clock,
		responder: &http.Responder{
			ServerName:       cfg.ServerName,
			KeepAliveTimeout: cfg.IdleTimeout,
			KeepAliveMax:     cfg.MaxRequestsPerConn,
			Now:              opts.Clock.Now,
		},
		rate:      rate,
		size:      size,
		resolver:  resolver,
		uploads:   upload.NewStore(opts.Fs, filepath.Join(resolver.Root(), cfg.UploadDir), opts.Clock),
		metrics:   observability.NewCollector(opts.Clock),
		dashboard: observability.NewDashboard(opts.Clock, rate, size),
		conns:     make(map[*Connection]struct{}),
		stop:      make(chan struct{}),
		served:    make(chan struct{}),
	}

	s.pool = pools.NewWorkerPool(pools.Config{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Logger:    s.log.WithField("component", "worker_pool"),
	})
	if err := s.metrics.RegisterPool(s.pool.Stats); err != nil {
		_ = s.pool.Shutdown(false, 0)
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}
	return s, nil
}

// Listen binds the listening socket. The Host validator is built here
// because it needs the bound port, which differs from the configured
// one when that is 0.
func (s *Server) Listen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return ErrAlreadyServing
	}
	select {
	case <-s.stop:
		return ErrServerClosed
	default:
	}

	lc := net.ListenConfig{Control: control}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr(), err)
	}
	tl, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return fmt.Errorf("listen %s: not a TCP listener", s.cfg.Addr())
	}
	s.ln = tl

	port := tl.Addr().(*net.TCPAddr).Port
	s.gate = middleware.NewGate(s.rate, s.size, middleware.NewHostValidator(s.cfg.Host, port))

	s.log.WithFields(logrus.Fields{
		"addr":    tl.Addr().String(),
		"root":    s.resolver.Root(),
		"workers": s.cfg.Workers,
		"queue":   s.cfg.QueueSize,
		"checks":  s.gate.Names(),
	}).Info("server listening")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ListenAndServe binds and then serves until ctx is done or Shutdown is
// called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the acceptor loop. Accept polls with a short deadline so
// the loop notices ctx and Shutdown promptly; non-timeout accept errors
// are retried with exponential backoff.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	switch {
	case ln == nil:
		s.mu.Unlock()
		return ErrNotListening
	case s.serving:
		s.mu.Unlock()
		return ErrAlreadyServing
	}
	s.serving = true
	s.mu.Unlock()
	defer close(s.served)

	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(5*time.Millisecond),
		backoff.WithMaxInterval(time.Second),
		backoff.WithMaxElapsedTime(0),
	)
	s.lastStatus = s.clock.Now()
	s.lastPrune = s.lastStatus

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		default:
		}
		s.housekeeping()

		if err := ln.SetDeadline(time.Now().Add(s.cfg.AcceptPoll)); err != nil {
			if s.stopping() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("set accept deadline: %w", err)
		}
		nc, err := ln.Accept()
		if err != nil {
			if s.stopping() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			wait := bo.NextBackOff()
			s.log.WithError(err).WithField("retry_in", wait).Error("accept failed")
			select {
			case <-ctx.Done():
				return nil
			case <-s.stop:
				return nil
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()
		s.handle(nc)
	}
}

// handle submits an accepted connection to the pool, or answers 503 and
// closes it when the queue stays full for the submit timeout.
func (s *Server) handle(nc net.Conn) {
	if tc, ok := nc.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(tcpKeepAlivePeriod)
	}

	c := newConnection(s, nc)
	s.track(c)
	if s.pool.TrySubmit(c, s.cfg.SubmitTimeout) {
		return
	}
	stats := s.pool.Stats()
	s.log.WithFields(logrus.Fields{
		"client": c.remote,
		"queued": stats.Queued,
		"active": stats.Active,
	}).Warn("worker pool saturated, rejecting connection")
	c.Reject()
}

func (s *Server) housekeeping() {
	now := s.clock.Now()
	if s.cfg.StatusInterval > 0 && now.Sub(s.lastStatus) >= s.cfg.StatusInterval {
		s.lastStatus = now
		stats := s.PoolStats()
		gc := pools.GetGCStats()
		s.log.WithFields(logrus.Fields{
			"heap_alloc":  gc.HeapAlloc,
			"num_gc":      gc.NumGC,
			"workers":     stats.Workers.Workers,
			"active":      stats.Workers.Active,
			"queued":      stats.Workers.Queued,
			"completed":   stats.Workers.Completed,
			"failed":      stats.Workers.Failed,
			"rejected":    stats.Workers.Rejected,
			"shed":        stats.Workers.Shed,
			"connections": stats.Connections,
		}).Info("worker status")
	}
	if s.cfg.PruneInterval > 0 && now.Sub(s.lastPrune) >= s.cfg.PruneInterval {
		s.lastPrune = now
		if n := s.rate.Prune(s.cfg.PruneAfter); n > 0 {
			s.log.WithField("clients", n).Debug("pruned rate limiter state")
		}
	}
}

func (s *Server) track(c *Connection) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *Connection) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// Shutdown stops the acceptor and closes connections waiting for their
// next request. Requests in flight get the grace period, bounded by the
// ctx deadline; connections still queued are answered 503. Connections
// left after the grace period are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	ln, serving := s.ln, s.serving
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	if serving {
		select {
		case <-s.served:
		case <-ctx.Done():
		}
	}

	s.closeWhere(func(c *Connection) bool { return c.State() == StateAwaitRequest })

	grace := s.cfg.ShutdownGrace
	if deadline, ok := ctx.Deadline(); ok {
		grace = min(grace, max(time.Until(deadline), 0))
	}
	err := s.pool.Shutdown(true, grace)
	s.closeWhere(func(*Connection) bool { return true })

	if err != nil {
		s.log.WithError(err).Warn("server stopped with requests in flight")
		return err
	}
	s.log.Info("server stopped")
	return nil
}

// closeWhere closes the sockets of tracked connections that match.
// The owning workers see the closed socket and finish the connection.
func (s *Server) closeWhere(match func(*Connection) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		if match(c) {
			_ = c.nc.Close()
		}
	}
}

// Metrics returns the request metrics collector.
func (s *Server) Metrics() *observability.Collector { return s.metrics }

// Dashboard returns the security dashboard.
func (s *Server) Dashboard() *observability.Dashboard { return s.dashboard }

// RateLimiter returns the rate limiter shared by all connections.
func (s *Server) RateLimiter() *middleware.RateLimiter { return s.rate }
