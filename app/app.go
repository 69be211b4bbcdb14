package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/searchktools/http1-server/config"
	"github.com/searchktools/http1-server/core"
	"github.com/searchktools/http1-server/core/pools"
	"github.com/searchktools/http1-server/logging"
)

// shutdownSlack is added to the configured grace period for the whole
// shutdown sequence.
const shutdownSlack = time.Second

// App is the application instance: configuration, logging and the server.
type App struct {
	cfg    *config.Config
	log    *logrus.Logger
	closer io.Closer
	server *core.Server
}

// New creates an application instance. Log output goes to stderr.
func New(cfg *config.Config) (*App, error) {
	return NewWithOutput(cfg, os.Stderr)
}

// NewWithOutput is New with the console log output replaced.
func NewWithOutput(cfg *config.Config, out io.Writer) (*App, error) {
	log, closer, err := logging.New(cfg.Log, out)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	srv, err := core.New(cfg, core.Options{Logger: log})
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	return &App{cfg: cfg, log: log, closer: closer, server: srv}, nil
}

// Server returns the underlying server.
func (a *App) Server() *core.Server {
	return a.server
}

// Run serves until ctx is canceled or SIGINT or SIGTERM arrives, then
// shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	defer a.closer.Close()
	defer pools.ApplyGCConfig(a.cfg.GC)()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.server.Listen(ctx); err != nil {
		_ = a.server.Shutdown(context.Background())
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Serve(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGrace+shutdownSlack)
		defer cancel()
		return a.server.Shutdown(sctx)
	})
	return g.Wait()
}
