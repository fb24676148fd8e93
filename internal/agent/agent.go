// Package agent assembles torrouterd: the status aggregator, the action
// dispatcher, the state watcher and the HTTP API, and runs them until
// cancelled.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/torrouter/torrouter/internal/api"
	"github.com/torrouter/torrouter/internal/config"
	"github.com/torrouter/torrouter/internal/control"
	"github.com/torrouter/torrouter/internal/metrics"
	"github.com/torrouter/torrouter/internal/profiles"
	"github.com/torrouter/torrouter/internal/runner"
	"github.com/torrouter/torrouter/internal/status"
	"github.com/torrouter/torrouter/internal/watch"
)

// shutdownTimeout bounds graceful HTTP shutdown. Open status streams are
// cut after it.
const shutdownTimeout = 5 * time.Second

// Agent owns the daemon's components.
type Agent struct {
	cfg        *config.Config
	log        *slog.Logger
	status     *status.Aggregator
	dispatcher *control.Dispatcher
	watcher    *watch.Watcher
}

// New wires the live host sources and the exec runner.
func New(cfg *config.Config, log *slog.Logger) *Agent {
	return NewWithSources(cfg, status.DefaultSources(cfg), runner.Exec{}, log)
}

// NewWithSources lets tests replace the host sources and the trigger runner.
func NewWithSources(cfg *config.Config, src status.Sources, r runner.Runner, log *slog.Logger) *Agent {
	store := &profiles.Store{Dir: cfg.ProfileDir}
	if src.Profiles == nil {
		src.Profiles = store
	}
	return &Agent{
		cfg:        cfg,
		log:        log,
		status:     status.New(cfg, src, log),
		dispatcher: control.New(cfg, r, store, log),
	}
}

// Status returns the aggregator, for one-shot commands.
func (a *Agent) Status() *status.Aggregator { return a.status }

// Dispatcher returns the dispatcher, for one-shot commands.
func (a *Agent) Dispatcher() *control.Dispatcher { return a.dispatcher }

// Handler returns the full HTTP API. Useful for testing without a listener.
func (a *Agent) Handler() (http.Handler, error) {
	prefixes, err := a.cfg.Prefixes()
	if err != nil {
		return nil, err
	}
	opts := api.Options{
		WebRoot:         a.cfg.WebRoot,
		AllowedNetworks: prefixes,
		MaxUploadBytes:  a.cfg.Control.MaxUploadBytes,
	}
	if a.cfg.Metrics.Enabled {
		opts.Metrics = metrics.Handler(metrics.NewCollector(a.status, a.cfg.Metrics.ScrapeTimeout.Duration))
		opts.MetricsPath = a.cfg.Metrics.Path
	}
	if a.cfg.Stream.Enabled {
		opts.StreamInterval = a.cfg.Stream.Interval.Duration
		if a.watcher != nil {
			opts.Wake = a.watcher
		}
	}
	return api.New(a.status, a.dispatcher, opts, a.log).Handler(), nil
}

// Run listens on the configured address and serves until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Listen, err)
	}
	return a.RunOnListener(ctx, ln)
}

// RunOnListener serves on ln until ctx is cancelled. Tests bind ln to a free
// port on 127.0.0.1.
func (a *Agent) RunOnListener(ctx context.Context, ln net.Listener) error {
	if a.cfg.Stream.Enabled {
		w, err := watch.New(a.log, []string{a.cfg.ProfileDir}, []string{a.cfg.Status.WANStateFile})
		if err != nil {
			a.log.Warn("state watcher unavailable; stream falls back to its interval", "err", err)
		} else {
			a.watcher = w
			go w.Run(ctx)
		}
	}

	h, err := a.Handler()
	if err != nil {
		_ = ln.Close()
		return err
	}
	a.log.Info("torrouterd listening", "addr", ln.Addr().String())
	return serveHTTP(ctx, ln, h)
}

// serveHTTP blocks until ctx is cancelled, then shuts down gracefully.
func serveHTTP(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	done := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = srv.Close()
	return <-done
}
