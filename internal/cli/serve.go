package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aretw0/flowstate"
	httpAdapter "github.com/aretw0/flowstate/internal/adapters/http"
	"github.com/aretw0/flowstate/internal/config"
	"github.com/aretw0/flowstate/pkg/observability"
	"github.com/aretw0/flowstate/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// shutdownTimeout bounds how long in-flight requests may take once a
// shutdown starts.
const shutdownTimeout = 5 * time.Second

// ServeOptions configures Serve.
type ServeOptions struct {
	Config *config.Config
	// Debug logs every store call.
	Debug bool
	// Ready is called with the bound address once the listener is open.
	Ready func(addr string)
}

// Serve runs the demo server until ctx is done, then shuts it down
// gracefully.
func Serve(ctx context.Context, opts ServeOptions) error {
	cfg := opts.Config
	logger, err := createLogger(cfg.Log)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("failed to close store", "err", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewMetrics(reg, "flowstate")
	if err != nil {
		return err
	}
	hooks := []flowstate.Hooks{metrics.Hooks(), observability.LogHooks(logger)}
	if opts.Debug {
		hooks = append(hooks, createDebugHooks(logger))
	}

	fs := flowstate.New(
		flowstate.WithStore(store),
		flowstate.WithLogger(logger),
		flowstate.WithHooks(observability.Combine(hooks...)),
		flowstate.WithHandleParam(cfg.Handle.Param),
		flowstate.WithMaxDepth(cfg.MaxDepth),
	)

	ttl, err := cfg.SessionTTL()
	if err != nil {
		return err
	}
	sessions := session.NewManager(session.WithTTL(ttl), session.WithLogger(logger))
	handler, err := httpAdapter.NewHandler(fs,
		httpAdapter.WithSessions(sessions, session.CookieConfig{
			Name:   cfg.Session.Cookie,
			Secure: cfg.Session.Secure,
		}),
		httpAdapter.WithMetrics(reg),
		httpAdapter.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to build handler: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting flowstate server", "addr", ln.Addr().String(), "store", cfg.Store.Driver)
		serverErrors <- srv.Serve(ln)
	}()
	if opts.Ready != nil {
		opts.Ready(ln.Addr().String())
	}
	if ttl > 0 {
		go sweepSessions(ctx, sessions, ttl, logger)
	}

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		logger.Info("shutting down", "cause", shutdownCause(ctx))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
			if err := srv.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to close server: %w", err)
			}
		}
		logger.Info("flowstate server stopped")
		return nil
	}
}

// sweepSessions evicts idle sessions every ttl until ctx is done.
func sweepSessions(ctx context.Context, sessions *session.Manager, ttl time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(); n > 0 {
				logger.Debug("swept sessions", "count", n)
			}
		}
	}
}
