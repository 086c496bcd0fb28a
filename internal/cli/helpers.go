package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/flowstate/internal/config"
	"github.com/aretw0/flowstate/internal/logging"
	"github.com/aretw0/flowstate/pkg/domain"
)

// SignalContext is cancelled on SIGINT or SIGTERM and remembers which signal
// arrived, so shutdown can be logged with its cause.
type SignalContext struct {
	context.Context
	Cancel context.CancelFunc

	mu  sync.Mutex
	sig os.Signal
}

// NewSignalContext starts watching for termination signals until ctx is done.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{Context: ctx, Cancel: cancel}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(ch)
		select {
		case sig := <-ch:
			sc.mu.Lock()
			sc.sig = sig
			sc.mu.Unlock()
			cancel()
		case <-ctx.Done():
		}
	}()
	return sc
}

// Signal returns the signal that cancelled the context, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sig
}

// shutdownCause describes why ctx ended, for logs.
func shutdownCause(ctx context.Context) string {
	if sc, ok := ctx.(interface{ Signal() os.Signal }); ok {
		if sig := sc.Signal(); sig != nil {
			return sig.String()
		}
	}
	if err := ctx.Err(); err != nil {
		return err.Error()
	}
	return "unknown"
}

// createLogger builds the application logger from the log section.
func createLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(level, cfg.Format), nil
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

// createDebugHooks logs every store call at debug level.
func createDebugHooks(logger *slog.Logger) domain.Hooks {
	return domain.Hooks{
		OnStoreOp: func(ctx context.Context, e *domain.StoreEvent) {
			if e.Err != nil {
				logger.DebugContext(ctx, "store op failed", "op", e.Op, "handle", e.Handle, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "store op", "op", e.Op, "handle", e.Handle)
		},
	}
}
