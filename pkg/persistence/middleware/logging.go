package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/ports"
)

type loggingMiddleware struct {
	next   ports.StateStore
	logger *slog.Logger
}

// NewLoggingMiddleware logs every store operation at Debug, and failures other
// than a missing record at Warn.
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next ports.StateStore) ports.StateStore {
		return &loggingMiddleware{next: next, logger: logger}
	}
}

func (m *loggingMiddleware) log(ctx context.Context, op string, scope ports.Scope, handle string, start time.Time, err error) {
	attrs := []any{
		"op", op,
		"scope", scope.ScopeID(),
		"handle", handle,
		"duration", time.Since(start),
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		m.logger.WarnContext(ctx, "store operation failed", append(attrs, "err", err)...)
		return
	}
	m.logger.DebugContext(ctx, "store operation", attrs...)
}

func (m *loggingMiddleware) Load(ctx context.Context, scope ports.Scope, handle string) (*domain.Record, error) {
	start := time.Now()
	rec, err := m.next.Load(ctx, scope, handle)
	m.log(ctx, "load", scope, handle, start, err)
	return rec, err
}

func (m *loggingMiddleware) Save(ctx context.Context, scope ports.Scope, rec *domain.Record) (string, error) {
	start := time.Now()
	handle, err := m.next.Save(ctx, scope, rec)
	m.log(ctx, "save", scope, handle, start, err)
	return handle, err
}

func (m *loggingMiddleware) Update(ctx context.Context, scope ports.Scope, handle string, rec *domain.Record) error {
	start := time.Now()
	err := m.next.Update(ctx, scope, handle, rec)
	m.log(ctx, "update", scope, handle, start, err)
	return err
}

func (m *loggingMiddleware) Destroy(ctx context.Context, scope ports.Scope, handle string) error {
	start := time.Now()
	err := m.next.Destroy(ctx, scope, handle)
	m.log(ctx, "destroy", scope, handle, start, err)
	return err
}

func (m *loggingMiddleware) List(ctx context.Context, scope ports.Scope) ([]string, error) {
	return list(ctx, m.next, scope)
}
