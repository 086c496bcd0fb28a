package runtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/flowstate/internal/logging"
	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/ports"
	"github.com/aretw0/flowstate/pkg/registry"
	"github.com/aretw0/flowstate/pkg/session"
)

// ScopeResolver picks the store scope for a request.
type ScopeResolver func(r *http.Request) ports.Scope

// ErrorHandler writes the response for a failed dispatch.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Dispatcher runs flows against a StateStore.
type Dispatcher struct {
	store    ports.StateStore
	config   *registry.Config
	planner  Planner
	scope    ScopeResolver
	onError  ErrorHandler
	hooks    domain.Hooks
	logger   *slog.Logger
	maxDepth int
	now      func() time.Time

	freeze sync.Once
}

// DispatcherOption configures the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithHooks registers observability hooks.
func WithHooks(hooks domain.Hooks) DispatcherOption {
	return func(d *Dispatcher) {
		d.hooks = hooks
	}
}

// WithHandleParam changes the query/body parameter carrying the handle.
func WithHandleParam(param string) DispatcherOption {
	return func(d *Dispatcher) {
		if param != "" {
			d.planner.Param = param
		}
	}
}

// WithScopeResolver overrides how a request maps to a store scope.
func WithScopeResolver(fn ScopeResolver) DispatcherOption {
	return func(d *Dispatcher) {
		d.scope = fn
	}
}

// WithErrorHandler overrides how failures are reported to the client.
func WithErrorHandler(fn ErrorHandler) DispatcherOption {
	return func(d *Dispatcher) {
		d.onError = fn
	}
}

// WithMaxDepth bounds the parent chain length.
func WithMaxDepth(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxDepth = n
		}
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// NewDispatcher creates a dispatcher over store and config.
func NewDispatcher(store ports.StateStore, config *registry.Config, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		config:   config,
		planner:  Planner{Param: domain.DefaultHandleParam},
		scope:    SessionScope,
		onError:  DefaultErrorHandler,
		logger:   logging.NewNop(),
		maxDepth: DefaultMaxDepth,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns the dispatcher configuration.
func (d *Dispatcher) Config() *registry.Config {
	return d.config
}

// Handler wraps next with flow. next receives requests the flow passes
// through, with the transaction available via domain.TxnFromContext. A nil
// next answers 204.
func (d *Dispatcher) Handler(flow *registry.Flow, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.serve(w, r, flow, next)
	})
}

func (d *Dispatcher) serve(w http.ResponseWriter, r *http.Request, flow *registry.Flow, next http.Handler) {
	d.freeze.Do(d.config.Freeze)

	name := flow.Name
	if name == "" {
		name = r.URL.Path
	}

	c := &call{
		d:     d,
		flow:  flow,
		name:  name,
		scope: d.scope(r),
		w:     w,
		r:     r,
		next:  next,
	}

	start := d.now()
	err := c.run(r.Context())
	if err != nil {
		c.outcome = domain.OutcomeError
	}
	c.emitOutcome(r.Context(), start, err)

	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, context.Canceled) {
			d.logger.Error("flow failed", "flow", name, "handle", c.handle(), "err", err)
		}
		d.onError(w, r, err)
		return
	}
	d.logger.Debug("flow dispatched",
		"flow", name,
		"outcome", c.outcome,
		"handle", c.handle(),
		"location", c.location,
	)
}

// SessionScope scopes records to the session bound to the request, or to an
// anonymous scope when there is none.
func SessionScope(r *http.Request) ports.Scope {
	if s, ok := session.FromContext(r.Context()); ok {
		return s
	}
	return ports.ScopeID("")
}

// DefaultErrorHandler maps dispatch failures to status codes. A cancelled
// request gets no response.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	var storeErr *domain.StoreError
	switch {
	case errors.Is(err, context.Canceled):
		return
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "invalid or expired state", http.StatusBadRequest)
	case errors.Is(err, domain.ErrBrokenChain):
		http.Error(w, "invalid state chain", http.StatusBadRequest)
	case errors.As(err, &storeErr):
		http.Error(w, "state store unavailable", http.StatusServiceUnavailable)
	default:
		// Handler failures and anything unexpected.
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
