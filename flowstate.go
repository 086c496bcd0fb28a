package flowstate

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/flowstate/internal/logging"
	"github.com/aretw0/flowstate/internal/runtime"
	sessionstore "github.com/aretw0/flowstate/pkg/adapters/session"
	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/persistence/middleware"
	"github.com/aretw0/flowstate/pkg/ports"
	"github.com/aretw0/flowstate/pkg/registry"
)

// Dispatcher is the high-level entry point of the library.
// It owns the flow configuration and wraps the internal runtime.
type Dispatcher struct {
	runtime     *runtime.Dispatcher
	config      *registry.Config
	store       ports.StateStore
	storeMWs    []middleware.Middleware
	runtimeOpts []runtime.DispatcherOption
	logger      *slog.Logger
}

// Option defines a functional option for configuring the Dispatcher.
type Option func(*Dispatcher)

// WithStore replaces the default session-backed StateStore.
func WithStore(store ports.StateStore) Option {
	return func(d *Dispatcher) {
		d.store = store
	}
}

// WithStoreMiddleware wraps the store. The first middleware is the outermost.
func WithStoreMiddleware(mws ...middleware.Middleware) Option {
	return func(d *Dispatcher) {
		d.storeMWs = append(d.storeMWs, mws...)
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithHooks registers observability hooks.
func WithHooks(hooks domain.Hooks) Option {
	return func(d *Dispatcher) {
		d.runtimeOpts = append(d.runtimeOpts, runtime.WithHooks(hooks))
	}
}

// WithHandleParam changes the parameter carrying the handle (default "state").
func WithHandleParam(param string) Option {
	return func(d *Dispatcher) {
		d.runtimeOpts = append(d.runtimeOpts, runtime.WithHandleParam(param))
	}
}

// WithScopeResolver overrides how a request maps to a store scope. By default
// records are scoped to the session bound by session.Manager.Middleware.
func WithScopeResolver(fn func(r *http.Request) ports.Scope) Option {
	return func(d *Dispatcher) {
		d.runtimeOpts = append(d.runtimeOpts, runtime.WithScopeResolver(fn))
	}
}

// WithErrorHandler overrides how dispatch failures are written.
func WithErrorHandler(fn func(w http.ResponseWriter, r *http.Request, err error)) Option {
	return func(d *Dispatcher) {
		d.runtimeOpts = append(d.runtimeOpts, runtime.WithErrorHandler(fn))
	}
}

// WithMaxDepth bounds how many parent records a request may follow.
func WithMaxDepth(n int) Option {
	return func(d *Dispatcher) {
		d.runtimeOpts = append(d.runtimeOpts, runtime.WithMaxDepth(n))
	}
}

// New creates a Dispatcher. Without WithStore, records live in the session
// bound to each request.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		config: registry.New(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.store == nil {
		d.store = sessionstore.New()
	}
	d.store = middleware.Chain(d.store, d.storeMWs...)

	rtOpts := append([]runtime.DispatcherOption{runtime.WithLogger(d.logger)}, d.runtimeOpts...)
	d.runtime = runtime.NewDispatcher(d.store, d.config, rtOpts...)
	return d
}

// FlowOption customizes a flow registration.
type FlowOption func(*registry.Flow)

// External marks a flow whose inbound handle parameter belongs to a remote
// protocol. It never loads a record from the request; the incoming value is
// left for its stages to read. External flows always start fresh and are
// correlated only by the handle the yielding flow issued.
func External() FlowOption {
	return func(f *registry.Flow) {
		f.External = true
	}
}

// Register adds a flow and returns its middleware. An empty name makes the
// flow take the request path as its name.
func (d *Dispatcher) Register(name string, stages []Stage, opts ...FlowOption) (func(http.Handler) http.Handler, error) {
	flow := registry.Flow{Name: name, Stages: stages}
	for _, opt := range opts {
		opt(&flow)
	}
	f, err := d.config.Register(flow)
	if err != nil {
		return nil, err
	}
	return func(next http.Handler) http.Handler {
		return d.runtime.Handler(f, next)
	}, nil
}

// Flow is like Register but panics on error. Intended for route setup.
func (d *Dispatcher) Flow(name string, stages []Stage, opts ...FlowOption) func(http.Handler) http.Handler {
	mw, err := d.Register(name, stages, opts...)
	if err != nil {
		panic(fmt.Sprintf("flowstate: %v", err))
	}
	return mw
}

// Handler is a terminal variant of Flow: requests the flow passes through
// are answered with 204.
func (d *Dispatcher) Handler(name string, stages ...Stage) http.Handler {
	return d.Flow(name, stages)(nil)
}

// OnResume registers the stages run when a sub-flow named from completes and
// the flow named into resumes.
func (d *Dispatcher) OnResume(into, from string, stages ...Stage) error {
	return d.config.OnResume(into, from, stages...)
}

// Config exposes the flow configuration. It is frozen by the first request.
func (d *Dispatcher) Config() *registry.Config {
	return d.config
}

// Store returns the store the dispatcher writes to, middleware included.
func (d *Dispatcher) Store() ports.StateStore {
	return d.store
}
