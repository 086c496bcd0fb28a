package runtime_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aretw0/flowstate/internal/runtime"
	"github.com/aretw0/flowstate/pkg/adapters/memory"
	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/handle"
	"github.com/aretw0/flowstate/pkg/ports"
	"github.com/aretw0/flowstate/pkg/registry"
	"github.com/stretchr/testify/require"
)

// spyStore counts the calls the dispatcher makes and can inject failures.
type spyStore struct {
	ports.StateStore

	mu    sync.Mutex
	calls map[string][]string
	seq   []string
	fail  map[string]error
}

func (s *spyStore) record(op, h string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op] = append(s.calls[op], h)
	s.seq = append(s.seq, op+":"+h)
	return s.fail[op]
}

func (s *spyStore) Load(ctx context.Context, scope ports.Scope, h string) (*domain.Record, error) {
	if err := s.record("load", h); err != nil {
		return nil, err
	}
	return s.StateStore.Load(ctx, scope, h)
}

func (s *spyStore) Save(ctx context.Context, scope ports.Scope, rec *domain.Record) (string, error) {
	if err := s.record("save", rec.Handle); err != nil {
		return "", err
	}
	return s.StateStore.Save(ctx, scope, rec)
}

func (s *spyStore) Update(ctx context.Context, scope ports.Scope, h string, rec *domain.Record) error {
	if err := s.record("update", h); err != nil {
		return err
	}
	return s.StateStore.Update(ctx, scope, h, rec)
}

func (s *spyStore) Destroy(ctx context.Context, scope ports.Scope, h string) error {
	if err := s.record("destroy", h); err != nil {
		return err
	}
	return s.StateStore.Destroy(ctx, scope, h)
}

// Calls returns the handles passed to op, in order.
func (s *spyStore) Calls(op string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls[op]...)
}

// Seq returns every call as "op:handle", in order.
func (s *spyStore) Seq() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seq...)
}

var errUnavailable = errors.New("backend unavailable")

type harness struct {
	t       *testing.T
	backing *memory.Store
	spy     *spyStore
	config  *registry.Config
	d       *runtime.Dispatcher
}

// anon is the scope used when no session is bound to the request.
var anon = ports.ScopeID("")

func newHarness(t *testing.T, seed map[string]map[string]any, opts ...runtime.DispatcherOption) *harness {
	t.Helper()
	backing := memory.NewStore(memory.WithGenerator(handle.Sequence("H")))
	for h, flat := range seed {
		_, err := backing.Save(context.Background(), anon, domain.RecordFromMap(h, flat))
		require.NoError(t, err)
	}

	spy := &spyStore{
		StateStore: backing,
		calls:      make(map[string][]string),
		fail:       make(map[string]error),
	}
	cfg := registry.New()
	return &harness{
		t:       t,
		backing: backing,
		spy:     spy,
		config:  cfg,
		d:       runtime.NewDispatcher(spy, cfg, opts...),
	}
}

func (h *harness) flow(flow registry.Flow, next http.Handler) http.Handler {
	h.t.Helper()
	f, err := h.config.Register(flow)
	require.NoError(h.t, err)
	return h.d.Handler(f, next)
}

func (h *harness) onResume(into, from string, stages ...domain.Stage) {
	h.t.Helper()
	require.NoError(h.t, h.config.OnResume(into, from, stages...))
}

func (h *harness) serve(handler http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

// stored returns the flat record persisted under handle, or nil.
func (h *harness) stored(handle string) map[string]any {
	rec, err := h.backing.Load(context.Background(), anon, handle)
	if err != nil {
		return nil
	}
	return rec.Flatten()
}

func (h *harness) handles() []string {
	handles, err := h.backing.List(context.Background(), anon)
	require.NoError(h.t, err)
	return handles
}

// ok is a pass-through endpoint.
var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})
