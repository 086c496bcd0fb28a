package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/flowstate/internal/logging"
	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock may be held.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// LockingOption configures the locking middleware.
type LockingOption func(*lockingMiddleware)

// WithLocker adds a distributed lock on top of the local one, for stores
// shared by several replicas.
func WithLocker(locker ports.DistributedLocker) LockingOption {
	return func(m *lockingMiddleware) {
		m.locker = locker
	}
}

// WithLockTTL sets the distributed lock TTL.
func WithLockTTL(ttl time.Duration) LockingOption {
	return func(m *lockingMiddleware) {
		m.ttl = ttl
	}
}

// WithLockLogger configures a logger for deferred unlock failures.
func WithLockLogger(logger *slog.Logger) LockingOption {
	return func(m *lockingMiddleware) {
		m.logger = logger
	}
}

// PerHandle narrows the lock from the whole scope to scope+handle. Only safe
// for stores whose records are independent keys (memory, redis, bolt); the
// session store rewrites one value per scope and needs the default.
func PerHandle() LockingOption {
	return func(m *lockingMiddleware) {
		m.perHandle = true
	}
}

type lockingMiddleware struct {
	next ports.StateStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker    ports.DistributedLocker
	ttl       time.Duration
	perHandle bool
	logger    *slog.Logger
}

// NewLockingMiddleware serializes store operations per scope (or per handle).
// Locks are reference counted and dropped once unused.
func NewLockingMiddleware(opts ...LockingOption) Middleware {
	return func(next ports.StateStore) ports.StateStore {
		m := &lockingMiddleware{
			next:   next,
			locks:  make(map[string]*lockEntry),
			ttl:    DefaultLockTTL,
			logger: logging.NewNop(),
		}
		for _, opt := range opts {
			opt(m)
		}
		return m
	}
}

func (m *lockingMiddleware) key(scope ports.Scope, handle string) string {
	if m.perHandle && handle != "" {
		return scope.ScopeID() + ":" + handle
	}
	return scope.ScopeID()
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and call release(key) after unlocking.
func (m *lockingMiddleware) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *lockingMiddleware) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// withLock executes fn while holding the lock for key.
func (m *lockingMiddleware) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, key, m.ttl)
		if err != nil {
			return &domain.StoreError{Op: "lock", Err: fmt.Errorf("failed to acquire distributed lock: %w", err)}
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"lock_key", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

func (m *lockingMiddleware) Load(ctx context.Context, scope ports.Scope, handle string) (*domain.Record, error) {
	var rec *domain.Record
	err := m.withLock(ctx, m.key(scope, handle), func(ctx context.Context) error {
		var err error
		rec, err = m.next.Load(ctx, scope, handle)
		return err
	})
	return rec, err
}

func (m *lockingMiddleware) Save(ctx context.Context, scope ports.Scope, rec *domain.Record) (string, error) {
	var handle string
	err := m.withLock(ctx, m.key(scope, rec.Handle), func(ctx context.Context) error {
		var err error
		handle, err = m.next.Save(ctx, scope, rec)
		return err
	})
	return handle, err
}

func (m *lockingMiddleware) Update(ctx context.Context, scope ports.Scope, handle string, rec *domain.Record) error {
	return m.withLock(ctx, m.key(scope, handle), func(ctx context.Context) error {
		return m.next.Update(ctx, scope, handle, rec)
	})
}

func (m *lockingMiddleware) Destroy(ctx context.Context, scope ports.Scope, handle string) error {
	return m.withLock(ctx, m.key(scope, handle), func(ctx context.Context) error {
		return m.next.Destroy(ctx, scope, handle)
	})
}

func (m *lockingMiddleware) List(ctx context.Context, scope ports.Scope) ([]string, error) {
	return list(ctx, m.next, scope)
}

// activeLocks reports the number of live lock entries. Used in tests.
func (m *lockingMiddleware) activeLocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
