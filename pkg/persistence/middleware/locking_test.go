package middleware

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/flowstate/pkg/adapters/memory"
	"github.com/aretw0/flowstate/pkg/adapters/redis"
	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowStore detects overlapping calls.
type slowStore struct {
	ports.StateStore
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (s *slowStore) Update(ctx context.Context, scope ports.Scope, handle string, rec *domain.Record) error {
	if s.inFlight.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.inFlight.Add(-1)
	time.Sleep(5 * time.Millisecond)
	return s.StateStore.Update(ctx, scope, handle, rec)
}

func TestLockingMiddleware_Contract(t *testing.T) {
	n := 0
	ports.RunStateStoreContract(t, NewLockingMiddleware()(memory.NewStore()), func() ports.Scope {
		n++
		return ports.ScopeID(fmt.Sprintf("sid-%d", n))
	})
}

func TestLockingMiddleware_Serializes(t *testing.T) {
	inner := &slowStore{StateStore: memory.NewStore()}
	store := NewLockingMiddleware()(inner)
	ctx := context.Background()
	scope := ports.ScopeID("sid")

	h, err := store.Save(ctx, scope, &domain.Record{ReturnTo: "/x"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Update(ctx, scope, h, &domain.Record{Data: map[string]any{"i": i}}))
		}(i)
	}
	wg.Wait()

	assert.False(t, inner.overlap.Load(), "updates on one scope must not overlap")
	assert.Equal(t, 0, store.(*lockingMiddleware).activeLocks(), "unused locks are released")
}

func TestLockingMiddleware_Keys(t *testing.T) {
	byScope := NewLockingMiddleware()(memory.NewStore()).(*lockingMiddleware)
	perHandle := NewLockingMiddleware(PerHandle())(memory.NewStore()).(*lockingMiddleware)
	scope := ports.ScopeID("sid")

	assert.Equal(t, "sid", byScope.key(scope, "H1"))
	assert.Equal(t, "sid:H1", perHandle.key(scope, "H1"))
	assert.Equal(t, "sid", perHandle.key(scope, ""), "saves without a handle lock the scope")
}

func TestLockingMiddleware_Distributed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	locker := redis.NewLocker(client, "test:")
	store := NewLockingMiddleware(WithLocker(locker), WithLockTTL(time.Second))(memory.NewStore())
	ctx := context.Background()

	_, err := store.Save(ctx, ports.ScopeID("sid"), &domain.Record{ReturnTo: "/x"})
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:lock:sid"), "distributed lock is released after the operation")

	require.NoError(t, mr.Set("test:lock:busy", "other-replica"))
	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = store.Save(short, ports.ScopeID("busy"), &domain.Record{ReturnTo: "/x"})
	var storeErr *domain.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "lock", storeErr.Op)
}
