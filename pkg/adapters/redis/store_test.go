package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/flowstate/pkg/adapters/redis"
	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/handle"
	"github.com/aretw0/flowstate/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, opts ...redis.Option) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redis.NewFromClient(client, opts...), mr
}

func TestRedisStore_Contract(t *testing.T) {
	store, _ := newStore(t)
	n := 0
	ports.RunStateStoreContract(t, store, func() ports.Scope {
		n++
		return ports.ScopeID(fmt.Sprintf("sid-%d", n))
	})
}

func TestRedisStore_KeyLayout(t *testing.T) {
	store, mr := newStore(t,
		redis.WithPrefix("test:"),
		redis.WithGenerator(handle.Sequence("H")),
	)
	ctx := context.Background()

	h, err := store.Save(ctx, ports.ScopeID("sid"), &domain.Record{Name: "/login", ReturnTo: "/home"})
	require.NoError(t, err)
	assert.Equal(t, "H1", h)

	raw, err := mr.Get("test:record:sid:H1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"/login","returnTo":"/home"}`, raw)

	members, err := mr.ZMembers("test:index:sid")
	require.NoError(t, err)
	assert.Equal(t, []string{"H1"}, members)
}

func TestRedisStore_RetriesTakenHandles(t *testing.T) {
	store, mr := newStore(t, redis.WithPrefix("test:"), redis.WithGenerator(handle.Sequence("H")))
	ctx := context.Background()
	require.NoError(t, mr.Set("test:record:sid:H1", "{}"))

	h, err := store.Save(ctx, ports.ScopeID("sid"), &domain.Record{ReturnTo: "/x"})
	require.NoError(t, err)
	assert.Equal(t, "H2", h)
}

func TestRedisStore_GivesUpOnCollisions(t *testing.T) {
	fixed := ports.HandleGeneratorFunc(func() (string, error) { return "dup", nil })
	store, mr := newStore(t, redis.WithPrefix("test:"), redis.WithGenerator(fixed))
	require.NoError(t, mr.Set("test:record:sid:dup", "{}"))

	_, err := store.Save(context.Background(), ports.ScopeID("sid"), &domain.Record{ReturnTo: "/x"})
	assert.Error(t, err)
}

func TestRedisStore_TTL(t *testing.T) {
	store, mr := newStore(t, redis.WithTTL(time.Minute))
	ctx := context.Background()
	scope := ports.ScopeID("sid")

	h, err := store.Save(ctx, scope, &domain.Record{ReturnTo: "/x"})
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = store.Load(ctx, scope, h)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = store.Update(ctx, scope, h, &domain.Record{ReturnTo: "/y"})
	assert.ErrorIs(t, err, domain.ErrNotFound, "expired records are not resurrected")
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newStore(t)
	mr.Close()

	_, err := store.Load(context.Background(), ports.ScopeID("sid"), "H1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestRedisStore_SaveRollsBackWhenIndexFails(t *testing.T) {
	store, mr := newStore(t, redis.WithPrefix("test:"), redis.WithGenerator(handle.Sequence("H")))
	ctx := context.Background()
	scope := ports.ScopeID("sid")
	require.NoError(t, mr.Set("test:index:sid", "not-a-zset"))

	_, err := store.Save(ctx, scope, &domain.Record{ReturnTo: "/x"})
	require.Error(t, err)
	assert.False(t, mr.Exists("test:record:sid:H1"))

	_, err = store.Save(ctx, scope, &domain.Record{Handle: "fixed", ReturnTo: "/x"})
	require.Error(t, err)
	assert.False(t, mr.Exists("test:record:sid:fixed"))
}

func TestRedisStore_UpdateRestoresPreviousWhenIndexFails(t *testing.T) {
	store, mr := newStore(t, redis.WithPrefix("test:"), redis.WithGenerator(handle.Sequence("H")))
	ctx := context.Background()
	scope := ports.ScopeID("sid")

	h, err := store.Save(ctx, scope, &domain.Record{ReturnTo: "/x"})
	require.NoError(t, err)

	mr.Del("test:index:sid")
	require.NoError(t, mr.Set("test:index:sid", "not-a-zset"))

	err = store.Update(ctx, scope, h, &domain.Record{ReturnTo: "/y"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)

	rec, err := store.Load(ctx, scope, h)
	require.NoError(t, err)
	assert.Equal(t, "/x", rec.ReturnTo)
}
