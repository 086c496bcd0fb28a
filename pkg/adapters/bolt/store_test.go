package bolt_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/aretw0/flowstate/pkg/adapters/bolt"
	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/handle"
	"github.com/aretw0/flowstate/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, opts ...bolt.Option) (*bolt.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flowstate.db")
	store, err := bolt.Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestBoltStore_Contract(t *testing.T) {
	store, _ := openStore(t)
	n := 0
	ports.RunStateStoreContract(t, store, func() ports.Scope {
		n++
		return ports.ScopeID(fmt.Sprintf("sid-%d", n))
	})
}

func TestBoltStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowstate.db")
	ctx := context.Background()
	scope := ports.ScopeID("sid")

	store, err := bolt.Open(path, bolt.WithGenerator(handle.Sequence("H")))
	require.NoError(t, err)
	h, err := store.Save(ctx, scope, &domain.Record{Name: "/login", ReturnTo: "/home"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = bolt.Open(path)
	require.NoError(t, err)
	defer store.Close()

	rec, err := store.Load(ctx, scope, h)
	require.NoError(t, err)
	assert.Equal(t, "/login", rec.Name)
	assert.Equal(t, "/home", rec.ReturnTo)
}

func TestBoltStore_Scopes(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, ports.ScopeID(""), &domain.Record{ReturnTo: "/a"})
	require.NoError(t, err)
	h, err := store.Save(ctx, ports.ScopeID("sid"), &domain.Record{ReturnTo: "/b"})
	require.NoError(t, err)

	scopes, err := store.Scopes(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"", "sid"}, scopes)

	require.NoError(t, store.Destroy(ctx, ports.ScopeID("sid"), h))
	scopes, err = store.Scopes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{""}, scopes, "empty scope buckets are dropped")
}
