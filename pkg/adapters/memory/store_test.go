package memory_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/flowstate/pkg/adapters/memory"
	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/handle"
	"github.com/aretw0/flowstate/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scopes() func() ports.Scope {
	n := 0
	return func() ports.Scope {
		n++
		return ports.ScopeID(fmt.Sprintf("scope-%d", n))
	}
}

func TestMemoryStore_Contract(t *testing.T) {
	ports.RunStateStoreContract(t, memory.NewStore(), scopes())
}

func TestMemoryStore_Isolation(t *testing.T) {
	store := memory.NewStore(memory.WithGenerator(handle.Sequence("H")))
	ctx := context.Background()
	scope := ports.ScopeID("sid")

	rec := &domain.Record{Data: map[string]any{"nested": map[string]any{"k": "v"}}}
	h, err := store.Save(ctx, scope, rec)
	require.NoError(t, err)
	assert.Equal(t, "H1", h)

	rec.Data["nested"].(map[string]any)["k"] = "mutated"
	loaded, err := store.Load(ctx, scope, h)
	require.NoError(t, err)
	assert.Equal(t, "v", loaded.Data["nested"].(map[string]any)["k"])

	loaded.Data["nested"].(map[string]any)["k"] = "mutated"
	again, err := store.Load(ctx, scope, h)
	require.NoError(t, err)
	assert.Equal(t, "v", again.Data["nested"].(map[string]any)["k"])
}

func TestMemoryStore_SkipsTakenHandles(t *testing.T) {
	store := memory.NewStore(memory.WithGenerator(handle.Sequence("H")))
	ctx := context.Background()
	scope := ports.ScopeID("sid")

	_, err := store.Save(ctx, scope, &domain.Record{Handle: "H1", ReturnTo: "/a"})
	require.NoError(t, err)

	h, err := store.Save(ctx, scope, &domain.Record{ReturnTo: "/b"})
	require.NoError(t, err)
	assert.Equal(t, "H2", h)
}

func TestMemoryStore_TypedValuesAreCopied(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	scope := ports.ScopeID("sid")

	tags := []string{"orig"}
	h, err := store.Save(ctx, scope, &domain.Record{Data: map[string]any{"tags": tags}})
	require.NoError(t, err)
	tags[0] = "mutated-after-save"

	loaded, err := store.Load(ctx, scope, h)
	require.NoError(t, err)
	loaded.Data["tags"].([]string)[0] = "mutated-after-load"

	again, err := store.Load(ctx, scope, h)
	require.NoError(t, err)
	assert.Equal(t, []string{"orig"}, again.Data["tags"])
}
