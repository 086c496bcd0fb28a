package ports

import (
	"context"
	"testing"

	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore
// implementation adheres to the interface contract. newScope must return a
// fresh, empty scope on every call.
func RunStateStoreContract(t *testing.T, store StateStore, newScope func() Scope) {
	ctx := context.Background()

	t.Run("Save and Load", func(t *testing.T) {
		scope := newScope()
		rec := &domain.Record{
			Name:     "/login",
			ReturnTo: "/continue",
			Data: map[string]any{
				"client":      "s6BhdRkqt3",
				"redirectURI": "https://client.example.com/cb",
			},
		}

		handle, err := store.Save(ctx, scope, rec)
		require.NoError(t, err, "Save should not return error")
		require.NotEmpty(t, handle, "Save should generate a handle")

		loaded, err := store.Load(ctx, scope, handle)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, handle, loaded.Handle)
		assert.Equal(t, rec.Flatten(), loaded.Flatten())
		assert.NotContains(t, loaded.Data, "handle", "handle must not be embedded in the payload")
	})

	t.Run("Save Generates Unique Handles", func(t *testing.T) {
		scope := newScope()
		seen := make(map[string]bool)
		for i := 0; i < 16; i++ {
			h, err := store.Save(ctx, scope, domain.NewRecord("/flow"))
			require.NoError(t, err)
			assert.False(t, seen[h], "duplicate handle %q", h)
			seen[h] = true
		}
	})

	t.Run("Save With Supplied Handle", func(t *testing.T) {
		scope := newScope()
		rec := &domain.Record{Handle: "af0ifjsldkj", ReturnTo: "/home"}
		handle, err := store.Save(ctx, scope, rec)
		require.NoError(t, err)
		assert.Equal(t, "af0ifjsldkj", handle)

		loaded, err := store.Load(ctx, scope, "af0ifjsldkj")
		require.NoError(t, err)
		assert.Equal(t, "/home", loaded.ReturnTo)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, newScope(), "non-existent")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		scope := newScope()
		handle, err := store.Save(ctx, scope, &domain.Record{ReturnTo: "/continue"})
		require.NoError(t, err)

		updated := &domain.Record{ReturnTo: "/continue", Data: map[string]any{
			"authN": []any{map[string]any{"method": "password"}},
		}}
		require.NoError(t, store.Update(ctx, scope, handle, updated))

		loaded, err := store.Load(ctx, scope, handle)
		require.NoError(t, err)
		assert.Equal(t, updated.Flatten(), loaded.Flatten())
	})

	t.Run("Update Non-Existent", func(t *testing.T) {
		err := store.Update(ctx, newScope(), "missing", &domain.Record{ReturnTo: "/x"})
		assert.ErrorIs(t, err, domain.ErrNotFound, "Update must not upsert")
	})

	t.Run("Idempotent Round Trip", func(t *testing.T) {
		scope := newScope()
		handle, err := store.Save(ctx, scope, &domain.Record{
			Name:   "/ebooks/awesome-sauce",
			Parent: "8KraIxA8PJA",
			Data:   map[string]any{"verifier": "secret"},
		})
		require.NoError(t, err)

		first, err := store.Load(ctx, scope, handle)
		require.NoError(t, err)
		require.NoError(t, store.Update(ctx, scope, handle, first))

		second, err := store.Load(ctx, scope, handle)
		require.NoError(t, err)
		assert.Equal(t, first.Flatten(), second.Flatten(), "no accretion of reserved fields")
	})

	t.Run("Destroy", func(t *testing.T) {
		scope := newScope()
		handle, err := store.Save(ctx, scope, &domain.Record{ReturnTo: "/dashboard"})
		require.NoError(t, err)

		require.NoError(t, store.Destroy(ctx, scope, handle), "Destroy should not return error")

		_, err = store.Load(ctx, scope, handle)
		assert.ErrorIs(t, err, domain.ErrNotFound, "Load after Destroy should return ErrNotFound")

		assert.NoError(t, store.Destroy(ctx, scope, handle), "repeated Destroy must be a no-op")
	})

	t.Run("Scope Isolation", func(t *testing.T) {
		a, b := newScope(), newScope()
		handle, err := store.Save(ctx, a, &domain.Record{Handle: "shared", ReturnTo: "/a"})
		require.NoError(t, err)

		_, err = store.Load(ctx, b, handle)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, store.Destroy(ctx, b, handle))
		_, err = store.Load(ctx, a, handle)
		assert.NoError(t, err, "destroy in another scope must not touch this one")
	})

	if lister, ok := store.(Lister); ok {
		t.Run("List", func(t *testing.T) {
			scope := newScope()
			h1, err := store.Save(ctx, scope, &domain.Record{ReturnTo: "/1"})
			require.NoError(t, err)
			h2, err := store.Save(ctx, scope, &domain.Record{ReturnTo: "/2"})
			require.NoError(t, err)

			handles, err := lister.List(ctx, scope)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{h1, h2}, handles)
		})
	}
}
