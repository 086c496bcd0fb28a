package middleware_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/aretw0/flowstate/internal/logging"
	"github.com/aretw0/flowstate/pkg/adapters/memory"
	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/persistence/middleware"
	"github.com/aretw0/flowstate/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, slog.LevelDebug, "text")
	store := middleware.Chain(memory.NewStore(), middleware.NewLoggingMiddleware(logger))
	ctx := context.Background()
	scope := ports.ScopeID("sid")

	h, err := store.Save(ctx, scope, &domain.Record{ReturnTo: "/x"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "op=save")
	assert.Contains(t, buf.String(), "handle="+h)

	buf.Reset()
	_, err = store.Load(ctx, scope, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, buf.String(), "level=DEBUG", "a missing record is not a failure")

	lister, ok := store.(ports.Lister)
	require.True(t, ok)
	handles, err := lister.List(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, []string{h}, handles)
}

func TestChain_Order(t *testing.T) {
	key := make([]byte, 32)
	underlying := memory.NewStore()
	store := middleware.Chain(underlying,
		middleware.NewPIIMiddleware([]string{"password"}),
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}),
	)
	ctx := context.Background()
	scope := ports.ScopeID("sid")

	h, err := store.Save(ctx, scope, &domain.Record{Data: map[string]any{"password": "x", "user": "bob"}})
	require.NoError(t, err)

	loaded, err := store.Load(ctx, scope, h)
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, loaded.Data["password"], "PII runs before encryption")
	assert.Equal(t, "bob", loaded.Data["user"])
}
