package middleware

import (
	"context"

	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/ports"
)

// Middleware allows wrapping a StateStore to add behavior.
type Middleware func(ports.StateStore) ports.StateStore

// Chain applies middlewares so that the first one is the outermost.
func Chain(store ports.StateStore, mws ...Middleware) ports.StateStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}

// list delegates to next when it can enumerate handles.
func list(ctx context.Context, next ports.StateStore, scope ports.Scope) ([]string, error) {
	lister, ok := next.(ports.Lister)
	if !ok {
		return nil, domain.ErrUnsupported
	}
	return lister.List(ctx, scope)
}
