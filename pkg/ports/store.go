package ports

import (
	"context"

	"github.com/aretw0/flowstate/pkg/domain"
)

// Scope identifies the per-client partition a store operates in, typically one
// client session. Stores never touch records outside the supplied scope.
type Scope interface {
	ScopeID() string
}

// ScopeID is a Scope that is nothing more than an identifier, suitable for
// stores that partition by key (memory, redis, bolt).
type ScopeID string

// ScopeID implements Scope.
func (s ScopeID) ScopeID() string { return string(s) }

// Session is a per-client key-value capability. The session-backed store keeps
// records inside it.
type Session interface {
	Scope
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
}

// StateStore defines how state records are persisted.
//
// Policy shared by every bundled implementation:
//   - Load returns a *domain.NotFoundError for unknown handles and never mutates.
//   - Save creates a new entry. It uses rec.Handle when set, otherwise it asks its
//     HandleGenerator. It fails with a *domain.StoreError wrapping
//     domain.ErrScopeUnsupported when the scope cannot persist.
//   - Update overwrites an existing entry and fails with *domain.NotFoundError
//     when the handle is absent. It never upserts.
//   - Destroy removes an entry; destroying an absent handle is a no-op.
type StateStore interface {
	Load(ctx context.Context, scope Scope, handle string) (*domain.Record, error)
	Save(ctx context.Context, scope Scope, rec *domain.Record) (string, error)
	Update(ctx context.Context, scope Scope, handle string, rec *domain.Record) error
	Destroy(ctx context.Context, scope Scope, handle string) error
}

// Lister is implemented by stores able to enumerate the handles of a scope.
type Lister interface {
	List(ctx context.Context, scope Scope) ([]string, error)
}

// HandleGenerator produces fresh opaque handles.
type HandleGenerator interface {
	Generate() (string, error)
}

// HandleGeneratorFunc adapts a function to HandleGenerator.
type HandleGeneratorFunc func() (string, error)

// Generate implements HandleGenerator.
func (f HandleGeneratorFunc) Generate() (string, error) { return f() }
