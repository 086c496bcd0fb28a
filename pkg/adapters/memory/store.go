package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/handle"
	"github.com/aretw0/flowstate/pkg/ports"
)

// Store implements ports.StateStore in process memory, partitioned by scope ID.
// Records are stored in their flat shape and copied on read and write.
// Safe for concurrent use.
type Store struct {
	data map[string]map[string]map[string]any
	mu   sync.RWMutex
	gen  ports.HandleGenerator
}

// Option configures the Store.
type Option func(*Store)

// WithGenerator overrides the handle generator.
func WithGenerator(gen ports.HandleGenerator) Option {
	return func(s *Store) {
		s.gen = gen
	}
}

// NewStore creates a new in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		data: make(map[string]map[string]map[string]any),
		gen:  handle.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load retrieves a copy of the record.
func (s *Store) Load(ctx context.Context, scope ports.Scope, h string) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flat, ok := s.data[scope.ScopeID()][h]
	if !ok {
		return nil, &domain.NotFoundError{Handle: h}
	}
	return domain.RecordFromMap(h, flat), nil
}

// Save stores a new record, generating a handle unless rec carries one.
func (s *Store) Save(ctx context.Context, scope ports.Scope, rec *domain.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.data[scope.ScopeID()]
	if bucket == nil {
		bucket = make(map[string]map[string]any)
		s.data[scope.ScopeID()] = bucket
	}

	h := rec.Handle
	for h == "" {
		generated, err := s.gen.Generate()
		if err != nil {
			return "", fmt.Errorf("failed to generate handle: %w", err)
		}
		if _, taken := bucket[generated]; !taken {
			h = generated
		}
	}
	bucket[h] = rec.Flatten()
	return h, nil
}

// Update replaces an existing record.
func (s *Store) Update(ctx context.Context, scope ports.Scope, h string, rec *domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.data[scope.ScopeID()]
	if _, ok := bucket[h]; !ok {
		return &domain.NotFoundError{Handle: h}
	}
	bucket[h] = rec.Flatten()
	return nil
}

// Destroy removes the record. Missing records are ignored.
func (s *Store) Destroy(ctx context.Context, scope ports.Scope, h string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := scope.ScopeID()
	delete(s.data[id], h)
	if len(s.data[id]) == 0 {
		delete(s.data, id)
	}
	return nil
}

// List returns the handles stored under scope, sorted.
func (s *Store) List(ctx context.Context, scope ports.Scope) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.data[scope.ScopeID()]
	handles := make([]string, 0, len(bucket))
	for h := range bucket {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	return handles, nil
}
