// Package session provides the default StateStore: flow records live inside
// the client's own session under a single key.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/handle"
	"github.com/aretw0/flowstate/pkg/ports"
)

// DefaultKey is the session key holding the handle-to-record map.
const DefaultKey = "state"

// Store keeps records in the session bound to each request.
//
// The session value is a map[string]any from handle to flat record. It is
// replaced on every write rather than mutated, and removed once the last
// record is destroyed. Scopes that are not a ports.Session cannot hold
// records: loads miss and saves fail with domain.ErrScopeUnsupported.
type Store struct {
	key string
	gen ports.HandleGenerator

	// mu serializes read-modify-write cycles on session values.
	mu sync.Mutex
}

// Option configures the Store.
type Option func(*Store)

// WithKey overrides the session key.
func WithKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

// WithGenerator overrides the handle generator.
func WithGenerator(gen ports.HandleGenerator) Option {
	return func(s *Store) {
		s.gen = gen
	}
}

// New creates a session-backed store.
func New(opts ...Option) *Store {
	s := &Store{
		key: DefaultKey,
		gen: handle.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) records(sess ports.Session) map[string]any {
	v, ok := sess.Get(s.key)
	if !ok {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

// write copies the current map, applies fn and stores the result.
func (s *Store) write(sess ports.Session, fn func(m map[string]any)) {
	current := s.records(sess)
	next := make(map[string]any, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	fn(next)
	if len(next) == 0 {
		sess.Delete(s.key)
		return
	}
	sess.Set(s.key, next)
}

// Load returns a copy of the record stored under h.
func (s *Store) Load(ctx context.Context, scope ports.Scope, h string) (*domain.Record, error) {
	sess, ok := scope.(ports.Session)
	if !ok {
		return nil, &domain.NotFoundError{Handle: h}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	flat, ok := s.records(sess)[h].(map[string]any)
	if !ok {
		return nil, &domain.NotFoundError{Handle: h}
	}
	return domain.RecordFromMap(h, flat), nil
}

// Save stores a new record in the session.
func (s *Store) Save(ctx context.Context, scope ports.Scope, rec *domain.Record) (string, error) {
	sess, ok := scope.(ports.Session)
	if !ok {
		return "", &domain.StoreError{Op: "save", Handle: rec.Handle, Err: domain.ErrScopeUnsupported}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.records(sess)
	h := rec.Handle
	for h == "" {
		generated, err := s.gen.Generate()
		if err != nil {
			return "", fmt.Errorf("failed to generate handle: %w", err)
		}
		if _, taken := existing[generated]; !taken {
			h = generated
		}
	}

	flat := rec.Flatten()
	s.write(sess, func(m map[string]any) { m[h] = flat })
	return h, nil
}

// Update replaces an existing record.
func (s *Store) Update(ctx context.Context, scope ports.Scope, h string, rec *domain.Record) error {
	sess, ok := scope.(ports.Session)
	if !ok {
		return &domain.NotFoundError{Handle: h}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records(sess)[h]; !ok {
		return &domain.NotFoundError{Handle: h}
	}
	flat := rec.Flatten()
	s.write(sess, func(m map[string]any) { m[h] = flat })
	return nil
}

// Destroy removes the record. Missing records and sessionless scopes are
// ignored.
func (s *Store) Destroy(ctx context.Context, scope ports.Scope, h string) error {
	sess, ok := scope.(ports.Session)
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records(sess)[h]; !ok {
		return nil
	}
	s.write(sess, func(m map[string]any) { delete(m, h) })
	return nil
}

// List returns the handles held by the session, sorted.
func (s *Store) List(ctx context.Context, scope ports.Scope) ([]string, error) {
	sess, ok := scope.(ports.Session)
	if !ok {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.records(sess)
	handles := make([]string, 0, len(records))
	for h := range records {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	return handles, nil
}
