// Package bolt provides a StateStore backed by an embedded bbolt database.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/handle"
	"github.com/aretw0/flowstate/pkg/ports"
	bolt "go.etcd.io/bbolt"
)

var rootBucket = []byte("flowstate")

// Store keeps records as JSON in a bbolt file: one nested bucket per scope
// under a single root bucket.
type Store struct {
	db  *bolt.DB
	gen ports.HandleGenerator
}

// Option configures the Store.
type Option func(*Store)

// WithGenerator overrides the handle generator.
func WithGenerator(gen ports.HandleGenerator) Option {
	return func(s *Store) {
		s.gen = gen
	}
}

// Open opens (or creates) the database file at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize bolt database: %w", err)
	}

	s := &Store{db: db, gen: handle.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// bucketName prefixes the scope ID so the empty scope still has a valid name.
func bucketName(scope ports.Scope) []byte {
	return []byte("scope:" + scope.ScopeID())
}

func scopeBucket(tx *bolt.Tx, scope ports.Scope) *bolt.Bucket {
	return tx.Bucket(rootBucket).Bucket(bucketName(scope))
}

// Load retrieves a record.
func (s *Store) Load(ctx context.Context, scope ports.Scope, h string) (*domain.Record, error) {
	var flat map[string]any
	err := s.db.View(func(tx *bolt.Tx) error {
		b := scopeBucket(tx, scope)
		if b == nil {
			return &domain.NotFoundError{Handle: h}
		}
		raw := b.Get([]byte(h))
		if raw == nil {
			return &domain.NotFoundError{Handle: h}
		}
		if err := json.Unmarshal(raw, &flat); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return domain.RecordFromMap(h, flat), nil
}

// Save stores a new record, generating a handle unless rec carries one.
func (s *Store) Save(ctx context.Context, scope ports.Scope, rec *domain.Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	h := rec.Handle
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(rootBucket).CreateBucketIfNotExists(bucketName(scope))
		if err != nil {
			return fmt.Errorf("failed to create scope bucket: %w", err)
		}
		for h == "" {
			candidate, err := s.gen.Generate()
			if err != nil {
				return fmt.Errorf("failed to generate handle: %w", err)
			}
			if b.Get([]byte(candidate)) == nil {
				h = candidate
			}
		}
		return b.Put([]byte(h), data)
	})
	if err != nil {
		return "", err
	}
	return h, nil
}

// Update replaces an existing record.
func (s *Store) Update(ctx context.Context, scope ports.Scope, h string, rec *domain.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := scopeBucket(tx, scope)
		if b == nil || b.Get([]byte(h)) == nil {
			return &domain.NotFoundError{Handle: h}
		}
		return b.Put([]byte(h), data)
	})
}

// Destroy removes a record; the scope bucket goes with its last record.
func (s *Store) Destroy(ctx context.Context, scope ports.Scope, h string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := scopeBucket(tx, scope)
		if b == nil {
			return nil
		}
		if err := b.Delete([]byte(h)); err != nil {
			return err
		}
		if k, _ := b.Cursor().First(); k == nil {
			return tx.Bucket(rootBucket).DeleteBucket(bucketName(scope))
		}
		return nil
	})
}

// List returns the handles stored under scope in key order.
func (s *Store) List(ctx context.Context, scope ports.Scope) ([]string, error) {
	var handles []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := scopeBucket(tx, scope)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			handles = append(handles, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return handles, nil
}

// Scopes returns the IDs of every scope holding at least one record.
func (s *Store) Scopes(ctx context.Context) ([]string, error) {
	var scopes []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(rootBucket).ForEach(func(k, v []byte) error {
			if v == nil {
				scopes = append(scopes, string(k[len("scope:"):]))
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}
	return scopes, nil
}
