package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/handle"
	"github.com/aretw0/flowstate/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "flowstate:"

	// saveAttempts bounds handle collisions on SET NX.
	saveAttempts = 5

	// farFuture scores index entries of records without a TTL (2100-01-01).
	farFuture = 4102444800
)

// Store implements ports.StateStore using Redis.
//
// Each record is a JSON string under prefix+scope+":"+handle. A sorted set per
// scope indexes live handles by expiry so List can prune lazily.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	gen    ports.HandleGenerator
}

// Option configures the Store.
type Option func(*Store)

// WithTTL sets the expiration for records. Writes refresh it.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithGenerator overrides the handle generator.
func WithGenerator(gen ports.HandleGenerator) Option {
	return func(s *Store) {
		s.gen = gen
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: defaultPrefix,
		gen:    handle.Default(),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client exposes the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(scope ports.Scope, h string) string {
	return s.prefix + "record:" + scope.ScopeID() + ":" + h
}

func (s *Store) indexKey(scope ports.Scope) string {
	return s.prefix + "index:" + scope.ScopeID()
}

func (s *Store) score() float64 {
	if s.ttl == 0 {
		return farFuture
	}
	return float64(time.Now().Add(s.ttl).Unix())
}

// Load retrieves the record from Redis.
func (s *Store) Load(ctx context.Context, scope ports.Scope, h string) (*domain.Record, error) {
	val, err := s.client.Get(ctx, s.key(scope, h)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, &domain.NotFoundError{Handle: h}
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var flat map[string]any
	if err := json.Unmarshal(val, &flat); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return domain.RecordFromMap(h, flat), nil
}

// Save persists a new record. Generated handles are claimed with SET NX.
func (s *Store) Save(ctx context.Context, scope ports.Scope, rec *domain.Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	h := rec.Handle
	var prev *string
	if h != "" {
		old, err := s.client.SetArgs(ctx, s.key(scope, h), data, backend.SetArgs{TTL: s.ttl, Get: true}).Result()
		switch {
		case errors.Is(err, backend.Nil):
		case err != nil:
			return "", fmt.Errorf("failed to save to redis: %w", err)
		default:
			prev = &old
		}
	} else {
		for attempt := 0; h == ""; attempt++ {
			if attempt == saveAttempts {
				return "", fmt.Errorf("failed to claim a free handle after %d attempts", saveAttempts)
			}
			candidate, err := s.gen.Generate()
			if err != nil {
				return "", fmt.Errorf("failed to generate handle: %w", err)
			}
			ok, err := s.client.SetNX(ctx, s.key(scope, candidate), data, s.ttl).Result()
			if err != nil {
				return "", fmt.Errorf("failed to save to redis: %w", err)
			}
			if ok {
				h = candidate
			}
		}
	}

	if err := s.index(ctx, scope, h, prev); err != nil {
		return "", err
	}
	return h, nil
}

// Update replaces an existing record using SET XX, so a missing key is never
// recreated.
func (s *Store) Update(ctx context.Context, scope ports.Scope, h string, rec *domain.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	old, err := s.client.SetArgs(ctx, s.key(scope, h), data, backend.SetArgs{Mode: "XX", TTL: s.ttl, Get: true}).Result()
	if errors.Is(err, backend.Nil) {
		return &domain.NotFoundError{Handle: h}
	}
	if err != nil {
		return fmt.Errorf("failed to update redis: %w", err)
	}
	return s.index(ctx, scope, h, &old)
}

// index records h in the scope index. MULTI does not roll back a failed
// command, so when ZADD fails the record key is put back to prev (or removed
// when prev is nil) and no half-written record is left behind.
func (s *Store) index(ctx context.Context, scope ports.Scope, h string, prev *string) error {
	err := s.client.ZAdd(ctx, s.indexKey(scope), backend.Z{
		Score:  s.score(),
		Member: h,
	}).Err()
	if err == nil {
		return nil
	}

	err = fmt.Errorf("failed to index record: %w", err)
	var undo error
	if prev == nil {
		undo = s.client.Del(ctx, s.key(scope, h)).Err()
	} else {
		undo = s.client.Set(ctx, s.key(scope, h), *prev, s.ttl).Err()
	}
	if undo != nil {
		return errors.Join(err, fmt.Errorf("failed to roll back record: %w", undo))
	}
	return err
}

// Destroy removes the record and its index entry.
func (s *Store) Destroy(ctx context.Context, scope ports.Scope, h string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(scope, h))
	pipe.ZRem(ctx, s.indexKey(scope), h)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// List returns the live handles of scope, pruning expired index entries first.
func (s *Store) List(ctx context.Context, scope ports.Scope) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(scope), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired records: %w", err)
	}

	handles, err := s.client.ZRange(ctx, s.indexKey(scope), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return handles, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
