// Package file provides a StateStore that keeps each record as a JSON file.
package file

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/handle"
	"github.com/aretw0/flowstate/pkg/ports"
)

// DefaultDir is used when no base path is given.
var DefaultDir = filepath.Join(".flowstate", "records")

const (
	scopePrefix = "s_"
	ext         = ".json"
)

// Store lays records out as <base>/s_<scope>/<handle>.json. Scope IDs and
// handles are base64url-encoded so neither can escape the base directory.
// Writes go through a temporary file and a rename.
type Store struct {
	BasePath string

	gen ports.HandleGenerator
	// mu serializes writers within this process; rename keeps readers
	// consistent across processes.
	mu sync.Mutex
}

// Option configures the Store.
type Option func(*Store)

// WithGenerator overrides the handle generator.
func WithGenerator(gen ports.HandleGenerator) Option {
	return func(s *Store) {
		s.gen = gen
	}
}

// NewStore creates a store rooted at basePath, defaulting to DefaultDir.
func NewStore(basePath string, opts ...Option) *Store {
	if basePath == "" {
		basePath = DefaultDir
	}
	s := &Store{BasePath: basePath, gen: handle.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func encode(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func decode(s string) (string, bool) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func (s *Store) scopeDir(scope ports.Scope) string {
	return filepath.Join(s.BasePath, scopePrefix+encode(scope.ScopeID()))
}

func (s *Store) path(scope ports.Scope, h string) string {
	return filepath.Join(s.scopeDir(scope), encode(h)+ext)
}

// Load reads the record file.
func (s *Store) Load(ctx context.Context, scope ports.Scope, h string) (*domain.Record, error) {
	data, err := os.ReadFile(s.path(scope, h))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.NotFoundError{Handle: h}
		}
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return domain.RecordFromMap(h, flat), nil
}

// Save writes a new record. Generated handles are claimed with an exclusive
// create so concurrent writers never share one.
func (s *Store) Save(ctx context.Context, scope ports.Scope, rec *domain.Record) (string, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.scopeDir(scope), 0o755); err != nil {
		return "", fmt.Errorf("failed to ensure scope directory: %w", err)
	}

	h := rec.Handle
	for h == "" {
		generated, err := s.gen.Generate()
		if err != nil {
			return "", fmt.Errorf("failed to generate handle: %w", err)
		}
		f, err := os.OpenFile(s.path(scope, generated), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to claim handle: %w", err)
		}
		_ = f.Close()
		h = generated
	}

	if err := s.write(s.path(scope, h), data); err != nil {
		return "", err
	}
	return h, nil
}

// Update replaces an existing record file.
func (s *Store) Update(ctx context.Context, scope ports.Scope, h string, rec *domain.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(scope, h)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &domain.NotFoundError{Handle: h}
		}
		return fmt.Errorf("failed to stat record file: %w", err)
	}
	return s.write(path, data)
}

func (s *Store) write(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write record file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write record file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace record file: %w", err)
	}
	return nil
}

// Destroy removes the record file and the scope directory once empty.
func (s *Store) Destroy(ctx context.Context, scope ports.Scope, h string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(scope, h))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete record file: %w", err)
	}
	// Fails harmlessly while other records remain.
	_ = os.Remove(s.scopeDir(scope))
	return nil
}

// List returns the handles stored under scope, sorted.
func (s *Store) List(ctx context.Context, scope ports.Scope) ([]string, error) {
	entries, err := os.ReadDir(s.scopeDir(scope))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	var handles []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ext {
			continue
		}
		if h, ok := decode(strings.TrimSuffix(name, ext)); ok {
			handles = append(handles, h)
		}
	}
	sort.Strings(handles)
	return handles, nil
}

// Scopes returns every scope ID with at least one record, sorted.
func (s *Store) Scopes(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}

	var scopes []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), scopePrefix) {
			continue
		}
		if id, ok := decode(strings.TrimPrefix(entry.Name(), scopePrefix)); ok {
			scopes = append(scopes, id)
		}
	}
	sort.Strings(scopes)
	return scopes, nil
}
