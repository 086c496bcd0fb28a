package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/ports"
)

// EnvelopeKey is the only data key of an encrypted record as seen by the
// wrapped store.
const EnvelopeKey = "__encrypted__"

// ErrUndecryptable is returned when no configured key opens a record.
var ErrUndecryptable = errors.New("record cannot be decrypted")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey seals every write. Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried, in order, on records the active key cannot
	// open, so keys can be rotated without rewriting stored records.
	FallbackKeys [][]byte
}

// ParseKey decodes a base64 AES-256 key as found in configuration.
func ParseKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

type encryptionMiddleware struct {
	next ports.StateStore
	// keys[0] seals; all of them are tried when opening.
	keys []cipher.AEAD
}

// NewEncryptionMiddleware seals records with AES-GCM. The wrapped store only
// ever sees an envelope, and the scope ID is authenticated with it: a record
// copied into another scope does not open.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	keys := make([]cipher.AEAD, 0, 1+len(config.FallbackKeys))
	for _, k := range append([][]byte{config.ActiveKey}, config.FallbackKeys...) {
		aead, err := newAEAD(k)
		if err != nil {
			panic(fmt.Sprintf("invalid encryption key: %v", err))
		}
		keys = append(keys, aead)
	}
	return func(next ports.StateStore) ports.StateStore {
		return &encryptionMiddleware{next: next, keys: keys}
	}
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (m *encryptionMiddleware) seal(scope ports.Scope, rec *domain.Record) (*domain.Record, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	aead := m.keys[0]
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, payload, []byte(scope.ScopeID()))

	return &domain.Record{
		Handle: rec.Handle,
		Data:   map[string]any{EnvelopeKey: base64.StdEncoding.EncodeToString(sealed)},
	}, nil
}

func (m *encryptionMiddleware) open(scope ports.Scope, envelope *domain.Record) (*domain.Record, error) {
	// Once encryption is on, plain records are not trusted.
	encoded, ok := envelope.Data[EnvelopeKey].(string)
	if !ok {
		return nil, fmt.Errorf("%w: no envelope", ErrUndecryptable)
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecryptable, err)
	}

	for _, aead := range m.keys {
		n := aead.NonceSize()
		if len(sealed) < n {
			break
		}
		payload, err := aead.Open(nil, sealed[:n], sealed[n:], []byte(scope.ScopeID()))
		if err != nil {
			continue
		}
		rec := &domain.Record{Handle: envelope.Handle}
		if err := json.Unmarshal(payload, rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decrypted record: %w", err)
		}
		return rec, nil
	}
	return nil, ErrUndecryptable
}

func (m *encryptionMiddleware) Save(ctx context.Context, scope ports.Scope, rec *domain.Record) (string, error) {
	envelope, err := m.seal(scope, rec)
	if err != nil {
		return "", err
	}
	return m.next.Save(ctx, scope, envelope)
}

func (m *encryptionMiddleware) Update(ctx context.Context, scope ports.Scope, handle string, rec *domain.Record) error {
	envelope, err := m.seal(scope, rec)
	if err != nil {
		return err
	}
	return m.next.Update(ctx, scope, handle, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, scope ports.Scope, handle string) (*domain.Record, error) {
	envelope, err := m.next.Load(ctx, scope, handle)
	if err != nil {
		return nil, err
	}
	envelope.Handle = handle
	return m.open(scope, envelope)
}

func (m *encryptionMiddleware) Destroy(ctx context.Context, scope ports.Scope, handle string) error {
	return m.next.Destroy(ctx, scope, handle)
}

func (m *encryptionMiddleware) List(ctx context.Context, scope ports.Scope) ([]string, error) {
	return list(ctx, m.next, scope)
}
