// Package handle provides HandleGenerator implementations.
//
// Production handles must be unguessable: a handle alone authorizes reading a
// state record. Random and UUID draw from crypto/rand; Sequence is for tests.
package handle

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/aretw0/flowstate/pkg/ports"
	"github.com/google/uuid"
)

// DefaultSize is the number of random bytes in a default handle (128 bits).
const DefaultSize = 16

// Random returns a generator producing base64url handles of size random bytes.
// Sizes below DefaultSize are raised to DefaultSize.
func Random(size int) ports.HandleGenerator {
	if size < DefaultSize {
		size = DefaultSize
	}
	return ports.HandleGeneratorFunc(func() (string, error) {
		buf := make([]byte, size)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random handle: %w", err)
		}
		return base64.RawURLEncoding.EncodeToString(buf), nil
	})
}

// Default returns the production generator.
func Default() ports.HandleGenerator {
	return Random(DefaultSize)
}

// UUID returns a generator producing random (version 4) UUIDs.
func UUID() ports.HandleGenerator {
	return ports.HandleGeneratorFunc(func() (string, error) {
		id, err := uuid.NewRandom()
		if err != nil {
			return "", fmt.Errorf("failed to generate uuid handle: %w", err)
		}
		return id.String(), nil
	})
}

// Sequence returns a deterministic generator yielding prefix1, prefix2, ...
// It is predictable and must only be used in tests.
func Sequence(prefix string) ports.HandleGenerator {
	var (
		mu sync.Mutex
		n  int
	)
	return ports.HandleGeneratorFunc(func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%d", prefix, n), nil
	})
}

// Named resolves a generator by configuration name: "random", "uuid".
func Named(name string) (ports.HandleGenerator, error) {
	switch name {
	case "", "random":
		return Default(), nil
	case "uuid":
		return UUID(), nil
	}
	return nil, fmt.Errorf("unknown handle generator %q", name)
}
