package cli

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/flowstate/internal/config"
	boltstore "github.com/aretw0/flowstate/pkg/adapters/bolt"
	filestore "github.com/aretw0/flowstate/pkg/adapters/file"
	"github.com/aretw0/flowstate/pkg/adapters/memory"
	redisstore "github.com/aretw0/flowstate/pkg/adapters/redis"
	sessionstore "github.com/aretw0/flowstate/pkg/adapters/session"
	"github.com/aretw0/flowstate/pkg/handle"
	"github.com/aretw0/flowstate/pkg/persistence/middleware"
	"github.com/aretw0/flowstate/pkg/ports"
)

// backend is an opened store plus what it brings along.
type backend struct {
	store  ports.StateStore
	locker ports.DistributedLocker
	close  func() error
}

// openBackend opens the store selected by store.driver.
func openBackend(cfg *config.Config) (*backend, error) {
	gen, err := handle.Named(cfg.Handle.Generator)
	if err != nil {
		return nil, err
	}

	noop := func() error { return nil }
	switch cfg.Store.Driver {
	case config.DriverSession:
		return &backend{store: sessionstore.New(sessionstore.WithGenerator(gen)), close: noop}, nil

	case config.DriverMemory:
		return &backend{store: memory.NewStore(memory.WithGenerator(gen)), close: noop}, nil

	case config.DriverRedis:
		opts, err := cfg.RedisOptions()
		if err != nil {
			return nil, err
		}
		s := redisstore.New(opts.Addr, opts.Password, opts.DB,
			redisstore.WithPrefix(opts.Prefix),
			redisstore.WithTTL(opts.TTL),
			redisstore.WithGenerator(gen),
		)
		return &backend{
			store:  s,
			locker: redisstore.NewLocker(s.Client(), opts.Prefix),
			close:  s.Close,
		}, nil

	case config.DriverBolt:
		opts, err := cfg.BoltOptions()
		if err != nil {
			return nil, err
		}
		s, err := boltstore.Open(opts.Path, boltstore.WithGenerator(gen))
		if err != nil {
			return nil, err
		}
		return &backend{store: s, close: s.Close}, nil

	case config.DriverFile:
		opts, err := cfg.FileOptions()
		if err != nil {
			return nil, err
		}
		return &backend{store: filestore.NewStore(opts.Dir, filestore.WithGenerator(gen)), close: noop}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// storeMiddleware builds the decorators enabled by cfg, outermost first:
// logging, locking, PII masking, encryption.
func storeMiddleware(cfg *config.Config, b *backend, logger *slog.Logger) ([]middleware.Middleware, error) {
	mws := []middleware.Middleware{middleware.NewLoggingMiddleware(logger)}

	if cfg.Locking {
		opts := []middleware.LockingOption{middleware.PerHandle(), middleware.WithLockLogger(logger)}
		if b.locker != nil {
			opts = append(opts, middleware.WithLocker(b.locker))
		}
		mws = append(mws, middleware.NewLockingMiddleware(opts...))
	}

	if len(cfg.PII) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.PII))
	}

	if cfg.Encryption.Key != "" {
		active, err := middleware.ParseKey(cfg.Encryption.Key)
		if err != nil {
			return nil, fmt.Errorf("encryption.key: %w", err)
		}
		enc := middleware.EncryptionConfig{ActiveKey: active}
		for i, k := range cfg.Encryption.FallbackKeys {
			key, err := middleware.ParseKey(k)
			if err != nil {
				return nil, fmt.Errorf("encryption.fallbackKeys[%d]: %w", i, err)
			}
			enc.FallbackKeys = append(enc.FallbackKeys, key)
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(enc))
	}
	return mws, nil
}

// openStore opens the configured backend wrapped in its middleware. The
// returned func closes the backend.
func openStore(cfg *config.Config, logger *slog.Logger) (ports.StateStore, func() error, error) {
	b, err := openBackend(cfg)
	if err != nil {
		return nil, nil, err
	}
	mws, err := storeMiddleware(cfg, b, logger)
	if err != nil {
		_ = b.close()
		return nil, nil, err
	}
	return middleware.Chain(b.store, mws...), b.close, nil
}
