// Package config loads the flowstate server configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Environment variables overriding file values.
const (
	EnvRedisAddr     = "FLOWSTATE_REDIS_ADDR"
	EnvEncryptionKey = "FLOWSTATE_ENCRYPTION_KEY"
)

// Store drivers.
const (
	DriverSession = "session"
	DriverMemory  = "memory"
	DriverRedis   = "redis"
	DriverBolt    = "bolt"
	DriverFile    = "file"
)

// Config is the server configuration.
type Config struct {
	Listen     string           `yaml:"listen" json:"listen"`
	Log        LogConfig        `yaml:"log" json:"log"`
	Handle     HandleConfig     `yaml:"handle" json:"handle"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Session    SessionConfig    `yaml:"session" json:"session"`
	Encryption EncryptionConfig `yaml:"encryption" json:"encryption"`
	// PII lists key patterns masked before records reach the store.
	PII []string `yaml:"pii" json:"pii"`
	// Locking serializes store access per handle.
	Locking  bool `yaml:"locking" json:"locking"`
	MaxDepth int  `yaml:"maxDepth" json:"maxDepth"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

type HandleConfig struct {
	Param     string `yaml:"param" json:"param"`
	Generator string `yaml:"generator" json:"generator"`
}

// StoreConfig selects a driver. Options are decoded per driver.
type StoreConfig struct {
	Driver  string         `yaml:"driver" json:"driver"`
	Options map[string]any `yaml:"options" json:"options"`
}

type SessionConfig struct {
	TTL    string `yaml:"ttl" json:"ttl"`
	Cookie string `yaml:"cookie" json:"cookie"`
	Secure bool   `yaml:"secure" json:"secure"`
}

type EncryptionConfig struct {
	// Key is a base64 AES-256 key. Empty disables encryption.
	Key          string   `yaml:"key" json:"key"`
	FallbackKeys []string `yaml:"fallbackKeys" json:"fallbackKeys"`
}

// RedisOptions are the options of the redis driver.
type RedisOptions struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// BoltOptions are the options of the bolt driver.
type BoltOptions struct {
	Path string `mapstructure:"path"`
}

// FileOptions are the options of the file driver.
type FileOptions struct {
	Dir string `mapstructure:"dir"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Log:    LogConfig{Level: "info", Format: "text"},
		Handle: HandleConfig{Param: "state", Generator: "random"},
		Store:  StoreConfig{Driver: DriverSession},
		Session: SessionConfig{
			TTL: "30m",
		},
	}
}

// Load reads path over the defaults. YAML and JSON are picked by extension;
// an empty path yields the defaults. Environment overrides apply last.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse json config %s: %w", path, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse yaml config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return nil
}

func (c *Config) applyEnv() {
	if addr := os.Getenv(EnvRedisAddr); addr != "" {
		if c.Store.Options == nil {
			c.Store.Options = make(map[string]any)
		}
		c.Store.Options["addr"] = addr
	}
	if key := os.Getenv(EnvEncryptionKey); key != "" {
		c.Encryption.Key = key
	}
}

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverSession, DriverMemory, DriverRedis:
	case DriverBolt:
		opts, err := c.BoltOptions()
		if err != nil {
			errs = append(errs, err)
		} else if opts.Path == "" {
			errs = append(errs, errors.New("store.options.path is required for the bolt driver"))
		}
	case DriverFile:
		if _, err := c.FileOptions(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if _, err := c.SessionTTL(); err != nil {
		errs = append(errs, err)
	}
	for _, p := range c.PII {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("invalid pii pattern %q: %w", p, err))
		}
	}
	if c.MaxDepth < 0 {
		errs = append(errs, errors.New("maxDepth must not be negative"))
	}
	return errors.Join(errs...)
}

// SessionTTL parses session.ttl. Empty means no expiry.
func (c *Config) SessionTTL() (time.Duration, error) {
	if c.Session.TTL == "" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(c.Session.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid session.ttl: %w", err)
	}
	return ttl, nil
}

// RedisOptions decodes store.options for the redis driver.
func (c *Config) RedisOptions() (RedisOptions, error) {
	opts := RedisOptions{Addr: "localhost:6379", Prefix: "flowstate:"}
	if err := c.decodeOptions(&opts); err != nil {
		return RedisOptions{}, err
	}
	return opts, nil
}

// BoltOptions decodes store.options for the bolt driver.
func (c *Config) BoltOptions() (BoltOptions, error) {
	var opts BoltOptions
	if err := c.decodeOptions(&opts); err != nil {
		return BoltOptions{}, err
	}
	return opts, nil
}

// FileOptions decodes store.options for the file driver. An empty dir falls
// back to the store's default location.
func (c *Config) FileOptions() (FileOptions, error) {
	var opts FileOptions
	if err := c.decodeOptions(&opts); err != nil {
		return FileOptions{}, err
	}
	return opts, nil
}

func (c *Config) decodeOptions(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("failed to build options decoder: %w", err)
	}
	if err := dec.Decode(c.Store.Options); err != nil {
		return fmt.Errorf("invalid store.options for %s: %w", c.Store.Driver, err)
	}
	return nil
}
