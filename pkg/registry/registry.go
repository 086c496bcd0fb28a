package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/flowstate/pkg/domain"
)

var (
	// ErrFrozen is returned when registering after the configuration was frozen.
	ErrFrozen = errors.New("registry is frozen")

	// ErrDuplicate is returned when a flow or resume chain is registered twice.
	ErrDuplicate = errors.New("already registered")

	// ErrEmptyChain is returned when a chain has no stages.
	ErrEmptyChain = errors.New("chain has no stages")
)

// Flow is a registered entry chain.
type Flow struct {
	// Name identifies the flow and is stamped on records it creates. Empty
	// means the request path is used.
	Name string
	// Stages run in order for every request reaching the flow.
	Stages []domain.Stage
	// External marks a flow entered from outside the application (e.g. an
	// identity provider callback). Its inbound handle parameter belongs to
	// the external protocol and is ignored.
	External bool
}

// ResumeKey identifies a resume chain: control returns into flow Into after
// the sub-flow From completed.
type ResumeKey struct {
	Into string
	From string
}

func (k ResumeKey) String() string {
	return k.From + " -> " + k.Into
}

// Config is the dispatcher configuration: entry flows plus the yield
// registry. It is built once during setup and read-only after Freeze.
type Config struct {
	mu      sync.RWMutex
	flows   []*Flow
	byName  map[string]*Flow
	resumes map[ResumeKey][]domain.Stage
	frozen  bool
}

// New creates an empty configuration.
func New() *Config {
	return &Config{
		byName:  make(map[string]*Flow),
		resumes: make(map[ResumeKey][]domain.Stage),
	}
}

// Register adds an entry flow. Named flows must be unique.
func (c *Config) Register(flow Flow) (*Flow, error) {
	if len(flow.Stages) == 0 {
		return nil, fmt.Errorf("flow %q: %w", flow.Name, ErrEmptyChain)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return nil, fmt.Errorf("flow %q: %w", flow.Name, ErrFrozen)
	}
	if flow.Name != "" {
		if _, ok := c.byName[flow.Name]; ok {
			return nil, fmt.Errorf("flow %q: %w", flow.Name, ErrDuplicate)
		}
	}

	f := &Flow{
		Name:     flow.Name,
		Stages:   append([]domain.Stage(nil), flow.Stages...),
		External: flow.External,
	}
	c.flows = append(c.flows, f)
	if f.Name != "" {
		c.byName[f.Name] = f
	}
	return f, nil
}

// OnResume registers the chain run when control returns into flow into from
// the sub-flow from. Lookup is by exact match.
func (c *Config) OnResume(into, from string, stages ...domain.Stage) error {
	key := ResumeKey{Into: into, From: from}
	if len(stages) == 0 {
		return fmt.Errorf("resume %s: %w", key, ErrEmptyChain)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return fmt.Errorf("resume %s: %w", key, ErrFrozen)
	}
	if _, ok := c.resumes[key]; ok {
		return fmt.Errorf("resume %s: %w", key, ErrDuplicate)
	}
	c.resumes[key] = append([]domain.Stage(nil), stages...)
	return nil
}

// Resume returns the chain registered for the pair, if any.
func (c *Config) Resume(into, from string) ([]domain.Stage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stages, ok := c.resumes[ResumeKey{Into: into, From: from}]
	return stages, ok
}

// Flow returns the named flow.
func (c *Config) Flow(name string) (*Flow, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.byName[name]
	return f, ok
}

// Flows returns the registered flow names, sorted. Anonymous flows are
// reported as "".
func (c *Config) Flows() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.flows))
	for i, f := range c.flows {
		names[i] = f.Name
	}
	sort.Strings(names)
	return names
}

// ResumeKeys returns every registered resume pair, sorted.
func (c *Config) ResumeKeys() []ResumeKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]ResumeKey, 0, len(c.resumes))
	for k := range c.resumes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Into != keys[j].Into {
			return keys[i].Into < keys[j].Into
		}
		return keys[i].From < keys[j].From
	})
	return keys
}

// Freeze makes the configuration read-only. Safe to call more than once.
func (c *Config) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}

// Frozen reports whether Freeze was called.
func (c *Config) Frozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frozen
}
