package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/ports"
)

// Mask replaces values whose key matches a PII pattern.
const Mask = "***"

type piiMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks flow data whose keys match
// the patterns before they reach the store. Reserved keys are never masked.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.StateStore) ports.StateStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) mask(rec *domain.Record) *domain.Record {
	// Clone so the caller's working state keeps the real values.
	cloned := rec.Clone()
	maskMap(cloned.Data, m.patterns)
	return cloned
}

func (m *piiMiddleware) Save(ctx context.Context, scope ports.Scope, rec *domain.Record) (string, error) {
	return m.next.Save(ctx, scope, m.mask(rec))
}

func (m *piiMiddleware) Update(ctx context.Context, scope ports.Scope, handle string, rec *domain.Record) error {
	return m.next.Update(ctx, scope, handle, m.mask(rec))
}

func (m *piiMiddleware) Load(ctx context.Context, scope ports.Scope, handle string) (*domain.Record, error) {
	return m.next.Load(ctx, scope, handle)
}

func (m *piiMiddleware) Destroy(ctx context.Context, scope ports.Scope, handle string) error {
	return m.next.Destroy(ctx, scope, handle)
}

func (m *piiMiddleware) List(ctx context.Context, scope ports.Scope) ([]string, error) {
	return list(ctx, m.next, scope)
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if masked {
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			maskMap(t, patterns)
		case []any:
			for _, e := range t {
				if sub, ok := e.(map[string]any); ok {
					maskMap(sub, patterns)
				}
			}
		}
	}
}
