package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/flowstate/pkg/domain"
)

// DefaultMaxDepth bounds the parent chain followed for a single request.
const DefaultMaxDepth = 32

// ancestors loads the parent chain of rec, innermost first, ending at the
// root. The chain is persisted as parent pointers and rebuilt here by
// repeated loads.
func (c *call) ancestors(ctx context.Context, rec *domain.Record) ([]*domain.Record, error) {
	var (
		chain []*domain.Record
		seen  = map[string]bool{rec.Handle: true}
	)

	for parent := rec.Parent; parent != ""; {
		if seen[parent] {
			return nil, fmt.Errorf("%w: cycle at %q", domain.ErrBrokenChain, parent)
		}
		if len(chain) == c.d.maxDepth {
			return nil, fmt.Errorf("%w: deeper than %d", domain.ErrBrokenChain, c.d.maxDepth)
		}
		seen[parent] = true

		p, err := c.load(ctx, parent)
		if err != nil {
			return nil, err
		}
		chain = append(chain, p)
		parent = p.Parent
	}
	return chain, nil
}

// unwind pops completed levels off the yield stack, starting from child.
//
// Each level pairs the record being left (from) with its parent (into). The
// walk stops at the first level that has a registered resume chain, whose
// record names its own returnTo, or whose parent is the root. Records passed
// over are returned innermost first as the consumed stack.
func (c *call) unwind(child *domain.Record) (into *domain.Record, stack []*domain.Record, stages []domain.Stage, hint string) {
	from := child
	stack = []*domain.Record{child}

	for c.depth < len(c.chain) {
		into = c.chain[c.depth]
		c.depth++

		stages, registered := c.d.config.Resume(into.Name, from.Name)
		if registered || from.ReturnTo != "" || c.depth == len(c.chain) {
			return into, stack, stages, from.ReturnTo
		}
		stack = append(stack, into)
		from = into
	}
	return nil, stack, nil, ""
}
