package runtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/ports"
	"github.com/aretw0/flowstate/pkg/registry"
)

// call is the state of one dispatched request.
type call struct {
	d     *Dispatcher
	flow  *registry.Flow
	name  string
	scope ports.Scope
	w     http.ResponseWriter
	r     *http.Request
	next  http.Handler

	txn      *domain.Txn
	snapshot *domain.Record // last persisted view of the active record

	chain []*domain.Record // ancestors of the loaded record, innermost first
	depth int              // levels of chain already unwound

	yielded     *domain.Record // innermost completed sub-flow record
	yieldedSnap *domain.Record
	consumed    []*domain.Record // destroyed once the active record is committed
	hint        string           // returnTo of the last consumed record

	outcome  domain.Outcome
	location string
}

func (c *call) handle() string {
	if c.txn == nil {
		return ""
	}
	return c.txn.Handle()
}

func (c *call) run(ctx context.Context) error {
	// 1. Resolve handle. External flows never read it: the parameter belongs
	// to the protocol that called back.
	var h string
	if !c.flow.External {
		var err error
		if h, err = resolveHandle(c.r, c.d.planner.Param); err != nil {
			return err
		}
	}

	// 2. Load or initialize.
	rec := domain.NewRecord(c.name)
	if h != "" {
		loaded, err := c.load(ctx, h)
		if err != nil {
			return err
		}
		rec = loaded

		// 3. Resolve the yield stack.
		if c.chain, err = c.ancestors(ctx, rec); err != nil {
			return err
		}
	}
	c.snapshot = rec.Clone()
	c.txn = domain.NewTxn(c.name, c.r, rec, c.chain)

	// 4. Run the entry chain.
	res := runStages(ctx, c.name, c.txn, c.flow.Stages)

	// 5. Classify.
	return c.apply(ctx, res)
}

// apply commits the outcome of a chain. Nothing is written when the chain
// failed, the request was cancelled or the redirect target is unusable:
// every target is checked before the first store write.
func (c *call) apply(ctx context.Context, res domain.Result) error {
	if res.Kind == domain.ResultFail {
		return res.Err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	switch res.Kind {
	case domain.ResultRedirect:
		if err := c.d.planner.Check(res.Location); err != nil {
			return err
		}
		h, err := c.keep(ctx, false)
		if err != nil {
			return err
		}
		if err := c.release(ctx); err != nil {
			return err
		}
		c.setOutcome(domain.OutcomeContinue)
		return c.redirect(res.Location, h)

	case domain.ResultRespond:
		h, err := c.keep(ctx, false)
		if err != nil {
			return err
		}
		if err := c.release(ctx); err != nil {
			return err
		}
		c.setOutcome(domain.OutcomeContinue)
		res.Respond(c.w, c.request(), h)
		return nil

	case domain.ResultYield:
		return c.yield(ctx, res.Yield)
	}
	return c.complete(ctx)
}

// complete handles a chain that ran to its end.
func (c *call) complete(ctx context.Context) error {
	if c.hint != "" {
		if err := c.d.planner.Check(c.hint); err != nil {
			return err
		}
		h, err := c.keep(ctx, false)
		if err != nil {
			return err
		}
		if err := c.release(ctx); err != nil {
			return err
		}
		c.setOutcome(domain.OutcomeResume)
		return c.redirect(c.hint, h)
	}
	if c.depth < len(c.chain) {
		return c.resume(ctx)
	}
	return c.finish(ctx)
}

// resume pops the completed record and binds the level it returns into.
func (c *call) resume(ctx context.Context) error {
	child := c.txn.Active()
	into, stack, stages, hint := c.unwind(child)
	if into == nil {
		return c.finish(ctx)
	}

	if c.yielded == nil {
		c.yielded = child
		c.yieldedSnap = c.snapshot
	}
	c.txn.BindResume(into, c.yielded, stack)
	c.snapshot = into.Clone()
	c.consumed = append(c.consumed, stack...)
	c.hint = hint
	c.outcome = domain.OutcomeResume

	res := domain.Next()
	if len(stages) > 0 {
		res = runStages(ctx, into.Name, c.txn, stages)
	}
	return c.apply(ctx, res)
}

// finish settles a record with no pending parent.
func (c *call) finish(ctx context.Context) error {
	active := c.txn.Active()
	if err := c.d.planner.Check(active.ReturnTo); err != nil {
		return err
	}
	if active.Preserved != "" {
		return c.restore(ctx, active)
	}

	own := !c.txn.HandedOff() && (active.Handle == "" || active.Name == c.name)
	if own {
		if active.Handle != "" {
			if err := c.destroy(ctx, active.Handle); err != nil {
				return err
			}
		}
		if err := c.release(ctx); err != nil {
			return err
		}
		c.setOutcome(domain.OutcomeComplete)
		if active.ReturnTo != "" {
			return c.redirect(active.ReturnTo, "")
		}
		return c.passThrough()
	}

	h, err := c.keep(ctx, active.ReturnTo != "")
	if err != nil {
		return err
	}
	if err := c.release(ctx); err != nil {
		return err
	}
	if active.ReturnTo != "" {
		c.setOutcome(domain.OutcomeSurvive)
		return c.redirect(active.ReturnTo, h)
	}
	c.setOutcome(domain.OutcomeContinue)
	return c.passThrough()
}

// restore swaps in the record preserved across an external round-trip. The
// carrying record is destroyed only after the preserved one loaded. finish
// has already checked the carrier's returnTo.
func (c *call) restore(ctx context.Context, carrier *domain.Record) error {
	preserved, err := c.load(ctx, carrier.Preserved)
	if err != nil {
		return err
	}
	if carrier.Handle != "" {
		if err := c.destroy(ctx, carrier.Handle); err != nil {
			return err
		}
	}
	if err := c.release(ctx); err != nil {
		return err
	}

	c.txn.Bind(preserved)
	c.snapshot = preserved.Clone()
	c.setOutcome(domain.OutcomeRestore)
	if carrier.ReturnTo != "" {
		return c.redirect(carrier.ReturnTo, preserved.Handle)
	}
	return c.passThrough()
}

// yield keeps the active record and enters a sub-flow with a child record
// pointing back at it.
func (c *call) yield(ctx context.Context, spec *domain.YieldSpec) error {
	if err := c.d.planner.Check(spec.Location); err != nil {
		return err
	}
	parent, err := c.keep(ctx, true)
	if err != nil {
		return err
	}

	returnTo := spec.ReturnTo
	if returnTo == "" {
		returnTo = c.txn.State.Name()
	}
	if returnTo == "" {
		returnTo = c.name
	}

	child := &domain.Record{
		Name:     spec.Flow,
		Parent:   parent,
		ReturnTo: returnTo,
		Data:     spec.Data,
	}
	h, err := c.save(ctx, child)
	if err != nil {
		return err
	}
	if err := c.release(ctx); err != nil {
		return err
	}
	c.outcome = domain.OutcomeYield
	return c.redirect(spec.Location, h)
}

// keep persists the active record: update when it already has a handle and
// drifted from its snapshot, save when it is new and carries something (or
// force is set). It returns the handle, or "" when nothing was persisted.
func (c *call) keep(ctx context.Context, force bool) (string, error) {
	active := c.txn.Active()
	if active.Handle != "" {
		if domain.Diff(c.snapshot, active) != nil {
			if err := c.update(ctx, active.Handle, active); err != nil {
				return "", err
			}
			c.snapshot = active.Clone()
		}
		return active.Handle, nil
	}

	if active.IsEmpty() && !force {
		return "", nil
	}
	h, err := c.save(ctx, active)
	if err != nil {
		return "", err
	}
	active.Handle = h
	c.txn.Bind(active)
	c.snapshot = active.Clone()
	return h, nil
}

// release destroys consumed records. A retained sub-flow record is kept and
// updated if its own chain changed it.
func (c *call) release(ctx context.Context) error {
	for i, rec := range c.consumed {
		if i == 0 && c.txn.YieldRetained() {
			if domain.Diff(c.yieldedSnap, rec) != nil {
				if err := c.update(ctx, rec.Handle, rec); err != nil {
					return err
				}
			}
			continue
		}
		if err := c.destroy(ctx, rec.Handle); err != nil {
			return err
		}
	}
	c.consumed = nil
	return nil
}

func (c *call) setOutcome(o domain.Outcome) {
	if c.yielded != nil {
		o = domain.OutcomeResume
	}
	c.outcome = o
}

func (c *call) request() *http.Request {
	return c.r.WithContext(domain.WithTxn(c.r.Context(), c.txn))
}

func (c *call) redirect(target, handle string) error {
	loc, err := c.d.planner.Redirect(c.w, c.r, target, handle)
	if err != nil {
		return err
	}
	c.location = loc
	return nil
}

func (c *call) passThrough() error {
	if c.next == nil {
		c.w.WriteHeader(http.StatusNoContent)
		return nil
	}
	c.next.ServeHTTP(c.w, c.request())
	return nil
}

// Store access. Every call is reported to the hooks; failures other than a
// missing record are wrapped in *domain.StoreError.

func (c *call) load(ctx context.Context, h string) (*domain.Record, error) {
	rec, err := c.d.store.Load(ctx, c.scope, h)
	if err = c.storeOp(ctx, "load", h, err); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *call) save(ctx context.Context, rec *domain.Record) (string, error) {
	h, err := c.d.store.Save(ctx, c.scope, rec)
	if err = c.storeOp(ctx, "save", h, err); err != nil {
		return "", err
	}
	return h, nil
}

func (c *call) update(ctx context.Context, h string, rec *domain.Record) error {
	err := c.d.store.Update(ctx, c.scope, h, rec)
	return c.storeOp(ctx, "update", h, err)
}

func (c *call) destroy(ctx context.Context, h string) error {
	err := c.d.store.Destroy(ctx, c.scope, h)
	return c.storeOp(ctx, "destroy", h, err)
}

func (c *call) storeOp(ctx context.Context, op, h string, err error) error {
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		var storeErr *domain.StoreError
		if !errors.As(err, &storeErr) {
			err = &domain.StoreError{Op: op, Handle: h, Err: err}
		}
	}
	if c.d.hooks.OnStoreOp != nil {
		c.d.hooks.OnStoreOp(ctx, &domain.StoreEvent{
			EventBase: domain.EventBase{Timestamp: c.d.now(), Type: domain.EventStoreOp},
			Op:        op,
			Handle:    h,
			Err:       err,
		})
	}
	return err
}

func (c *call) emitOutcome(ctx context.Context, start time.Time, err error) {
	if c.d.hooks.OnOutcome == nil {
		return
	}
	now := c.d.now()
	c.d.hooks.OnOutcome(ctx, &domain.OutcomeEvent{
		EventBase: domain.EventBase{Timestamp: now, Type: domain.EventOutcome},
		Flow:      c.name,
		Handle:    c.handle(),
		Outcome:   c.outcome,
		Location:  c.location,
		Duration:  now.Sub(start),
		Err:       err,
	})
}
