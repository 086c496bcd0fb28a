package domain

import (
	"context"
	"net/http"
)

// Txn is the per-request view of a flow handed to every stage.
//
// State is the active working state. Records reached through the parent chain
// are exposed read-only: Ancestors before a resume, YieldState and YieldStack
// after one. Locals is a side channel that is never persisted.
type Txn struct {
	Flow    string
	Request *http.Request
	State   *State
	Locals  map[string]any

	handle      string
	ancestors   []*Record
	yieldState  *Record
	yieldStack  []*Record
	retainYield bool
	resumed     bool
	handoff     bool
}

// NewTxn binds the working state of rec. ancestors is the resolved parent chain,
// innermost first, ending at the root. When rec has ancestors it is itself a
// yielded record: YieldState is rec and YieldStack is rec followed by every
// ancestor except the root. Used by the dispatcher.
func NewTxn(flow string, r *http.Request, rec *Record, ancestors []*Record) *Txn {
	txn := &Txn{
		Flow:      flow,
		Request:   r,
		State:     rec.State(),
		Locals:    make(map[string]any),
		handle:    rec.Handle,
		ancestors: ancestors,
	}
	if len(ancestors) > 0 {
		txn.yieldState = rec.Clone()
		txn.yieldStack = append([]*Record{txn.yieldState}, ancestors[:len(ancestors)-1]...)
	}
	return txn
}

// Handle returns the handle of the active record, or "" for a fresh flow.
func (t *Txn) Handle() string { return t.handle }

// Active returns the working state as a record under the active handle.
func (t *Txn) Active() *Record { return t.State.Record(t.handle) }

// Ancestors returns copies of the parent chain of the record the request
// carried, innermost first.
func (t *Txn) Ancestors() []*State { return statesOf(t.ancestors) }

// YieldState returns the sub-flow state that completed, or nil.
func (t *Txn) YieldState() *State {
	if t.yieldState == nil {
		return nil
	}
	return t.yieldState.State()
}

// YieldStack returns the consumed records, innermost first.
func (t *Txn) YieldStack() []*State { return statesOf(t.yieldStack) }

// Resumed reports whether the active state was reached by resuming.
func (t *Txn) Resumed() bool { return t.resumed }

// RetainYield keeps the completed child record instead of destroying it.
func (t *Txn) RetainYield() { t.retainYield = true }

// YieldRetained reports whether RetainYield was called.
func (t *Txn) YieldRetained() bool { return t.retainYield }

// Handoff makes the active record survive completion: it is persisted and its
// handle is passed to the returnTo target even when this flow owns it.
func (t *Txn) Handoff() { t.handoff = true }

// HandedOff reports whether Handoff was called.
func (t *Txn) HandedOff() bool { return t.handoff }

// Bind makes rec the active record. Used by the dispatcher when restoring.
func (t *Txn) Bind(rec *Record) {
	t.handle = rec.Handle
	t.State = rec.State()
}

// BindResume makes into the active record with child as the completed
// sub-flow and stack as the consumed records. Used by the dispatcher.
func (t *Txn) BindResume(into, child *Record, stack []*Record) {
	t.Bind(into)
	t.yieldState = child
	t.yieldStack = stack
	t.resumed = true
}

func statesOf(recs []*Record) []*State {
	if len(recs) == 0 {
		return nil
	}
	out := make([]*State, len(recs))
	for i, r := range recs {
		out[i] = r.State()
	}
	return out
}

type txnKey struct{}

// WithTxn stores txn in ctx for handlers downstream of the dispatcher.
func WithTxn(ctx context.Context, txn *Txn) context.Context {
	return context.WithValue(ctx, txnKey{}, txn)
}

// TxnFromContext returns the transaction bound by the dispatcher, if any.
func TxnFromContext(ctx context.Context) (*Txn, bool) {
	txn, ok := ctx.Value(txnKey{}).(*Txn)
	return txn, ok
}
