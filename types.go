package flowstate

import (
	"context"

	"github.com/aretw0/flowstate/pkg/domain"
)

type (
	// Stage is one element of a flow's handler chain.
	Stage = domain.Stage
	// Txn is the per-request view of a flow.
	Txn = domain.Txn
	// Result is returned by every stage.
	Result = domain.Result
	// HandlerFunc is a regular stage.
	HandlerFunc = domain.HandlerFunc
	// ErrorHandlerFunc runs only while an error propagates.
	ErrorHandlerFunc = domain.ErrorHandlerFunc
	// Responder writes a response after the active record is committed.
	Responder = domain.Responder
	// Hooks receives dispatcher lifecycle events.
	Hooks = domain.Hooks
)

var (
	Step     = domain.Step
	Steps    = domain.Steps
	Catch    = domain.Catch
	Next     = domain.Next
	Redirect = domain.Redirect
	Respond  = domain.Respond
	Yield    = domain.Yield
	Fail     = domain.Fail

	WithFlow     = domain.WithFlow
	WithReturnTo = domain.WithReturnTo
	WithData     = domain.WithData

	ErrNotFound = domain.ErrNotFound
)

// FromContext returns the transaction of the flow that passed the request
// through.
func FromContext(ctx context.Context) (*Txn, bool) {
	return domain.TxnFromContext(ctx)
}
