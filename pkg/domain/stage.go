package domain

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// ResultKind tags the value returned by a stage.
type ResultKind int

const (
	// ResultNext continues with the next stage; at the end of the chain the
	// dispatcher classifies the flow as complete.
	ResultNext ResultKind = iota
	// ResultRedirect terminates with a redirect chosen by the handler. The flow
	// stays in progress.
	ResultRedirect
	// ResultRespond terminates with a response written by the handler after the
	// active record has been committed.
	ResultRespond
	// ResultYield suspends the flow and enters a sub-flow.
	ResultYield
	// ResultFail propagates an error to the next error stage.
	ResultFail
)

func (k ResultKind) String() string {
	switch k {
	case ResultNext:
		return "next"
	case ResultRedirect:
		return "redirect"
	case ResultRespond:
		return "respond"
	case ResultYield:
		return "yield"
	case ResultFail:
		return "fail"
	}
	return "unknown"
}

// Responder writes a response once the active record is committed. handle is
// empty when nothing had to be persisted.
type Responder func(w http.ResponseWriter, r *http.Request, handle string)

// YieldSpec describes the child record created when a flow yields.
type YieldSpec struct {
	// Flow names the sub-flow. Defaults to the path of Location.
	Flow string
	// Location is the entry point of the sub-flow.
	Location string
	// ReturnTo is where the sub-flow goes once complete. Defaults to the
	// yielding flow.
	ReturnTo string
	// Data seeds the child record.
	Data map[string]any
}

// Result is the tagged value every stage returns.
type Result struct {
	Kind     ResultKind
	Location string
	Respond  Responder
	Yield    *YieldSpec
	Err      error
}

// Next continues the chain.
func Next() Result { return Result{Kind: ResultNext} }

// Redirect terminates the chain with a redirect to location.
func Redirect(location string) Result {
	return Result{Kind: ResultRedirect, Location: location}
}

// Respond terminates the chain and lets fn write the response.
func Respond(fn Responder) Result {
	return Result{Kind: ResultRespond, Respond: fn}
}

// Fail propagates err down the chain.
func Fail(err error) Result {
	if err == nil {
		err = errors.New("stage failed without an error")
	}
	return Result{Kind: ResultFail, Err: err}
}

// YieldOption customizes a YieldSpec.
type YieldOption func(*YieldSpec)

// WithFlow overrides the sub-flow name.
func WithFlow(name string) YieldOption {
	return func(y *YieldSpec) { y.Flow = name }
}

// WithReturnTo overrides where the sub-flow returns to.
func WithReturnTo(location string) YieldOption {
	return func(y *YieldSpec) { y.ReturnTo = location }
}

// WithData seeds the child record.
func WithData(data map[string]any) YieldOption {
	return func(y *YieldSpec) { y.Data = cloneMap(data) }
}

// Yield suspends the flow and redirects into the sub-flow at location.
func Yield(location string, opts ...YieldOption) Result {
	spec := &YieldSpec{Location: location}
	for _, opt := range opts {
		opt(spec)
	}
	if spec.Flow == "" {
		if u, err := url.Parse(location); err == nil {
			spec.Flow = u.Path
		} else {
			spec.Flow = location
		}
	}
	return Result{Kind: ResultYield, Yield: spec}
}

// HandlerFunc is a regular stage.
type HandlerFunc func(ctx context.Context, txn *Txn) Result

// ErrorHandlerFunc is an error stage; it only runs while an error propagates.
// Returning Next clears the error.
type ErrorHandlerFunc func(ctx context.Context, txn *Txn, err error) Result

// Stage is one element of a handler chain. Exactly one of Handle and Recover
// is set.
type Stage struct {
	Name    string
	Handle  HandlerFunc
	Recover ErrorHandlerFunc
}

// Step wraps a handler into a stage.
func Step(fn HandlerFunc) Stage { return Stage{Handle: fn} }

// Catch wraps an error handler into a stage.
func Catch(fn ErrorHandlerFunc) Stage { return Stage{Recover: fn} }

// Named returns a copy of the stage carrying a name used in errors and logs.
func (s Stage) Named(name string) Stage {
	s.Name = name
	return s
}

// Steps wraps several handlers at once.
func Steps(fns ...HandlerFunc) []Stage {
	stages := make([]Stage, len(fns))
	for i, fn := range fns {
		stages[i] = Step(fn)
	}
	return stages
}
