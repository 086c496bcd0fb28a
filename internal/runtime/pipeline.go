package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/flowstate/pkg/domain"
)

// runStages executes a chain in order.
//
// Regular stages run while no error is pending; error stages run only while
// one is. Next from an error stage clears the error. Any terminal result
// returns at once. A pending error left at the end of the chain is returned
// as a Fail carrying a *domain.HandlerError. Nothing is persisted here.
func runStages(ctx context.Context, flow string, txn *domain.Txn, stages []domain.Stage) domain.Result {
	var (
		pending error
		failed  string
	)

	for i, st := range stages {
		if err := ctx.Err(); err != nil {
			return domain.Fail(&domain.HandlerError{Flow: flow, Stage: stageName(st, i), Err: err})
		}
		if pending == nil && st.Handle == nil {
			continue
		}
		if pending != nil && st.Recover == nil {
			continue
		}

		res := invoke(ctx, txn, st, pending)
		switch res.Kind {
		case domain.ResultNext:
			pending = nil
		case domain.ResultFail:
			pending = res.Err
			failed = stageName(st, i)
		case domain.ResultYield:
			if res.Yield == nil || res.Yield.Location == "" {
				pending = errors.New("yield without a location")
				failed = stageName(st, i)
				continue
			}
			return res
		case domain.ResultRespond:
			if res.Respond == nil {
				pending = errors.New("respond without a responder")
				failed = stageName(st, i)
				continue
			}
			return res
		default:
			return res
		}
	}

	if pending != nil {
		var herr *domain.HandlerError
		if errors.As(pending, &herr) {
			return domain.Fail(pending)
		}
		return domain.Fail(&domain.HandlerError{Flow: flow, Stage: failed, Err: pending})
	}
	return domain.Next()
}

// invoke runs one stage, turning a panic into a failure.
func invoke(ctx context.Context, txn *domain.Txn, st domain.Stage, pending error) (res domain.Result) {
	defer func() {
		if p := recover(); p != nil {
			res = domain.Fail(fmt.Errorf("panic: %v", p))
		}
	}()
	if pending != nil {
		return st.Recover(ctx, txn, pending)
	}
	return st.Handle(ctx, txn)
}

func stageName(st domain.Stage, i int) string {
	if st.Name != "" {
		return st.Name
	}
	return fmt.Sprintf("#%d", i)
}
