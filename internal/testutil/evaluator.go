package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/opcheck/internal/eval"
	"github.com/roach88/opcheck/internal/expr"
)

// Call is one recorded evaluator invocation.
type Call struct {
	Op       expr.Op
	Operands []int64
}

// RecordingEvaluator wraps an evaluator and records every call.
//
// Thread-safety: safe for concurrent use.
type RecordingEvaluator struct {
	inner eval.Evaluator

	mu    sync.Mutex
	calls []Call
}

// NewRecordingEvaluator records calls made to inner.
func NewRecordingEvaluator(inner eval.Evaluator) *RecordingEvaluator {
	return &RecordingEvaluator{inner: inner}
}

// Evaluate implements eval.Evaluator.
func (r *RecordingEvaluator) Evaluate(ctx context.Context, op expr.Op, operands []int64) (int64, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Op: op, Operands: append([]int64(nil), operands...)})
	r.mu.Unlock()
	return r.inner.Evaluate(ctx, op, operands)
}

// Calls returns a copy of the recorded calls in order.
func (r *RecordingEvaluator) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Ops returns the operators of the recorded calls in order.
func (r *RecordingEvaluator) Ops() []expr.Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make([]expr.Op, len(r.calls))
	for i, c := range r.calls {
		ops[i] = c.Op
	}
	return ops
}

// ErrInjected is returned by FailingEvaluator for the failing operator.
var ErrInjected = errors.New("injected evaluator failure")

// FailingEvaluator delegates to Native at the default width but fails every
// call for one operator.
type FailingEvaluator struct {
	Op     expr.Op
	native *eval.Native
}

// NewFailingEvaluator fails every application of op.
func NewFailingEvaluator(op expr.Op) *FailingEvaluator {
	return &FailingEvaluator{Op: op, native: eval.NewNative(eval.DefaultWidth)}
}

// Evaluate implements eval.Evaluator.
func (f *FailingEvaluator) Evaluate(ctx context.Context, op expr.Op, operands []int64) (int64, error) {
	if op == f.Op {
		return 0, ErrInjected
	}
	return f.native.Evaluate(ctx, op, operands)
}

// OffByOne returns an evaluator that adds one to every result of op, for
// producing mismatches.
func OffByOne(op expr.Op) eval.Evaluator {
	native := eval.NewNative(eval.DefaultWidth)
	return eval.Func(func(ctx context.Context, o expr.Op, operands []int64) (int64, error) {
		v, err := native.Evaluate(ctx, o, operands)
		if err == nil && o == op {
			v++
		}
		return v, err
	})
}

// BlockingEvaluator blocks every call until its context is done.
type BlockingEvaluator struct{}

// Evaluate implements eval.Evaluator.
func (BlockingEvaluator) Evaluate(ctx context.Context, _ expr.Op, _ []int64) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}
