// Package eval defines the evaluator capability the harness checks and
// provides a native reference evaluator and an external command evaluator.
package eval

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/opcheck/internal/expr"
)

// Sentinel errors. Evaluators wrap them so callers can use errors.Is.
var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrUnsupportedOp  = errors.New("unsupported operator")
	ErrArity          = errors.New("wrong number of operands")
)

// Evaluator applies one operator to already evaluated operands.
// Implementations must be safe for concurrent use when suites run in parallel.
type Evaluator interface {
	Evaluate(ctx context.Context, op expr.Op, operands []int64) (int64, error)
}

// Func adapts a function to the Evaluator interface.
type Func func(ctx context.Context, op expr.Op, operands []int64) (int64, error)

// Evaluate calls f.
func (f Func) Evaluate(ctx context.Context, op expr.Op, operands []int64) (int64, error) {
	return f(ctx, op, operands)
}

// checkArity returns ErrArity or ErrUnsupportedOp when operands cannot be
// applied to op.
func checkArity(op expr.Op, operands []int64) error {
	if !op.Valid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedOp, op)
	}
	if len(operands) != op.Arity() {
		return fmt.Errorf("%w: %s takes %d, got %d", ErrArity, op, op.Arity(), len(operands))
	}
	return nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
