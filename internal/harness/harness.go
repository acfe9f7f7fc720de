package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/opcheck/internal/eval"
	"github.com/roach88/opcheck/internal/expr"
)

// Observer receives case and run events, typically to feed metrics.
// Implementations used with RunAll must be safe for concurrent use.
type Observer interface {
	ObserveCase(suite string, c Case, o Outcome, elapsed time.Duration)
	ObserveRun(r *RunResult)
}

// RunOption configures Run and RunAll.
type RunOption func(*runConfig)

type runConfig struct {
	logger      *slog.Logger
	observer    Observer
	parallelism int
	now         func() time.Time
}

// WithLogger sets the logger for case-level debug output.
func WithLogger(l *slog.Logger) RunOption {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers an observer for case and run events.
func WithObserver(o Observer) RunOption {
	return func(c *runConfig) { c.observer = o }
}

// WithParallelism bounds how many suites RunAll runs at once. Zero or less
// means no bound. Run ignores it.
func WithParallelism(n int) RunOption {
	return func(c *runConfig) { c.parallelism = n }
}

// WithClock replaces time.Now for case timing.
func WithClock(now func() time.Time) RunOption {
	return func(c *runConfig) {
		if now != nil {
			c.now = now
		}
	}
}

func newRunConfig(opts []RunOption) *runConfig {
	cfg := &runConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// ErrEvaluatorPanic marks an evaluation error recovered from a panic.
var ErrEvaluatorPanic = errors.New("evaluator panicked")

// EvalError wraps an evaluator failure with the application that failed.
type EvalError struct {
	Op       expr.Op
	Operands []int64
	Err      error
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	args := make([]expr.Node, len(e.Operands))
	for i, v := range e.Operands {
		args[i] = expr.Int(v)
	}
	return fmt.Sprintf("evaluate %s: %v", expr.Call(e.Op, args...), e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// Run executes the cases of s in order against ev.
//
// The accumulator starts at the suite's initial value. After a pass or a
// mismatch it takes the evaluated value; after an evaluation error it keeps
// the value it had before the case. Every case runs regardless of earlier
// failures. Run never returns nil; evaluator errors and panics become
// error outcomes.
func Run(ctx context.Context, s *Suite, ev eval.Evaluator, opts ...RunOption) *RunResult {
	return run(ctx, s, ev, newRunConfig(opts))
}

func run(ctx context.Context, s *Suite, ev eval.Evaluator, cfg *runConfig) *RunResult {
	result := NewRunResult(s)
	acc := s.initial
	log := cfg.logger.With("suite", s.name)

	for i, c := range s.cases {
		start := cfg.now()
		o := Outcome{
			Index:    i,
			Name:     c.name,
			Expr:     c.String(),
			Input:    acc,
			Expected: c.expected,
		}

		actual, err := evalCase(ctx, ev, c.root, acc)
		switch {
		case err != nil:
			o.Status = StatusError
			o.Err = err.Error()
		case actual != c.expected:
			o.Status = StatusMismatch
			o.Actual = actual
			acc = actual
		default:
			o.Status = StatusPass
			o.Actual = actual
			acc = actual
		}
		elapsed := cfg.now().Sub(start)

		result.AddOutcome(o)
		log.Debug("case evaluated",
			"index", i,
			"expr", o.Expr,
			"x", o.Input,
			"status", o.Status,
			"expected", o.Expected,
			"actual", o.Actual,
			"elapsed", elapsed,
		)
		if cfg.observer != nil {
			cfg.observer.ObserveCase(s.name, c, o, elapsed)
		}
	}

	result.Final = acc
	if want, ok := s.Final(); ok && acc != want {
		result.AddError(fmt.Sprintf("final accumulator = %d, expected %d", acc, want))
	}

	log.Debug("suite finished",
		"pass", result.Pass,
		"passed", result.Passed,
		"mismatched", result.Mismatched,
		"errored", result.Errored,
		"final", result.Final,
	)
	if cfg.observer != nil {
		cfg.observer.ObserveRun(result)
	}
	return result
}

// Evaluate computes n with x bound to acc the way Run evaluates one case,
// including short-circuit handling of && and ||.
func Evaluate(ctx context.Context, ev eval.Evaluator, n expr.Node, acc int64) (int64, error) {
	if err := expr.Validate(n); err != nil {
		return 0, err
	}
	return evalCase(ctx, ev, n, acc)
}

// evalCase evaluates a case tree bottom-up with x bound to acc. A cancelled
// context fails the case without calling the evaluator.
func evalCase(ctx context.Context, ev eval.Evaluator, n expr.Node, acc int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return evalNode(ctx, ev, n, acc)
}

func evalNode(ctx context.Context, ev eval.Evaluator, n expr.Node, acc int64) (int64, error) {
	switch n := n.(type) {
	case expr.Acc:
		return acc, nil
	case expr.Lit:
		return int64(n), nil
	case *expr.Apply:
		if n.Op.ShortCircuit() {
			return evalShortCircuit(ctx, ev, n, acc)
		}
		vals := make([]int64, len(n.Args))
		for i, arg := range n.Args {
			v, err := evalNode(ctx, ev, arg, acc)
			if err != nil {
				return 0, err
			}
			vals[i] = v
		}
		return apply(ctx, ev, n.Op, vals)
	}
	return 0, fmt.Errorf("unsupported operand %T", n)
}

// evalShortCircuit evaluates && and ||. When the left operand decides the
// result the right subtree is never evaluated and the evaluator is not
// called for the operator.
func evalShortCircuit(ctx context.Context, ev eval.Evaluator, n *expr.Apply, acc int64) (int64, error) {
	l, err := evalNode(ctx, ev, n.Args[0], acc)
	if err != nil {
		return 0, err
	}
	switch {
	case n.Op == expr.OpLogAnd && l == 0:
		return 0, nil
	case n.Op == expr.OpLogOr && l != 0:
		return 1, nil
	}
	r, err := evalNode(ctx, ev, n.Args[1], acc)
	if err != nil {
		return 0, err
	}
	return apply(ctx, ev, n.Op, []int64{l, r})
}

// apply calls the evaluator for one application. A panicking evaluator
// fails the case like any other evaluation error.
func apply(ctx context.Context, ev eval.Evaluator, op expr.Op, vals []int64) (v int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = 0, &EvalError{Op: op, Operands: vals, Err: fmt.Errorf("%w: %v", ErrEvaluatorPanic, r)}
		}
	}()
	v, err = ev.Evaluate(ctx, op, vals)
	if err != nil {
		return 0, &EvalError{Op: op, Operands: vals, Err: err}
	}
	return v, nil
}

// EvaluatorFor selects the evaluator for a suite, for example by its width
// hint.
type EvaluatorFor func(s *Suite) eval.Evaluator

// Static returns an EvaluatorFor that uses ev for every suite.
func Static(ev eval.Evaluator) EvaluatorFor {
	return func(*Suite) eval.Evaluator { return ev }
}

// RunAll runs independent suites concurrently. Each suite owns its
// accumulator and its cases run sequentially. Results keep the order of
// suites; the entry for a suite that never started is nil. The error is
// non-nil only when ctx is cancelled before every suite started.
func RunAll(ctx context.Context, suites []*Suite, evFor EvaluatorFor, opts ...RunOption) ([]*RunResult, error) {
	cfg := newRunConfig(opts)
	results := make([]*RunResult, len(suites))

	g, gctx := errgroup.WithContext(ctx)
	if cfg.parallelism > 0 {
		g.SetLimit(cfg.parallelism)
	}
	for i, s := range suites {
		i, s := i, s
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = run(gctx, s, evFor(s), cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("run suites: %w", err)
	}
	return results, nil
}
