package harness

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/opcheck/internal/eval"
	"github.com/roach88/opcheck/internal/expr"
	"github.com/roach88/opcheck/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var x = expr.X()

func lit(v int64) expr.Node { return expr.Int(v) }

// operatorFixture is the running-x sequence of the C operator fixture.
func operatorFixture(t *testing.T) *Suite {
	t.Helper()
	cases := []Case{
		MustCase(expr.OpAdd, 2, x, lit(2)),
		MustCase(expr.OpSub, 1, x, lit(1)),
		MustCase(expr.OpMul, 6, x, lit(6)),
		MustCase(expr.OpDiv, 3, x, lit(2)),
		MustCase(expr.OpMod, 1, x, lit(2)),
		MustCase(expr.OpShl, 4, x, lit(2)),
		MustCase(expr.OpShr, 2, x, lit(1)),
		MustCase(expr.OpOr, 255, x, lit(255)),
		MustCase(expr.OpAnd, 3, x, lit(3)),
		MustCase(expr.OpXor, 2, x, lit(1)),
		MustCase(expr.OpNeg, -2, x),
		MustCase(expr.OpAdd, -1, x, expr.Call(expr.OpNot, expr.Call(expr.OpNot, x))),
		MustCase(expr.OpAdd, -1, x, expr.Call(expr.OpGt, x, lit(2))),
		MustCase(expr.OpAdd, 0, x, expr.Call(expr.OpLt, x, lit(2))),
	}
	s, err := NewSuite("operators", cases, WithFinal(0))
	require.NoError(t, err)
	return s
}

func native() eval.Evaluator { return eval.NewNative(eval.DefaultWidth) }

func TestRun_OperatorFixturePasses(t *testing.T) {
	result := Run(context.Background(), operatorFixture(t), native())

	require.True(t, result.Pass, "errors: %v failures: %v", result.Errors, result.Failures())
	assert.Equal(t, 14, result.Passed)
	assert.Zero(t, result.Failed())
	assert.Equal(t, int64(0), result.Final)

	want := []int64{2, 1, 6, 3, 1, 4, 2, 255, 3, 2, -2, -1, -1, 0}
	got := make([]int64, len(result.Outcomes))
	for i, o := range result.Outcomes {
		got[i] = o.Actual
		assert.Equal(t, i, o.Index)
	}
	assert.Equal(t, want, got)
}

func TestRun_InputIsPreviousAccumulator(t *testing.T) {
	result := Run(context.Background(), operatorFixture(t), native())

	prev := int64(0)
	for _, o := range result.Outcomes {
		assert.Equal(t, prev, o.Input, "case %d", o.Index)
		prev = o.Actual
	}
}

func TestRun_Idempotent(t *testing.T) {
	s := operatorFixture(t)
	first := Run(context.Background(), s, native())
	second := Run(context.Background(), s, native())

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second run differs (-first +second):\n%s", diff)
	}
}

func TestRun_OrderSensitive(t *testing.T) {
	s := operatorFixture(t)
	cases := s.Cases()
	cases[0], cases[2] = cases[2], cases[0]

	permuted, err := NewSuite(s.Name(), cases, WithFinal(0))
	require.NoError(t, err)

	result := Run(context.Background(), permuted, native())
	assert.False(t, result.Pass)
	assert.Greater(t, result.Mismatched, 0)
}

func TestRun_MismatchTakesActualValue(t *testing.T) {
	s, err := NewSuite("mismatch", []Case{
		MustCase(expr.OpAdd, 5, x, lit(2)),
		MustCase(expr.OpAdd, 3, x, lit(1)),
	})
	require.NoError(t, err)

	result := Run(context.Background(), s, native())

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, StatusMismatch, result.Outcomes[0].Status)
	assert.Equal(t, int64(2), result.Outcomes[0].Actual)
	assert.Equal(t, int64(5), result.Outcomes[0].Expected)

	// The program continues with what it computed, so x = 2 + 1.
	assert.Equal(t, int64(2), result.Outcomes[1].Input)
	assert.Equal(t, StatusPass, result.Outcomes[1].Status)
	assert.Equal(t, 1, result.Mismatched)
	assert.Equal(t, 1, result.Passed)
	assert.False(t, result.Pass)
}

func TestRun_EvalErrorKeepsAccumulatorAndContinues(t *testing.T) {
	s, err := NewSuite("errors", []Case{
		MustCase(expr.OpAdd, 2, x, lit(2)),
		MustCase(expr.OpDiv, 0, x, lit(0)),
		MustCase(expr.OpAdd, 3, x, lit(1)),
	})
	require.NoError(t, err)

	result := Run(context.Background(), s, native())

	require.Len(t, result.Outcomes, 3)
	failed := result.Outcomes[1]
	assert.Equal(t, StatusError, failed.Status)
	assert.Equal(t, "evaluate 2 / 0: division by zero", failed.Err)
	assert.Zero(t, failed.Actual)

	assert.Equal(t, int64(2), result.Outcomes[2].Input)
	assert.Equal(t, StatusPass, result.Outcomes[2].Status)
	assert.Equal(t, int64(3), result.Final)
	assert.Equal(t, 1, result.Errored)
	assert.False(t, result.Pass)
}

func TestRun_EvaluatorFailureIsReported(t *testing.T) {
	s, err := NewSuite("typed", []Case{
		MustCase(expr.OpMul, 0, x, lit(3)),
		MustCase(expr.OpAdd, 3, x, lit(3)),
	})
	require.NoError(t, err)

	result := Run(context.Background(), s, testutil.NewFailingEvaluator(expr.OpMul))

	assert.Equal(t, "evaluate 0 * 3: injected evaluator failure", result.Outcomes[0].Err)
	assert.Equal(t, StatusPass, result.Outcomes[1].Status)
}

func TestEvalError_Unwraps(t *testing.T) {
	err := error(&EvalError{Op: expr.OpMod, Operands: []int64{5, 0}, Err: eval.ErrDivisionByZero})

	assert.ErrorIs(t, err, eval.ErrDivisionByZero)
	assert.EqualError(t, err, "evaluate 5 % 0: division by zero")

	var evalErr *EvalError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, expr.OpMod, evalErr.Op)
}

func TestRun_NestedOperandsEvaluateBottomUp(t *testing.T) {
	rec := testutil.NewRecordingEvaluator(native())
	s, err := NewSuite("nested", []Case{
		MustCase(expr.OpAdd, 1, x, expr.Call(expr.OpNot, expr.Call(expr.OpNot, x))),
	}, WithInitial(0))
	require.NoError(t, err)

	result := Run(context.Background(), s, rec)

	assert.Equal(t, []expr.Op{expr.OpNot, expr.OpNot, expr.OpAdd}, rec.Ops())
	// !!0 is 0, so x + !!x is 0, not the expected 1.
	assert.Equal(t, StatusMismatch, result.Outcomes[0].Status)
}

func TestRun_ShortCircuitSkipsRightSubtree(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		initial int64
		want    int64
		ops     []expr.Op
	}{
		{"and with false left", "x && x / 0", 0, 0, nil},
		{"or with true left", "x || x / 0", 7, 1, nil},
		{"and with true left", "x && x - 1", 3, 1, []expr.Op{expr.OpSub, expr.OpLogAnd}},
		{"or with false left", "x || x + 1", 0, 1, []expr.Op{expr.OpAdd, expr.OpLogOr}},
		{"nested left", "x - 1 && x / 0", 1, 0, []expr.Op{expr.OpSub}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := CaseFromExpr(expr.MustParse(tt.src), tt.want)
			require.NoError(t, err)
			s, err := NewSuite("short", []Case{c}, WithInitial(tt.initial))
			require.NoError(t, err)

			rec := testutil.NewRecordingEvaluator(native())
			result := Run(context.Background(), s, rec)

			require.True(t, result.Pass, "%v", result.Failures())
			if len(tt.ops) == 0 {
				assert.Empty(t, rec.Calls())
			} else {
				assert.Equal(t, tt.ops, rec.Ops())
			}
		})
	}
}

func TestRun_FinalMismatchFailsRun(t *testing.T) {
	s, err := NewSuite("final", []Case{MustCase(expr.OpAdd, 1, x, lit(1))}, WithFinal(0))
	require.NoError(t, err)

	result := Run(context.Background(), s, native())

	assert.Equal(t, 1, result.Passed)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"final accumulator = 1, expected 0"}, result.Errors)
	require.NotNil(t, result.ExpectedFinal)
	assert.Equal(t, int64(0), *result.ExpectedFinal)
}

func TestRun_InitialValue(t *testing.T) {
	s, err := NewSuite("initial", []Case{MustCase(expr.OpMul, 21, x, lit(3))}, WithInitial(7))
	require.NoError(t, err)

	result := Run(context.Background(), s, native())
	assert.True(t, result.Pass)
	assert.Equal(t, int64(7), result.Initial)
	assert.Equal(t, int64(7), result.Outcomes[0].Input)
}

func TestRun_CancelledContextErrorsEveryCase(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := testutil.NewRecordingEvaluator(native())
	result := Run(ctx, operatorFixture(t), rec)

	assert.Len(t, result.Outcomes, 14)
	assert.Equal(t, 14, result.Errored)
	assert.Empty(t, rec.Calls())
	assert.Equal(t, context.Canceled.Error(), result.Outcomes[0].Err)
}

type recordingObserver struct {
	mu      sync.Mutex
	cases   []Outcome
	elapsed []time.Duration
	runs    []*RunResult
}

func (r *recordingObserver) ObserveCase(_ string, _ Case, o Outcome, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases = append(r.cases, o)
	r.elapsed = append(r.elapsed, d)
}

func (r *recordingObserver) ObserveRun(res *RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, res)
}

func TestRun_ObserverSeesEveryCase(t *testing.T) {
	obs := &recordingObserver{}
	clock := testutil.NewStepClock(time.Unix(0, 0), 3*time.Millisecond)

	result := Run(context.Background(), operatorFixture(t), native(),
		WithObserver(obs), WithClock(clock.Now))

	assert.Len(t, obs.cases, 14)
	require.Len(t, obs.runs, 1)
	assert.Same(t, result, obs.runs[0])
	for _, d := range obs.elapsed {
		assert.Equal(t, 3*time.Millisecond, d)
	}
	assert.Equal(t, int64(28), clock.Readings())
}

func TestRunAll_KeepsInputOrder(t *testing.T) {
	var suites []*Suite
	for i := int64(1); i <= 8; i++ {
		s, err := NewSuite(string(rune('a'+i)), []Case{MustCase(expr.OpAdd, i, x, lit(i))})
		require.NoError(t, err)
		suites = append(suites, s)
	}

	results, err := RunAll(context.Background(), suites, Static(native()), WithParallelism(3))
	require.NoError(t, err)
	require.Len(t, results, len(suites))
	for i, r := range results {
		assert.Equal(t, suites[i].Name(), r.Suite)
		assert.True(t, r.Pass)
	}
}

func TestRunAll_EachSuiteOwnsAccumulator(t *testing.T) {
	a := operatorFixture(t)
	b := operatorFixture(t)
	c := operatorFixture(t)

	results, err := RunAll(context.Background(), []*Suite{a, b, c}, Static(native()))
	require.NoError(t, err)

	for _, r := range results {
		assert.True(t, r.Pass)
		if diff := cmp.Diff(results[0].Outcomes, r.Outcomes); diff != "" {
			t.Errorf("concurrent run differs:\n%s", diff)
		}
	}
}

func TestRunAll_EvaluatorPerSuite(t *testing.T) {
	narrow, err := NewSuite("narrow", []Case{MustCase(expr.OpAdd, -128, x, lit(1))},
		WithInitial(127), WithWidth(eval.Width8))
	require.NoError(t, err)
	wide, err := NewSuite("wide", []Case{MustCase(expr.OpAdd, 128, x, lit(1))}, WithInitial(127))
	require.NoError(t, err)

	byWidth := func(s *Suite) eval.Evaluator { return eval.NewNative(s.Width()) }
	results, err := RunAll(context.Background(), []*Suite{narrow, wide}, byWidth)
	require.NoError(t, err)

	assert.True(t, results[0].Pass, "%v", results[0].Failures())
	assert.True(t, results[1].Pass, "%v", results[1].Failures())
}

func TestRunAll_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := RunAll(ctx, []*Suite{operatorFixture(t)}, Static(native()))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	assert.Nil(t, results[0])
}

func TestRunAll_BlockedEvaluatorReleasedOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	suites := []*Suite{operatorFixture(t), operatorFixture(t)}
	results, err := RunAll(ctx, suites, Static(testutil.BlockingEvaluator{}), WithParallelism(2))

	// Both suites started before the deadline, so each reports errors
	// instead of the group failing.
	require.NoError(t, err)
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, 14, r.Errored)
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		src  string
		x    int64
		want int64
	}{
		{"x + 2 * 3", 1, 7},
		{"(x + 2) * 3", 1, 9},
		{"x + !!x", -2, -1},
		{"x && x / 0", 0, 0},
		{"7", 99, 7},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := Evaluate(context.Background(), native(), expr.MustParse(tt.src), tt.x)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	_, err := Evaluate(context.Background(), native(), expr.MustParse("x / 0"), 4)
	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.ErrorIs(t, err, eval.ErrDivisionByZero)

	_, err = Evaluate(context.Background(), native(), &expr.Apply{Op: expr.OpAdd, Args: []expr.Node{x}}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "takes 2 operand(s)")
}

func TestRun_LogsEachCase(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := operatorFixture(t)

	r := Run(context.Background(), s, eval.NewNative(eval.DefaultWidth), WithLogger(logger))
	require.True(t, r.Pass)

	out := buf.String()
	assert.Equal(t, s.Len(), strings.Count(out, `msg="case evaluated"`))
	assert.Contains(t, out, "status=pass")
	assert.Contains(t, out, `msg="suite finished"`)
	assert.Contains(t, out, "final=0")
}

// goDivide evaluates with plain Go operators, so x / 0 panics.
var goDivide = eval.Func(func(_ context.Context, op expr.Op, v []int64) (int64, error) {
	switch op {
	case expr.OpDiv:
		return v[0] / v[1], nil
	case expr.OpAdd:
		return v[0] + v[1], nil
	}
	return 0, eval.ErrUnsupportedOp
})

func TestRun_EvaluatorPanicIsAnErrorOutcome(t *testing.T) {
	s, err := NewSuite("panics", []Case{
		MustCase(expr.OpAdd, 5, x, lit(5)),
		MustCase(expr.OpDiv, 0, x, lit(0)),
		MustCase(expr.OpAdd, 6, x, lit(1)),
	})
	require.NoError(t, err)

	var r *RunResult
	require.NotPanics(t, func() { r = Run(context.Background(), s, goDivide) })
	require.Len(t, r.Outcomes, 3)

	o := r.Outcomes[1]
	assert.Equal(t, StatusError, o.Status)
	assert.Contains(t, o.Err, "evaluator panicked")
	assert.Contains(t, o.Err, "integer divide by zero")

	assert.Equal(t, StatusPass, r.Outcomes[2].Status, "x keeps 5 across the failed case")
	assert.Equal(t, int64(6), r.Final)
	assert.Equal(t, 1, r.Errored)
}

func TestRunAll_EvaluatorPanicStaysInItsSuite(t *testing.T) {
	bad, err := NewSuite("bad", []Case{MustCase(expr.OpDiv, 0, x, lit(0))})
	require.NoError(t, err)
	good, err := NewSuite("good", []Case{MustCase(expr.OpAdd, 1, x, lit(1))})
	require.NoError(t, err)

	results, err := RunAll(context.Background(), []*Suite{bad, good}, Static(goDivide), WithParallelism(2))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Pass)
	assert.True(t, results[1].Pass)
}

func TestEvaluate_RecoversPanic(t *testing.T) {
	_, err := Evaluate(context.Background(), goDivide, expr.MustParse("x / 0"), 3)
	var ee *EvalError
	require.ErrorAs(t, err, &ee)
	assert.ErrorIs(t, err, ErrEvaluatorPanic)
	assert.Equal(t, []int64{3, 0}, ee.Operands)
}
