package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opcheck/internal/expr"
)

func TestFailures_NoneWhenPassing(t *testing.T) {
	result := Run(context.Background(), operatorFixture(t), native())
	assert.Empty(t, result.Failures())
}

func TestFailures_Message(t *testing.T) {
	s, err := NewSuite("report", []Case{
		MustCase(expr.OpAdd, 2, x, lit(2)),
		MustCase(expr.OpMul, 5, x, lit(2)).WithName("double"),
		MustCase(expr.OpDiv, 0, x, lit(0)),
	})
	require.NoError(t, err)

	result := Run(context.Background(), s, native())
	failures := result.Failures()
	require.Len(t, failures, 2)

	var cf *CaseFailure
	require.True(t, errors.As(failures[0], &cf))
	assert.Equal(t, 1, cf.Outcome.Index)
	assert.Len(t, cf.Trace, 2)

	msg := failures[0].Error()
	assert.Contains(t, msg, "Case failed: report[1] (double) x = x * 2 with x = 2")
	assert.Contains(t, msg, "  Expected: 5\n")
	assert.Contains(t, msg, "  Actual: 4\n")
	assert.Contains(t, msg, "4 (expected 5)")

	msg = failures[1].Error()
	assert.Contains(t, msg, "Case failed: report[2] x = x / 0 with x = 4")
	assert.Contains(t, msg, "  Actual: error: evaluate 4 / 0: division by zero\n")
	assert.Len(t, failures[1].(*CaseFailure).Trace, 3)
}
