package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opcheck/internal/eval"
	"github.com/roach88/opcheck/internal/expr"
)

func TestNewCase_ChecksArity(t *testing.T) {
	tests := []struct {
		name     string
		op       expr.Op
		operands []expr.Node
		msg      string
	}{
		{"binary with one operand", expr.OpAdd, []expr.Node{x}, "add takes 2 operand(s), got 1"},
		{"unary with two operands", expr.OpNeg, []expr.Node{x, x}, "neg takes 1 operand(s), got 2"},
		{"nested arity", expr.OpAdd, []expr.Node{x, expr.Call(expr.OpNot)}, "add operand 1: not takes 1 operand(s), got 0"},
		{"invalid operator", expr.OpInvalid, nil, "invalid operator 0"},
		{"nil operand", expr.OpSub, []expr.Node{x, nil}, "sub operand 1 is nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCase(tt.op, 0, tt.operands...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)

			var ce *CaseError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, -1, ce.Index)
		})
	}
}

func TestMustCase_PanicsOnMalformed(t *testing.T) {
	assert.Panics(t, func() { MustCase(expr.OpMul, 0, x) })
}

func TestCaseFromExpr(t *testing.T) {
	c, err := CaseFromExpr(expr.MustParse("x + (x < 2)"), 0)
	require.NoError(t, err)
	assert.Equal(t, expr.OpAdd, c.Op())
	assert.Equal(t, "x + (x < 2)", c.String())
	assert.Equal(t, int64(0), c.Expected())

	_, err = CaseFromExpr(expr.X(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `expression "x" applies no operator`)

	_, err = CaseFromExpr(expr.Int(4), 4)
	assert.Error(t, err)
}

func TestCase_AccessorsReturnCopies(t *testing.T) {
	operand := expr.Call(expr.OpGt, x, lit(2))
	c := MustCase(expr.OpAdd, -1, x, operand)

	// Mutating the input tree must not reach the case.
	operand.Args[1] = lit(99)
	assert.Equal(t, "x + (x > 2)", c.String())

	ops := c.Operands()
	ops[0] = lit(1)
	assert.Equal(t, "x + (x > 2)", c.String())

	tree := c.Expr()
	tree.Op = expr.OpSub
	assert.Equal(t, expr.OpAdd, c.Op())
}

func TestCase_WithNameCopies(t *testing.T) {
	c := MustCase(expr.OpNeg, 0, x)
	named := c.WithName("negate")

	assert.Equal(t, "negate", named.Name())
	assert.Empty(t, c.Name())
}

func TestCase_ZeroValue(t *testing.T) {
	var c Case
	assert.Equal(t, expr.OpInvalid, c.Op())
	assert.Nil(t, c.Operands())
	assert.Nil(t, c.Expr())
	assert.Equal(t, "<invalid>", c.String())
}

func TestNewSuite_Validation(t *testing.T) {
	t.Run("name required", func(t *testing.T) {
		_, err := NewSuite("", []Case{MustCase(expr.OpNeg, 0, x)})
		assert.EqualError(t, err, "suite name is required")
	})

	t.Run("cases required", func(t *testing.T) {
		_, err := NewSuite("empty", nil)
		assert.EqualError(t, err, "suite empty: at least one case is required")
	})

	t.Run("malformed case names its index", func(t *testing.T) {
		cases := []Case{MustCase(expr.OpNeg, 0, x), {}, MustCase(expr.OpNeg, 0, x)}
		_, err := NewSuite("bad", cases)

		var ce *CaseError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, 1, ce.Index)
		assert.EqualError(t, err, "case 1: case has no operator")
	})

	t.Run("unsupported width", func(t *testing.T) {
		_, err := NewSuite("w", []Case{MustCase(expr.OpNeg, 0, x)}, WithWidth(eval.Width(12)))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported integer width 12")
	})
}

func TestSuite_CasesIsCopy(t *testing.T) {
	s := operatorFixture(t)
	cases := s.Cases()
	cases[0] = MustCase(expr.OpNeg, 0, x)

	assert.Equal(t, "x + 2", s.Cases()[0].String())
	assert.Equal(t, 14, s.Len())
}

func TestSuite_Accessors(t *testing.T) {
	s, err := NewSuite("acc", []Case{MustCase(expr.OpNeg, 0, x)},
		WithDescription("negation"), WithInitial(3), WithFinal(-3), WithWidth(eval.Width16))
	require.NoError(t, err)

	assert.Equal(t, "acc", s.Name())
	assert.Equal(t, "negation", s.Description())
	assert.Equal(t, int64(3), s.Initial())
	assert.Equal(t, eval.Width16, s.Width())
	final, ok := s.Final()
	assert.True(t, ok)
	assert.Equal(t, int64(-3), final)

	plain, err := NewSuite("plain", []Case{MustCase(expr.OpNeg, 0, x)})
	require.NoError(t, err)
	_, ok = plain.Final()
	assert.False(t, ok)
	assert.Equal(t, eval.Width(0), plain.Width())
}

func TestSuite_Hash(t *testing.T) {
	a := operatorFixture(t)
	b := operatorFixture(t)
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Len(t, a.Hash(), 64)

	cases := a.Cases()
	cases[3] = MustCase(expr.OpDiv, 4, x, lit(2))
	changed, err := NewSuite("operators", cases, WithFinal(0))
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash(), changed.Hash())

	described, err := NewSuite("operators", a.Cases(), WithFinal(0), WithDescription("ignored"))
	require.NoError(t, err)
	assert.Equal(t, a.Hash(), described.Hash(), "descriptions are not hashed")

	noFinal, err := NewSuite("operators", a.Cases())
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash(), noFinal.Hash())
}
