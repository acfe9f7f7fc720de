package eval

import (
	"context"
	"fmt"

	"github.com/roach88/opcheck/internal/expr"
)

// Width is an integer width in bits. Results wrap in two's complement.
type Width int

// Supported widths.
const (
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
	Width64 Width = 64

	// DefaultWidth matches int on the x86-64 target the operator fixtures came from.
	DefaultWidth = Width32
)

// ParseWidth validates a width given in bits. Zero selects DefaultWidth.
func ParseWidth(bits int) (Width, error) {
	switch w := Width(bits); w {
	case 0:
		return DefaultWidth, nil
	case Width8, Width16, Width32, Width64:
		return w, nil
	default:
		return 0, fmt.Errorf("unsupported integer width %d: must be 8, 16, 32 or 64", bits)
	}
}

// Wrap truncates v to w bits and sign-extends the result.
func (w Width) Wrap(v int64) int64 {
	switch w {
	case Width8:
		return int64(int8(v))
	case Width16:
		return int64(int16(v))
	case Width32:
		return int64(int32(v))
	default:
		return v
	}
}

// String implements fmt.Stringer.
func (w Width) String() string {
	return fmt.Sprintf("int%d", int(w))
}

// Native evaluates operators with C semantics on fixed-width signed integers.
// Division truncates toward zero. Shift counts are taken from the right
// operand as unsigned values without bound validation, so counts at or past
// the width shift every bit out.
//
// Native is stateless and safe for concurrent use.
type Native struct {
	width Width
}

// NewNative creates a native evaluator for w. Widths other than 8, 16, 32 or
// 64 fall back to DefaultWidth.
func NewNative(w Width) *Native {
	pw, err := ParseWidth(int(w))
	if err != nil {
		pw = DefaultWidth
	}
	return &Native{width: pw}
}

// Width returns the evaluator's integer width.
func (n *Native) Width() Width { return n.width }

// Name identifies the evaluator in reports and run history.
func (n *Native) Name() string { return "native/" + n.width.String() }

// Evaluate implements Evaluator. Operands are wrapped to the evaluator width
// before use.
func (n *Native) Evaluate(_ context.Context, op expr.Op, operands []int64) (int64, error) {
	if err := checkArity(op, operands); err != nil {
		return 0, err
	}
	w := n.width

	if op.Unary() {
		v := w.Wrap(operands[0])
		switch op {
		case expr.OpNeg:
			return w.Wrap(-v), nil
		case expr.OpNot:
			return boolInt(v == 0), nil
		case expr.OpBitNot:
			return w.Wrap(^v), nil
		}
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedOp, op)
	}

	l, r := w.Wrap(operands[0]), w.Wrap(operands[1])
	switch op {
	case expr.OpAdd:
		return w.Wrap(l + r), nil
	case expr.OpSub:
		return w.Wrap(l - r), nil
	case expr.OpMul:
		return w.Wrap(l * r), nil
	case expr.OpDiv:
		if r == 0 {
			return 0, ErrDivisionByZero
		}
		return w.Wrap(l / r), nil
	case expr.OpMod:
		if r == 0 {
			return 0, ErrDivisionByZero
		}
		return w.Wrap(l % r), nil
	case expr.OpShl:
		return w.Wrap(l << uint64(r)), nil
	case expr.OpShr:
		return w.Wrap(l >> uint64(r)), nil
	case expr.OpOr:
		return l | r, nil
	case expr.OpAnd:
		return l & r, nil
	case expr.OpXor:
		return l ^ r, nil
	case expr.OpGt:
		return boolInt(l > r), nil
	case expr.OpLt:
		return boolInt(l < r), nil
	case expr.OpGe:
		return boolInt(l >= r), nil
	case expr.OpLe:
		return boolInt(l <= r), nil
	case expr.OpNe:
		return boolInt(l != r), nil
	case expr.OpEq:
		return boolInt(l == r), nil
	case expr.OpLogAnd:
		return boolInt(l != 0 && r != 0), nil
	case expr.OpLogOr:
		return boolInt(l != 0 || r != 0), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedOp, op)
}
