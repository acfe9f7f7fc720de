package expr

import "fmt"

// Op is a closed enumeration of the integer operators the harness can check.
// The zero value is OpInvalid.
type Op uint8

const (
	OpInvalid Op = iota

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpShl
	OpShr
	OpOr
	OpAnd
	OpXor
	OpNeg
	OpNot
	OpGt
	OpLt
	OpGe
	OpLe
	OpNe
	OpEq

	// Extensions. Not part of the mandatory evaluator capability.
	OpBitNot
	OpLogAnd
	OpLogOr

	opCount
)

// opInfo holds the static tables for one operator.
// prec is the C binary precedence (higher binds tighter), 0 for unary.
type opInfo struct {
	name   string
	symbol string
	arity  int
	prec   int
}

var opTable = [opCount]opInfo{
	OpInvalid: {name: "invalid"},
	OpAdd:     {name: "add", symbol: "+", arity: 2, prec: 9},
	OpSub:     {name: "sub", symbol: "-", arity: 2, prec: 9},
	OpMul:     {name: "mul", symbol: "*", arity: 2, prec: 10},
	OpDiv:     {name: "div", symbol: "/", arity: 2, prec: 10},
	OpMod:     {name: "mod", symbol: "%", arity: 2, prec: 10},
	OpShl:     {name: "shl", symbol: "<<", arity: 2, prec: 8},
	OpShr:     {name: "shr", symbol: ">>", arity: 2, prec: 8},
	OpOr:      {name: "or", symbol: "|", arity: 2, prec: 3},
	OpAnd:     {name: "and", symbol: "&", arity: 2, prec: 5},
	OpXor:     {name: "xor", symbol: "^", arity: 2, prec: 4},
	OpNeg:     {name: "neg", symbol: "-", arity: 1},
	OpNot:     {name: "not", symbol: "!", arity: 1},
	OpGt:      {name: "gt", symbol: ">", arity: 2, prec: 7},
	OpLt:      {name: "lt", symbol: "<", arity: 2, prec: 7},
	OpGe:      {name: "ge", symbol: ">=", arity: 2, prec: 7},
	OpLe:      {name: "le", symbol: "<=", arity: 2, prec: 7},
	OpNe:      {name: "ne", symbol: "!=", arity: 2, prec: 6},
	OpEq:      {name: "eq", symbol: "==", arity: 2, prec: 6},
	OpBitNot:  {name: "bnot", symbol: "~", arity: 1},
	OpLogAnd:  {name: "land", symbol: "&&", arity: 2, prec: 2},
	OpLogOr:   {name: "lor", symbol: "||", arity: 2, prec: 1},
}

// aliases maps accepted alternative spellings to operators.
var aliases = map[string]Op{
	"logical-not": OpNot,
}

// CoreOps returns the operators every evaluator must support, in declaration order.
func CoreOps() []Op {
	ops := make([]Op, 0, OpEq)
	for op := OpAdd; op <= OpEq; op++ {
		ops = append(ops, op)
	}
	return ops
}

// AllOps returns every valid operator including extensions.
func AllOps() []Op {
	ops := make([]Op, 0, opCount-1)
	for op := OpAdd; op < opCount; op++ {
		ops = append(ops, op)
	}
	return ops
}

// ParseOp resolves an operator by name ("add", "not", "logical-not", ...).
func ParseOp(name string) (Op, error) {
	if op, ok := aliases[name]; ok {
		return op, nil
	}
	for op := OpAdd; op < opCount; op++ {
		if opTable[op].name == name {
			return op, nil
		}
	}
	return OpInvalid, fmt.Errorf("unknown operator %q", name)
}

// Valid reports whether op is a member of the enumeration.
func (op Op) Valid() bool {
	return op > OpInvalid && op < opCount
}

// String returns the operator name used in suite files.
func (op Op) String() string {
	if op >= opCount {
		return fmt.Sprintf("Op(%d)", uint8(op))
	}
	return opTable[op].name
}

// Symbol returns the C spelling of the operator.
func (op Op) Symbol() string {
	if !op.Valid() {
		return "?"
	}
	return opTable[op].symbol
}

// Arity returns the number of operands, or 0 for invalid operators.
func (op Op) Arity() int {
	if !op.Valid() {
		return 0
	}
	return opTable[op].arity
}

// Unary reports whether op takes a single operand.
func (op Op) Unary() bool { return op.Arity() == 1 }

// Precedence returns the binary precedence level, 0 for unary or invalid operators.
func (op Op) Precedence() int {
	if !op.Valid() {
		return 0
	}
	return opTable[op].prec
}

// ShortCircuit reports whether the right operand is evaluated lazily.
func (op Op) ShortCircuit() bool {
	return op == OpLogAnd || op == OpLogOr
}

// Core reports whether op belongs to the mandatory evaluator capability.
func (op Op) Core() bool {
	return op >= OpAdd && op <= OpEq
}

// MarshalText implements encoding.TextMarshaler.
func (op Op) MarshalText() ([]byte, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid operator %d", uint8(op))
	}
	return []byte(op.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (op *Op) UnmarshalText(text []byte) error {
	parsed, err := ParseOp(string(text))
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}
