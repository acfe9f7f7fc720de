package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is an operand: the accumulator, an integer literal, or a nested
// operator application. Only Acc, Lit and *Apply implement it.
type Node interface {
	fmt.Stringer
	node()
}

// Acc is the running accumulator, written x.
type Acc struct{}

func (Acc) node() {}

// String implements fmt.Stringer.
func (Acc) String() string { return AccName }

// AccName is the identifier the notation uses for the accumulator.
const AccName = "x"

// Lit is an integer literal. The parser never produces a negative Lit:
// "-1" is OpNeg applied to 1.
type Lit int64

func (Lit) node() {}

// String implements fmt.Stringer. A negative literal prints as its value,
// which reads back as a negation; see RoundTrips.
func (l Lit) String() string { return strconv.FormatInt(int64(l), 10) }

// Apply applies Op to Args.
type Apply struct {
	Op   Op
	Args []Node
}

func (*Apply) node() {}

// String renders the application in C notation with minimal parentheses.
func (a *Apply) String() string {
	var b strings.Builder
	writeNode(&b, a)
	return b.String()
}

// X returns the accumulator operand.
func X() Node { return Acc{} }

// Int returns a literal operand.
func Int(v int64) Node { return Lit(v) }

// Call builds an application. Arity is checked by Validate, not here, so
// that malformed definitions can be reported with their position.
func Call(op Op, args ...Node) *Apply {
	return &Apply{Op: op, Args: args}
}

// Validate checks operator membership and arity throughout the tree.
func Validate(n Node) error {
	switch n := n.(type) {
	case Acc, Lit:
		return nil
	case *Apply:
		if n == nil {
			return fmt.Errorf("nil application")
		}
		if !n.Op.Valid() {
			return fmt.Errorf("invalid operator %d", uint8(n.Op))
		}
		if len(n.Args) != n.Op.Arity() {
			return fmt.Errorf("%s takes %d operand(s), got %d", n.Op, n.Op.Arity(), len(n.Args))
		}
		for i, arg := range n.Args {
			if arg == nil {
				return fmt.Errorf("%s operand %d is nil", n.Op, i)
			}
			if err := Validate(arg); err != nil {
				return fmt.Errorf("%s operand %d: %w", n.Op, i, err)
			}
		}
		return nil
	case nil:
		return fmt.Errorf("nil operand")
	default:
		return fmt.Errorf("unsupported node %T", n)
	}
}

// Equal reports whether two trees are structurally identical.
func Equal(a, b Node) bool {
	switch a := a.(type) {
	case Acc:
		_, ok := b.(Acc)
		return ok
	case Lit:
		bl, ok := b.(Lit)
		return ok && a == bl
	case *Apply:
		ba, ok := b.(*Apply)
		if !ok || a.Op != ba.Op || len(a.Args) != len(ba.Args) {
			return false
		}
		for i := range a.Args {
			if !Equal(a.Args[i], ba.Args[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy of n.
func Clone(n Node) Node {
	a, ok := n.(*Apply)
	if !ok {
		return n
	}
	args := make([]Node, len(a.Args))
	for i, arg := range a.Args {
		args[i] = Clone(arg)
	}
	return &Apply{Op: a.Op, Args: args}
}

// RoundTrips reports whether Parse(n.String()) rebuilds n. It fails only
// for trees holding a negative literal.
func RoundTrips(n Node) bool {
	switch n := n.(type) {
	case Lit:
		return n >= 0
	case *Apply:
		for _, arg := range n.Args {
			if !RoundTrips(arg) {
				return false
			}
		}
	}
	return true
}

// UsesAcc reports whether the accumulator appears anywhere in n.
func UsesAcc(n Node) bool {
	switch n := n.(type) {
	case Acc:
		return true
	case *Apply:
		for _, arg := range n.Args {
			if UsesAcc(arg) {
				return true
			}
		}
	}
	return false
}

func writeNode(b *strings.Builder, n Node) {
	a, ok := n.(*Apply)
	if !ok {
		b.WriteString(n.String())
		return
	}
	if a.Op.Unary() && len(a.Args) == 1 {
		b.WriteString(a.Op.Symbol())
		writeOperand(b, a.Args[0], a.Op, false)
		return
	}
	if len(a.Args) != 2 {
		// Malformed trees still print so that errors can quote them.
		fmt.Fprintf(b, "%s(", a.Op)
		for i, arg := range a.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			writeNode(b, arg)
		}
		b.WriteByte(')')
		return
	}
	writeOperand(b, a.Args[0], a.Op, false)
	b.WriteByte(' ')
	b.WriteString(a.Op.Symbol())
	b.WriteByte(' ')
	writeOperand(b, a.Args[1], a.Op, true)
}

// writeOperand prints child inside parent, adding parentheses when the
// printed text would otherwise parse differently. All binary operators are
// left associative, so a right child of equal precedence needs them.
func writeOperand(b *strings.Builder, child Node, parent Op, right bool) {
	if needsParens(child, parent, right) {
		b.WriteByte('(')
		writeNode(b, child)
		b.WriteByte(')')
		return
	}
	if parent.Unary() && startsWithSign(child, parent) {
		// -(-x) would otherwise print as --x, which is not a double negation.
		b.WriteByte('(')
		writeNode(b, child)
		b.WriteByte(')')
		return
	}
	writeNode(b, child)
}

func needsParens(child Node, parent Op, right bool) bool {
	switch c := child.(type) {
	case Lit:
		// A negative literal under a unary operator or on the left of a
		// binary one still parses the same way: unary minus binds tighter.
		return false
	case *Apply:
		if c.Op.Unary() {
			return false
		}
		if parent.Unary() {
			return true
		}
		if c.Op.Precedence() < parent.Precedence() {
			return true
		}
		return right && c.Op.Precedence() == parent.Precedence()
	}
	return false
}

func startsWithSign(child Node, parent Op) bool {
	if parent != OpNeg {
		return false
	}
	switch c := child.(type) {
	case Lit:
		return c < 0
	case *Apply:
		return c.Op == OpNeg
	}
	return false
}
