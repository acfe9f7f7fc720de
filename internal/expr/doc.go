// Package expr defines the operator enumeration and operand trees checked by
// the harness, together with a small C-style notation for writing them.
//
// Notation:
//
//	x + 2          add(x, 2)
//	-x             neg(x)
//	x + !!x        add(x, not(not(x)))
//	x + (x > 2)    add(x, gt(x, 2))
//
// The only identifier is x, the harness accumulator. Precedence and
// associativity follow C. Printing a tree with String and parsing the text
// again yields the same tree for every tree Parse can produce.
package expr
