package harness

import (
	"fmt"

	"github.com/roach88/opcheck/internal/canon"
	"github.com/roach88/opcheck/internal/eval"
	"github.com/roach88/opcheck/internal/expr"
)

// CaseError reports a malformed case. Index is the case's position in its
// suite, or -1 when the case was built on its own.
type CaseError struct {
	Index int
	Name  string
	Err   error
}

// Error implements the error interface.
func (e *CaseError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("invalid case: %v", e.Err)
	case e.Name != "":
		return fmt.Sprintf("case %d (%s): %v", e.Index, e.Name, e.Err)
	default:
		return fmt.Sprintf("case %d: %v", e.Index, e.Err)
	}
}

func (e *CaseError) Unwrap() error { return e.Err }

// Case is one operator application with its expected result. Cases are
// immutable; accessors return copies.
type Case struct {
	name     string
	root     *expr.Apply
	expected int64
}

// NewCase builds a case applying op to operands. Operands may be nested
// applications; arity is checked throughout the tree.
func NewCase(op expr.Op, expected int64, operands ...expr.Node) (Case, error) {
	args := make([]expr.Node, len(operands))
	for i, o := range operands {
		args[i] = expr.Clone(o)
	}
	root := expr.Call(op, args...)
	if err := expr.Validate(root); err != nil {
		return Case{}, &CaseError{Index: -1, Err: err}
	}
	return Case{root: root, expected: expected}, nil
}

// CaseFromExpr builds a case from a parsed expression. The root of n must be
// an operator application.
func CaseFromExpr(n expr.Node, expected int64) (Case, error) {
	a, ok := n.(*expr.Apply)
	if !ok {
		return Case{}, &CaseError{Index: -1, Err: fmt.Errorf("expression %q applies no operator", fmt.Sprint(n))}
	}
	return NewCase(a.Op, expected, a.Args...)
}

// MustCase is NewCase for tables built in code.
func MustCase(op expr.Op, expected int64, operands ...expr.Node) Case {
	c, err := NewCase(op, expected, operands...)
	if err != nil {
		panic(err)
	}
	return c
}

// WithName returns a copy of c labelled name.
func (c Case) WithName(name string) Case {
	c.name = name
	return c
}

// Name returns the optional label.
func (c Case) Name() string { return c.name }

// Op returns the case operator.
func (c Case) Op() expr.Op {
	if c.root == nil {
		return expr.OpInvalid
	}
	return c.root.Op
}

// Operands returns a copy of the operand trees.
func (c Case) Operands() []expr.Node {
	if c.root == nil {
		return nil
	}
	out := make([]expr.Node, len(c.root.Args))
	for i, a := range c.root.Args {
		out[i] = expr.Clone(a)
	}
	return out
}

// Expected returns the value the case must produce.
func (c Case) Expected() int64 { return c.expected }

// Expr returns a copy of the whole application tree.
func (c Case) Expr() *expr.Apply {
	if c.root == nil {
		return nil
	}
	return expr.Clone(c.root).(*expr.Apply)
}

// String renders the case in C notation.
func (c Case) String() string {
	if c.root == nil {
		return "<invalid>"
	}
	return c.root.String()
}

func (c Case) validate() error {
	if c.root == nil {
		return fmt.Errorf("case has no operator")
	}
	return expr.Validate(c.root)
}

// canonicalMap identifies a case by its tree, not its printed text, so a
// negative literal and a negation never hash alike.
func (c Case) canonicalMap() map[string]any {
	m := map[string]any{
		"tree":     canonicalTree(c.root),
		"expected": c.expected,
	}
	if c.name != "" {
		m["name"] = c.name
	}
	return m
}

func canonicalTree(n expr.Node) any {
	switch n := n.(type) {
	case expr.Lit:
		return int64(n)
	case *expr.Apply:
		args := make([]any, len(n.Args))
		for i, arg := range n.Args {
			args[i] = canonicalTree(arg)
		}
		return map[string]any{"op": n.Op.String(), "args": args}
	}
	return expr.AccName
}

// Suite is an ordered, immutable sequence of cases sharing one accumulator.
type Suite struct {
	name        string
	description string
	cases       []Case
	initial     int64
	final       *int64
	width       eval.Width
}

// SuiteOption configures a suite at construction.
type SuiteOption func(*Suite)

// WithDescription sets the suite description.
func WithDescription(d string) SuiteOption {
	return func(s *Suite) { s.description = d }
}

// WithInitial sets the accumulator value before the first case.
func WithInitial(v int64) SuiteOption {
	return func(s *Suite) { s.initial = v }
}

// WithFinal declares the accumulator value expected after the last case.
func WithFinal(v int64) SuiteOption {
	return func(s *Suite) { s.final = &v }
}

// WithWidth sets the integer width hint for native evaluation.
func WithWidth(w eval.Width) SuiteOption {
	return func(s *Suite) { s.width = w }
}

// NewSuite validates cases and builds a suite. A malformed case fails with a
// *CaseError naming its index.
func NewSuite(name string, cases []Case, opts ...SuiteOption) (*Suite, error) {
	if name == "" {
		return nil, fmt.Errorf("suite name is required")
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("suite %s: at least one case is required", name)
	}
	for i, c := range cases {
		if err := c.validate(); err != nil {
			return nil, &CaseError{Index: i, Name: c.name, Err: err}
		}
	}

	s := &Suite{name: name, cases: append([]Case(nil), cases...)}
	for _, opt := range opts {
		opt(s)
	}
	if s.width != 0 {
		if _, err := eval.ParseWidth(int(s.width)); err != nil {
			return nil, fmt.Errorf("suite %s: %w", name, err)
		}
	}
	return s, nil
}

// Name returns the suite name.
func (s *Suite) Name() string { return s.name }

// Description returns the suite description.
func (s *Suite) Description() string { return s.description }

// Len returns the number of cases.
func (s *Suite) Len() int { return len(s.cases) }

// Cases returns a copy of the cases in order.
func (s *Suite) Cases() []Case { return append([]Case(nil), s.cases...) }

// Initial returns the starting accumulator.
func (s *Suite) Initial() int64 { return s.initial }

// Final returns the expected final accumulator, if declared.
func (s *Suite) Final() (int64, bool) {
	if s.final == nil {
		return 0, false
	}
	return *s.final, true
}

// Width returns the width hint, or zero when the suite leaves it to the
// evaluator.
func (s *Suite) Width() eval.Width { return s.width }

// Hash identifies the suite's content. Suites with the same name, cases and
// accumulator bounds hash identically; descriptions are not hashed.
func (s *Suite) Hash() string {
	cases := make([]any, len(s.cases))
	for i, c := range s.cases {
		cases[i] = c.canonicalMap()
	}
	m := map[string]any{
		"name":    s.name,
		"initial": s.initial,
		"width":   int(s.width),
		"cases":   cases,
	}
	if s.final != nil {
		m["final"] = *s.final
	}
	return canon.HashWithDomain(canon.DomainSuite, canon.MustMarshal(m))
}
