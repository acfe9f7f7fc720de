package harness

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/opcheck/internal/eval"
	"github.com/roach88/opcheck/internal/expr"
)

// SuiteDef is the file form of a suite.
type SuiteDef struct {
	// Name uniquely identifies this suite.
	Name string `yaml:"name" json:"name"`

	// Description explains what this suite validates.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Width is the integer width in bits for native evaluation.
	Width int `yaml:"width,omitempty" json:"width,omitempty"`

	// Initial is the accumulator before the first case.
	Initial int64 `yaml:"initial,omitempty" json:"initial,omitempty"`

	// Final, if set, is the accumulator the run must end with.
	Final *int64 `yaml:"final,omitempty" json:"final,omitempty"`

	// Cases run in order.
	Cases []CaseDef `yaml:"cases" json:"cases"`
}

// CaseDef is the file form of a case. Exactly one of Expr or Op is set.
type CaseDef struct {
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Expr is an operator application in C notation, e.g. "x << 2".
	Expr string `yaml:"expr,omitempty" json:"expr,omitempty"`

	// Op names the operator; Args are its operands.
	Op   string `yaml:"op,omitempty" json:"op,omitempty"`
	Args []Arg  `yaml:"args,omitempty" json:"args,omitempty"`

	Expect *int64 `yaml:"expect" json:"expect"`
}

// Arg is an operand in a case file: an integer literal, a string in C
// notation such as "x" or "!!x", or a nested application written as a
// mapping with op and args.
type Arg struct {
	Int  *int64
	Expr string
	Op   string
	Args []Arg
}

// applyArg is the mapping form of a nested application.
type applyArg struct {
	Op   string `yaml:"op" json:"op"`
	Args []Arg  `yaml:"args" json:"args"`
}

// IntArg returns a literal argument.
func IntArg(v int64) Arg { return Arg{Int: &v} }

// ExprArg returns a notation argument.
func ExprArg(s string) Arg { return Arg{Expr: s} }

// ApplyArg returns a nested application argument.
func ApplyArg(op string, args ...Arg) Arg { return Arg{Op: op, Args: args} }

// Node converts the argument to an operand tree.
func (a Arg) Node() (expr.Node, error) {
	switch {
	case a.Int != nil:
		return expr.Int(*a.Int), nil
	case a.Op != "":
		op, err := expr.ParseOp(a.Op)
		if err != nil {
			return nil, err
		}
		args := make([]expr.Node, len(a.Args))
		for i, sub := range a.Args {
			n, err := sub.Node()
			if err != nil {
				return nil, fmt.Errorf("%s args[%d]: %w", a.Op, i, err)
			}
			args[i] = n
		}
		return expr.Call(op, args...), nil
	case a.Expr == "":
		return nil, fmt.Errorf("empty operand")
	}
	return expr.Parse(a.Expr)
}

// argOf is the file form of n. Subtrees whose text parses back to them are
// written in notation; the rest keep their structure.
func argOf(n expr.Node) Arg {
	switch n := n.(type) {
	case expr.Lit:
		return IntArg(int64(n))
	case *expr.Apply:
		if !expr.RoundTrips(n) {
			args := make([]Arg, len(n.Args))
			for i, sub := range n.Args {
				args[i] = argOf(sub)
			}
			return ApplyArg(n.Op.String(), args...)
		}
	}
	return ExprArg(n.String())
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Arg) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		for i := 0; i < len(value.Content); i += 2 {
			if k := value.Content[i].Value; k != "op" && k != "args" {
				return fmt.Errorf("line %d: field %s not found in operand", value.Content[i].Line, k)
			}
		}
		var aa applyArg
		if err := value.Decode(&aa); err != nil {
			return err
		}
		if aa.Op == "" {
			return fmt.Errorf("line %d: nested operand needs op", value.Line)
		}
		*a = ApplyArg(aa.Op, aa.Args...)
		return nil
	case yaml.ScalarNode:
	default:
		return fmt.Errorf("line %d: operand must be an integer, a string or an op mapping", value.Line)
	}
	if value.Tag == "!!int" {
		var v int64
		if err := value.Decode(&v); err != nil {
			return err
		}
		*a = IntArg(v)
		return nil
	}
	*a = ExprArg(value.Value)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (a Arg) MarshalYAML() (any, error) {
	switch {
	case a.Int != nil:
		return *a.Int, nil
	case a.Op != "":
		return applyArg{Op: a.Op, Args: a.Args}, nil
	}
	return a.Expr, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Arg) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 {
		switch data[0] {
		case '"':
			var s string
			if err := json.Unmarshal(data, &s); err != nil {
				return err
			}
			*a = ExprArg(s)
			return nil
		case '{':
			var aa applyArg
			dec := json.NewDecoder(bytes.NewReader(data))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&aa); err != nil {
				return fmt.Errorf("nested operand: %w", err)
			}
			if aa.Op == "" {
				return fmt.Errorf("nested operand needs op")
			}
			*a = ApplyArg(aa.Op, aa.Args...)
			return nil
		}
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("operand must be an integer, a string or an op object: %s", data)
	}
	*a = IntArg(v)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (a Arg) MarshalJSON() ([]byte, error) {
	switch {
	case a.Int != nil:
		return json.Marshal(*a.Int)
	case a.Op != "":
		return json.Marshal(applyArg{Op: a.Op, Args: a.Args})
	}
	return json.Marshal(a.Expr)
}

// LoadSuite reads and builds a suite from a YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or defines a malformed case.
func LoadSuite(path string) (*Suite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}
	defer f.Close()

	def, err := DecodeSuite(f)
	if err != nil {
		return nil, err
	}
	s, err := def.Build()
	if err != nil {
		return nil, fmt.Errorf("invalid suite: %w", err)
	}
	return s, nil
}

// DecodeSuite parses one YAML suite definition with strict field checking.
func DecodeSuite(r io.Reader) (*SuiteDef, error) {
	var def SuiteDef
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &def, nil
}

// Build validates the definition and constructs the suite.
func (d *SuiteDef) Build() (*Suite, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if len(d.Cases) == 0 {
		return nil, fmt.Errorf("cases list is required and must be non-empty")
	}

	cases := make([]Case, 0, len(d.Cases))
	for i, cd := range d.Cases {
		c, err := cd.build()
		if err != nil {
			return nil, &CaseError{Index: i, Name: cd.Name, Err: err}
		}
		cases = append(cases, c)
	}

	opts := []SuiteOption{WithDescription(d.Description), WithInitial(d.Initial)}
	if d.Final != nil {
		opts = append(opts, WithFinal(*d.Final))
	}
	if d.Width != 0 {
		w, err := eval.ParseWidth(d.Width)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithWidth(w))
	}
	return NewSuite(d.Name, cases, opts...)
}

func (cd CaseDef) build() (Case, error) {
	if cd.Expect == nil {
		return Case{}, fmt.Errorf("expect is required")
	}

	var (
		c   Case
		err error
	)
	switch {
	case cd.Expr != "" && cd.Op != "":
		return Case{}, fmt.Errorf("expr and op are mutually exclusive")
	case cd.Expr != "":
		if len(cd.Args) > 0 {
			return Case{}, fmt.Errorf("args require op")
		}
		n, perr := expr.Parse(cd.Expr)
		if perr != nil {
			return Case{}, perr
		}
		c, err = CaseFromExpr(n, *cd.Expect)
	case cd.Op != "":
		op, perr := expr.ParseOp(cd.Op)
		if perr != nil {
			return Case{}, perr
		}
		operands := make([]expr.Node, len(cd.Args))
		for i, a := range cd.Args {
			n, aerr := a.Node()
			if aerr != nil {
				return Case{}, fmt.Errorf("args[%d]: %w", i, aerr)
			}
			operands[i] = n
		}
		c, err = NewCase(op, *cd.Expect, operands...)
	default:
		return Case{}, fmt.Errorf("either expr or op is required")
	}
	if err != nil {
		var ce *CaseError
		if errors.As(err, &ce) {
			return Case{}, ce.Err
		}
		return Case{}, err
	}
	return c.WithName(cd.Name), nil
}

// Def returns the file form of s. Cases are written in expr form unless
// their tree holds a negative literal, which is kept as op and args.
func (s *Suite) Def() *SuiteDef {
	d := &SuiteDef{
		Name:        s.name,
		Description: s.description,
		Width:       int(s.width),
		Initial:     s.initial,
		Cases:       make([]CaseDef, len(s.cases)),
	}
	if s.final != nil {
		v := *s.final
		d.Final = &v
	}
	for i, c := range s.cases {
		want := c.expected
		cd := CaseDef{Name: c.name, Expect: &want}
		if expr.RoundTrips(c.root) {
			cd.Expr = c.String()
		} else {
			cd.Op = c.root.Op.String()
			cd.Args = make([]Arg, len(c.root.Args))
			for j, arg := range c.root.Args {
				cd.Args[j] = argOf(arg)
			}
		}
		d.Cases[i] = cd
	}
	return d
}

// EncodeSuite writes d as YAML.
func EncodeSuite(w io.Writer, d *SuiteDef) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("failed to encode suite: %w", err)
	}
	return enc.Close()
}
