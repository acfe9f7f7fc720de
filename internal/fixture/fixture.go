// Package fixture imports C operator fixtures as suite definitions.
//
// A fixture threads a global x through assignments whose trailing comment
// states the expected value:
//
//	x = 0;
//	x = x + 2;        // 2
//	x = -x;           // -2
//	return x;
//
// The first uncommented literal assignment sets the initial value, each
// commented assignment becomes a case, and "return x;" declares an expected
// final value of 0, since the fixture passes when the process exits with
// status zero. Other lines are ignored.
package fixture

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/opcheck/internal/expr"
	"github.com/roach88/opcheck/internal/harness"
)

var (
	assignRe   = regexp.MustCompile(`^x\s*=\s*([^;]+);\s*(//.*)?$`)
	expectedRe = regexp.MustCompile(`^//\s*([-+]?(?:0[xX][0-9a-fA-F]+|[0-9]+))\s*$`)
	returnRe   = regexp.MustCompile(`^return\s+x\s*;`)
)

// LineError reports a fixture line that could not be imported.
type LineError struct {
	Line int
	Text string
	Err  error
}

// Error implements the error interface.
func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v: %s", e.Line, e.Err, e.Text)
}

func (e *LineError) Unwrap() error { return e.Err }

// ImportFile reads a fixture from path. An empty name defaults to the file
// name without its extension.
func ImportFile(path, name string) (*harness.SuiteDef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("import fixture: %w", err)
	}
	defer f.Close()

	base := filepath.Base(path)
	if name == "" {
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	def, err := Import(f, name)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", base, err)
	}
	def.Description = "imported from " + base
	return def, nil
}

// Import converts fixture source to a suite definition named name.
func Import(r io.Reader, name string) (*harness.SuiteDef, error) {
	def := &harness.SuiteDef{Name: name}
	initialSet := false

	sc := bufio.NewScanner(r)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())

		if returnRe.MatchString(line) {
			zero := int64(0)
			def.Final = &zero
			continue
		}

		m := assignRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineErr := func(err error) error {
			return &LineError{Line: lineNo, Text: line, Err: err}
		}

		comment := strings.TrimSpace(m[2])
		if comment == "" {
			v, ok := initialValue(m[1])
			if !ok || initialSet || len(def.Cases) > 0 {
				return nil, lineErr(fmt.Errorf("assignment has no expected value comment"))
			}
			def.Initial = v
			initialSet = true
			continue
		}

		n, err := expr.Parse(m[1])
		if err != nil {
			return nil, lineErr(err)
		}

		em := expectedRe.FindStringSubmatch(comment)
		if em == nil {
			return nil, lineErr(fmt.Errorf("comment %q is not an expected value", comment))
		}
		want, err := strconv.ParseInt(em[1], 0, 64)
		if err != nil {
			return nil, lineErr(err)
		}
		if _, ok := n.(*expr.Apply); !ok {
			return nil, lineErr(fmt.Errorf("right-hand side applies no operator"))
		}

		def.Cases = append(def.Cases, harness.CaseDef{Expr: n.String(), Expect: &want})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	if len(def.Cases) == 0 {
		return nil, fmt.Errorf("no cases found")
	}
	return def, nil
}

// initialValue reads the right-hand side of an uncommented assignment as
// an integer constant, allowing a leading minus: "-1" or "-(0x10)".
func initialValue(src string) (int64, bool) {
	src = strings.TrimSpace(src)
	if v, err := strconv.ParseInt(src, 0, 64); err == nil {
		return v, true
	}
	n, err := expr.Parse(src)
	if err != nil {
		return 0, false
	}
	switch n := n.(type) {
	case expr.Lit:
		return int64(n), true
	case *expr.Apply:
		if lit, ok := n.Args[0].(expr.Lit); ok && n.Op == expr.OpNeg {
			return -int64(lit), true
		}
	}
	return 0, false
}
