package harness

import (
	"fmt"
	"strings"
)

// CaseFailure describes a case that did not pass.
// It includes the outcomes leading up to it to help debug the failure.
type CaseFailure struct {
	Suite   string
	Outcome Outcome
	Trace   []Outcome // outcomes up to and including the failing one
}

// Error implements the error interface.
func (e *CaseFailure) Error() string {
	var buf strings.Builder

	o := e.Outcome
	fmt.Fprintf(&buf, "Case failed: %s[%d]", e.Suite, o.Index)
	if o.Name != "" {
		fmt.Fprintf(&buf, " (%s)", o.Name)
	}
	fmt.Fprintf(&buf, " x = %s with x = %d\n", o.Expr, o.Input)

	fmt.Fprintf(&buf, "  Expected: %d\n", o.Expected)
	if o.Status == StatusError {
		fmt.Fprintf(&buf, "  Actual: error: %s\n", o.Err)
	} else {
		fmt.Fprintf(&buf, "  Actual: %d\n", o.Actual)
	}

	fmt.Fprintf(&buf, "\nTrace:\n")
	for _, t := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] x = %-12s %6d -> %s\n", t.Index, t.Expr, t.Input, describe(t))
	}

	return buf.String()
}

func describe(o Outcome) string {
	switch o.Status {
	case StatusPass:
		return fmt.Sprintf("%d", o.Actual)
	case StatusMismatch:
		return fmt.Sprintf("%d (expected %d)", o.Actual, o.Expected)
	default:
		return "error: " + o.Err
	}
}

// Failures returns a *CaseFailure for every outcome that did not pass, in
// order.
func (r *RunResult) Failures() []error {
	var errs []error
	for i, o := range r.Outcomes {
		if o.Passed() {
			continue
		}
		errs = append(errs, &CaseFailure{
			Suite:   r.Suite,
			Outcome: o,
			Trace:   r.Outcomes[:i+1],
		})
	}
	return errs
}
