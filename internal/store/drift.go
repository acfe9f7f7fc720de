package store

import (
	"fmt"

	"github.com/roach88/opcheck/internal/harness"
)

// Change is a case whose behaviour differs between two runs of one suite.
type Change struct {
	Index  int
	Expr   string
	Before harness.Outcome
	After  harness.Outcome
}

// String describes the change on one line.
func (c Change) String() string {
	return fmt.Sprintf("[%d] x = %s: %s -> %s", c.Index, c.Expr, describe(c.Before), describe(c.After))
}

func describe(o harness.Outcome) string {
	if o.Status == harness.StatusError {
		return "error"
	}
	return fmt.Sprintf("%d (%s)", o.Actual, o.Status)
}

// Drift compares two runs case by case and returns the cases whose status,
// value or input changed. Cases present in only one run are reported with a
// zero outcome on the other side.
func Drift(before, after *harness.RunResult) []Change {
	n := max(len(before.Outcomes), len(after.Outcomes))
	var changes []Change
	for i := 0; i < n; i++ {
		var b, a harness.Outcome
		if i < len(before.Outcomes) {
			b = before.Outcomes[i]
		}
		if i < len(after.Outcomes) {
			a = after.Outcomes[i]
		}
		if sameBehaviour(b, a) {
			continue
		}
		expr := a.Expr
		if expr == "" {
			expr = b.Expr
		}
		changes = append(changes, Change{Index: i, Expr: expr, Before: b, After: a})
	}
	return changes
}

func sameBehaviour(a, b harness.Outcome) bool {
	return a.Status == b.Status &&
		a.Actual == b.Actual &&
		a.Input == b.Input &&
		a.Expr == b.Expr &&
		a.Err == b.Err
}
