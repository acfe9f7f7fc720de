package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/opcheck/internal/eval"
	"github.com/roach88/opcheck/internal/expr"
	"github.com/roach88/opcheck/internal/harness"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

// createTestSuite builds a short suite; shift changes the second case's
// expectation so that runs can be made to differ.
func createTestSuite(t *testing.T, name string, shift int64) *harness.Suite {
	t.Helper()
	x := expr.X()
	s, err := harness.NewSuite(name, []harness.Case{
		harness.MustCase(expr.OpAdd, 2, x, expr.Int(2)),
		harness.MustCase(expr.OpMul, 6+shift, x, expr.Int(3)).WithName("triple"),
		harness.MustCase(expr.OpDiv, 0, x, expr.Int(0)),
	}, harness.WithFinal(6))
	if err != nil {
		t.Fatalf("NewSuite() failed: %v", err)
	}
	return s
}

// createTestRun runs s natively and wraps the result in a record.
func createTestRun(t *testing.T, id string, s *harness.Suite) Run {
	t.Helper()
	ev := eval.NewNative(eval.DefaultWidth)
	result := harness.Run(context.Background(), s, ev)
	return NewRun(id, s, ev.Name(), testEpoch, result)
}
