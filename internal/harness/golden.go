package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/opcheck/internal/canon"
	"github.com/roach88/opcheck/internal/eval"
)

// GoldenSuffix is the file extension of golden snapshots.
const GoldenSuffix = ".golden"

// ErrGoldenMismatch is returned by CheckGolden when a snapshot differs.
var ErrGoldenMismatch = errors.New("golden snapshot mismatch")

// toCanonicalMap converts a result to a map[string]any for canonical JSON
// serialization. Timing is never part of a snapshot.
func toCanonicalMap(r *RunResult) map[string]any {
	outcomes := make([]any, len(r.Outcomes))
	for i, o := range r.Outcomes {
		m := map[string]any{
			"index":    o.Index,
			"expr":     o.Expr,
			"input":    o.Input,
			"status":   string(o.Status),
			"expected": o.Expected,
		}
		if o.Name != "" {
			m["name"] = o.Name
		}
		if o.Status == StatusError {
			m["error"] = o.Err
		} else {
			m["actual"] = o.Actual
		}
		outcomes[i] = m
	}

	snapshot := map[string]any{
		"suite":    r.Suite,
		"pass":     r.Pass,
		"initial":  r.Initial,
		"final":    r.Final,
		"outcomes": outcomes,
	}
	if r.ExpectedFinal != nil {
		snapshot["expected_final"] = *r.ExpectedFinal
	}
	if len(r.Errors) > 0 {
		errs := make([]string, len(r.Errors))
		copy(errs, r.Errors)
		snapshot["errors"] = errs
	}
	return snapshot
}

// Snapshot returns the canonical JSON form of r, stable across runs and
// platforms.
func Snapshot(r *RunResult) ([]byte, error) {
	data, err := canon.Marshal(toCanonicalMap(r))
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", r.Suite, err)
	}
	return data, nil
}

// GoldenPath returns the snapshot path for suite name under dir.
func GoldenPath(dir, name string) string {
	return filepath.Join(dir, name+GoldenSuffix)
}

// WriteGolden writes the snapshot of r to dir, creating dir if needed.
func WriteGolden(dir string, r *RunResult) error {
	data, err := Snapshot(r)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create golden dir: %w", err)
	}
	return os.WriteFile(GoldenPath(dir, r.Suite), data, 0o644)
}

// CheckGolden compares r with its snapshot in dir. It reports found=false
// when no snapshot exists, and wraps ErrGoldenMismatch when one differs.
func CheckGolden(dir string, r *RunResult) (found bool, err error) {
	want, err := os.ReadFile(GoldenPath(dir, r.Suite))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read golden: %w", err)
	}
	got, err := Snapshot(r)
	if err != nil {
		return true, err
	}
	if !bytes.Equal(bytes.TrimSpace(want), got) {
		return true, fmt.Errorf("%w: %s", ErrGoldenMismatch, GoldenPath(dir, r.Suite))
	}
	return true, nil
}

// RunWithGolden runs a suite and compares the result against a golden file.
// The golden file is stored in testdata/golden/{suite name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Suite, ev eval.Evaluator, opts ...RunOption) *RunResult {
	t.Helper()

	result := Run(context.Background(), s, ev, opts...)
	AssertGolden(t, s.Name(), result)
	return result
}

// AssertGolden compares an existing result against a golden file without
// re-running the suite.
func AssertGolden(t *testing.T, name string, r *RunResult) {
	t.Helper()

	data, err := Snapshot(r)
	if err != nil {
		t.Fatalf("golden %s: %v", name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(GoldenSuffix),
	)
	g.Assert(t, name, data)
}
