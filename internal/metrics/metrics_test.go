package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opcheck/internal/eval"
	"github.com/roach88/opcheck/internal/expr"
	"github.com/roach88/opcheck/internal/harness"
)

func runSuite(t *testing.T, rec *Recorder) *harness.RunResult {
	t.Helper()
	x := expr.X()
	s, err := harness.NewSuite("metrics", []harness.Case{
		harness.MustCase(expr.OpAdd, 2, x, expr.Int(2)),
		harness.MustCase(expr.OpAdd, 9, x, expr.Int(2)),
		harness.MustCase(expr.OpDiv, 0, x, expr.Int(0)),
	})
	require.NoError(t, err)
	return harness.Run(context.Background(), s, eval.NewNative(eval.DefaultWidth), harness.WithObserver(rec))
}

func TestRecorder_CountsOutcomes(t *testing.T) {
	rec := New()
	runSuite(t, rec)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.cases.WithLabelValues("metrics", "pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.cases.WithLabelValues("metrics", "mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.cases.WithLabelValues("metrics", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.suitePass.WithLabelValues("metrics")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runs))
}

func TestRecorder_HistogramByOperator(t *testing.T) {
	rec := New()
	runSuite(t, rec)

	// Two label values: add and div.
	assert.Equal(t, 2, testutil.CollectAndCount(rec.durations))
}

func TestRecorder_SuitePassGauge(t *testing.T) {
	rec := New()
	rec.ObserveRun(&harness.RunResult{Suite: "ok", Pass: true})
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.suitePass.WithLabelValues("ok")))

	rec.ObserveRun(&harness.RunResult{Suite: "ok", Pass: false})
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.suitePass.WithLabelValues("ok")))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	rec := New()
	runSuite(t, rec)

	path := filepath.Join(t.TempDir(), "opcheck.prom")
	require.NoError(t, rec.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `opcheck_cases_total{status="pass",suite="metrics"} 1`)
	assert.Contains(t, text, `opcheck_suite_pass{suite="metrics"} 0`)
	assert.Contains(t, text, "# TYPE opcheck_case_duration_seconds histogram")
	assert.True(t, strings.HasSuffix(text, "\n"))
}

func TestRecorder_WriteTextfileBadPath(t *testing.T) {
	err := New().WriteTextfile(filepath.Join(t.TempDir(), "missing", "m.prom"))
	assert.Error(t, err)
}
