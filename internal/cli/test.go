package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/opcheck/internal/config"
	"github.com/roach88/opcheck/internal/eval"
	"github.com/roach88/opcheck/internal/harness"
	"github.com/roach88/opcheck/internal/metrics"
	"github.com/roach88/opcheck/internal/runid"
	"github.com/roach88/opcheck/internal/store"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update      bool   // regenerate golden files
	Filter      string // suite filter (glob pattern)
	Evaluator   string
	EvalCmd     string
	Width       int
	Timeout     time.Duration
	Parallel    int
	Database    string
	MetricsFile string

	// IDs allows overriding the run id generator (for testing).
	// If nil, defaults to runid.UUIDv7.
	IDs runid.Generator
	// Now allows overriding the run start clock (for testing).
	Now func() time.Time
}

// SuiteReport holds the result of a single suite execution.
type SuiteReport struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Passed int      `json:"passed"`
	Failed int      `json:"failed"`
	Total  int      `json:"total"`
	Final  int64    `json:"final"`
	Golden string   `json:"golden,omitempty"` // "matched", "updated" or "mismatch"
	RunID  string   `json:"run_id,omitempty"`
	Errors []string `json:"errors,omitempty"`
	Drift  []string `json:"drift,omitempty"`

	result *harness.RunResult
}

// TestResult holds the overall test result.
type TestResult struct {
	Suites []SuiteReport `json:"suites"`
	Passed int           `json:"passed"`
	Failed int           `json:"failed"`
	Total  int           `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "test <path>...",
		Short: "Run operator suites",
		Long: `Run operator conformance suites against an evaluator.

Each path is a suite file (.yaml, .yml or .cue) or a directory that is
searched for them. Cases run in order with the accumulator x threaded
through; independent suites run in parallel. When a golden snapshot exists
under golden/<suite>.golden next to the suite file it must match.

The native evaluator computes results in Go with fixed-width wraparound.
The command evaluator runs --eval-cmd once per operator application; the
command line is a Go template over .Op, .Symbol, .Operands and .Expr and
the program must print the integer result.

Exit codes:
  0 - All suites passed
  1 - One or more suites failed
  2 - Command error (invalid paths, malformed suites, etc.)

Examples:
  opcheck test ./suites
  opcheck test ./suites --filter "rel*" --width 64
  opcheck test ./suites --evaluator command --eval-cmd './calc {{.Op}} {{range .Operands}}{{.}} {{end}}'
  opcheck test ./suites --db history.db --metrics-file opcheck.prom
  opcheck test ./suites --update
  opcheck test ./suites --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.applyConfig(cmd); err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter suites by glob pattern on the suite name")
	cmd.Flags().StringVar(&opts.Evaluator, "evaluator", defaults.Evaluator, "evaluator (native|command)")
	cmd.Flags().StringVar(&opts.EvalCmd, "eval-cmd", "", "command line template for the command evaluator")
	cmd.Flags().IntVar(&opts.Width, "width", 0, "integer width in bits for the native evaluator (8|16|32|64; default: per suite)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", defaults.Timeout, "timeout for one command evaluation")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 0, "maximum suites run at once (0 = unbounded)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record runs in this SQLite database and report drift")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")

	return cmd
}

// applyConfig fills flags the user did not set from the --config file.
func (o *TestOptions) applyConfig(cmd *cobra.Command) error {
	cfg, err := o.LoadConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if !flags.Changed("evaluator") {
		o.Evaluator = cfg.Evaluator
	}
	if !flags.Changed("eval-cmd") {
		o.EvalCmd = cfg.EvalCmd
	}
	if !flags.Changed("width") {
		o.Width = cfg.Width
	}
	if !flags.Changed("timeout") {
		o.Timeout = cfg.Timeout
	}
	if !flags.Changed("parallel") {
		o.Parallel = cfg.Parallel
	}
	if !flags.Changed("filter") {
		o.Filter = cfg.Filter
	}
	if !flags.Changed("db") {
		o.Database = cfg.DB
	}
	if !flags.Changed("metrics-file") {
		o.MetricsFile = cfg.MetricsFile
	}

	resolved := config.Config{
		Evaluator: o.Evaluator,
		EvalCmd:   o.EvalCmd,
		Width:     o.Width,
		Timeout:   o.Timeout,
		Parallel:  o.Parallel,
	}
	return resolved.Validate()
}

// evaluatorFor builds the evaluator selection and a label recorded with
// each run. Runs are compared for drift only under the same label.
func (o *TestOptions) evaluatorFor(log *slog.Logger) (harness.EvaluatorFor, func(*harness.Suite) string, error) {
	switch o.Evaluator {
	case config.EvaluatorCommand:
		ev, err := eval.NewCommand(o.EvalCmd, eval.WithTimeout(o.Timeout), eval.WithLogger(log))
		if err != nil {
			return nil, nil, err
		}
		label := "command:" + o.EvalCmd
		return harness.Static(ev), func(*harness.Suite) string { return label }, nil
	default:
		width, err := eval.ParseWidth(o.Width)
		if err != nil {
			return nil, nil, err
		}
		pick := func(s *harness.Suite) eval.Width {
			if o.Width != 0 {
				return width
			}
			return s.Width()
		}
		evFor := func(s *harness.Suite) eval.Evaluator { return eval.NewNative(pick(s)) }
		label := func(s *harness.Suite) string { return eval.NewNative(pick(s)).Name() }
		return evFor, label, nil
	}
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	w := cmd.OutOrStdout()
	log := opts.Logger(cmd.ErrOrStderr())

	ctx := commandContext(cmd)

	loaded, errs := LoadSuites(paths, opts.Filter, LoadModeCollectAll)
	if len(errs) > 0 {
		return reportLoadErrors(opts, w, errs)
	}
	if len(loaded) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, TestResult{Suites: []SuiteReport{}})
		}
		fmt.Fprintln(w, "No suites found.")
		return nil
	}
	log.Debug("suites loaded", "count", len(loaded))

	evFor, label, err := opts.evaluatorFor(log)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid evaluator", err)
	}

	runOpts := []harness.RunOption{
		harness.WithLogger(log),
		harness.WithParallelism(opts.Parallel),
	}
	var rec *metrics.Recorder
	if opts.MetricsFile != "" {
		rec = metrics.New()
		runOpts = append(runOpts, harness.WithObserver(rec))
	}

	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	startedAt := now()

	suites := make([]*harness.Suite, len(loaded))
	for i, l := range loaded {
		suites[i] = l.Suite
	}
	results, err := harness.RunAll(ctx, suites, evFor, runOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "test run interrupted", err)
	}

	ids := opts.IDs
	if ids == nil {
		ids = runid.UUIDv7{}
	}

	result := TestResult{
		Suites: make([]SuiteReport, 0, len(loaded)),
		Total:  len(loaded),
	}
	for i, l := range loaded {
		report := newSuiteReport(l, results[i])

		if err := checkGolden(opts, l, &report); err != nil {
			return WrapExitError(ExitCommandError, "golden snapshot", err)
		}
		if st != nil {
			if err := recordRun(ctx, st, ids.Generate(), l.Suite, label(l.Suite), startedAt, &report); err != nil {
				return WrapExitError(ExitCommandError, "failed to record run", err)
			}
		}

		if report.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		if opts.Format != "json" {
			writeSuiteText(w, opts.Verbose, report)
		}
		result.Suites = append(result.Suites, report)
	}

	if rec != nil {
		if err := rec.WriteTextfile(opts.MetricsFile); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

func newSuiteReport(l LoadedSuite, r *harness.RunResult) SuiteReport {
	report := SuiteReport{
		Name:   r.Suite,
		File:   l.Path,
		Pass:   r.Pass,
		Passed: r.Passed,
		Failed: r.Failed(),
		Total:  r.Total(),
		Final:  r.Final,
		result: r,
	}
	for _, o := range r.Outcomes {
		if !o.Passed() {
			report.Errors = append(report.Errors, outcomeLine(o))
		}
	}
	report.Errors = append(report.Errors, r.Errors...)
	return report
}

func outcomeLine(o harness.Outcome) string {
	if o.Status == harness.StatusError {
		return fmt.Sprintf("[%d] x = %s with x = %d: error: %s", o.Index, o.Expr, o.Input, o.Err)
	}
	return fmt.Sprintf("[%d] x = %s with x = %d: got %d, expected %d", o.Index, o.Expr, o.Input, o.Actual, o.Expected)
}

// checkGolden updates or compares the snapshot of a suite. A mismatch fails
// the suite; I/O problems are returned.
func checkGolden(opts *TestOptions, l LoadedSuite, report *SuiteReport) error {
	dir := l.GoldenDir()
	if opts.Update {
		if err := harness.WriteGolden(dir, report.result); err != nil {
			return err
		}
		report.Golden = "updated"
		return nil
	}

	found, err := harness.CheckGolden(dir, report.result)
	switch {
	case errors.Is(err, harness.ErrGoldenMismatch):
		report.Golden = "mismatch"
		report.Pass = false
		report.Errors = append(report.Errors, "result does not match golden file (run with --update to regenerate)")
		return nil
	case err != nil:
		return err
	case found:
		report.Golden = "matched"
	}
	return nil
}

// recordRun stores the run and reports drift against the previous run of
// the same suite content under the same evaluator.
func recordRun(ctx context.Context, st *store.Store, id string, s *harness.Suite, evaluator string, startedAt time.Time, report *SuiteReport) error {
	run := store.NewRun(id, s, evaluator, startedAt, report.result)

	prev, err := st.LastRun(ctx, run.SuiteHash, evaluator)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return err
	default:
		hash, err := store.ResultHash(report.result)
		if err != nil {
			return err
		}
		if hash != prev.ResultHash {
			before, err := st.ReadRun(ctx, prev.ID)
			if err != nil {
				return err
			}
			for _, c := range store.Drift(before.Result, report.result) {
				report.Drift = append(report.Drift, c.String())
			}
			if len(report.Drift) == 0 {
				report.Drift = []string{fmt.Sprintf("result differs from run %d", prev.Seq)}
			}
		}
	}

	if _, _, err := st.WriteRun(ctx, run); err != nil {
		return err
	}
	report.RunID = id
	return nil
}

func writeSuiteText(w io.Writer, verbose bool, report SuiteReport) {
	mark := "✓"
	if !report.Pass {
		mark = "✗"
	}
	suffix := ""
	if report.Golden == "updated" {
		suffix = " (golden updated)"
	}
	fmt.Fprintf(w, "%s %s (%d/%d cases, final x = %d)%s\n", mark, report.Name, report.Passed, report.Total, report.Final, suffix)

	if verbose && report.result != nil {
		for _, f := range report.result.Failures() {
			fmt.Fprintf(w, "%s\n", f)
		}
		for _, e := range report.result.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	} else {
		for _, e := range report.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	if len(report.Drift) > 0 {
		fmt.Fprintln(w, "  drift since last recorded run:")
		for _, d := range report.Drift {
			fmt.Fprintf(w, "    %s\n", d)
		}
	}
}

// reportLoadErrors prints load errors and returns a command error.
func reportLoadErrors(opts *TestOptions, w io.Writer, errs []error) error {
	if opts.Format == "json" {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		f := &OutputFormatter{Format: "json", Writer: w}
		if err := f.Error(loadErrorCode(errs[0]), fmt.Sprintf("%d suite file error(s)", len(errs)), msgs); err != nil {
			return err
		}
	} else {
		for _, err := range errs {
			fmt.Fprintf(w, "✗ %v\n", err)
		}
	}
	return WrapExitError(ExitCommandError, "failed to load suites", errs[0])
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	status := "ok"
	if result.Failed > 0 {
		status = "error"
	}

	response := CLIResponse{
		Status: status,
		Data:   result,
	}

	if result.Failed > 0 {
		response.Error = &CLIError{
			Code:    ErrCodeTestFailed,
			Message: fmt.Sprintf("%d suite(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d suite(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test result as text.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d suite(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All suites passed")
	return nil
}
