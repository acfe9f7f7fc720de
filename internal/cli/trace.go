package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/opcheck/internal/harness"
	"github.com/roach88/opcheck/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Status   string // optional - filter to one outcome status
}

// TraceStep is one case of a recorded run.
type TraceStep struct {
	Index    int    `json:"index"`
	Name     string `json:"name,omitempty"`
	Expr     string `json:"expr"`
	Input    int64  `json:"input"`
	Status   string `json:"status"`
	Expected int64  `json:"expected"`
	Actual   int64  `json:"actual"`
	Output   int64  `json:"output"` // accumulator after the case
	Error    string `json:"error,omitempty"`
}

// TraceStats holds summary statistics for the run.
type TraceStats struct {
	Total         int    `json:"total"`
	Passed        int    `json:"passed"`
	Mismatched    int    `json:"mismatched"`
	Errored       int    `json:"errored"`
	Initial       int64  `json:"initial"`
	Final         int64  `json:"final"`
	ExpectedFinal *int64 `json:"expected_final,omitempty"`
	Pass          bool   `json:"pass"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID     string      `json:"run_id"`
	Seq       int64       `json:"seq"`
	Suite     string      `json:"suite"`
	Evaluator string      `json:"evaluator"`
	Timeline  []TraceStep `json:"timeline"`
	Errors    []string    `json:"errors,omitempty"`
	Stats     TraceStats  `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the accumulator timeline of a recorded run",
		Long: `Show how the accumulator x moved through a recorded run.

Each step lists the value of x going in, the expression, the expected and
actual values and the value of x carried to the next case. Run ids are
listed by the history command.

Examples:
  opcheck trace --db history.db --run 0190f3c2-...
  opcheck trace --db history.db --run 0190f3c2-... --status mismatch`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to trace (required)")
	_ = cmd.MarkFlagRequired("run")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only show steps with this status (pass|mismatch|error)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	switch harness.Status(opts.Status) {
	case "", harness.StatusPass, harness.StatusMismatch, harness.StatusError:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid status %q", opts.Status))
	}

	ctx := commandContext(cmd)

	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}
	st, err := store.Open(opts.Database, store.ReadOnly())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	run, err := st.ReadRun(ctx, opts.RunID)
	if errors.Is(err, store.ErrNotFound) {
		return newFormatter(opts.RootOptions, cmd).Fail(ExitCommandError, ErrCodeNotFound, "run not found",
			fmt.Errorf("no run with id %s: %w", opts.RunID, err), nil)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	r := run.Result
	result := TraceResult{
		RunID:     run.ID,
		Seq:       run.Seq,
		Suite:     r.Suite,
		Evaluator: run.Evaluator,
		Timeline:  buildTimeline(r, harness.Status(opts.Status)),
		Errors:    r.Errors,
		Stats: TraceStats{
			Total:         r.Total(),
			Passed:        r.Passed,
			Mismatched:    r.Mismatched,
			Errored:       r.Errored,
			Initial:       r.Initial,
			Final:         r.Final,
			ExpectedFinal: r.ExpectedFinal,
			Pass:          r.Pass,
		},
	}

	// Output results
	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result)
}

// buildTimeline converts outcomes to trace steps. When statusFilter is set,
// only steps with that status are kept.
func buildTimeline(r *harness.RunResult, statusFilter harness.Status) []TraceStep {
	timeline := []TraceStep{}
	for _, o := range r.Outcomes {
		if statusFilter != "" && o.Status != statusFilter {
			continue
		}
		step := TraceStep{
			Index:    o.Index,
			Name:     o.Name,
			Expr:     o.Expr,
			Input:    o.Input,
			Status:   string(o.Status),
			Expected: o.Expected,
			Actual:   o.Actual,
			Output:   o.Actual,
			Error:    o.Err,
		}
		if o.Status == harness.StatusError {
			step.Output = o.Input
		}
		timeline = append(timeline, step)
	}
	return timeline
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as human-readable text.
func outputTraceText(cmd *cobra.Command, result TraceResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Run %d of %s (%s)\n", result.Seq, result.Suite, result.Evaluator)
	fmt.Fprintf(w, "ID: %s\n\n", result.RunID)

	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "No matching steps.")
	}
	for _, s := range result.Timeline {
		mark := "✓"
		if s.Status != string(harness.StatusPass) {
			mark = "✗"
		}
		line := fmt.Sprintf("%s [%d] x = %s  (%d -> %d)", mark, s.Index, s.Expr, s.Input, s.Output)
		switch harness.Status(s.Status) {
		case harness.StatusMismatch:
			line += fmt.Sprintf("  expected %d", s.Expected)
		case harness.StatusError:
			line += "  error: " + s.Error
		}
		if s.Name != "" {
			line += "  # " + s.Name
		}
		fmt.Fprintln(w, line)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(w, "✗ %s\n", e)
	}

	st := result.Stats
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stats: %d cases, %d passed, %d mismatched, %d errored, x %d -> %d\n",
		st.Total, st.Passed, st.Mismatched, st.Errored, st.Initial, st.Final)
	return nil
}
