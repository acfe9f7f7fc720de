package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/opcheck/internal/eval"
	"github.com/roach88/opcheck/internal/expr"
	"github.com/roach88/opcheck/internal/harness"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	X     int64
	Width int
}

// EvalResult is the JSON payload of the eval command.
type EvalResult struct {
	Expr  string `json:"expr"`
	X     int64  `json:"x"`
	Width int    `json:"width"`
	Value int64  `json:"value"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <expr>",
		Short: "Evaluate an expression with the native evaluator",
		Long: `Evaluate a C expression over the accumulator x with the native evaluator.

Example:
  opcheck eval 'x + !!x' --x -2
  opcheck eval '127 + 1' --width 8`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.X, "x", 0, "value of the accumulator x")
	cmd.Flags().IntVar(&opts.Width, "width", int(eval.DefaultWidth), "integer width in bits (8|16|32|64)")

	return cmd
}

func runEval(opts *EvalOptions, src string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	width, err := eval.ParseWidth(opts.Width)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid width", err)
	}

	n, err := expr.Parse(src)
	if err != nil {
		var syn *expr.SyntaxError
		var details any
		if errors.As(err, &syn) {
			details = map[string]any{"expr": src, "column": syn.Col}
		}
		return f.Fail(ExitCommandError, ErrCodeParseFailed, "invalid expression", err, details)
	}

	ctx := commandContext(cmd)
	f.VerboseLog("evaluating %s with x = %d at %s", n, opts.X, width)

	v, err := harness.Evaluate(ctx, eval.NewNative(width), n, opts.X)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeEvalFailed, "evaluation failed", err, nil)
	}

	if f.JSON() {
		return f.Success(EvalResult{Expr: n.String(), X: opts.X, Width: int(width), Value: v})
	}
	return f.Success(fmt.Sprintf("%s = %d", n, v))
}
