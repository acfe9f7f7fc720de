package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/opcheck/internal/fixture"
	"github.com/roach88/opcheck/internal/harness"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Output string
	Name   string
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <fixture.c>",
		Short: "Convert a C operator fixture to a YAML suite",
		Long: `Convert a C operator fixture to a YAML suite.

Each "x = <expr>; // <n>" line becomes a case expecting n, the first plain
"x = <literal>;" sets the initial value, and "return x;" expects a final
value of 0.

Example:
  opcheck import test/0002-operators.c -o suites/operators.yaml
  opcheck import fixture.c --name arith`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "suite name (default: fixture file name)")

	return cmd
}

func runImport(opts *ImportOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("fixture not found: %s", path))
	}

	def, err := fixture.ImportFile(path, opts.Name)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeParseFailed, "import failed", err, nil)
	}
	f.VerboseLog("imported %d cases from %s", len(def.Cases), path)

	if opts.Output == "" {
		if f.JSON() {
			return f.Success(def)
		}
		return harness.EncodeSuite(cmd.OutOrStdout(), def)
	}

	var buf bytes.Buffer
	if err := harness.EncodeSuite(&buf, def); err != nil {
		return WrapExitError(ExitCommandError, "encode suite", err)
	}
	if err := os.WriteFile(opts.Output, buf.Bytes(), 0o644); err != nil {
		return f.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write suite", err, nil)
	}

	if f.JSON() {
		return f.Success(map[string]any{"output": opts.Output, "suite": def.Name, "cases": len(def.Cases)})
	}
	return f.Success(fmt.Sprintf("✓ Imported %d cases into %s (%s)", len(def.Cases), def.Name, opts.Output))
}
