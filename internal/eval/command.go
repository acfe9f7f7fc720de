package eval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/roach88/opcheck/internal/expr"
)

// DefaultCommandTimeout bounds a single external evaluation.
const DefaultCommandTimeout = 5 * time.Second

// CommandData is the template context for a command line.
type CommandData struct {
	Op       string  // operator name, e.g. "add"
	Symbol   string  // C spelling, e.g. "+"
	Operands []int64 // evaluated operands
	Expr     string  // the application in C notation, e.g. "2 + 3"
}

// CommandError is returned when the external program fails or prints
// something other than an integer.
type CommandError struct {
	Command string
	Stderr  string
	Err     error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q: %v", e.Command, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// Command delegates each evaluation to an external program, the system
// under test. The command line is a text/template rendered with
// CommandData, split with POSIX shell quoting rules and executed without a
// shell. The program must print the result as a base-10 integer.
//
// Example:
//
//	sh -c 'echo $(( {{.Expr}} ))'
type Command struct {
	source  string
	tmpl    *template.Template
	timeout time.Duration
	logger  *slog.Logger
}

// CommandOption configures a Command.
type CommandOption func(*Command)

// WithTimeout sets the per-evaluation timeout.
func WithTimeout(d time.Duration) CommandOption {
	return func(c *Command) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) CommandOption {
	return func(c *Command) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCommand parses the command line template.
func NewCommand(cmdline string, opts ...CommandOption) (*Command, error) {
	if strings.TrimSpace(cmdline) == "" {
		return nil, fmt.Errorf("empty evaluator command")
	}
	tmpl, err := template.New("evalcmd").Option("missingkey=error").Parse(cmdline)
	if err != nil {
		return nil, fmt.Errorf("parse evaluator command: %w", err)
	}
	c := &Command{
		source:  cmdline,
		tmpl:    tmpl,
		timeout: DefaultCommandTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name identifies the evaluator in reports and run history.
func (c *Command) Name() string { return "command" }

// Render returns the argv for one evaluation.
func (c *Command) Render(op expr.Op, operands []int64) ([]string, error) {
	args := make([]expr.Node, len(operands))
	for i, v := range operands {
		args[i] = expr.Int(v)
	}
	data := CommandData{
		Op:       op.String(),
		Symbol:   op.Symbol(),
		Operands: operands,
		Expr:     expr.Call(op, args...).String(),
	}

	var b bytes.Buffer
	if err := c.tmpl.Execute(&b, data); err != nil {
		return nil, fmt.Errorf("render evaluator command: %w", err)
	}
	argv, err := shellquote.Split(b.String())
	if err != nil {
		return nil, fmt.Errorf("split evaluator command %q: %w", b.String(), err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("evaluator command rendered empty for %s", op)
	}
	return argv, nil
}

// Evaluate implements Evaluator.
func (c *Command) Evaluate(ctx context.Context, op expr.Op, operands []int64) (int64, error) {
	if err := checkArity(op, operands); err != nil {
		return 0, err
	}
	argv, err := c.Render(op, operands)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children that inherit the pipes must not hold Run open past the kill.
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	c.logger.Debug("evaluator command finished",
		"op", op.String(),
		"argv", argv,
		"duration", time.Since(start),
		"error", runErr,
	)

	line := shellquote.Join(argv...)
	if runErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			runErr = fmt.Errorf("timed out after %s", c.timeout)
		}
		return 0, &CommandError{Command: line, Stderr: strings.TrimSpace(stderr.String()), Err: runErr}
	}

	out := strings.TrimSpace(stdout.String())
	v, err := strconv.ParseInt(out, 10, 64)
	if err != nil {
		return 0, &CommandError{
			Command: line,
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     fmt.Errorf("output %q is not an integer", out),
		}
	}
	return v, nil
}
