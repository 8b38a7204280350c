package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Invocation is one subprocess call.
type Invocation struct {
	Args  []string
	Dir   string
	Stdin string
	// Stream, when set, also receives stdout as it is produced.
	Stream io.Writer
}

// Output is what a finished subprocess produced.
type Output struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes a command-line tool. A non-zero exit is reported through
// Output.ExitCode, not as an error; the error is for processes that could not
// be started or were killed by ctx.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Output, error)
}

// ExecRunner runs Binary with os/exec.
type ExecRunner struct {
	Binary string
	Env    map[string]string
}

// NewExecRunner creates a runner for binary.
func NewExecRunner(binary string) *ExecRunner {
	return &ExecRunner{Binary: binary}
}

// LookPath verifies the binary is available.
func (r *ExecRunner) LookPath() error {
	if _, err := exec.LookPath(r.Binary); err != nil {
		return fmt.Errorf("%s binary not found in PATH: %w", r.Binary, err)
	}
	return nil
}

func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (Output, error) {
	cmd := exec.CommandContext(ctx, r.Binary, inv.Args...)
	cmd.Dir = inv.Dir

	if len(r.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range r.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	if inv.Stdin != "" {
		cmd.Stdin = strings.NewReader(inv.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if inv.Stream != nil {
		cmd.Stdout = io.MultiWriter(&stdout, inv.Stream)
	}
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return out, nil
	case ctx.Err() != nil:
		out.ExitCode = -1
		return out, fmt.Errorf("%s %s interrupted: %w", r.Binary, strings.Join(inv.Args, " "), ctx.Err())
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	default:
		out.ExitCode = -1
		return out, fmt.Errorf("starting %s: %w", r.Binary, err)
	}
}

// CommandError is a subprocess that exited non-zero.
type CommandError struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	kind     error
}

func newCommandError(args []string, out Output) *CommandError {
	e := &CommandError{Args: args, ExitCode: out.ExitCode, Stdout: out.Stdout, Stderr: out.Stderr}
	e.kind = classify(out.Stderr + "\n" + out.Stdout)
	return e
}

func (e *CommandError) Error() string {
	diag := strings.TrimSpace(e.Stderr)
	if diag == "" {
		diag = strings.TrimSpace(e.Stdout)
	}
	return fmt.Sprintf("%s: exit status %d: %s", strings.Join(e.Args, " "), e.ExitCode, diag)
}

// Unwrap exposes ErrAlreadyExists / ErrNotFound when the output says so.
func (e *CommandError) Unwrap() error { return e.kind }
