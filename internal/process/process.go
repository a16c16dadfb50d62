// Package process runs the external backend tools.
package process

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/idelchi/foldenc/internal/logging"
)

// ErrNotFound is returned when the requested executable cannot be located.
var ErrNotFound = errors.New("executable not found")

// Command describes one invocation of an external tool.
type Command struct {
	// Name of the executable, resolved through PATH unless it contains a separator.
	Name string
	// Args passed to the executable.
	Args []string
	// Dir is the working directory, empty for the current one.
	Dir string
	// Secret, if set, is written to the process standard input after it started,
	// after which standard input is closed.
	Secret []byte
	// Redact lists argument indices replaced by "***" when the command is logged.
	Redact []int
}

// Output is what a finished process left behind.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Diagnostic returns stderr, falling back to stdout for tools that report errors there.
func (o Output) Diagnostic() string {
	if o.Stderr != "" {
		return o.Stderr
	}

	return o.Stdout
}

// ExitError is returned when a process ran but exited unsuccessfully.
type ExitError struct {
	Name   string
	Output Output
	Err    error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Name, e.Output.ExitCode)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Runner starts processes and waits for them.
type Runner struct {
	logger zerolog.Logger
}

// NewRunner creates a Runner logging under the given component name.
func NewRunner(component string) *Runner {
	return &Runner{logger: logging.GetLogger(component)}
}

// LookPath reports where name would be executed from.
func LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrNotFound, name, err)
	}

	return path, nil
}

// Run executes cmd and blocks until it exits.
//
// The process is never killed once started: callers that need liveness guarantees must
// not use Run. Standard output and error are drained while the process runs, so a chatty
// tool cannot deadlock on a full pipe. The process is always waited on before Run returns.
//
// A start failure is returned as is (wrapping ErrNotFound if the executable is missing),
// a non-zero exit as *ExitError.
func (r *Runner) Run(cmd Command) (Output, error) {
	path, err := LookPath(cmd.Name)
	if err != nil {
		return Output{}, err
	}

	logging.LogCommand(r.logger, cmd.Name, redact(cmd.Args, cmd.Redact))

	proc := exec.Command(path, cmd.Args...) //nolint:gosec // arguments come from the backend strategy
	proc.Dir = cmd.Dir

	var stdout, stderr bytes.Buffer

	proc.Stdout = &stdout
	proc.Stderr = &stderr

	var stdin io.WriteCloser

	if cmd.Secret != nil {
		stdin, err = proc.StdinPipe()
		if err != nil {
			return Output{}, fmt.Errorf("creating stdin pipe: %w", err)
		}
	}

	if err := proc.Start(); err != nil {
		return Output{}, fmt.Errorf("starting %s: %w", cmd.Name, err)
	}

	var writeErr error

	if stdin != nil {
		// The tool may exit before reading everything; Wait below still reaps it
		// and its diagnostic explains why.
		_, writeErr = stdin.Write(cmd.Secret)

		if err := stdin.Close(); err != nil && writeErr == nil {
			writeErr = err
		}
	}

	waitErr := proc.Wait()

	out := Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: proc.ProcessState.ExitCode(),
	}

	if waitErr != nil {
		r.logger.Debug().
			Str("command", cmd.Name).
			Int("exit_code", out.ExitCode).
			Str("stderr", out.Stderr).
			Msg("Command failed")

		return out, &ExitError{Name: cmd.Name, Output: out, Err: waitErr}
	}

	if writeErr != nil {
		return out, fmt.Errorf("writing to %s stdin: %w", cmd.Name, writeErr)
	}

	r.logger.Trace().
		Str("command", cmd.Name).
		Str("stdout", out.Stdout).
		Msg("Command succeeded")

	return out, nil
}

func redact(args []string, indices []int) []string {
	if len(indices) == 0 {
		return args
	}

	out := make([]string, len(args))
	copy(out, args)

	for _, i := range indices {
		if i >= 0 && i < len(out) {
			out[i] = "***"
		}
	}

	return out
}
