// Package runner abstracts execution of the external tools the pipeline
// drives: zfs, gtar, crle, and the manifest generator. The pipeline never
// inspects a raw exit code directly; callers receive a structured Result and
// decide how a non-zero exit maps onto their own error taxonomy. Tests
// substitute a Func for the real ExecRunner.
package runner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// Command describes one external tool invocation.
type Command struct {
	Path   string    // Executable path.
	Args   []string  // Arguments, not including the executable itself.
	Stdin  io.Reader // Optional standard input.
	Stdout io.Writer // Optional standard output sink; discarded when nil.
}

// Result of a completed command. A non-zero exit code is not an error at this
// layer; the caller decides.
type Result struct {
	ExitCode int
	Stderr   string
}

// Ok reports whether the command exited zero.
func (r *Result) Ok() bool {
	return r.ExitCode == 0
}

// Runner runs external commands synchronously.
type Runner interface {
	Run(cmd *Command) (*Result, error)
}

// Func adapts a function to the Runner interface; used by tests to fake
// external tools.
type Func func(cmd *Command) (*Result, error)

// Run implements Runner
func (f Func) Run(cmd *Command) (*Result, error) {
	return f(cmd)
}

// ExecRunner runs commands on the host with os/exec.
type ExecRunner struct{}

// Run executes the command and waits for it to finish. It returns an error
// only when the command could not be started; a command that ran and exited
// non-zero yields a Result with the exit code and captured stderr.
func (ExecRunner) Run(cmd *Command) (*Result, error) {
	var stderr bytes.Buffer

	execCmd := exec.Command(cmd.Path, cmd.Args...)
	execCmd.Stdin = cmd.Stdin
	execCmd.Stdout = cmd.Stdout
	execCmd.Stderr = &stderr

	if err := execCmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &Result{
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
			}, nil
		}
		return nil, fmt.Errorf("failed to run %s: %v", cmd.Path, err)
	}

	return &Result{ExitCode: 0, Stderr: stderr.String()}, nil
}
