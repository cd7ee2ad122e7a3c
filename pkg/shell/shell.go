// Package shell runs external command line tools and captures their output.
package shell

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Output is the captured result of a single process execution
type Output struct {
	Status int
	Stdout []byte
	Stderr []byte
}

// Success reports whether the process exited with status 0
func (o Output) Success() bool {
	return o.Status == 0
}

// StdoutString returns stdout decoded as text
func (o Output) StdoutString() string {
	return string(o.Stdout)
}

// StderrString returns stderr decoded as text
func (o Output) StderrString() string {
	return string(o.Stderr)
}

// Runner executes a command synchronously and returns its output.
// A process that cannot be started is reported as a non-zero status.
type Runner interface {
	Run(name string, args ...string) Output
}

// Local runs commands on the local machine
type Local struct {
	// Env replaces the process environment when non-nil
	Env []string
}

// Run executes name with args and waits for it to exit
func (l Local) Run(name string, args ...string) Output {
	cmd := exec.Command(name, args...)
	if l.Env != nil {
		cmd.Env = l.Env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return out
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.Status = exitErr.ExitCode()
		if out.Status == 0 {
			out.Status = 1
		}
		return out
	}

	// The process never started (missing binary, permissions, ...)
	out.Status = -1
	out.Stderr = append(out.Stderr, []byte(err.Error())...)
	return out
}

// Error reports a command that exited unsuccessfully
type Error struct {
	Command []string
	Output  Output
}

func (e *Error) Error() string {
	name := ""
	if len(e.Command) > 0 {
		name = e.Command[0]
	}
	return fmt.Sprintf("%s exited with status %d", name, e.Output.Status)
}

// CommandLine returns the command and its arguments joined by spaces
func (e *Error) CommandLine() string {
	return strings.Join(e.Command, " ")
}

// Check returns an *Error when out is not successful
func Check(out Output, name string, args ...string) error {
	if out.Success() {
		return nil
	}
	return &Error{
		Command: append([]string{name}, args...),
		Output:  out,
	}
}

// Exec runs the command and converts an unsuccessful exit into an *Error
func Exec(r Runner, name string, args ...string) (Output, error) {
	out := r.Run(name, args...)
	return out, Check(out, name, args...)
}
