// Package shelltest provides a recording shell.Runner for tests.
package shelltest

import (
	"strings"
	"sync"

	"github.com/aluedeke/go-signhere/pkg/shell"
)

// Call is one recorded invocation
type Call struct {
	Name string
	Args []string
}

// String renders the call as a command line
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner records every call and answers with Handler, or a successful
// empty output when Handler is nil.
type Runner struct {
	Handler func(name string, args []string) shell.Output

	mu    sync.Mutex
	calls []Call
}

// Run implements shell.Runner
func (r *Runner) Run(name string, args ...string) shell.Output {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Name: name, Args: append([]string(nil), args...)})
	r.mu.Unlock()

	if r.Handler == nil {
		return shell.Output{}
	}
	return r.Handler(name, args)
}

// Calls returns the recorded invocations in order
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CommandLines returns the recorded invocations rendered as command lines
func (r *Runner) CommandLines() []string {
	var lines []string
	for _, c := range r.Calls() {
		lines = append(lines, c.String())
	}
	return lines
}

// Failure builds an unsuccessful output with the given stderr
func Failure(status int, stderr string) shell.Output {
	return shell.Output{Status: status, Stderr: []byte(stderr)}
}

// Success builds a successful output with the given stdout
func Success(stdout string) shell.Output {
	return shell.Output{Stdout: []byte(stdout)}
}
