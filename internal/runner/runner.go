// Package runner executes external test commands and captures their
// output.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds a command that sets no timeout of its own.
const DefaultTimeout = 10 * time.Minute

// Command is one process invocation. Args are passed as-is, never through
// a shell.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Env     map[string]string // added to the inherited environment
	Timeout time.Duration
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result is what a finished command left behind.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Err      error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// TimeoutError reports a command killed for running too long.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %q timed out after %s", e.Command, e.Timeout)
}

// Run executes cmd and waits for it. Output is captured even when the
// command fails; the returned Result is non-nil whenever the process
// started. Cancelling ctx kills the process.
func Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Name == "" {
		return nil, errors.New("runner: empty command")
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(cmdCtx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.WaitDelay = 5 * time.Second

	// Set environment: inherit current + add custom
	c.Env = os.Environ()
	for k, v := range cmd.Env {
		c.Env = append(c.Env, fmt.Sprintf("%s=%s", k, v))
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if c.ProcessState != nil {
		res.ExitCode = c.ProcessState.ExitCode()
	}

	switch {
	case err == nil:
		return res, nil
	case errors.Is(cmdCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return res, &TimeoutError{Command: cmd.String(), Timeout: timeout}
	case ctx.Err() != nil:
		return res, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, &ExitError{Command: cmd.String(), ExitCode: exitErr.ExitCode(), Err: err}
	}
	// The process never started.
	return nil, fmt.Errorf("run %q: %w", cmd.String(), err)
}

// Expand substitutes {name} placeholders in args with vars.
func Expand(args []string, vars map[string]string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		for k, v := range vars {
			a = strings.ReplaceAll(a, "{"+k+"}", v)
		}
		out[i] = a
	}
	return out
}

// Group runs at most one instance of a command per key at a time.
// Concurrent callers with the same key wait for and share that run.
type Group struct {
	// OnDone, if set, is called once for every command the group actually
	// ran, before its result is handed to the waiting callers.
	OnDone func(key string, cmd Command, res *Result, err error)

	sf singleflight.Group
}

// Do runs cmd unless a run with the same key is in flight, in which case
// it waits for that run's result. shared reports whether the result was
// given to more than one caller.
func (g *Group) Do(ctx context.Context, key string, cmd Command) (res *Result, shared bool, err error) {
	v, err, shared := g.sf.Do(key, func() (interface{}, error) {
		res, err := Run(ctx, cmd)
		if g.OnDone != nil {
			g.OnDone(key, cmd, res, err)
		}
		return res, err
	})
	if r, ok := v.(*Result); ok {
		res = r
	}
	return res, shared, err
}
