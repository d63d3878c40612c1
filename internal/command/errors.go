package command

import (
	"fmt"
)

// Outcome is the result of a single process attempt.
type Outcome struct {
	Invocation Invocation
	ExitCode   int
	Stdout     string
	Stderr     string
}

// Error is returned once the retry budget is exhausted, or when the
// process could not be started at all (ExitCode -1, Err set). The streams
// are those of the last attempt.
type Error struct {
	Invocation Invocation
	ExitCode   int
	Stdout     string
	Stderr     string
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command '%s' could not be started: %v", e.Invocation, e.Err)
	}
	return fmt.Sprintf("command '%s' exited with return code '%d' after %d attempt(s), stderr: %s",
		e.Invocation, e.ExitCode, e.Attempts, e.Stderr)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newFailure(last Outcome, attempts int) *Error {
	return &Error{
		Invocation: last.Invocation,
		ExitCode:   last.ExitCode,
		Stdout:     last.Stdout,
		Stderr:     last.Stderr,
		Attempts:   attempts,
	}
}
