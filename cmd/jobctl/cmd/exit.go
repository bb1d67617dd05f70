package cmd

import (
	"errors"
	"fmt"
)

// ExitError carries a process exit code. Err is nil when the command ran to
// completion and only the verdict is non-zero.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code != 0 {
		return exitErr.Code
	}
	return 1
}

// errNotAllSucceeded is the verdict of a launch in which at least one item
// did not succeed.
var errNotAllSucceeded = &ExitError{Code: 1}
