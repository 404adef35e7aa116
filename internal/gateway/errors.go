package gateway

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput  = errors.New("empty input")
	ErrBlocked     = errors.New("blocked by denylist")
	ErrTimeout     = errors.New("command timed out")
	ErrNonZeroExit = errors.New("command exited with non-zero status")
	ErrDatabase    = errors.New("query failed")
)

// NonZeroExitError carries the exit code and captured standard error of a
// command that ran to completion but failed.
type NonZeroExitError struct {
	ExitCode int
	Stderr   string
}

func (e *NonZeroExitError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return fmt.Sprintf("exit status %d", e.ExitCode)
}

func (e *NonZeroExitError) Is(target error) bool {
	return target == ErrNonZeroExit
}

// DBError wraps a driver error raised while running a caller's query.
type DBError struct {
	Err error
}

func (e *DBError) Error() string {
	return e.Err.Error()
}

func (e *DBError) Unwrap() error {
	return e.Err
}

func (e *DBError) Is(target error) bool {
	return target == ErrDatabase
}
