// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError signals a non-zero exit code without printing an extra
// error message. When a command returns an ExitError, main exits with
// the specified code without printing the error string — the command
// is expected to have already written its own output.
//
// This is the return for commands where a non-zero exit is a reported
// outcome rather than an unexpected error: a publish that printed its
// per-key failures, or a clean whose deletion pass left keys behind.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. main checks for this interface on
// returned errors to pick the process exit status.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// UsageError marks an error as caused by the invocation rather than
// the operation: an unknown command or flag, contradictory expiration
// flags, a config file that does not validate. main prints it and
// exits with code 2, distinguishing "fix the command line" from
// "the operation failed" (code 1).
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// ExitCode returns 2, the usage exit code.
func (e *UsageError) ExitCode() int {
	return 2
}

// Usagef formats a usage error.
func Usagef(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// Usage wraps err as a usage error, preserving the error chain for
// errors.Is and errors.As. Returns nil for a nil err.
func Usage(err error) error {
	if err == nil {
		return nil
	}
	return &UsageError{Err: err}
}
