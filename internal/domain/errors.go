package domain

import (
	"errors"
	"fmt"
)

// ExitCoder is implemented by errors that map to a specific process exit status.
type ExitCoder interface {
	ExitCode() int
}

// UsageError reports bad or missing arguments.
type UsageError struct {
	Msg string
	Err error
}

func (e *UsageError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *UsageError) Unwrap() error { return e.Err }

func (e *UsageError) ExitCode() int { return ExitUsage }

// InferenceUnavailableError reports that the local inference server could not produce a reply.
type InferenceUnavailableError struct {
	Model string
	Err   error
	// Hint is appended to the message, e.g. how to pull a missing model.
	Hint string
}

func (e *InferenceUnavailableError) Error() string {
	msg := fmt.Sprintf("inference with model %s failed", e.Model)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *InferenceUnavailableError) Unwrap() error { return e.Err }

func (e *InferenceUnavailableError) ExitCode() int { return ExitInferenceUnavailable }

// StageError records a failed pass-through stage. It never aborts the run.
type StageError struct {
	Stage StageName
	Err   error
	// Stderr holds whatever the process wrote to its error stream, trimmed.
	Stderr string
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *StageError) Unwrap() error { return e.Err }

// LogWriteWarning reports a failed log append. It is printed, never returned as fatal.
type LogWriteWarning struct {
	Path string
	Err  error
}

func (e *LogWriteWarning) Error() string {
	return fmt.Sprintf("could not write log %s: %v", e.Path, e.Err)
}

func (e *LogWriteWarning) Unwrap() error { return e.Err }

// ExecutionFailure carries the non-zero exit status of an executed reply.
type ExecutionFailure struct {
	Status int
}

func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("executed command exited with status %d", e.Status)
}

func (e *ExecutionFailure) ExitCode() int {
	if e.Status <= 0 {
		return ExitInternal
	}
	return e.Status
}

// ExecutionBlockedError is returned when the guardrail refuses to run a reply.
type ExecutionBlockedError struct {
	Command string
	Reasons []string
}

func (e *ExecutionBlockedError) Error() string {
	return fmt.Sprintf("refusing to execute %q: %v", e.Command, e.Reasons)
}

func (e *ExecutionBlockedError) ExitCode() int { return ExitExecutionBlocked }

// ExitCodeFor maps an error to the process exit status.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var coder ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return ExitInternal
}
