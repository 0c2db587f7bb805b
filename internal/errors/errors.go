// Package errors provides centralized error definitions and error handling
// utilities for the convoy codebase. It defines the coordinator's failure
// taxonomy as sentinel errors, domain error types with context builders,
// and classification helpers used to map failures to exit behavior.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Coordinator failure taxonomy. Every terminal failure of a pipeline run
// wraps exactly one of these.
var (
	// ErrUsage indicates a bad invocation (e.g. no work items given).
	// Fatal before anything is started; no teardown required.
	ErrUsage = New("usage error")

	// ErrInjectionFailed indicates the work list could not be written to
	// the shared volume. Fatal to the run; never retried.
	ErrInjectionFailed = New("work injection failed")

	// ErrTimedOut indicates the terminal sentinel did not appear within
	// the configured deadline.
	ErrTimedOut = New("timed out waiting for completion")

	// ErrCancelled indicates an external abort (operator interrupt) stopped
	// the run. Distinct from ErrTimedOut.
	ErrCancelled = New("run cancelled")

	// ErrExtractionIncomplete indicates a required result artifact was
	// missing even though the terminal sentinel was present.
	ErrExtractionIncomplete = New("extraction incomplete: required artifact missing")

	// ErrStageStart indicates a stage process could not be started.
	ErrStageStart = New("stage failed to start")

	// ErrInvalidInput indicates input validation failed.
	ErrInvalidInput = New("invalid input")
)

// Volume-related sentinel errors
var (
	// ErrVolumeNotReset indicates sentinels from a previous run were found
	// on the volume before injection.
	ErrVolumeNotReset = New("shared volume holds stale sentinels")

	// ErrDestinationExists indicates the extraction destination already
	// holds a prior result and overwrite was not requested.
	ErrDestinationExists = New("destination already contains extracted results")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message string
	cause   error
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error {
	return e.cause
}

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// PipelineError represents a failure of the pipeline run as a whole.
//
// Example:
//
//	err := errors.NewPipelineError("wait aborted", errors.ErrTimedOut)
//	err = err.WithRunID("a1b2").WithState("Running")
type PipelineError struct {
	baseError
	RunID string
	State string
}

// NewPipelineError creates a new PipelineError.
func NewPipelineError(message string, cause error) *PipelineError {
	return &PipelineError{
		baseError: baseError{message: message, cause: cause},
	}
}

// WithRunID adds a run ID to the error context.
func (e *PipelineError) WithRunID(id string) *PipelineError {
	e.RunID = id
	return e
}

// WithState adds the controller state at time of failure.
func (e *PipelineError) WithState(state string) *PipelineError {
	e.State = state
	return e
}

// Error returns the formatted error message.
func (e *PipelineError) Error() string {
	var parts []string
	if e.RunID != "" {
		parts = append(parts, fmt.Sprintf("run=%s", e.RunID))
	}
	if e.State != "" {
		parts = append(parts, fmt.Sprintf("state=%s", e.State))
	}

	prefix := "pipeline error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("pipeline error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *PipelineError) Is(target error) bool {
	if _, ok := target.(*PipelineError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// StageError represents a failure tied to a single stage process.
//
// Example:
//
//	err := errors.NewStageError("spawn failed", errors.ErrStageStart).WithStage("fetch")
type StageError struct {
	baseError
	Stage string
}

// NewStageError creates a new StageError.
func NewStageError(message string, cause error) *StageError {
	return &StageError{
		baseError: baseError{message: message, cause: cause},
	}
}

// WithStage adds a stage name to the error context.
func (e *StageError) WithStage(stage string) *StageError {
	e.Stage = stage
	return e
}

// Error returns the formatted error message.
func (e *StageError) Error() string {
	prefix := "stage error"
	if e.Stage != "" {
		prefix = fmt.Sprintf("stage error [stage=%s]", e.Stage)
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *StageError) Is(target error) bool {
	if _, ok := target.(*StageError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ArtifactError represents a failure reading or copying a volume artifact.
type ArtifactError struct {
	baseError
	Path     string
	Required bool
}

// NewArtifactError creates a new ArtifactError.
func NewArtifactError(message string, cause error) *ArtifactError {
	return &ArtifactError{
		baseError: baseError{message: message, cause: cause},
	}
}

// WithPath adds the artifact's volume path to the error context.
func (e *ArtifactError) WithPath(path string) *ArtifactError {
	e.Path = path
	return e
}

// WithRequired marks whether the artifact was required for success.
func (e *ArtifactError) WithRequired(required bool) *ArtifactError {
	e.Required = required
	return e
}

// Error returns the formatted error message.
func (e *ArtifactError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	if e.Required {
		parts = append(parts, "required=true")
	}

	prefix := "artifact error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("artifact error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ArtifactError) Is(target error) bool {
	if _, ok := target.(*ArtifactError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError carries the deadline that was exhausted while waiting.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for terminal sentinel", 300*time.Second)
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError wrapping ErrTimedOut.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{message: operation, cause: ErrTimedOut},
		Operation: operation,
		Duration:  duration,
	}
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout error: %s (deadline: %s)", e.Operation, e.Duration)
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimedOut) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsUsage reports whether err is a usage error, which exits before any
// pipeline resources exist and so skips teardown and diagnostics.
func IsUsage(err error) bool {
	return Is(err, ErrUsage)
}

// IsCancellation reports whether err represents an operator abort rather
// than a pipeline fault.
func IsCancellation(err error) bool {
	return Is(err, ErrCancelled)
}

// ExitCode maps an error to the process exit code. All failures exit 1;
// the distinction between TimedOut, Failed and usage errors is carried on
// stderr, not in the code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// NewValidationErrorf returns an input-validation error wrapping
// ErrInvalidInput.
func NewValidationErrorf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidInput)
}

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to copy report")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
