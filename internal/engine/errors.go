package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while serving a call or a
// compile request.
//
// Runtime errors include:
//   - Unknown function: the call names no loaded function
//   - Arity mismatch: argument count differs from the parameter list
//   - Loop limit: a call ran more loop iterations than configured
//   - Compile failed: a tier-up request did not produce code
//   - Superseded: a background compile was overtaken by a newer request
//
// A failed compile is never returned from Call: the call is served by the
// baseline tier and the failure is recorded in the function's history.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Function names the affected function.
	Function string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownFunction indicates no function with that name is loaded.
	ErrCodeUnknownFunction RuntimeErrorCode = "UNKNOWN_FUNCTION"

	// ErrCodeArityMismatch indicates a call with the wrong number of arguments.
	ErrCodeArityMismatch RuntimeErrorCode = "ARITY_MISMATCH"

	// ErrCodeInvalidArgument indicates an argument value with no lattice type.
	ErrCodeInvalidArgument RuntimeErrorCode = "INVALID_ARGUMENT"

	// ErrCodeLoopLimit indicates a call exceeded the loop iteration budget.
	ErrCodeLoopLimit RuntimeErrorCode = "LOOP_LIMIT"

	// ErrCodeCompileFailed indicates a tier-up request produced no code.
	ErrCodeCompileFailed RuntimeErrorCode = "COMPILE_FAILED"

	// ErrCodeSuperseded indicates a background compile was abandoned.
	ErrCodeSuperseded RuntimeErrorCode = "SUPERSEDED"

	// ErrCodeNotPrepared indicates OptimizeOnNextCall without a prior
	// PrepareForOptimization under WithStrictDirectives.
	ErrCodeNotPrepared RuntimeErrorCode = "NOT_PREPARED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("%s: %s (function=%s)", e.Code, e.Message, e.Function)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsUnknownFunction returns true if the error is an unknown function error.
// Uses errors.As to handle wrapped errors.
func IsUnknownFunction(err error) bool { return hasCode(err, ErrCodeUnknownFunction) }

// IsLoopLimit returns true if the error is a loop limit error.
// Matches both RuntimeError with ErrCodeLoopLimit and LoopLimitError.
func IsLoopLimit(err error) bool {
	if hasCode(err, ErrCodeLoopLimit) {
		return true
	}
	var le *LoopLimitError
	return errors.As(err, &le)
}

// IsCompileFailed returns true if the error is a compile failure.
func IsCompileFailed(err error) bool { return hasCode(err, ErrCodeCompileFailed) }

// IsSuperseded returns true if the error reports an abandoned compile.
func IsSuperseded(err error) bool { return hasCode(err, ErrCodeSuperseded) }

// NewUnknownFunctionError creates a RuntimeError for an unknown function.
func NewUnknownFunctionError(name string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeUnknownFunction,
		Message:  "no function with this name is loaded",
		Function: name,
	}
}

// NewArityError creates a RuntimeError for a call with the wrong argument
// count.
func NewArityError(name string, got, want int) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeArityMismatch,
		Message:  fmt.Sprintf("called with %d arguments, want %d", got, want),
		Function: name,
		Details: map[string]string{
			"got":  fmt.Sprintf("%d", got),
			"want": fmt.Sprintf("%d", want),
		},
	}
}

// NewCompileError wraps the cause of a failed tier-up.
func NewCompileError(name string, version int64, cause error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeCompileFailed,
		Message:  cause.Error(),
		Function: name,
		Details: map[string]string{
			"version": fmt.Sprintf("%d", version),
		},
	}
}

// NewSupersededError creates a RuntimeError for an abandoned background
// compile.
func NewSupersededError(name string, version, current int64) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeSuperseded,
		Message:  fmt.Sprintf("compile of version %d superseded by version %d", version, current),
		Function: name,
		Details: map[string]string{
			"version": fmt.Sprintf("%d", version),
			"current": fmt.Sprintf("%d", current),
		},
	}
}
