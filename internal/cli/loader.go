package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tierfold/internal/compiler"
	"github.com/roach88/tierfold/internal/ir"
)

// LoadMode controls how errors are handled while loading functions.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadError is a loading or compile failure with its CLI error code.
type LoadError struct {
	Code    string
	Message string
	Pos     ir.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s: %s", e.Pos, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadFunctions loads the CUE package in dir and compiles its functions.
// In LoadModeFailFast only the first error is returned and the program is
// nil when any function failed.
func LoadFunctions(dir string, mode LoadMode) (*compiler.Program, []error) {
	prog, errs := compiler.LoadDir(dir)

	converted := make([]error, 0, len(errs))
	for _, err := range errs {
		converted = append(converted, convertLoadError(err))
	}
	if prog != nil && len(prog.Functions) == 0 && len(converted) == 0 {
		converted = append(converted, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("no functions found in %s", dir)})
	}
	if len(converted) > 0 && mode == LoadModeFailFast {
		return nil, converted[:1]
	}
	return prog, converted
}

// loadFunctions is LoadFunctions in fail-fast mode for commands that only
// need the functions.
func loadFunctions(dir string) ([]*ir.Function, error) {
	prog, errs := LoadFunctions(dir, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return prog.Functions, nil
}

// convertLoadError maps compiler errors to a LoadError with a CLI code.
func convertLoadError(err error) *LoadError {
	var le *compiler.LoadError
	if errors.As(err, &le) {
		return &LoadError{Code: loadErrorCode(le.Message), Message: le.Error()}
	}
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		out := &LoadError{Code: MapFieldToErrorCode(ce.Field), Message: err.Error()}
		if ce.Code != "" {
			out.Code = ce.Code
		}
		if ce.Pos.IsValid() {
			out.Pos = ir.Pos{File: ce.Pos.Filename(), Line: ce.Pos.Line(), Column: ce.Pos.Column()}
			out.Message = fmt.Sprintf("%s: %s", ce.Field, ce.Message)
		}
		return out
	}
	var ee *compiler.ExprError
	if errors.As(err, &ee) {
		return &LoadError{Code: ErrCodeInvalidExpr, Message: err.Error()}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

func loadErrorCode(message string) string {
	switch {
	case message == "no CUE files found":
		return ErrCodeNoFiles
	case message == "not a directory", strings.Contains(message, "no such file"):
		return ErrCodeNotFound
	case strings.HasPrefix(message, "scanning"):
		return ErrCodeScanError
	default:
		return ErrCodeLoadFailed
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error

	// Function structure errors; validation errors carry their own
	// E101-E107 codes from the compiler.
	ErrCodeInvalidParams = "E110" // params is not a list of strings
	ErrCodeInvalidBody   = "E111" // body is not a list of statements
	ErrCodeInvalidExpr   = "E112" // expression does not parse

	ErrCodeUnknownFunction = "E201" // function not defined in the package
	ErrCodeInvalidFeedback = "E202" // --feedback is not param=type
	ErrCodeInvalidArgument = "E203" // call argument is not a value literal
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case strings.HasPrefix(field, "params"):
		return ErrCodeInvalidParams
	case strings.HasPrefix(field, "body"):
		return ErrCodeInvalidBody
	case field == "cue":
		return ErrCodeBuildFailed
	default:
		return ErrCodeGeneric
	}
}
