package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tierfold/internal/compiler"
	"github.com/roach88/tierfold/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// FunctionSummary describes one compiled function.
type FunctionSummary struct {
	Name       string                 `json:"name"`
	Params     []string               `json:"params"`
	Statements int                    `json:"statements"`
	Assertions int                    `json:"assertions"`
	SourceHash string                 `json:"source_hash"`
	Warnings   []compiler.LoopWarning `json:"warnings,omitempty"`
}

// CompilationResult holds the compiled functions of a directory.
type CompilationResult struct {
	Files     int               `json:"files"`
	Functions []FunctionSummary `json:"functions"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <dir>",
		Short: "Compile CUE function definitions",
		Long: `Compile the CUE function definitions in a directory.

Every entry of the package's top-level "function" struct is parsed and
validated. Loops whose condition the body never changes are reported as
warnings. With --output the canonical form of every function is written
as canonical JSON.

Examples:
  tierfold compile ./functions
  tierfold compile ./functions -o functions.json
  tierfold compile ./functions --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	prog, loadErrors := LoadFunctions(dir, LoadModeCollectAll)
	if prog == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputCompileError(formatter, ErrCodeGeneric, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", prog.Files, dir)
	for _, fn := range prog.Functions {
		formatter.VerboseLog("Compiled function: %s(%s)", fn.Name, strings.Join(fn.Params, ", "))
	}

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	result, err := summarize(prog)
	if err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, err.Error())
	}

	if opts.Output != "" {
		if err := writeCanonicalFunctions(prog, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

func summarize(prog *compiler.Program) (*CompilationResult, error) {
	result := &CompilationResult{Files: prog.Files, Functions: []FunctionSummary{}}
	for _, fn := range prog.Functions {
		hash, err := ir.SourceHash(fn.CanonicalForm())
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", fn.Name, err)
		}
		s := FunctionSummary{
			Name:       fn.Name,
			Params:     fn.Params,
			SourceHash: hash,
		}
		ir.Walk(fn.Body, func(st *ir.Stmt) {
			s.Statements++
			if st.Kind == ir.StmtAssert {
				s.Assertions++
			}
		})
		if w := compiler.AnalyzeLoops(fn); len(w) > 0 {
			s.Warnings = w
		}
		result.Functions = append(result.Functions, s)
	}
	return result, nil
}

func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.IsJSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d function(s) from %d file(s)\n\n", len(result.Functions), result.Files)
	for _, fn := range result.Functions {
		fmt.Fprintf(w, "  %s(%s): %d statement(s), %d assertion(s)\n",
			fn.Name, strings.Join(fn.Params, ", "), fn.Statements, fn.Assertions)
		for _, warn := range fn.Warnings {
			fmt.Fprintf(w, "    %s\n", warn)
		}
	}
	fmt.Fprintln(w)

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote canonical functions to %s\n", outputFile)
	}
	return nil
}

func outputCompileError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	cliErrors := make([]CLIError, len(errs))
	for i, err := range errs {
		code, message := parseCompileError(err)
		cliErrors[i] = CLIError{Code: code, Message: message}
		var le *LoadError
		if errors.As(err, &le) && le.Pos.IsValid() {
			cliErrors[i].Details = le.Pos.String()
		}
	}

	if formatter.IsJSON() {
		if err := formatter.Encode(CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors,
		}); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range cliErrors {
		if e.Details != nil {
			fmt.Fprintf(formatter.Writer, "%s\n", e.Details)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", e.Code, e.Message)
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeCanonicalFunctions writes {"functions": {name: canonical form}} as
// canonical JSON, the same bytes SourceHash is computed over.
func writeCanonicalFunctions(prog *compiler.Program, filename string) error {
	fns := make(map[string]any, len(prog.Functions))
	for _, fn := range prog.Functions {
		fns[fn.Name] = fn.CanonicalForm()
	}
	data, err := ir.MarshalCanonical(map[string]any{
		"engine_version": ir.EngineVersion,
		"ir_version":     ir.IRVersion,
		"functions":      fns,
	})
	if err != nil {
		return fmt.Errorf("marshaling functions: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
