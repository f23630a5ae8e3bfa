package cli

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tierfold/internal/ir"
	"github.com/roach88/tierfold/internal/optimizer"
)

// GraphOptions holds flags for the graph command.
type GraphOptions struct {
	*RootOptions
	Feedback []string // param=type, repeatable
}

// GraphAssertion is one static assertion of a graph build.
type GraphAssertion struct {
	Pos   string `json:"pos,omitempty"`
	Text  string `json:"text"`
	State string `json:"state"`
}

// GraphResult is the output of the graph command.
type GraphResult struct {
	Function   string                       `json:"function"`
	Params     []string                     `json:"params"` // speculated types
	Nodes      int                          `json:"nodes"`
	Rounds     int                          `json:"rounds"`
	Rewrites   map[string]int               `json:"rewrites"` // per rule
	Return     string                       `json:"return,omitempty"`
	Assertions []GraphAssertion             `json:"assertions"`
	Failures   []optimizer.AssertionFailure `json:"failures,omitempty"`
	Graph      []string                     `json:"graph"`
}

// NewGraphCommand creates the graph command.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GraphOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "graph <dir> <function>",
		Short: "Build and print the optimized graph of a function",
		Long: `Build the value-numbered graph of a function for the given parameter
feedback, canonicalize it and check its static assertions.

Parameters without --feedback are compiled as Any. Types are the names
printed by the graph ("Signed32", "MinusZero", "Number", ...), case
insensitive, joined with "|".

Exit codes:
  0 - Every static assertion was proven
  1 - An assertion could not be proven
  2 - Command error

Examples:
  tierfold graph ./functions foo --feedback x=signed32
  tierfold graph ./functions foo --feedback "x=signed32|minuszero"`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Feedback, "feedback", nil, "parameter type as param=type (repeatable)")

	return cmd
}

func runGraph(opts *GraphOptions, dir, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	fns, err := loadFunctions(dir)
	if err != nil {
		code, message := parseCompileError(err)
		_ = formatter.Error(code, message, nil)
		return WrapExitError(ExitCommandError, "failed to load functions", err)
	}
	i := slices.IndexFunc(fns, func(f *ir.Function) bool { return f.Name == name })
	if i < 0 {
		_ = formatter.Error(ErrCodeUnknownFunction, fmt.Sprintf("function %q not found in %s", name, dir), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown function %q", name))
	}
	fn := fns[i]

	params, err := parseFeedback(fn, opts.Feedback)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidFeedback, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid feedback", err)
	}

	code, compileErr := optimizer.Analyze(fn, params)
	var unprovable *optimizer.UnprovableAssertionError
	if compileErr != nil && !errors.As(compileErr, &unprovable) {
		_ = formatter.Error(ErrCodeGeneric, compileErr.Error(), nil)
		return WrapExitError(ExitCommandError, "graph build failed", compileErr)
	}

	result := graphResult(code)
	if unprovable != nil {
		result.Failures = unprovable.Failures
	}

	if formatter.IsJSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if unprovable != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: "E_UNPROVABLE", Message: unprovable.Error()}
		}
		if err := formatter.Encode(resp); err != nil {
			return err
		}
	} else {
		outputGraphText(formatter, result)
	}

	if unprovable != nil {
		return WrapExitError(ExitFailure, "static assertion not proven", unprovable)
	}
	return nil
}

// parseFeedback turns param=type flags into a per-parameter type list.
func parseFeedback(fn *ir.Function, flags []string) ([]ir.Type, error) {
	params := make([]ir.Type, len(fn.Params))
	for _, f := range flags {
		name, typ, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("feedback %q: want param=type", f)
		}
		idx := slices.Index(fn.Params, strings.TrimSpace(name))
		if idx < 0 {
			return nil, fmt.Errorf("feedback %q: %s has no parameter %q", f, fn.Name, name)
		}
		t, err := ir.ParseType(typ)
		if err != nil {
			return nil, fmt.Errorf("feedback %q: %w", f, err)
		}
		params[idx] = t
	}
	return params, nil
}

func graphResult(code *optimizer.Code) GraphResult {
	result := GraphResult{
		Function:   code.Function.Name,
		Nodes:      code.Graph.Len(),
		Rounds:     code.Rounds,
		Rewrites:   map[string]int{},
		Assertions: []GraphAssertion{},
		Graph:      strings.Split(strings.TrimRight(code.Graph.Dump(), "\n"), "\n"),
	}
	for _, p := range code.Params {
		result.Params = append(result.Params, p.String())
	}
	for _, rw := range code.Rewrites {
		result.Rewrites[rw.Rule]++
	}
	if code.Return != ir.NoNode {
		result.Return = code.Graph.Format(code.Return)
	}
	for _, a := range code.Assertions {
		ga := GraphAssertion{Text: a.Text, State: a.State.String()}
		if a.Pos.IsValid() {
			ga.Pos = a.Pos.String()
		}
		result.Assertions = append(result.Assertions, ga)
	}
	return result
}

func outputGraphText(formatter *OutputFormatter, r GraphResult) {
	w := formatter.Writer

	fmt.Fprintf(w, "%s(%s): %d node(s), %d round(s)\n\n", r.Function, strings.Join(r.Params, ", "), r.Nodes, r.Rounds)
	for _, line := range r.Graph {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintln(w)

	if r.Return != "" {
		fmt.Fprintf(w, "return %s\n", r.Return)
	}

	if len(r.Rewrites) > 0 {
		rules := make([]string, 0, len(r.Rewrites))
		for rule := range r.Rewrites {
			rules = append(rules, rule)
		}
		slices.Sort(rules)
		parts := make([]string, len(rules))
		for i, rule := range rules {
			parts[i] = fmt.Sprintf("%s=%d", rule, r.Rewrites[rule])
		}
		fmt.Fprintf(w, "rewrites: %s\n", strings.Join(parts, " "))
	}

	for _, a := range r.Assertions {
		mark := "✓"
		if a.State != "proven" {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s assert %s: %s\n", mark, a.Text, a.State)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  %s\n", f)
	}
}
