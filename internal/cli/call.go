package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tierfold/internal/engine"
	"github.com/roach88/tierfold/internal/ir"
)

// CallOptions holds flags for the call command.
type CallOptions struct {
	*RootOptions
	Warmup    int  // interpreted calls before the measured one
	Optimize  bool // request optimization before the measured call
	Threshold int  // implicit tier-up threshold; 0 disables it
}

// CallResult is the outcome of the call command.
type CallResult struct {
	Function string                 `json:"function"`
	Args     []string               `json:"args"`
	Result   string                 `json:"result"`
	Tier     string                 `json:"tier"`
	Reports  []engine.CompileReport `json:"reports"`
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call <dir> <function> [args...]",
		Short: "Call a function once in a fresh scheduler",
		Long: `Load the functions in a directory and call one of them.

Arguments are value literals: numbers, -0, NaN, Infinity, true, false.
With --warmup the function is first called N times on the same arguments
to collect feedback; with --optimize the measured call runs optimized
code. Flags must precede the directory.

Examples:
  tierfold call ./functions inc 41
  tierfold call --warmup 2 --optimize ./functions foo 123
  tierfold call ./functions neg -0`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(opts, args[0], args[1], args[2:], cmd)
		},
	}
	// Arguments such as -0 must not be parsed as flags.
	cmd.Flags().SetInterspersed(false)

	cmd.Flags().IntVar(&opts.Warmup, "warmup", 0, "interpreted calls before the measured call")
	cmd.Flags().BoolVar(&opts.Optimize, "optimize", false, "optimize before the measured call")
	cmd.Flags().IntVar(&opts.Threshold, "threshold", 0, "implicit tier-up threshold (0 disables)")

	return cmd
}

func runCall(opts *CallOptions, dir, name string, rawArgs []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	fns, err := loadFunctions(dir)
	if err != nil {
		code, message := parseCompileError(err)
		_ = formatter.Error(code, message, nil)
		return WrapExitError(ExitCommandError, "failed to load functions", err)
	}

	args := make([]ir.Value, len(rawArgs))
	for i, raw := range rawArgs {
		v, err := ir.ParseValue(raw)
		if err != nil {
			_ = formatter.Error(ErrCodeInvalidArgument, fmt.Sprintf("argument %d: %v", i, err), nil)
			return WrapExitError(ExitCommandError, "invalid argument", err)
		}
		args[i] = v
	}

	sched, err := engine.New(fns,
		engine.WithTierUpThreshold(opts.Threshold),
		engine.WithLogger(newLogger(opts.RootOptions, formatter.GetErrWriter())),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create scheduler", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	for i := 0; i < opts.Warmup; i++ {
		if _, err := sched.Call(ctx, name, args...); err != nil {
			return outputCallError(formatter, err)
		}
	}
	if opts.Optimize {
		if err := sched.OptimizeOnNextCall(name); err != nil {
			return outputCallError(formatter, err)
		}
	}
	v, err := sched.Call(ctx, name, args...)
	if err != nil {
		return outputCallError(formatter, err)
	}
	tier, err := sched.Tier(name)
	if err != nil {
		return outputCallError(formatter, err)
	}

	result := CallResult{
		Function: name,
		Args:     rawArgs,
		Result:   v.String(),
		Tier:     tier.String(),
		Reports:  sched.Reports(),
	}
	if result.Args == nil {
		result.Args = []string{}
	}

	if formatter.IsJSON() {
		return formatter.Encode(CLIResponse{Status: "ok", Data: result, RunID: sched.RunID()})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%s(%s) = %s [%s]\n", name, strings.Join(rawArgs, ", "), result.Result, result.Tier)
	for _, r := range result.Reports {
		fmt.Fprintf(w, "  %s\n", formatReport(r))
	}
	return nil
}

func outputCallError(formatter *OutputFormatter, err error) error {
	code := ErrCodeGeneric
	if re, ok := asRuntimeError(err); ok {
		code = string(re.Code)
	}
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitFailure, "call failed", err)
}

func asRuntimeError(err error) (*engine.RuntimeError, bool) {
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
