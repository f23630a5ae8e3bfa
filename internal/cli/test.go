package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tierfold/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <dir> <scenarios-dir>",
		Short: "Run every scenario in a directory",
		Long: `Run the scenario files (*.yaml, *.yml) in a directory against the
functions compiled from <dir>. Each scenario runs in a fresh scheduler
with an in-memory compilation log.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, no scenarios, etc.)

Examples:
  tierfold test ./functions ./scenarios
  tierfold test ./functions ./scenarios --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runTests(opts *TestOptions, dir, scenariosDir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	fns, err := loadFunctions(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load functions", err)
	}

	result, err := harness.RunSuite(ctx, scenariosDir, harness.Options{
		Functions: fns,
		Logger:    newLogger(opts.RootOptions, formatter.GetErrWriter()),
	})
	if err != nil {
		var nse *harness.NoScenariosError
		if errors.As(err, &nse) {
			return WrapExitError(ExitCommandError, "no scenarios", err)
		}
		return WrapExitError(ExitCommandError, "failed to run scenarios", err)
	}

	if formatter.IsJSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if result.Failed > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    "E_TEST_FAILED",
				Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
			}
		}
		if err := formatter.Encode(resp); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		for _, f := range result.Failures {
			name := f.Scenario
			if name == "" {
				name = f.ScenarioPath
			}
			fmt.Fprintf(w, "✗ %s\n  %s\n", name, f.Error)
		}
		fmt.Fprintf(w, "\nTest Summary: %d passed, %d failed, %d total\n",
			result.Passed, result.Failed, result.TotalScenarios)
		if result.Failed == 0 {
			fmt.Fprintln(w, "✓ All scenarios passed")
		}
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}
