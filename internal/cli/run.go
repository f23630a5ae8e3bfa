package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tierfold/internal/engine"
	"github.com/roach88/tierfold/internal/harness"
	"github.com/roach88/tierfold/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string

	// RunIDs overrides the run ID generator (for testing). If nil, the
	// scenario's run_id is used, or a UUIDv7 when it has none.
	RunIDs engine.RunIDGenerator
}

// RunResult is the outcome of the run command.
type RunResult struct {
	Scenario string                 `json:"scenario"`
	Pass     bool                   `json:"pass"`
	Errors   []string               `json:"errors,omitempty"`
	Trace    []harness.TraceEvent   `json:"trace"`
	Reports  []engine.CompileReport `json:"reports"`
	Tiers    map[string]string      `json:"tiers"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <dir> <scenario.yaml>",
		Short: "Run one scenario against the functions in a directory",
		Long: `Run a scenario's flow against the functions compiled from a directory.

The scenario's own sources are ignored. Compile reports go to an
in-memory log, or appended to --db, where the sequence numbers continue
from the last report already stored.

Exit codes:
  0 - The scenario passed
  1 - An expect clause or assertion failed
  2 - Command error

Examples:
  tierfold run ./functions ./scenarios/regression_foo.yaml
  tierfold run ./functions ./scenarios/regression_foo.yaml --db ./tierfold.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "append compile reports to this SQLite database")

	return cmd
}

func runScenario(opts *RunOptions, dir, scenarioPath string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, formatter.GetErrWriter())

	fns, err := loadFunctions(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load functions", err)
	}
	scenario, err := readScenario(scenarioPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	hopts := harness.Options{Functions: fns, Logger: logger, RunIDs: opts.RunIDs}
	if hopts.RunIDs == nil && scenario.RunID == "" {
		hopts.RunIDs = engine.UUIDv7Generator{}
	}

	if opts.Database != "" {
		st, clock, err := openLog(ctx, opts.Database, logger)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		hopts.Store = st
		hopts.Clock = clock
	}

	result, err := harness.RunWithOptions(ctx, scenario, hopts)
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario execution failed", err)
	}

	out := RunResult{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Errors:   result.Errors,
		Trace:    result.Trace,
		Reports:  result.Reports,
		Tiers:    result.Tiers,
	}

	if formatter.IsJSON() {
		resp := CLIResponse{Status: "ok", Data: out}
		if !out.Pass {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    "E_SCENARIO_FAILED",
				Message: fmt.Sprintf("%d check(s) failed", len(out.Errors)),
			}
		}
		if err := formatter.Encode(resp); err != nil {
			return err
		}
	} else {
		writeRunText(formatter.Writer, out)
	}

	if !out.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

// readScenario parses a scenario file without resolving its sources; the
// functions always come from the command's directory.
func readScenario(path string) (*harness.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return harness.ParseScenario(data)
}

// openLog opens the compilation log at path and a clock that continues
// after its last seq.
func openLog(ctx context.Context, path string, logger *slog.Logger) (*store.Store, *engine.Clock, error) {
	logger.Debug("opening database", "path", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	last, err := st.GetLastSeq(ctx)
	if err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to read last seq", err)
	}
	logger.Debug("database ready", "last_seq", last)
	return st, engine.NewClockAt(last), nil
}

func writeRunText(w io.Writer, r RunResult) {
	for _, ev := range r.Trace {
		fmt.Fprintf(w, "%s\n", ev)
	}
	fmt.Fprintln(w)
	if r.Pass {
		fmt.Fprintf(w, "✓ %s\n", r.Scenario)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", r.Scenario)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
