package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/tierfold/internal/engine"
	"github.com/roach88/tierfold/internal/ir"
	"github.com/roach88/tierfold/internal/optimizer"
	"github.com/roach88/tierfold/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - one run only
}

// Replay outcomes of one report.
const (
	ReplayMatch    = "match"    // recompiled to the same status and assertion states
	ReplayMismatch = "mismatch" // recompiled differently
	ReplayStale    = "stale"    // source or versions changed since the report
	ReplaySkipped  = "skipped"  // superseded attempts never produced a result
)

// ReplayReportResult holds the replay of a single report.
type ReplayReportResult struct {
	ID       string `json:"id"`
	Seq      int64  `json:"seq"`
	Function string `json:"function"`
	Version  int64  `json:"version"`
	Outcome  string `json:"outcome"`
	Detail   string `json:"detail,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Reports          []ReplayReportResult `json:"reports"`
	Total            int                  `json:"total"`
	Matched          int                  `json:"matched"`
	Mismatched       int                  `json:"mismatched"`
	Stale            int                  `json:"stale"`
	AllDeterministic bool                 `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <dir>",
		Short: "Recompile logged reports and verify determinism",
		Long: `Recompile every logged compile report from the functions in <dir> with
the feedback it recorded, and check that the outcome is the same: the
same status and the same state for every static assertion.

Reports whose function source or engine version changed since they were
written are stale and not compared.

Exit codes:
  0 - Every comparable report replayed identically
  1 - At least one report recompiled differently
  2 - Command error (database not found, etc.)

Examples:
  tierfold replay ./functions --db ./tierfold.db
  tierfold replay ./functions --db ./tierfold.db --run 0192...
  tierfold replay ./functions --db ./tierfold.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay one run only")

	return cmd
}

func runReplay(opts *ReplayOptions, dir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	fns, err := loadFunctions(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load functions", err)
	}

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	reports, err := st.ReadReports(ctx, store.ReportFilter{RunID: opts.RunID})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read reports", err)
	}

	result := ReplayResult{Reports: make([]ReplayReportResult, 0, len(reports))}
	for _, r := range reports {
		rr, err := replayReport(ctx, st, fns, r)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay report %s", r.ID), err)
		}
		formatter.VerboseLog("replayed #%d %s: %s", r.Seq, r.Function, rr.Outcome)

		result.Reports = append(result.Reports, rr)
		result.Total++
		switch rr.Outcome {
		case ReplayMatch:
			result.Matched++
		case ReplayMismatch:
			result.Mismatched++
		case ReplayStale:
			result.Stale++
		}
	}
	result.AllDeterministic = result.Mismatched == 0

	if formatter.IsJSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.AllDeterministic {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    "E_NONDETERMINISTIC",
				Message: fmt.Sprintf("%d report(s) replayed differently", result.Mismatched),
			}
		}
		if err := formatter.Encode(resp); err != nil {
			return err
		}
	} else {
		outputReplayText(formatter, result)
	}

	if !result.AllDeterministic {
		return NewExitError(ExitFailure, fmt.Sprintf("%d report(s) replayed differently", result.Mismatched))
	}
	return nil
}

// replayReport recompiles the function version r describes and compares
// the outcome.
func replayReport(ctx context.Context, st *store.Store, fns []*ir.Function, r engine.CompileReport) (ReplayReportResult, error) {
	out := ReplayReportResult{ID: r.ID, Seq: r.Seq, Function: r.Function, Version: r.Version}

	if r.Status == engine.StatusSuperseded {
		out.Outcome = ReplaySkipped
		return out, nil
	}

	engineVersion, irVersion, err := st.VersionsFor(ctx, r.ID)
	if err != nil {
		return out, err
	}
	if engineVersion != ir.EngineVersion || irVersion != ir.IRVersion {
		out.Outcome = ReplayStale
		out.Detail = fmt.Sprintf("written by engine %s (ir %s)", engineVersion, irVersion)
		return out, nil
	}

	i := slices.IndexFunc(fns, func(f *ir.Function) bool { return f.Name == r.Function })
	if i < 0 {
		out.Outcome = ReplayStale
		out.Detail = "function no longer defined"
		return out, nil
	}
	fn := fns[i]
	hash, err := ir.SourceHash(fn.CanonicalForm())
	if err != nil {
		return out, err
	}
	if hash != r.SourceHash {
		out.Outcome = ReplayStale
		out.Detail = "source changed"
		return out, nil
	}

	params := make([]ir.Type, len(r.Feedback))
	for j, name := range r.Feedback {
		t, err := ir.ParseType(name)
		if err != nil {
			return out, fmt.Errorf("feedback %d: %w", j, err)
		}
		params[j] = t
	}

	code, compileErr := optimizer.Analyze(fn, params)
	status := engine.StatusSuccess
	if compileErr != nil {
		status = engine.StatusFailed
	}
	if status != r.Status {
		out.Outcome = ReplayMismatch
		out.Detail = fmt.Sprintf("status %s, logged %s", status, r.Status)
		return out, nil
	}

	var states []string
	if code != nil {
		for _, a := range code.Assertions {
			states = append(states, a.State.String())
		}
	}
	logged := make([]string, len(r.Assertions))
	for j, a := range r.Assertions {
		logged[j] = a.State
	}
	if !slices.Equal(states, logged) {
		out.Outcome = ReplayMismatch
		out.Detail = fmt.Sprintf("assertions %v, logged %v", states, logged)
		return out, nil
	}

	out.Outcome = ReplayMatch
	return out, nil
}

func outputReplayText(formatter *OutputFormatter, result ReplayResult) {
	w := formatter.Writer
	if result.Total == 0 {
		fmt.Fprintln(w, "No compile reports found in database.")
		return
	}

	for _, r := range result.Reports {
		mark := "✓"
		switch r.Outcome {
		case ReplayMismatch:
			mark = "✗"
		case ReplayStale, ReplaySkipped:
			mark = "-"
		}
		line := fmt.Sprintf("%s #%d %s v%d: %s", mark, r.Seq, r.Function, r.Version, r.Outcome)
		if r.Detail != "" {
			line += " (" + r.Detail + ")"
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "\n%d report(s): %d match, %d mismatch, %d stale\n",
		result.Total, result.Matched, result.Mismatched, result.Stale)
	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All reports replayed deterministically")
	}
}
