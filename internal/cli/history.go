package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tierfold/internal/engine"
	"github.com/roach88/tierfold/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Function string
	RunID    string
	Failed   bool
	Limit    int
	Runs     bool // summarize runs instead of listing reports
}

// HistoryResult holds the reports the history command selected.
type HistoryResult struct {
	Reports []engine.CompileReport `json:"reports"`
	Stats   HistoryStats           `json:"stats"`
}

// HistoryStats counts the selected reports by status.
type HistoryStats struct {
	Total      int `json:"total"`
	Success    int `json:"success"`
	Failed     int `json:"failed"`
	Superseded int `json:"superseded"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query the compilation log",
		Long: `List the compile reports recorded in a database, oldest first.

Each report shows the function version it compiled, the feedback it
specialized on and the state of every static assertion. Failed reports
list their diagnostics with source positions.

Examples:
  tierfold history --db ./tierfold.db
  tierfold history --db ./tierfold.db --function foo --failed
  tierfold history --db ./tierfold.db --limit 10 --format json
  tierfold history --db ./tierfold.db --runs`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Function, "function", "", "only reports of this function")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "only reports of this run")
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "only failed compilations")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "only the most recent N reports")
	cmd.Flags().BoolVar(&opts.Runs, "runs", false, "summarize runs instead of listing reports")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.Runs {
		return outputRuns(ctx, formatter, st)
	}

	reports, err := st.ReadReports(ctx, store.ReportFilter{
		Function:   opts.Function,
		RunID:      opts.RunID,
		FailedOnly: opts.Failed,
		Limit:      opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read reports", err)
	}

	result := HistoryResult{Reports: reports}
	for _, r := range reports {
		result.Stats.Total++
		switch r.Status {
		case engine.StatusSuccess:
			result.Stats.Success++
		case engine.StatusFailed:
			result.Stats.Failed++
		case engine.StatusSuperseded:
			result.Stats.Superseded++
		}
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	if len(reports) == 0 {
		fmt.Fprintln(w, "No compile reports found.")
		return nil
	}
	for _, r := range reports {
		writeReportText(w, r, opts.Verbose)
	}
	fmt.Fprintf(w, "\n%d report(s): %d success, %d failed, %d superseded\n",
		result.Stats.Total, result.Stats.Success, result.Stats.Failed, result.Stats.Superseded)
	return nil
}

func outputRuns(ctx context.Context, formatter *OutputFormatter, st *store.Store) error {
	runs, err := st.ReadRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read runs", err)
	}
	if formatter.IsJSON() {
		return formatter.Success(runs)
	}

	w := formatter.Writer
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  seq %d-%d  %d report(s) over %d function(s), %d failed, %d superseded\n",
			r.RunID, r.FirstSeq, r.LastSeq, r.Reports, r.Functions, r.Failed, r.Superseded)
	}
	return nil
}

// openExisting opens a database that must already exist; store.Open would
// create an empty one.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// formatReport renders the one-line summary of a compile report.
func formatReport(r engine.CompileReport) string {
	states := make([]string, len(r.Assertions))
	for i, a := range r.Assertions {
		states[i] = a.State
	}
	line := fmt.Sprintf("#%d %s v%d %s (%s) -> %s [%s]",
		r.Seq, r.Function, r.Version, r.Status, r.Trigger, r.Tier, strings.Join(r.Feedback, ", "))
	if len(states) > 0 {
		line += " assertions: " + strings.Join(states, ", ")
	}
	return line
}

func writeReportText(w io.Writer, r engine.CompileReport, verbose bool) {
	mark := "✓"
	if r.Failed() {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s\n", mark, formatReport(r))
	if verbose {
		fmt.Fprintf(w, "    id=%s run=%s nodes=%d rewrites=%d rounds=%d\n",
			r.ID, r.RunID, r.Nodes, r.Rewrites, r.Rounds)
	}
	for _, d := range r.Diagnostics {
		fmt.Fprintf(w, "    %s: %s: %s (canonical: %s)\n", d.Pos, d.Message, d.Text, d.Canonical)
	}
	if r.Error != "" && len(r.Diagnostics) == 0 {
		fmt.Fprintf(w, "    %s\n", r.Error)
	}
}
