package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tierfold/internal/engine"
)

// ReportFilter narrows ReadReports. Zero fields match everything.
type ReportFilter struct {
	Function   string
	RunID      string
	FailedOnly bool // status failed only
	Limit      int  // most recent N reports; 0 is unlimited
}

// ReadReports returns compile reports matching f with their assertion
// outcomes and diagnostics.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadReports(ctx context.Context, f ReportFilter) ([]engine.CompileReport, error) {
	var (
		where []string
		args  []any
	)
	if f.Function != "" {
		where = append(where, "function = ?")
		args = append(args, f.Function)
	}
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.FailedOnly {
		where = append(where, "status = 'failed'")
	}

	query := `
		SELECT id, run_id, function, version, seq, tier, status, trigger_kind, feedback,
		       source_hash, nodes, rewrites, rounds, error
		FROM compile_reports`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	if f.Limit > 0 {
		// Most recent N, still returned in ascending order.
		query = `SELECT * FROM (` + query + `
		ORDER BY seq DESC, id COLLATE BINARY DESC LIMIT ?)`
		args = append(args, f.Limit)
	}
	query += "\n\t\tORDER BY seq ASC, id COLLATE BINARY ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}

	reports := []engine.CompileReport{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	// The pool has one connection; the child queries below need it.
	rows.Close()

	for i := range reports {
		if err := s.readChildren(ctx, &reports[i]); err != nil {
			return nil, err
		}
	}
	return reports, nil
}

// ReadReport returns one report by ID.
// Returns sql.ErrNoRows (wrapped) if not found.
func (s *Store) ReadReport(ctx context.Context, id string) (engine.CompileReport, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, function, version, seq, tier, status, trigger_kind, feedback,
		       source_hash, nodes, rewrites, rounds, error
		FROM compile_reports
		WHERE id = ?
	`, id)
	r, err := scanReport(row)
	if err != nil {
		return engine.CompileReport{}, fmt.Errorf("read report %s: %w", id, err)
	}
	if err := s.readChildren(ctx, &r); err != nil {
		return engine.CompileReport{}, err
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (engine.CompileReport, error) {
	var (
		r                     engine.CompileReport
		tier, status, trigger string
		feedbackJSON          string
	)
	err := row.Scan(
		&r.ID, &r.RunID, &r.Function, &r.Version, &r.Seq, &tier, &status, &trigger, &feedbackJSON,
		&r.SourceHash, &r.Nodes, &r.Rewrites, &r.Rounds, &r.Error,
	)
	if err != nil {
		return r, fmt.Errorf("scan report: %w", err)
	}
	if r.Tier, err = engine.ParseTier(tier); err != nil {
		return r, fmt.Errorf("scan report %s: %w", r.ID, err)
	}
	r.Status = engine.CompileStatus(status)
	r.Trigger = engine.Trigger(trigger)
	if r.Feedback, err = unmarshalFeedback(feedbackJSON); err != nil {
		return r, fmt.Errorf("scan report %s: %w", r.ID, err)
	}
	return r, nil
}

func (s *Store) readChildren(ctx context.Context, r *engine.CompileReport) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file, line, col, text, state
		FROM assertion_outcomes
		WHERE report_id = ?
		ORDER BY idx ASC
	`, r.ID)
	if err != nil {
		return fmt.Errorf("query assertions of %s: %w", r.ID, err)
	}
	for rows.Next() {
		var a engine.AssertionOutcome
		if err := rows.Scan(&a.Pos.File, &a.Pos.Line, &a.Pos.Column, &a.Text, &a.State); err != nil {
			rows.Close()
			return fmt.Errorf("scan assertion of %s: %w", r.ID, err)
		}
		r.Assertions = append(r.Assertions, a)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("iterate assertions of %s: %w", r.ID, err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT file, line, col, text, canonical, message
		FROM diagnostics
		WHERE report_id = ?
		ORDER BY idx ASC
	`, r.ID)
	if err != nil {
		return fmt.Errorf("query diagnostics of %s: %w", r.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var d engine.Diagnostic
		if err := rows.Scan(&d.Pos.File, &d.Pos.Line, &d.Pos.Column, &d.Text, &d.Canonical, &d.Message); err != nil {
			return fmt.Errorf("scan diagnostic of %s: %w", r.ID, err)
		}
		r.Diagnostics = append(r.Diagnostics, d)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate diagnostics of %s: %w", r.ID, err)
	}
	return nil
}

// RunSummary aggregates the reports of one scheduler run.
type RunSummary struct {
	RunID      string `json:"run_id"`
	FirstSeq   int64  `json:"first_seq"`
	LastSeq    int64  `json:"last_seq"`
	Reports    int    `json:"reports"`
	Failed     int    `json:"failed"`
	Superseded int    `json:"superseded"`
	Functions  int    `json:"functions"`
}

// ReadRuns summarizes every run in the log, ordered by first seq.
func (s *Store) ReadRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, MIN(seq), MAX(seq), COUNT(*),
		       SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status = 'superseded' THEN 1 ELSE 0 END),
		       COUNT(DISTINCT function)
		FROM compile_reports
		GROUP BY run_id
		ORDER BY MIN(seq) ASC, run_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.FirstSeq, &r.LastSeq, &r.Reports, &r.Failed, &r.Superseded, &r.Functions); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetLastSeq returns the highest seq number used in the store.
// A scheduler appending to an existing log resumes its clock from here
// (engine.NewClockAt) so seqs stay unique across runs.
func (s *Store) GetLastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM compile_reports
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}

// VersionsFor returns the engine and IR versions recorded with a report.
func (s *Store) VersionsFor(ctx context.Context, id string) (engineVersion, irVersion string, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT engine_version, ir_version FROM compile_reports WHERE id = ?
	`, id).Scan(&engineVersion, &irVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("report %s: %w", id, err)
	}
	if err != nil {
		return "", "", fmt.Errorf("read versions of %s: %w", id, err)
	}
	return engineVersion, irVersion, nil
}

var _ engine.ReportSink = (*Store)(nil)
