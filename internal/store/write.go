package store

import (
	"context"
	"fmt"

	"github.com/roach88/tierfold/internal/engine"
	"github.com/roach88/tierfold/internal/ir"
)

// WriteReport appends a compile report with its assertion outcomes and
// diagnostics in one transaction. Implements engine.ReportSink.
//
// Uses ON CONFLICT(id) DO NOTHING for idempotency: report IDs are content
// addressed, so writing the same report twice is a no-op.
func (s *Store) WriteReport(ctx context.Context, r engine.CompileReport) error {
	feedbackJSON, err := marshalFeedback(r.Feedback)
	if err != nil {
		return fmt.Errorf("write report %s: %w", r.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write report %s: begin tx: %w", r.ID, err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO compile_reports
		(id, run_id, function, version, seq, tier, status, trigger_kind, feedback,
		 source_hash, nodes, rewrites, rounds, error, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.ID,
		r.RunID,
		r.Function,
		r.Version,
		r.Seq,
		r.Tier.String(),
		string(r.Status),
		string(r.Trigger),
		feedbackJSON,
		r.SourceHash,
		r.Nodes,
		r.Rewrites,
		r.Rounds,
		r.Error,
		ir.EngineVersion,
		ir.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write report %s: %w", r.ID, err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("write report %s: rows affected: %w", r.ID, err)
	}
	if inserted == 0 {
		return tx.Commit()
	}

	for i, a := range r.Assertions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO assertion_outcomes (report_id, idx, file, line, col, text, state)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, r.ID, i, a.Pos.File, a.Pos.Line, a.Pos.Column, a.Text, a.State)
		if err != nil {
			return fmt.Errorf("write report %s: assertion %d: %w", r.ID, i, err)
		}
	}

	for i, d := range r.Diagnostics {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO diagnostics (report_id, idx, file, line, col, text, canonical, message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID, i, d.Pos.File, d.Pos.Line, d.Pos.Column, d.Text, d.Canonical, d.Message)
		if err != nil {
			return fmt.Errorf("write report %s: diagnostic %d: %w", r.ID, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write report %s: commit: %w", r.ID, err)
	}
	return nil
}
