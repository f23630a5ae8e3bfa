package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/tierfold/internal/engine"
	"github.com/roach88/tierfold/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestReport creates a successful report with one proven assertion.
func createTestReport(id, runID, function string, seq int64) engine.CompileReport {
	return engine.CompileReport{
		ID:         id,
		RunID:      runID,
		Function:   function,
		Version:    1,
		Seq:        seq,
		Tier:       engine.TierOptimized,
		Status:     engine.StatusSuccess,
		Trigger:    engine.TriggerExplicit,
		Feedback:   []string{"Signed32"},
		SourceHash: "test-hash",
		Nodes:      7,
		Rewrites:   3,
		Rounds:     2,
		Assertions: []engine.AssertionOutcome{
			{Pos: ir.Pos{File: "foo.cue", Line: 4, Column: 12}, Text: "1 * x == x + 0", State: "proven"},
		},
	}
}

// createFailedReport creates a failed report with one diagnostic.
func createFailedReport(id, runID, function string, seq int64) engine.CompileReport {
	pos := ir.Pos{File: "bad.cue", Line: 10, Column: 12}
	return engine.CompileReport{
		ID:         id,
		RunID:      runID,
		Function:   function,
		Version:    1,
		Seq:        seq,
		Tier:       engine.TierUnoptimized,
		Status:     engine.StatusFailed,
		Trigger:    engine.TriggerThreshold,
		Feedback:   []string{"Signed32"},
		SourceHash: "test-hash",
		Nodes:      6,
		Assertions: []engine.AssertionOutcome{
			{Pos: pos, Text: "x + 1 == x", State: "failed"},
		},
		Diagnostics: []engine.Diagnostic{
			{Pos: pos, Text: "x + 1 == x", Canonical: "Equal(Add(p0, 1), p0)", Message: "static assertion not proven"},
		},
		Error: "bad: unprovable static assertion",
	}
}
