package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tierfold/internal/store"
)

func TestRun_RegressionScenario(t *testing.T) {
	out, _, err := execute(t, "run", functionsDir, scenarioPath("regression_foo.yaml"))
	require.NoError(t, err)

	assert.Contains(t, out, "[0] call foo(121) = undefined [unoptimized]")
	assert.Contains(t, out, "[2] optimize foo")
	assert.Contains(t, out, "[3] call foo(123) = undefined [optimized]")
	assert.Contains(t, out, "[3]   report #1 foo v1 success (explicit) -> optimized")
	assert.Contains(t, out, "✓ regression-foo")
}

func TestRun_JSON(t *testing.T) {
	out, _, err := execute(t, "run", functionsDir, scenarioPath("unprovable_assertion.yaml"), "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Pass)
	assert.Equal(t, "unprovable-assertion", resp.Data.Scenario)
	require.Len(t, resp.Data.Reports, 1)
	assert.Equal(t, "failed", string(resp.Data.Reports[0].Status))
	assert.Equal(t, "unoptimized", resp.Data.Tiers["bad"])
}

func TestRun_AppendsToDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "tierfold.db")

	for i := 0; i < 2; i++ {
		_, _, err := execute(t, "run", functionsDir, scenarioPath("regression_foo.yaml"), "--db", db)
		require.NoError(t, err)
	}

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	reports, err := st.ReadReports(t.Context(), store.ReportFilter{})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, int64(1), reports[0].Seq)
	assert.Equal(t, int64(2), reports[1].Seq, "the second run continues the sequence")
	assert.NotEqual(t, reports[0].ID, reports[1].ID)
	assert.Equal(t, "regression", reports[1].RunID)
}

func TestRun_GeneratesRunIDWithoutOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no_run_id.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: no-run-id
description: inc tiers up on its first call
config:
  tier_up_threshold: 1
flow:
  - call: inc
    args: ["1"]
assertions:
  - type: report_count
    count: 1
`), 0644))

	out, _, err := execute(t, "run", "--format", "json", functionsDir, path)
	require.NoError(t, err)

	var resp struct {
		Data RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Reports, 1)
	assert.Len(t, resp.Data.Reports[0].RunID, 36, "UUID run id")
}

func TestRun_FailingScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wrong.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: wrong
description: inc does not add two
flow:
  - call: inc
    args: ["1"]
    expect:
      result: "3"
assertions:
  - type: final_tier
    function: inc
    tier: optimized
`), 0644))

	out, _, err := execute(t, "run", functionsDir, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong")
	assert.Contains(t, out, "expected result 3, got 2")
	assert.Contains(t, out, "Assertion failed: final_tier")
}

func TestRun_CommandErrors(t *testing.T) {
	t.Run("missing scenario", func(t *testing.T) {
		_, _, err := execute(t, "run", functionsDir, filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "failed to load scenario")
	})

	t.Run("missing functions", func(t *testing.T) {
		_, _, err := execute(t, "run", t.TempDir(), scenarioPath("regression_foo.yaml"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "failed to load functions")
	})
}
