package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tierfold/internal/harness"
)

func TestTest_AllScenariosPass(t *testing.T) {
	out, _, err := execute(t, "test", functionsDir, scenariosDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Test Summary: 5 passed, 0 failed, 5 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTest_JSON(t *testing.T) {
	out, _, err := execute(t, "test", functionsDir, scenariosDir, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string              `json:"status"`
		Data   harness.SuiteResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 5, resp.Data.TotalScenarios)
	assert.Equal(t, 5, resp.Data.Passed)
}

func TestTest_Failure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(`
name: wrong
description: inc does not add two
flow:
  - call: inc
    args: ["1"]
    expect:
      result: "3"
assertions:
  - type: call_count
    function: inc
    count: 1
`), 0644))

	out, _, err := execute(t, "test", functionsDir, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTest_NoScenarios(t *testing.T) {
	_, _, err := execute(t, "test", functionsDir, t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no scenario files")
}
