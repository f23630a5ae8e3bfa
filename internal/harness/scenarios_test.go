package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Every scenario under testdata/scenarios must pass on its own.
func TestScenarios_AllPass(t *testing.T) {
	paths, err := FindScenarios(scenarioDir)
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestScenario_MinusZeroBlocksFold(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "minus_zero_feedback.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Reports, 1)
	rep := result.Reports[0]
	assert.Equal(t, "foo", rep.Function)
	require.Len(t, rep.Diagnostics, 1)
	assert.Equal(t, "1 * x == x + 0", rep.Diagnostics[0].Text)
	assert.Positive(t, rep.Diagnostics[0].Pos.Line)
	assert.Equal(t, "unoptimized", result.Tiers["foo"])
}

func TestScenario_LoopLimit(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "loop_limit.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	var codes []string
	for _, ev := range result.Trace {
		if ev.Error != "" {
			codes = append(codes, ev.Error)
		}
	}
	assert.Equal(t, []string{"LOOP_LIMIT", "INVALID_ARGUMENT"}, codes)
}
