package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tierfold/internal/ir"
)

func TestCompile_Text(t *testing.T) {
	out, _, err := execute(t, "compile", functionsDir)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Compiled 5 function(s) from 2 file(s)")
	assert.Contains(t, out, "foo(x): 1 statement(s), 1 assertion(s)")
	assert.Contains(t, out, "sum(n): 6 statement(s), 0 assertion(s)")
	assert.Contains(t, out, `loop condition "true" is constant`)
}

func TestCompile_JSON(t *testing.T) {
	out, _, err := execute(t, "compile", functionsDir, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Files)

	var names []string
	for _, fn := range resp.Data.Functions {
		names = append(names, fn.Name)
		assert.Len(t, fn.SourceHash, 64, fn.Name)
	}
	assert.Equal(t, []string{"bad", "foo", "inc", "spin", "sum"}, names)

	spin := resp.Data.Functions[3]
	require.Len(t, spin.Warnings, 1)
	assert.Equal(t, "info", spin.Warnings[0].Level)
	assert.Equal(t, "body[0]", spin.Warnings[0].Field)
}

func TestCompile_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "functions.json")

	out, _, err := execute(t, "compile", functionsDir, "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote canonical functions to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded struct {
		EngineVersion string                    `json:"engine_version"`
		Functions     map[string]map[string]any `json:"functions"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ir.EngineVersion, decoded.EngineVersion)
	assert.Len(t, decoded.Functions, 5)
	assert.Equal(t, "inc", decoded.Functions["inc"]["name"])

	// Canonical output is stable.
	again := filepath.Join(t.TempDir(), "again.json")
	_, _, err = execute(t, "compile", functionsDir, "-o", again)
	require.NoError(t, err)
	data2, err := os.ReadFile(again)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(data2))
}

func TestCompile_MissingDir(t *testing.T) {
	out, _, err := execute(t, "compile", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestCompile_NoCUEFiles(t *testing.T) {
	_, _, err := execute(t, "compile", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
}

func TestCompile_ValidationErrors(t *testing.T) {
	dir := writeFunctions(t, `package functions

function: ok: {
	params: ["x"]
	body: [{return: "x"}]
}

function: broken: {
	params: ["x"]
	body: [{return: "y"}]
}
`)

	t.Run("text", func(t *testing.T) {
		out, _, err := execute(t, "compile", dir)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "✗ Compilation failed")
		assert.Contains(t, out, "E103")
		assert.Contains(t, out, "functions.cue:")
	})

	t.Run("json", func(t *testing.T) {
		out, _, err := execute(t, "compile", dir, "--format", "json")
		require.Error(t, err)

		var resp CLIResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "E103", resp.Error.Code)
	})
}

func TestCompile_VerboseGoesToStderr(t *testing.T) {
	out, errOut, err := execute(t, "compile", functionsDir, "--format", "json", "-v")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Compiled function: foo(x)")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"params", ErrCodeInvalidParams},
		{"params[0]", ErrCodeInvalidParams},
		{"body", ErrCodeInvalidBody},
		{"body[2].value", ErrCodeInvalidBody},
		{"cue", ErrCodeBuildFailed},
		{"function", ErrCodeGeneric},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapFieldToErrorCode(tt.field), tt.field)
	}
}
