package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	functionsDir = "../../testdata/functions"
	scenariosDir = "../../testdata/scenarios"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// writeFunctions writes a CUE package with one file into a temp dir.
func writeFunctions(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "functions.cue"), []byte(src), 0644))
	return dir
}

// scenarioPath returns a checked-in scenario file.
func scenarioPath(name string) string {
	return filepath.Join(scenariosDir, name)
}

// populateLog runs scenarios into a fresh database and returns its path.
func populateLog(t *testing.T, scenarios ...string) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "tierfold.db")
	for _, s := range scenarios {
		_, _, err := execute(t, "run", functionsDir, scenarioPath(s), "--db", db)
		require.NoError(t, err, "run %s", s)
	}
	return db
}
