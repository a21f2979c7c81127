package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const basicPatches = "testdata/patches/basic"

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out, _, err := executeLogged(t, stdin, args...)
	return out, err
}

// executeLogged is execute that also returns the log output on stderr.
func executeLogged(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// decodeResponse parses a JSON CLI response, keeping Data raw.
func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), "output: %s", out)
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}

// writePatches writes a one-file patch directory.
func writePatches(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "patches.cue"), []byte(src), 0o644))
	return dir
}

// recordRun records the basic patches processing a note, a program change
// and another note.
func recordRun(t *testing.T, runID string) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "trace.db")
	_, err := execute(t, "90 3C 64\nC0 02\n90 3C 64\n", "run", "--db", db, "--run-id", runID, basicPatches)
	require.NoError(t, err)
	return db
}
