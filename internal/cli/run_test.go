package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchwire/internal/engine"
	"github.com/roach88/patchwire/internal/ir"
	"github.com/roach88/patchwire/internal/store"
)

func TestRun_RequiresDatabase(t *testing.T) {
	_, err := execute(t, "", "run", basicPatches)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
}

func TestRun_Stdin(t *testing.T) {
	db := filepath.Join(t.TempDir(), "trace.db")
	stdin := "# warm up\n90 3C 64\n\nC0 02\n90 3C 64\n"
	out, err := execute(t, stdin, "run", "--db", db, "--run-id", "stdin-1", basicPatches)
	require.NoError(t, err)

	assert.Contains(t, out, "[2] out p1 <-1 note_on port=0 ch=0 note=72 vel=100  [90 48 64]\n")
	assert.Contains(t, out, "[5] out p1 <-3 ctrl port=0 ch=0 ctrl=7 value=100  [B0 07 64]\n")
	assert.Contains(t, out, "[7] out p2 <-6 note_on port=0 ch=0 note=60 vel=100  [90 3C 64]\n")
	assert.Contains(t, out, "Run stdin-1: 3 input(s), 4 output(s), 1 switch(es), active patch 2\n")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	switches, err := st.ReadPatchSwitches(t.Context(), "stdin-1")
	require.NoError(t, err)
	assert.Equal(t, []ir.PatchSwitch{{RunID: "stdin-1", Seq: 3, From: 1, To: 2}}, switches)

	last, err := st.LastSeq(t.Context(), "stdin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), last)
}

func TestRun_BadStdinLineStopsReading(t *testing.T) {
	db := filepath.Join(t.TempDir(), "trace.db")
	out, err := execute(t, "90 3C 64\nnot hex\n90 3E 64\n", "run", "--db", db, "--run-id", "bad-1", basicPatches)
	require.NoError(t, err)
	assert.Contains(t, out, "Run bad-1: 1 input(s), 1 output(s), 0 switch(es), active patch 1\n")
}

func TestRun_EventsFileJSON(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "events.yaml")
	require.NoError(t, os.WriteFile(events, []byte(`
- {type: program, program: 2}
- {type: note_on, note: 48, velocity: 80}
`), 0o644))

	out, err := execute(t, "", "--format", "json", "run",
		"--db", filepath.Join(dir, "trace.db"), "--events", events, basicPatches)
	require.NoError(t, err)

	var summary RunSummary
	resp := decodeResponse(t, out, &summary)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 2, summary.Inputs)
	assert.Equal(t, 3, summary.Outputs)
	assert.Equal(t, 2, summary.ActivePatch)
	require.Len(t, summary.Switches, 1)
	assert.Equal(t, 2, summary.Switches[0].To)
}

func TestRunEngine_RunIDGenerator(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(t.Context())
	cmd.SetIn(strings.NewReader("90 3C 64\n"))
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		Database:    filepath.Join(t.TempDir(), "trace.db"),
		RunIDs:      engine.NewFixedGenerator("fixed-1"),
	}
	require.NoError(t, runEngine(opts, basicPatches, cmd))
	assert.Contains(t, out.String(), "Run fixed-1: 1 input(s), 1 output(s)")
}

func TestRun_DuplicateRunID(t *testing.T) {
	db := recordRun(t, "dup-1")

	out, err := execute(t, "", "--format", "json", "run", "--db", db, "--run-id", "dup-1", basicPatches)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeResponse(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeStore, resp.Error.Code)
	assert.Equal(t, "run dup-1 already exists (use --append to continue it)", resp.Error.Message)
}

func TestRun_Append(t *testing.T) {
	db := recordRun(t, "take-1")

	out, err := execute(t, "90 3C 64\n", "run", "--db", db, "--run-id", "take-1", "--append", basicPatches)
	require.NoError(t, err)
	assert.Contains(t, out, "[9] out p2 <-8 note_on port=0 ch=0 note=60 vel=100  [90 3C 64]\n",
		"continues on the patch the run ended on")
	assert.Contains(t, out, "Run take-1: 1 input(s), 1 output(s), 1 switch(es), active patch 2\n")

	out, err = execute(t, "", "replay", "--db", db, basicPatches)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Run: take-1 (4 step(s))\n")
}

func TestRun_AppendErrors(t *testing.T) {
	db := recordRun(t, "take-1")

	tests := []struct {
		name    string
		args    []string
		code    string
		message string
	}{
		{"needs run id", []string{"--db", db, "--append", basicPatches}, ErrCodeGeneric, "--append needs --run-id"},
		{"unknown run", []string{"--db", db, "--run-id", "nope", "--append", basicPatches}, ErrCodeStore, "run nope not found"},
		{"changed patches", []string{"--db", db, "--run-id", "take-1", "--append", changedPatches(t)}, ErrCodeStore, "run take-1 was recorded with different patches"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--format", "json", "run"}, tt.args...)
			out, err := execute(t, "", args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			resp := decodeResponse(t, out, nil)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.message, resp.Error.Message)
		})
	}
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
		code string
	}{
		{"missing patches", []string{"run", "--db", filepath.Join(dir, "a.db"), "testdata/patches/nope"}, ErrCodeNotFound},
		{"missing events file", []string{"run", "--db", filepath.Join(dir, "b.db"), "--events", "nope.yaml", basicPatches}, ErrCodeEvents},
		{"database directory missing", []string{"run", "--db", filepath.Join(dir, "x", "y", "c.db"), basicPatches}, ErrCodeStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "", append([]string{"--format", "json"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			resp := decodeResponse(t, out, nil)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}
