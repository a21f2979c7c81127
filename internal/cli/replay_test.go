package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchwire/internal/ir"
	"github.com/roach88/patchwire/internal/store"
)

// changedPatches is the basic setup with patch 1 transposing a fifth.
func changedPatches(t *testing.T) string {
	t.Helper()
	src, err := os.ReadFile(filepath.Join(basicPatches, "setup.cue"))
	require.NoError(t, err)
	changed := strings.Replace(string(src), `{unit: "transpose", value: 12}`, `{unit: "transpose", value: 7}`, 1)
	require.NotEqual(t, string(src), changed)
	return writePatches(t, changed)
}

func TestReplay_Reproduces(t *testing.T) {
	db := recordRun(t, "take-1")

	out, err := execute(t, "", "replay", "--db", db, basicPatches)
	require.NoError(t, err)
	assert.Contains(t, out, "Replay Summary: 1 run(s)\n")
	assert.Contains(t, out, "✓ Run: take-1 (3 step(s))\n")
	assert.NotContains(t, out, "Patches changed")
	assert.Contains(t, out, "✓ All runs reproduced\n")
}

func TestReplay_JSON(t *testing.T) {
	db := recordRun(t, "take-1")
	_, err := execute(t, "90 40 64\n", "run", "--db", db, "--run-id", "take-2", basicPatches)
	require.NoError(t, err)

	out, err := execute(t, "", "--format", "json", "replay", "--db", db, basicPatches)
	require.NoError(t, err)

	var summary ReplaySummary
	resp := decodeResponse(t, out, &summary)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, summary.Reproduced)
	assert.Equal(t, 2, summary.TotalRuns)
	require.Len(t, summary.Runs, 2)
	assert.Equal(t, "take-1", summary.Runs[0].RunID)
	assert.Equal(t, 3, summary.Runs[0].Steps)
	assert.Equal(t, "take-2", summary.Runs[1].RunID)
	assert.Equal(t, 1, summary.Runs[1].Steps)
}

func TestReplay_Divergence(t *testing.T) {
	db := recordRun(t, "take-1")
	changed := changedPatches(t)

	out, err := execute(t, "", "replay", "--db", db, changed)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, out, "✗ Run: take-1 (3 step(s))\n")
	assert.Contains(t, out, "  Patches changed since the run was recorded\n")
	assert.Contains(t, out, "  First divergence at seq 1 (input note_on port=0 ch=0 note=60 vel=100)\n")
	assert.Contains(t, out, "    recorded:\n      note_on port=0 ch=0 note=72 vel=100\n")
	assert.Contains(t, out, "    replayed:\n      note_on port=0 ch=0 note=67 vel=100\n")
	assert.Contains(t, out, "✗ Replay diverged from the recording\n")
}

func TestReplay_DivergenceJSON(t *testing.T) {
	db := recordRun(t, "take-1")

	out, err := execute(t, "", "--format", "json", "replay", "--db", db, "--run-id", "take-1", changedPatches(t))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var summary ReplaySummary
	resp := decodeResponse(t, out, &summary)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_DIVERGENCE", resp.Error.Code)
	require.Len(t, summary.Runs, 1)
	run := summary.Runs[0]
	assert.True(t, run.SetupChanged)
	require.Len(t, run.Divergences, 1)
	assert.Equal(t, int64(1), run.Divergences[0].Seq)
	assert.Equal(t, []ir.Event{ir.NoteOn(0, 0, 67, 100)}, run.Divergences[0].Got)
}

func TestReplay_UnknownRun(t *testing.T) {
	db := recordRun(t, "take-1")

	out, err := execute(t, "", "replay", "--db", db, "--run-id", "nope", basicPatches)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E008]: run nope: ")
}

func TestReplay_NoRuns(t *testing.T) {
	db := filepath.Join(t.TempDir(), "trace.db")
	st, err := store.Open(db)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, "", "replay", "--db", db, basicPatches)
	require.NoError(t, err)
	assert.Equal(t, "No runs found in database.\n", out)
}

func TestReplay_MissingDatabase(t *testing.T) {
	out, err := execute(t, "", "replay", "--db", filepath.Join(t.TempDir(), "nope.db"), basicPatches)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]: database not found")
}
