package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const octaveScenario = "testdata/scenarios/octave.yaml"

// writeScenarios writes scenario files into a fresh directory. Their
// patches entry points at the basic test patches.
func writeScenarios(t *testing.T, files map[string]string) string {
	t.Helper()
	patches, err := filepath.Abs(basicPatches)
	require.NoError(t, err)

	dir := t.TempDir()
	for name, body := range files {
		src := "patches: " + patches + "\n" + body
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	return dir
}

const failingScenario = `name: wrong_octave
description: expects two octaves up
steps:
  - send: {type: note_on, note: 60, velocity: 100}
    expect:
      - {type: note_on, note: 84, velocity: 100}
`

func TestTest_Pass(t *testing.T) {
	out, err := execute(t, "", "test", "--golden", t.TempDir(), octaveScenario)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ octave\n")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total\n")
	assert.Contains(t, out, "✓ All scenarios passed\n")
}

func TestTest_JSON(t *testing.T) {
	out, err := execute(t, "", "--format", "json", "test", "--golden", t.TempDir(), "testdata/scenarios")
	require.NoError(t, err)

	var result TestResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, TestResult{
		Scenarios: []ScenarioResult{{Name: "octave", File: octaveScenario, Pass: true}},
		Passed:    1,
		Total:     1,
	}, result)
}

func TestTest_UpdateThenCompare(t *testing.T) {
	golden := t.TempDir()

	_, err := execute(t, "", "test", "--update", "--golden", golden, octaveScenario)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(golden, "octave.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id":"octave-1"`)

	_, err = execute(t, "", "test", "--golden", golden, octaveScenario)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(golden, "octave.golden"), []byte("{}"), 0o644))
	out, err := execute(t, "", "test", "--golden", golden, octaveScenario)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total\n")
	assert.Contains(t, err.Error(), "octave: trace does not match golden file")
}

func TestTest_Failures(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"a_wrong.yaml":  failingScenario,
		"b_broken.yaml": "steps: [\n",
	})

	out, err := execute(t, "", "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result TestResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, "2 scenario(s) failed", resp.Error.Message)
	require.Len(t, result.Scenarios, 2)

	wrong := result.Scenarios[0]
	assert.Equal(t, "wrong_octave", wrong.Name)
	assert.False(t, wrong.Pass)
	assert.NotEmpty(t, wrong.Errors)

	broken := result.Scenarios[1]
	assert.Equal(t, "b_broken.yaml", broken.Name)
	require.Len(t, broken.Errors, 1)
	assert.Contains(t, broken.Errors[0], "failed to parse YAML")

	assert.Contains(t, err.Error(), "2 errors occurred")
	assert.Contains(t, err.Error(), "wrong_octave: ")
}

func TestTest_Filter(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"split_ok.yaml": `name: split_ok
description: one octave up
steps:
  - send: {type: note_on, note: 60, velocity: 100}
    expect:
      - {type: note_on, note: 72, velocity: 100}
`,
		"wrong.yaml": failingScenario,
	})

	out, err := execute(t, "", "test", "--filter", "split*", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ split_ok\n")
	assert.NotContains(t, out, "wrong_octave")

	out, err = execute(t, "", "test", "--filter", "nothing*", dir)
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)

	_, err = execute(t, "", "test", "--filter", "[", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTest_MissingPath(t *testing.T) {
	out, err := execute(t, "", "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]: scenarios not found")
}
