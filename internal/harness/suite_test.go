package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yml", "a.yaml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755))

	files, err := FindScenarios(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "b.yml")}, files)

	single, err := FindScenarios(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "notes.txt")}, single)

	_, err = FindScenarios(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestRunAll_Testdata(t *testing.T) {
	res, err := RunAll(t.Context(), "testdata/scenarios", "")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Passed)
	assert.Zero(t, res.Failed)
	assert.NoError(t, res.Err())
	require.Len(t, res.Scenarios, 1)
	assert.Equal(t, splitScenario, res.Scenarios[0].Path)
	assert.NotNil(t, res.Scenarios[0].Result)
}

func TestRunAll_Failures(t *testing.T) {
	patches, err := filepath.Abs("testdata/patches/split")
	require.NoError(t, err)

	dir := t.TempDir()
	files := map[string]string{
		"1_pass.yaml": "name: pass\ndescription: d\npatches: " + patches +
			"\nsteps:\n  - switch: 2\n    expect:\n      - {type: ctrl, ctrl: 7, value: 100}\n",
		"2_fail.yaml": "name: fail\ndescription: d\npatches: " + patches +
			"\nsteps:\n  - switch: 2\n    expect: []\n",
		"3_invalid.yaml": "name: invalid\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	res, err := RunAll(t.Context(), dir, "")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.Passed)
	assert.Equal(t, 2, res.Failed)
	failures := res.Failures()
	require.Len(t, failures, 2)

	assert.Equal(t, "fail", failures[0].Name)
	assert.Contains(t, failures[0].Error(), "fail: step 0: expected 0 outputs, got 1")

	assert.Empty(t, failures[1].Name)
	assert.Contains(t, failures[1].Error(), "3_invalid.yaml: invalid scenario")
	assert.Nil(t, res.Scenarios[2].Result)

	err = res.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")
}

func TestSuiteResult_Fail(t *testing.T) {
	res, err := RunAll(t.Context(), "testdata/scenarios", "")
	require.NoError(t, err)
	require.NoError(t, res.Err())

	res.Fail(0, "trace does not match golden file")
	res.Fail(0, "second problem")
	assert.Equal(t, 0, res.Passed)
	assert.Equal(t, 1, res.Failed, "a scenario fails once")
	assert.False(t, res.Scenarios[0].Pass())

	err = res.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keyboard_split: trace does not match golden file; second problem")
}

func TestRunAll_MissingPath(t *testing.T) {
	_, err := RunAll(t.Context(), filepath.Join(t.TempDir(), "nope"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find scenarios")
}

func TestRunAll_Filter(t *testing.T) {
	res, err := RunAll(t.Context(), "testdata/scenarios", "keyboard*")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	res, err = RunAll(t.Context(), "testdata/scenarios", "drums*")
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.NoError(t, res.Err())

	_, err = RunAll(t.Context(), "testdata/scenarios", "[")
	require.Error(t, err)
	assert.ErrorIs(t, err, filepath.ErrBadPattern)
}

func TestFilterScenarios(t *testing.T) {
	files := []string{"a/split_low.yaml", "a/split_high.yml", "a/octave.yaml"}

	got, err := FilterScenarios(files, "split_*")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/split_low.yaml", "a/split_high.yml"}, got)

	got, err = FilterScenarios(files, "")
	require.NoError(t, err)
	assert.Equal(t, files, got)
}
