package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	return dir
}

func TestLoadSetupDir(t *testing.T) {
	dir := writeDir(t, map[string]string{
		"setup.cue": `package patches

setup: {
	client_name:   "split"
	default_patch: 2
}
`,
		"patches.cue": `package patches

patch: {
	"1": {unit: "pass"}
	"2": {unit: "transpose", value: 12}
}
`,
	})

	d, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, d.FileCount)

	s, err := LoadSetupDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "split", s.Config.ClientName)
	assert.Equal(t, []int{1, 2}, s.Numbers())
	require.NotNil(t, s.DefaultPatch)
	assert.Equal(t, 2, *s.DefaultPatch)
}

func TestLoadDirErrors(t *testing.T) {
	tests := []struct {
		name  string
		dir   func(t *testing.T) string
		stage LoadStage
	}{
		{"missing", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope") }, StageNotFound},
		{"file", func(t *testing.T) string {
			return filepath.Join(writeDir(t, map[string]string{"a.cue": "x: 1"}), "a.cue")
		}, StageNotFound},
		{"empty", func(t *testing.T) string { return t.TempDir() }, StageNoFiles},
		{"syntax", func(t *testing.T) string {
			return writeDir(t, map[string]string{"a.cue": "x: {\n"})
		}, StageLoad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDir(tt.dir(t))
			var de *DirError
			require.True(t, errors.As(err, &de), "got %v", err)
			assert.Equal(t, tt.stage, de.Stage)
		})
	}
}

func TestLoadSetupDir_CompileError(t *testing.T) {
	dir := writeDir(t, map[string]string{"a.cue": `patch: "1": {unit: "arpeggiator"}`})

	_, err := LoadSetupDir(dir)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, ErrInvalidExpression)
	assert.Equal(t, "patch.1", ce.Field)
}
