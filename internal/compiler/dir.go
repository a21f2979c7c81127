package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/patchwire/internal/ir"
)

// LoadStage names the step of loading a patch directory that failed.
type LoadStage string

const (
	StageNotFound LoadStage = "not_found"
	StageScan     LoadStage = "scan"
	StageNoFiles  LoadStage = "no_files"
	StageLoad     LoadStage = "load"
	StageBuild    LoadStage = "build"
)

// DirError reports a patch directory that could not be turned into a CUE
// value. Compile failures are returned as CompileError instead.
type DirError struct {
	Stage LoadStage
	Dir   string
	Err   error
}

func (e *DirError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Dir, e.Err)
}

func (e *DirError) Unwrap() error { return e.Err }

// Dir is a loaded patch directory.
type Dir struct {
	Value     cue.Value
	FileCount int
}

// LoadDir loads the CUE package in dir.
func LoadDir(dir string) (*Dir, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &DirError{Stage: StageNotFound, Dir: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &DirError{Stage: StageNotFound, Dir: dir, Err: fmt.Errorf("not a directory")}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &DirError{Stage: StageScan, Dir: dir, Err: err}
	}
	if len(files) == 0 {
		return nil, &DirError{Stage: StageNoFiles, Dir: dir, Err: fmt.Errorf("no CUE files found")}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &DirError{Stage: StageLoad, Dir: dir, Err: fmt.Errorf("no CUE instances loaded")}
	}
	if inst := instances[0]; inst.Err != nil {
		return nil, &DirError{Stage: StageLoad, Dir: dir, Err: inst.Err}
	}

	value := cuecontext.New().BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return nil, &DirError{Stage: StageBuild, Dir: dir, Err: formatCUEError(err)}
	}
	return &Dir{Value: value, FileCount: len(files)}, nil
}

// LoadSetupDir loads dir and compiles its setup. The result is not
// validated; engine.NewSetup does that.
func LoadSetupDir(dir string) (*ir.Setup, error) {
	d, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return CompileSetup(d.Value)
}

// FindCUEFiles returns the .cue files directly in dir, the files of the
// package load.Instances reads.
func FindCUEFiles(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, "*.cue"))
}
