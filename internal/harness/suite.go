package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/patchwire/internal/engine"
)

// SuiteResult summarizes a batch of scenarios.
type SuiteResult struct {
	Total     int           `json:"total"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
	Scenarios []ScenarioRun `json:"scenarios"`
}

// ScenarioRun is one scenario of a suite, in file order.
type ScenarioRun struct {
	Path string `json:"path"`

	// Name is empty when the file could not be loaded.
	Name string `json:"name,omitempty"`

	// Result is nil when the scenario could not be loaded or run.
	Result *Result  `json:"-"`
	Errors []string `json:"errors,omitempty"`
}

// Pass reports whether the scenario passed.
func (s ScenarioRun) Pass() bool {
	return len(s.Errors) == 0
}

// ScenarioFailure is one scenario that did not pass.
type ScenarioFailure struct {
	Path   string   `json:"path"`
	Name   string   `json:"name,omitempty"`
	Errors []string `json:"errors"`
}

func (f ScenarioFailure) Error() string {
	name := f.Name
	if name == "" {
		name = f.Path
	}
	return fmt.Sprintf("%s: %s", name, strings.Join(f.Errors, "; "))
}

// Fail adds an error to scenario i, e.g. a golden file mismatch found
// after the suite ran.
func (r *SuiteResult) Fail(i int, msg string) {
	sc := &r.Scenarios[i]
	if sc.Pass() {
		r.Passed--
		r.Failed++
	}
	sc.Errors = append(sc.Errors, msg)
}

// Failures returns the scenarios that did not pass, in file order.
func (r *SuiteResult) Failures() []ScenarioFailure {
	var out []ScenarioFailure
	for _, sc := range r.Scenarios {
		if !sc.Pass() {
			out = append(out, ScenarioFailure{Path: sc.Path, Name: sc.Name, Errors: sc.Errors})
		}
	}
	return out
}

// Err returns the failures as one error, or nil when everything passed.
func (r *SuiteResult) Err() error {
	var merr *multierror.Error
	for _, f := range r.Failures() {
		merr = multierror.Append(merr, f)
	}
	return merr.ErrorOrNil()
}

// FindScenarios returns the scenario files at path: the file itself, or
// every .yaml and .yml file in the directory, sorted.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// FilterScenarios keeps the files whose base name, without extension,
// matches the glob pattern. An empty pattern keeps everything.
func FilterScenarios(files []string, pattern string) ([]string, error) {
	if pattern == "" {
		return files, nil
	}
	var out []string
	for _, f := range files {
		base := filepath.Base(f)
		matched, err := filepath.Match(pattern, strings.TrimSuffix(base, filepath.Ext(base)))
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if matched {
			out = append(out, f)
		}
	}
	return out, nil
}

// RunAll loads and runs the scenarios at path that match filter. A
// scenario that cannot be loaded or run counts as failed; the returned
// error is only for path and filter themselves.
func RunAll(ctx context.Context, path, filter string, opts ...engine.Option) (*SuiteResult, error) {
	files, err := FindScenarios(path)
	if err != nil {
		return nil, fmt.Errorf("find scenarios: %w", err)
	}
	if files, err = FilterScenarios(files, filter); err != nil {
		return nil, err
	}
	return RunFiles(ctx, files, opts...), nil
}

// RunFiles loads and runs the given scenario files in order.
func RunFiles(ctx context.Context, files []string, opts ...engine.Option) *SuiteResult {
	res := &SuiteResult{Scenarios: make([]ScenarioRun, 0, len(files))}
	for _, file := range files {
		sr := runFile(ctx, file, opts...)
		res.Total++
		if sr.Pass() {
			res.Passed++
		} else {
			res.Failed++
		}
		res.Scenarios = append(res.Scenarios, sr)
	}
	return res
}

func runFile(ctx context.Context, file string, opts ...engine.Option) ScenarioRun {
	sr := ScenarioRun{Path: file}

	sc, err := LoadScenario(file)
	if err != nil {
		sr.Errors = []string{err.Error()}
		return sr
	}
	sr.Name = sc.Name

	r, err := Run(ctx, sc, opts...)
	if err != nil {
		sr.Errors = []string{err.Error()}
		return sr
	}
	sr.Result = r
	if !r.Pass {
		sr.Errors = slices.Clone(r.Errors)
	}
	return sr
}
