package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult summarises running every scenario in a directory.
type SuiteResult struct {
	Total    int            `json:"total"`
	Passed   int            `json:"passed"`
	Failed   int            `json:"failed"`
	Failures []SuiteFailure `json:"failures,omitempty"`
}

// SuiteFailure is one scenario that failed to load, run or pass.
type SuiteFailure struct {
	Scenario string `json:"scenario"`
	Path     string `json:"path"`
	Error    string `json:"error"`
}

// Pass reports whether every scenario passed.
func (r *SuiteResult) Pass() bool { return r.Failed == 0 }

// ScenarioFiles lists the .yaml and .yml files in dir, sorted.
func ScenarioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// RunSuite loads and runs every scenario in dir. A scenario that cannot be
// loaded counts as failed; the suite keeps going.
func RunSuite(dir string) (*SuiteResult, error) {
	files, err := ScenarioFiles(dir)
	if err != nil {
		return nil, err
	}

	res := &SuiteResult{}
	for _, path := range files {
		res.Total++
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

		scenario, err := LoadScenario(path)
		if err != nil {
			res.fail(name, path, err.Error())
			continue
		}
		name = scenario.Name

		out, err := Run(scenario)
		if err != nil {
			res.fail(name, path, err.Error())
			continue
		}
		if !out.Pass {
			res.fail(name, path, strings.Join(out.Errors, "; "))
			continue
		}
		res.Passed++
	}
	return res, nil
}

func (r *SuiteResult) fail(name, path, msg string) {
	r.Failed++
	r.Failures = append(r.Failures, SuiteFailure{Scenario: name, Path: path, Error: msg})
}
