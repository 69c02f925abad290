package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sidesync/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-file-or-dir>...",
		Short: "Run oplog scenarios",
		Long: `Run YAML oplog scenarios, each against a fresh in-memory database with a
frozen clock, and check their assertions.

When a scenario has a golden file (golden/<name>.golden next to the
scenario file), the resulting oplog must match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  sidesync test ./scenarios
  sidesync test ./scenarios --filter "todo_*"
  sidesync test ./scenarios --update
  sidesync test ./scenarios/todo.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	var scenarioFiles []string
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return NewExitError(ExitCommandError, fmt.Sprintf("scenario path not found: %s", p))
		}
		files, err := findScenarioFiles(p, opts.Filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find scenarios", err)
		}
		scenarioFiles = append(scenarioFiles, files...)
	}

	f := newFormatter(cmd, opts.RootOptions)
	if len(scenarioFiles) == 0 {
		return f.Result("No scenarios found.", TestResult{Scenarios: []ScenarioResult{}})
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}

	for _, file := range scenarioFiles {
		sr := runScenario(f, file, opts.Update)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}
	return report(f, result)
}

// findScenarioFiles finds all YAML scenario files under path, which may
// also be a single file.
func findScenarioFiles(path string, filter string) ([]string, error) {
	var files []string

	err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(p), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, p)
		return nil
	})

	return files, err
}

// runScenario loads, runs and checks one scenario file, printing its
// line in text mode.
func runScenario(f *Formatter, file string, update bool) ScenarioResult {
	sr, note := scenarioResult(file, update)
	if !f.JSON {
		mark := "✓"
		if !sr.Pass {
			mark = "✗"
		}
		fmt.Fprintf(f.Out, "%s %s%s\n", mark, sr.Name, note)
		for _, e := range sr.Errors {
			fmt.Fprintf(f.Out, "  %s\n", e)
		}
	}
	return sr
}

func scenarioResult(file string, update bool) (ScenarioResult, string) {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return failed(filepath.Base(file), "failed to load scenario: %v", err), ""
	}
	name := scenario.Name

	result, err := harness.Run(scenario)
	if err != nil {
		return failed(name, "failed to run scenario: %v", err), ""
	}

	snapshot, err := harness.Snapshot(name, result)
	if err != nil {
		return failed(name, "failed to snapshot oplog: %v", err), ""
	}

	golden := goldenFilePath(file)
	if update {
		if err := writeGolden(golden, snapshot); err != nil {
			return failed(name, "failed to update golden file: %v", err), ""
		}
		return ScenarioResult{Name: name, Pass: true}, " (golden updated)"
	}

	want, err := os.ReadFile(golden)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Scenarios without a golden file are checked by their assertions only.
	case err != nil:
		return failed(name, "failed to read golden file: %v", err), ""
	case !bytes.Equal(want, snapshot):
		return failed(name, "oplog does not match golden file (run with --update to regenerate)"), ""
	}

	if !result.Pass {
		return ScenarioResult{Name: name, Errors: result.Errors}, ""
	}
	return ScenarioResult{Name: name, Pass: true}, ""
}

func failed(name, format string, args ...any) ScenarioResult {
	return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf(format, args...)}}
}

// goldenFilePath maps dir/name.yaml to dir/golden/name.golden.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func writeGolden(path string, snapshot []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, snapshot, 0644)
}

// report prints the summary. Text output has already listed each
// scenario as it ran.
func report(f *Formatter, result TestResult) error {
	var failure error
	if result.Failed > 0 {
		failure = NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	if f.JSON {
		if failure != nil {
			if err := f.Fail("E_TEST_FAILED", failure.Error(), result); err != nil {
				return err
			}
			return failure
		}
		return f.Result("", result)
	}

	fmt.Fprintf(f.Out, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if failure != nil {
		return failure
	}
	fmt.Fprintln(f.Out, "✓ All scenarios passed")
	return nil
}
