package conformance

import (
	"testing"
)

// TestConformance runs every YAML fixture under TestPath, if any are
// checked out alongside this module. No fixture corpus ships with the
// module itself, so an absent directory is a skip, not a failure; the
// curated end-to-end coverage for this language lives in
// scenarios_test.go instead.
func TestConformance(t *testing.T) {
	tests, err := LoadAllTests()
	if err != nil {
		t.Skipf("no external conformance fixtures found: %v", err)
	}
	if len(tests) == 0 {
		t.Skip("no external conformance fixtures found")
	}

	runner := NewRunner()
	results := runner.RunAll(tests)
	stats := ComputeStats(results)

	fileGroups := make(map[string][]TestResult)
	for _, result := range results {
		fileGroups[result.Test.File] = append(fileGroups[result.Test.File], result)
	}

	for file, fileResults := range fileGroups {
		t.Run(file, func(t *testing.T) {
			for _, result := range fileResults {
				result := result
				t.Run(result.Test.Test.Name, func(t *testing.T) {
					switch {
					case result.Skipped:
						t.Skipf("Skipped: %s", result.SkipReason)
					case !result.Passed:
						if result.Error != nil {
							t.Errorf("Test failed: %v", result.Error)
						} else {
							t.Error("Test failed")
						}
					}
				})
			}
		})
	}

	t.Logf("\n=== Summary ===\n%s", FormatStats(stats))
}

func TestLoadAllTests(t *testing.T) {
	tests, err := LoadAllTests()
	if err != nil {
		t.Skipf("no external conformance fixtures found: %v", err)
	}
	t.Logf("Loaded %d test cases from conformance suite", len(tests))
}
