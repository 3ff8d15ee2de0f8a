package agent

import (
	"math"
	"strings"

	"github.com/fairyhunter13/ai-release-gate/internal/domain"
)

var testPathMarkers = []string{"test_", "_test.", "spec.", ".test.", "__test__", "/tests/"}

// Doc and data files are not expected to carry tests.
var untestableSuffixes = []string{".md", ".json", ".yaml", ".yml", ".txt"}

// TestAnalyzer estimates whether a change ships enough tests for the
// implementation it touches. Pure path heuristics, no LLM.
type TestAnalyzer struct{}

func NewTestAnalyzer() *TestAnalyzer { return &TestAnalyzer{} }

func (a *TestAnalyzer) Name() string { return domain.AgentTest }

func (a *TestAnalyzer) Analyze(_ domain.Context, req domain.CodeAnalysisRequestedEvent) (domain.Verdict, float64, map[string]any, error) {
	testFiles, implFiles := splitTestFiles(changedFiles(req.Diff))
	untested := untestedPaths(implFiles, testFiles)

	payload := map[string]any{
		"tests_affected": len(testFiles),
		"coverage_delta": estimateCoverageDelta(len(testFiles), len(implFiles)),
		"untested_paths": untested,
		"test_score":     testScore(len(testFiles), len(implFiles), len(untested)),
	}
	return testVerdict(len(testFiles), len(implFiles), len(untested)), 0.70, payload, nil
}

func splitTestFiles(files []string) (tests, impl []string) {
	for _, f := range files {
		lower := strings.ToLower(f)
		isTest := false
		for _, m := range testPathMarkers {
			if strings.Contains(lower, m) {
				isTest = true
				break
			}
		}
		if isTest {
			tests = append(tests, f)
		} else {
			impl = append(impl, f)
		}
	}
	return tests, impl
}

// estimateCoverageDelta guesses the coverage movement from the test-to-impl
// file ratio, assuming a test file covers about 60% of its counterpart.
// Negative when the change looks under-tested, zero otherwise.
func estimateCoverageDelta(tests, impl int) float64 {
	if impl == 0 {
		return 0
	}
	estimate := math.Min(float64(tests)/float64(impl)*0.6, 1.0)
	if estimate < 0.5 {
		return -(0.5 - estimate)
	}
	return 0
}

// untestedPaths lists implementation files whose base name shows up in none
// of the changed test file paths.
func untestedPaths(impl, tests []string) []string {
	untested := []string{}
	for _, f := range impl {
		if hasSuffixAny(f, untestableSuffixes) {
			continue
		}
		base := f
		if i := strings.LastIndexByte(f, '.'); i >= 0 {
			base = f[:i]
		}
		covered := false
		for _, t := range tests {
			if strings.Contains(t, base) {
				covered = true
				break
			}
		}
		if !covered {
			untested = append(untested, f)
		}
	}
	return untested
}

func hasSuffixAny(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func testScore(tests, impl, untested int) float64 {
	if impl == 0 {
		return 1.0
	}
	base := math.Min(float64(tests)/float64(impl), 1.0)
	penalty := float64(untested) / float64(impl) * 0.5
	return math.Max(0, base-penalty)
}

func testVerdict(tests, impl, untested int) domain.Verdict {
	if impl == 0 {
		return domain.VerdictApprove
	}
	if tests == 0 {
		if impl > 3 {
			return domain.VerdictReject
		}
		return domain.VerdictWarn
	}
	if float64(untested)/float64(impl) > 0.7 {
		return domain.VerdictWarn
	}
	return domain.VerdictApprove
}
