package agent

import (
	"regexp"
	"sort"
	"strings"

	"github.com/fairyhunter13/ai-release-gate/internal/domain"
)

// Change categories and risk levels reported in diff analyzer payloads.
const (
	changeDB         = "db"
	changeAPI        = "api"
	changeUI         = "ui"
	changeConfig     = "config"
	changeDependency = "dependency"
	changeTest       = "test"
	changeDocs       = "docs"
	changeOther      = "other"

	riskLow      = "low"
	riskMedium   = "medium"
	riskHigh     = "high"
	riskCritical = "critical"
)

// fileHeaderRe matches the post-image path of a unified diff file header.
var fileHeaderRe = regexp.MustCompile(`(?m)^\+\+\+ b/(.+)$`)

// changedFiles lists the paths touched by a unified diff, in diff order.
func changedFiles(diff string) []string {
	matches := fileHeaderRe.FindAllStringSubmatch(diff, -1)
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		files = append(files, m[1])
	}
	return files
}

// countLines tallies added and deleted lines, excluding the +++/--- headers.
func countLines(diff string) (added, deleted int) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			deleted++
		}
	}
	return added, deleted
}

// diffLine is one added line with its 1-based position in the diff text.
// Positions count every diff line, not just added ones, so they line up
// with what a reader sees when opening the raw diff.
type diffLine struct {
	num  int
	text string
}

// addedLines returns the content of each added line with the + stripped.
func addedLines(diff string) []diffLine {
	var out []diffLine
	for i, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "+") {
			out = append(out, diffLine{num: i + 1, text: line[1:]})
		}
	}
	return out
}

// truncateDiff caps prompt material at max bytes, marking the cut so the
// model knows the diff continues.
func truncateDiff(diff string, max int) string {
	if len(diff) <= max {
		return diff
	}
	return diff[:max] + "\n... (truncated)"
}

// DiffAnalyzer sizes and categorizes a change set without an LLM. It never
// rejects; oversized or risky shapes earn a warn for the arbiter to weigh.
type DiffAnalyzer struct{}

func NewDiffAnalyzer() *DiffAnalyzer { return &DiffAnalyzer{} }

func (a *DiffAnalyzer) Name() string { return domain.AgentDiff }

func (a *DiffAnalyzer) Analyze(_ domain.Context, req domain.CodeAnalysisRequestedEvent) (domain.Verdict, float64, map[string]any, error) {
	files := changedFiles(req.Diff)
	added, deleted := countLines(req.Diff)
	types := classifyChanges(files)
	risk := riskLevel(len(files), added+deleted, types)

	verdict := domain.VerdictApprove
	if risk == riskCritical || risk == riskHigh {
		verdict = domain.VerdictWarn
	}

	confidence := 0.85
	switch {
	case len(files) == 0 || req.Diff == "":
		confidence = 0.3
	case len(files) >= 20:
		confidence = 0.65
	}

	payload := map[string]any{
		"files_changed":    len(files),
		"lines_added":      added,
		"lines_deleted":    deleted,
		"change_types":     types,
		"risk_level":       risk,
		"affected_modules": affectedModules(files),
	}
	return verdict, confidence, payload, nil
}

var changeMarkers = []struct {
	category string
	markers  []string
}{
	{changeDB, []string{"migration", "schema", "models.py", "alembic"}},
	{changeAPI, []string{"api", "endpoint", "route", "controller"}},
	{changeUI, []string{".jsx", ".tsx", ".vue", ".html", ".css", "component"}},
	{changeConfig, []string{"config", ".env", ".yaml", ".yml", ".json", "settings"}},
	{changeDependency, []string{"requirements.txt", "package.json", "go.mod", "cargo.toml"}},
	{changeTest, []string{"test_", "_test.", "spec.", ".test.", "__test__"}},
	{changeDocs, []string{".md", "readme", "docs/"}},
}

// classifyChanges maps file paths onto change categories. A single path may
// land in several categories; "other" appears only when nothing matched.
func classifyChanges(files []string) []string {
	seen := map[string]bool{}
	for _, f := range files {
		lower := strings.ToLower(f)
		for _, cm := range changeMarkers {
			for _, m := range cm.markers {
				if strings.Contains(lower, m) {
					seen[cm.category] = true
					break
				}
			}
		}
	}
	if len(seen) == 0 {
		seen[changeOther] = true
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// affectedModules collects the top-level directories touched by the change.
func affectedModules(files []string) []string {
	seen := map[string]bool{}
	for _, f := range files {
		if i := strings.IndexByte(f, '/'); i > 0 {
			seen[f[:i]] = true
		}
	}
	mods := make([]string, 0, len(seen))
	for m := range seen {
		mods = append(mods, m)
	}
	sort.Strings(mods)
	return mods
}

func hasCategory(types []string, category string) bool {
	for _, t := range types {
		if t == category {
			return true
		}
	}
	return false
}

// riskLevel grades the blast radius of a change. Schema migrations spanning
// several files and very large diffs dominate everything else.
func riskLevel(filesChanged, totalLines int, types []string) string {
	db := hasCategory(types, changeDB)
	switch {
	case db && filesChanged > 1:
		return riskCritical
	case filesChanged > 20 || totalLines > 1000:
		return riskCritical
	case db || hasCategory(types, changeDependency):
		return riskHigh
	case filesChanged > 10 || totalLines > 500:
		return riskHigh
	case hasCategory(types, changeAPI) || filesChanged > 5:
		return riskMedium
	case len(types) == 1 && (types[0] == changeTest || types[0] == changeDocs):
		return riskLow
	}
	return riskMedium
}
