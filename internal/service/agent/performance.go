package agent

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"github.com/fairyhunter13/ai-release-gate/internal/domain"
)

const performanceSystemPrompt = `Analyze code changes for performance issues:
- Database query inefficiencies
- Algorithmic complexity problems
- Resource leaks
- Inefficient data structures

Return:
ISSUES: [count]
FINDINGS:
- [finding]
(Or "None")`

const performanceUserPrompt = "```diff\n%s\n```\nIdentify performance issues:"

const performanceDiffCap = 3000

var (
	perfNPlusOneRe      = regexp.MustCompile(`(?i)for.*in.*:.*query\(|for.*in.*:.*filter\(`)
	perfBlockingRe      = regexp.MustCompile(`(?i)\.wait\(|time\.sleep\(`)
	perfComprehensionRe = regexp.MustCompile(`(?i)\[.*for.*for.*\]`)
	perfLoopHeadRe      = regexp.MustCompile(`(?i)for\s+.*:\s*$`)
	perfLoopBodyRe      = regexp.MustCompile(`(?i)^\s+for\s+`)
	perfAsyncDefRe      = regexp.MustCompile(`(?i)async\s+def.*:\s*$`)
)

type perfIssue struct {
	Type    string
	Line    int
	Details string
}

// PerformanceAnalyzer flags anti-patterns in added lines, then folds in LLM
// findings. Single-line patterns are plain regexes; nested loops and
// sync-inside-async need the next added line too, so those check adjacent
// pairs.
type PerformanceAnalyzer struct {
	llm domain.LLMClient
}

func NewPerformanceAnalyzer(llm domain.LLMClient) *PerformanceAnalyzer {
	return &PerformanceAnalyzer{llm: llm}
}

func (a *PerformanceAnalyzer) Name() string { return domain.AgentPerformance }

func (a *PerformanceAnalyzer) Analyze(ctx domain.Context, req domain.CodeAnalysisRequestedEvent) (domain.Verdict, float64, map[string]any, error) {
	issues := detectPerformanceIssues(req.Diff)

	// Pattern counts exclude the LLM findings appended below.
	nPlusOne, blocking, loops := 0, 0, 0
	for _, i := range issues {
		switch {
		case strings.Contains(i.Type, "N+1"):
			nPlusOne++
		case strings.Contains(i.Type, "Blocking"):
			blocking++
		case strings.Contains(i.Type, "Loop"):
			loops++
		}
	}

	issues = append(issues, a.llmFindings(ctx, req.Diff)...)

	list := make([]map[string]any, 0, len(issues))
	for _, i := range issues {
		list = append(list, map[string]any{"type": i.Type, "line": i.Line, "details": i.Details})
	}
	payload := map[string]any{
		"performance_issues": list,
		"n_plus_one_queries": nPlusOne,
		"blocking_calls":     blocking,
		"heavy_loops":        loops,
		"performance_score":  math.Max(0, 1.0-float64(len(issues))*0.15),
	}
	return performanceVerdict(issues), 0.75, payload, nil
}

func detectPerformanceIssues(diff string) []perfIssue {
	lines := addedLines(diff)
	var issues []perfIssue
	add := func(issueType string, line int) {
		issues = append(issues, perfIssue{Type: issueType, Line: line, Details: "Potential " + issueType + " detected"})
	}
	for i, dl := range lines {
		next, adjacent := nextAddedLine(lines, i)
		if perfNPlusOneRe.MatchString(dl.text) {
			add("N+1 Query", dl.num)
		}
		if perfBlockingRe.MatchString(dl.text) || blockingRequestsGet(dl.text) {
			add("Blocking Call", dl.num)
		}
		if adjacent && perfLoopHeadRe.MatchString(dl.text) && perfLoopBodyRe.MatchString(next) {
			add("Nested Loop", dl.num)
		}
		if perfComprehensionRe.MatchString(dl.text) {
			add("Large List Comprehension", dl.num)
		}
		if adjacent && perfAsyncDefRe.MatchString(dl.text) && syncCallInAsyncBody(next) {
			add("Synchronous in Async", dl.num)
		}
	}
	return issues
}

// nextAddedLine returns the following added line when it sits directly under
// lines[i] in the diff, for the patterns that span a pair of lines.
func nextAddedLine(lines []diffLine, i int) (string, bool) {
	if i+1 < len(lines) && lines[i+1].num == lines[i].num+1 {
		return lines[i+1].text, true
	}
	return "", false
}

// blockingRequestsGet flags requests.get calls issued without a timeout.
func blockingRequestsGet(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "requests.get(") && !strings.Contains(lower, "timeout")
}

// syncCallInAsyncBody flags a blocking call opening an async function body.
func syncCallInAsyncBody(line string) bool {
	lower := strings.ToLower(line)
	if strings.Contains(lower, "time.sleep") {
		return true
	}
	return strings.Contains(lower, "requests.") && !strings.Contains(lower, "await ")
}

func (a *PerformanceAnalyzer) llmFindings(ctx domain.Context, diff string) []perfIssue {
	out, err := a.llm.Complete(ctx, domain.CompletionRequest{
		SystemPrompt: performanceSystemPrompt,
		Prompt:       fmt.Sprintf(performanceUserPrompt, truncateDiff(diff, performanceDiffCap)),
		Temperature:  0.2,
		MaxTokens:    600,
	})
	if err != nil {
		slog.Error("performance llm analysis failed, keeping pattern findings only", slog.Any("error", err))
		return nil
	}
	return parsePerformanceFindings(out)
}

func parsePerformanceFindings(response string) []perfIssue {
	var issues []perfIssue
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-") && !strings.EqualFold(line, "- none") {
			issues = append(issues, perfIssue{
				Type:    "Performance Concern (LLM)",
				Details: strings.TrimSpace(strings.TrimLeft(line, "- ")),
			})
		}
	}
	return issues
}

// performanceVerdict rejects only on a pile-up of the expensive patterns;
// anything found at all is at least worth a warn.
func performanceVerdict(issues []perfIssue) domain.Verdict {
	critical := 0
	for _, i := range issues {
		t := strings.ToLower(i.Type)
		if strings.Contains(t, "n+1") || strings.Contains(t, "blocking") {
			critical++
		}
	}
	switch {
	case critical > 2:
		return domain.VerdictReject
	case len(issues) > 0:
		return domain.VerdictWarn
	}
	return domain.VerdictApprove
}
