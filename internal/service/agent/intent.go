package agent

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/fairyhunter13/ai-release-gate/internal/domain"
)

const intentSystemPrompt = `You are a code review assistant analyzing whether a commit's stated intent matches its actual changes.

Your task:
1. Compare the commit message with the actual code changes
2. Identify any mismatches or discrepancies
3. Determine if the changes align with the stated intent

Return your analysis in this exact format:
MATCH: [YES/NO]
REASON: [Brief explanation]
DISCREPANCIES: [List any discrepancies, one per line, or "None"]`

const intentUserPrompt = "Commit Intent: %s\n\nDiff Summary: %s\n\nActual Changes:\n```diff\n%s\n```\n\nDoes this diff align with the commit intent?"

const intentDiffCap = 4000

// IntentAnalyzer checks whether the commit message describes what the diff
// actually does. The judgment itself is delegated to the LLM; with no
// provider reachable it approves rather than blocking releases on missing
// infrastructure.
type IntentAnalyzer struct {
	llm domain.LLMClient
}

func NewIntentAnalyzer(llm domain.LLMClient) *IntentAnalyzer { return &IntentAnalyzer{llm: llm} }

func (a *IntentAnalyzer) Name() string { return domain.AgentIntent }

func (a *IntentAnalyzer) Analyze(ctx domain.Context, req domain.CodeAnalysisRequestedEvent) (domain.Verdict, float64, map[string]any, error) {
	intent := firstLine(req.CommitMessage)
	summary := summarizeDiff(req.Diff)
	match, reason, discrepancies := a.judge(ctx, intent, summary, req.Diff)

	verdict := domain.VerdictApprove
	if !match {
		verdict = domain.VerdictWarn
		if len(discrepancies) > 3 {
			verdict = domain.VerdictReject
		}
	}

	confidence := 0.85
	if !match {
		confidence = 0.75
	}
	confidence = math.Max(0.5, confidence-float64(len(discrepancies))*0.05)

	payload := map[string]any{
		"intent_match":   match,
		"reason":         reason,
		"commit_intent":  intent,
		"actual_changes": summary,
		"discrepancies":  discrepancies,
	}
	return verdict, confidence, payload, nil
}

// firstLine returns the subject of a commit message.
func firstLine(message string) string {
	message = strings.TrimSpace(message)
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		return message[:i]
	}
	return message
}

// summarizeDiff compresses a diff into the two-line shape the prompt wants:
// which files changed and how many lines moved.
func summarizeDiff(diff string) string {
	files := changedFiles(diff)
	added, deleted := countLines(diff)

	shown := files
	if len(shown) > 5 {
		shown = shown[:5]
	}
	summary := fmt.Sprintf("Changed %d file(s): %s", len(files), strings.Join(shown, ", "))
	if len(files) > 5 {
		summary += fmt.Sprintf(" and %d more", len(files)-5)
	}
	return summary + fmt.Sprintf("\n+%d lines added, -%d lines deleted", added, deleted)
}

func (a *IntentAnalyzer) judge(ctx domain.Context, intent, summary, diff string) (match bool, reason string, discrepancies []string) {
	out, err := a.llm.Complete(ctx, domain.CompletionRequest{
		SystemPrompt: intentSystemPrompt,
		Prompt:       fmt.Sprintf(intentUserPrompt, intent, summary, truncateDiff(diff, intentDiffCap)),
		Temperature:  0.3,
		MaxTokens:    1000,
	})
	if err != nil {
		slog.Error("intent llm analysis failed, defaulting to approval", slog.Any("error", err))
		return true, "LLM analysis unavailable, defaulting to approval", []string{}
	}
	return parseIntentResponse(out)
}

// parseIntentResponse reads the MATCH/REASON/DISCREPANCIES reply. Dashed
// lines extend the discrepancy list only once it has an entry, so stray
// bullets elsewhere in the reply are not misread as discrepancies.
func parseIntentResponse(response string) (bool, string, []string) {
	match := true
	reason := "No specific reason provided"
	discrepancies := []string{}

	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "MATCH:"):
			match = strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(line, "MATCH:")), "YES")
		case strings.HasPrefix(line, "REASON:"):
			reason = strings.TrimSpace(strings.TrimPrefix(line, "REASON:"))
		case strings.HasPrefix(line, "DISCREPANCIES:"):
			if v := strings.TrimSpace(strings.TrimPrefix(line, "DISCREPANCIES:")); !strings.EqualFold(v, "none") {
				discrepancies = append(discrepancies, v)
			}
		case strings.HasPrefix(line, "-") && len(discrepancies) > 0:
			discrepancies = append(discrepancies, strings.TrimSpace(strings.TrimLeft(line, "- ")))
		}
	}
	return match, reason, discrepancies
}
