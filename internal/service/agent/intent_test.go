package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-release-gate/internal/domain"
)

func intentEvent(message, diff string) domain.CodeAnalysisRequestedEvent {
	return domain.CodeAnalysisRequestedEvent{JobID: "j", CommitMessage: message, Diff: diff}
}

func TestIntentAnalyzer_MatchApproves(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{response: "MATCH: YES\nREASON: Adds the endpoint the subject describes\nDISCREPANCIES: None"}
	an := NewIntentAnalyzer(llm)

	ev := intentEvent("feat: add jobs endpoint\n\nLonger body.", "--- a/api.go\n+++ b/api.go\n@@\n+func jobs() {}\n")
	verdict, confidence, payload, err := an.Analyze(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictApprove, verdict)
	assert.Equal(t, 0.85, confidence)
	assert.Equal(t, true, payload["intent_match"])
	assert.Equal(t, "Adds the endpoint the subject describes", payload["reason"])
	assert.Equal(t, "feat: add jobs endpoint", payload["commit_intent"], "intent is the subject line only")
	assert.Equal(t, []string{}, payload["discrepancies"])

	assert.Equal(t, 0.3, llm.lastReq.Temperature)
	assert.Equal(t, 1000, llm.lastReq.MaxTokens)
	assert.Contains(t, llm.lastReq.Prompt, "Commit Intent: feat: add jobs endpoint")
	assert.Contains(t, llm.lastReq.Prompt, "Changed 1 file(s): api.go")
}

func TestIntentAnalyzer_MismatchWarns(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{response: "MATCH: NO\nREASON: Touches unrelated files\nDISCREPANCIES: Modified auth module"}
	an := NewIntentAnalyzer(llm)

	verdict, confidence, payload, err := an.Analyze(context.Background(), intentEvent("fix typo", "+auth change\n"))
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictWarn, verdict)
	assert.InDelta(t, 0.70, confidence, 1e-9)
	assert.Equal(t, false, payload["intent_match"])
	assert.Equal(t, []string{"Modified auth module"}, payload["discrepancies"])
}

func TestIntentAnalyzer_ManyDiscrepanciesReject(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{response: strings.Join([]string{
		"MATCH: NO",
		"REASON: Diff does far more than the subject claims",
		"DISCREPANCIES: Deletes the scheduler",
		"- Rewrites the config loader",
		"- Drops two tables",
		"- Disables TLS verification",
	}, "\n")}
	an := NewIntentAnalyzer(llm)

	verdict, confidence, payload, err := an.Analyze(context.Background(), intentEvent("fix typo", "+big change\n"))
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictReject, verdict)
	assert.InDelta(t, 0.55, confidence, 1e-9)
	assert.Len(t, payload["discrepancies"], 4)
}

func TestIntentAnalyzer_LLMFailureApproves(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{err: errors.New("all providers failed")}
	an := NewIntentAnalyzer(llm)

	verdict, confidence, payload, err := an.Analyze(context.Background(), intentEvent("feat: x", "+x\n"))
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictApprove, verdict)
	assert.Equal(t, 0.85, confidence)
	assert.Equal(t, true, payload["intent_match"])
	assert.Equal(t, "LLM analysis unavailable, defaulting to approval", payload["reason"])
}

func TestIntentAnalyzer_ConfidenceFloor(t *testing.T) {
	t.Parallel()

	lines := []string{"MATCH: NO", "REASON: r", "DISCREPANCIES: a"}
	for i := 0; i < 9; i++ {
		lines = append(lines, "- more")
	}
	llm := &fakeLLM{response: strings.Join(lines, "\n")}
	an := NewIntentAnalyzer(llm)

	_, confidence, _, err := an.Analyze(context.Background(), intentEvent("m", "+d\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.5, confidence)
}

func TestSummarizeDiff_TruncatesFileList(t *testing.T) {
	t.Parallel()

	summary := summarizeDiff(manyFilesDiff(7))
	assert.True(t, strings.HasPrefix(summary, "Changed 7 file(s): pkg/f0.go, pkg/f1.go, pkg/f2.go, pkg/f3.go, pkg/f4.go and 2 more"), summary)
	assert.Contains(t, summary, "\n+7 lines added, -0 lines deleted")
}

func TestParseIntentResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		response  string
		wantMatch bool
		wantDisc  []string
	}{
		{name: "lowercase_yes", response: "MATCH: yes\nREASON: ok\nDISCREPANCIES: None", wantMatch: true, wantDisc: []string{}},
		{name: "no_with_list", response: "MATCH: NO\nDISCREPANCIES: a\n- b", wantMatch: false, wantDisc: []string{"a", "b"}},
		{name: "dashes_without_header_ignored", response: "- stray\nMATCH: YES\nDISCREPANCIES: None", wantMatch: true, wantDisc: []string{}},
		{name: "garbage_defaults_to_match", response: "so anyway", wantMatch: true, wantDisc: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			match, _, disc := parseIntentResponse(tt.response)
			assert.Equal(t, tt.wantMatch, match)
			assert.Equal(t, tt.wantDisc, disc)
		})
	}
}
