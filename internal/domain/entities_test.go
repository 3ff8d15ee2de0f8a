package domain

import (
	"testing"
)

func TestJobStatusConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant JobStatus
		expected string
	}{
		{"JobPending", JobPending, "pending"},
		{"JobProcessing", JobProcessing, "processing"},
		{"JobCompleted", JobCompleted, "completed"},
		{"JobFailed", JobFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("Expected %s to be %q, got %q", tt.name, tt.expected, string(tt.constant))
			}
		})
	}
}

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{"pending to processing", JobPending, JobProcessing, true},
		{"pending to completed", JobPending, JobCompleted, true},
		{"pending to failed", JobPending, JobFailed, true},
		{"processing to completed", JobProcessing, JobCompleted, true},
		{"processing to failed", JobProcessing, JobFailed, true},
		{"processing to pending", JobProcessing, JobPending, false},
		{"completed to pending", JobCompleted, JobPending, false},
		{"completed to processing", JobCompleted, JobProcessing, false},
		{"completed to failed", JobCompleted, JobFailed, false},
		{"failed to processing", JobFailed, JobProcessing, false},
		{"failed to completed", JobFailed, JobCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestVerdictValid(t *testing.T) {
	for _, v := range []Verdict{VerdictApprove, VerdictWarn, VerdictReject, VerdictSkip} {
		if !v.Valid() {
			t.Errorf("Verdict %q should be valid", v)
		}
	}
	if Verdict("maybe").Valid() {
		t.Error("Verdict \"maybe\" should be invalid")
	}
	if Verdict("").Valid() {
		t.Error("empty verdict should be invalid")
	}
}

func TestVerdictValidDecision(t *testing.T) {
	tests := []struct {
		verdict Verdict
		want    bool
	}{
		{VerdictApprove, true},
		{VerdictWarn, true},
		{VerdictReject, true},
		{VerdictSkip, false},
		{Verdict("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.verdict), func(t *testing.T) {
			if got := tt.verdict.ValidDecision(); got != tt.want {
				t.Errorf("ValidDecision(%q) = %v, want %v", tt.verdict, got, tt.want)
			}
		})
	}
}

func TestExpectedAgents(t *testing.T) {
	agents := ExpectedAgents()
	if len(agents) != 5 {
		t.Fatalf("expected 5 agents, got %d", len(agents))
	}
	seen := map[string]bool{}
	for _, a := range agents {
		seen[a] = true
	}
	for _, want := range []string{"diff", "intent", "security", "performance", "test"} {
		if !seen[want] {
			t.Errorf("ExpectedAgents missing %q", want)
		}
	}
}

func TestErrorConstants(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"ErrInvalidArgument", ErrInvalidArgument, "invalid argument"},
		{"ErrNotFound", ErrNotFound, "not found"},
		{"ErrConflict", ErrConflict, "conflict"},
		{"ErrRateLimited", ErrRateLimited, "rate limited"},
		{"ErrUpstreamTimeout", ErrUpstreamTimeout, "upstream timeout"},
		{"ErrMalformedEvent", ErrMalformedEvent, "malformed event"},
		{"ErrNoProviders", ErrNoProviders, "no llm providers configured"},
		{"ErrInternal", ErrInternal, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("Expected %s to be %q, got %q", tt.name, tt.expected, tt.err.Error())
			}
		})
	}
}
