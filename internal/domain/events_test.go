package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestAgentResultEventValidate(t *testing.T) {
	base := AgentResultEvent{
		JobID:      "5b3bb9f2-03d5-4f1a-9a3f-2f6f9a0c2d11",
		AgentName:  AgentSecurity,
		Verdict:    VerdictApprove,
		Confidence: 0.9,
		Timestamp:  time.Now().UTC(),
	}

	tests := []struct {
		name    string
		mutate  func(e *AgentResultEvent)
		wantErr bool
	}{
		{"valid", func(e *AgentResultEvent) {}, false},
		{"missing job_id", func(e *AgentResultEvent) { e.JobID = "" }, true},
		{"missing agent_name", func(e *AgentResultEvent) { e.AgentName = "" }, true},
		{"bad verdict", func(e *AgentResultEvent) { e.Verdict = "perhaps" }, true},
		{"confidence below range", func(e *AgentResultEvent) { e.Confidence = -0.1 }, true},
		{"confidence above range", func(e *AgentResultEvent) { e.Confidence = 1.1 }, true},
		{"confidence at zero", func(e *AgentResultEvent) { e.Confidence = 0 }, false},
		{"confidence at one", func(e *AgentResultEvent) { e.Confidence = 1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := base
			tt.mutate(&ev)
			err := ev.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr && !errors.Is(err, ErrMalformedEvent) {
				t.Fatalf("error %v should wrap ErrMalformedEvent", err)
			}
		})
	}
}

func TestReleaseDecisionEventValidate(t *testing.T) {
	tests := []struct {
		name     string
		decision Verdict
		jobID    string
		wantErr  bool
	}{
		{"approve", VerdictApprove, "job-1", false},
		{"warn", VerdictWarn, "job-1", false},
		{"reject", VerdictReject, "job-1", false},
		{"skip never final", VerdictSkip, "job-1", true},
		{"missing job_id", VerdictApprove, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := ReleaseDecisionEvent{JobID: tt.jobID, Decision: tt.decision}
			err := ev.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestEventJSONFieldNames(t *testing.T) {
	ev := CodeAnalysisRequestedEvent{
		JobID:         "j1",
		RepoName:      "acme/api",
		CommitHash:    "deadbeef",
		CommitMessage: "fix: things",
		Diff:          "+line",
		Branch:        "main",
		Author:        "dev@acme.io",
		Timestamp:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"job_id", "repo_name", "commit_hash", "commit_message", "diff", "branch", "author", "timestamp"} {
		if _, ok := m[key]; !ok {
			t.Errorf("encoded event missing field %q", key)
		}
	}
	if m["timestamp"] != "2025-06-01T12:00:00Z" {
		t.Errorf("timestamp encoding = %v, want RFC 3339 UTC", m["timestamp"])
	}
}

func TestClampConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{1.7, 1},
	}
	for _, tt := range tests {
		if got := ClampConfidence(tt.in); got != tt.want {
			t.Errorf("ClampConfidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
