//go:build e2e

// Package e2e_test drives a running release-gate deployment end to end over
// plain HTTP, the way a CI integration would: signed analyze submissions,
// status polling and decision checks. Point it at a stack with
// E2E_GATEWAY_URL (default http://localhost:8000) and the stack's
// HMAC_SECRET_KEY, then run:
//
//	go test -tags e2e ./test/e2e/
package e2e_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"
)

const (
	e2eHTTPTimeout  = 15 * time.Second
	e2eReadyTimeout = 60 * time.Second
)

// getenv returns the value of the environment variable k or def if empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func gatewayURL() string { return getenv("E2E_GATEWAY_URL", "http://localhost:8000") }

func hmacSecret() string { return getenv("HMAC_SECRET_KEY", "change-me-in-production") }

// decisionTimeout is how long a job may take to reach a decision. Without
// provider API keys the LLM agents burn their retry budget before skipping,
// so allow generous time and let E2E_DECISION_TIMEOUT tighten it.
func decisionTimeout() time.Duration {
	if v := getenv("E2E_DECISION_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return 3 * time.Minute
}

// signBody computes the X-Signature value the gateway expects: a hex
// HMAC-SHA256 of the raw body under the shared secret.
func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// signedAnalyzeRequest builds a POST /api/v1/analyze with valid signature
// headers for body.
func signedAnalyzeRequest(t *testing.T, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, gatewayURL()+"/api/v1/analyze", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set("X-Signature", signBody(hmacSecret(), body))
	return req
}

func analyzeBody(t *testing.T, repoName, commitMessage, diff string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"repo_name":      repoName,
		"commit_hash":    fmt.Sprintf("%x", time.Now().UnixNano()),
		"commit_message": commitMessage,
		"branch":         "main",
		"author":         "e2e-runner",
		"diff":           diff,
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return b
}

// doJSON runs req and decodes the JSON response body into a map.
func doJSON(t *testing.T, client *http.Client, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var out map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode response %q: %v", raw, err)
		}
	}
	return resp.StatusCode, out
}

// waitForGatewayReady polls /readyz until the stack reports healthy.
func waitForGatewayReady(t *testing.T, client *http.Client) {
	t.Helper()
	deadline := time.Now().Add(e2eReadyTimeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(gatewayURL() + "/readyz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(2 * time.Second)
	}
	t.Fatalf("gateway not ready after %s", e2eReadyTimeout)
}

// submitAnalysis posts a signed analyze request and returns the job id.
func submitAnalysis(t *testing.T, client *http.Client, repoName, commitMessage, diff string) string {
	t.Helper()
	status, body := doJSON(t, client, signedAnalyzeRequest(t, analyzeBody(t, repoName, commitMessage, diff)))
	if status != http.StatusOK {
		t.Fatalf("analyze returned %d: %#v", status, body)
	}
	jobID, _ := body["job_id"].(string)
	if jobID == "" {
		t.Fatalf("analyze response missing job_id: %#v", body)
	}
	if got, _ := body["status"].(string); got != "pending" {
		t.Fatalf("new job status = %q, want pending", got)
	}
	return jobID
}

// getJob fetches GET /api/v1/jobs/{id}.
func getJob(t *testing.T, client *http.Client, jobID string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, gatewayURL()+"/api/v1/jobs/"+jobID, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return doJSON(t, client, req)
}

// waitForDecision polls the job until a decision appears and returns the
// final status body.
func waitForDecision(t *testing.T, client *http.Client, jobID string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(decisionTimeout())
	var last map[string]any
	for time.Now().Before(deadline) {
		status, body := getJob(t, client, jobID)
		if status != http.StatusOK {
			t.Fatalf("job status returned %d: %#v", status, body)
		}
		last = body
		if d, _ := body["decision"].(string); d != "" {
			return body
		}
		time.Sleep(3 * time.Second)
	}
	t.Fatalf("job %s never reached a decision; last status: %#v", jobID, last)
	return nil
}
