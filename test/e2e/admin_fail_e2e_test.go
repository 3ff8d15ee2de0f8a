//go:build e2e

package e2e_test

import (
	"net/http"
	"os"
	"testing"
)

// TestE2E_AdminFailJob exercises the administrative fail path. It needs the
// stack to run with admin credentials configured and the plain password
// exported to the test:
//
//	E2E_ADMIN_USERNAME / E2E_ADMIN_PASSWORD
func TestE2E_AdminFailJob(t *testing.T) {
	user := os.Getenv("E2E_ADMIN_USERNAME")
	pass := os.Getenv("E2E_ADMIN_PASSWORD")
	if user == "" || pass == "" {
		t.Skip("E2E_ADMIN_USERNAME/E2E_ADMIN_PASSWORD not set")
	}

	client := &http.Client{Timeout: e2eHTTPTimeout}
	waitForGatewayReady(t, client)

	jobID := submitAnalysis(t, client, "e2e/admin-fail", "chore: job to be failed", benignDiff)

	failURL := gatewayURL() + "/api/v1/admin/jobs/" + jobID + "/fail"

	// Without credentials the route answers 401.
	req, err := http.NewRequest(http.MethodPost, failURL, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	status, _ := doJSON(t, client, req)
	if status != http.StatusUnauthorized {
		t.Fatalf("unauthenticated admin fail returned %d, want 401", status)
	}

	req, err = http.NewRequest(http.MethodPost, failURL, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.SetBasicAuth(user, pass)
	status, body := doJSON(t, client, req)
	if status != http.StatusOK {
		t.Fatalf("admin fail returned %d: %#v", status, body)
	}
	if body["status"] != "failed" {
		t.Fatalf("admin fail response: %#v", body)
	}

	status, jobBody := getJob(t, client, jobID)
	if status != http.StatusOK {
		t.Fatalf("job fetch returned %d", status)
	}
	if jobBody["status"] != "failed" {
		t.Errorf("job status = %v after admin fail, want failed", jobBody["status"])
	}

	// Failing a terminal job conflicts.
	req, err = http.NewRequest(http.MethodPost, failURL, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.SetBasicAuth(user, pass)
	status, _ = doJSON(t, client, req)
	if status != http.StatusConflict {
		t.Errorf("second admin fail returned %d, want 409", status)
	}
}
