//go:build e2e

package e2e

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestE2E_DoctorPassesInCleanEnvironment(t *testing.T) {
	dir := t.TempDir()
	stdout, stderr, code := RunRedacter(t, dir, nil, "doctor")
	if code != 0 {
		t.Fatalf("redacter doctor exited %d, stdout: %s, stderr: %s", code, stdout, stderr)
	}
	for _, check := range []string{"data_dir_writable", "policy_valid", "policy_engine", "audit_db"} {
		if !strings.Contains(stdout, check) {
			t.Errorf("doctor output missing check %q, got: %s", check, stdout)
		}
	}
	if !strings.Contains(stdout, "0 failed") {
		t.Errorf("expected no failing checks, got: %s", stdout)
	}
}

func TestE2E_DoctorJSONReport(t *testing.T) {
	dir := t.TempDir()
	stdout, _, code := RunRedacter(t, dir, nil, "doctor", "--json")
	if code != 0 {
		t.Fatalf("redacter doctor --json exited %d", code)
	}

	var report struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
		Summary struct {
			Fail int `json:"fail"`
		} `json:"summary"`
	}
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("doctor --json output is not valid JSON: %v\n%s", err, stdout)
	}
	if report.Summary.Fail != 0 {
		t.Errorf("expected zero failing checks, got %d", report.Summary.Fail)
	}
	if len(report.Checks) == 0 {
		t.Error("expected at least one check in the report")
	}
}

func TestE2E_DoctorFailsOnBrokenPolicy(t *testing.T) {
	dir := t.TempDir()
	env := map[string]string{"REDACTER_POLICY_FILE": dir + "/missing.policy.yaml"}
	stdout, _, code := RunRedacter(t, dir, env, "doctor")
	if code == 0 {
		t.Fatal("expected nonzero exit when the configured policy file is missing")
	}
	if !strings.Contains(stdout, "policy_valid") {
		t.Errorf("expected policy_valid check in output, got: %s", stdout)
	}
}
