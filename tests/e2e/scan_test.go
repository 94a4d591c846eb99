//go:build e2e

package e2e

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestE2E_ScanFindsPII(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "statement.txt")
	text := "Applicant SSN 123-45-6789, contact jane.roe@example.com for details."
	if err := os.WriteFile(input, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, code := RunRedacter(t, dir, nil, "scan", input)
	if code != 0 {
		t.Fatalf("redacter scan exited %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "ssn") {
		t.Errorf("expected ssn match in output, got: %s", stdout)
	}
	if !strings.Contains(stdout, "email") {
		t.Errorf("expected email match in output, got: %s", stdout)
	}
}

func TestE2E_ScanJSONOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "statement.txt")
	if err := os.WriteFile(input, []byte("Card 4532-0151-1283-0366 on file."), 0o600); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, code := RunRedacter(t, dir, nil, "scan", "--json", input)
	if code != 0 {
		t.Fatalf("redacter scan --json exited %d, stderr: %s", code, stderr)
	}

	var matches []struct {
		Kind  string `json:"kind"`
		Start int    `json:"start"`
		End   int    `json:"end"`
	}
	if err := json.Unmarshal([]byte(stdout), &matches); err != nil {
		t.Fatalf("scan --json output is not valid JSON: %v\n%s", err, stdout)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d: %s", len(matches), stdout)
	}
	if matches[0].Kind != "credit_card" {
		t.Errorf("expected credit_card (Luhn-valid separated digits), got %s", matches[0].Kind)
	}
}

func TestE2E_ScanCleanTextFindsNothing(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "clean.txt")
	if err := os.WriteFile(input, []byte("The quarterly report covers revenue trends."), 0o600); err != nil {
		t.Fatal(err)
	}

	stdout, _, code := RunRedacter(t, dir, nil, "scan", input)
	if code != 0 {
		t.Fatalf("redacter scan exited %d", code)
	}
	if !strings.Contains(stdout, "No PII detected") {
		t.Errorf("expected empty-result message, got: %s", stdout)
	}
}
