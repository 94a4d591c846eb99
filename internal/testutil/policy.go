package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteTestPolicyFile creates a minimal valid policy YAML in dir and returns
// its path. The policy is permissive: no strict gates, common kinds enabled.
func WriteTestPolicyFile(t *testing.T, dir, name string) string {
	t.Helper()
	policyContent := `
profile:
  name: "` + name + `"
  version: "1.0.0"
redaction:
  kinds: [ssn, credit_card, routing_number, account_number, email, phone_number]
audit:
  retention_days: 365
`
	path := filepath.Join(dir, name+".policy.yaml")
	if err := os.WriteFile(path, []byte(policyContent), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// WriteStrictPolicyFile creates a policy YAML that denies runs with skipped
// matches or uncovered kinds and requires an SSN detection.
func WriteStrictPolicyFile(t *testing.T, dir, name string) string {
	t.Helper()
	policyContent := `
profile:
  name: "` + name + `"
  version: "1.0.0"
redaction:
  kinds: [ssn, credit_card, routing_number, account_number, email, phone_number]
strict:
  fail_on_skipped: true
  fail_on_uncovered: true
  required_kinds: [ssn]
audit:
  retention_days: 365
`
	path := filepath.Join(dir, name+".policy.yaml")
	if err := os.WriteFile(path, []byte(policyContent), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// WritePatternsFile creates a recognizer overlay YAML that adds a case-ID
// recognizer, for tests that exercise pattern-file layering.
func WritePatternsFile(t *testing.T, dir string) string {
	t.Helper()
	content := `
recognizers:
  - name: case_id
    kind: case_id
    patterns:
      - name: case_prefixed
        regex: 'CASE-\d{6}'
        confidence: 0.9
`
	path := filepath.Join(dir, "patterns.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
