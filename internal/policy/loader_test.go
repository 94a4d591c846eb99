package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPolicyYAML = `profile:
  name: loan-documents
  description: Redaction profile for consumer loan PDFs
  version: 1.2.0

redaction:
  kinds: [ssn, credit_card, account_number]
  min_confidence: 0.5

strict:
  fail_on_skipped: true
  required_kinds: [ssn]

audit:
  retention_days: 365
  include_spans: true
`

func writePolicy(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadPolicy(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writePolicy(t, dir, "redacter.policy.yaml", validPolicyYAML)

	pol, err := LoadPolicy(ctx, "redacter.policy.yaml", false, dir)
	require.NoError(t, err)

	assert.Equal(t, "loan-documents", pol.Profile.Name)
	assert.Equal(t, "1.2.0", pol.Profile.Version)
	assert.Equal(t, []string{"ssn", "credit_card", "account_number"}, pol.Redaction.Kinds)
	assert.Equal(t, 0.5, pol.Redaction.MinConfidence)
	assert.True(t, pol.Strict.FailOnSkipped)
	assert.Equal(t, 365, pol.Audit.RetentionDays)

	assert.Len(t, pol.Hash, 64)
	assert.Contains(t, pol.VersionTag, "1.2.0:sha256:")
}

func TestLoadPolicyDefaults(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writePolicy(t, dir, "minimal.yaml", "profile:\n  name: minimal\n  version: 0.1.0\n")

	pol, err := LoadPolicy(ctx, "minimal.yaml", false, dir)
	require.NoError(t, err)

	require.NotNil(t, pol.Redaction)
	assert.Empty(t, pol.Redaction.Kinds, "absent kinds means every kind")
	require.NotNil(t, pol.Strict)
	assert.False(t, pol.Strict.FailOnSkipped)
	require.NotNil(t, pol.Audit)
	assert.Equal(t, 2555, pol.Audit.RetentionDays)
}

func TestLoadPolicyMissingFile(t *testing.T) {
	ctx := context.Background()

	_, err := LoadPolicy(ctx, "nope.yaml", false, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading policy file")
}

func TestLoadPolicyPathTraversal(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	outside := t.TempDir()
	writePolicy(t, outside, "evil.yaml", validPolicyYAML)

	_, err := LoadPolicy(ctx, filepath.Join("..", filepath.Base(outside), "evil.yaml"), false, base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside base directory")
}

func TestResolvePathUnderBase(t *testing.T) {
	base := t.TempDir()

	t.Run("relative path resolves under base", func(t *testing.T) {
		got, err := ResolvePathUnderBase(base, "sub/pol.yaml")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(base, "sub", "pol.yaml"), got)
	})

	t.Run("absolute path under base is accepted", func(t *testing.T) {
		abs := filepath.Join(base, "pol.yaml")
		got, err := ResolvePathUnderBase(base, abs)
		require.NoError(t, err)
		assert.Equal(t, abs, got)
	})

	t.Run("escaping relative path is rejected", func(t *testing.T) {
		_, err := ResolvePathUnderBase(base, "../escape.yaml")
		require.Error(t, err)
	})

	t.Run("absolute path outside base is rejected", func(t *testing.T) {
		_, err := ResolvePathUnderBase(base, "/etc/passwd")
		require.Error(t, err)
	})
}

func TestValidateSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			"profile name with uppercase",
			"profile:\n  name: LoanDocs\n  version: 1.0.0\n",
		},
		{
			"version not semver",
			"profile:\n  name: loan-docs\n  version: v1\n",
		},
		{
			"min_confidence above one",
			"profile:\n  name: loan-docs\n  version: 1.0.0\nredaction:\n  min_confidence: 1.5\n",
		},
		{
			"custom recognizer without patterns",
			"profile:\n  name: loan-docs\n  version: 1.0.0\nredaction:\n  custom_recognizers:\n    - name: x\n      kind: other\n",
		},
		{
			"missing profile",
			"redaction:\n  kinds: [ssn]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchema([]byte(tt.yaml), false)
			require.Error(t, err)
		})
	}
}

func TestStrictValidation(t *testing.T) {
	strictOK := `profile:
  name: loan-docs
  version: 1.0.0
redaction:
  kinds: [ssn]
strict:
  fail_on_skipped: true
audit:
  retention_days: 90
`
	require.NoError(t, ValidateSchema([]byte(strictOK), true))

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			"no redaction section",
			"profile:\n  name: p\n  version: 1.0.0\nstrict:\n  fail_on_skipped: true\naudit:\n  retention_days: 1\n",
			"'redaction' section is required",
		},
		{
			"kinds not enumerated",
			"profile:\n  name: p\n  version: 1.0.0\nredaction:\n  min_confidence: 0.5\nstrict:\n  fail_on_skipped: true\naudit:\n  retention_days: 1\n",
			"redaction.kinds must enumerate",
		},
		{
			"no strict section",
			"profile:\n  name: p\n  version: 1.0.0\nredaction:\n  kinds: [ssn]\naudit:\n  retention_days: 1\n",
			"'strict' section is required",
		},
		{
			"no audit section",
			"profile:\n  name: p\n  version: 1.0.0\nredaction:\n  kinds: [ssn]\nstrict:\n  fail_on_skipped: true\n",
			"'audit' section is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchema([]byte(tt.yaml), true)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateKinds(t *testing.T) {
	t.Run("unknown kind warned", func(t *testing.T) {
		pol := &Policy{
			Redaction: &RedactionConfig{Kinds: []string{"ssn", "iban"}},
		}
		warnings := ValidateKinds(pol)
		require.Len(t, warnings, 1)
		assert.Equal(t, "redaction.kinds", warnings[0].Field)
		assert.Contains(t, warnings[0].Message, `"iban"`)
	})

	t.Run("custom recognizer kind is known", func(t *testing.T) {
		pol := &Policy{
			Redaction: &RedactionConfig{
				Kinds: []string{"ssn", "employee_id"},
				CustomRecognizers: []CustomRecognizerConfig{
					{Name: "emp", Kind: "employee_id"},
				},
			},
			Strict: &StrictConfig{RequiredKinds: []string{"employee_id"}},
		}
		assert.Empty(t, ValidateKinds(pol))
	})

	t.Run("required kind typo warned", func(t *testing.T) {
		pol := &Policy{
			Strict: &StrictConfig{RequiredKinds: []string{"social_security"}},
		}
		warnings := ValidateKinds(pol)
		require.Len(t, warnings, 1)
		assert.Equal(t, "strict.required_kinds", warnings[0].Field)
	})
}

func TestDefaultPolicy(t *testing.T) {
	pol := DefaultPolicy()

	assert.Equal(t, "default", pol.Profile.Name)
	assert.Contains(t, pol.VersionTag, "0.0.0:sha256:")
	require.NotNil(t, pol.Strict)
	assert.False(t, pol.Strict.FailOnSkipped)
	assert.False(t, pol.Strict.FailOnUncovered)
	assert.Equal(t, 2555, pol.Audit.RetentionDays)
}
