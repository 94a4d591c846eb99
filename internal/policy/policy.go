package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Policy represents a complete redacter.policy.yaml configuration.
type Policy struct {
	Profile   ProfileConfig    `yaml:"profile" json:"profile"`
	Redaction *RedactionConfig `yaml:"redaction,omitempty" json:"redaction,omitempty"`
	Strict    *StrictConfig    `yaml:"strict,omitempty" json:"strict,omitempty"`
	Audit     *AuditConfig     `yaml:"audit,omitempty" json:"audit,omitempty"`

	// Computed fields (not serialized from YAML)
	Hash       string `yaml:"-" json:"-"`
	VersionTag string `yaml:"-" json:"-"`
}

// ProfileConfig identifies the redaction profile.
type ProfileConfig struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string `yaml:"version" json:"version"`
}

// RedactionConfig selects what gets detected and redacted.
type RedactionConfig struct {
	Kinds             []string                 `yaml:"kinds,omitempty" json:"kinds,omitempty"`
	DisabledKinds     []string                 `yaml:"disabled_kinds,omitempty" json:"disabled_kinds,omitempty"`
	MinConfidence     float64                  `yaml:"min_confidence,omitempty" json:"min_confidence,omitempty"`
	PatternFile       string                   `yaml:"pattern_file,omitempty" json:"pattern_file,omitempty"`
	CustomRecognizers []CustomRecognizerConfig `yaml:"custom_recognizers,omitempty" json:"custom_recognizers,omitempty"`
}

// CustomRecognizerConfig is a recognizer overlay declared in the policy file.
type CustomRecognizerConfig struct {
	Name      string                `yaml:"name" json:"name"`
	Kind      string                `yaml:"kind" json:"kind"`
	Validate  string                `yaml:"validate,omitempty" json:"validate,omitempty"`
	MinDigits int                   `yaml:"min_digits,omitempty" json:"min_digits,omitempty"`
	MaxDigits int                   `yaml:"max_digits,omitempty" json:"max_digits,omitempty"`
	Capture   string                `yaml:"capture,omitempty" json:"capture,omitempty"`
	Patterns  []CustomPatternConfig `yaml:"patterns" json:"patterns"`
}

// CustomPatternConfig is a single regex pattern within a custom recognizer.
type CustomPatternConfig struct {
	Name       string  `yaml:"name" json:"name"`
	Regex      string  `yaml:"regex" json:"regex"`
	Confidence float64 `yaml:"confidence,omitempty" json:"confidence,omitempty"`
}

// StrictConfig sets hard failure conditions evaluated after a run. A deny
// decision stops the plan from being accepted, not the detection itself.
type StrictConfig struct {
	FailOnSkipped   bool     `yaml:"fail_on_skipped,omitempty" json:"fail_on_skipped,omitempty"`
	FailOnUncovered bool     `yaml:"fail_on_uncovered,omitempty" json:"fail_on_uncovered,omitempty"`
	MaxSkipped      int      `yaml:"max_skipped,omitempty" json:"max_skipped,omitempty"`
	RequiredKinds   []string `yaml:"required_kinds,omitempty" json:"required_kinds,omitempty"`
}

// AuditConfig controls audit record retention and detail.
type AuditConfig struct {
	RetentionDays int  `yaml:"retention_days,omitempty" json:"retention_days,omitempty"`
	IncludeSpans  bool `yaml:"include_spans,omitempty" json:"include_spans,omitempty"`
}

// ComputeHash generates SHA-256 hash of policy content and sets
// the VersionTag to "{profile.version}:sha256:{first8chars}".
func (p *Policy) ComputeHash(content []byte) {
	hash := sha256.Sum256(content)
	p.Hash = hex.EncodeToString(hash[:])
	p.VersionTag = fmt.Sprintf("%s:sha256:%s", p.Profile.Version, p.Hash[:8])
}

// DefaultPolicy returns the permissive policy used when no policy file is
// configured: every kind, no confidence floor, nothing denied. Callers that
// were given an explicit policy path should use LoadPolicy and treat a
// missing file as an error instead.
func DefaultPolicy() *Policy {
	pol := &Policy{
		Profile: ProfileConfig{
			Name:    "default",
			Version: "0.0.0",
		},
		Redaction: &RedactionConfig{},
		Strict:    &StrictConfig{},
		Audit:     &AuditConfig{RetentionDays: 2555},
	}
	pol.ComputeHash([]byte("default"))
	return pol
}

// KindWarning describes a kind name in the policy that no recognizer reports.
type KindWarning struct {
	Field   string
	Message string
}

// knownKinds is the set of kind names the built-in recognizers report.
// Policies may reference other names (a custom recognizer's declared kind
// passes through verbatim), but a typo here silently redacts nothing, so
// the loader surfaces unknown names as warnings.
var knownKinds = map[string]bool{
	"ssn":                 true,
	"credit_card":         true,
	"routing_number":      true,
	"account_number":      true,
	"credit_score":        true,
	"credit_score_rating": true,
	"email":               true,
	"phone_number":        true,
	"other":               true,
}

// ValidateKinds checks kind names referenced by the redaction and strict
// sections against the built-in kind set. Returns warnings, never errors:
// a policy with custom recognizers legitimately names kinds this module
// does not enumerate.
func ValidateKinds(p *Policy) []KindWarning {
	var warnings []KindWarning

	custom := make(map[string]bool)
	if p.Redaction != nil {
		for _, c := range p.Redaction.CustomRecognizers {
			custom[c.Kind] = true
		}
	}

	check := func(field string, names []string) {
		for _, name := range names {
			if !knownKinds[name] && !custom[name] {
				warnings = append(warnings, KindWarning{
					Field:   field,
					Message: fmt.Sprintf("kind %q is not reported by any built-in or custom recognizer", name),
				})
			}
		}
	}

	if p.Redaction != nil {
		check("redaction.kinds", p.Redaction.Kinds)
		check("redaction.disabled_kinds", p.Redaction.DisabledKinds)
	}
	if p.Strict != nil {
		check("strict.required_kinds", p.Strict.RequiredKinds)
	}
	return warnings
}
