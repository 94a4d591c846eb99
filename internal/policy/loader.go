package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	redacterotel "github.com/redacter-man/pii-redacter/internal/otel"
)

var tracer = redacterotel.Tracer("github.com/redacter-man/pii-redacter/internal/policy")

// ResolvePathUnderBase resolves path relative to baseDir and returns an absolute path
// that is guaranteed to be under baseDir. Prevents path traversal when path is
// user-controlled (e.g. a policy path taken from an HTTP request). If path is
// absolute, it must still be under baseDir.
func ResolvePathUnderBase(baseDir, path string) (string, error) {
	dirAbs, err := filepath.Abs(filepath.Clean(baseDir))
	if err != nil {
		return "", fmt.Errorf("policy base directory: %w", err)
	}
	full := path
	if !filepath.IsAbs(path) {
		full = filepath.Join(dirAbs, path)
	}
	full = filepath.Clean(full)
	pathAbs, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("policy path: %w", err)
	}
	rel, err := filepath.Rel(dirAbs, pathAbs)
	if err != nil {
		return "", fmt.Errorf("policy path outside base directory")
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("policy path outside base directory")
	}
	return pathAbs, nil
}

// LoadPolicy loads and validates a redacter.policy.yaml file.
// baseDir is the directory path is resolved against; the resolved path must stay under baseDir.
// If baseDir is empty, the current working directory is used.
// If strict is true, additional business-rule validation is applied.
func LoadPolicy(ctx context.Context, path string, strict bool, baseDir string) (*Policy, error) {
	_, span := tracer.Start(ctx, "policy.load")
	defer span.End()

	span.SetAttributes(
		attribute.String("policy.path", path),
		attribute.Bool("policy.strict", strict),
	)

	if baseDir == "" {
		var err error
		baseDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("policy base directory: %w", err)
		}
	}
	safePath, err := ResolvePathUnderBase(baseDir, path)
	if err != nil {
		return nil, fmt.Errorf("policy path: %w", err)
	}

	content, err := os.ReadFile(safePath)
	if err != nil {
		return nil, fmt.Errorf("reading policy file %s: %w", safePath, err)
	}

	if err := ValidateSchema(content, strict); err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}

	var pol Policy
	if err := yaml.Unmarshal(content, &pol); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	pol.ComputeHash(content)
	applyDefaults(&pol)

	// Kind names that match no recognizer silently redact nothing; surface
	// them but do not fail the load.
	for _, w := range ValidateKinds(&pol) {
		log.Debug().
			Str("field", w.Field).
			Str("profile", pol.Profile.Name).
			Msg(w.Message)
		span.AddEvent("kind_warning", trace.WithAttributes(
			attribute.String("field", w.Field),
			attribute.String("warning", w.Message),
		))
	}

	span.SetAttributes(
		attribute.String("policy.profile_name", pol.Profile.Name),
		attribute.String("policy.version_tag", pol.VersionTag),
	)

	return &pol, nil
}

// applyDefaults fills in sensible defaults for optional sections.
func applyDefaults(p *Policy) {
	// Redaction: absent section means every built-in kind, no floor
	if p.Redaction == nil {
		p.Redaction = &RedactionConfig{}
	}

	// Strict: absent section means permissive (deny nothing)
	if p.Strict == nil {
		p.Strict = &StrictConfig{}
	}

	// Audit defaults (7-year retention for financial records)
	if p.Audit == nil {
		p.Audit = &AuditConfig{
			RetentionDays: 2555,
		}
	}
	if p.Audit.RetentionDays == 0 {
		p.Audit.RetentionDays = 2555
	}
}
