package policy

import (
	"fmt"
	"strings"

	"github.com/redacter-man/pii-redacter/internal/detect"
	"github.com/redacter-man/pii-redacter/internal/redact"
)

// DetectorOptions builds detect.Option values from the policy's redaction
// section so that kinds, disabled_kinds, min_confidence, and
// custom_recognizers are applied at runtime.
// globalPatternFile is optional (e.g. ~/.redacter/patterns.yaml); use "" to skip.
// Call detect.NewDetector(opts...) to obtain a policy-aware detector.
func DetectorOptions(cfg *RedactionConfig, globalPatternFile string) []detect.Option {
	var opts []detect.Option
	if globalPatternFile != "" {
		opts = append(opts, detect.WithPatternFile(globalPatternFile))
	}
	if cfg == nil {
		return opts
	}
	if cfg.PatternFile != "" {
		opts = append(opts, detect.WithPatternFile(cfg.PatternFile))
	}
	if len(cfg.CustomRecognizers) > 0 {
		opts = append(opts, detect.WithCustomRecognizers(ToDetectRecognizers(cfg.CustomRecognizers)...))
	}
	if len(cfg.Kinds) > 0 {
		opts = append(opts, detect.WithEnabledKinds(toKinds(cfg.Kinds)...))
	}
	if len(cfg.DisabledKinds) > 0 {
		opts = append(opts, detect.WithDisabledKinds(toKinds(cfg.DisabledKinds)...))
	}
	if cfg.MinConfidence > 0 {
		opts = append(opts, detect.WithMinConfidence(cfg.MinConfidence))
	}
	return opts
}

// NewDetectorForPolicy returns a detector configured from the policy's
// redaction section. Use this whenever a Policy is available so per-profile
// settings are not ignored.
// globalPatternFile is optional (e.g. ~/.redacter/patterns.yaml); use "" to skip.
func NewDetectorForPolicy(pol *Policy, globalPatternFile string) (*detect.Detector, error) {
	var opts []detect.Option
	if pol != nil {
		opts = DetectorOptions(pol.Redaction, globalPatternFile)
	} else if globalPatternFile != "" {
		opts = []detect.Option{detect.WithPatternFile(globalPatternFile)}
	}
	det, err := detect.NewDetector(opts...)
	if err != nil {
		return nil, fmt.Errorf("building detector from policy: %w", err)
	}
	return det, nil
}

// ToDetectRecognizers converts policy custom recognizers (from
// redaction.custom_recognizers) into detect.RecognizerConfig.
func ToDetectRecognizers(custom []CustomRecognizerConfig) []detect.RecognizerConfig {
	if len(custom) == 0 {
		return nil
	}
	out := make([]detect.RecognizerConfig, 0, len(custom))
	for i := range custom {
		c := &custom[i]
		patterns := make([]detect.PatternConfig, 0, len(c.Patterns))
		for _, p := range c.Patterns {
			patterns = append(patterns, detect.PatternConfig{
				Name:       p.Name,
				Regex:      p.Regex,
				Confidence: p.Confidence,
			})
		}
		out = append(out, detect.RecognizerConfig{
			Name:      c.Name,
			Kind:      c.Kind,
			Validate:  c.Validate,
			MinDigits: c.MinDigits,
			MaxDigits: c.MaxDigits,
			Capture:   c.Capture,
			Patterns:  patterns,
		})
	}
	return out
}

// toKinds lowercases kind names so policy casing never decides whether a
// filter matches.
func toKinds(names []string) []redact.Kind {
	kinds := make([]redact.Kind, 0, len(names))
	for _, name := range names {
		kinds = append(kinds, redact.Kind(strings.ToLower(name)))
	}
	return kinds
}
