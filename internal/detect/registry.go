package detect

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/redacter-man/pii-redacter/internal/redact"
)

// Gate names accepted in a recognizer's validate field.
const (
	gateNone   = "none"
	gateLuhn   = "luhn"
	gateDigits = "digits"
)

// Capture modes accepted in a recognizer's capture field.
const (
	captureMatch = "match"
	captureValue = "value"
)

// RecognizerFile is the top-level YAML structure for a recognizer pattern
// file.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig declares one PII recognizer: the kind it reports, one or
// more regex patterns, an optional checksum gate, and an optional capture
// mode. Recognizer names are the merge key across configuration layers.
type RecognizerConfig struct {
	Name      string          `yaml:"name" json:"name"`
	Kind      string          `yaml:"kind" json:"kind"`
	Enabled   *bool           `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns  []PatternConfig `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	Validate  string          `yaml:"validate,omitempty" json:"validate,omitempty"`
	MinDigits int             `yaml:"min_digits,omitempty" json:"min_digits,omitempty"`
	MaxDigits int             `yaml:"max_digits,omitempty" json:"max_digits,omitempty"`
	Capture   string          `yaml:"capture,omitempty" json:"capture,omitempty"`
}

// PatternConfig is a single regex pattern within a recognizer.
type PatternConfig struct {
	Name       string  `yaml:"name" json:"name"`
	Regex      string  `yaml:"regex" json:"regex"`
	Confidence float64 `yaml:"confidence" json:"confidence"`
}

// isEnabled returns true if the recognizer is enabled (defaults to true when
// nil).
func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// ParseRecognizerFile parses recognizer YAML bytes.
func ParseRecognizerFile(data []byte) ([]RecognizerConfig, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	for i := range rf.Recognizers {
		if err := rf.Recognizers[i].check(); err != nil {
			return nil, err
		}
	}
	return rf.Recognizers, nil
}

// LoadRecognizerFile reads and parses a recognizer YAML file from disk.
// Returns nil (not an error) if the file does not exist, so callers can treat
// a missing global pattern file as a no-op.
func LoadRecognizerFile(path string) ([]RecognizerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recognizer file %s: %w", path, err)
	}
	recs, err := ParseRecognizerFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

func (r *RecognizerConfig) check() error {
	if r.Name == "" {
		return fmt.Errorf("recognizer without a name")
	}
	if r.Kind == "" {
		return fmt.Errorf("recognizer %q: missing kind", r.Name)
	}
	if len(r.Patterns) == 0 {
		return fmt.Errorf("recognizer %q: no patterns", r.Name)
	}
	switch r.Validate {
	case "", gateNone, gateLuhn:
	case gateDigits:
		if r.MinDigits <= 0 || r.MaxDigits < r.MinDigits {
			return fmt.Errorf("recognizer %q: digits gate needs 0 < min_digits <= max_digits, got %d..%d",
				r.Name, r.MinDigits, r.MaxDigits)
		}
	default:
		return fmt.Errorf("recognizer %q: unknown validate %q", r.Name, r.Validate)
	}
	switch r.Capture {
	case "", captureMatch, captureValue:
	default:
		return fmt.Errorf("recognizer %q: unknown capture %q", r.Name, r.Capture)
	}
	return nil
}

// MergeRecognizers merges configuration layers: embedded defaults, then the
// global pattern file, then per-call custom recognizers. Later layers
// override earlier ones by recognizer name; new recognizers append, so
// first-seen order — which decides identical-span ties during detection — is
// stable.
func MergeRecognizers(layers ...[]RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig

	for _, layer := range layers {
		for _, rc := range layer {
			if idx, exists := index[rc.Name]; exists {
				merged[idx] = rc
			} else {
				index[rc.Name] = len(merged)
				merged = append(merged, rc)
			}
		}
	}
	return merged
}

// FilterByKinds applies enabled/disabled kind filters to a recognizer list.
// A non-empty enabled list keeps only matching kinds; then any recognizer
// whose kind is disabled is removed.
func FilterByKinds(recognizers []RecognizerConfig, enabled, disabled []redact.Kind) []RecognizerConfig {
	result := recognizers

	if len(enabled) > 0 {
		allowed := make(map[redact.Kind]bool, len(enabled))
		for _, k := range enabled {
			allowed[k] = true
		}
		var filtered []RecognizerConfig
		for _, r := range result {
			if allowed[kindFor(r.Kind)] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	if len(disabled) > 0 {
		blocked := make(map[redact.Kind]bool, len(disabled))
		for _, k := range disabled {
			blocked[k] = true
		}
		var filtered []RecognizerConfig
		for _, r := range result {
			if !blocked[kindFor(r.Kind)] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	return result
}

// compileRecognizers turns configs into the runtime recognizer list. Disabled
// recognizers are skipped; every regex compiles case-insensitively.
func compileRecognizers(configs []RecognizerConfig) ([]recognizer, error) {
	var recs []recognizer

	for _, rc := range configs {
		if !rc.isEnabled() {
			continue
		}
		rec := recognizer{
			name:      rc.Name,
			kind:      kindFor(rc.Kind),
			gate:      rc.Validate,
			minDigits: rc.MinDigits,
			maxDigits: rc.MaxDigits,
			capture:   rc.Capture,
		}
		if rec.gate == "" {
			rec.gate = gateNone
		}
		for _, p := range rc.Patterns {
			compiled, err := regexp.Compile("(?i)" + p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q in recognizer %q: %w", p.Name, rc.Name, err)
			}
			rec.patterns = append(rec.patterns, compiledPattern{
				name:       p.Name,
				re:         compiled,
				confidence: p.Confidence,
			})
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

var kindByName = map[string]redact.Kind{
	"ssn":                 redact.KindSSN,
	"credit_card":         redact.KindCreditCard,
	"routing_number":      redact.KindRoutingNumber,
	"account_number":      redact.KindAccountNumber,
	"credit_score":        redact.KindCreditScore,
	"credit_score_rating": redact.KindCreditScoreRating,
	"email":               redact.KindEmail,
	"phone_number":        redact.KindPhoneNumber,
	"other":               redact.KindOther,
}

// kindFor maps a pattern-file kind string to a match kind. Names outside the
// built-in set pass through lowercased, so a custom recognizer's declared
// kind survives into matches, kind filters, and policy rules unchanged.
func kindFor(name string) redact.Kind {
	lower := strings.ToLower(name)
	if k, ok := kindByName[lower]; ok {
		return k
	}
	return redact.Kind(lower)
}
