// Package detect implements the PII-detection collaborator: regex-driven
// recognizers that turn document text into match spans for the redaction
// engine. The engine core never decides what is PII — everything that does
// lives here, behind a []redact.Match boundary, so precomputed matches from
// another detector slot in the same way.
package detect

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/redacter-man/pii-redacter/internal/redact"
	"github.com/redacter-man/pii-redacter/internal/validate"
	"github.com/redacter-man/pii-redacter/patterns"
)

// recognizer is the compiled runtime form of a RecognizerConfig.
type recognizer struct {
	name      string
	kind      redact.Kind
	gate      string
	minDigits int
	maxDigits int
	capture   string
	patterns  []compiledPattern
}

type compiledPattern struct {
	name       string
	re         *regexp.Regexp
	confidence float64
}

// Option configures a Detector.
type Option func(*detectorConfig)

type detectorConfig struct {
	patternFiles  []string
	custom        []RecognizerConfig
	enabledKinds  []redact.Kind
	disabledKinds []redact.Kind
	minConfidence float64
}

// WithPatternFile overlays recognizers from a YAML pattern file on top of the
// embedded defaults. Repeatable: later files override earlier ones by
// recognizer name. A missing file is a no-op.
func WithPatternFile(path string) Option {
	return func(c *detectorConfig) { c.patternFiles = append(c.patternFiles, path) }
}

// WithCustomRecognizers overlays caller-supplied recognizers on top of the
// defaults and the pattern file.
func WithCustomRecognizers(recognizers ...RecognizerConfig) Option {
	return func(c *detectorConfig) { c.custom = append(c.custom, recognizers...) }
}

// WithEnabledKinds keeps only recognizers for the given kinds.
func WithEnabledKinds(kinds ...redact.Kind) Option {
	return func(c *detectorConfig) { c.enabledKinds = append(c.enabledKinds, kinds...) }
}

// WithDisabledKinds removes recognizers for the given kinds.
func WithDisabledKinds(kinds ...redact.Kind) Option {
	return func(c *detectorConfig) { c.disabledKinds = append(c.disabledKinds, kinds...) }
}

// WithMinConfidence drops patterns scored below f before they run.
func WithMinConfidence(f float64) Option {
	return func(c *detectorConfig) { c.minConfidence = f }
}

// Detector matches PII recognizers against document text. Safe for
// concurrent use once built.
type Detector struct {
	recognizers   []recognizer
	minConfidence float64
}

// NewDetector builds a detector from the embedded default recognizers, an
// optional pattern file, and any custom recognizers, merged in that order by
// recognizer name.
func NewDetector(opts ...Option) (*Detector, error) {
	var cfg detectorConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	defaults, err := ParseRecognizerFile(patterns.PIIFinancialYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded recognizers: %w", err)
	}

	layers := [][]RecognizerConfig{defaults}
	for _, path := range cfg.patternFiles {
		fileRecognizers, err := LoadRecognizerFile(path)
		if err != nil {
			return nil, err
		}
		layers = append(layers, fileRecognizers)
	}
	layers = append(layers, cfg.custom)

	merged := MergeRecognizers(layers...)
	merged = FilterByKinds(merged, cfg.enabledKinds, cfg.disabledKinds)

	recs, err := compileRecognizers(merged)
	if err != nil {
		return nil, err
	}

	return &Detector{recognizers: recs, minConfidence: cfg.minConfidence}, nil
}

// MustNewDetector is NewDetector for callers whose recognizer set is static;
// it panics on error.
func MustNewDetector(opts ...Option) *Detector {
	d, err := NewDetector(opts...)
	if err != nil {
		panic(fmt.Sprintf("detect: %v", err))
	}
	return d
}

// Kinds returns the distinct kinds the detector can report, in recognizer
// order.
func (d *Detector) Kinds() []redact.Kind {
	var kinds []redact.Kind
	seen := make(map[redact.Kind]bool)
	for i := range d.recognizers {
		k := d.recognizers[i].kind
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// candidate is one regex hit before the sweep decides whether it is emitted.
// The consumed span is the full regex match; the emitted span is capture
// group 1 in capture-value mode.
type candidate struct {
	start, end int // consumed span
	emitStart  int
	emitEnd    int
	order      int // recognizer position, ties at equal start
	gateOK     bool
	kind       redact.Kind
	confidence float64
}

// Detect scans text and returns matches sorted by (start, end, kind).
//
// Candidates from all recognizers sweep left to right the way one combined
// alternation would scan: at each position the earliest recognizer wins, the
// winner consumes its span, and every candidate starting inside a consumed
// span is suppressed — so a bare 16-digit run is an account number, never
// also a card or a phone number. A candidate that fails its checksum gate
// still consumes its span but is not emitted; gates adjust what comes out,
// they never raise.
func (d *Detector) Detect(text string) []redact.Match {
	var cands []candidate

	for i := range d.recognizers {
		rec := &d.recognizers[i]
		for _, p := range rec.patterns {
			if p.confidence < d.minConfidence {
				continue
			}
			for _, loc := range findSpans(p.re, text, rec.capture == captureValue) {
				if loc[2] < 0 || loc[2] >= loc[3] {
					continue
				}
				cands = append(cands, candidate{
					start:      loc[0],
					end:        loc[1],
					emitStart:  loc[2],
					emitEnd:    loc[3],
					order:      i,
					gateOK:     rec.admit(text[loc[2]:loc[3]]),
					kind:       rec.kind,
					confidence: p.confidence,
				})
			}
		}
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].start != cands[j].start {
			return cands[i].start < cands[j].start
		}
		if cands[i].order != cands[j].order {
			return cands[i].order < cands[j].order
		}
		return cands[i].end < cands[j].end
	})

	var out []redact.Match
	consumed := -1
	for _, c := range cands {
		if c.start < consumed {
			continue
		}
		consumed = c.end
		if !c.gateOK {
			continue
		}
		out = append(out, redact.Match{
			Kind:       c.kind,
			Start:      c.emitStart,
			End:        c.emitEnd,
			Text:       text[c.emitStart:c.emitEnd],
			Confidence: c.confidence,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		if out[i].End != out[j].End {
			return out[i].End < out[j].End
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// admit applies the recognizer's checksum gate to a candidate value.
func (r *recognizer) admit(value string) bool {
	switch r.gate {
	case gateLuhn:
		return validate.LuhnCheck(stripNonDigits(value))
	case gateDigits:
		return validate.FixedLengthDigits(value, r.minDigits, r.maxDigits)
	default:
		return true
	}
}

// findSpans returns [fullStart, fullEnd, emitStart, emitEnd] for every match
// of re in text. In capture-value mode the emitted span is capture group 1
// when it participated in the match, which keeps label prefixes such as
// "credit score:" out of the reported span while the full match still
// consumes its region during the sweep.
func findSpans(re *regexp.Regexp, text string, captureValue bool) [][4]int {
	if !captureValue {
		locs := re.FindAllStringIndex(text, -1)
		spans := make([][4]int, 0, len(locs))
		for _, l := range locs {
			spans = append(spans, [4]int{l[0], l[1], l[0], l[1]})
		}
		return spans
	}
	subs := re.FindAllStringSubmatchIndex(text, -1)
	spans := make([][4]int, 0, len(subs))
	for _, s := range subs {
		if len(s) >= 4 && s[2] >= 0 {
			spans = append(spans, [4]int{s[0], s[1], s[2], s[3]})
		} else {
			spans = append(spans, [4]int{s[0], s[1], s[0], s[1]})
		}
	}
	return spans
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
