// Package pipeline orchestrates the redaction of extracted documents.
//
// A run executes in a fixed sequence: index the document → detect PII (or
// accept the caller's precomputed matches) → resolve spans onto tokens →
// evaluate the redaction policy → build renderer units. Every run produces a
// signed audit record, including runs that fail before resolution and runs
// the policy denies.
//
// Failure is document granular: a malformed token index or a policy denial
// fails that document and nothing else. Skipped matches never fail a run by
// themselves; they ride into the plan and the audit record, and strict
// policies may deny because of them.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/redacter-man/pii-redacter/internal/audit"
	"github.com/redacter-man/pii-redacter/internal/detect"
	"github.com/redacter-man/pii-redacter/internal/document"
	redacterotel "github.com/redacter-man/pii-redacter/internal/otel"
	"github.com/redacter-man/pii-redacter/internal/policy"
	"github.com/redacter-man/pii-redacter/internal/redact"
	"github.com/redacter-man/pii-redacter/internal/requestctx"
)

var tracer = redacterotel.Tracer("github.com/redacter-man/pii-redacter/internal/pipeline")

// Pipeline runs documents through detection, resolution, policy evaluation,
// and auditing. It is safe for concurrent use; every Process call works on
// its own document.
type Pipeline struct {
	detector *detect.Detector
	policy   *policy.Policy
	engine   *policy.Engine
	audit    *audit.Store
	caller   string
}

// Config holds the dependencies for constructing a Pipeline.
type Config struct {
	Detector *detect.Detector // optional; nil = only precomputed matches are mapped
	Policy   *policy.Policy
	Engine   *policy.Engine
	Audit    *audit.Store // optional; nil = no audit trail (tests, scan-only paths)
	Caller   string       // caller recorded when the context carries none
}

// New creates a pipeline with the given dependencies.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		detector: cfg.Detector,
		policy:   cfg.Policy,
		engine:   cfg.Engine,
		audit:    cfg.Audit,
		caller:   cfg.Caller,
	}
}

// Result is the outcome of one document run. Units is populated only when
// the policy allowed the run; Skipped is always populated so an incomplete
// pass is never silent. All fields carry kind names, offsets, and counts
// only, never matched text.
type Result struct {
	DocumentID string                 `json:"document_id"`
	RecordID   string                 `json:"record_id,omitempty"`
	Decision   policy.Decision        `json:"decision"`
	Units      []redact.RedactionUnit `json:"units,omitempty"`
	Skipped    []audit.SkippedMatch   `json:"skipped,omitempty"`
	Counts     audit.Counts           `json:"counts"`
	DurationMS int64                  `json:"duration_ms"`
}

// Process runs one document through the full sequence:
//  1. Index the document tokens
//  2. Detect PII, or take the caller's precomputed matches
//  3. Resolve match spans onto tokens
//  4. Evaluate the redaction policy
//  5. Build renderer units
//
// A nil presupplied slice means "run detection"; a non-nil empty slice is an
// explicit statement that the caller detected nothing. Precomputed matches
// pass through the policy's kind and confidence filters, which detection
// already honors.
//
// An index failure or a policy evaluation error returns a non-nil error. A
// policy denial is not an error: the result carries the deny decision and no
// units. Both outcomes are audited.
func (p *Pipeline) Process(ctx context.Context, doc *document.Document, presupplied []redact.Match) (*Result, error) {
	startTime := time.Now()

	caller := requestctx.Caller(ctx)
	if caller == "" {
		caller = p.caller
	}

	ctx, span := tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(redacterotel.DocumentAttributes(doc.ID, len(doc.Pages), doc.TokenCount())...))
	defer span.End()

	log.Info().
		Str("document_id", doc.ID).
		Str("caller", caller).
		Int("pages", len(doc.Pages)).
		Msg("document_run_started")

	rec := audit.NewRecord(doc.ID, caller)
	rec.Counts.Pages = len(doc.Pages)
	rec.Counts.Tokens = doc.TokenCount()

	// Step 1: Index the document tokens.
	idx, err := redact.NewIndex(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed token index")
		err = fmt.Errorf("token index: %w", err)
		p.recordFailure(ctx, rec, startTime, err)
		return nil, err
	}

	// Step 2: Detect PII, or take the caller's precomputed matches.
	matches := presupplied
	if matches == nil && p.detector != nil {
		matches = p.detector.Detect(doc.Text)
	}
	matches = filterMatches(p.policy, matches)

	// Step 3: Resolve match spans onto tokens.
	res := redact.Resolve(idx, matches)
	skipped := toSkipped(res.Skipped)

	rec.Counts.Matches = len(matches)
	rec.Counts.RedactedTokens = len(res.Tokens)
	rec.Counts.SkippedMatches = len(res.Skipped)

	// Step 4: Evaluate the redaction policy.
	decision, err := p.engine.Evaluate(ctx, buildRunFacts(doc, idx, matches, res))
	if err != nil {
		span.RecordError(err)
		err = fmt.Errorf("evaluating policy: %w", err)
		p.recordFailure(ctx, rec, startTime, err)
		return nil, err
	}

	span.SetAttributes(redacterotel.RunAttributes(
		len(matches), len(res.Tokens), len(res.Skipped), decision.Allowed)...)

	rec.Decision = audit.Decision{
		Allowed:       decision.Allowed,
		Action:        decision.Action,
		Reasons:       decision.Reasons,
		PolicyVersion: decision.PolicyVersion,
	}
	if p.policy != nil && p.policy.Audit != nil && p.policy.Audit.IncludeSpans {
		rec.Skipped = skipped
	}
	rec.DurationMS = time.Since(startTime).Milliseconds()

	result := &Result{
		DocumentID: doc.ID,
		Decision:   *decision,
		Skipped:    skipped,
		Counts:     rec.Counts,
		DurationMS: rec.DurationMS,
	}
	if p.putRecord(ctx, rec) {
		result.RecordID = rec.ID
	}

	if !decision.Allowed {
		span.SetStatus(codes.Error, "policy denied")
		log.Warn().
			Str("document_id", doc.ID).
			Strs("reasons", decision.Reasons).
			Msg("policy_denied")
		return result, nil
	}

	// Step 5: Build renderer units.
	result.Units = redact.BuildUnits(res)

	log.Info().
		Str("document_id", doc.ID).
		Str("record_id", result.RecordID).
		Int("redacted_tokens", len(res.Tokens)).
		Int("skipped_matches", len(res.Skipped)).
		Int64("duration_ms", result.DurationMS).
		Msg("document_run_completed")

	return result, nil
}

// recordFailure audits a run that died before a decision was reached. The
// record carries the error and whatever counts were known; the decision
// stays zero-valued.
func (p *Pipeline) recordFailure(ctx context.Context, rec *audit.Record, startTime time.Time, err error) {
	rec.Error = err.Error()
	rec.DurationMS = time.Since(startTime).Milliseconds()
	p.putRecord(ctx, rec)
}

// putRecord writes the audit record, reporting success. A write failure is
// logged and the run continues: the plan was already adjudicated, and a dead
// audit store must not turn allowed documents into failed ones.
func (p *Pipeline) putRecord(ctx context.Context, rec *audit.Record) bool {
	if p.audit == nil {
		return false
	}
	if err := p.audit.Put(ctx, rec); err != nil {
		log.Error().Err(err).
			Str("document_id", rec.DocumentID).
			Msg("audit_write_failed")
		return false
	}
	return true
}

// filterMatches applies the policy's kind selection and confidence floor to
// a match batch. A match without a recorded confidence is never dropped by
// the floor: absence of a score is not a low score.
func filterMatches(pol *policy.Policy, matches []redact.Match) []redact.Match {
	if pol == nil || pol.Redaction == nil || len(matches) == 0 {
		return matches
	}
	cfg := pol.Redaction

	enabled := make(map[redact.Kind]bool, len(cfg.Kinds))
	for _, k := range cfg.Kinds {
		enabled[redact.Kind(k)] = true
	}
	disabled := make(map[redact.Kind]bool, len(cfg.DisabledKinds))
	for _, k := range cfg.DisabledKinds {
		disabled[redact.Kind(k)] = true
	}

	kept := make([]redact.Match, 0, len(matches))
	for _, m := range matches {
		if len(enabled) > 0 && !enabled[m.Kind] {
			continue
		}
		if disabled[m.Kind] {
			continue
		}
		if cfg.MinConfidence > 0 && m.Confidence > 0 && m.Confidence < cfg.MinConfidence {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

// buildRunFacts assembles the policy-relevant summary of a run. Kinds carries
// every detected kind, including kinds whose matches were later skipped;
// UncoveredKinds the kinds of valid matches that overlapped zero tokens. Both
// are deduplicated and sorted so deny messages are deterministic.
func buildRunFacts(doc *document.Document, idx *redact.Index, matches []redact.Match, res *redact.Resolution) policy.RunFacts {
	kinds := make(map[string]bool, len(matches))
	uncovered := make(map[string]bool)
	for _, m := range matches {
		kinds[string(m.Kind)] = true
		if idx.CheckSpan(m.Start, m.End) != nil {
			continue
		}
		if len(idx.Query(m.Start, m.End)) == 0 {
			uncovered[string(m.Kind)] = true
		}
	}

	return policy.RunFacts{
		DocumentID:     doc.ID,
		PageCount:      len(doc.Pages),
		TokenCount:     doc.TokenCount(),
		MatchCount:     len(matches),
		RedactedTokens: len(res.Tokens),
		SkippedCount:   len(res.Skipped),
		Kinds:          sortedKeys(kinds),
		UncoveredKinds: sortedKeys(uncovered),
	}
}

// toSkipped projects resolver skips into kind/offset/reason form. The matched
// text is deliberately dropped: skips travel into plans and audit records,
// and neither may carry raw PII.
func toSkipped(skips []redact.SkippedMatch) []audit.SkippedMatch {
	if len(skips) == 0 {
		return nil
	}
	out := make([]audit.SkippedMatch, 0, len(skips))
	for _, s := range skips {
		out = append(out, audit.SkippedMatch{
			Kind:   string(s.Match.Kind),
			Start:  s.Match.Start,
			End:    s.Match.End,
			Reason: s.Err.Error(),
		})
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
