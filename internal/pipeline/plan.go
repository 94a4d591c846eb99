package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/redacter-man/pii-redacter/internal/audit"
	"github.com/redacter-man/pii-redacter/internal/document"
	"github.com/redacter-man/pii-redacter/internal/policy"
	"github.com/redacter-man/pii-redacter/internal/redact"
)

// Plan is the renderer-facing output of one allowed run: the units to paint,
// the matches that could not be mapped, and the decision that let the plan
// through. Like everything downstream of resolution it carries offsets and
// kind names only.
type Plan struct {
	DocumentID string                 `json:"document_id"`
	Units      []redact.RedactionUnit `json:"units"`
	Skipped    []audit.SkippedMatch   `json:"skipped,omitempty"`
	Decision   policy.Decision        `json:"decision"`
}

// Plan returns the renderer-facing plan for this result, or nil for a denied
// run: a denied document has no plan to emit.
func (r *Result) Plan() *Plan {
	if !r.Decision.Allowed {
		return nil
	}
	return &Plan{
		DocumentID: r.DocumentID,
		Units:      r.Units,
		Skipped:    r.Skipped,
		Decision:   r.Decision,
	}
}

// Extractor produces documents from an input stream. The JSON implementation
// reads the extraction wire format directly; OCR and text-layer extractors
// live behind the same interface in the tools that produce these files.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader) (*document.Document, error)
}

// JSONExtractor decodes documents in the extraction wire format.
type JSONExtractor struct{}

// Extract implements Extractor.
func (JSONExtractor) Extract(_ context.Context, r io.Reader) (*document.Document, error) {
	return document.Decode(r)
}

// Renderer consumes a plan. The built-in renderer emits the plan itself as
// JSON; a rasterizing renderer that paints polygons and strips glyphs sits
// outside this module behind the same interface.
type Renderer interface {
	Render(ctx context.Context, plan *Plan, w io.Writer) error
}

// PlanRenderer writes the machine-readable redaction plan as JSON.
type PlanRenderer struct {
	Indent bool
}

// Render implements Renderer.
func (p PlanRenderer) Render(_ context.Context, plan *Plan, w io.Writer) error {
	enc := json.NewEncoder(w)
	if p.Indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(plan); err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}
	return nil
}
