package redact

import (
	"sort"

	"github.com/redacter-man/pii-redacter/internal/document"
)

// RedactionUnit instructs the renderer to redact one token: the owning page
// key, the token's reading-order ordinal on that page, and the union of the
// token's bounding polygons. A multi-segment token contributes all of its
// polygons to one unit; the renderer draws one opaque rectangle per polygon,
// all belonging to the same logical redaction. Units reference token geometry
// rather than owning it and live only for the duration of one pass. They
// carry offsets and kinds but never the matched text, so serialized plans
// hold no raw PII.
type RedactionUnit struct {
	Page         string             `json:"page"`
	TokenOrdinal int                `json:"token"`
	Polygons     []document.Polygon `json:"polygons"`
	DetectedAs   []Kind             `json:"detected_as,omitempty"`
}

// BuildUnits converts a resolution into renderer-ready units grouped by page
// in page order and, within a page, by token reading-order ordinal. The
// output is order-stable and duplicate-free: building twice from the same
// resolution yields identical slices, required so the renderer applies
// redactions deterministically and tests can assert exact ordering.
func BuildUnits(res *Resolution) []RedactionUnit {
	tokens := make([]ResolvedToken, len(res.Tokens))
	copy(tokens, res.Tokens)
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].PageSeq != tokens[j].PageSeq {
			return tokens[i].PageSeq < tokens[j].PageSeq
		}
		return tokens[i].Ordinal < tokens[j].Ordinal
	})

	units := make([]RedactionUnit, 0, len(tokens))
	for i := range tokens {
		t := &tokens[i]
		if i > 0 && tokens[i-1].PageSeq == t.PageSeq && tokens[i-1].Ordinal == t.Ordinal {
			continue
		}
		units = append(units, RedactionUnit{
			Page:         t.PageKey,
			TokenOrdinal: t.Ordinal,
			Polygons:     t.Token.Polygons,
			DetectedAs:   append([]Kind(nil), t.DetectedAs...),
		})
	}
	return units
}
