// Package redact implements the span-to-token redaction mapping engine: a
// start-ordered index over token segments, a resolver that maps PII match
// spans onto tokens, and a builder that turns resolved tokens into
// renderer-ready redaction units.
//
// The package is a pure transformation layer: it performs no I/O, takes no
// locks, and mutates nothing but the Redacted flag on resolved tokens.
// Parallelism belongs to callers, one document per worker.
package redact

import (
	"fmt"
	"sort"

	"github.com/redacter-man/pii-redacter/internal/document"
)

// IndexedToken locates one token within its document: the page key the
// renderer needs, the page's position in the document, and the token's
// reading-order ordinal within that page. PageSeq and Ordinal together are
// the token's identity for deduplication and ordering.
type IndexedToken struct {
	PageKey string
	PageSeq int
	Ordinal int
	Token   *document.Token
}

// segmentRef is one token segment flattened into the index, pointing back at
// its token by position in Index.tokens.
type segmentRef struct {
	start, end int
	token      int
}

// Index is a start-ordered view over every token segment of one document.
// Build it once per document with NewIndex; query it once per match. The
// index holds references into the document's tokens, so the document must
// outlive it.
type Index struct {
	textLen  int
	tokens   []IndexedToken
	segments []segmentRef
}

// NewIndex flattens all tokens across all pages of doc into one sequence
// ordered by segment start. It fails with an error wrapping ErrMalformedIndex
// when any segment has start >= end, when any segment reaches outside the
// document text, or when two segments overlap — whether they belong to the
// same token or to different ones. Overlapping segments would break the
// sorted-order search below and could silently under-redact, so no partially
// correct index is ever returned.
func NewIndex(doc *document.Document) (*Index, error) {
	idx := &Index{textLen: len(doc.Text)}

	for p := range doc.Pages {
		page := &doc.Pages[p]
		for t := range page.Tokens {
			tok := &page.Tokens[t]
			ref := len(idx.tokens)
			idx.tokens = append(idx.tokens, IndexedToken{
				PageKey: page.Key,
				PageSeq: p,
				Ordinal: t,
				Token:   tok,
			})

			for s, seg := range tok.Segments {
				if seg.Start >= seg.End {
					return nil, fmt.Errorf("%w: page %q token %d segment %d: inverted range [%d,%d)",
						ErrMalformedIndex, page.Key, t, s, seg.Start, seg.End)
				}
				if seg.Start < 0 || seg.End > idx.textLen {
					return nil, fmt.Errorf("%w: page %q token %d segment %d: range [%d,%d) outside text of length %d",
						ErrMalformedIndex, page.Key, t, s, seg.Start, seg.End, idx.textLen)
				}
				for _, prev := range tok.Segments[:s] {
					if seg.Start < prev.End && prev.Start < seg.End {
						return nil, fmt.Errorf("%w: page %q token %d: segments [%d,%d) and [%d,%d) of the same token overlap",
							ErrMalformedIndex, page.Key, t, prev.Start, prev.End, seg.Start, seg.End)
					}
				}
				idx.segments = append(idx.segments, segmentRef{start: seg.Start, end: seg.End, token: ref})
			}
		}
	}

	sort.Slice(idx.segments, func(i, j int) bool {
		if idx.segments[i].start != idx.segments[j].start {
			return idx.segments[i].start < idx.segments[j].start
		}
		return idx.segments[i].end < idx.segments[j].end
	})

	// Start-sorted disjoint intervals have non-decreasing ends, which the
	// binary search in Query depends on. Adjacent disjointness implies
	// global disjointness.
	for i := 1; i < len(idx.segments); i++ {
		prev, cur := idx.segments[i-1], idx.segments[i]
		if cur.start < prev.end {
			a, b := idx.tokens[prev.token], idx.tokens[cur.token]
			return nil, fmt.Errorf("%w: segment [%d,%d) of page %q token %d overlaps segment [%d,%d) of page %q token %d",
				ErrMalformedIndex, cur.start, cur.end, b.PageKey, b.Ordinal, prev.start, prev.end, a.PageKey, a.Ordinal)
		}
	}

	return idx, nil
}

// TextLen returns the length of the text the index was built over.
func (idx *Index) TextLen() int { return idx.textLen }

// CheckSpan validates a match span against the indexed text. Zero-length
// spans fail with ErrInvalidSpan; spans reaching outside [0, len(text)] or
// with end < start fail with ErrOutOfRangeSpan.
func (idx *Index) CheckSpan(start, end int) error {
	if start == end {
		return fmt.Errorf("%w: zero-length span at offset %d", ErrInvalidSpan, start)
	}
	if start < 0 || end < start || end > idx.textLen {
		return fmt.Errorf("%w: span [%d,%d) outside text of length %d", ErrOutOfRangeSpan, start, end, idx.textLen)
	}
	return nil
}

// Query returns, in document order, every token with at least one segment
// overlapping [start, end) under the overlaps rule. An empty result is not an
// error. Callers validate the span with CheckSpan first; Query itself assumes
// a well-formed span.
//
// The binary search finds the first segment whose end exceeds the match
// start; both overlap clauses imply end > start of the match, so no earlier
// segment can qualify. The forward scan runs while segment start <= match
// end — inclusive, because a segment beginning exactly at the match end is
// swept in by the rule.
func (idx *Index) Query(start, end int) []IndexedToken {
	i := sort.Search(len(idx.segments), func(i int) bool {
		return idx.segments[i].end > start
	})

	var hits []IndexedToken
	seen := make(map[int]struct{})
	for ; i < len(idx.segments) && idx.segments[i].start <= end; i++ {
		seg := idx.segments[i]
		if !overlaps(seg.start, seg.end, start, end) {
			continue
		}
		if _, dup := seen[seg.token]; dup {
			continue
		}
		seen[seg.token] = struct{}{}
		hits = append(hits, idx.tokens[seg.token])
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].PageSeq != hits[b].PageSeq {
			return hits[a].PageSeq < hits[b].PageSeq
		}
		return hits[a].Ordinal < hits[b].Ordinal
	})
	return hits
}

// overlaps reports whether the token segment [t0,t1) overlaps the match
// [m0,m1): true iff either match endpoint lies inside the segment. The rule
// is deliberately asymmetric and prefers over-redaction: a match that merely
// touches a segment's interior on either end marks the whole token, a match
// ending exactly where a segment begins sweeps that token in, and full
// containment is not required. The flip side, pinned by tests, is that a
// segment strictly inside a longer match — both match endpoints outside it —
// is not selected. Symmetric intersection would change redaction behavior;
// do not "fix" this.
func overlaps(t0, t1, m0, m1 int) bool {
	return (m0 >= t0 && m0 < t1) || (m1 >= t0 && m1 < t1)
}
