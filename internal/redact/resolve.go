package redact

import "sort"

// ResolvedToken is one token selected for redaction together with every match
// kind that selected it, in first-seen order.
type ResolvedToken struct {
	IndexedToken
	DetectedAs []Kind
}

// SkippedMatch records a match the resolver rejected. Skips are local: the
// rest of the batch still resolves, and the skip must ride into plans and
// audit records so an incomplete pass is never silent.
type SkippedMatch struct {
	Match Match
	Err   error
}

// Resolution is the outcome of resolving one match batch: the tokens to
// redact, in document order, and every match that was skipped.
type Resolution struct {
	Tokens  []ResolvedToken
	Skipped []SkippedMatch
}

// Resolve maps a batch of matches onto indexed tokens. Each valid match
// queries the index and the results union into a set keyed by token identity,
// so a token overlapped by several matches appears exactly once. Zero-length
// spans are skipped with ErrInvalidSpan and spans outside the text with
// ErrOutOfRangeSpan; a skipped match never aborts the batch.
//
// The result does not depend on input order: matches drive the union through
// a copy sorted by (start, end, kind), which also makes DetectedAs tagging
// deterministic. The caller's slice is never reordered. Every resolved token
// gets its Redacted flag set — the engine's only mutation.
func Resolve(idx *Index, matches []Match) *Resolution {
	sorted := make([]Match, len(matches))
	copy(sorted, matches)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		if sorted[i].End != sorted[j].End {
			return sorted[i].End < sorted[j].End
		}
		return sorted[i].Kind < sorted[j].Kind
	})

	res := &Resolution{}
	type identity struct{ page, ordinal int }
	resolved := make(map[identity]int)

	for _, m := range sorted {
		if err := idx.CheckSpan(m.Start, m.End); err != nil {
			res.Skipped = append(res.Skipped, SkippedMatch{Match: m, Err: err})
			continue
		}
		for _, hit := range idx.Query(m.Start, m.End) {
			id := identity{hit.PageSeq, hit.Ordinal}
			if at, dup := resolved[id]; dup {
				res.Tokens[at].DetectedAs = appendKind(res.Tokens[at].DetectedAs, m.Kind)
				continue
			}
			hit.Token.Redacted = true
			resolved[id] = len(res.Tokens)
			res.Tokens = append(res.Tokens, ResolvedToken{IndexedToken: hit, DetectedAs: []Kind{m.Kind}})
		}
	}

	sort.Slice(res.Tokens, func(i, j int) bool {
		if res.Tokens[i].PageSeq != res.Tokens[j].PageSeq {
			return res.Tokens[i].PageSeq < res.Tokens[j].PageSeq
		}
		return res.Tokens[i].Ordinal < res.Tokens[j].Ordinal
	})
	return res
}

// Kinds returns the distinct match kinds that resolved at least one token, in
// first-seen document order.
func (r *Resolution) Kinds() []Kind {
	var kinds []Kind
	for i := range r.Tokens {
		for _, k := range r.Tokens[i].DetectedAs {
			kinds = appendKind(kinds, k)
		}
	}
	return kinds
}

func appendKind(kinds []Kind, k Kind) []Kind {
	for _, have := range kinds {
		if have == k {
			return kinds
		}
	}
	return append(kinds, k)
}
