package redact

import "errors"

// Failure taxonomy for index construction and span resolution. Construction
// sites wrap these with fmt.Errorf("%w: ...") context; callers classify with
// errors.Is.
var (
	// ErrMalformedIndex means token or segment data violates the data-model
	// invariants: inverted or out-of-bounds ranges, or overlapping segments.
	// Fatal for the document — no index is returned, and the document must
	// be surfaced to the operator rather than silently skipped.
	ErrMalformedIndex = errors.New("malformed token index")

	// ErrInvalidSpan rejects a zero-length match span. A span that cannot
	// overlap anything signals an upstream detector bug.
	ErrInvalidSpan = errors.New("invalid match span")

	// ErrOutOfRangeSpan rejects a match span that reaches outside the
	// document text. The resolver never clamps; clamping would hide
	// detector defects.
	ErrOutOfRangeSpan = errors.New("match span out of range")
)
