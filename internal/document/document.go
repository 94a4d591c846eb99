// Package document defines the data model shared by the redaction engine and
// its collaborators: a Document owns Pages, Pages own Tokens, and every Token
// anchors one or more text Segments to a bounding Polygon on its page.
//
// Offsets are the single source of truth. Document.Text is the full
// reconstructed reading-order text and every Segment is a half-open
// [start, end) range into it; nothing in this module re-derives spans from
// rendered or reconstructed line strings.
package document

// Document is one extracted document: the full reading-order text plus the
// per-page tokens anchored into it. Documents are produced by an extraction
// collaborator (a text-layer reader or OCR engine) and are immutable inputs
// to the engine, except for the per-token Redacted flag.
type Document struct {
	// ID identifies the document in plans, logs, and audit records.
	ID string `json:"id"`
	// Source optionally names the companion file the tokens were extracted
	// from (e.g. the original PDF). Used for cross-checks only; the text and
	// offsets in this document remain authoritative.
	Source string `json:"source,omitempty"`
	// Text is the full reconstructed document text in reading order.
	Text string `json:"text"`
	// Pages in reading order.
	Pages []Page `json:"pages"`
}

// Page groups the tokens of one renderable surface. Key is any stable
// identifier the renderer can resolve back to that surface; it need not be a
// physical page number.
type Page struct {
	Key    string  `json:"key"`
	Tokens []Token `json:"tokens"`
}

// Token is the smallest unit of redaction: a word-like span carrying one or
// more text segments and one bounding polygon per segment. A token split
// across extraction shards has one segment and one polygon per physical
// occurrence; together they represent a single logical unit.
type Token struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Polygons []Polygon `json:"polygons"`
	// Redacted is set by the engine when the token is resolved for
	// redaction. It is the only mutation a token undergoes after extraction.
	Redacted bool `json:"redacted,omitempty"`
}

// Segment is one contiguous [Start, End) occurrence of a token's text within
// Document.Text.
type Segment struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Polygon is the bounding geometry of one segment on its page, as an ordered
// vertex list.
type Polygon []Point

// Point is a polygon vertex in page coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TokenCount returns the number of tokens across all pages.
func (d *Document) TokenCount() int {
	n := 0
	for i := range d.Pages {
		n += len(d.Pages[i].Tokens)
	}
	return n
}

// Rect builds the four-vertex polygon for an axis-aligned bounding box given
// as top-left and bottom-right corners. Extraction adapters that only know
// rectangles use it to produce polygon geometry.
func Rect(x0, y0, x1, y1 float64) Polygon {
	return Polygon{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}
