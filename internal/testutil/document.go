// Package testutil provides shared fixtures and helpers for redacter tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/redacter-man/pii-redacter/internal/document"
)

// BuildDocument assembles a document from pages of words. Words are joined
// with single spaces into the document text and each word becomes one
// single-segment token with a synthetic polygon, so offsets are computed
// rather than hand-maintained.
func BuildDocument(id string, pages ...[]string) *document.Document {
	doc := &document.Document{ID: id}
	var b strings.Builder
	for p, words := range pages {
		page := document.Page{Key: fmt.Sprintf("p%d", p+1)}
		y := float64(p) * 100
		for _, w := range words {
			if b.Len() > 0 {
				b.WriteString(" ")
			}
			start := b.Len()
			b.WriteString(w)
			page.Tokens = append(page.Tokens, document.Token{
				Text:     w,
				Segments: []document.Segment{{Start: start, End: b.Len()}},
				Polygons: []document.Polygon{document.Rect(float64(start), y, float64(b.Len()), y+12)},
			})
		}
		doc.Pages = append(doc.Pages, page)
	}
	doc.Text = b.String()
	return doc
}

// SampleDocument builds a two-page document carrying an SSN, an email, and a
// phone number, so the default recognizers find three matches covering four
// tokens.
func SampleDocument(id string) *document.Document {
	return BuildDocument(id,
		[]string{"Applicant:", "Jane", "Roe", "SSN", "123-45-6789", "applied", "for", "a", "loan."},
		[]string{"Contact:", "jane.roe@example.com", "or", "phone", "(651)", "555-0123."},
	)
}

// WriteDocumentFile encodes doc as <id>.json in dir and returns its path.
func WriteDocumentFile(t *testing.T, dir string, doc *document.Document) string {
	t.Helper()
	path := filepath.Join(dir, doc.ID+".json")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := document.Encode(f, doc); err != nil {
		t.Fatal(err)
	}
	return path
}
