package document

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Decode reads one document in the extraction wire format from r and checks
// its structural shape: non-empty unique page keys, at least one segment per
// token, and exactly one polygon per segment. Offset validity against Text is
// not checked here — that is the token index's job, so the failure taxonomy
// stays in one place.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	if err := doc.checkShape(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DecodeFile reads a document from path. A document without an id is given
// the file's base name, without extension.
func DecodeFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening document: %w", err)
	}
	defer f.Close()

	doc, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if doc.ID == "" {
		base := filepath.Base(path)
		doc.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return doc, nil
}

// Encode writes doc in the extraction wire format, indented for readability.
func Encode(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	return nil
}

func (d *Document) checkShape() error {
	seen := make(map[string]struct{}, len(d.Pages))
	for p := range d.Pages {
		page := &d.Pages[p]
		if page.Key == "" {
			return fmt.Errorf("document %q: page %d has an empty key", d.ID, p)
		}
		if _, dup := seen[page.Key]; dup {
			return fmt.Errorf("document %q: duplicate page key %q", d.ID, page.Key)
		}
		seen[page.Key] = struct{}{}

		for t := range page.Tokens {
			tok := &page.Tokens[t]
			if len(tok.Segments) == 0 {
				return fmt.Errorf("document %q: page %q token %d has no segments", d.ID, page.Key, t)
			}
			if len(tok.Polygons) != len(tok.Segments) {
				return fmt.Errorf("document %q: page %q token %d has %d polygons for %d segments",
					d.ID, page.Key, t, len(tok.Polygons), len(tok.Segments))
			}
		}
	}
	return nil
}
