package pipeline

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/redacter-man/pii-redacter/internal/document"
)

// ReadSources expands paths into batch sources. A path may be a document
// JSON file, a zip archive of document JSON files, or a directory scanned
// non-recursively for both. Intake problems never abort the expansion: a
// path that cannot be read becomes a source carrying the error, so the
// batch reports it next to every other per-document outcome.
func ReadSources(paths ...string) []Source {
	var sources []Source
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			sources = append(sources, Source{Path: path, Err: fmt.Errorf("reading input: %w", err)})
			continue
		}
		if info.IsDir() {
			sources = append(sources, readDirectory(path)...)
			continue
		}
		sources = append(sources, readFile(path)...)
	}
	return sources
}

// readDirectory expands one directory level. Subdirectories are skipped so
// sweeping an intake directory never re-reads its processed/ and failed/
// children.
func readDirectory(dir string) []Source {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []Source{{Path: dir, Err: fmt.Errorf("reading input: %w", err)}}
	}
	var sources []Source
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".zip":
			sources = append(sources, readFile(filepath.Join(dir, entry.Name()))...)
		}
	}
	return sources
}

func readFile(path string) []Source {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return []Source{readDocument(path)}
	case ".zip":
		return readArchive(path)
	default:
		return []Source{{Path: path, Err: fmt.Errorf("unsupported input %s: only .json documents and .zip archives are accepted", path)}}
	}
}

// readDocument decodes one document file and, when the document names a
// companion source file, cross-checks its page count.
func readDocument(path string) Source {
	doc, err := document.DecodeFile(path)
	if err != nil {
		return Source{Path: path, Err: err}
	}
	src := Source{Path: path, Document: doc}
	if check := VerifySourcePages(doc, filepath.Dir(path)); check != nil {
		src.SourcePages = check.SourcePages
		src.PageMismatch = check.Mismatch
	}
	return src
}

// readArchive expands a zip archive of document JSON files. Entries are
// labeled archive.zip:entry.json so per-document outcomes stay addressable.
// Companion source files are not reachable from inside an archive, so no
// page cross-check runs for archive entries.
func readArchive(path string) []Source {
	r, err := zip.OpenReader(path)
	if err != nil {
		return []Source{{Path: path, Err: fmt.Errorf("opening archive: %w", err)}}
	}
	defer r.Close()

	var sources []Source
	for _, f := range r.File {
		if f.FileInfo().IsDir() || strings.ToLower(filepath.Ext(f.Name)) != ".json" {
			continue
		}
		label := path + ":" + f.Name
		rc, err := f.Open()
		if err != nil {
			sources = append(sources, Source{Path: label, Err: fmt.Errorf("opening archive entry: %w", err)})
			continue
		}
		doc, err := document.Decode(rc)
		rc.Close()
		if err != nil {
			sources = append(sources, Source{Path: label, Err: fmt.Errorf("%s: %w", label, err)})
			continue
		}
		if doc.ID == "" {
			base := filepath.Base(f.Name)
			doc.ID = strings.TrimSuffix(base, filepath.Ext(base))
		}
		sources = append(sources, Source{Path: label, Document: doc})
	}
	return sources
}

// PageCheck is the outcome of cross-checking a document against the
// companion file it was extracted from.
type PageCheck struct {
	SourcePages int
	Mismatch    bool
}

// VerifySourcePages cross-checks the token map against the companion PDF
// named by doc.Source, resolved relative to baseDir unless absolute. It
// returns nil when the document names no source, the source is not a PDF,
// or the file is not reachable. A page-count mismatch is evidence the
// extraction and the file drifted apart (wrong file, partial OCR); it is
// logged and flagged, never fatal, because the token map stays authoritative
// for offsets and geometry.
func VerifySourcePages(doc *document.Document, baseDir string) *PageCheck {
	if doc.Source == "" || strings.ToLower(filepath.Ext(doc.Source)) != ".pdf" {
		return nil
	}

	path := doc.Source
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	f, err := os.Open(path)
	if err != nil {
		log.Debug().
			Str("document_id", doc.ID).
			Str("source", doc.Source).
			Msg("source file not reachable, skipping page check")
		return nil
	}
	defer f.Close()

	count, err := api.PageCount(f, nil)
	if err != nil {
		log.Warn().Err(err).
			Str("document_id", doc.ID).
			Str("source", doc.Source).
			Msg("source_page_count_unreadable")
		return nil
	}

	check := &PageCheck{SourcePages: count, Mismatch: count != len(doc.Pages)}
	if check.Mismatch {
		log.Warn().
			Str("document_id", doc.ID).
			Str("source", doc.Source).
			Int("source_pages", count).
			Int("token_pages", len(doc.Pages)).
			Msg("source_page_count_mismatch")
	}
	return check
}
