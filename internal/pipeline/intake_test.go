package pipeline

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redacter-man/pii-redacter/internal/document"
	"github.com/redacter-man/pii-redacter/internal/testutil"
)

func TestReadSources_SingleDocument(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteDocumentFile(t, dir, testutil.SampleDocument("intake-001"))

	sources := ReadSources(path)
	require.Len(t, sources, 1)
	require.NoError(t, sources[0].Err)
	assert.Equal(t, path, sources[0].Path)
	assert.Equal(t, "intake-001", sources[0].Document.ID)
	assert.Equal(t, 2, len(sources[0].Document.Pages))
}

func TestReadSources_Directory(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteDocumentFile(t, dir, testutil.SampleDocument("alpha"))
	testutil.WriteDocumentFile(t, dir, testutil.SampleDocument("beta"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a document"), 0o600))

	// Subdirectories must be skipped: an intake sweep never re-reads its own
	// processed/ children.
	processed := filepath.Join(dir, "processed")
	require.NoError(t, os.Mkdir(processed, 0o755))
	testutil.WriteDocumentFile(t, processed, testutil.SampleDocument("already-done"))

	sources := ReadSources(dir)
	require.Len(t, sources, 2)
	assert.Equal(t, "alpha", sources[0].Document.ID)
	assert.Equal(t, "beta", sources[1].Document.ID)
}

func TestReadSources_ZipArchive(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "bundle.zip")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, id := range []string{"zipped-a", "zipped-b"} {
		w, err := zw.Create("docs/" + id + ".json")
		require.NoError(t, err)
		require.NoError(t, document.Encode(w, testutil.SampleDocument(id)))
	}
	w, err := zw.Create("README.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("shipping manifest"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(archivePath, buf.Bytes(), 0o600))

	sources := ReadSources(archivePath)
	require.Len(t, sources, 2)
	assert.Equal(t, archivePath+":docs/zipped-a.json", sources[0].Path)
	assert.Equal(t, "zipped-a", sources[0].Document.ID)
	assert.Equal(t, "zipped-b", sources[1].Document.ID)
}

func TestReadSources_ZipEntryWithoutID(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "anon.zip")

	doc := testutil.SampleDocument("")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("statement.json")
	require.NoError(t, err)
	require.NoError(t, document.Encode(w, doc))
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(archivePath, buf.Bytes(), 0o600))

	sources := ReadSources(archivePath)
	require.Len(t, sources, 1)
	require.NoError(t, sources[0].Err)
	assert.Equal(t, "statement", sources[0].Document.ID)
}

func TestReadSources_Problems(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "nope.json")
	garbled := filepath.Join(dir, "garbled.json")
	require.NoError(t, os.WriteFile(garbled, []byte("{not json"), 0o600))
	text := filepath.Join(dir, "scan.txt")
	require.NoError(t, os.WriteFile(text, []byte("plain text"), 0o600))

	sources := ReadSources(missing, garbled, text)
	require.Len(t, sources, 3)

	require.Error(t, sources[0].Err)
	assert.Contains(t, sources[0].Err.Error(), "reading input")

	require.Error(t, sources[1].Err)
	assert.Contains(t, sources[1].Err.Error(), "decoding document")

	require.Error(t, sources[2].Err)
	assert.Contains(t, sources[2].Err.Error(), "unsupported input")
}

// minimalPDF assembles a syntactically complete PDF with the given number of
// empty pages. Object offsets are computed while writing so the xref table is
// correct and page-count extraction succeeds.
func minimalPDF(pages int) []byte {
	var b bytes.Buffer
	var offsets []int
	obj := func(s string) {
		offsets = append(offsets, b.Len())
		b.WriteString(s)
	}

	b.WriteString("%PDF-1.4\n")
	obj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	var kids strings.Builder
	for i := 0; i < pages; i++ {
		fmt.Fprintf(&kids, "%d 0 R ", 3+i)
	}
	obj(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [ %s] /Count %d >>\nendobj\n", kids.String(), pages))

	for i := 0; i < pages; i++ {
		obj(fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n", 3+i))
	}

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(offsets)+1)
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return b.Bytes()
}

func TestVerifySourcePages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two-pages.pdf"), minimalPDF(2), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "three-pages.pdf"), minimalPDF(3), 0o600))

	t.Run("no source named", func(t *testing.T) {
		doc := testutil.SampleDocument("check-none")
		assert.Nil(t, VerifySourcePages(doc, dir))
	})

	t.Run("source is not a pdf", func(t *testing.T) {
		doc := testutil.SampleDocument("check-tiff")
		doc.Source = "scan.tiff"
		assert.Nil(t, VerifySourcePages(doc, dir))
	})

	t.Run("source unreachable", func(t *testing.T) {
		doc := testutil.SampleDocument("check-missing")
		doc.Source = "gone.pdf"
		assert.Nil(t, VerifySourcePages(doc, dir))
	})

	t.Run("page counts agree", func(t *testing.T) {
		doc := testutil.SampleDocument("check-match")
		doc.Source = "two-pages.pdf"
		check := VerifySourcePages(doc, dir)
		require.NotNil(t, check)
		assert.Equal(t, 2, check.SourcePages)
		assert.False(t, check.Mismatch)
	})

	t.Run("page counts disagree", func(t *testing.T) {
		doc := testutil.SampleDocument("check-mismatch")
		doc.Source = "three-pages.pdf"
		check := VerifySourcePages(doc, dir)
		require.NotNil(t, check)
		assert.Equal(t, 3, check.SourcePages)
		assert.True(t, check.Mismatch)
	})
}

func TestReadSources_FlagsPageMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loan.pdf"), minimalPDF(5), 0o600))

	doc := testutil.SampleDocument("intake-mismatch")
	doc.Source = "loan.pdf"
	path := testutil.WriteDocumentFile(t, dir, doc)

	sources := ReadSources(path)
	require.Len(t, sources, 1)
	require.NoError(t, sources[0].Err)
	assert.Equal(t, 5, sources[0].SourcePages)
	assert.True(t, sources[0].PageMismatch)
}
