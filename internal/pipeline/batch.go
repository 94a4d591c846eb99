package pipeline

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/redacter-man/pii-redacter/internal/document"
	"github.com/redacter-man/pii-redacter/internal/redact"
)

// Source is one document entering a batch: where it came from, its decoded
// form, and optional precomputed matches. A source whose file could not be
// read or decoded carries the problem in Err and fails on its own.
type Source struct {
	Path         string
	Document     *document.Document
	Matches      []redact.Match
	SourcePages  int  // page count of the companion source file, when checked
	PageMismatch bool // token-map pages disagree with the companion file
	Err          error
}

// BatchResult reports the outcome of a single document within a batch run.
// On success (or policy denial) Result is populated; on failure Error
// describes the problem and Result is nil.
type BatchResult struct {
	Path         string  `json:"path,omitempty"`
	DocumentID   string  `json:"document_id,omitempty"`
	Result       *Result `json:"result,omitempty"`
	PageMismatch bool    `json:"page_mismatch,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// Failed reports whether the document failed: an intake or pipeline error,
// or a policy denial.
func (b *BatchResult) Failed() bool {
	return b.Error != "" || b.Result == nil || !b.Result.Decision.Allowed
}

// ProcessBatch runs every source through the pipeline with bounded
// concurrency, one worker per document up to the CPU count. Failure is
// document granular: a document that fails never stops the rest of the
// batch. Results come back in source order.
func (p *Pipeline) ProcessBatch(ctx context.Context, sources []Source) []BatchResult {
	results := make([]BatchResult, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(len(sources)))

	for i := range sources {
		g.Go(func() error {
			src := &sources[i]
			out := &results[i]
			out.Path = src.Path
			out.PageMismatch = src.PageMismatch
			if src.Document != nil {
				out.DocumentID = src.Document.ID
			}

			if src.Err != nil {
				out.Error = src.Err.Error()
				return nil
			}
			if err := gctx.Err(); err != nil {
				out.Error = err.Error()
				return nil
			}

			res, err := p.Process(gctx, src.Document, src.Matches)
			if err != nil {
				out.Error = err.Error()
				return nil
			}
			out.Result = res
			return nil
		})
	}

	// Workers never return errors; per-document failures ride in results.
	_ = g.Wait()

	return results
}

func workerCount(documentCount int) int {
	return max(min(runtime.NumCPU(), documentCount), 1)
}
