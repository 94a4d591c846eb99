package trigger

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/redacter-man/pii-redacter/internal/pipeline"
)

const (
	processedDirName = "processed"
	failedDirName    = "failed"
)

// Sweeper processes the contents of an intake directory: every document
// file or archive is run through the pipeline, its plan written to the
// output directory, and the input moved to processed/ (all documents
// succeeded) or failed/ (anything went wrong). Files already swept live in
// those subdirectories and are never picked up again.
type Sweeper struct {
	pipeline  *pipeline.Pipeline
	intakeDir string
	outDir    string
	renderer  pipeline.PlanRenderer
}

// NewSweeper creates a sweeper over intakeDir that writes plans to outDir.
func NewSweeper(pipe *pipeline.Pipeline, intakeDir, outDir string) *Sweeper {
	return &Sweeper{
		pipeline:  pipe,
		intakeDir: intakeDir,
		outDir:    outDir,
		renderer:  pipeline.PlanRenderer{Indent: true},
	}
}

// Sweep runs one pass over the intake directory. Per-file failures move the
// file to failed/ and never abort the sweep; the returned error covers only
// an unreadable intake directory.
func (s *Sweeper) Sweep(ctx context.Context) error {
	entries, err := os.ReadDir(s.intakeDir)
	if err != nil {
		return fmt.Errorf("reading intake directory: %w", err)
	}

	files, failures := 0, 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".zip" {
			continue
		}
		files++
		if !s.sweepFile(ctx, filepath.Join(s.intakeDir, entry.Name())) {
			failures++
		}
	}

	if files == 0 {
		log.Debug().Str("dir", s.intakeDir).Msg("intake_sweep_empty")
		return nil
	}
	log.Info().
		Str("dir", s.intakeDir).
		Int("files", files).
		Int("failed", failures).
		Msg("intake_sweep_completed")
	return nil
}

// sweepFile processes one intake file and relocates it. Plans for documents
// that succeeded are written even when a sibling in the same archive failed,
// so a partly bad archive still yields its good plans while the archive
// itself lands in failed/ for inspection.
func (s *Sweeper) sweepFile(ctx context.Context, path string) bool {
	results := s.pipeline.ProcessBatch(ctx, pipeline.ReadSources(path))

	failed := false
	for i := range results {
		res := &results[i]
		if res.Failed() {
			failed = true
			event := log.Warn().Str("path", res.Path)
			if res.Error != "" {
				event = event.Str("error", res.Error)
			} else if res.Result != nil {
				event = event.Strs("reasons", res.Result.Decision.Reasons)
			}
			event.Msg("intake_document_failed")
			continue
		}
		if err := s.writePlan(ctx, res); err != nil {
			failed = true
			log.Error().Err(err).Str("document_id", res.DocumentID).Msg("plan_write_failed")
		}
	}

	s.relocate(path, failed)
	return !failed
}

func (s *Sweeper) writePlan(ctx context.Context, res *pipeline.BatchResult) error {
	if err := os.MkdirAll(s.outDir, 0o755); err != nil {
		return fmt.Errorf("creating plan directory: %w", err)
	}
	var buf bytes.Buffer
	if err := s.renderer.Render(ctx, res.Result.Plan(), &buf); err != nil {
		return err
	}
	path := filepath.Join(s.outDir, res.DocumentID+".plan.json")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing plan: %w", err)
	}
	log.Info().
		Str("document_id", res.DocumentID).
		Str("plan", path).
		Int("units", len(res.Result.Units)).
		Msg("plan_written")
	return nil
}

// relocate moves a swept file into processed/ or failed/ under the intake
// directory. A move failure only logs: leaving the file in place means the
// next sweep retries it, which beats losing it.
func (s *Sweeper) relocate(path string, failed bool) {
	sub := processedDirName
	if failed {
		sub = failedDirName
	}
	destDir := filepath.Join(s.intakeDir, sub)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		log.Error().Err(err).Str("dir", destDir).Msg("intake_relocate_failed")
		return
	}
	if err := os.Rename(path, filepath.Join(destDir, filepath.Base(path))); err != nil {
		log.Error().Err(err).Str("path", path).Msg("intake_relocate_failed")
	}
}
