package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/redacter-man/pii-redacter/internal/audit"
	"github.com/redacter-man/pii-redacter/internal/config"
	"github.com/redacter-man/pii-redacter/internal/pipeline"
	"github.com/redacter-man/pii-redacter/internal/policy"
	"github.com/redacter-man/pii-redacter/internal/redact"
)

var (
	redactOut           string
	redactPolicyFile    string
	redactPatternsFile  string
	redactMatchesFile   string
	redactMinConfidence float64
)

var redactCmd = &cobra.Command{
	Use:   "redact [input...]",
	Short: "Redact documents and write redaction plans",
	Long: `Runs documents through detection, span resolution, and the redaction
policy, writing one <document-id>.plan.json per allowed document.

Inputs are document JSON files, zip archives of document JSON, or
directories (scanned one level deep for both). Failure is document
granular: a bad document fails alone and the exit status reports it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRedact,
}

func init() {
	redactCmd.Flags().StringVarP(&redactOut, "out", "o", "plans", "directory receiving plan files")
	redactCmd.Flags().StringVar(&redactPolicyFile, "policy", "", "policy file (default: policy_file from config, else built-in permissive)")
	redactCmd.Flags().StringVar(&redactPatternsFile, "patterns", "", "recognizer overlay YAML (default: patterns_file from config)")
	redactCmd.Flags().StringVar(&redactMatchesFile, "matches", "", "precomputed match JSON; detection is skipped (single document only)")
	redactCmd.Flags().Float64Var(&redactMinConfidence, "min-confidence", 0, "drop matches below this confidence (0 keeps the configured floor)")
	rootCmd.AddCommand(redactCmd)
}

func runRedact(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "redact")
	defer span.End()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	cfg.WarnIfDefaultKeys()

	pol, err := resolvePolicy(ctx, redactPolicyFile, cfg)
	if err != nil {
		return err
	}
	applyConfidenceFloor(pol, cfg, redactMinConfidence)

	patternsPath := redactPatternsFile
	if patternsPath == "" {
		patternsPath = cfg.PatternsFile
	}
	detector, err := policy.NewDetectorForPolicy(pol, patternsPath)
	if err != nil {
		return err
	}

	engine, err := policy.NewEngine(ctx, pol)
	if err != nil {
		return fmt.Errorf("policy engine: %w", err)
	}

	auditStore, err := audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer auditStore.Close()

	pipe := pipeline.New(pipeline.Config{
		Detector: detector,
		Policy:   pol,
		Engine:   engine,
		Audit:    auditStore,
		Caller:   "cli",
	})

	sources := pipeline.ReadSources(args...)
	if redactMatchesFile != "" {
		if err := attachMatches(sources, redactMatchesFile); err != nil {
			return err
		}
	}

	results := pipe.ProcessBatch(ctx, sources)
	plans := writePlans(ctx, results, redactOut)
	renderBatchResults(cmd.OutOrStdout(), results, plans)

	failed := 0
	for i := range results {
		if results[i].Failed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(results))
	}
	return nil
}

// resolvePolicy loads the policy file named by the flag, falling back to the
// configured policy_file and then to the built-in permissive default.
func resolvePolicy(ctx context.Context, flagPath string, cfg *config.Config) (*policy.Policy, error) {
	path := flagPath
	if path == "" {
		path = cfg.PolicyFile
	}
	if path == "" {
		return policy.DefaultPolicy(), nil
	}
	pol, err := policy.LoadPolicy(ctx, filepath.Base(path), false, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("loading policy: %w", err)
	}
	return pol, nil
}

// applyConfidenceFloor merges the config's global floor and the
// --min-confidence flag into the policy. The strongest floor wins.
func applyConfidenceFloor(pol *policy.Policy, cfg *config.Config, flag float64) {
	if pol.Redaction == nil {
		pol.Redaction = &policy.RedactionConfig{}
	}
	pol.Redaction.MinConfidence = max(pol.Redaction.MinConfidence, cfg.MinConfidence, flag)
}

// attachMatches reads a precomputed match file and binds it to the single
// source of the batch. An empty array is honored as "nothing was detected",
// so the document still runs, produces no units, and is audited.
func attachMatches(sources []pipeline.Source, path string) error {
	if len(sources) != 1 {
		return fmt.Errorf("--matches applies to exactly one input document (got %d)", len(sources))
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading match file: %w", err)
	}
	matches := []redact.Match{}
	if err := json.Unmarshal(content, &matches); err != nil {
		return fmt.Errorf("parsing match file %s: %w", path, err)
	}
	sources[0].Matches = matches
	return nil
}

// writePlans writes one plan file per allowed document and returns document
// ID -> plan path. A document whose plan cannot be written is marked failed:
// an adjudicated run with no artifact on disk did not complete.
func writePlans(ctx context.Context, results []pipeline.BatchResult, outDir string) map[string]string {
	plans := make(map[string]string)
	renderer := pipeline.PlanRenderer{Indent: true}
	for i := range results {
		res := &results[i]
		if res.Failed() {
			continue
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			res.Error = fmt.Sprintf("creating plan directory: %v", err)
			continue
		}
		var buf bytes.Buffer
		if err := renderer.Render(ctx, res.Result.Plan(), &buf); err != nil {
			res.Error = err.Error()
			continue
		}
		path := filepath.Join(outDir, res.DocumentID+".plan.json")
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			res.Error = fmt.Sprintf("writing plan: %v", err)
			continue
		}
		plans[res.DocumentID] = path
	}
	return plans
}

// renderBatchResults writes one summary line per document to w (testable).
func renderBatchResults(w io.Writer, results []pipeline.BatchResult, plans map[string]string) {
	redacted := 0
	failed := 0
	for i := range results {
		if results[i].Failed() {
			failed++
		} else {
			redacted++
		}
	}
	fmt.Fprintf(w, "Documents (%d redacted, %d failed):\n\n", redacted, failed)

	for i := range results {
		res := &results[i]
		name := res.DocumentID
		if name == "" {
			name = res.Path
		}
		switch {
		case res.Result == nil || res.Error != "":
			fmt.Fprintf(w, "  %s %s | %s\n", glyphFail, name, res.Error)
		case !res.Result.Decision.Allowed:
			fmt.Fprintf(w, "  %s %s | denied: %s\n", glyphFail, name, strings.Join(res.Result.Decision.Reasons, "; "))
		default:
			r := res.Result
			line := fmt.Sprintf("  %s %s | %d tokens redacted | %d skipped | %dms",
				glyphPass, name, r.Counts.RedactedTokens, r.Counts.SkippedMatches, r.DurationMS)
			if path, ok := plans[res.DocumentID]; ok {
				line += " | " + path
			}
			if res.PageMismatch {
				line += " [PAGE MISMATCH]"
			}
			fmt.Fprintln(w, line)
		}
	}
}
