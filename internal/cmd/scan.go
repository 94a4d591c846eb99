package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/redacter-man/pii-redacter/internal/config"
	"github.com/redacter-man/pii-redacter/internal/policy"
	"github.com/redacter-man/pii-redacter/internal/redact"
)

var scanJSON bool

var scanCmd = &cobra.Command{
	Use:   "scan [file|-]",
	Short: "Detect PII in plain text without redacting",
	Long: `Runs the recognizers over a text file (or stdin with "-") and prints
the matches. Nothing is resolved, audited, or written; this is the
detector alone, for tuning patterns and confidence floors.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print matches as JSON")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "scan")
	defer span.End()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	pol, err := resolvePolicy(ctx, "", cfg)
	if err != nil {
		return err
	}
	applyConfidenceFloor(pol, cfg, 0)

	detector, err := policy.NewDetectorForPolicy(pol, cfg.PatternsFile)
	if err != nil {
		return err
	}

	text, err := readScanInput(args)
	if err != nil {
		return err
	}

	matches := detector.Detect(string(text))
	if matches == nil {
		matches = []redact.Match{}
	}

	if scanJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(matches); err != nil {
			return fmt.Errorf("encoding matches: %w", err)
		}
		return nil
	}
	renderMatches(cmd.OutOrStdout(), matches)
	return nil
}

func readScanInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(os.Stdin)
	}
	content, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return content, nil
}

// renderMatches writes a match table to w (testable). Matched text shows up
// here and nowhere else: scan prints to the operator's terminal, while plans
// and audit records never carry it.
func renderMatches(w io.Writer, matches []redact.Match) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "No PII detected.")
		return
	}
	fmt.Fprintf(w, "Matches (%d):\n\n", len(matches))
	for i := range matches {
		m := &matches[i]
		fmt.Fprintf(w, "  %-16s %-12s %.2f  %s\n", m.Kind, formatSpan(m.Start, m.End), m.Confidence, m.Text)
	}
}
