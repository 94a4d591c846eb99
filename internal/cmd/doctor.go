package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/redacter-man/pii-redacter/internal/doctor"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run preflight checks (config, policy, patterns, audit DB)",
	Long: `Verifies the data directory is writable, the configured policy loads
and its Rego compiles, the recognizer set compiles, the signing key is not
the generated default, and the audit database opens.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	ctx, span := tracer.Start(ctx, "doctor")
	defer span.End()

	report := doctor.Run(ctx)
	out := cmd.OutOrStdout()

	if doctorJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
	} else {
		renderDoctorReport(out, report)
	}

	if report.Status == "fail" {
		return fmt.Errorf("preflight checks failed (%d failing)", report.Summary.Fail)
	}
	return nil
}

// renderDoctorReport writes the check table to w (testable).
func renderDoctorReport(w io.Writer, report *doctor.Report) {
	category := ""
	for _, check := range report.Checks {
		if check.Category != category {
			category = check.Category
			fmt.Fprintf(w, "\n%s:\n", category)
		}
		fmt.Fprintf(w, "  %s %-18s %s\n", statusGlyph(check.Status), check.Name, check.Message)
		if check.Fix != "" && check.Status != "pass" {
			fmt.Fprintf(w, "    fix: %s\n", check.Fix)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d warnings, %d failed\n",
		report.Summary.Pass, report.Summary.Warn, report.Summary.Fail)
}
