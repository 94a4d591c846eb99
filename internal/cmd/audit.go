package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/redacter-man/pii-redacter/internal/audit"
	"github.com/redacter-man/pii-redacter/internal/config"
)

var (
	auditDocumentID string
	auditCaller     string
	auditLimit      int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query and verify the audit trail",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit records",
	RunE:  auditList,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [record-id]",
	Short: "Verify HMAC signature of an audit record",
	Args:  cobra.ExactArgs(1),
	RunE:  auditVerify,
}

func init() {
	auditListCmd.Flags().StringVar(&auditDocumentID, "document", "", "Filter by document ID")
	auditListCmd.Flags().StringVar(&auditCaller, "caller", "", "Filter by caller")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 20, "Maximum records to show")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	rootCmd.AddCommand(auditCmd)
}

func openAuditStore() (*audit.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
}

func auditList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, err := openAuditStore()
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer store.Close()

	index, err := store.ListIndex(ctx, auditDocumentID, auditCaller, time.Time{}, time.Time{}, auditLimit)
	if err != nil {
		return fmt.Errorf("querying audit records: %w", err)
	}

	if len(index) == 0 {
		fmt.Println("No audit records found.")
		return nil
	}
	renderAuditList(os.Stdout, index)
	return nil
}

func auditVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	recordID := args[0]

	store, err := openAuditStore()
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer store.Close()

	valid, err := store.Verify(ctx, recordID)
	if err != nil {
		return fmt.Errorf("verifying record: %w", err)
	}
	renderVerifyResult(os.Stdout, recordID, valid)
	if !valid {
		return fmt.Errorf("signature verification failed for %s", recordID)
	}
	return nil
}

// renderAuditList writes audit index lines to w (testable).
func renderAuditList(w io.Writer, index []audit.Index) {
	fmt.Fprintf(w, "Audit Records (showing %d):\n\n", len(index))
	for i := range index {
		entry := &index[i]
		status := glyphPass
		if !entry.Allowed {
			status = glyphFail
		}
		errorMark := ""
		if entry.HasError {
			errorMark = " [ERROR]"
		}
		fmt.Fprintf(w, "  %s %s | %s | %s | %s | %d tokens | %d skipped | %dms%s\n",
			status,
			entry.ID,
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.Caller,
			entry.DocumentID,
			entry.RedactedTokens,
			entry.SkippedMatches,
			entry.DurationMS,
			errorMark,
		)
	}
}

// renderVerifyResult writes verify outcome to w (testable).
func renderVerifyResult(w io.Writer, recordID string, valid bool) {
	if valid {
		fmt.Fprintf(w, "%s Record %s: signature VALID (HMAC-SHA256 intact)\n", glyphPass, recordID)
	} else {
		fmt.Fprintf(w, "%s Record %s: signature INVALID (possible tampering)\n", glyphFail, recordID)
	}
}
