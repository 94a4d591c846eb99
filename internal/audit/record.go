package audit

import (
	"time"

	"github.com/google/uuid"
)

// Record is the full audit entry for a single document run.
//
// It carries kind names, byte offsets, and counts only. The matched text
// itself never enters a record, so the audit trail can be retained long
// after the documents it describes are gone.
type Record struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	DocumentID string         `json:"document_id"`
	Caller     string         `json:"caller"`
	Decision   Decision       `json:"decision"`
	Counts     Counts         `json:"counts"`
	Skipped    []SkippedMatch `json:"skipped,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
	Signature  string         `json:"signature"`
}

// Decision captures the policy evaluation result for the run.
type Decision struct {
	Allowed       bool     `json:"allowed"`
	Action        string   `json:"action"`
	Reasons       []string `json:"reasons,omitempty"`
	PolicyVersion string   `json:"policy_version"`
}

// Counts captures the volume facts of the run.
type Counts struct {
	Pages          int `json:"pages"`
	Tokens         int `json:"tokens"`
	Matches        int `json:"matches"`
	RedactedTokens int `json:"redacted_tokens"`
	SkippedMatches int `json:"skipped_matches"`
}

// SkippedMatch records a detector match that could not be mapped to any
// token. Kind and offsets only, never the matched text.
type SkippedMatch struct {
	Kind   string `json:"kind"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Reason string `json:"reason"`
}

// NewRecord creates a record for a document run with a fresh ID and the
// current timestamp. Callers fill in the outcome before calling Store.Put.
func NewRecord(documentID, caller string) *Record {
	return &Record{
		ID:         "run_" + uuid.New().String()[:8],
		Timestamp:  time.Now(),
		DocumentID: documentID,
		Caller:     caller,
	}
}

// Index is a lightweight record summary for listings.
type Index struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	DocumentID     string    `json:"document_id"`
	Caller         string    `json:"caller"`
	Allowed        bool      `json:"allowed"`
	PolicyVersion  string    `json:"policy_version"`
	RedactedTokens int       `json:"redacted_tokens"`
	SkippedMatches int       `json:"skipped_matches"`
	DurationMS     int64     `json:"duration_ms"`
	HasError       bool      `json:"has_error"`
}

// toIndex projects a full Record into a lightweight Index.
func toIndex(full *Record) Index {
	return Index{
		ID:             full.ID,
		Timestamp:      full.Timestamp,
		DocumentID:     full.DocumentID,
		Caller:         full.Caller,
		Allowed:        full.Decision.Allowed,
		PolicyVersion:  full.Decision.PolicyVersion,
		RedactedTokens: full.Counts.RedactedTokens,
		SkippedMatches: full.Counts.SkippedMatches,
		DurationMS:     full.DurationMS,
		HasError:       full.Error != "",
	}
}
