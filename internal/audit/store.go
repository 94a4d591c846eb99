// Package audit provides an HMAC-signed audit trail for document runs.
//
// Every processed document — redacted, denied, or failed — produces a
// Record that is signed (HMAC-SHA256) and persisted in SQLite. Skipped
// matches are first-class in the record so omissions stay visible to
// downstream review, and records hold no matched text at all.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	redacterotel "github.com/redacter-man/pii-redacter/internal/otel"
)

var tracer = redacterotel.Tracer("github.com/redacter-man/pii-redacter/internal/audit")

// ErrNotFound is returned by Get and Verify when no record has the given ID.
var ErrNotFound = errors.New("audit record not found")

// Store persists HMAC-signed audit records in SQLite. It is safe for
// concurrent use.
type Store struct {
	db     *sql.DB
	signer *Signer
}

// NewStore creates an audit store with HMAC signing.
func NewStore(dbPath string, signingKey string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS audit_records (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		document_id TEXT NOT NULL,
		caller TEXT NOT NULL,
		allowed INTEGER NOT NULL,
		redacted_tokens INTEGER NOT NULL,
		skipped_matches INTEGER NOT NULL,
		record_json TEXT NOT NULL,
		signature TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_document ON audit_records(document_id);
	CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_records(created_at);
	`

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}

	signer, err := NewSigner(signingKey)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}

	return &Store{
		db:     db,
		signer: signer,
	}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put signs the record and saves it. The record's Signature field is set
// as a side effect.
func (s *Store) Put(ctx context.Context, rec *Record) error {
	ctx, span := tracer.Start(ctx, "audit.put",
		trace.WithAttributes(
			attribute.String("audit.id", rec.ID),
			attribute.String("document.id", rec.DocumentID),
			attribute.String("caller", rec.Caller),
		))
	defer span.End()

	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling audit record: %w", err)
	}

	signature, err := s.signer.Sign(recordJSON)
	if err != nil {
		return fmt.Errorf("signing audit record: %w", err)
	}

	rec.Signature = signature

	recordJSONWithSig, _ := json.Marshal(rec)

	query := `INSERT INTO audit_records (id, created_at, document_id, caller, allowed, redacted_tokens, skipped_matches, record_json, signature)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.Timestamp, rec.DocumentID, rec.Caller, rec.Decision.Allowed,
		rec.Counts.RedactedTokens, rec.Counts.SkippedMatches,
		string(recordJSONWithSig), signature,
	)
	if err != nil {
		return fmt.Errorf("storing audit record: %w", err)
	}

	return nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	ctx, span := tracer.Start(ctx, "audit.get",
		trace.WithAttributes(attribute.String("audit.id", id)))
	defer span.End()

	var recordJSON string
	query := `SELECT record_json FROM audit_records WHERE id = ?`
	err := s.db.QueryRowContext(ctx, query, id).Scan(&recordJSON)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying audit record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling audit record: %w", err)
	}

	return &rec, nil
}

// ListIndex returns lightweight record summaries matching the given
// filters, newest first.
func (s *Store) ListIndex(ctx context.Context, documentID, caller string, from, to time.Time, limit int) ([]Index, error) {
	ctx, span := tracer.Start(ctx, "audit.list_index",
		trace.WithAttributes(
			attribute.String("document.id", documentID),
			attribute.String("caller", caller),
		))
	defer span.End()

	query := `SELECT record_json FROM audit_records WHERE 1=1`
	args := []interface{}{}

	if documentID != "" {
		query += ` AND document_id = ?`
		args = append(args, documentID)
	}
	if caller != "" {
		query += ` AND caller = ?`
		args = append(args, caller)
	}
	if !from.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, from)
	}
	if !to.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit index: %w", err)
	}
	defer rows.Close()

	var results []Index
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			continue
		}

		var full Record
		if err := json.Unmarshal([]byte(recordJSON), &full); err != nil {
			continue
		}

		results = append(results, toIndex(&full))
	}

	span.SetAttributes(attribute.Int("audit.index_count", len(results)))
	return results, nil
}

// Verify checks the HMAC signature integrity of a stored record.
func (s *Store) Verify(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "audit.verify",
		trace.WithAttributes(attribute.String("audit.id", id)))
	defer span.End()

	rec, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}

	signature := rec.Signature
	rec.Signature = ""

	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshaling for verification: %w", err)
	}

	return s.signer.Verify(recordJSON, signature), nil
}
