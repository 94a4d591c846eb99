package testutil

import (
	"path/filepath"
	"testing"

	"github.com/redacter-man/pii-redacter/internal/audit"
)

// NewTestAuditStore creates an audit store in a temp dir and registers
// t.Cleanup to close it. Uses TestSigningKey.
func NewTestAuditStore(t *testing.T) *audit.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := audit.NewStore(filepath.Join(dir, "audit.db"), TestSigningKey)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
