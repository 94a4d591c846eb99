//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/redacter-man/pii-redacter/internal/audit"
	"github.com/redacter-man/pii-redacter/internal/detect"
	"github.com/redacter-man/pii-redacter/internal/pipeline"
	"github.com/redacter-man/pii-redacter/internal/policy"
	"github.com/redacter-man/pii-redacter/internal/testutil"
)

// SetupPipeline builds a pipeline with a real detector, Rego engine, and
// SQLite audit store, for integration tests. The policy file at policyPath is
// loaded as-is; an empty path uses the built-in permissive default.
func SetupPipeline(t *testing.T, policyPath string) (*pipeline.Pipeline, *audit.Store) {
	t.Helper()
	ctx := context.Background()

	pol := policy.DefaultPolicy()
	if policyPath != "" {
		loaded, err := policy.LoadPolicy(ctx, filepath.Base(policyPath), false, filepath.Dir(policyPath))
		require.NoError(t, err)
		pol = loaded
	}

	engine, err := policy.NewEngine(ctx, pol)
	require.NoError(t, err)

	detector, err := policy.NewDetectorForPolicy(pol, "")
	require.NoError(t, err)

	store := testutil.NewTestAuditStore(t)

	pipe := pipeline.New(pipeline.Config{
		Detector: detector,
		Policy:   pol,
		Engine:   engine,
		Audit:    store,
		Caller:   "integration-test",
	})
	return pipe, store
}

// zeroTime is the open time bound for audit index queries.
var zeroTime time.Time

// writeFile writes content to path, failing the test on error.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// DefaultDetector compiles the embedded recognizer set.
func DefaultDetector(t *testing.T) *detect.Detector {
	t.Helper()
	detector, err := detect.NewDetector()
	require.NoError(t, err)
	return detector
}
