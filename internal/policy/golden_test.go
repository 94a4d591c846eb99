package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Golden test pattern: load run facts from testdata/golden/, evaluate the
// policy, compare to the expected decision. Add new cases by adding
// input/expected file pairs to testdata/golden/.

func TestGolden_PolicyDecisions(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, newTestPolicy())
	require.NoError(t, err)

	goldenDir := filepath.Join("testdata", "golden")
	entries, err := os.ReadDir(goldenDir)
	if err != nil {
		t.Skipf("no golden test data at %s: %v", goldenDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".input.json") {
			continue
		}
		testName := strings.TrimSuffix(entry.Name(), ".input.json")
		t.Run(testName, func(t *testing.T) {
			inputData, err := os.ReadFile(filepath.Join(goldenDir, entry.Name()))
			require.NoError(t, err)
			expectedData, err := os.ReadFile(filepath.Join(goldenDir, testName+".expected.json"))
			require.NoError(t, err)

			var facts RunFacts
			require.NoError(t, json.Unmarshal(inputData, &facts))

			result, err := engine.Evaluate(ctx, facts)
			require.NoError(t, err)

			var expected struct {
				Allowed bool     `json:"allowed"`
				Action  string   `json:"action"`
				Reasons []string `json:"reasons"`
			}
			require.NoError(t, json.Unmarshal(expectedData, &expected))

			assert.Equal(t, expected.Allowed, result.Allowed, "allowed")
			assert.Equal(t, expected.Action, result.Action, "action")
			assert.Len(t, result.Reasons, len(expected.Reasons), "reasons: %v", result.Reasons)
		})
	}
}
