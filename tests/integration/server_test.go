//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redacter-man/pii-redacter/internal/detect"
	"github.com/redacter-man/pii-redacter/internal/document"
	"github.com/redacter-man/pii-redacter/internal/pipeline"
	"github.com/redacter-man/pii-redacter/internal/policy"
	"github.com/redacter-man/pii-redacter/internal/server"
	"github.com/redacter-man/pii-redacter/internal/testutil"
)

func setupTestServer(t *testing.T) (*httptest.Server, *detect.Detector) {
	t.Helper()
	ctx := context.Background()

	pol := policy.DefaultPolicy()
	engine, err := policy.NewEngine(ctx, pol)
	require.NoError(t, err)
	detector, err := detect.NewDetector()
	require.NoError(t, err)
	store := testutil.NewTestAuditStore(t)

	pipe := pipeline.New(pipeline.Config{
		Detector: detector,
		Policy:   pol,
		Engine:   engine,
		Audit:    store,
		Caller:   "api",
	})

	srv := server.NewServer(pipe, detector, store, pol,
		map[string]string{"test-api-key": "ops"})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, detector
}

func postJSON(t *testing.T, ts *httptest.Server, path, apiKey string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-Redacter-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func encodeDocument(t *testing.T, doc *document.Document) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, document.Encode(&buf, doc))
	return buf.Bytes()
}

func TestServerRedactEndpoint(t *testing.T) {
	ts, _ := setupTestServer(t)

	t.Run("healthz is unauthenticated", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("missing API key yields 401", func(t *testing.T) {
		resp := postJSON(t, ts, "/v1/redact", "", encodeDocument(t, testutil.SampleDocument("doc-401")))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("document with PII returns a plan", func(t *testing.T) {
		resp := postJSON(t, ts, "/v1/redact", "test-api-key",
			encodeDocument(t, testutil.SampleDocument("doc-200")))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var plan struct {
			DocumentID string `json:"document_id"`
			Units      []struct {
				Page     string            `json:"page"`
				Polygons [][]document.Point `json:"polygons"`
			} `json:"units"`
			RecordID string `json:"record_id"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&plan))
		assert.Equal(t, "doc-200", plan.DocumentID)
		assert.NotEmpty(t, plan.Units)
		assert.NotEmpty(t, plan.RecordID)
		for _, u := range plan.Units {
			assert.NotEmpty(t, u.Polygons)
		}
	})

	t.Run("malformed token index yields 422", func(t *testing.T) {
		body := []byte(`{
			"id": "doc-422",
			"text": "0123456789",
			"pages": [{"key": "p1", "tokens": [{
				"text": "bad",
				"segments": [{"start": 2, "end": 8}, {"start": 5, "end": 9}],
				"polygons": [[{"x":0,"y":0}], [{"x":1,"y":0}]]
			}]}]
		}`)
		resp := postJSON(t, ts, "/v1/redact", "test-api-key", body)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("undecodable body yields 400", func(t *testing.T) {
		resp := postJSON(t, ts, "/v1/redact", "test-api-key", []byte(`{"id": `))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestServerScanEndpoint(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp := postJSON(t, ts, "/v1/scan", "test-api-key",
		[]byte(`{"text": "SSN 123-45-6789 and email jane@example.com"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Matches []struct {
			Kind  string `json:"kind"`
			Start int    `json:"start"`
			End   int    `json:"end"`
		} `json:"matches"`
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, 2, out.Count)

	kinds := make(map[string]bool)
	for _, m := range out.Matches {
		kinds[m.Kind] = true
	}
	assert.True(t, kinds["ssn"])
	assert.True(t, kinds["email"])
}

func TestServerAuditEndpoints(t *testing.T) {
	ts, _ := setupTestServer(t)

	// Produce one audited run.
	resp := postJSON(t, ts, "/v1/redact", "test-api-key",
		encodeDocument(t, testutil.SampleDocument("doc-audit")))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var plan struct {
		RecordID string `json:"record_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&plan))
	require.NotEmpty(t, plan.RecordID)

	t.Run("list filters by document id", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/audit?document_id=doc-audit", nil)
		req.Header.Set("X-Redacter-Key", "test-api-key")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Entries []struct {
				ID         string `json:"id"`
				DocumentID string `json:"document_id"`
				Caller     string `json:"caller"`
			} `json:"entries"`
			Count int `json:"count"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		require.Equal(t, 1, out.Count)
		require.Len(t, out.Entries, 1)
		assert.Equal(t, plan.RecordID, out.Entries[0].ID)
		assert.Equal(t, "ops", out.Entries[0].Caller, "caller comes from the API key name")
	})

	t.Run("verify confirms the signature", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/audit/"+plan.RecordID+"/verify", nil)
		req.Header.Set("X-Redacter-Key", "test-api-key")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Valid bool `json:"valid"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.True(t, out.Valid)
	})
}
