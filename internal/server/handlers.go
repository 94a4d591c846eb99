package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/redacter-man/pii-redacter/internal/audit"
	"github.com/redacter-man/pii-redacter/internal/document"
	"github.com/redacter-man/pii-redacter/internal/pipeline"
	"github.com/redacter-man/pii-redacter/internal/redact"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if r.URL.Query().Get("detail") == "true" {
		resp["policy"] = s.policy.Profile.Name
		resp["policy_version"] = s.policy.Profile.Version
		resp["detector_kinds"] = len(s.detector.Kinds())
	}
	writeJSON(w, http.StatusOK, resp)
}

// redactResponse is the redaction plan plus run metadata for API callers.
type redactResponse struct {
	*pipeline.Plan
	RecordID   string `json:"record_id,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// handleRedact accepts an extraction-contract document, optionally extended
// with a "matches" array of precomputed detections, and returns the
// redaction plan. An absent matches field runs detection; an empty one maps
// nothing.
func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "reading body: "+err.Error())
		return
	}
	doc, err := document.Decode(bytes.NewReader(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if doc.ID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "document id is required")
		return
	}
	var extra struct {
		Matches []redact.Match `json:"matches"`
	}
	if err := json.Unmarshal(body, &extra); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}

	res, err := s.pipeline.Process(r.Context(), doc, extra.Matches)
	if err != nil {
		if errors.Is(err, redact.ErrMalformedIndex) {
			writeError(w, http.StatusUnprocessableEntity, "malformed_index", err.Error())
			return
		}
		log.Error().Err(err).Str("document_id", doc.ID).Msg("redact_error")
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if !res.Decision.Allowed {
		writeError(w, http.StatusForbidden, "policy_denied", strings.Join(res.Decision.Reasons, "; "))
		return
	}
	writeJSON(w, http.StatusOK, redactResponse{
		Plan:       res.Plan(),
		RecordID:   res.RecordID,
		DurationMS: res.DurationMS,
	})
}

// handleScan runs detection over raw text without mapping or auditing.
// Matched substrings are echoed back; the caller already holds the text.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	matches := s.detector.Detect(req.Text)
	if matches == nil {
		matches = []redact.Match{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matches": matches,
		"count":   len(matches),
	})
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	documentID := r.URL.Query().Get("document_id")
	caller := r.URL.Query().Get("caller")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	var from, to time.Time
	if f := r.URL.Query().Get("from"); f != "" {
		from, _ = time.Parse(time.RFC3339, f)
	}
	if t := r.URL.Query().Get("to"); t != "" {
		to, _ = time.Parse(time.RFC3339, t)
	}
	entries, err := s.auditStore.ListIndex(r.Context(), documentID, caller, from, to, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if entries == nil {
		entries = []audit.Index{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleAuditGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.auditStore.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	valid, err := s.auditStore.Verify(r.Context(), id)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "valid": valid})
}
