package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/elyn-health/phi-shield/internal/generate"
	"github.com/elyn-health/phi-shield/internal/llm"
	"github.com/elyn-health/phi-shield/internal/phi"
)

type noteRequest struct {
	Text  string `json:"text"`
	Style string `json:"style,omitempty"`
}

type handoffRequest struct {
	Patients []patientDocument `json:"patients"`
}

// patientDocument is one patient's raw note. The id is a caller-side
// correlation handle; it is never logged and never forwarded upstream, where
// patients are referenced by position only.
type patientDocument struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

type redactRequest struct {
	Text string `json:"text"`
}

type generateResponse struct {
	RequestID  string         `json:"request_id"`
	Text       string         `json:"text"`
	Findings   map[string]int `json:"findings"`
	TokenCount int            `json:"token_count"`
	GapCount   int            `json:"gap_count"`
	CacheHit   bool           `json:"cache_hit"`
	DurationMS int64          `json:"duration_ms"`
}

type redactResponse struct {
	RequestID   string         `json:"request_id"`
	CleanedText string         `json:"cleaned_text"`
	Findings    map[string]int `json:"findings"`
	TokenCount  int            `json:"token_count"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleGenerateNote(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())

	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MalformedInput", "request body must be valid JSON")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "MalformedInput", "text must not be empty")
		return
	}

	result, err := s.svc.GenerateNote(r.Context(), generate.NoteRequest{
		RequestID: requestID,
		Text:      req.Text,
		Style:     req.Style,
	})
	if err != nil {
		s.writeUpstreamError(w, requestID, err)
		return
	}

	writeJSON(w, http.StatusOK, toGenerateResponse(requestID, result))
}

func (s *Server) handleGenerateHandoff(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())

	var req handoffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MalformedInput", "request body must be valid JSON")
		return
	}
	if len(req.Patients) == 0 {
		writeError(w, http.StatusBadRequest, "MalformedInput", "patients must not be empty")
		return
	}
	texts := make([]string, len(req.Patients))
	for i, doc := range req.Patients {
		if strings.TrimSpace(doc.Text) == "" {
			writeError(w, http.StatusBadRequest, "MalformedInput", "patient documents must not be empty")
			return
		}
		texts[i] = doc.Text
	}

	result, err := s.svc.GenerateHandoff(r.Context(), generate.HandoffRequest{
		RequestID: requestID,
		Patients:  texts,
	})
	if err != nil {
		s.writeUpstreamError(w, requestID, err)
		return
	}

	writeJSON(w, http.StatusOK, toGenerateResponse(requestID, result))
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())

	var req redactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MalformedInput", "request body must be valid JSON")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "MalformedInput", "text must not be empty")
		return
	}

	result := s.svc.Redact(r.Context(), requestID, req.Text)

	writeJSON(w, http.StatusOK, redactResponse{
		RequestID:   requestID,
		CleanedText: result.CleanedText,
		Findings:    result.Findings,
		TokenCount:  result.TokenCount,
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":          "phi-shield",
		"version":       Version,
		"active_rules":  len(phi.Rules()),
		"cache_enabled": s.cache != nil,
		"audit_enabled": s.audit != nil,
		"uptime":        time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.cache != nil {
		info["cache"] = s.cache.Stats()
	}
	writeJSON(w, http.StatusOK, info)
}

// writeUpstreamError maps pipeline errors to responses. Client messages stay
// generic; upstream detail goes to the log, never to the response.
func (s *Server) writeUpstreamError(w http.ResponseWriter, requestID string, err error) {
	s.logger.WithRequestID(requestID).Error("Generation failed", zap.Error(err))

	switch {
	case errors.Is(err, llm.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "UpstreamRateLimited", "generation is temporarily rate limited, please retry")
	case errors.Is(err, llm.ErrUnauthorized):
		writeError(w, http.StatusBadGateway, "UpstreamAuth", "generation backend rejected the service credentials")
	case errors.Is(err, llm.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "UpstreamUnavailable", "generation backend is unavailable, please retry")
	default:
		writeError(w, http.StatusBadGateway, "UpstreamError", "generation failed, please retry")
	}
}

func toGenerateResponse(requestID string, result *generate.Result) generateResponse {
	return generateResponse{
		RequestID:  requestID,
		Text:       result.Text,
		Findings:   result.Findings,
		TokenCount: result.TokenCount,
		GapCount:   result.GapCount,
		CacheHit:   result.CacheHit,
		DurationMS: result.Duration.Milliseconds(),
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}
