package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/elyn-health/phi-shield/internal/config"
	"github.com/elyn-health/phi-shield/internal/logger"
)

// echoUpstream returns a chat-completions server that echoes the user
// message back as the completion.
func echoUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad upstream request: %v", err)
		}
		var user string
		for _, m := range req.Messages {
			if m.Role == "user" {
				user = m.Content
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": user}},
			},
		})
	}))
}

func newTestServer(t *testing.T, upstreamURL string, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.GetDefaults()
	cfg.Upstream.BaseURL = upstreamURL
	cfg.Upstream.Timeout = 5 * time.Second
	cfg.Security.Enabled = false
	cfg.Cache.Enabled = false
	cfg.Audit.Enabled = false
	cfg.WebSocket.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	s, err := New(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return s
}

func postJSON(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestNoteEndpoint(t *testing.T) {
	upstream := echoUpstream(t)
	defer upstream.Close()
	s := newTestServer(t, upstream.URL, nil)

	rec := postJSON(t, s, "/v1/notes/generate",
		`{"text":"Dr. Smith saw the patient. MRN: 12345.","style":"soap"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp generateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !strings.Contains(resp.Text, "Dr. Smith") || !strings.Contains(resp.Text, "12345") {
		t.Errorf("originals not reinserted: %q", resp.Text)
	}
	if resp.Findings["NAME"] != 1 || resp.Findings["MRN"] != 1 {
		t.Errorf("unexpected findings: %v", resp.Findings)
	}
	if resp.RequestID == "" {
		t.Error("missing request_id")
	}
}

func TestHandoffEndpoint(t *testing.T) {
	upstream := echoUpstream(t)
	defer upstream.Close()
	s := newTestServer(t, upstream.URL, nil)

	rec := postJSON(t, s, "/v1/handoffs/generate",
		`{"patients":[{"id":"p1","text":"Dr. Adams covering. Stable."},{"id":"p2","text":"Dr. Brown covering. Improving."}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp generateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !strings.Contains(resp.Text, "Dr. Adams") || !strings.Contains(resp.Text, "Dr. Brown") {
		t.Errorf("originals not reinserted: %q", resp.Text)
	}
	if resp.Findings["NAME"] != 2 {
		t.Errorf("expected 2 NAME findings, got %v", resp.Findings)
	}
}

func TestRedactEndpoint(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid", nil)

	rec := postJSON(t, s, "/v1/redact", `{"text":"Contact jane.doe@example.com in Room 214."}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	// The placeholder mapping must never appear in a redaction response.
	body := rec.Body.String()
	if strings.Contains(body, "original") || strings.Contains(body, "tokens\"") {
		t.Errorf("token table leaked into response: %s", body)
	}

	var resp redactResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if strings.Contains(resp.CleanedText, "jane.doe@example.com") || strings.Contains(resp.CleanedText, "214") {
		t.Errorf("raw values survived redaction: %q", resp.CleanedText)
	}
	if resp.Findings["EMAIL"] != 1 || resp.Findings["ROOM"] != 1 {
		t.Errorf("unexpected findings: %v", resp.Findings)
	}
}

func TestMalformedInput(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid", nil)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"EmptyNoteText", "/v1/notes/generate", `{"text":"  "}`},
		{"BadNoteJSON", "/v1/notes/generate", `{"text":`},
		{"NoPatients", "/v1/handoffs/generate", `{"patients":[]}`},
		{"BlankPatient", "/v1/handoffs/generate", `{"patients":[{"text":"Dr. Adams covering."},{"text":" "}]}`},
		{"EmptyRedactText", "/v1/redact", `{"text":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, s, tt.path, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("bad error body: %v", err)
			}
			if resp.Error.Code != "MalformedInput" {
				t.Errorf("expected MalformedInput, got %q", resp.Error.Code)
			}
		})
	}
}

func TestUpstreamErrorMapping(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal details that must not leak", http.StatusInternalServerError)
	}))
	defer upstream.Close()
	s := newTestServer(t, upstream.URL, nil)

	rec := postJSON(t, s, "/v1/notes/generate", `{"text":"Dr. Smith saw the patient."}`)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "internal details") {
		t.Errorf("upstream body leaked into response: %s", rec.Body.String())
	}
}

func TestRateLimiting(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid", func(cfg *config.Config) {
		cfg.Security.Enabled = true
		cfg.Security.RequestsPerMin = 60
		cfg.Security.Burst = 1
	})

	first := postJSON(t, s, "/v1/redact", `{"text":"Call 555-123-4567."}`)
	if first.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", first.Code)
	}

	second := postJSON(t, s, "/v1/redact", `{"text":"Call 555-123-4567."}`)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
}

func TestHealthAndInfo(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid", nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health returned %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/info", nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("info returned %d", rec.Code)
	}
	var info map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("bad info body: %v", err)
	}
	if info["name"] != "phi-shield" {
		t.Errorf("unexpected service name: %v", info["name"])
	}
	if info["active_rules"].(float64) < 8 {
		t.Errorf("expected at least 8 active rules, got %v", info["active_rules"])
	}
}
