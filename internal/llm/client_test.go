package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(Config{
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		Model:     "test-model",
		MaxTokens: 256,
		Timeout:   5 * time.Second,
	}, zap.NewNop())
	return client, srv
}

func completionBody(text string) string {
	resp := chatResponse{}
	resp.Choices = append(resp.Choices, struct {
		Message chatMessage `json:"message"`
	}{Message: chatMessage{Role: "assistant", Content: text}})
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestComplete(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var gotAuth, gotPath string
		var gotReq chatRequest

		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotPath = r.URL.Path
			_ = json.NewDecoder(r.Body).Decode(&gotReq)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(completionBody("generated note with [NAME_0]")))
		})

		out, err := client.Complete(context.Background(), "system instruction", "cleaned prompt")
		if err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
		if out != "generated note with [NAME_0]" {
			t.Errorf("Unexpected completion text: %q", out)
		}
		if gotAuth != "Bearer test-key" {
			t.Errorf("Authorization header = %q", gotAuth)
		}
		if gotPath != "/v1/chat/completions" {
			t.Errorf("Request path = %q", gotPath)
		}
		if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Content != "cleaned prompt" {
			t.Errorf("Unexpected request messages: %+v", gotReq.Messages)
		}
	})

	t.Run("StatusMapping", func(t *testing.T) {
		cases := []struct {
			name   string
			status int
			want   error
		}{
			{"RateLimited", http.StatusTooManyRequests, ErrRateLimited},
			{"Unauthorized", http.StatusUnauthorized, ErrUnauthorized},
			{"Forbidden", http.StatusForbidden, ErrUnauthorized},
			{"ServerError", http.StatusInternalServerError, ErrUnavailable},
			{"BadGateway", http.StatusBadGateway, ErrUnavailable},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
					http.Error(w, "upstream detail that must not leak", tc.status)
				})

				_, err := client.Complete(context.Background(), "sys", "prompt")
				if !errors.Is(err, tc.want) {
					t.Errorf("Status %d mapped to %v, want %v", tc.status, err, tc.want)
				}
				if err != nil && strings.Contains(err.Error(), "must not leak") {
					t.Errorf("Error message carries response body: %q", err.Error())
				}
			})
		}
	})

	t.Run("EmptyChoices", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		})
		if _, err := client.Complete(context.Background(), "sys", "prompt"); err == nil {
			t.Error("Expected error for empty choices")
		}
	})

	t.Run("MalformedResponse", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json: secret fragment`))
		})
		_, err := client.Complete(context.Background(), "sys", "prompt")
		if err == nil {
			t.Fatal("Expected error for malformed response")
		}
		if strings.Contains(err.Error(), "secret fragment") {
			t.Errorf("Error message carries response body: %q", err.Error())
		}
	})

	t.Run("ConnectionRefused", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		client := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second}, zap.NewNop())
		if _, err := client.Complete(context.Background(), "sys", "prompt"); !errors.Is(err, ErrUnavailable) {
			t.Errorf("Transport failure mapped to %v, want ErrUnavailable", err)
		}
	})
}
