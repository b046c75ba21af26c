package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/warriorcabo/ai-orchestration-system/internal/log"
)

func TestGeminiGenerate(t *testing.T) {
	var got geminiRequest
	var path, key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.Header.Get("x-goog-api-key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Task: "},{"text":"summarize"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	c := NewGemini(WithAPIKey("g-key"), WithBaseURL(srv.URL))
	resp, err := c.Generate(context.Background(), Request{
		Prompt:        "Summarize X",
		SystemMessage: "You plan tasks.",
		Params:        Params{Temperature: 0.2, MaxTokens: 512, TopP: 1},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Text != "Task: summarize" {
		t.Errorf("Text = %q", resp.Text)
	}
	if path != "/models/"+DefaultGeminiModel+":generateContent" {
		t.Errorf("path = %q", path)
	}
	if key != "g-key" {
		t.Errorf("key = %q", key)
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "You plan tasks." {
		t.Errorf("systemInstruction = %+v", got.SystemInstruction)
	}
	if got.GenerationConfig.Temperature != 0.2 || got.GenerationConfig.MaxOutputTokens != 512 {
		t.Errorf("generationConfig = %+v", got.GenerationConfig)
	}
	if len(got.Contents) != 1 || got.Contents[0].Parts[0].Text != "Summarize X" {
		t.Errorf("contents = %+v", got.Contents)
	}
}

func TestGeminiNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := NewGemini(WithAPIKey("k"), WithBaseURL(srv.URL))
	resp, err := c.Generate(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !resp.Empty || resp.Text != FallbackText {
		t.Errorf("expected fallback, got %+v", resp)
	}
}

func TestGeminiErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusRequestTimeout, true},
		{http.StatusForbidden, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"quota","status":"X"}}`))
			}))
			defer srv.Close()

			var sink log.Recorder
			c := NewGemini(WithAPIKey("k"), WithBaseURL(srv.URL), WithErrorSink(&sink))
			_, err := c.Generate(context.Background(), Request{Prompt: "hi"})
			if err == nil {
				t.Fatal("expected error")
			}
			if IsTransient(err) != tt.transient {
				t.Errorf("IsTransient = %v, want %v", IsTransient(err), tt.transient)
			}
			if !strings.Contains(err.Error(), "quota") {
				t.Errorf("error should carry provider message: %v", err)
			}
			if sink.Count(GeminiName) != 1 {
				t.Errorf("sink records = %d, want 1", sink.Count(GeminiName))
			}
		})
	}
}

func TestGeminiTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewGemini(WithAPIKey("k"), WithBaseURL(srv.URL), WithTimeout(20*time.Millisecond))
	_, err := c.Generate(context.Background(), Request{Prompt: "hi"})
	if !IsTransient(err) {
		t.Errorf("timeout should be transient, got %v", err)
	}
}

func TestGeminiTransportErrorHidesAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	var sink log.Recorder
	c := NewGemini(WithAPIKey("SECRET-KEY-123"), WithBaseURL(srv.URL), WithErrorSink(&sink))
	_, err := c.Generate(context.Background(), Request{Prompt: "hi"})
	if !IsTransient(err) {
		t.Fatalf("connection refused should be transient, got %v", err)
	}
	if strings.Contains(err.Error(), "SECRET-KEY-123") {
		t.Errorf("error carries the API key: %v", err)
	}
	records := sink.Records()
	if len(records) != 1 {
		t.Fatalf("sink records = %d, want 1", len(records))
	}
	if strings.Contains(records[0].Message, "SECRET-KEY-123") {
		t.Errorf("sink record carries the API key: %s", records[0].Message)
	}
}
