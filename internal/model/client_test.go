package model

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/codedesk/codedesk/pkg/types"
)

// fakeModel answers /generate with a canned response and records requests.
func fakeModel(t *testing.T, respond func(generateRequest) string) (*httptest.Server, *[]generateRequest) {
	t.Helper()
	var requests []generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			http.NotFound(w, r)
			return
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		requests = append(requests, req)
		json.NewEncoder(w).Encode(generateResponse{Response: respond(req)})
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestGenerate(t *testing.T) {
	srv, requests := fakeModel(t, func(generateRequest) string { return "hello back" })
	c := NewClient(srv.URL, time.Second)

	history := []types.ChatMessage{{Role: "user", Content: "earlier"}}
	out, err := c.Generate(context.Background(), "hello", history, Params{MaxTokens: 50})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "hello back" {
		t.Errorf("response = %q", out)
	}

	req := (*requests)[0]
	if req.Prompt != "hello" {
		t.Errorf("prompt = %q", req.Prompt)
	}
	if len(req.Context) != 1 || req.Context[0].Content != "earlier" {
		t.Errorf("context = %+v", req.Context)
	}
	if req.MaxTokens != 50 {
		t.Errorf("maxTokens = %d", req.MaxTokens)
	}
	if req.Temperature != defaultTemperature {
		t.Errorf("temperature = %v, want default", req.Temperature)
	}
}

func TestGenerateNotConfigured(t *testing.T) {
	c := NewClient("", time.Second)
	_, err := c.Generate(context.Background(), "hi", nil, Params{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestGenerateServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Generate(context.Background(), "hi", nil, Params{})
	if err == nil {
		t.Fatal("Generate succeeded against erroring service")
	}
	if !strings.Contains(err.Error(), "status 503") {
		t.Errorf("error = %v, want status 503", err)
	}
}

func TestAnalyzePrompts(t *testing.T) {
	srv, requests := fakeModel(t, func(generateRequest) string { return "analysis" })
	c := NewClient(srv.URL, time.Second)

	tests := []struct {
		analysisType string
		wantType     string
		wantPrefix   string
	}{
		{"review", "review", "Review this code"},
		{"explain", "explain", "Explain what this code does"},
		{"optimize", "optimize", "Suggest optimizations"},
		{"debug", "debug", "Find potential bugs"},
		{"poetry", "review", "Review this code"}, // unknown falls back
		{"", "review", "Review this code"},
	}
	for _, tt := range tests {
		*requests = (*requests)[:0]
		gotType, analysis, err := c.Analyze(context.Background(), "x = 1", tt.analysisType)
		if err != nil {
			t.Fatalf("Analyze(%q): %v", tt.analysisType, err)
		}
		if gotType != tt.wantType {
			t.Errorf("Analyze(%q) type = %q, want %q", tt.analysisType, gotType, tt.wantType)
		}
		if analysis != "analysis" {
			t.Errorf("analysis = %q", analysis)
		}
		prompt := (*requests)[0].Prompt
		if !strings.HasPrefix(prompt, tt.wantPrefix) {
			t.Errorf("Analyze(%q) prompt = %q, want prefix %q", tt.analysisType, prompt, tt.wantPrefix)
		}
		if !strings.Contains(prompt, "x = 1") {
			t.Errorf("prompt does not embed the code: %q", prompt)
		}
	}
}

func TestCompleteDedupes(t *testing.T) {
	// The same answer every time: three calls collapse to one suggestion.
	srv, requests := fakeModel(t, func(generateRequest) string { return "return x + 1" })
	c := NewClient(srv.URL, time.Second)

	got, err := c.Complete(context.Background(), "def inc(x):\n    ", 1, 4, 3)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(got) != 1 || got[0] != "return x + 1" {
		t.Errorf("suggestions = %v", got)
	}
	if len(*requests) != 3 {
		t.Errorf("made %d calls, want 3", len(*requests))
	}
	if !strings.Contains((*requests)[0].Prompt, "def inc(x):\n    ") {
		t.Errorf("prompt lost the cursor prefix: %q", (*requests)[0].Prompt)
	}
}

func TestCompleteStripsFences(t *testing.T) {
	srv, _ := fakeModel(t, func(generateRequest) string {
		return "```python\nreturn x + 1\n```\nsome trailing chatter"
	})
	c := NewClient(srv.URL, time.Second)

	got, err := c.Complete(context.Background(), "def inc(x):", 0, 11, 1)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(got) != 1 || got[0] != "return x + 1" {
		t.Errorf("suggestions = %v", got)
	}
}

func TestCodeBeforeCursor(t *testing.T) {
	code := "line0\nline1\nline2"
	tests := []struct {
		line, column int
		want         string
	}{
		{0, 3, "lin"},
		{1, 5, "line0\nline1"},
		{1, 99, "line0\nline1"}, // column clamped
		{2, 0, "line0\nline1\n"},
		{99, 0, code}, // line out of range
		{-1, 0, code},
	}
	for _, tt := range tests {
		if got := codeBeforeCursor(code, tt.line, tt.column); got != tt.want {
			t.Errorf("codeBeforeCursor(%d, %d) = %q, want %q", tt.line, tt.column, got, tt.want)
		}
	}
}

func TestCleanSuggestion(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  plain  ", "plain"},
		{"```\ncode\n```", "code"},
		{"```go\ncode\n```", "code"},
		{"code\n``` extra", "code"},
		{"```", ""},
	}
	for _, tt := range tests {
		if got := cleanSuggestion(tt.in); got != tt.want {
			t.Errorf("cleanSuggestion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
