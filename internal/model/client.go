// Package model is the HTTP client for the inference service that backs
// chat, code analysis and completion. The service is optional; without a
// configured URL every call reports ErrNotConfigured and the API layer
// answers 503.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codedesk/codedesk/internal/metrics"
	"github.com/codedesk/codedesk/pkg/types"
)

// ErrNotConfigured reports that no inference service URL is set.
var ErrNotConfigured = errors.New("model service not configured")

const (
	defaultMaxTokens   = 1024
	defaultTemperature = 0.7
	maxSuggestions     = 3
)

// analysisPrompts maps analysis types to their instruction line. Unknown
// types fall back to review.
var analysisPrompts = map[string]string{
	"review":   "Review this code and provide feedback on improvements:",
	"explain":  "Explain what this code does:",
	"optimize": "Suggest optimizations for this code:",
	"debug":    "Find potential bugs in this code:",
}

// Client talks to the inference service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an inference client. An empty baseURL produces a client
// whose calls all fail with ErrNotConfigured.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Configured reports whether an inference service URL is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// Params tune a generation request. Zero values select the defaults.
type Params struct {
	MaxTokens   int
	Temperature float64
}

type generateRequest struct {
	Prompt      string              `json:"prompt"`
	Context     []types.ChatMessage `json:"context,omitempty"`
	MaxTokens   int                 `json:"maxTokens"`
	Temperature float64             `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate asks the model for a response to prompt, with optional
// conversation context.
func (c *Client) Generate(ctx context.Context, prompt string, history []types.ChatMessage, p Params) (string, error) {
	return c.generate(ctx, "generate", prompt, history, p)
}

// Analyze runs one of the canned analysis prompts over a piece of code.
// It returns the resolved analysis type alongside the model's answer.
func (c *Client) Analyze(ctx context.Context, code, analysisType string) (string, string, error) {
	instruction, ok := analysisPrompts[analysisType]
	if !ok {
		analysisType = "review"
		instruction = analysisPrompts["review"]
	}

	prompt := fmt.Sprintf("%s\n\n```\n%s\n```", instruction, code)
	analysis, err := c.generate(ctx, "analyze", prompt, nil, Params{})
	if err != nil {
		return analysisType, "", err
	}
	return analysisType, analysis, nil
}

// Complete suggests completions for the code before the cursor. It asks the
// model once per slot and deduplicates, so the result may be shorter than
// requested.
func (c *Client) Complete(ctx context.Context, code string, line, column, limit int) ([]string, error) {
	if limit <= 0 || limit > maxSuggestions {
		limit = maxSuggestions
	}

	prefix := codeBeforeCursor(code, line, column)
	prompt := fmt.Sprintf("Complete the following code. Return only the completion text, nothing else.\n\n```\n%s\n```", prefix)

	var suggestions []string
	seen := make(map[string]bool)
	for i := 0; i < limit; i++ {
		raw, err := c.generate(ctx, "complete", prompt, nil, Params{
			MaxTokens:   128,
			Temperature: 0.2 + 0.3*float64(i), // widen the sampling per slot
		})
		if err != nil {
			if len(suggestions) > 0 {
				break
			}
			return nil, err
		}
		s := cleanSuggestion(raw)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		suggestions = append(suggestions, s)
	}
	return suggestions, nil
}

func (c *Client) generate(ctx context.Context, operation, prompt string, history []types.ChatMessage, p Params) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = defaultMaxTokens
	}
	if p.Temperature <= 0 {
		p.Temperature = defaultTemperature
	}

	body, err := json.Marshal(generateRequest{
		Prompt:      prompt,
		Context:     history,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ModelRequestsTotal.WithLabelValues(operation, "error").Inc()
		return "", fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ModelRequestsTotal.WithLabelValues(operation, "error").Inc()
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("model service error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.ModelRequestsTotal.WithLabelValues(operation, "error").Inc()
		return "", fmt.Errorf("decode response: %w", err)
	}

	metrics.ModelRequestsTotal.WithLabelValues(operation, "ok").Inc()
	return out.Response, nil
}

// codeBeforeCursor cuts the code at a zero-based line/column cursor.
// Out-of-range positions return the whole text.
func codeBeforeCursor(code string, line, column int) string {
	lines := strings.Split(code, "\n")
	if line < 0 || line >= len(lines) {
		return code
	}
	cur := lines[line]
	if column < 0 || column > len(cur) {
		column = len(cur)
	}
	parts := append(append([]string{}, lines[:line]...), cur[:column])
	return strings.Join(parts, "\n")
}

// cleanSuggestion strips markdown fences and surrounding whitespace from a
// model answer.
func cleanSuggestion(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		// Drop the opening fence line (possibly carrying a language tag).
		if idx := strings.IndexByte(s, '\n'); idx >= 0 {
			s = s[idx+1:]
		} else {
			return ""
		}
	}
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
