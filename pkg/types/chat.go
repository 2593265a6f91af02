package types

import "time"

// ChatMessage is one turn in a conversation.
type ChatMessage struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// GenerateRequest asks the model for a chat response.
type GenerateRequest struct {
	Prompt      string  `json:"prompt"`
	SessionID   string  `json:"sessionId,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// GenerateResponse carries the model's reply and the session it was
// recorded under.
type GenerateResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
}

// AnalyzeRequest asks the model to review a piece of code.
type AnalyzeRequest struct {
	Code         string `json:"code"`
	AnalysisType string `json:"analysisType,omitempty"` // review, explain, optimize, debug
}

// AnalyzeResponse is the model's analysis of the submitted code.
type AnalyzeResponse struct {
	Type     string `json:"type"`
	Analysis string `json:"analysis"`
	Code     string `json:"code"`
}

// CompleteRequest asks for code completion suggestions at a cursor position.
type CompleteRequest struct {
	Code           string `json:"code"`
	Line           int    `json:"line"`
	Column         int    `json:"column"`
	MaxSuggestions int    `json:"maxSuggestions,omitempty"` // default 3
}

// CompleteResponse lists completion suggestions, best first.
type CompleteResponse struct {
	Suggestions []string `json:"suggestions"`
}

// ContextResponse is the stored conversation context for a session.
type ContextResponse struct {
	SessionID string        `json:"sessionId"`
	Messages  []ChatMessage `json:"messages"`
	Count     int           `json:"count"`
}
