package types

// ExecuteRequest is the request body for one-shot command execution.
//
// Command is interpreted by a shell, so pipes and redirection work; that
// also makes it an injection surface. Clients that already know the exact
// argument vector should set Argv instead, which bypasses the shell.
type ExecuteRequest struct {
	Command    string            `json:"command,omitempty"`
	Argv       []string          `json:"argv,omitempty"`
	SessionID  string            `json:"sessionId,omitempty"`
	WorkingDir string            `json:"workingDir,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Timeout    int               `json:"timeout,omitempty"` // seconds, default 30
}

// ExecuteResult is the result of a completed command execution.
// Success mirrors ExitCode == 0; validation, spawn and timeout failures
// report ExitCode -1 with Error set.
type ExecuteResult struct {
	Success   bool   `json:"success"`
	ExitCode  int    `json:"exitCode"`
	Output    string `json:"output"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	Truncated bool   `json:"truncated"`
	Error     string `json:"error,omitempty"`
}

// SessionCreateRequest is the request body for creating an interactive session.
type SessionCreateRequest struct {
	SessionID string `json:"sessionId,omitempty"` // generated when empty
	Shell     string `json:"shell,omitempty"`     // default /bin/bash
	Cols      int    `json:"cols,omitempty"`      // PTY mode only, default 80
	Rows      int    `json:"rows,omitempty"`      // PTY mode only, default 24
}

// SessionCreateResponse reports a newly created interactive session.
type SessionCreateResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	PID       int    `json:"pid"`
	Token     string `json:"token,omitempty"` // WebSocket auth token when auth is enabled
}

// SessionInfo describes a registered session.
type SessionInfo struct {
	SessionID    string `json:"sessionId"`
	Kind         string `json:"kind"` // "oneshot" or "interactive"
	PID          int    `json:"pid"`
	WorkingDir   string `json:"workingDir,omitempty"`
	CreatedAt    string `json:"createdAt"`
	LastActivity string `json:"lastActivity"`
}

// SessionListResponse is the response body for listing sessions.
type SessionListResponse struct {
	Sessions []SessionInfo `json:"sessions"`
	Count    int           `json:"count"`
}

// SendRequest writes input to an interactive session over HTTP.
type SendRequest struct {
	Input string `json:"input"`
}

// SendResponse carries whatever output was ready within the read bound.
// Output is empty, not an error, when the shell produced nothing in time.
type SendResponse struct {
	Output string `json:"output"`
}

// TreeNode is one entry in a bounded-depth file tree listing.
type TreeNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Type     string      `json:"type"` // "file" or "directory"
	Size     int64       `json:"size,omitempty"`
	Modified string      `json:"modified,omitempty"`
	Children []*TreeNode `json:"children,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// Frame is a message on the interactive session WebSocket. Type selects
// which of the remaining fields are meaningful.
type Frame struct {
	Type      string `json:"type"`
	Data      string `json:"data,omitempty"`      // input, output
	Cols      int    `json:"cols,omitempty"`      // resize
	Rows      int    `json:"rows,omitempty"`      // resize
	SessionID string `json:"sessionId,omitempty"` // session_created
	PID       int    `json:"pid,omitempty"`       // session_created
	Message   string `json:"message,omitempty"`   // error
}

// Frame types. Clients send input, resize and kill; the server sends
// session_created, output, session_killed and error.
const (
	FrameInput          = "input"
	FrameResize         = "resize"
	FrameKill           = "kill"
	FrameSessionCreated = "session_created"
	FrameOutput         = "output"
	FrameSessionKilled  = "session_killed"
	FrameError          = "error"
)
