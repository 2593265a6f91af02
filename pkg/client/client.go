// Package client is the Go client for the codedesk HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codedesk/codedesk/pkg/types"
)

// Client is an HTTP client for the codedesk API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new codedesk API client. An empty apiKey is fine when
// the server runs with authentication disabled.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// doRequest performs an HTTP request with API key authentication.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	reqURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}

// apiError renders a non-success response as an error, consuming the body.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
}

// Execute runs a one-shot command and returns its result. A non-zero exit
// code is reported inside the result, not as an error.
func (c *Client) Execute(ctx context.Context, req types.ExecuteRequest) (*types.ExecuteResult, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/terminal/execute", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var result types.ExecuteResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

// CreateSession creates an interactive terminal session.
func (c *Client) CreateSession(ctx context.Context, req types.SessionCreateRequest) (*types.SessionCreateResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/terminal/session/create", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, apiError(resp)
	}

	var session types.SessionCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &session, nil
}

// ListSessions lists the live sessions.
func (c *Client) ListSessions(ctx context.Context) (*types.SessionListResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/terminal/sessions", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var list types.SessionListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &list, nil
}

// KillSession terminates an interactive session.
func (c *Client) KillSession(ctx context.Context, sessionID string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/api/terminal/session/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// SendInput writes input to an interactive session and returns whatever
// output was ready within the server's read bound.
func (c *Client) SendInput(ctx context.Context, sessionID, input string) (string, error) {
	path := "/api/terminal/session/" + url.PathEscape(sessionID) + "/send"
	resp, err := c.doRequest(ctx, http.MethodPost, path, types.SendRequest{Input: input})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}

	var out types.SendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.Output, nil
}

// FileTree fetches a bounded-depth listing of a workspace directory. An
// empty path means the workspace root; maxDepth <= 0 uses the server default.
func (c *Client) FileTree(ctx context.Context, path string, maxDepth int) (*types.TreeNode, error) {
	q := url.Values{}
	if path != "" {
		q.Set("path", path)
	}
	if maxDepth > 0 {
		q.Set("maxDepth", strconv.Itoa(maxDepth))
	}
	reqURL := "/api/terminal/file-tree"
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	resp, err := c.doRequest(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var tree types.TreeNode
	if err := json.NewDecoder(resp.Body).Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &tree, nil
}

// ReadFile reads a workspace file.
func (c *Client) ReadFile(ctx context.Context, path string) (*types.FileContent, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/files/read?path="+url.QueryEscape(path), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var content types.FileContent
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &content, nil
}

// WriteFile writes a workspace file, creating parent directories as needed.
func (c *Client) WriteFile(ctx context.Context, path, content string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/files/write", types.WriteFileRequest{
		Path:    path,
		Content: content,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// DeleteFile removes a workspace file or directory tree.
func (c *Client) DeleteFile(ctx context.Context, path string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/api/files/delete?path="+url.QueryEscape(path), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// RenameFile renames or moves a workspace file.
func (c *Client) RenameFile(ctx context.Context, oldPath, newPath string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/files/rename", types.RenameRequest{
		OldPath: oldPath,
		NewPath: newPath,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// ListFiles lists a workspace directory.
func (c *Client) ListFiles(ctx context.Context, path string) ([]types.EntryInfo, error) {
	reqURL := "/api/files/list"
	if path != "" {
		reqURL += "?path=" + url.QueryEscape(path)
	}
	resp, err := c.doRequest(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var entries []types.EntryInfo
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return entries, nil
}

// Download streams a workspace file into w.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/files/download?path="+url.QueryEscape(path), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download body: %w", err)
	}
	return nil
}

// Archive streams a zstd-compressed tarball of a workspace directory into w.
// An empty path archives the whole workspace.
func (c *Client) Archive(ctx context.Context, path string, w io.Writer) error {
	reqURL := "/api/files/archive"
	if path != "" {
		reqURL += "?path=" + url.QueryEscape(path)
	}
	resp, err := c.doRequest(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("archive body: %w", err)
	}
	return nil
}

// Generate asks the model for a chat response.
func (c *Client) Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/chat/generate", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var out types.GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// Analyze asks the model to review a piece of code.
func (c *Client) Analyze(ctx context.Context, code, analysisType string) (*types.AnalyzeResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/chat/analyze-code", types.AnalyzeRequest{
		Code:         code,
		AnalysisType: analysisType,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var out types.AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// Complete asks for code completion suggestions at a cursor position.
func (c *Client) Complete(ctx context.Context, req types.CompleteRequest) ([]string, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/chat/complete", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var out types.CompleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Suggestions, nil
}

// GetContext fetches the stored conversation context for a chat session.
func (c *Client) GetContext(ctx context.Context, sessionID string) (*types.ContextResponse, error) {
	path := "/api/chat/sessions/" + url.PathEscape(sessionID) + "/context"
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var out types.ContextResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// ClearContext wipes the stored conversation context for a chat session.
func (c *Client) ClearContext(ctx context.Context, sessionID string) error {
	path := "/api/chat/sessions/" + url.PathEscape(sessionID) + "/context"
	resp, err := c.doRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// WSURL builds the WebSocket URL for attaching to an interactive session.
// token is the session token returned by CreateSession; when empty the API
// key (if any) is passed instead.
func (c *Client) WSURL(sessionID, token string) string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	u := base + "/api/terminal/ws/" + url.PathEscape(sessionID)
	q := url.Values{}
	if token != "" {
		q.Set("token", token)
	} else if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}
