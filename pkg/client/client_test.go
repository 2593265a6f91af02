package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/codedesk/codedesk/internal/api"
	"github.com/codedesk/codedesk/internal/auth"
	"github.com/codedesk/codedesk/internal/config"
	"github.com/codedesk/codedesk/internal/history"
	"github.com/codedesk/codedesk/internal/model"
	"github.com/codedesk/codedesk/internal/terminal"
	"github.com/codedesk/codedesk/pkg/types"
)

// newTestAPI starts a real server for the client to talk to.
func newTestAPI(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		APIKey:             apiKey,
		WorkspaceDir:       t.TempDir(),
		TerminalMaxOutput:  10000,
		TerminalShell:      "/bin/cat",
		MaxContextMessages: 20,
	}

	registry := terminal.NewRegistry()
	validator := terminal.NewValidator(nil, nil)
	executor := terminal.NewExecutor(registry, validator, terminal.ExecutorOptions{
		WorkspaceDir:   cfg.WorkspaceDir,
		DefaultTimeout: 5 * time.Second,
		MaxOutput:      cfg.TerminalMaxOutput,
	})
	sessions := terminal.NewManager(registry, terminal.ManagerOptions{
		Shell:        cfg.TerminalShell,
		WorkspaceDir: cfg.WorkspaceDir,
		ReadWait:     300 * time.Millisecond,
	})
	t.Cleanup(sessions.Cleanup)

	mem := history.NewMemoryStore(40, 0, 0)
	t.Cleanup(func() { mem.Close() })

	srv := httptest.NewServer(api.NewServer(api.Deps{
		Config:   cfg,
		Executor: executor,
		Sessions: sessions,
		Registry: registry,
		Model:    model.NewClient("", 0),
		History:  mem,
		Tokens:   auth.NewTokenIssuer("client-test"),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientExecute(t *testing.T) {
	srv := newTestAPI(t, "")
	c := NewClient(srv.URL, "")

	result, err := c.Execute(context.Background(), types.ExecuteRequest{Command: "echo over the wire"})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success || !strings.Contains(result.Output, "over the wire") {
		t.Errorf("result = %+v", result)
	}
}

func TestClientFileRoundTrip(t *testing.T) {
	srv := newTestAPI(t, "")
	c := NewClient(srv.URL, "")
	ctx := context.Background()

	if err := c.WriteFile(ctx, "dir/hello.txt", "hi there"); err != nil {
		t.Fatal(err)
	}
	content, err := c.ReadFile(ctx, "dir/hello.txt")
	if err != nil {
		t.Fatal(err)
	}
	if content.Content != "hi there" {
		t.Errorf("content = %q", content.Content)
	}

	entries, err := c.ListFiles(ctx, "dir")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "hello.txt" {
		t.Errorf("entries = %+v", entries)
	}

	if err := c.RenameFile(ctx, "dir/hello.txt", "hello2.txt"); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteFile(ctx, "hello2.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ReadFile(ctx, "hello2.txt"); err == nil {
		t.Error("read after delete succeeded")
	} else if !strings.Contains(err.Error(), "API error (status 404)") {
		t.Errorf("err = %v", err)
	}
}

func TestClientSessions(t *testing.T) {
	srv := newTestAPI(t, "")
	c := NewClient(srv.URL, "")
	ctx := context.Background()

	created, err := c.CreateSession(ctx, types.SessionCreateRequest{SessionID: "cli-sess"})
	if err != nil {
		t.Fatal(err)
	}
	if created.SessionID != "cli-sess" || created.PID <= 0 {
		t.Errorf("created = %+v", created)
	}

	out, err := c.SendInput(ctx, "cli-sess", "knock knock\n")
	if err != nil {
		t.Fatal(err)
	}
	if out == "" {
		// One more poll for slow echoes.
		out, err = c.SendInput(ctx, "cli-sess", "")
		if err != nil {
			t.Fatal(err)
		}
	}
	if !strings.Contains(out, "knock knock") {
		t.Errorf("output = %q", out)
	}

	list, err := c.ListSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if list.Count != 1 {
		t.Errorf("list = %+v", list)
	}

	if err := c.KillSession(ctx, "cli-sess"); err != nil {
		t.Fatal(err)
	}
	if err := c.KillSession(ctx, "cli-sess"); err == nil {
		t.Error("second kill succeeded")
	}
}

func TestClientAuth(t *testing.T) {
	srv := newTestAPI(t, "sekrit")
	ctx := context.Background()

	if _, err := NewClient(srv.URL, "").ListSessions(ctx); err == nil {
		t.Error("unauthenticated list succeeded")
	} else if !strings.Contains(err.Error(), "status 401") {
		t.Errorf("err = %v", err)
	}

	if _, err := NewClient(srv.URL, "sekrit").ListSessions(ctx); err != nil {
		t.Errorf("authenticated list failed: %v", err)
	}
}

func TestWSURL(t *testing.T) {
	c := NewClient("https://box.example.com/", "key123")

	got := c.WSURL("s1", "")
	if got != "wss://box.example.com/api/terminal/ws/s1?api_key=key123" {
		t.Errorf("WSURL = %q", got)
	}

	got = c.WSURL("s1", "tok")
	if got != "wss://box.example.com/api/terminal/ws/s1?token=tok" {
		t.Errorf("WSURL with token = %q", got)
	}

	got = NewClient("http://localhost:8000", "").WSURL("s2", "")
	if got != "ws://localhost:8000/api/terminal/ws/s2" {
		t.Errorf("WSURL without credentials = %q", got)
	}
}
