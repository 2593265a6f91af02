package terminal

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/codedesk/codedesk/pkg/types"
)

// newTestManager uses /bin/cat as the "shell": it echoes stdin to stdout,
// which makes output deterministic without prompt noise.
func newTestManager(t *testing.T, opts ManagerOptions) (*Manager, *Registry) {
	t.Helper()
	if opts.Shell == "" {
		opts.Shell = "/bin/cat"
	}
	if opts.ReadWait == 0 {
		opts.ReadWait = 500 * time.Millisecond
	}
	if opts.WorkspaceDir == "" {
		opts.WorkspaceDir = t.TempDir()
	}
	reg := NewRegistry()
	m := NewManager(reg, opts)
	t.Cleanup(m.Cleanup)
	return m, reg
}

// collectOutput polls a session until it produces output or the deadline
// passes.
func collectOutput(t *testing.T, m *Manager, id string, deadline time.Duration) string {
	t.Helper()
	var got []byte
	end := time.Now().Add(deadline)
	for len(got) == 0 && time.Now().Before(end) {
		out, err := m.Send(id, nil)
		if err != nil {
			t.Fatalf("Send(%s): %v", id, err)
		}
		got = append(got, out...)
	}
	return string(got)
}

func TestManagerCreateAndSend(t *testing.T) {
	m, _ := newTestManager(t, ManagerOptions{})

	sess, err := m.Create(types.SessionCreateRequest{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.PID() <= 0 {
		t.Fatalf("PID = %d, want > 0", sess.PID())
	}

	out, err := m.Send("s1", []byte("hello\n"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := string(out)
	if got == "" {
		got = collectOutput(t, m, "s1", 2*time.Second)
	}
	if !strings.Contains(got, "hello") {
		t.Errorf("output = %q, want echo of input", got)
	}
}

func TestManagerSendNoOutputIsEmptyNotError(t *testing.T) {
	m, _ := newTestManager(t, ManagerOptions{ReadWait: 100 * time.Millisecond})

	if _, err := m.Create(types.SessionCreateRequest{SessionID: "quiet"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// cat produces nothing until it receives input.
	out, err := m.Send("quiet", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Send returned %q, want empty chunk", out)
	}
}

func TestManagerSessionIsolation(t *testing.T) {
	m, _ := newTestManager(t, ManagerOptions{ReadWait: 200 * time.Millisecond})

	if _, err := m.Create(types.SessionCreateRequest{SessionID: "a"}); err != nil {
		t.Fatalf("Create a: %v", err)
	}
	if _, err := m.Create(types.SessionCreateRequest{SessionID: "b"}); err != nil {
		t.Fatalf("Create b: %v", err)
	}

	if _, err := m.Send("a", []byte("only for a\n")); err != nil {
		t.Fatalf("Send a: %v", err)
	}

	out, err := m.Send("b", nil)
	if err != nil {
		t.Fatalf("Send b: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("session b observed %q, want nothing", out)
	}
}

func TestManagerSendUnknownSession(t *testing.T) {
	m, _ := newTestManager(t, ManagerOptions{})

	_, err := m.Send("ghost", []byte("hi"))
	if !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Send error = %v, want ErrUnknownSession", err)
	}
}

func TestManagerKillIdempotent(t *testing.T) {
	m, reg := newTestManager(t, ManagerOptions{})

	if _, err := m.Create(types.SessionCreateRequest{SessionID: "victim"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !m.Kill("victim") {
		t.Fatal("first Kill returned false")
	}
	if reg.Len() != 0 {
		t.Errorf("registry holds %d entries after Kill", reg.Len())
	}
	if _, err := m.Send("victim", []byte("hi")); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Send after Kill = %v, want ErrUnknownSession", err)
	}
	if m.Kill("victim") {
		t.Error("second Kill returned true, want false")
	}
}

func TestManagerCreateDuplicateID(t *testing.T) {
	m, _ := newTestManager(t, ManagerOptions{})

	if _, err := m.Create(types.SessionCreateRequest{SessionID: "dup"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Create(types.SessionCreateRequest{SessionID: "dup"}); !errors.Is(err, ErrSessionExists) {
		t.Errorf("duplicate Create = %v, want ErrSessionExists", err)
	}
}

func TestManagerWriteAfterExit(t *testing.T) {
	m, reg := newTestManager(t, ManagerOptions{})

	// /bin/true exits immediately, leaving a broken stdin pipe behind.
	sess, err := m.Create(types.SessionCreateRequest{SessionID: "gone", Shell: "/bin/true"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("/bin/true did not exit")
	}

	_, err = m.Send("gone", []byte("anyone there?\n"))
	if err == nil {
		t.Fatal("Send to exited session succeeded, want communication error")
	}
	if !strings.Contains(err.Error(), "write failed") {
		t.Errorf("Send error = %v, want a write failure", err)
	}
	// The failed write converges on the kill path.
	if reg.Len() != 0 {
		t.Errorf("registry holds %d entries after broken-pipe send", reg.Len())
	}
	if m.Kill("gone") {
		t.Error("Kill after implicit cleanup returned true")
	}
}

func TestManagerMaxSessions(t *testing.T) {
	m, _ := newTestManager(t, ManagerOptions{MaxSessions: 1})

	if _, err := m.Create(types.SessionCreateRequest{SessionID: "one"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Create(types.SessionCreateRequest{SessionID: "two"}); err == nil {
		t.Error("Create over the session cap succeeded")
	} else if !strings.Contains(err.Error(), "session limit") {
		t.Errorf("Create error = %v, want session limit", err)
	}
}

func TestManagerGetOrCreate(t *testing.T) {
	m, _ := newTestManager(t, ManagerOptions{})

	sess, created, err := m.GetOrCreate(types.SessionCreateRequest{SessionID: "att"})
	if err != nil || !created {
		t.Fatalf("GetOrCreate = (%v, created=%v)", err, created)
	}

	again, created, err := m.GetOrCreate(types.SessionCreateRequest{SessionID: "att"})
	if err != nil {
		t.Fatalf("GetOrCreate attach: %v", err)
	}
	if created {
		t.Error("attach reported a new session")
	}
	if again.PID() != sess.PID() {
		t.Errorf("attach PID = %d, want %d", again.PID(), sess.PID())
	}
}

func TestManagerCleanup(t *testing.T) {
	m, reg := newTestManager(t, ManagerOptions{})

	first, err := m.Create(types.SessionCreateRequest{SessionID: "c1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := m.Create(types.SessionCreateRequest{SessionID: "c2"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	m.Cleanup()
	if reg.Len() != 0 {
		t.Errorf("registry holds %d entries after Cleanup", reg.Len())
	}
	if !first.Exited() || !second.Exited() {
		t.Error("Cleanup left processes running")
	}
}

func TestManagerResizePipeModeIsNoop(t *testing.T) {
	m, _ := newTestManager(t, ManagerOptions{})

	if _, err := m.Create(types.SessionCreateRequest{SessionID: "narrow"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Resize("narrow", 120, 40); err != nil {
		t.Errorf("Resize in pipe mode = %v, want nil", err)
	}
	if err := m.Resize("ghost", 80, 24); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Resize unknown = %v, want ErrUnknownSession", err)
	}
}

func TestManagerPTYSession(t *testing.T) {
	m, _ := newTestManager(t, ManagerOptions{UsePTY: true})

	sess, err := m.Create(types.SessionCreateRequest{SessionID: "pty", Cols: 100, Rows: 30})
	if err != nil {
		t.Skipf("pseudo-terminal unavailable: %v", err)
	}
	if sess.pty == nil {
		t.Fatal("PTY session has no terminal")
	}

	if _, err := m.Send("pty", []byte("hi\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	out := collectOutput(t, m, "pty", 2*time.Second)
	if !strings.Contains(out, "hi") {
		t.Errorf("PTY output = %q, want echo of input", out)
	}

	if err := m.Resize("pty", 132, 43); err != nil {
		t.Errorf("Resize on PTY: %v", err)
	}
	if !m.Kill("pty") {
		t.Error("Kill returned false")
	}
}
