package terminal

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"syscall"
	"time"

	ptylib "github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/codedesk/codedesk/pkg/types"
)

// ErrUnknownSession is returned when an operation references a session id
// absent from the registry. A not-found condition, not a fault.
var ErrUnknownSession = errors.New("unknown session")

// outputChanCap bounds buffered interactive output. A pump blocked on a
// full channel stops reading, which backpressures the process through the
// pipe instead of growing memory.
const outputChanCap = 64

// SessionLogger receives interactive session lifecycle records.
// Implemented by the audit log; a nil logger disables recording.
type SessionLogger interface {
	LogSessionStart(sessionID, shell string, pid int)
	LogSessionEnd(sessionID, reason string)
}

// ManagerOptions configures the interactive session manager.
type ManagerOptions struct {
	Shell        string        // default shell, /bin/bash when empty
	WorkspaceDir string        // working directory for new shells
	ReadWait     time.Duration // bound on Send's wait for output
	UsePTY       bool          // run shells on a pseudo-terminal
	MaxSessions  int           // cap on live interactive sessions, 0 = unlimited
	Logger       SessionLogger // optional audit sink
}

// Manager creates, feeds and kills long-lived shell sessions. Sessions are
// held solely in the registry; the manager itself carries no mutable state.
type Manager struct {
	registry *Registry
	opts     ManagerOptions
}

// NewManager creates an interactive session manager.
func NewManager(registry *Registry, opts ManagerOptions) *Manager {
	if opts.Shell == "" {
		opts.Shell = "/bin/bash"
	}
	if opts.ReadWait <= 0 {
		opts.ReadWait = 100 * time.Millisecond
	}
	return &Manager{registry: registry, opts: opts}
}

// Create spawns a long-lived shell and registers it. It fails when the id
// is already taken, the session cap is reached, or the shell cannot start.
//
// In pipe mode (the default) the shell gets plain stdin/stdout/stderr pipes
// and resize is a no-op. With UsePTY the shell runs on a pseudo-terminal,
// which makes resize meaningful and merges stderr into the terminal stream.
func (m *Manager) Create(req types.SessionCreateRequest) (*Session, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()[:8]
	}
	shell := req.Shell
	if shell == "" {
		shell = m.opts.Shell
	}

	if m.opts.MaxSessions > 0 && m.registry.CountKind(KindInteractive) >= m.opts.MaxSessions {
		return nil, fmt.Errorf("session limit reached (%d)", m.opts.MaxSessions)
	}
	if _, ok := m.registry.Get(sessionID); ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
	}

	cmd := exec.Command(shell)
	cmd.Dir = m.opts.WorkspaceDir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	var (
		stdin      io.WriteCloser
		ptmx       *os.File
		stdoutPipe io.ReadCloser
		stderrPipe io.ReadCloser
	)
	if m.opts.UsePTY {
		cols, rows := req.Cols, req.Rows
		if cols <= 0 {
			cols = 80
		}
		if rows <= 0 {
			rows = 24
		}
		var err error
		ptmx, err = ptylib.StartWithSize(cmd, &ptylib.Winsize{
			Rows: uint16(rows),
			Cols: uint16(cols),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to start %s: %w", shell, err)
		}
		stdin = ptmx
	} else {
		// Own process group so kill takes the shell's children with it.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		var err error
		if stdin, err = cmd.StdinPipe(); err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		if stdoutPipe, err = cmd.StdoutPipe(); err != nil {
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
		if stderrPipe, err = cmd.StderrPipe(); err != nil {
			return nil, fmt.Errorf("stderr pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start %s: %w", shell, err)
		}
	}

	sess := NewSession(sessionID, KindInteractive, cmd, cmd.Dir)
	sess.stdin = stdin
	sess.pty = ptmx
	sess.output = make(chan []byte, outputChanCap)

	if ptmx != nil {
		go pump(ptmx, sess.output, sess.done)
	} else {
		go pump(stdoutPipe, sess.output, sess.done)
		go pump(stderrPipe, sess.output, sess.done)
	}

	if err := m.registry.Register(sess); err != nil {
		sess.terminate()
		return nil, err
	}

	if m.opts.Logger != nil {
		m.opts.Logger.LogSessionStart(sessionID, shell, sess.PID())
	}
	log.Printf("terminal: session %s created (shell=%s pid=%d pty=%v)", sessionID, shell, sess.PID(), ptmx != nil)
	return sess, nil
}

// GetOrCreate attaches to an existing interactive session or creates one.
// The boolean reports whether a new shell was spawned.
func (m *Manager) GetOrCreate(req types.SessionCreateRequest) (*Session, bool, error) {
	if req.SessionID != "" {
		if sess, ok := m.interactive(req.SessionID); ok {
			return sess, false, nil
		}
	}
	sess, err := m.Create(req)
	if err != nil {
		// Lost a create race; the winner's session serves the attach.
		if errors.Is(err, ErrSessionExists) {
			if sess, ok := m.interactive(req.SessionID); ok {
				return sess, false, nil
			}
		}
		return nil, false, err
	}
	return sess, true, nil
}

// Get looks up an interactive session.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	return m.interactive(sessionID)
}

// Send writes input to the session's shell, then returns whatever output is
// ready within the read bound. Nothing ready inside the bound yields an
// empty chunk, not an error. This is a best-effort poll for request/response
// callers; the WebSocket bridge uses Write and Output instead.
func (m *Manager) Send(sessionID string, input []byte) ([]byte, error) {
	sess, ok := m.interactive(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	m.registry.Touch(sessionID)

	if len(input) > 0 {
		if _, err := sess.stdin.Write(input); err != nil {
			// The shell is gone. Converge on the kill path so the registry
			// entry cannot outlive its process.
			m.Kill(sessionID)
			return nil, fmt.Errorf("session %s: write failed: %w", sessionID, err)
		}
	}

	if out := drainOutput(sess, nil); len(out) > 0 {
		return out, nil
	}

	timer := time.NewTimer(m.opts.ReadWait)
	defer timer.Stop()
	select {
	case chunk := <-sess.output:
		return drainOutput(sess, chunk), nil
	case <-sess.Done():
		return drainOutput(sess, nil), nil
	case <-timer.C:
		return nil, nil
	}
}

// Write sends input without waiting for output.
func (m *Manager) Write(sessionID string, input []byte) error {
	sess, ok := m.interactive(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	m.registry.Touch(sessionID)
	if _, err := sess.stdin.Write(input); err != nil {
		m.Kill(sessionID)
		return fmt.Errorf("session %s: write failed: %w", sessionID, err)
	}
	return nil
}

// Output returns the session's output channel for event-driven consumption.
func (m *Manager) Output(sessionID string) (<-chan []byte, bool) {
	sess, ok := m.interactive(sessionID)
	if !ok {
		return nil, false
	}
	return sess.output, true
}

// Resize propagates terminal dimensions to PTY-backed sessions. Pipe-backed
// sessions have no terminal to resize; the call is accepted and ignored so
// clients can send resize unconditionally.
func (m *Manager) Resize(sessionID string, cols, rows int) error {
	sess, ok := m.interactive(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	if sess.pty == nil {
		return nil
	}
	return ptylib.Setsize(sess.pty, &ptylib.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

// Kill terminates a session and removes it from the registry. Returns false
// when the session does not exist, including on a repeated kill.
func (m *Manager) Kill(sessionID string) bool {
	killed := m.registry.Kill(sessionID)
	if killed {
		if m.opts.Logger != nil {
			m.opts.Logger.LogSessionEnd(sessionID, "killed")
		}
		log.Printf("terminal: session %s killed", sessionID)
	}
	return killed
}

// Cleanup terminates every remaining session. Used at subsystem shutdown;
// failures inside the termination path are logged, never fatal.
func (m *Manager) Cleanup() {
	if n := m.registry.KillAll(); n > 0 {
		log.Printf("terminal: cleaned up %d sessions at shutdown", n)
	}
}

func (m *Manager) interactive(sessionID string) (*Session, bool) {
	sess, ok := m.registry.Get(sessionID)
	if !ok || sess.Kind != KindInteractive {
		return nil, false
	}
	return sess, true
}

// pump copies a process output stream into the session's output channel in
// 4KiB chunks until the stream closes or the session is reaped.
func pump(r io.Reader, ch chan<- []byte, done <-chan struct{}) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case ch <- chunk:
			case <-done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// drainOutput collects every chunk that is already buffered.
func drainOutput(sess *Session, acc []byte) []byte {
	for {
		select {
		case chunk := <-sess.output:
			acc = append(acc, chunk...)
		default:
			return acc
		}
	}
}
