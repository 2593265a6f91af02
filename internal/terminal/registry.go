package terminal

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/codedesk/codedesk/internal/metrics"
	"github.com/codedesk/codedesk/pkg/types"
)

// Kind distinguishes ephemeral one-shot executions from persistent shells.
type Kind string

const (
	KindOneShot     Kind = "oneshot"
	KindInteractive Kind = "interactive"
)

// ErrSessionExists is returned when registering a session id that is
// already present in the registry.
var ErrSessionExists = errors.New("session already exists")

// killReapTimeout bounds how long termination waits for a killed process to
// be reaped before giving up and logging.
const killReapTimeout = 5 * time.Second

// Session is a registry-tracked process. The registry owns the process
// handle: an entry is only ever removed together with termination or a
// confirmed natural exit, so a process never runs without an entry and an
// entry never outlives its process.
type Session struct {
	ID         string
	Kind       Kind
	Cmd        *exec.Cmd
	WorkingDir string
	CreatedAt  time.Time

	lastActivity time.Time // guarded by the owning registry's lock

	// Interactive sessions only; nil for one-shot executions.
	stdin  io.WriteCloser
	output chan []byte
	pty    *os.File

	done    chan struct{} // closed by the reaper once the process exits
	waitErr error         // valid after done is closed
}

// NewSession wraps a started command and begins reaping it in the
// background. The command must already have been started.
func NewSession(id string, kind Kind, cmd *exec.Cmd, workingDir string) *Session {
	s := &Session{
		ID:         id,
		Kind:       kind,
		Cmd:        cmd,
		WorkingDir: workingDir,
		CreatedAt:  time.Now(),
		done:       make(chan struct{}),
	}
	s.lastActivity = s.CreatedAt
	go func() {
		s.waitErr = cmd.Wait()
		close(s.done)
	}()
	return s
}

// Done is closed once the process has exited and been reaped.
func (s *Session) Done() <-chan struct{} { return s.done }

// WaitErr reports the reap result. Only meaningful after Done is closed.
func (s *Session) WaitErr() error { return s.waitErr }

// Exited reports whether the process has been reaped.
func (s *Session) Exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// PID returns the process id, or 0 if the command never started.
func (s *Session) PID() int {
	if s.Cmd != nil && s.Cmd.Process != nil {
		return s.Cmd.Process.Pid
	}
	return 0
}

// terminate kills the session's process group, closes its terminal or input
// pipe, and waits for the reaper. Safe to call on a process that already
// exited. Every cancellation path (timeout, explicit kill, disconnect,
// shutdown) funnels through here.
func (s *Session) terminate() {
	if s.Cmd != nil && s.Cmd.Process != nil {
		pid := s.Cmd.Process.Pid
		if err := unix.Kill(-pid, unix.SIGKILL); err != nil {
			// No such group: already gone, or the process was never a
			// group leader. Fall back to killing the process itself.
			_ = s.Cmd.Process.Kill()
		}
	}
	if s.pty != nil {
		_ = s.pty.Close()
	} else if s.stdin != nil {
		_ = s.stdin.Close()
	}
	select {
	case <-s.done:
	case <-time.After(killReapTimeout):
		log.Printf("terminal: session %s not reaped within %v of SIGKILL", s.ID, killReapTimeout)
	}
}

// Registry is the process-safe map of live sessions. It is the only shared
// mutable state in the terminal subsystem; all mutation happens under its
// lock and the underlying map is never exposed.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register adds a session. Registering an id that is already present is an
// error; the caller keeps ownership of the process in that case.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return fmt.Errorf("%w: %s", ErrSessionExists, s.ID)
	}
	r.sessions[s.ID] = s
	metrics.ActiveSessions.Inc()
	return nil
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Touch refreshes a session's last-activity timestamp.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.lastActivity = time.Now()
	}
}

// Remove deletes an entry without touching the process. Callers use it when
// the process has already been terminated or reaped, such as the one-shot
// executor's deregistration after completion.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		metrics.ActiveSessions.Dec()
	}
}

// Kill terminates a session and removes it. The whole terminate, reap,
// delete sequence runs under the registry lock so no caller can observe a
// removed-but-still-running or present-but-reaped intermediate state.
// Returns false when the id is not registered, including on a second kill
// of the same id.
func (r *Registry) Kill(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	s.terminate()
	delete(r.sessions, id)
	metrics.ActiveSessions.Dec()
	return true
}

// KillAll terminates every registered session and returns how many were
// cleaned up. Used at subsystem shutdown.
func (r *Registry) KillAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.sessions)
	for id, s := range r.sessions {
		s.terminate()
		delete(r.sessions, id)
		metrics.ActiveSessions.Dec()
	}
	return n
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CountKind returns the number of registered sessions of the given kind.
func (r *Registry) CountKind(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// List returns a snapshot of all registered sessions, oldest first.
func (r *Registry) List() []types.SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, types.SessionInfo{
			SessionID:    s.ID,
			Kind:         string(s.Kind),
			PID:          s.PID(),
			WorkingDir:   s.WorkingDir,
			CreatedAt:    s.CreatedAt.Format(time.RFC3339),
			LastActivity: s.lastActivity.Format(time.RFC3339),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt == out[j].CreatedAt {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out
}
