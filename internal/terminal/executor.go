package terminal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/codedesk/codedesk/internal/metrics"
	"github.com/codedesk/codedesk/pkg/types"
)

// truncationMarker is appended to any stream cut at the output cap.
const truncationMarker = "\n... [output truncated]"

// CommandLogger receives a record of each completed one-shot execution.
// Implemented by the audit log; a nil logger disables recording.
type CommandLogger interface {
	LogCommand(sessionID, command string, exitCode int, duration time.Duration, truncated bool)
}

// ExecutorOptions configures a one-shot executor.
type ExecutorOptions struct {
	WorkspaceDir   string        // fallback working directory
	DefaultTimeout time.Duration // applied when a request carries no timeout
	MaxOutput      int           // per-stream output cap in characters
	Logger         CommandLogger // optional audit sink
}

// Executor runs single commands to completion with timeout and output-cap
// enforcement. Every execution is registered in the session registry for
// its lifetime and deregistered on every return path, so no orphan process
// or stale entry can survive a call.
type Executor struct {
	registry  *Registry
	validator *Validator
	opts      ExecutorOptions
}

// NewExecutor creates an executor backed by the given registry and policy.
func NewExecutor(registry *Registry, validator *Validator, opts ExecutorOptions) *Executor {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	if opts.MaxOutput <= 0 {
		opts.MaxOutput = 10000
	}
	return &Executor{registry: registry, validator: validator, opts: opts}
}

// Execute validates and runs a raw command string through `sh -c`, so pipes
// and redirection work. The string reaches a shell verbatim; callers that
// already hold a tokenized command should prefer ExecuteArgv.
func (e *Executor) Execute(ctx context.Context, req types.ExecuteRequest) types.ExecuteResult {
	if v := e.validator.Validate(req.Command); !v.Allowed {
		metrics.CommandsTotal.WithLabelValues("rejected").Inc()
		return types.ExecuteResult{ExitCode: -1, Error: v.Reason}
	}
	return e.run(ctx, exec.Command("sh", "-c", req.Command), req)
}

// ExecuteArgv runs a pre-tokenized argument vector without a shell. Shell
// features are unavailable, and in exchange the vector cannot be re-split
// or expanded, which closes Execute's injection surface.
func (e *Executor) ExecuteArgv(ctx context.Context, argv []string, req types.ExecuteRequest) types.ExecuteResult {
	if v := e.validator.ValidateArgv(argv); !v.Allowed {
		metrics.CommandsTotal.WithLabelValues("rejected").Inc()
		return types.ExecuteResult{ExitCode: -1, Error: v.Reason}
	}
	req.Command = strings.Join(argv, " ")
	return e.run(ctx, exec.Command(argv[0], argv[1:]...), req)
}

func (e *Executor) run(ctx context.Context, cmd *exec.Cmd, req types.ExecuteRequest) types.ExecuteResult {
	start := time.Now()

	timeout := time.Duration(req.Timeout) * time.Second
	if timeout <= 0 {
		timeout = e.opts.DefaultTimeout
	}

	cmd.Dir = e.resolveDir(req.WorkingDir)
	cmd.Env = os.Environ()
	if len(req.Env) > 0 {
		cmd.Env = append(cmd.Env, mapToEnv(req.Env)...)
	}
	// Own process group so a timeout kills the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Capture up to 4x the rune cap (a rune is at most four bytes) plus
	// slack; the final truncation pass is rune-based.
	byteCap := e.opts.MaxOutput*4 + 64
	stdout := &limitWriter{max: byteCap}
	stderr := &limitWriter{max: byteCap}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		metrics.CommandsTotal.WithLabelValues("spawn_error").Inc()
		return types.ExecuteResult{ExitCode: -1, Error: fmt.Sprintf("failed to start command: %v", err)}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "default"
	}
	execID := sessionID + "-" + uuid.New().String()[:8]
	sess := NewSession(execID, KindOneShot, cmd, cmd.Dir)
	if err := e.registry.Register(sess); err != nil {
		sess.terminate()
		return types.ExecuteResult{ExitCode: -1, Error: fmt.Sprintf("failed to register execution: %v", err)}
	}
	// Deregistration runs on every exit path: success, failure, timeout.
	defer e.registry.Remove(execID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res types.ExecuteResult
	status := "ok"
	select {
	case <-sess.Done():
		res = e.finish(sess, stdout, stderr)
		if !res.Success {
			status = "failed"
		}
	case <-timer.C:
		sess.terminate()
		res = e.abortResult(sess, stdout, stderr,
			fmt.Sprintf("command timed out after %ds", int(timeout/time.Second)))
		status = "timeout"
	case <-ctx.Done():
		sess.terminate()
		res = e.abortResult(sess, stdout, stderr, "command canceled")
		status = "canceled"
	}

	duration := time.Since(start)
	metrics.CommandsTotal.WithLabelValues(status).Inc()
	metrics.CommandDuration.Observe(duration.Seconds())
	if e.opts.Logger != nil {
		e.opts.Logger.LogCommand(sessionID, req.Command, res.ExitCode, duration, res.Truncated)
	}
	return res
}

// finish builds the result for a command that ran to completion.
func (e *Executor) finish(sess *Session, stdout, stderr *limitWriter) types.ExecuteResult {
	var res types.ExecuteResult
	res.Stdout, res.Stderr, res.Truncated = e.collect(stdout, stderr)

	if werr := sess.WaitErr(); werr != nil {
		var exitErr *exec.ExitError
		if errors.As(werr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			res.Error = fmt.Sprintf("wait failed: %v", werr)
			res.Output = combineOutput(res.Stdout, res.Stderr)
			return res
		}
	}
	res.Success = res.ExitCode == 0
	res.Output = combineOutput(res.Stdout, res.Stderr)
	return res
}

// abortResult builds the result for a killed command, draining whatever
// output was already captured. When the reap itself timed out the buffers
// are left alone, since a copier may still be writing them.
func (e *Executor) abortResult(sess *Session, stdout, stderr *limitWriter, reason string) types.ExecuteResult {
	res := types.ExecuteResult{ExitCode: -1, Error: reason}
	if sess.Exited() {
		res.Stdout, res.Stderr, res.Truncated = e.collect(stdout, stderr)
	}
	res.Output = combineOutput(res.Stdout, res.Stderr)
	return res
}

func (e *Executor) collect(stdout, stderr *limitWriter) (string, string, bool) {
	out, outTrunc := finalizeStream(stdout, e.opts.MaxOutput)
	errText, errTrunc := finalizeStream(stderr, e.opts.MaxOutput)
	return out, errText, outTrunc || errTrunc
}

// resolveDir uses the requested working directory when it exists on disk,
// falling back to the configured workspace.
func (e *Executor) resolveDir(dir string) string {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return e.opts.WorkspaceDir
}

// limitWriter keeps at most max bytes and discards the rest, remembering
// that it overflowed. A command that floods output is cut at the cap
// instead of growing the buffer without bound.
type limitWriter struct {
	buf      bytes.Buffer
	max      int
	overflow bool
}

func (w *limitWriter) Write(p []byte) (int, error) {
	n := len(p)
	if remaining := w.max - w.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			p = p[:remaining]
			w.overflow = true
		}
		w.buf.Write(p)
	} else if n > 0 {
		w.overflow = true
	}
	return n, nil
}

// finalizeStream decodes a captured stream as text, replacing invalid
// bytes, and truncates past the character cap with a marker. Output at
// exactly the cap is left untouched.
func finalizeStream(w *limitWriter, max int) (string, bool) {
	s := strings.ToValidUTF8(w.buf.String(), string(utf8.RuneError))
	truncated := w.overflow
	if runes := []rune(s); len(runes) > max {
		s = string(runes[:max])
		truncated = true
	}
	if truncated {
		return s + truncationMarker, true
	}
	return s, false
}

// combineOutput renders stdout followed by an stderr section when stderr
// is non-empty.
func combineOutput(stdout, stderr string) string {
	if stderr == "" {
		return stdout
	}
	return stdout + "\n[stderr]:\n" + stderr
}

// mapToEnv converts a map to a KEY=VALUE slice.
func mapToEnv(m map[string]string) []string {
	env := make([]string, 0, len(m))
	for k, v := range m {
		env = append(env, k+"="+v)
	}
	return env
}
