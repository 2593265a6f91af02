package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/codedesk/codedesk/pkg/types"
)

var attachCmd = &cobra.Command{
	Use:   "attach <session-id>",
	Short: "Attach a live terminal to an interactive session",
	Long: `Attach the current terminal to an interactive session over WebSocket,
creating the session if it does not exist yet. Keystrokes are forwarded as
they are typed; exiting the remote shell (exit, Ctrl-D) ends the session.

Detaching is the same as exiting: a session loses its process when its
connection goes away. Run the server with CODEDESK_TERMINAL_PTY=true for
full-screen programs and proper line endings.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]
		c := newClient()

		conn, resp, err := websocket.DefaultDialer.Dial(c.WSURL(sessionID, ""), nil)
		if err != nil {
			if resp != nil {
				return fmt.Errorf("connect failed (status %d): %w", resp.StatusCode, err)
			}
			return fmt.Errorf("connect failed: %w", err)
		}
		defer conn.Close()

		var created types.Frame
		if err := conn.ReadJSON(&created); err != nil {
			return fmt.Errorf("read handshake frame: %w", err)
		}
		if created.Type != types.FrameSessionCreated {
			return fmt.Errorf("unexpected handshake frame %q", created.Type)
		}
		fmt.Fprintf(os.Stderr, "attached to session %s (pid %d)\r\n", created.SessionID, created.PID)

		restore, err := makeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("raw mode: %w", err)
		}
		defer restore()

		if cols, rows := termSize(); cols > 0 {
			_ = conn.WriteJSON(types.Frame{Type: types.FrameResize, Cols: cols, Rows: rows})
		}
		winch := make(chan os.Signal, 1)
		signal.Notify(winch, syscall.SIGWINCH)
		defer signal.Stop(winch)
		go func() {
			for range winch {
				cols, rows := termSize()
				_ = conn.WriteJSON(types.Frame{Type: types.FrameResize, Cols: cols, Rows: rows})
			}
		}()

		done := make(chan error, 2)

		// Server to terminal.
		go func() {
			for {
				var f types.Frame
				if err := conn.ReadJSON(&f); err != nil {
					done <- nil // connection closed under us
					return
				}
				switch f.Type {
				case types.FrameOutput:
					os.Stdout.WriteString(f.Data)
				case types.FrameSessionKilled:
					done <- nil
					return
				case types.FrameError:
					done <- errors.New(f.Message)
					return
				}
			}
		}()

		// Terminal to server. Raw mode passes Ctrl-D through to the shell,
		// so the natural exit path arrives back as a session_killed frame.
		go func() {
			buf := make([]byte, 1024)
			for {
				n, err := os.Stdin.Read(buf)
				if n > 0 {
					if werr := conn.WriteJSON(types.Frame{Type: types.FrameInput, Data: string(buf[:n])}); werr != nil {
						done <- nil
						return
					}
				}
				if err != nil {
					done <- nil
					return
				}
			}
		}()

		err = <-done
		restore()
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "session %s ended\n", sessionID)
		return nil
	},
}

// makeRaw switches the terminal to raw mode and returns a restore func. A
// non-terminal stdin (pipes, CI) is left alone.
func makeRaw(fd int) (func(), error) {
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return func() { _ = term.Restore(fd, oldState) }, nil
}

func termSize() (cols, rows int) {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0, 0
	}
	c, r, err := term.GetSize(fd)
	if err != nil || c <= 0 || r <= 0 {
		return 80, 24
	}
	return c, r
}

func init() {
	rootCmd.AddCommand(attachCmd)
}
