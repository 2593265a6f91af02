package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/codedesk/codedesk/pkg/types"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage interactive terminal sessions",
	Long:  `Create, list and kill long-lived interactive shell sessions.`,
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an interactive session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		shell, _ := cmd.Flags().GetString("shell")

		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		session, err := c.CreateSession(ctx, types.SessionCreateRequest{
			SessionID: id,
			Shell:     shell,
		})
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}

		fmt.Printf("✓ Session created: %s (pid %d)\n", session.SessionID, session.PID)
		fmt.Printf("  attach with: codedesk attach %s\n", session.SessionID)
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		list, err := c.ListSessions(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}

		if list.Count == 0 {
			fmt.Println("No live sessions.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION ID\tKIND\tPID\tCREATED\tLAST ACTIVITY")
		for _, s := range list.Sessions {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", s.SessionID, s.Kind, s.PID, s.CreatedAt, s.LastActivity)
		}
		return w.Flush()
	},
}

var sessionKillCmd = &cobra.Command{
	Use:   "kill <session-id>",
	Short: "Terminate a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.KillSession(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to kill session: %w", err)
		}

		fmt.Printf("✓ Session killed: %s\n", args[0])
		return nil
	},
}

var sessionSendCmd = &cobra.Command{
	Use:   "send <session-id> <input>",
	Short: "Send input to a session and print what comes back",
	Long: `Write input to a session's shell over plain HTTP and print whatever
output was ready within the server's read bound. For a live terminal use
codedesk attach instead.
Example: codedesk session send build-env "make test\n"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		out, err := c.SendInput(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to send input: %w", err)
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionKillCmd)
	sessionCmd.AddCommand(sessionSendCmd)

	sessionCreateCmd.Flags().String("id", "", "Session id (generated when empty)")
	sessionCreateCmd.Flags().String("shell", "", "Shell to run (server default when empty)")
}
