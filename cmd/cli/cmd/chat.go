package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/codedesk/codedesk/pkg/types"
)

var chatCmd = &cobra.Command{
	Use:   "chat <prompt>",
	Short: "Ask the assistant a question",
	Long: `Send a prompt to the assistant. Pass --session to keep a conversation
going across invocations; the server replies with the session id to reuse.
Example: codedesk chat --session review-1 "why does the build fail?"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")

		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		resp, err := c.Generate(ctx, types.GenerateRequest{
			Prompt:    args[0],
			SessionID: sessionID,
		})
		if err != nil {
			return fmt.Errorf("chat failed: %w", err)
		}

		fmt.Println(resp.Response)
		if sessionID == "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "(session %s; pass --session %s to continue)\n", resp.SessionID, resp.SessionID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("session", "", "Conversation session id to continue")
}
