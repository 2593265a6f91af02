package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/codedesk/codedesk/pkg/client"
)

var (
	baseURL string
	apiKey  string
)

var rootCmd = &cobra.Command{
	Use:   "codedesk",
	Short: "codedesk CLI - Drive a codedesk workspace server from the command line",
	Long: `codedesk is a command-line client for the codedesk workspace server.

It runs one-shot commands, manages interactive terminal sessions (including a
full attach mode), browses and edits workspace files, and talks to the
assistant chat endpoints.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", getEnvOrDefault("CODEDESK_URL", "http://localhost:8000"), "codedesk API base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("CODEDESK_API_KEY"), "codedesk API key")
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func newClient() *client.Client {
	return client.NewClient(baseURL, apiKey)
}
