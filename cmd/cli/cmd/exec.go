package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/codedesk/codedesk/pkg/types"
)

var execCmd = &cobra.Command{
	Use:   "exec <command> [args...]",
	Short: "Run a one-shot command in the workspace",
	Long: `Run a command to completion and print its output. The arguments are
sent as an exact argument vector, so no shell interprets them.
Example: codedesk exec ls -la src`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetInt("timeout")
		workdir, _ := cmd.Flags().GetString("workdir")

		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Second)
		defer cancel()

		result, err := c.Execute(ctx, types.ExecuteRequest{
			Argv:       args,
			WorkingDir: workdir,
			Timeout:    timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to execute command: %w", err)
		}

		return printResult(cmd, result)
	},
}

var shellCmd = &cobra.Command{
	Use:   "shell <command>",
	Short: "Run a shell command line in the workspace",
	Long: `Run a command line through the server's shell, so pipes and
redirection work.
Example: codedesk shell "grep -r TODO src | wc -l"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetInt("timeout")
		workdir, _ := cmd.Flags().GetString("workdir")

		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Second)
		defer cancel()

		result, err := c.Execute(ctx, types.ExecuteRequest{
			Command:    args[0],
			WorkingDir: workdir,
			Timeout:    timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to execute command: %w", err)
		}

		return printResult(cmd, result)
	},
}

// printResult renders an execution result and exits with the command's own
// code when it failed, so shell scripts can branch on it.
func printResult(cmd *cobra.Command, result *types.ExecuteResult) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		if !result.Success {
			os.Exit(exitCode(result))
		}
		return nil
	}

	if result.Stdout != "" {
		fmt.Print(result.Stdout)
	}
	if result.Stderr != "" {
		fmt.Fprint(cmd.ErrOrStderr(), result.Stderr)
	}
	if result.Error != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", result.Error)
	}
	if result.Truncated {
		fmt.Fprintln(cmd.ErrOrStderr(), "(output truncated)")
	}
	if !result.Success {
		os.Exit(exitCode(result))
	}
	return nil
}

func exitCode(result *types.ExecuteResult) int {
	if result.ExitCode > 0 && result.ExitCode < 256 {
		return result.ExitCode
	}
	return 1
}

func init() {
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(shellCmd)

	for _, c := range []*cobra.Command{execCmd, shellCmd} {
		c.Flags().Bool("json", false, "Output the full result as JSON")
		c.Flags().Int("timeout", 0, "Execution timeout in seconds (0 = server default)")
		c.Flags().String("workdir", "", "Working directory for the command")
	}
	// Stop parsing flags after the first non-flag arg so that arguments
	// like --version reach the executed command, not Cobra.
	execCmd.Flags().SetInterspersed(false)
}
