package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage workspace files",
	Long:  `Read, write, list, move and delete files in the workspace.`,
}

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a workspace file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		content, err := c.ReadFile(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		fmt.Print(content.Content)
		return nil
	},
}

var writeCmd = &cobra.Command{
	Use:   "write <path> <content>",
	Short: "Write a workspace file",
	Long: `Write content to a file, creating parent directories. Use - to read
from stdin.
Example: codedesk files write notes.md "remember the tests"
         git diff | codedesk files write review.patch -`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		content := args[1]

		if content == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read from stdin: %w", err)
			}
			content = string(data)
		}

		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.WriteFile(ctx, path, content); err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}

		fmt.Printf("✓ File written: %s\n", path)
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a workspace directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}

		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		files, err := c.ListFiles(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to list directory: %w", err)
		}

		if len(files) == 0 {
			fmt.Println("(empty directory)")
			return nil
		}

		longFormat, _ := cmd.Flags().GetBool("long")
		if longFormat {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, f := range files {
				typ := "-"
				if f.IsDir {
					typ = "d"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", typ, f.Size, f.Modified, f.Name)
			}
			w.Flush()
		} else {
			for _, f := range files {
				if f.IsDir {
					fmt.Printf("%s/\n", f.Name)
				} else {
					fmt.Println(f.Name)
				}
			}
		}

		return nil
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <old-path> <new-path>",
	Short: "Rename or move a workspace file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.RenameFile(ctx, args[0], args[1]); err != nil {
			return fmt.Errorf("failed to rename file: %w", err)
		}

		fmt.Printf("✓ Renamed: %s -> %s\n", args[0], args[1])
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Remove a workspace file or directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.DeleteFile(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to remove file: %w", err)
		}

		fmt.Printf("✓ Removed: %s\n", args[0])
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <path> [local-path]",
	Short: "Download a workspace file",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		remote := args[0]
		local := filepath.Base(remote)
		if len(args) == 2 {
			local = args[1]
		}

		out, err := os.Create(local)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", local, err)
		}
		defer out.Close()

		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if err := c.Download(ctx, remote, out); err != nil {
			os.Remove(local)
			return fmt.Errorf("failed to download file: %w", err)
		}

		fmt.Printf("✓ Downloaded: %s -> %s\n", remote, local)
		return nil
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive [path]",
	Short: "Download a directory as a .tar.zst archive",
	Long: `Stream a zstd-compressed tarball of a workspace directory. Without a
path the whole workspace is archived.
Example: codedesk files archive src -o src.tar.zst`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		local, _ := cmd.Flags().GetString("output")
		if local == "" {
			base := "workspace"
			if path != "" {
				base = filepath.Base(path)
			}
			local = base + ".tar.zst"
		}

		out, err := os.Create(local)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", local, err)
		}
		defer out.Close()

		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if err := c.Archive(ctx, path, out); err != nil {
			os.Remove(local)
			return fmt.Errorf("failed to download archive: %w", err)
		}

		fmt.Printf("✓ Archive written: %s\n", local)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(filesCmd)

	filesCmd.AddCommand(catCmd)
	filesCmd.AddCommand(writeCmd)
	filesCmd.AddCommand(lsCmd)
	filesCmd.AddCommand(mvCmd)
	filesCmd.AddCommand(rmCmd)
	filesCmd.AddCommand(downloadCmd)
	filesCmd.AddCommand(archiveCmd)

	lsCmd.Flags().BoolP("long", "l", false, "Use long listing format")
	archiveCmd.Flags().StringP("output", "o", "", "Output file (default <dir>.tar.zst)")
}
