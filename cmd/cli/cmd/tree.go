package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/codedesk/codedesk/pkg/types"
)

var treeCmd = &cobra.Command{
	Use:   "tree [path]",
	Short: "Show a workspace directory tree",
	Long: `Show a bounded-depth tree of a workspace directory. Heavy directories
like node_modules and .git are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		depth, _ := cmd.Flags().GetInt("depth")

		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		root, err := c.FileTree(ctx, path, depth)
		if err != nil {
			return fmt.Errorf("failed to fetch tree: %w", err)
		}

		fmt.Printf("%s/\n", root.Name)
		printTree(root, "")
		return nil
	},
}

func printTree(n *types.TreeNode, prefix string) {
	for i, child := range n.Children {
		connector, childPrefix := "├── ", prefix+"│   "
		if i == len(n.Children)-1 {
			connector, childPrefix = "└── ", prefix+"    "
		}

		name := child.Name
		if child.Type == "directory" {
			name += "/"
		}
		if child.Error != "" {
			name += " [" + child.Error + "]"
		}
		fmt.Println(prefix + connector + name)
		printTree(child, childPrefix)
	}
}

func init() {
	rootCmd.AddCommand(treeCmd)

	treeCmd.Flags().Int("depth", 0, "Maximum depth (0 = server default)")
}
