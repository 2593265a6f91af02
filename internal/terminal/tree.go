package terminal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codedesk/codedesk/pkg/types"
)

// DefaultIgnorePatterns excludes version-control, dependency and build
// directories from tree listings. Matching is by substring of the entry
// name.
var DefaultIgnorePatterns = []string{
	".git", "node_modules", "__pycache__", ".venv", "venv", "vendor",
}

// Tree builds a bounded-depth listing rooted at path. The root is depth 0,
// so maxDepth 1 lists the root's entries with empty child lists. Entries
// whose name contains an ignore substring are skipped. An unreadable
// directory becomes a node with Error set and no children rather than
// aborting the walk; unreadable leaves are silently omitted.
func Tree(root string, maxDepth int, ignore []string) (*types.TreeNode, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", root, err)
	}

	node := &types.TreeNode{
		Name:     filepath.Base(root),
		Path:     root,
		Modified: formatModTime(info.ModTime()),
	}
	if !info.IsDir() {
		node.Type = "file"
		node.Size = info.Size()
		return node, nil
	}
	node.Type = "directory"
	fillChildren(node, root, 0, maxDepth, ignore)
	return node, nil
}

// fillChildren lists dir into node. Recursion stops once depth reaches
// maxDepth, leaving directories at the boundary with empty child lists.
func fillChildren(node *types.TreeNode, dir string, depth, maxDepth int, ignore []string) {
	if depth >= maxDepth {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		node.Error = err.Error()
		node.Children = []*types.TreeNode{}
		return
	}

	node.Children = make([]*types.TreeNode, 0, len(entries))
	for _, entry := range entries {
		if ignored(entry.Name(), ignore) {
			continue
		}
		child := &types.TreeNode{
			Name: entry.Name(),
			Path: filepath.Join(dir, entry.Name()),
		}
		if entry.IsDir() {
			child.Type = "directory"
			child.Children = []*types.TreeNode{}
			if info, err := entry.Info(); err == nil {
				child.Modified = formatModTime(info.ModTime())
			}
			fillChildren(child, child.Path, depth+1, maxDepth, ignore)
		} else {
			info, err := entry.Info()
			if err != nil {
				continue
			}
			child.Type = "file"
			child.Size = info.Size()
			child.Modified = formatModTime(info.ModTime())
		}
		node.Children = append(node.Children, child)
	}
}

func ignored(name string, patterns []string) bool {
	for _, pat := range patterns {
		if pat != "" && strings.Contains(name, pat) {
			return true
		}
	}
	return false
}

func formatModTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
