package builtin

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stellarlinkco/agentproxy/internal/tool"
)

// RegisterIndexer wires the indexer-family tools. Spec §1 scopes the
// indexer as a collaborator whose internals (symbol tables, embeddings)
// are out of scope; only the interface surface a tool-using agent touches
// is implemented here, backed by a plain filesystem walk and line grep.
func RegisterIndexer(reg *tool.Registry, root string) {
	reg.Register(&tool.Tool{Name: "workspace_list", Category: "indexer", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		dir := root
		if p, ok := c.Params["path"].(string); ok && p != "" {
			resolved, err := resolvePath(root, p)
			if err != nil {
				return "", err
			}
			dir = resolved
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return "", fmt.Errorf("list %s: %w", dir, err)
		}
		var b strings.Builder
		for _, e := range entries {
			if e.IsDir() {
				fmt.Fprintf(&b, "%s/\n", e.Name())
			} else {
				fmt.Fprintf(&b, "%s\n", e.Name())
			}
		}
		return b.String(), nil
	})})

	reg.Register(&tool.Tool{Name: "workspace_search", Category: "indexer", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		query, _ := c.Params["query"].(string)
		if query == "" {
			return "", fmt.Errorf("query is required")
		}
		var b strings.Builder
		matches := 0
		_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() || matches >= 200 {
				return nil
			}
			if strings.Contains(d.Name(), ".git") {
				return nil
			}
			f, err := os.Open(path)
			if err != nil {
				return nil
			}
			defer f.Close()
			scanner := bufio.NewScanner(f)
			line := 0
			for scanner.Scan() && matches < 200 {
				line++
				if strings.Contains(scanner.Text(), query) {
					rel, _ := filepath.Rel(root, path)
					fmt.Fprintf(&b, "%s:%d: %s\n", rel, line, strings.TrimSpace(scanner.Text()))
					matches++
				}
			}
			return nil
		})
		return b.String(), nil
	})})

	reg.Register(&tool.Tool{Name: "workspace_symbol_search", Category: "indexer", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		symbol, _ := c.Params["symbol"].(string)
		return grepPattern(root, "func "+symbol), nil
	})})

	reg.Register(&tool.Tool{Name: "workspace_symbol_references", Category: "indexer", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		symbol, _ := c.Params["symbol"].(string)
		return grepPattern(root, symbol), nil
	})})

	reg.Register(&tool.Tool{Name: "workspace_goto_definition", Category: "indexer", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		symbol, _ := c.Params["symbol"].(string)
		out := grepPattern(root, "func "+symbol)
		if out == "" {
			out = grepPattern(root, "type "+symbol)
		}
		return out, nil
	})})

	reg.Register(&tool.Tool{Name: "workspace_index_rebuild", Category: "indexer", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		count := 0
		_ = filepath.WalkDir(root, func(_ string, d os.DirEntry, err error) error {
			if err == nil && !d.IsDir() {
				count++
			}
			return nil
		})
		return fmt.Sprintf("indexed %d files", count), nil
	})})

	reg.Register(&tool.Tool{Name: "project_summary", Category: "indexer", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		dirs, files := 0, 0
		_ = filepath.WalkDir(root, func(_ string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				dirs++
			} else {
				files++
			}
			return nil
		})
		return fmt.Sprintf("root=%s dirs=%d files=%d", root, dirs, files), nil
	})})

	reg.Alias("grep", "workspace_search")
	reg.Alias("ls", "workspace_list")
}

func grepPattern(root, needle string) string {
	var b strings.Builder
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.Contains(path, ".git") {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		line := 0
		for scanner.Scan() {
			line++
			if strings.Contains(scanner.Text(), needle) {
				rel, _ := filepath.Rel(root, path)
				fmt.Fprintf(&b, "%s:%d: %s\n", rel, line, strings.TrimSpace(scanner.Text()))
			}
		}
		return nil
	})
	return b.String()
}
