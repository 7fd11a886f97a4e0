// Package builtin implements the built-in tool categories from spec §4.3.
// Only their interfaces matter to the orchestrator per spec §1's scoping of
// the indexer/git wrappers/test parsers as out-of-scope collaborators; the
// implementations here are intentionally thin but real, grounded on
// agentsdk-go/pkg/tool/builtin's path-confinement idiom
// (sandbox.ValidatePath before any filesystem touch).
package builtin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stellarlinkco/agentproxy/internal/tool"
)

// resolvePath confines path to root, failing closed on any escape attempt
// (spec §3 invariant "Workspace paths resolved for any tool never escape
// the configured workspace root").
func resolvePath(root, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	abs = filepath.Clean(abs)

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	if abs != rootAbs && !strings.HasPrefix(abs, rootAbs+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes workspace root", path)
	}
	return abs, nil
}

// paramPath accepts the synonyms spec §9 names: path/file/file_path.
func paramPath(params map[string]any) string {
	for _, key := range []string{"path", "file_path", "file"} {
		if v, ok := params[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// RegisterWorkspace wires fs_read, fs_write, and edit_patch.
func RegisterWorkspace(reg *tool.Registry, root string, history *EditHistory) {
	reg.Register(&tool.Tool{Name: "fs_read", Category: "workspace", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		abs, err := resolvePath(root, paramPath(c.Params))
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", abs, err)
		}
		return string(data), nil
	})})

	reg.Register(&tool.Tool{Name: "fs_write", Category: "workspace", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		abs, err := resolvePath(root, paramPath(c.Params))
		if err != nil {
			return "", err
		}
		content, _ := c.Params["content"].(string)

		before, _ := os.ReadFile(abs) // best-effort; file may not yet exist
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return "", fmt.Errorf("mkdir: %w", err)
		}
		if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
			return "", fmt.Errorf("write %s: %w", abs, err)
		}
		history.Record(abs, string(before), content)
		return fmt.Sprintf("wrote %d bytes to %s", len(content), abs), nil
	})})

	reg.Register(&tool.Tool{Name: "edit_patch", Category: "workspace", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		abs, err := resolvePath(root, paramPath(c.Params))
		if err != nil {
			return "", err
		}
		patch, _ := c.Params["patch"].(string)
		before, err := os.ReadFile(abs)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", abs, err)
		}
		after, err := applyUnifiedDiff(string(before), patch)
		if err != nil {
			return "", fmt.Errorf("apply patch: %w", err)
		}
		if err := os.WriteFile(abs, []byte(after), 0644); err != nil {
			return "", fmt.Errorf("write %s: %w", abs, err)
		}
		history.Record(abs, string(before), after)
		return fmt.Sprintf("patched %s", abs), nil
	})})
}

// applyUnifiedDiff applies a minimal unified diff (single hunk, "+"/"-"/"
// " lines) to before. This is a functional subset sufficient for the
// agent's own generated patches; the full-diff parser is out of scope per
// spec §1 (indexer/diff tooling are collaborators, not core).
func applyUnifiedDiff(before, patch string) (string, error) {
	lines := strings.Split(before, "\n")
	var out []string
	li := 0

	for _, pl := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(pl, "@@"):
			var start int
			if _, err := fmt.Sscanf(pl, "@@ -%d", &start); err == nil && start-1 > li {
				if start-1 > len(lines) {
					return "", fmt.Errorf("patch references more lines than the file has")
				}
				out = append(out, lines[li:start-1]...)
				li = start - 1
			}
			continue
		case strings.HasPrefix(pl, "--- "), strings.HasPrefix(pl, "+++ "):
			continue
		case strings.HasPrefix(pl, "+"):
			out = append(out, pl[1:])
		case strings.HasPrefix(pl, "-"):
			li++
		case strings.HasPrefix(pl, " "):
			out = append(out, pl[1:])
			li++
		default:
			if pl == "" {
				continue
			}
			out = append(out, pl)
			li++
		}
	}
	if li > len(lines) {
		return "", fmt.Errorf("patch references more lines than the file has")
	}
	out = append(out, lines[li:]...)
	return strings.Join(out, "\n"), nil
}

// EditHistory records before/after snapshots for fs_write/edit_patch, per
// spec §4.3 "Writes record before/after snapshots to an edit-history
// store". In-memory only: the durable files/edits tables spec §4.7 names
// are collaborator storage explicitly out of this specification's core
// scope (§1).
type EditHistory struct {
	entries []EditEntry
}

type EditEntry struct {
	Path   string
	Before string
	After  string
}

func NewEditHistory() *EditHistory { return &EditHistory{} }

func (h *EditHistory) Record(path, before, after string) {
	h.entries = append(h.entries, EditEntry{Path: path, Before: before, After: after})
}

func (h *EditHistory) List() []EditEntry { return h.entries }

func (h *EditHistory) Revert(path string) (string, error) {
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].Path == path {
			if err := os.WriteFile(path, []byte(h.entries[i].Before), 0644); err != nil {
				return "", fmt.Errorf("revert %s: %w", path, err)
			}
			return h.entries[i].Before, nil
		}
	}
	return "", fmt.Errorf("no edit history for %s", path)
}
