package builtin

import (
	"fmt"

	"github.com/stellarlinkco/agentproxy/internal/tool"
)

// RegisterEdits exposes EditHistory as workspace_edit_history/_revert (spec
// §4.3 "edits" category).
func RegisterEdits(reg *tool.Registry, root string, history *EditHistory) {
	reg.Register(&tool.Tool{Name: "workspace_edit_history", Category: "edits", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		entries := history.List()
		if len(entries) == 0 {
			return "no edits recorded", nil
		}
		out := ""
		for i, e := range entries {
			out += fmt.Sprintf("%d: %s (%d -> %d bytes)\n", i, e.Path, len(e.Before), len(e.After))
		}
		return out, nil
	})})

	reg.Register(&tool.Tool{Name: "workspace_edit_revert", Category: "edits", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		abs, err := resolvePath(root, paramPath(c.Params))
		if err != nil {
			return "", err
		}
		if _, err := history.Revert(abs); err != nil {
			return "", err
		}
		return fmt.Sprintf("reverted %s", abs), nil
	})})
}
