package builtin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stellarlinkco/agentproxy/internal/tool"
)

func TestResolvePathConfinesToRoot(t *testing.T) {
	root := t.TempDir()
	if _, err := resolvePath(root, "../outside.txt"); err == nil {
		t.Error("expected escape to be rejected")
	}
	if _, err := resolvePath(root, "sub/file.txt"); err != nil {
		t.Errorf("expected in-root path to resolve, got %v", err)
	}
}

func TestFsWriteThenFsRead(t *testing.T) {
	root := t.TempDir()
	reg := tool.NewRegistry()
	RegisterWorkspace(reg, root, NewEditHistory())

	exec := tool.NewExecutor(reg)
	writeRes := exec.Execute(tool.Call{Name: "fs_write", Params: map[string]any{"path": "note.txt", "content": "hello"}}, tool.Context{})
	if !writeRes.OK {
		t.Fatalf("fs_write failed: %+v", writeRes)
	}

	readRes := exec.Execute(tool.Call{Name: "fs_read", Params: map[string]any{"path": "note.txt"}}, tool.Context{})
	if !readRes.OK || readRes.Content != "hello" {
		t.Errorf("unexpected fs_read result: %+v", readRes)
	}
}

func TestFsWriteRecordsEditHistory(t *testing.T) {
	root := t.TempDir()
	history := NewEditHistory()
	reg := tool.NewRegistry()
	RegisterWorkspace(reg, root, history)

	exec := tool.NewExecutor(reg)
	exec.Execute(tool.Call{Name: "fs_write", Params: map[string]any{"path": "a.txt", "content": "v1"}}, tool.Context{})
	exec.Execute(tool.Call{Name: "fs_write", Params: map[string]any{"path": "a.txt", "content": "v2"}}, tool.Context{})

	entries := history.List()
	if len(entries) != 2 {
		t.Fatalf("expected 2 edit entries, got %d", len(entries))
	}
	if entries[1].Before != "v1" || entries[1].After != "v2" {
		t.Errorf("unexpected entry: %+v", entries[1])
	}
}

func TestEditPatchAppliesSimpleHunk(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "b.txt")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree"), 0644); err != nil {
		t.Fatal(err)
	}

	reg := tool.NewRegistry()
	RegisterWorkspace(reg, root, NewEditHistory())
	exec := tool.NewExecutor(reg)

	patch := "@@ -1,3 +1,3 @@\n one\n-two\n+TWO\n three"
	res := exec.Execute(tool.Call{Name: "edit_patch", Params: map[string]any{"path": "b.txt", "patch": patch}}, tool.Context{})
	if !res.OK {
		t.Fatalf("edit_patch failed: %+v", res)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != "one\nTWO\nthree" {
		t.Errorf("unexpected file contents: %q", after)
	}
}

func TestEditHistoryRevert(t *testing.T) {
	root := t.TempDir()
	history := NewEditHistory()
	reg := tool.NewRegistry()
	RegisterWorkspace(reg, root, history)
	RegisterEdits(reg, root, history)
	exec := tool.NewExecutor(reg)

	exec.Execute(tool.Call{Name: "fs_write", Params: map[string]any{"path": "c.txt", "content": "before"}}, tool.Context{})
	exec.Execute(tool.Call{Name: "fs_write", Params: map[string]any{"path": "c.txt", "content": "after"}}, tool.Context{})

	res := exec.Execute(tool.Call{Name: "workspace_edit_revert", Params: map[string]any{"path": "c.txt"}}, tool.Context{})
	if !res.OK {
		t.Fatalf("revert failed: %+v", res)
	}

	data, err := os.ReadFile(filepath.Join(root, "c.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "before" {
		t.Errorf("expected revert to restore the content preceding the last write, got %q", data)
	}
}
