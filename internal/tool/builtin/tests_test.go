package builtin

import (
	"strings"
	"testing"

	"github.com/stellarlinkco/agentproxy/internal/subprocess"
	"github.com/stellarlinkco/agentproxy/internal/tool"
)

func TestWorkspaceTestRunRecordsHistory(t *testing.T) {
	root := t.TempDir()
	history := NewTestHistory()
	reg := tool.NewRegistry()
	RegisterTests(reg, subprocess.New(subprocess.SandboxConfig{}), root, "true", history)
	exec := tool.NewExecutor(reg)

	res := exec.Execute(tool.Call{Name: "workspace_test_run", Params: map[string]any{}}, tool.Context{})
	if !res.OK {
		t.Fatalf("test run failed: %+v", res)
	}

	summary := exec.Execute(tool.Call{Name: "workspace_test_summary", Params: map[string]any{}}, tool.Context{})
	if !strings.Contains(summary.Content, "exit=0") {
		t.Errorf("unexpected summary: %q", summary.Content)
	}

	list := exec.Execute(tool.Call{Name: "workspace_test_history", Params: map[string]any{}}, tool.Context{})
	if !strings.Contains(list.Content, "true") {
		t.Errorf("unexpected history: %q", list.Content)
	}
}

func TestWorkspaceTestRunOverridesCommand(t *testing.T) {
	root := t.TempDir()
	history := NewTestHistory()
	reg := tool.NewRegistry()
	RegisterTests(reg, subprocess.New(subprocess.SandboxConfig{}), root, "true", history)
	exec := tool.NewExecutor(reg)

	res := exec.Execute(tool.Call{Name: "workspace_test_run", Params: map[string]any{"command": "false"}}, tool.Context{})
	if res.OK {
		t.Errorf("expected overridden failing command to report not-OK, got %+v", res)
	}
}
