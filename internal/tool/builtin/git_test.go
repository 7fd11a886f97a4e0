package builtin

import (
	"os/exec"
	"strings"
	"testing"

	"github.com/stellarlinkco/agentproxy/internal/subprocess"
	"github.com/stellarlinkco/agentproxy/internal/tool"
)

func initGitRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = root
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Skipf("git unavailable in test environment: %v: %s", err, out)
		}
	}
	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	return root
}

func TestWorkspaceGitStatusReportsClean(t *testing.T) {
	root := initGitRepo(t)
	reg := tool.NewRegistry()
	RegisterGit(reg, subprocess.New(subprocess.SandboxConfig{}), root)
	exec := tool.NewExecutor(reg)

	res := exec.Execute(tool.Call{Name: "workspace_git_status", Params: map[string]any{}}, tool.Context{})
	if !res.OK {
		t.Fatalf("git status failed: %+v", res)
	}
}

func TestWorkspaceGitStageAndCommit(t *testing.T) {
	root := initGitRepo(t)
	reg := tool.NewRegistry()
	RegisterGit(reg, subprocess.New(subprocess.SandboxConfig{}), root)
	RegisterWorkspace(reg, root, NewEditHistory())
	exec := tool.NewExecutor(reg)

	exec.Execute(tool.Call{Name: "fs_write", Params: map[string]any{"path": "readme.txt", "content": "hi"}}, tool.Context{})
	stage := exec.Execute(tool.Call{Name: "workspace_git_stage", Params: map[string]any{}}, tool.Context{})
	if !stage.OK {
		t.Fatalf("stage failed: %+v", stage)
	}

	commit := exec.Execute(tool.Call{Name: "workspace_git_commit", Params: map[string]any{"message": "initial"}}, tool.Context{})
	if !commit.OK {
		t.Fatalf("commit failed: %+v", commit)
	}

	notes := exec.Execute(tool.Call{Name: "workspace_release_notes", Params: map[string]any{}}, tool.Context{})
	if !strings.Contains(notes.Content, "initial") {
		t.Errorf("expected release notes to include the commit, got %q", notes.Content)
	}
}
