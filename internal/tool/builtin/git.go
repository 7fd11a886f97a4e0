package builtin

import (
	"context"

	"github.com/stellarlinkco/agentproxy/internal/subprocess"
	"github.com/stellarlinkco/agentproxy/internal/tool"
)

func defaultContext() context.Context { return context.Background() }

// RegisterGit wires the workspace_git_* family plus the diff/review/notes
// tools onto plain `git` invocations via the subprocess runner (spec §4.3
// "git" category; the git sub-policy in §4.2 governs push/pull/commit
// before these handlers ever run).
func RegisterGit(reg *tool.Registry, runner *subprocess.Runner, workspaceRoot string) {
	gitCmd := func(args ...string) tool.Handler {
		return func(c tool.Call, tc tool.Context) (tool.Result, error) {
			return runCommand(tc, runner, workspaceRoot, "git", args, c)
		}
	}

	reg.Register(&tool.Tool{Name: "workspace_git_status", Category: "git", Handler: gitCmd("status", "--short", "--branch")})
	reg.Register(&tool.Tool{Name: "workspace_git_stage", Category: "git", Handler: func(c tool.Call, tc tool.Context) (tool.Result, error) {
		return runCommand(tc, runner, workspaceRoot, "git", append([]string{"add"}, pathspecs(c)...), c)
	}})
	reg.Register(&tool.Tool{Name: "workspace_git_unstage", Category: "git", Handler: func(c tool.Call, tc tool.Context) (tool.Result, error) {
		return runCommand(tc, runner, workspaceRoot, "git", append([]string{"restore", "--staged"}, pathspecs(c)...), c)
	}})
	reg.Register(&tool.Tool{Name: "workspace_git_commit", Category: "git", Handler: func(c tool.Call, tc tool.Context) (tool.Result, error) {
		message, _ := c.Params["message"].(string)
		return runCommand(tc, runner, workspaceRoot, "git", []string{"commit", "-m", message}, c)
	}})
	reg.Register(&tool.Tool{Name: "workspace_git_push", Category: "git", Handler: func(c tool.Call, tc tool.Context) (tool.Result, error) {
		remote, branch := remoteBranch(c)
		return runCommand(tc, runner, workspaceRoot, "git", []string{"push", remote, branch}, c)
	}})
	reg.Register(&tool.Tool{Name: "workspace_git_pull", Category: "git", Handler: func(c tool.Call, tc tool.Context) (tool.Result, error) {
		remote, branch := remoteBranch(c)
		return runCommand(tc, runner, workspaceRoot, "git", []string{"pull", remote, branch}, c)
	}})
	reg.Register(&tool.Tool{Name: "workspace_git_merge", Category: "git", Handler: func(c tool.Call, tc tool.Context) (tool.Result, error) {
		branch, _ := c.Params["branch"].(string)
		return runCommand(tc, runner, workspaceRoot, "git", []string{"merge", branch}, c)
	}})
	reg.Register(&tool.Tool{Name: "workspace_git_rebase", Category: "git", Handler: func(c tool.Call, tc tool.Context) (tool.Result, error) {
		onto, _ := c.Params["onto"].(string)
		return runCommand(tc, runner, workspaceRoot, "git", []string{"rebase", onto}, c)
	}})
	reg.Register(&tool.Tool{Name: "workspace_git_checkout", Category: "git", Handler: func(c tool.Call, tc tool.Context) (tool.Result, error) {
		ref, _ := c.Params["ref"].(string)
		return runCommand(tc, runner, workspaceRoot, "git", []string{"checkout", ref}, c)
	}})
	reg.Register(&tool.Tool{Name: "workspace_git_branch", Category: "git", Handler: func(c tool.Call, tc tool.Context) (tool.Result, error) {
		name, _ := c.Params["name"].(string)
		return runCommand(tc, runner, workspaceRoot, "git", []string{"branch", name}, c)
	}})
	reg.Register(&tool.Tool{Name: "workspace_git_branches", Category: "git", Handler: gitCmd("branch", "--list")})
	reg.Register(&tool.Tool{Name: "workspace_git_stash", Category: "git", Handler: gitCmd("stash")})
	reg.Register(&tool.Tool{Name: "workspace_git_conflicts", Category: "git", Handler: gitCmd("diff", "--name-only", "--diff-filter=U")})

	reg.Register(&tool.Tool{Name: "workspace_diff", Category: "git", Handler: gitCmd("diff")})
	reg.Register(&tool.Tool{Name: "workspace_diff_summary", Category: "git", Handler: gitCmd("diff", "--stat")})
	reg.Register(&tool.Tool{Name: "workspace_diff_review", Category: "git", Handler: gitCmd("diff", "--patch")})
	reg.Register(&tool.Tool{Name: "workspace_release_notes", Category: "git", Handler: gitCmd("log", "--oneline", "-n", "20")})
}

func pathspecs(c tool.Call) []string {
	if raw, ok := c.Params["paths"].([]any); ok {
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return []string{"."}
}

func remoteBranch(c tool.Call) (string, string) {
	remote := "origin"
	if v, ok := c.Params["remote"].(string); ok && v != "" {
		remote = v
	}
	branch := ""
	if v, ok := c.Params["branch"].(string); ok {
		branch = v
	}
	return remote, branch
}
