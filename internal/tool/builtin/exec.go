package builtin

import (
	"fmt"

	"github.com/stellarlinkco/agentproxy/internal/subprocess"
	"github.com/stellarlinkco/agentproxy/internal/tool"
)

// RegisterExec wires shell and python_exec onto a subprocess.Runner (spec
// §4.3 "execution" category, §4.6 process model).
func RegisterExec(reg *tool.Registry, runner *subprocess.Runner, workspaceRoot string) {
	reg.Register(&tool.Tool{Name: "shell", Category: "execution", Handler: func(c tool.Call, tc tool.Context) (tool.Result, error) {
		command, _ := c.Params["command"].(string)
		if command == "" {
			command, _ = c.Params["cmd"].(string)
		}
		return runCommand(tc, runner, workspaceRoot, "sh", []string{"-c", command}, c)
	}})

	reg.Register(&tool.Tool{Name: "python_exec", Category: "execution", Handler: func(c tool.Call, tc tool.Context) (tool.Result, error) {
		code, _ := c.Params["code"].(string)
		return runCommand(tc, runner, workspaceRoot, "python3", []string{"-c", code}, c)
	}})

	reg.Alias("bash", "shell")
	reg.Alias("run_shell", "shell")
	reg.Alias("python", "python_exec")
}

func runCommand(tc tool.Context, runner *subprocess.Runner, workspaceRoot, command string, args []string, c tool.Call) (tool.Result, error) {
	ctx := tc.Ctx
	if ctx == nil {
		ctx = defaultContext()
	}

	req := subprocess.Request{
		Command:       command,
		Args:          args,
		SessionID:     tc.SessionID,
		WorkspaceRoot: workspaceRoot,
	}
	if cwd, ok := c.Params["cwd"].(string); ok {
		req.Cwd = cwd
	}
	if timeout, ok := c.Params["timeout_ms"].(float64); ok {
		req.TimeoutMs = int(timeout)
	}

	res, err := runner.Run(ctx, req)
	if err != nil {
		return tool.Result{}, fmt.Errorf("run %s: %w", command, err)
	}

	content := fmt.Sprintf("exit=%d timed_out=%v\n--- stdout ---\n%s\n--- stderr ---\n%s",
		res.ExitCode, res.TimedOut, res.Stdout, res.Stderr)
	return tool.Result{
		OK:      res.ExitCode == 0 && !res.TimedOut,
		Status:  200,
		Content: content,
		Metadata: map[string]any{
			"exit_code":  res.ExitCode,
			"timed_out":  res.TimedOut,
			"duration_ms": res.DurationMs,
		},
	}, nil
}
