package builtin

import (
	"fmt"
	"sync"

	"github.com/stellarlinkco/agentproxy/internal/subprocess"
	"github.com/stellarlinkco/agentproxy/internal/tool"
)

// TestRun is one recorded invocation of the workspace's test command.
type TestRun struct {
	Command  string
	ExitCode int
	Summary  string
}

// TestHistory tracks recent test runs for a session (spec §4.3 "tests"
// category); coverage/parsing internals are out of scope per spec §1.
type TestHistory struct {
	mu   sync.Mutex
	runs []TestRun
}

func NewTestHistory() *TestHistory { return &TestHistory{} }

func (h *TestHistory) record(run TestRun) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, run)
}

func (h *TestHistory) list() []TestRun {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]TestRun, len(h.runs))
	copy(out, h.runs)
	return out
}

// RegisterTests wires workspace_test_run/_history/_summary onto a
// configurable test command executed through the subprocess runner.
func RegisterTests(reg *tool.Registry, runner *subprocess.Runner, workspaceRoot, testCommand string, history *TestHistory) {
	reg.Register(&tool.Tool{Name: "workspace_test_run", Category: "tests", Handler: func(c tool.Call, tc tool.Context) (tool.Result, error) {
		command := testCommand
		if v, ok := c.Params["command"].(string); ok && v != "" {
			command = v
		}
		ctx := tc.Ctx
		if ctx == nil {
			ctx = defaultContext()
		}
		res, err := runner.Run(ctx, subprocess.Request{
			Command:       "sh",
			Args:          []string{"-c", command},
			SessionID:     tc.SessionID,
			WorkspaceRoot: workspaceRoot,
		})
		if err != nil {
			return tool.Result{}, fmt.Errorf("run tests: %w", err)
		}
		summary := fmt.Sprintf("exit=%d", res.ExitCode)
		history.record(TestRun{Command: command, ExitCode: res.ExitCode, Summary: summary})
		return tool.Result{
			OK:      res.ExitCode == 0,
			Status:  200,
			Content: fmt.Sprintf("%s\n--- stdout ---\n%s\n--- stderr ---\n%s", summary, res.Stdout, res.Stderr),
		}, nil
	}})

	reg.Register(&tool.Tool{Name: "workspace_test_history", Category: "tests", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		runs := history.list()
		if len(runs) == 0 {
			return "no test runs recorded", nil
		}
		out := ""
		for i, r := range runs {
			out += fmt.Sprintf("%d: %s (%s)\n", i, r.Command, r.Summary)
		}
		return out, nil
	})})

	reg.Register(&tool.Tool{Name: "workspace_test_summary", Category: "tests", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		runs := history.list()
		if len(runs) == 0 {
			return "no test runs recorded", nil
		}
		last := runs[len(runs)-1]
		return fmt.Sprintf("last run: %s -> %s", last.Command, last.Summary), nil
	})})
}
