package builtin

import (
	"github.com/stellarlinkco/agentproxy/internal/mcp"
	"github.com/stellarlinkco/agentproxy/internal/subprocess"
	"github.com/stellarlinkco/agentproxy/internal/tool"
)

// Deps bundles every collaborator the builtin tool set needs, so the
// orchestrator/httpapi wiring code has a single call to make (spec §4.3
// lists these categories as siblings sharing a registry and a workspace
// root).
type Deps struct {
	WorkspaceRoot   string
	Runner          *subprocess.Runner
	MCPRegistry     *mcp.Registry
	Web             WebConfig
	TestCommand     string
	EditHistory     *EditHistory
	TaskStore       *TaskStore
	TestHistory     *TestHistory
	SandboxSessions *SandboxSessions
}

// NewDeps constructs the in-memory collaborator stores with sane defaults,
// leaving the caller to fill in the workspace-specific fields.
func NewDeps(workspaceRoot string, runner *subprocess.Runner, registry *mcp.Registry, web WebConfig, testCommand string) *Deps {
	return &Deps{
		WorkspaceRoot:   workspaceRoot,
		Runner:          runner,
		MCPRegistry:     registry,
		Web:             web,
		TestCommand:     testCommand,
		EditHistory:     NewEditHistory(),
		TaskStore:       NewTaskStore(),
		TestHistory:     NewTestHistory(),
		SandboxSessions: NewSandboxSessions(),
	}
}

// RegisterAll wires every builtin category onto reg (spec §4.3's full tool
// surface).
func RegisterAll(reg *tool.Registry, d *Deps) {
	RegisterWorkspace(reg, d.WorkspaceRoot, d.EditHistory)
	RegisterExec(reg, d.Runner, d.WorkspaceRoot)
	RegisterGit(reg, d.Runner, d.WorkspaceRoot)
	RegisterIndexer(reg, d.WorkspaceRoot)
	RegisterEdits(reg, d.WorkspaceRoot, d.EditHistory)
	RegisterTasks(reg, d.TaskStore)
	RegisterTests(reg, d.Runner, d.WorkspaceRoot, d.TestCommand, d.TestHistory)
	RegisterWeb(reg, d.Web)
	if d.MCPRegistry != nil {
		RegisterMCP(reg, d.MCPRegistry, d.SandboxSessions)
	}
}
