package builtin

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/stellarlinkco/agentproxy/internal/mcp"
	"github.com/stellarlinkco/agentproxy/internal/tool"
)

// SandboxSessions records, per session id, the MCP server id most recently
// called through workspace_mcp_call during the current process lifetime,
// for the workspace_sandbox_sessions introspection tool.
type SandboxSessions struct {
	mu       sync.Mutex
	sessions map[string]string // sessionID -> serverID
}

func NewSandboxSessions() *SandboxSessions {
	return &SandboxSessions{sessions: make(map[string]string)}
}

func (s *SandboxSessions) Note(sessionID, serverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = serverID
}

func (s *SandboxSessions) List() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.sessions))
	for k, v := range s.sessions {
		out[k] = v
	}
	return out
}

// RegisterMCP wires the registry's proxy tools into reg directly (so the
// orchestrator's normal alias-resolution path reaches remote MCP tools),
// plus the workspace_mcp_servers/_call/_sandbox_sessions introspection
// tools (spec §4.5, §4.6).
func RegisterMCP(reg *tool.Registry, registry *mcp.Registry, sandboxSessions *SandboxSessions) {
	reg.Register(&tool.Tool{Name: "workspace_mcp_servers", Category: "mcp", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		servers := registry.Servers()
		names := make([]string, 0, len(servers))
		for _, s := range servers {
			names = append(names, s.ID)
		}
		sort.Strings(names)
		out, err := json.Marshal(names)
		if err != nil {
			return "", err
		}
		return string(out), nil
	})})

	reg.Register(&tool.Tool{Name: "workspace_mcp_call", Category: "mcp", Handler: func(c tool.Call, tc tool.Context) (tool.Result, error) {
		serverID, _ := c.Params["server_id"].(string)
		toolName, _ := c.Params["tool"].(string)
		args, _ := c.Params["arguments"].(map[string]any)

		ctx := tc.Ctx
		if ctx == nil {
			ctx = defaultContext()
		}
		if tc.SessionID != "" {
			sandboxSessions.Note(tc.SessionID, serverID)
		}
		out, err := registry.CallServer(ctx, serverID, toolName, args)
		if err != nil {
			return tool.Result{}, fmt.Errorf("mcp call %s/%s: %w", serverID, toolName, err)
		}
		return tool.Result{OK: true, Status: 200, Content: out}, nil
	}})

	reg.Register(&tool.Tool{Name: "workspace_sandbox_sessions", Category: "mcp", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		out, err := json.Marshal(sandboxSessions.List())
		if err != nil {
			return "", err
		}
		return string(out), nil
	})})

	// Register every currently-known remote MCP tool under its local
	// mcp_<server>_<tool> name (spec §4.5), so the executor never has to
	// special-case remote dispatch.
	for _, proxy := range registry.Proxies() {
		proxy := proxy
		reg.Register(&tool.Tool{Name: proxy.LocalName, Category: "mcp", Handler: func(c tool.Call, tc tool.Context) (tool.Result, error) {
			ctx := tc.Ctx
			if ctx == nil {
				ctx = defaultContext()
			}
			out, err := registry.Call(ctx, proxy.LocalName, c.Params)
			if err != nil {
				return tool.Result{}, fmt.Errorf("mcp call %s: %w", proxy.LocalName, err)
			}
			return tool.Result{OK: true, Status: 200, Content: out}, nil
		}})
	}
}
