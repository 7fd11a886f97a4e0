// Package tool implements the tool registry and execution pipeline (spec
// §4.3), grounded on agentsdk-go/pkg/tool/registry.go's alias-resolution
// and MCP-proxy-registration structure, generalized from that package's
// schema-validated native tool set to spec's open-world argument handling
// (§9 "Dynamic tool arguments": treat the payload as an open dictionary).
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Call is the normalized inbound tool invocation (spec §3 "ToolCall").
type Call struct {
	ID       string
	Name     string
	Params   map[string]any
	RawInput json.RawMessage
}

// Result is the coerced outcome of executing a Call (spec §3 "ToolResult").
type Result struct {
	OK       bool
	Status   int
	Content  string
	Metadata map[string]any
	Error    error
}

// Context carries per-request state a handler may need.
type Context struct {
	SessionID string
	Ctx       context.Context
}

// Handler is a registered tool's implementation.
type Handler func(call Call, tc Context) (Result, error)

// Tool is a registered handler (spec §3 "Tool").
type Tool struct {
	Name     string
	Category string
	Handler  Handler
}

// Registry holds named handlers with aliases (spec §4.3 "Registration").
// It is a process-wide singleton.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Tool            // canonical name -> tool
	lower   map[string]string           // lowercase canonical -> canonical
	aliases map[string]string           // alias (lowercase) -> canonical
}

func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]*Tool),
		lower:   make(map[string]string),
		aliases: make(map[string]string),
	}
}

func (r *Registry) Register(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
	r.lower[strings.ToLower(t.Name)] = t.Name
}

// Alias registers a case-folded synonym for a canonical tool name (e.g.
// "bash" -> "shell", "grep" -> "workspace_search").
func (r *Registry) Alias(alias, canonical string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[strings.ToLower(alias)] = canonical
}

// Resolve implements spec §4.3's "exact -> lowercase -> alias table" order.
func (r *Registry) Resolve(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.tools[name]; ok {
		return t, true
	}
	if canonical, ok := r.lower[strings.ToLower(name)]; ok {
		return r.tools[canonical], true
	}
	if canonical, ok := r.aliases[strings.ToLower(name)]; ok {
		if t, ok := r.tools[canonical]; ok {
			return t, true
		}
	}
	return nil, false
}

// List returns every registered tool name.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

// NormalizeArguments tolerates both a stringified-JSON arguments field and
// a structured object (spec §4.3 "Normalization"). Invalid JSON yields an
// empty mapping with a logged warning, never an error.
func NormalizeArguments(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var asString string
		if err := json.Unmarshal(raw, &asString); err == nil {
			var obj map[string]any
			if err := json.Unmarshal([]byte(asString), &obj); err == nil {
				return obj
			}
			log.Printf("[tool] invalid JSON string arguments: %q", asString)
			return map[string]any{}
		}
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj
	}
	log.Printf("[tool] invalid tool arguments payload: %s", trimmed)
	return map[string]any{}
}

// coerceResult implements spec §4.3 "Execution": a string return becomes
// content with ok=true/status=200; anything else passes through unchanged.
func coerceResult(v any) Result {
	switch t := v.(type) {
	case Result:
		return t
	case string:
		return Result{OK: true, Status: 200, Content: t}
	case nil:
		return Result{OK: true, Status: 200}
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return Result{OK: false, Status: 500, Content: fmt.Sprintf("%v", t)}
		}
		return Result{OK: true, Status: 200, Content: string(b)}
	}
}
