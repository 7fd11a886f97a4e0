package mcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// State is a client's position in the lifecycle state machine drawn
// verbatim from spec §4.5:
//
//	(created) -> start() -> (starting) -> initialize() -> (ready)
//	                                          | child exit / close() / error
//	                                          v
//	                                       (closed)
type State string

const (
	StateCreated  State = "created"
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateClosed   State = "closed"
)

// ToolDescriptor is a remote tool's advertised shape.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Client owns a single MCP subprocess and its JSON-RPC session, wrapping
// the real modelcontextprotocol/go-sdk client exactly the way
// agentsdk-go/pkg/mcp/mcp.go wraps it for its own SpecClient: build a
// stdio CommandTransport from the configured command, connect, and expose
// ListTools/CallTool/Close.
type Client struct {
	spec ServerSpec

	mu      sync.Mutex
	state   State
	client  *sdkmcp.Client
	session *sdkmcp.ClientSession
}

func NewClient(spec ServerSpec) *Client {
	return &Client{spec: spec, state: StateCreated}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start spawns the subprocess and performs the JSON-RPC initialize
// handshake. It is idempotent: calling Start on an already-ready client is
// a no-op.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateReady {
		return nil
	}
	if c.state == StateClosed {
		return fmt.Errorf("mcp client %s is closed", c.spec.ID)
	}
	c.state = StateStarting

	cmd := exec.Command(c.spec.Command, c.spec.Args...)
	cmd.Env = mergeEnv(c.spec.Env)

	transport := &sdkmcp.CommandTransport{Command: cmd}
	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "agentproxy", Version: "dev"}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		c.state = StateClosed
		return fmt.Errorf("connect mcp client %s: %w", c.spec.ID, err)
	}

	c.client = client
	c.session = session
	c.state = StateReady
	return nil
}

// ListTools calls tools/list on the live session.
func (c *Client) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	c.mu.Lock()
	session := c.session
	state := c.state
	c.mu.Unlock()

	if state != StateReady || session == nil {
		return nil, fmt.Errorf("mcp client %s is not ready (state=%s)", c.spec.ID, state)
	}

	var out []ToolDescriptor
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, err
		}
		if tool == nil {
			continue
		}
		out = append(out, ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
		})
	}
	return out, nil
}

// CallTool forwards params to the remote tool named name.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	c.mu.Lock()
	session := c.session
	state := c.state
	c.mu.Unlock()

	if state != StateReady || session == nil {
		return "", fmt.Errorf("mcp client %s is not ready (state=%s)", c.spec.ID, state)
	}
	if args == nil {
		args = map[string]any{}
	}

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", err
	}
	return firstTextContent(res), nil
}

func firstTextContent(res *sdkmcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	for _, item := range res.Content {
		if tc, ok := item.(*sdkmcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// Close tears the client down. Every pending request rejects and further
// calls fail synchronously (spec §4.5 "In closed, every pending request is
// rejected").
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func mergeEnv(overlay map[string]string) []string {
	base := os.Environ()
	if len(overlay) == 0 {
		return base
	}
	merged := make(map[string]string, len(base)+len(overlay))
	for _, kv := range base {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			merged[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range overlay {
		merged[k] = v
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}
