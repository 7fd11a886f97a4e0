package mcp

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ProxyTool is a locally-registered handle onto a remote MCP tool, handed
// to the tool registry (internal/tool) so it can be dispatched exactly
// like a built-in.
type ProxyTool struct {
	LocalName  string
	ServerID   string
	RemoteName string
}

// Registry discovers manifests, spawns clients lazily on first use (spec
// §4.5 "Client lifetime" and §3 invariant "at most one alive child per
// server id at a time"), and tracks the local-name -> remote-tool mapping.
// It is a process-wide singleton per SPEC_FULL.md §9.
type Registry struct {
	mu      sync.Mutex
	specs   map[string]ServerSpec
	clients map[string]*Client
	proxies map[string]ProxyTool // localName -> proxy
}

func NewRegistry() *Registry {
	return &Registry{
		specs:   make(map[string]ServerSpec),
		clients: make(map[string]*Client),
		proxies: make(map[string]ProxyTool),
	}
}

// LoadManifests replaces the registry's known server specs from the
// configured manifest file and directories. Existing live clients for
// servers still present are left running.
func (r *Registry) LoadManifests(manifestFile string, manifestDirs []string) error {
	specs, err := DiscoverManifests(manifestFile, manifestDirs)
	if err != nil {
		return fmt.Errorf("discover mcp manifests: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs = make(map[string]ServerSpec, len(specs))
	for _, s := range specs {
		r.specs[s.ID] = s
	}
	return nil
}

// Boot starts every known server concurrently and registers their tools.
// Failures are logged, not fatal — a server that fails to start is left in
// the closed state, contributes no proxy tools, and later calls to it fail.
func (r *Registry) Boot(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if _, err := r.ensureClient(gctx, id); err != nil {
				log.Printf("[mcp] boot %s: %v", id, err)
				return nil
			}
			if err := r.registerServerTools(gctx, id); err != nil {
				log.Printf("[mcp] list tools %s: %v", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// ensureClient returns the live client for a server id, spawning it lazily
// on first use if necessary.
func (r *Registry) ensureClient(ctx context.Context, serverID string) (*Client, error) {
	r.mu.Lock()
	spec, ok := r.specs[serverID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("unknown mcp server %q", serverID)
	}
	client, exists := r.clients[serverID]
	if exists && client.State() == StateReady {
		r.mu.Unlock()
		return client, nil
	}
	if !exists {
		client = NewClient(spec)
		r.clients[serverID] = client
	}
	r.mu.Unlock()

	if err := client.Start(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func (r *Registry) registerServerTools(ctx context.Context, serverID string) error {
	client, err := r.ensureClient(ctx, serverID)
	if err != nil {
		return err
	}
	tools, err := client.ListTools(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for local, p := range r.proxies {
		if p.ServerID == serverID {
			delete(r.proxies, local)
		}
	}
	for _, t := range tools {
		local := LocalToolName(serverID, t.Name)
		r.proxies[local] = ProxyTool{LocalName: local, ServerID: serverID, RemoteName: t.Name}
	}
	return nil
}

// Refresh re-lists tools for every currently ready client, swapping in any
// added/removed proxy names (spec §4.5 "on manifest refresh").
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.clients))
	for id, c := range r.clients {
		if c.State() == StateReady {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.registerServerTools(ctx, id); err != nil {
			log.Printf("[mcp] refresh %s: %v", id, err)
		}
	}
	return nil
}

// Proxies returns a snapshot of every registered remote-tool proxy.
func (r *Registry) Proxies() []ProxyTool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProxyTool, 0, len(r.proxies))
	for _, p := range r.proxies {
		out = append(out, p)
	}
	return out
}

// Servers returns a snapshot of every known server spec, used by the
// workspace_mcp_servers tool.
func (r *Registry) Servers() []ServerSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ServerSpec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	return out
}

// Call dispatches to the remote tool named by localName, spawning its
// server's client on demand.
func (r *Registry) Call(ctx context.Context, localName string, args map[string]any) (string, error) {
	r.mu.Lock()
	proxy, ok := r.proxies[localName]
	r.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown mcp proxy tool %q", localName)
	}

	client, err := r.ensureClient(ctx, proxy.ServerID)
	if err != nil {
		return "", err
	}
	return client.CallTool(ctx, proxy.RemoteName, args)
}

// CallServer is used by workspace_mcp_call to invoke an arbitrary tool by
// server id + tool name pair rather than by local proxy name.
func (r *Registry) CallServer(ctx context.Context, serverID, toolName string, args map[string]any) (string, error) {
	client, err := r.ensureClient(ctx, serverID)
	if err != nil {
		return "", err
	}
	return client.CallTool(ctx, toolName, args)
}

// Close shuts down every live client (spec §9 open question: "an
// implementer should add a signal handler that closes all clients").
func (r *Registry) Close() error {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.Unlock()

	var firstErr error
	for _, c := range clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
