// Package mcp implements the MCP registry and JSON-RPC client manager
// (spec §4.5): manifest discovery, subprocess client lifecycle, and remote
// tool proxying. The transport layer delegates to the real
// github.com/modelcontextprotocol/go-sdk/mcp package, following the same
// "wrap the real SDK's transport, add our own domain layer" pattern
// demonstrated in agentsdk-go/pkg/mcp/mcp.go's buildStdioTransport/
// ConnectSessionWithOptions.
package mcp

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// ServerSpec is the declarative record read from a manifest (spec §3
// "McpServer").
type ServerSpec struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Command     string            `json:"command"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Transport   string            `json:"transport,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

type manifestEntry struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Command     string            `json:"command"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Transport   string            `json:"transport,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

type manifestDocument struct {
	Servers []manifestEntry `json:"servers"`
}

// DiscoverManifests reads the single manifest file (if non-empty) and every
// *.json file in each manifest directory, in the order given, applying
// last-write-wins semantics within a single load (spec §4.5 "Discovery").
func DiscoverManifests(manifestFile string, manifestDirs []string) ([]ServerSpec, error) {
	byID := map[string]ServerSpec{}
	var order []string

	apply := func(entries []manifestEntry) {
		for _, e := range entries {
			id := strings.TrimSpace(e.ID)
			if id == "" {
				id = strings.TrimSpace(e.Name)
			}
			if id == "" || strings.TrimSpace(e.Command) == "" {
				continue // spec: "Entries without an id or command are silently skipped"
			}
			transport := e.Transport
			if transport == "" {
				transport = "stdio"
			}
			if transport != "stdio" {
				log.Printf("[mcp] skipping server %q: unsupported transport %q", id, transport)
				continue // spec: "other transports are logged and ignored"
			}
			if _, exists := byID[id]; !exists {
				order = append(order, id)
			}
			byID[id] = ServerSpec{
				ID:          id,
				Name:        firstNonEmpty(e.Name, id),
				Description: e.Description,
				Command:     e.Command,
				Args:        e.Args,
				Env:         e.Env,
				Transport:   transport,
				Metadata:    e.Metadata,
			}
		}
	}

	if manifestFile != "" {
		entries, err := readManifestFile(resolveHome(manifestFile))
		if err != nil {
			return nil, fmt.Errorf("read manifest %q: %w", manifestFile, err)
		}
		apply(entries)
	}

	for _, dir := range manifestDirs {
		dir = resolveHome(dir)
		files, err := filepath.Glob(filepath.Join(dir, "*.json"))
		if err != nil {
			continue
		}
		for _, f := range files {
			entries, err := readManifestFile(f)
			if err != nil {
				log.Printf("[mcp] skipping manifest %s: %v", f, err)
				continue // a malformed manifest file is logged and skipped, not fatal
			}
			apply(entries)
		}
	}

	specs := make([]ServerSpec, 0, len(order))
	for _, id := range order {
		specs = append(specs, byID[id])
	}
	return specs, nil
}

func readManifestFile(path string) ([]manifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var asArray []manifestEntry
	if err := json.Unmarshal(data, &asArray); err == nil {
		return asArray, nil
	}

	var asDoc manifestDocument
	if err := json.Unmarshal(data, &asDoc); err != nil {
		return nil, fmt.Errorf("manifest is neither an array nor {servers:[...]}: %w", err)
	}
	return asDoc.Servers, nil
}

func resolveHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// SanitizeName replaces non-alphanumerics with "_" and collapses runs, per
// spec §4.5's local tool naming rule.
func SanitizeName(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

// LocalToolName builds the mcp_<server>_<tool> name spec §4.5 mandates.
func LocalToolName(serverID, toolName string) string {
	return "mcp_" + SanitizeName(serverID) + "_" + SanitizeName(toolName)
}
