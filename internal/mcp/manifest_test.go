package mcp

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestDiscoverManifestsArrayShape(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "a.json", `[{"id":"demo","command":"./stub_server"}]`)

	specs, err := DiscoverManifests("", []string{dir})
	if err != nil {
		t.Fatalf("DiscoverManifests: %v", err)
	}
	if len(specs) != 1 || specs[0].ID != "demo" {
		t.Fatalf("unexpected specs: %+v", specs)
	}
}

func TestDiscoverManifestsServersShape(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "b.json", `{"servers":[{"name":"demo2","command":"./stub"}]}`)

	specs, err := DiscoverManifests("", []string{dir})
	if err != nil {
		t.Fatalf("DiscoverManifests: %v", err)
	}
	if len(specs) != 1 || specs[0].ID != "demo2" {
		t.Fatalf("unexpected specs: %+v", specs)
	}
}

func TestDiscoverManifestsSkipsIncompleteEntries(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "c.json", `[{"id":"no-command"},{"command":"no-id"}]`)

	specs, err := DiscoverManifests("", []string{dir})
	if err != nil {
		t.Fatalf("DiscoverManifests: %v", err)
	}
	if len(specs) != 0 {
		t.Fatalf("expected incomplete entries to be skipped, got %+v", specs)
	}
}

func TestDiscoverManifestsLastWriteWins(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "a.json", `[{"id":"demo","command":"./v1"}]`)
	writeManifest(t, dir, "z.json", `[{"id":"demo","command":"./v2"}]`)

	specs, err := DiscoverManifests("", []string{dir})
	if err != nil {
		t.Fatalf("DiscoverManifests: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected dedup to a single entry, got %+v", specs)
	}
	if specs[0].Command != "./v2" {
		t.Errorf("expected last-write-wins, got command %q", specs[0].Command)
	}
}

func TestDiscoverManifestsSkipsNonStdioTransport(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "d.json", `[{"id":"demo","command":"x","transport":"sse"}]`)

	specs, err := DiscoverManifests("", []string{dir})
	if err != nil {
		t.Fatalf("DiscoverManifests: %v", err)
	}
	if len(specs) != 0 {
		t.Errorf("expected non-stdio transport to be ignored, got %+v", specs)
	}
}

func TestSanitizeNameCollapsesRuns(t *testing.T) {
	if got := SanitizeName("my server!!"); got != "my_server" {
		t.Errorf("SanitizeName = %q", got)
	}
}

func TestLocalToolName(t *testing.T) {
	if got := LocalToolName("demo", "echo"); got != "mcp_demo_echo" {
		t.Errorf("LocalToolName = %q", got)
	}
}
