package config

import (
	"os"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Provider.Type != DefaultModelProvider {
		t.Errorf("provider type = %q, want %q", cfg.Provider.Type, DefaultModelProvider)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Cache.MaxEntries != DefaultPromptCacheMax {
		t.Errorf("cache max entries = %d, want %d", cfg.Cache.MaxEntries, DefaultPromptCacheMax)
	}
	if cfg.Policy.MaxStepsPerTurn != DefaultMaxStepsPerTurn {
		t.Errorf("max steps = %d, want %d", cfg.Policy.MaxStepsPerTurn, DefaultMaxStepsPerTurn)
	}
	if !cfg.Cache.Enabled {
		t.Error("cache should be enabled by default")
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Provider.Type != DefaultModelProvider {
		t.Errorf("expected default provider %q, got %q", DefaultModelProvider, cfg.Provider.Type)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("MODEL_PROVIDER", "azure")
	t.Setenv("PORT", "9000")
	t.Setenv("POLICY_DISALLOWED_TOOLS", "shell,python_exec")
	t.Setenv("POLICY_GIT_ALLOW_PUSH", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Provider.Type != "azure" {
		t.Errorf("provider type = %q, want azure", cfg.Provider.Type)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if len(cfg.Policy.DisallowedTools) != 2 || cfg.Policy.DisallowedTools[0] != "shell" {
		t.Errorf("disallowed tools = %v", cfg.Policy.DisallowedTools)
	}
	if !cfg.Policy.Git.AllowPush {
		t.Error("expected AllowPush to be true")
	}
}

func TestSplitList(t *testing.T) {
	cases := map[string][]string{
		"a,b,c":  {"a", "b", "c"},
		"a":      {"a"},
		"a,,b":   {"a", "b"},
		"":       nil,
	}
	for in, want := range cases {
		got := splitList(in)
		if len(got) != len(want) {
			t.Errorf("splitList(%q) = %v, want %v", in, got, want)
			continue
		}
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("splitList(%q)[%d] = %q, want %q", in, i, got[i], want[i])
			}
		}
	}
}
