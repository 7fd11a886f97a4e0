// Package config loads agentproxy's configuration from a JSON file with
// environment-variable overrides layered on top, following the same
// default-then-override shape the rest of the corpus uses for its own
// config loading.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultPort               = 8080
	DefaultModelProvider      = "databricks"
	DefaultAzureVersion       = "2023-06-01"
	DefaultPromptCacheEnabled = true
	DefaultPromptCacheTTLMs   = 300000
	DefaultPromptCacheMax     = 64
	DefaultMaxStepsPerTurn    = 8
	DefaultMaxToolCallsPerTun = 12
	DefaultMcpManifestDirs    = "~/.claude/mcp"
	DefaultSessionDBPath      = "data/sessions.db"
	DefaultWebSearchEndpoint  = "http://localhost:8888/search"
	DefaultWebSearchTimeoutMs = 10000
	DefaultSandboxRuntime     = "docker"
	DefaultSandboxImage       = "agentproxy-sandbox:latest"
	DefaultSandboxWorkspace   = "/workspace"
	DefaultSandboxNetworkMode = "none"
	DefaultSandboxTimeoutMs   = 15000
	DefaultSandboxPermMode    = "auto"
)

// Config is the process-wide configuration tree. It is loaded once at
// startup and never hot-reloaded.
type Config struct {
	Provider ProviderConfig `json:"provider"`
	Server   ServerConfig   `json:"server"`
	Cache    CacheConfig    `json:"cache"`
	Policy   PolicyConfig   `json:"policy"`
	MCP      MCPConfig      `json:"mcp"`
	Session  SessionConfig  `json:"session"`
	Web      WebConfig      `json:"web"`
	Sandbox  SandboxConfig  `json:"sandbox"`
}

// ProviderConfig selects and configures the upstream model provider.
type ProviderConfig struct {
	Type string `json:"type"` // "databricks" | "azure"

	DatabricksAPIBase     string `json:"databricksApiBase,omitempty"`
	DatabricksAPIKey      string `json:"databricksApiKey,omitempty"`
	DatabricksEndpointPath string `json:"databricksEndpointPath,omitempty"`

	AzureEndpoint string `json:"azureEndpoint,omitempty"`
	AzureAPIKey   string `json:"azureApiKey,omitempty"`
	AzureVersion  string `json:"azureVersion,omitempty"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port          int    `json:"port"`
	WorkspaceRoot string `json:"workspaceRoot"`
}

// CacheConfig configures the prompt cache (§4.4).
type CacheConfig struct {
	Enabled    bool  `json:"enabled"`
	TTLMs      int64 `json:"ttlMs"`
	MaxEntries int   `json:"maxEntries"`
}

// PolicyConfig configures the policy engine (§4.2).
type PolicyConfig struct {
	MaxStepsPerTurn    int      `json:"maxStepsPerTurn"`
	MaxToolCallsPerTun int      `json:"maxToolCallsPerTurn"`
	DisallowedTools    []string `json:"disallowedTools"`
	Git                GitPolicyConfig `json:"git"`
}

// GitPolicyConfig configures the workspace_git_* sub-policy.
type GitPolicyConfig struct {
	AllowPush    bool   `json:"allowPush"`
	AllowPull    bool   `json:"allowPull"`
	AllowCommit  bool   `json:"allowCommit"`
	RequireTests bool   `json:"requireTests"`
	TestCommand  string `json:"testCommand,omitempty"`
	CommitRegex  string `json:"commitRegex,omitempty"`
	Autostash    bool   `json:"autostash"`
}

// MCPConfig configures manifest discovery for the MCP registry (§4.5).
type MCPConfig struct {
	ServerManifest string   `json:"serverManifest,omitempty"`
	ManifestDirs   []string `json:"manifestDirs"`
	WatchManifests bool     `json:"watchManifests"`
}

// SessionConfig configures the session store (§4.7).
type SessionConfig struct {
	DBPath string `json:"dbPath"`
}

// WebConfig configures the web_search / web_fetch tools (§4.3).
type WebConfig struct {
	SearchEndpoint string   `json:"searchEndpoint"`
	AllowAllHosts  bool     `json:"allowAllHosts"`
	AllowedHosts   []string `json:"allowedHosts"`
	TimeoutMs      int      `json:"timeoutMs"`
}

// SandboxConfig configures the containerized subprocess sandbox (§4.6).
type SandboxConfig struct {
	Enabled           bool     `json:"enabled"`
	Image             string   `json:"image"`
	Runtime           string   `json:"runtime"`
	ContainerWorkspace string  `json:"containerWorkspace"`
	MountWorkspace    bool     `json:"mountWorkspace"`
	AllowNetworking   bool     `json:"allowNetworking"`
	NetworkMode       string   `json:"networkMode"`
	PassthroughEnv    []string `json:"passthroughEnv"`
	ExtraMounts       []string `json:"extraMounts"`
	TimeoutMs         int      `json:"timeoutMs"`
	User              string   `json:"user,omitempty"`
	Entrypoint        string   `json:"entrypoint,omitempty"`
	ReuseSession      bool     `json:"reuseSession"`
	PermissionMode    string   `json:"permissionMode"`
	PermissionAllow   []string `json:"permissionAllow"`
	PermissionDeny    []string `json:"permissionDeny"`
}

func DefaultConfig() *Config {
	cwd, _ := os.Getwd()
	return &Config{
		Provider: ProviderConfig{
			Type:         DefaultModelProvider,
			AzureVersion: DefaultAzureVersion,
		},
		Server: ServerConfig{
			Port:          DefaultPort,
			WorkspaceRoot: cwd,
		},
		Cache: CacheConfig{
			Enabled:    DefaultPromptCacheEnabled,
			TTLMs:      DefaultPromptCacheTTLMs,
			MaxEntries: DefaultPromptCacheMax,
		},
		Policy: PolicyConfig{
			MaxStepsPerTurn:    DefaultMaxStepsPerTurn,
			MaxToolCallsPerTun: DefaultMaxToolCallsPerTun,
		},
		MCP: MCPConfig{
			ManifestDirs: []string{DefaultMcpManifestDirs},
		},
		Session: SessionConfig{
			DBPath: DefaultSessionDBPath,
		},
		Web: WebConfig{
			SearchEndpoint: DefaultWebSearchEndpoint,
			AllowAllHosts:  true,
			TimeoutMs:      DefaultWebSearchTimeoutMs,
		},
		Sandbox: SandboxConfig{
			Image:              DefaultSandboxImage,
			Runtime:            DefaultSandboxRuntime,
			ContainerWorkspace: DefaultSandboxWorkspace,
			MountWorkspace:     true,
			NetworkMode:        DefaultSandboxNetworkMode,
			TimeoutMs:          DefaultSandboxTimeoutMs,
			PermissionMode:     DefaultSandboxPermMode,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".agentproxy")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// LoadConfig reads the JSON config file (if present), then applies the
// environment variable surface named in spec.md §6 on top.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if parsed, err := strconv.ParseBool(v); err == nil {
				*dst = parsed
			}
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				*dst = parsed
			}
		}
	}
	integer64 := func(key string, dst *int64) {
		if v := os.Getenv(key); v != "" {
			if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = parsed
			}
		}
	}
	list := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = splitList(v)
		}
	}

	str("MODEL_PROVIDER", &cfg.Provider.Type)
	str("DATABRICKS_API_BASE", &cfg.Provider.DatabricksAPIBase)
	str("DATABRICKS_API_KEY", &cfg.Provider.DatabricksAPIKey)
	str("DATABRICKS_ENDPOINT_PATH", &cfg.Provider.DatabricksEndpointPath)
	str("AZURE_ANTHROPIC_ENDPOINT", &cfg.Provider.AzureEndpoint)
	str("AZURE_ANTHROPIC_API_KEY", &cfg.Provider.AzureAPIKey)
	str("AZURE_ANTHROPIC_VERSION", &cfg.Provider.AzureVersion)

	integer("PORT", &cfg.Server.Port)
	str("WORKSPACE_ROOT", &cfg.Server.WorkspaceRoot)

	boolean("PROMPT_CACHE_ENABLED", &cfg.Cache.Enabled)
	integer64("PROMPT_CACHE_TTL_MS", &cfg.Cache.TTLMs)
	integer("PROMPT_CACHE_MAX_ENTRIES", &cfg.Cache.MaxEntries)

	integer("POLICY_MAX_STEPS", &cfg.Policy.MaxStepsPerTurn)
	integer("POLICY_MAX_TOOL_CALLS", &cfg.Policy.MaxToolCallsPerTun)
	list("POLICY_DISALLOWED_TOOLS", &cfg.Policy.DisallowedTools)
	boolean("POLICY_GIT_ALLOW_PUSH", &cfg.Policy.Git.AllowPush)
	boolean("POLICY_GIT_ALLOW_PULL", &cfg.Policy.Git.AllowPull)
	boolean("POLICY_GIT_ALLOW_COMMIT", &cfg.Policy.Git.AllowCommit)
	boolean("POLICY_GIT_REQUIRE_TESTS", &cfg.Policy.Git.RequireTests)
	str("POLICY_GIT_TEST_COMMAND", &cfg.Policy.Git.TestCommand)
	str("POLICY_GIT_COMMIT_REGEX", &cfg.Policy.Git.CommitRegex)
	boolean("POLICY_GIT_AUTOSTASH", &cfg.Policy.Git.Autostash)

	str("MCP_SERVER_MANIFEST", &cfg.MCP.ServerManifest)
	list("MCP_MANIFEST_DIRS", &cfg.MCP.ManifestDirs)
	boolean("MCP_MANIFEST_WATCH", &cfg.MCP.WatchManifests)

	str("SESSION_DB_PATH", &cfg.Session.DBPath)

	str("WEB_SEARCH_ENDPOINT", &cfg.Web.SearchEndpoint)
	boolean("WEB_SEARCH_ALLOW_ALL", &cfg.Web.AllowAllHosts)
	list("WEB_SEARCH_ALLOWED_HOSTS", &cfg.Web.AllowedHosts)
	integer("WEB_SEARCH_TIMEOUT_MS", &cfg.Web.TimeoutMs)

	boolean("MCP_SANDBOX_ENABLED", &cfg.Sandbox.Enabled)
	str("MCP_SANDBOX_IMAGE", &cfg.Sandbox.Image)
	str("MCP_SANDBOX_RUNTIME", &cfg.Sandbox.Runtime)
	str("MCP_SANDBOX_CONTAINER_WORKSPACE", &cfg.Sandbox.ContainerWorkspace)
	boolean("MCP_SANDBOX_MOUNT_WORKSPACE", &cfg.Sandbox.MountWorkspace)
	boolean("MCP_SANDBOX_ALLOW_NETWORKING", &cfg.Sandbox.AllowNetworking)
	str("MCP_SANDBOX_NETWORK_MODE", &cfg.Sandbox.NetworkMode)
	list("MCP_SANDBOX_PASSTHROUGH_ENV", &cfg.Sandbox.PassthroughEnv)
	list("MCP_SANDBOX_EXTRA_MOUNTS", &cfg.Sandbox.ExtraMounts)
	integer("MCP_SANDBOX_TIMEOUT_MS", &cfg.Sandbox.TimeoutMs)
	str("MCP_SANDBOX_USER", &cfg.Sandbox.User)
	str("MCP_SANDBOX_ENTRYPOINT", &cfg.Sandbox.Entrypoint)
	boolean("MCP_SANDBOX_REUSE_SESSION", &cfg.Sandbox.ReuseSession)
	str("MCP_SANDBOX_PERMISSION_MODE", &cfg.Sandbox.PermissionMode)
	list("MCP_SANDBOX_PERMISSION_ALLOW", &cfg.Sandbox.PermissionAllow)
	list("MCP_SANDBOX_PERMISSION_DENY", &cfg.Sandbox.PermissionDeny)
}

func splitList(v string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(ConfigPath(), data, 0644)
}
