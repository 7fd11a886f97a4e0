package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/agentproxy/internal/cache"
	"github.com/stellarlinkco/agentproxy/internal/config"
	"github.com/stellarlinkco/agentproxy/internal/httpapi"
	"github.com/stellarlinkco/agentproxy/internal/mcp"
	"github.com/stellarlinkco/agentproxy/internal/orchestrator"
	"github.com/stellarlinkco/agentproxy/internal/policy"
	"github.com/stellarlinkco/agentproxy/internal/provider"
	"github.com/stellarlinkco/agentproxy/internal/scheduler"
	"github.com/stellarlinkco/agentproxy/internal/session"
	"github.com/stellarlinkco/agentproxy/internal/subprocess"
	"github.com/stellarlinkco/agentproxy/internal/tool"
	"github.com/stellarlinkco/agentproxy/internal/tool/builtin"
)

var rootCmd = &cobra.Command{
	Use:   "agentproxy",
	Short: "agentproxy - self-hosted Anthropic-compatible tool-use proxy",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP proxy",
	RunE:  runServe,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check connectivity to the configured provider",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(serveCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildProvider(cfg *config.Config) (provider.Provider, bool, error) {
	switch cfg.Provider.Type {
	case "azure":
		if cfg.Provider.AzureEndpoint == "" || cfg.Provider.AzureAPIKey == "" {
			return nil, false, fmt.Errorf("azure provider requires AZURE_ANTHROPIC_ENDPOINT and AZURE_ANTHROPIC_API_KEY")
		}
		return provider.NewAzure(cfg.Provider.AzureEndpoint, cfg.Provider.AzureAPIKey, cfg.Provider.AzureVersion, ""), false, nil
	default: // "databricks"
		if cfg.Provider.DatabricksAPIBase == "" || cfg.Provider.DatabricksAPIKey == "" {
			return nil, false, fmt.Errorf("databricks provider requires DATABRICKS_API_BASE and DATABRICKS_API_KEY")
		}
		return provider.NewDatabricks(cfg.Provider.DatabricksAPIBase, cfg.Provider.DatabricksAPIKey, cfg.Provider.DatabricksEndpointPath, ""), true, nil
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	prov, isDatabricks, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	store, err := session.Open(cfg.Session.DBPath)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	var promptCache *cache.Cache
	if cfg.Cache.Enabled {
		promptCache = cache.New(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTLMs)*time.Millisecond)
	}

	runner := subprocess.New(subprocess.SandboxConfig{
		Enabled:            cfg.Sandbox.Enabled,
		Runtime:            cfg.Sandbox.Runtime,
		Image:              cfg.Sandbox.Image,
		ContainerWorkspace: cfg.Sandbox.ContainerWorkspace,
		MountWorkspace:     cfg.Sandbox.MountWorkspace,
		NetworkMode:        cfg.Sandbox.NetworkMode,
		ExtraMounts:        cfg.Sandbox.ExtraMounts,
		PassthroughEnv:     cfg.Sandbox.PassthroughEnv,
		User:               cfg.Sandbox.User,
		Entrypoint:         cfg.Sandbox.Entrypoint,
	})

	registry := mcp.NewRegistry()
	if err := registry.LoadManifests(cfg.MCP.ServerManifest, cfg.MCP.ManifestDirs); err != nil {
		fmt.Fprintf(os.Stderr, "warning: mcp manifest discovery failed: %v\n", err)
	}
	bootCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := registry.Boot(bootCtx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: mcp boot: %v\n", err)
	}
	cancel()

	sched := scheduler.New()
	if _, err := sched.AddFunc("*/5 * * * *", func() {
		refreshCtx, refreshCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer refreshCancel()
		if err := registry.Refresh(refreshCtx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: mcp refresh: %v\n", err)
		}
	}); err != nil {
		fmt.Fprintf(os.Stderr, "warning: schedule mcp refresh: %v\n", err)
	}
	if promptCache != nil {
		if _, err := sched.AddFunc("*/5 * * * *", func() { promptCache.Sweep() }); err != nil {
			fmt.Fprintf(os.Stderr, "warning: schedule cache sweep: %v\n", err)
		}
	}
	watchCtx, watchCancel := context.WithCancel(context.Background())
	if cfg.MCP.WatchManifests && len(cfg.MCP.ManifestDirs) > 0 {
		if _, err := mcp.WatchManifests(watchCtx, expandManifestDirs(cfg.MCP.ManifestDirs), func() {
			if err := registry.LoadManifests(cfg.MCP.ServerManifest, cfg.MCP.ManifestDirs); err != nil {
				fmt.Fprintf(os.Stderr, "warning: mcp manifest reload: %v\n", err)
			}
		}); err != nil {
			fmt.Fprintf(os.Stderr, "warning: mcp manifest watch: %v\n", err)
		}
	}
	sched.Start()

	toolRegistry := tool.NewRegistry()
	deps := builtin.NewDeps(cfg.Server.WorkspaceRoot, runner, registry, builtin.WebConfig{
		SearchEndpoint: cfg.Web.SearchEndpoint,
		TimeoutMs:      int64(cfg.Web.TimeoutMs),
		AllowedHosts:   webAllowedHosts(cfg),
	}, "")
	builtin.RegisterAll(toolRegistry, deps)

	sandboxToolNames := []string{"shell", "python_exec", "workspace_test_run"}
	policyEngine := policy.New(cfg.Policy.DisallowedTools, cfg.Policy.MaxToolCallsPerTun, policy.GitPolicy{
		AllowPush:    cfg.Policy.Git.AllowPush,
		AllowPull:    cfg.Policy.Git.AllowPull,
		AllowCommit:  cfg.Policy.Git.AllowCommit,
		RequireTests: cfg.Policy.Git.RequireTests,
		TestCommand:  cfg.Policy.Git.TestCommand,
		CommitRegex:  cfg.Policy.Git.CommitRegex,
		Autostash:    cfg.Policy.Git.Autostash,
	}, policy.SandboxPermission{
		Mode:  cfg.Sandbox.PermissionMode,
		Allow: cfg.Sandbox.PermissionAllow,
		Deny:  cfg.Sandbox.PermissionDeny,
	}, sandboxToolNames)

	orc := &orchestrator.Orchestrator{
		Provider:             prov,
		ProviderIsDatabricks: isDatabricks,
		Cache:                promptCache,
		Policy:               policyEngine,
		Tools:                tool.NewExecutor(toolRegistry),
		Sessions:             store,
		MaxStepsPerTurn:      cfg.Policy.MaxStepsPerTurn,
		MaxToolCallsPerTurn:  cfg.Policy.MaxToolCallsPerTun,
	}

	server := httpapi.NewServer(orc, store)
	mux := http.NewServeMux()
	server.Register(mux)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpSrv := &http.Server{Addr: addr, Handler: mux}

	serveErr := make(chan error, 1)
	go func() {
		fmt.Printf("agentproxy listening on %s (provider=%s)\n", addr, cfg.Provider.Type)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var serveFailure error
	select {
	case serveFailure = <-serveErr:
	case <-sigCh:
		fmt.Println("agentproxy shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: http shutdown: %v\n", err)
		}
		shutdownCancel()
	}

	sched.Stop()
	watchCancel()
	registry.Close()
	if err := store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: session store close: %v\n", err)
	}
	return serveFailure
}

func expandManifestDirs(dirs []string) []string {
	home, _ := os.UserHomeDir()
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if home != "" && len(d) >= 2 && d[:2] == "~/" {
			d = home + d[1:]
		}
		out = append(out, d)
	}
	return out
}

func webAllowedHosts(cfg *config.Config) []string {
	if cfg.Web.AllowAllHosts {
		return nil
	}
	return cfg.Web.AllowedHosts
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgPath := config.ConfigPath()
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the config to set your provider credentials")
	fmt.Println("  2. Or set DATABRICKS_API_BASE/DATABRICKS_API_KEY or AZURE_ANTHROPIC_ENDPOINT/AZURE_ANTHROPIC_API_KEY")
	fmt.Println("  3. Run 'agentproxy serve' to start the proxy")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Provider: %s\n", cfg.Provider.Type)
	fmt.Printf("Session DB: %s\n", cfg.Session.DBPath)

	if cfg.Provider.Type == "azure" {
		if cfg.Provider.AzureEndpoint == "" || cfg.Provider.AzureAPIKey == "" {
			fmt.Println("Azure: not configured")
			return nil
		}
		az := provider.NewAzure(cfg.Provider.AzureEndpoint, cfg.Provider.AzureAPIKey, cfg.Provider.AzureVersion, "claude-3-5-sonnet-20241022")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := az.Ping(ctx); err != nil {
			fmt.Printf("Azure: unreachable (%v)\n", err)
			return nil
		}
		fmt.Println("Azure: reachable")
		return nil
	}

	if cfg.Provider.DatabricksAPIBase == "" || cfg.Provider.DatabricksAPIKey == "" {
		fmt.Println("Databricks: not configured")
		return nil
	}
	fmt.Printf("Databricks endpoint: %s\n", cfg.Provider.DatabricksAPIBase)
	return nil
}
