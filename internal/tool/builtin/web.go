package builtin

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stellarlinkco/agentproxy/internal/tool"
)

// WebConfig configures the web_search/web_fetch tools (spec §6
// WEB_SEARCH_*).
type WebConfig struct {
	SearchEndpoint string
	TimeoutMs      int64
	AllowedHosts   []string // empty means unrestricted
}

func (w WebConfig) timeout() time.Duration {
	if w.TimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(w.TimeoutMs) * time.Millisecond
}

func (w WebConfig) hostAllowed(host string) bool {
	if len(w.AllowedHosts) == 0 {
		return true
	}
	for _, allowed := range w.AllowedHosts {
		if strings.EqualFold(allowed, host) {
			return true
		}
	}
	return false
}

// RegisterWeb wires web_search (proxied to a local search endpoint, spec's
// Databricks-only fallback heuristic lives in the orchestrator, not here)
// and web_fetch (host-allowlisted GET).
func RegisterWeb(reg *tool.Registry, cfg WebConfig) {
	client := &http.Client{Timeout: cfg.timeout()}

	reg.Register(&tool.Tool{Name: "web_search", Category: "web", Handler: tool.Simple(func(c tool.Call, tc tool.Context) (string, error) {
		query, _ := c.Params["query"].(string)
		if query == "" {
			return "", fmt.Errorf("query is required")
		}
		body, _ := json.Marshal(map[string]string{"query": query})
		req, err := http.NewRequest(http.MethodPost, cfg.SearchEndpoint, strings.NewReader(string(body)))
		if err != nil {
			return "", fmt.Errorf("build search request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("web_search request: %w", err)
		}
		defer resp.Body.Close()
		out, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return "", fmt.Errorf("read search response: %w", err)
		}
		return string(out), nil
	})})

	reg.Register(&tool.Tool{Name: "web_fetch", Category: "web", Handler: tool.Simple(func(c tool.Call, tc tool.Context) (string, error) {
		target, _ := c.Params["url"].(string)
		parsed, err := url.Parse(target)
		if err != nil || parsed.Host == "" {
			return "", fmt.Errorf("invalid url %q", target)
		}
		if !cfg.hostAllowed(parsed.Hostname()) {
			return "", fmt.Errorf("host %q is not in the fetch allowlist", parsed.Hostname())
		}
		resp, err := client.Get(parsed.String())
		if err != nil {
			return "", fmt.Errorf("web_fetch: %w", err)
		}
		defer resp.Body.Close()
		out, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return "", fmt.Errorf("read fetch response: %w", err)
		}
		return string(out), nil
	})})
}
