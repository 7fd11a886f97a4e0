package builtin

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stellarlinkco/agentproxy/internal/tool"
)

func TestWebSearchProxiesToEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	reg := tool.NewRegistry()
	RegisterWeb(reg, WebConfig{SearchEndpoint: server.URL, TimeoutMs: 2000})
	exec := tool.NewExecutor(reg)

	res := exec.Execute(tool.Call{Name: "web_search", Params: map[string]any{"query": "go modules"}}, tool.Context{})
	if !res.OK || !strings.Contains(res.Content, "results") {
		t.Errorf("unexpected web_search result: %+v", res)
	}
}

func TestWebFetchRejectsDisallowedHost(t *testing.T) {
	reg := tool.NewRegistry()
	RegisterWeb(reg, WebConfig{AllowedHosts: []string{"allowed.example.com"}, TimeoutMs: 2000})
	exec := tool.NewExecutor(reg)

	res := exec.Execute(tool.Call{Name: "web_fetch", Params: map[string]any{"url": "https://blocked.example.com/page"}}, tool.Context{})
	if res.OK {
		t.Errorf("expected disallowed host to be rejected, got %+v", res)
	}
}

func TestWebFetchAllowsListedHost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	host := strings.TrimPrefix(server.URL, "http://")
	host = strings.Split(host, ":")[0]

	reg := tool.NewRegistry()
	RegisterWeb(reg, WebConfig{AllowedHosts: []string{host}, TimeoutMs: 2000})
	exec := tool.NewExecutor(reg)

	res := exec.Execute(tool.Call{Name: "web_fetch", Params: map[string]any{"url": server.URL}}, tool.Context{})
	if !res.OK || res.Content != "ok" {
		t.Errorf("unexpected web_fetch result: %+v", res)
	}
}
