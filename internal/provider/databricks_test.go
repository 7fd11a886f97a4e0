package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDatabricksSubstitutesDefaultModel(t *testing.T) {
	var captured struct {
		Model string `json:"model"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content":[]}`))
	}))
	defer server.Close()

	d := NewDatabricks(server.URL, "pat-token", "", "claude-default")
	resp, err := d.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.Status)
	}
	if captured.Model != "claude-default" {
		t.Errorf("expected default model substitution, got %q", captured.Model)
	}
}

func TestDatabricksPassesThroughErrorVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	d := NewDatabricks(server.URL, "pat-token", "", "claude-default")
	resp, err := d.Complete(context.Background(), Request{Model: "claude-3"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Status != http.StatusTooManyRequests {
		t.Errorf("expected status to pass through verbatim, got %d", resp.Status)
	}
	if string(resp.Body) != `{"error":{"type":"rate_limit_error","message":"slow down"}}` {
		t.Errorf("expected body to pass through verbatim, got %q", resp.Body)
	}
}

func TestDatabricksUsesEndpointPathOverride(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	d := NewDatabricks(server.URL, "pat", "/custom/path", "claude-default")
	if _, err := d.Complete(context.Background(), Request{Model: "claude-3"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if gotPath != "/custom/path" {
		t.Errorf("expected custom endpoint path, got %q", gotPath)
	}
}

func TestResponseToolCallsDetection(t *testing.T) {
	withTools := Response{Body: json.RawMessage(`{"content":[{"type":"tool_use","name":"shell"}]}`)}
	if !withTools.ToolCalls() {
		t.Error("expected tool_use block to be detected")
	}

	withoutTools := Response{Body: json.RawMessage(`{"content":[{"type":"text","text":"done"}]}`)}
	if withoutTools.ToolCalls() {
		t.Error("expected text-only content to report no tool calls")
	}
}
