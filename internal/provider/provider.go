// Package provider translates Anthropic-compatible /v1/messages requests
// to a configured upstream (Databricks Model Serving or an Azure-hosted
// Anthropic deployment) and passes the response back verbatim on
// non-2xx (spec §4.1 "Provider call", §6 "Provider errors pass through
// unmodified"). Grounded on agentsdk-go/pkg/model/anthropic.go's client
// wiring for the Azure adapter, and on internal/gateway/gateway.go's raw
// net/http request-forwarding idiom for the Databricks adapter (Databricks
// serving endpoints are not wrapped by the SDK, so the byte-for-byte
// passthrough spec.md's provider contract requires is easiest done with
// the plain client).
package provider

import (
	"context"
	"encoding/json"
)

// Request is the normalized outbound call shape (spec §3 "ProviderRequest").
type Request struct {
	Model       string            `json:"model"`
	Messages    []json.RawMessage `json:"messages"`
	System      json.RawMessage   `json:"system,omitempty"`
	Tools       json.RawMessage   `json:"tools,omitempty"`
	ToolChoice  json.RawMessage   `json:"tool_choice,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	TopP        *float64          `json:"top_p,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
}

// Response wraps a raw Anthropic-shaped Messages API response body along
// with the transport status it arrived with, so callers can distinguish a
// successful reply from a provider-side error without re-decoding.
type Response struct {
	Status int
	Body   json.RawMessage
}

// ToolCalls reports whether the response body contains any tool_use
// content blocks, feeding the prompt-cache admission rule (spec §4.4:
// "ok && status==200 && no tool-call list").
func (r Response) ToolCalls() bool {
	var parsed struct {
		Content []struct {
			Type string `json:"type"`
		} `json:"content"`
	}
	if err := json.Unmarshal(r.Body, &parsed); err != nil {
		return false
	}
	for _, block := range parsed.Content {
		if block.Type == "tool_use" {
			return true
		}
	}
	return false
}

// Provider is the interface the orchestrator drives, common to every
// upstream model backend.
type Provider interface {
	// Complete issues one non-streaming Messages API call and returns the
	// upstream's raw response body verbatim, even on error status (spec §6
	// "Provider errors pass through unmodified: same status code, same
	// body").
	Complete(ctx context.Context, req Request) (Response, error)
}
