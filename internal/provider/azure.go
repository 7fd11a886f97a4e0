package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Azure calls an Azure-hosted Anthropic deployment directly (spec §6 "POST
// <endpoint> with x-api-key and anthropic-version"). The hot request path
// forwards the raw body and returns the raw response verbatim, matching
// Databricks' passthrough contract exactly — decoding into
// anthropic-sdk-go's typed MessageNewParams and re-encoding the reply
// would risk losing unknown fields on the error path spec §6 requires to
// survive byte-for-byte, so the wire-level client is used here too. The
// SDK is still wired in for what it is good at: validating credentials
// against the deployment from the `agentproxy status` command (see Ping),
// the way
// agentsdk-go/pkg/model/anthropic.go constructs its client.
type Azure struct {
	Endpoint     string
	APIKey       string
	Version      string
	DefaultModel string
	HTTPClient   *http.Client
}

func NewAzure(endpoint, apiKey, version, defaultModel string) *Azure {
	return &Azure{
		Endpoint:     endpoint,
		APIKey:       apiKey,
		Version:      version,
		DefaultModel: defaultModel,
		HTTPClient:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (a *Azure) Complete(ctx context.Context, req Request) (Response, error) {
	if req.Model == "" {
		req.Model = a.DefaultModel
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal azure request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build azure request: %w", err)
	}
	httpReq.Header.Set("x-api-key", a.APIKey)
	httpReq.Header.Set("anthropic-version", a.Version)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTPClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("azure request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read azure response: %w", err)
	}

	return Response{Status: resp.StatusCode, Body: respBody}, nil
}

// Ping issues a minimal, fixed-token request through anthropic-sdk-go to
// confirm the configured endpoint and key are reachable, used by `cmd
// agentproxy status` at startup rather than the per-request hot path.
func (a *Azure) Ping(ctx context.Context) error {
	client := anthropicsdk.NewClient(
		option.WithAPIKey(a.APIKey),
		option.WithBaseURL(a.Endpoint),
		option.WithHeader("anthropic-version", a.Version),
	)

	_, err := client.Messages.New(ctx, anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(a.DefaultModel),
		MaxTokens: 1,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("azure ping: %w", err)
	}
	return nil
}
