package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Databricks calls a Databricks Model Serving endpoint hosting an
// Anthropic-compatible model (spec §6 "POST <base>/serving-endpoints/
// <model>/invocations"). The request body is forwarded byte-for-byte
// aside from the provider-specific default model substitution; the
// response is returned verbatim regardless of status.
type Databricks struct {
	APIBase      string
	APIKey       string
	EndpointPath string // overrides the default "/serving-endpoints/%s/invocations" path template
	DefaultModel string
	HTTPClient   *http.Client
}

func NewDatabricks(apiBase, apiKey, endpointPath, defaultModel string) *Databricks {
	return &Databricks{
		APIBase:      strings.TrimRight(apiBase, "/"),
		APIKey:       apiKey,
		EndpointPath: endpointPath,
		DefaultModel: defaultModel,
		HTTPClient:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (d *Databricks) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = d.DefaultModel
	}
	req.Model = model

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal databricks request: %w", err)
	}

	path := d.EndpointPath
	if path == "" {
		path = fmt.Sprintf("/serving-endpoints/%s/invocations", model)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.APIBase+path, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build databricks request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+d.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.HTTPClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("databricks request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read databricks response: %w", err)
	}

	return Response{Status: resp.StatusCode, Body: respBody}, nil
}
