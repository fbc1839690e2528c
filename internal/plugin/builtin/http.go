// Package builtin provides the plugin set the engine ships with:
// http, transform, llm, conditional-router, and merge. Each is grounded
// on the corresponding node executor the engine's teacher codebase
// shipped, adapted to the Plugin Interface of spec §6.1.
package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smilemakc/mbflow/internal/plugin"
)

// HTTPClient is the minimal surface HTTPPlugin needs, so tests can
// substitute a fake transport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPPlugin sends an HTTP request built from resolved config and
// returns the response status, parsed body, and latency.
type HTTPPlugin struct {
	client HTTPClient
}

// NewHTTPPlugin builds an HTTPPlugin. A nil client defaults to a
// *http.Client with a 30s timeout.
func NewHTTPPlugin(client HTTPClient) *HTTPPlugin {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPPlugin{client: client}
}

func (p *HTTPPlugin) ID() string { return "http" }

func (p *HTTPPlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{ID: "http", Name: "HTTP Request", Version: "1.0.0", Tags: []string{"network"}}
}

func (p *HTTPPlugin) DefineSchemas() plugin.Schemas {
	return plugin.Schemas{
		Inputs: map[string]plugin.PortSchema{
			"body": {Label: "Request body", Schema: map[string]any{"type": []string{"object", "string", "null"}}},
		},
		Outputs: map[string]plugin.PortSchema{
			"status":    {Label: "Status code", Schema: map[string]any{"type": "integer"}},
			"body":      {Label: "Response body", Schema: map[string]any{"type": []string{"object", "string", "array"}}},
			"latencyMs": {Label: "Latency in milliseconds", Schema: map[string]any{"type": "integer"}},
		},
		Config: map[string]any{
			"method":  map[string]any{"type": "string"},
			"url":     map[string]any{"type": "string"},
			"headers": map[string]any{"type": "object"},
		},
	}
}

func (p *HTTPPlugin) Execute(ctx context.Context, inputs map[string]any, config map[string]any, _ plugin.ExecutionContext, _ any) (plugin.Output, error) {
	url, _ := config["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("http: config.url is required")
	}
	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	var reqBody io.Reader
	if body, ok := inputs["body"]; ok && body != nil {
		switch v := body.(type) {
		case string:
			reqBody = bytes.NewReader([]byte(v))
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("http: marshal body: %w", err)
			}
			reqBody = bytes.NewReader(encoded)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("http: build request: %w", err)
	}
	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	started := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(started)
	if err != nil {
		return nil, fmt.Errorf("http: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http: read response: %w", err)
	}

	var parsed any = string(raw)
	var jsonBody any
	if json.Unmarshal(raw, &jsonBody) == nil {
		parsed = jsonBody
	}

	return plugin.Output{
		"status":    resp.StatusCode,
		"body":      parsed,
		"latencyMs": latency.Milliseconds(),
	}, nil
}
