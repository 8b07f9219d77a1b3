package auditor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is the HTTP implementation of [Oracle].
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientConfig configures the Auditor oracle client.
type ClientConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// NewClient creates an Auditor oracle client. Analysis calls are slow, so
// the default timeout is generous.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Review audits a diff against the goal's acceptance criteria.
func (c *Client) Review(ctx context.Context, in ReviewInput) (*AuditReport, error) {
	var report AuditReport
	if err := c.do(ctx, "/v1/review", in, &report); err != nil {
		return nil, fmt.Errorf("auditor review: %w", err)
	}
	if !report.Severity.Valid() {
		return nil, fmt.Errorf("auditor review: invalid severity %q", report.Severity)
	}
	return &report, nil
}

// Decompose analyzes the blast radius of a core-file change.
func (c *Client) Decompose(ctx context.Context, in DecomposeInput) (*CascadeAnalysis, error) {
	var analysis CascadeAnalysis
	if err := c.do(ctx, "/v1/decompose", in, &analysis); err != nil {
		return nil, fmt.Errorf("auditor decompose: %w", err)
	}
	if analysis.Confidence < 0 || analysis.Confidence > 1 {
		return nil, fmt.Errorf("auditor decompose: confidence %f out of range", analysis.Confidence)
	}
	return &analysis, nil
}

func (c *Client) do(ctx context.Context, path string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		detail := string(respBody)
		if len(detail) > 512 {
			detail = detail[:512] + "..."
		}
		return fmt.Errorf("auditor returned %d: %s", resp.StatusCode, detail)
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
