package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is the HTTP implementation of [Provider].
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientConfig configures the Agent Provider client.
type ClientConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// NewClient creates an Agent Provider client.
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

// Create starts a new agent.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*Agent, error) {
	var agent Agent
	if err := c.do(ctx, http.MethodPost, "/v1/agents", req, &agent); err != nil {
		return nil, fmt.Errorf("agent provider create: %w", err)
	}
	return &agent, nil
}

// Get fetches the current status of an agent.
func (c *Client) Get(ctx context.Context, id string) (*Agent, error) {
	var resp struct {
		Agent
		Outputs *struct {
			ChangeProposal struct {
				URL string `json:"url"`
			} `json:"change_proposal"`
		} `json:"outputs,omitempty"`
	}
	path := "/v1/agents/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("agent provider get %s: %w", id, err)
	}
	agent := resp.Agent
	if agent.ChangeProposalURL == "" && resp.Outputs != nil {
		agent.ChangeProposalURL = resp.Outputs.ChangeProposal.URL
	}
	return &agent, nil
}

// ListSources lists the repositories available to the provider.
func (c *Client) ListSources(ctx context.Context) ([]Source, error) {
	var resp struct {
		Sources []Source `json:"sources"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/sources", nil, &resp); err != nil {
		return nil, fmt.Errorf("agent provider list sources: %w", err)
	}
	return resp.Sources, nil
}

// do performs an HTTP request and decodes the response.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
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
		return fmt.Errorf("agent provider returned %d: %s", resp.StatusCode, truncate(respBody, 512))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
