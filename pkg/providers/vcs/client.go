package vcs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// mediaTypeDiff asks the host for a unified diff instead of JSON.
const mediaTypeDiff = "application/vnd.github.v3.diff"

// DefaultBaseURL is the hosted GitHub REST API endpoint.
const DefaultBaseURL = "https://api.github.com"

// Client is the HTTP implementation of [Provider] against a GitHub-style
// REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientConfig configures the VCS Provider client.
type ClientConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Token   string        `mapstructure:"token" yaml:"token"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// NewClient creates a VCS Provider client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetCommitDiff returns the unified diff for a single commit.
func (c *Client) GetCommitDiff(ctx context.Context, owner, repo, sha string) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/commits/%s", owner, repo, sha)
	return c.getRaw(ctx, path, mediaTypeDiff)
}

// GetPullRequestDiff returns the unified diff for a pull request.
func (c *Client) GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
	return c.getRaw(ctx, path, mediaTypeDiff)
}

// GetCheckRunLogs returns the raw logs of a CI job. Best-effort: a 404
// yields an empty string without error, since log retention is shorter
// than check-run retention.
func (c *Client) GetCheckRunLogs(ctx context.Context, owner, repo string, jobID int64) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/actions/jobs/%d/logs", owner, repo, jobID)
	logs, err := c.getRaw(ctx, path, "")
	if err != nil {
		var httpErr *httpError
		if asHTTPError(err, &httpErr) && httpErr.status == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}
	return logs, nil
}

// PostPullRequestComment posts a review comment on a pull request.
// Pull request comments go through the issues API on GitHub-style hosts.
func (c *Client) PostPullRequestComment(ctx context.Context, owner, repo string, number int, body string) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, number)
	return c.postJSON(ctx, path, map[string]string{"body": body})
}

// PostCommitComment posts a comment on a commit.
func (c *Client) PostCommitComment(ctx context.Context, owner, repo, sha, body string) error {
	path := fmt.Sprintf("/repos/%s/%s/commits/%s/comments", owner, repo, sha)
	return c.postJSON(ctx, path, map[string]string{"body": body})
}

type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("vcs provider returned %d: %s", e.status, e.body)
}

func asHTTPError(err error, target **httpError) bool {
	he, ok := err.(*httpError)
	if ok {
		*target = he
	}
	return ok
}

func (c *Client) getRaw(ctx context.Context, path, accept string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if err := c.checkStatus(resp, body); err != nil {
		return "", err
	}

	return string(body), nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	return c.checkStatus(resp, body)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// checkStatus converts non-success responses into errors, recognizing the
// host's rate-limit signalling.
func (c *Client) checkStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode < 400 {
		return nil
	}

	if resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0") {
		resetAt := time.Now().Add(time.Minute)
		if raw := resp.Header.Get("X-RateLimit-Reset"); raw != "" {
			if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
				resetAt = time.Unix(epoch, 0)
			}
		}
		return &RateLimitError{ResetAt: resetAt}
	}

	detail := string(body)
	if len(detail) > 512 {
		detail = detail[:512] + "..."
	}
	return &httpError{status: resp.StatusCode, body: detail}
}
