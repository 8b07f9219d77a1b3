package apiclient

import "github.com/drover-ai/drover/internal/cli/health"

// Health returns the server liveness report.
func (c *Client) Health() (*health.Response, error) {
	return getResource[health.Response](c, "/health")
}

// Ready returns the server readiness report, including registry store
// reachability.
func (c *Client) Ready() (*health.Response, error) {
	return getResource[health.Response](c, "/health/ready")
}
