// Package agent abstracts the external Agent Provider: the service that
// actually runs AI coding agents and produces change proposals.
//
// The engine depends only on [Provider]; the HTTP client and the [Fake] are
// interchangeable implementations.
package agent

import "context"

// Status is the Agent Provider's view of an agent run.
type Status string

const (
	StatusPlanning  Status = "PLANNING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// CreateRequest describes the agent to spin up.
type CreateRequest struct {
	Prompt         string            `json:"prompt"`
	SourceRepo     string            `json:"source_repo"` // owner/name
	StartingBranch string            `json:"starting_branch"`
	Context        map[string]string `json:"context,omitempty"`
}

// Agent is the provider-side record of an agent run.
type Agent struct {
	ID     string `json:"id"`
	URL    string `json:"url,omitempty"`
	Status Status `json:"status,omitempty"`

	// ChangeProposalURL is set once the agent has opened a change proposal.
	ChangeProposalURL string `json:"change_proposal_url,omitempty"`
}

// Source is a repository the provider can work against.
type Source struct {
	ID   string `json:"id"`
	Repo string `json:"repo"`
}

// Provider is the narrow interface the engine consumes.
//
// Dispatch is not retried by the engine; a single failed Create marks the
// session failed and surfaces to the operator.
type Provider interface {
	// Create starts a new agent. Returns its id and URL.
	Create(ctx context.Context, req CreateRequest) (*Agent, error)

	// Get fetches the current status of an agent.
	Get(ctx context.Context, id string) (*Agent, error)

	// ListSources lists the repositories available to the provider.
	ListSources(ctx context.Context) ([]Source, error)
}
