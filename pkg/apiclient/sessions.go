package apiclient

import (
	"net/url"
	"time"
)

// FileLock is an exclusive per-file reservation held by a session.
type FileLock struct {
	ID        string    `json:"id"`
	FilePath  string    `json:"file_path"`
	SessionID string    `json:"session_id"`
	LockedAt  time.Time `json:"locked_at"`
}

// Session represents an agent work session.
type Session struct {
	ID                 string     `json:"id"`
	GoalID             *string    `json:"goal_id,omitempty"`
	CascadeID          *string    `json:"cascade_id,omitempty"`
	SourceRepo         string     `json:"source_repo"`
	BranchName         string     `json:"branch_name"`
	BaseBranch         string     `json:"base_branch"`
	ExternalAgentID    *string    `json:"external_agent_id,omitempty"`
	AgentURL           string     `json:"agent_url,omitempty"`
	LastReviewedCommit string     `json:"last_reviewed_commit,omitempty"`
	RemediationDepth   int        `json:"remediation_depth"`
	Status             string     `json:"status"`
	LastError          string     `json:"last_error,omitempty"`
	LastSyncedAt       *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	Locks              []FileLock `json:"locks,omitempty"`
}

// TerminateResponse is the result of terminating a session.
type TerminateResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
}

// SyncResult carries the reconciled session after polling the agent fleet.
type SyncResult struct {
	Session           *Session `json:"session"`
	ExternalStatus    string   `json:"external_status,omitempty"`
	ChangeProposalURL string   `json:"change_proposal_url,omitempty"`
}

// SyncOutcome is the per-session result of a batch sync.
type SyncOutcome struct {
	SessionID string      `json:"session_id"`
	Result    *SyncResult `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// ListSessions returns sessions. When all is false only active (non-terminal)
// sessions are returned.
func (c *Client) ListSessions(all bool) ([]Session, error) {
	path := "/sessions"
	if all {
		path += "?all=true"
	}
	return listResources[Session](c, path)
}

// GetSession returns a session by id, including its held locks.
func (c *Client) GetSession(id string) (*Session, error) {
	return getResource[Session](c, resourcePath("/sessions/%s", url.PathEscape(id)))
}

// TerminateSession terminates a session, releasing its locks.
func (c *Client) TerminateSession(id string) (*TerminateResponse, error) {
	var result TerminateResponse
	if err := c.post(resourcePath("/sessions/%s/terminate", url.PathEscape(id)), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SyncSession reconciles a single session against the agent fleet.
func (c *Client) SyncSession(id string) (*SyncResult, error) {
	req := map[string]string{"session_id": id}
	var result SyncResult
	if err := c.post("/orchestrator/sync", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SyncSessions reconciles a batch of sessions. Per-session failures are
// reported inline in the outcomes, not as an error.
func (c *Client) SyncSessions(ids []string) ([]SyncOutcome, error) {
	req := map[string][]string{"session_ids": ids}
	var result struct {
		Results []SyncOutcome `json:"results"`
	}
	if err := c.post("/orchestrator/sync-batch", req, &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}
