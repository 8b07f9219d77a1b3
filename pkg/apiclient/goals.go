package apiclient

import (
	"net/url"
	"time"
)

// Criterion is an acceptance criterion with its latest audit assessment.
type Criterion struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Met           bool     `json:"met"`
	Reasoning     string   `json:"reasoning,omitempty"`
	EvidenceFiles []string `json:"evidence_files,omitempty"`
}

// ReviewArtifact is a change proposal recorded against a goal.
type ReviewArtifact struct {
	URL             string    `json:"url"`
	SessionID       string    `json:"session_id"`
	ExternalAgentID string    `json:"external_agent_id,omitempty"`
	AddedAt         time.Time `json:"added_at"`
}

// Goal represents a persistent goal in the registry.
type Goal struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Status          string           `json:"status"`
	Criteria        []Criterion      `json:"criteria,omitempty"`
	ReviewArtifacts []ReviewArtifact `json:"review_artifacts,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// GoalDetail is a goal with its attached sessions.
type GoalDetail struct {
	Goal
	Sessions []Session `json:"sessions,omitempty"`
}

// CreateGoalRequest is the request to create a goal.
type CreateGoalRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Criteria    []string `json:"criteria,omitempty"`
}

// CriterionPatch updates or adds a single acceptance criterion. Entries
// without an ID are added; criteria absent from the patch are removed.
type CriterionPatch struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

// UpdateGoalRequest is the request to update a goal. Nil fields are left
// unchanged; a non-nil Criteria list replaces the criterion set.
type UpdateGoalRequest struct {
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Status      *string          `json:"status,omitempty"`
	Criteria    []CriterionPatch `json:"criteria,omitempty"`
}

// ReviewResult is the outcome of a review or re-audit round.
type ReviewResult struct {
	Outcome        string `json:"outcome"`
	SessionID      string `json:"session_id,omitempty"`
	ChildSessionID string `json:"child_session_id,omitempty"`
	Severity       string `json:"severity,omitempty"`
	Summary        string `json:"summary,omitempty"`
}

// ListGoals returns all goals.
func (c *Client) ListGoals() ([]Goal, error) {
	return listResources[Goal](c, "/goals")
}

// GetGoal returns a goal with its sessions.
func (c *Client) GetGoal(id string) (*GoalDetail, error) {
	return getResource[GoalDetail](c, resourcePath("/goals/%s", url.PathEscape(id)))
}

// CreateGoal creates a new goal.
func (c *Client) CreateGoal(req *CreateGoalRequest) (*Goal, error) {
	return createResource[Goal](c, "/goals", req)
}

// UpdateGoal updates an existing goal.
func (c *Client) UpdateGoal(id string, req *UpdateGoalRequest) (*Goal, error) {
	return patchResource[Goal](c, resourcePath("/goals/%s", url.PathEscape(id)), req)
}

// DeleteGoal deletes a goal.
func (c *Client) DeleteGoal(id string) error {
	return deleteResource(c, resourcePath("/goals/%s", url.PathEscape(id)))
}

// ReAuditGoal re-runs the audit for a goal against its most recent session.
func (c *Client) ReAuditGoal(id string) (*ReviewResult, error) {
	var result ReviewResult
	if err := c.post(resourcePath("/goals/%s/re-audit", url.PathEscape(id)), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
