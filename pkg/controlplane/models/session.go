package models

import "time"

// SessionStatus is the lifecycle status of a session.
type SessionStatus string

const (
	// SessionStatusQueued means the session exists but the Agent Provider
	// has not confirmed a live agent yet.
	SessionStatusQueued SessionStatus = "queued"

	// SessionStatusExecuting means the Agent Provider has a live agent.
	SessionStatusExecuting SessionStatus = "executing"

	// SessionStatusVerifying means the agent produced a change proposal
	// and CI or review is pending.
	SessionStatusVerifying SessionStatus = "verifying"

	// SessionStatusCompleted is terminal success.
	SessionStatusCompleted SessionStatus = "completed"

	// SessionStatusFailed is terminal failure.
	SessionStatusFailed SessionStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
// A terminal session holds no file locks.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed
}

// Valid reports whether the status is one of the known values.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusQueued, SessionStatusExecuting, SessionStatusVerifying,
		SessionStatusCompleted, SessionStatusFailed:
		return true
	}
	return false
}

// MaxRemediationDepth bounds the self-healing loop. No session is ever
// created with a greater remediation depth.
const MaxRemediationDepth = 3

// Session is one supervised unit of agent work, bound to a branch and an
// exclusive lock set.
type Session struct {
	ID        string  `gorm:"primaryKey;size:36" json:"id"`
	GoalID    *string `gorm:"size:36;index" json:"goal_id,omitempty"`
	CascadeID *string `gorm:"size:36;index" json:"cascade_id,omitempty"`

	SourceRepo string `gorm:"not null;size:255" json:"source_repo"` // owner/name
	BranchName string `gorm:"not null;size:255;index" json:"branch_name"`
	BaseBranch string `gorm:"size:255" json:"base_branch"`

	// ExternalAgentID is assigned by the Agent Provider on acceptance.
	// Globally unique when non-null.
	ExternalAgentID *string `gorm:"uniqueIndex;size:255" json:"external_agent_id,omitempty"`
	AgentURL        string  `gorm:"size:512" json:"agent_url,omitempty"`

	LastReviewedCommit string `gorm:"size:64" json:"last_reviewed_commit,omitempty"`
	RemediationDepth   int    `gorm:"default:0" json:"remediation_depth"`

	Status    string     `gorm:"default:queued;size:20;index" json:"status"`
	LastError string     `gorm:"type:text" json:"last_error,omitempty"`
	Prompt    string     `gorm:"type:text" json:"-"`

	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// Locks held by this session. Deleted in the same transaction that
	// moves the session to a terminal state.
	Locks []FileLock `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"locks,omitempty"`
}

// TableName returns the table name for Session.
func (Session) TableName() string {
	return "sessions"
}

// GetStatus returns the status as a SessionStatus type.
func (s *Session) GetStatus() SessionStatus {
	return SessionStatus(s.Status)
}

// Terminal reports whether the session is in a terminal state.
func (s *Session) Terminal() bool {
	return s.GetStatus().Terminal()
}
