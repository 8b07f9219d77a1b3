package models

import (
	"encoding/json"
	"time"
)

// GoalStatus is the lifecycle status of a goal.
type GoalStatus string

const (
	// GoalStatusBacklog means no session has been dispatched for the goal yet.
	GoalStatusBacklog GoalStatus = "backlog"

	// GoalStatusInProgress means at least one session is working on the goal.
	GoalStatusInProgress GoalStatus = "in-progress"

	// GoalStatusCompleted means every acceptance criterion has been met.
	GoalStatusCompleted GoalStatus = "completed"

	// GoalStatusDrifted means remediation was exhausted with unmet criteria.
	// Drifted is terminal; operator intervention is required.
	GoalStatusDrifted GoalStatus = "drifted"
)

// Terminal reports whether the status permits no further transitions.
func (s GoalStatus) Terminal() bool {
	return s == GoalStatusCompleted || s == GoalStatusDrifted
}

// Criterion is a single testable requirement of a goal.
//
// The ID is assigned once and never changes for the lifetime of the goal,
// so Auditor assessments keyed by criterion id stay idempotent across
// re-reviews.
type Criterion struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Met           bool     `json:"met"`
	Reasoning     string   `json:"reasoning,omitempty"`
	EvidenceFiles []string `json:"evidence_files,omitempty"`
}

// ReviewArtifact references a change proposal produced for a goal.
type ReviewArtifact struct {
	URL             string    `json:"url"`
	SessionID       string    `json:"session_id"`
	ExternalAgentID string    `json:"external_agent_id,omitempty"`
	AddedAt         time.Time `json:"added_at"`
}

// Goal is a high-level architectural objective supervised by Drover.
type Goal struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	Title       string `gorm:"not null;size:255" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Status      string `gorm:"default:backlog;size:20;index" json:"status"`

	// Criteria is the JSON-encoded acceptance criteria array.
	// Updates are full-rewrite under the goal's row lock.
	Criteria string `gorm:"type:text" json:"-"`

	// ReviewArtifacts is the JSON-encoded list of change proposals,
	// deduplicated by (url, external agent id).
	ReviewArtifacts string `gorm:"type:text" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Parsed blobs (not stored directly)
	ParsedCriteria  []Criterion      `gorm:"-" json:"criteria,omitempty"`
	ParsedArtifacts []ReviewArtifact `gorm:"-" json:"review_artifacts,omitempty"`
}

// TableName returns the table name for Goal.
func (Goal) TableName() string {
	return "goals"
}

// GetCriteria returns the parsed acceptance criteria.
func (g *Goal) GetCriteria() ([]Criterion, error) {
	if g.ParsedCriteria != nil {
		return g.ParsedCriteria, nil
	}
	if g.Criteria == "" {
		return []Criterion{}, nil
	}
	var criteria []Criterion
	if err := json.Unmarshal([]byte(g.Criteria), &criteria); err != nil {
		return nil, err
	}
	g.ParsedCriteria = criteria
	return criteria, nil
}

// SetCriteria replaces the acceptance criteria blob.
func (g *Goal) SetCriteria(criteria []Criterion) error {
	data, err := json.Marshal(criteria)
	if err != nil {
		return err
	}
	g.Criteria = string(data)
	g.ParsedCriteria = criteria
	return nil
}

// GetReviewArtifacts returns the parsed review artifact list.
func (g *Goal) GetReviewArtifacts() ([]ReviewArtifact, error) {
	if g.ParsedArtifacts != nil {
		return g.ParsedArtifacts, nil
	}
	if g.ReviewArtifacts == "" {
		return []ReviewArtifact{}, nil
	}
	var artifacts []ReviewArtifact
	if err := json.Unmarshal([]byte(g.ReviewArtifacts), &artifacts); err != nil {
		return nil, err
	}
	g.ParsedArtifacts = artifacts
	return artifacts, nil
}

// SetReviewArtifacts replaces the review artifact blob.
func (g *Goal) SetReviewArtifacts(artifacts []ReviewArtifact) error {
	data, err := json.Marshal(artifacts)
	if err != nil {
		return err
	}
	g.ReviewArtifacts = string(data)
	g.ParsedArtifacts = artifacts
	return nil
}

// AppendReviewArtifact adds an artifact unless one with the same URL and
// external agent id is already present. Returns true if the list changed.
func (g *Goal) AppendReviewArtifact(artifact ReviewArtifact) (bool, error) {
	artifacts, err := g.GetReviewArtifacts()
	if err != nil {
		return false, err
	}
	for _, existing := range artifacts {
		if existing.URL == artifact.URL && existing.ExternalAgentID == artifact.ExternalAgentID {
			return false, nil
		}
	}
	if err := g.SetReviewArtifacts(append(artifacts, artifact)); err != nil {
		return false, err
	}
	return true, nil
}

// GetStatus returns the status as a GoalStatus type.
func (g *Goal) GetStatus() GoalStatus {
	return GoalStatus(g.Status)
}
