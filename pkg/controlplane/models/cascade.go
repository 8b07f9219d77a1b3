package models

import (
	"encoding/json"
	"time"
)

// CascadeStatus is the lifecycle status of a cascade.
type CascadeStatus string

const (
	// CascadeStatusAnalyzing means blast-radius decomposition is running.
	CascadeStatusAnalyzing CascadeStatus = "analyzing"

	// CascadeStatusDispatched means at least one repair job was dispatched.
	CascadeStatusDispatched CascadeStatus = "dispatched"

	// CascadeStatusCompleted means every repair session reached a terminal state.
	CascadeStatusCompleted CascadeStatus = "completed"

	// CascadeStatusFailed means no repair job could be dispatched.
	CascadeStatusFailed CascadeStatus = "failed"
)

// Cascade groups the repair sessions spawned from one blast-radius analysis.
//
// It is a weak grouping: deleting a session does not delete the cascade, and
// deleting a cascade nulls the pointer in its sessions.
type Cascade struct {
	ID               string  `gorm:"primaryKey;size:36" json:"id"`
	TriggerSessionID *string `gorm:"size:36" json:"trigger_session_id,omitempty"`
	GoalID           *string `gorm:"size:36;index" json:"goal_id,omitempty"`

	// CoreFilesChanged and DownstreamFiles are JSON-encoded path arrays.
	CoreFilesChanged string `gorm:"type:text" json:"-"`
	DownstreamFiles  string `gorm:"type:text" json:"-"`

	RepairJobCount int     `json:"repair_job_count"`
	Summary        string  `gorm:"type:text" json:"summary"`
	Confidence     float64 `json:"confidence"`
	Status         string  `gorm:"default:analyzing;size:20;index" json:"status"`

	// Dispatch telemetry, persisted after dispatch completes.
	DispatchLatencyMs int64 `json:"dispatch_latency_ms"`
	DispatchedCount   int   `json:"dispatched_count"`
	ConflictCount     int   `json:"conflict_count"`
	FailedCount       int   `json:"failed_count"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	ParsedCoreFiles       []string `gorm:"-" json:"core_files_changed,omitempty"`
	ParsedDownstreamFiles []string `gorm:"-" json:"downstream_files,omitempty"`
}

// TableName returns the table name for Cascade.
func (Cascade) TableName() string {
	return "cascades"
}

// GetCoreFiles returns the parsed core file list.
func (c *Cascade) GetCoreFiles() ([]string, error) {
	return c.parseList(&c.ParsedCoreFiles, c.CoreFilesChanged)
}

// SetCoreFiles replaces the core file list.
func (c *Cascade) SetCoreFiles(paths []string) error {
	data, err := json.Marshal(paths)
	if err != nil {
		return err
	}
	c.CoreFilesChanged = string(data)
	c.ParsedCoreFiles = paths
	return nil
}

// GetDownstreamFiles returns the parsed downstream file list.
func (c *Cascade) GetDownstreamFiles() ([]string, error) {
	return c.parseList(&c.ParsedDownstreamFiles, c.DownstreamFiles)
}

// SetDownstreamFiles replaces the downstream file list.
func (c *Cascade) SetDownstreamFiles(paths []string) error {
	data, err := json.Marshal(paths)
	if err != nil {
		return err
	}
	c.DownstreamFiles = string(data)
	c.ParsedDownstreamFiles = paths
	return nil
}

func (c *Cascade) parseList(cache *[]string, blob string) ([]string, error) {
	if *cache != nil {
		return *cache, nil
	}
	if blob == "" {
		return []string{}, nil
	}
	var paths []string
	if err := json.Unmarshal([]byte(blob), &paths); err != nil {
		return nil, err
	}
	*cache = paths
	return paths, nil
}

// GetStatus returns the status as a CascadeStatus type.
func (c *Cascade) GetStatus() CascadeStatus {
	return CascadeStatus(c.Status)
}
