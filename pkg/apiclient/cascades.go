package apiclient

// AnalyzeRequest asks the engine to run blast-radius analysis on a commit.
type AnalyzeRequest struct {
	Repo             string   `json:"repo"` // owner/name
	Branch           string   `json:"branch"`
	Commit           string   `json:"commit"`
	ChangedPaths     []string `json:"changed_paths,omitempty"`
	GoalID           *string  `json:"goal_id,omitempty"`
	TriggerSessionID *string  `json:"trigger_session_id,omitempty"`
}

// DispatchedSession describes one repair session created by a dispatch round.
type DispatchedSession struct {
	SessionID string   `json:"session_id"`
	JobID     string   `json:"job_id"`
	Files     []string `json:"files"`
	AgentID   string   `json:"agent_id,omitempty"`
	AgentURL  string   `json:"agent_url,omitempty"`
	Status    string   `json:"status"`
	Error     string   `json:"error,omitempty"`
}

// CascadeTelemetry summarizes a dispatch round.
type CascadeTelemetry struct {
	DispatchLatencyMs int64 `json:"dispatch_latency_ms"`
	DispatchedCount   int   `json:"dispatched_count"`
	ConflictCount     int   `json:"conflict_count"`
	FailedCount       int   `json:"failed_count"`
}

// AnalyzeResponse is the result of a blast-radius analysis round.
type AnalyzeResponse struct {
	CascadeID          string              `json:"cascade_id,omitempty"`
	IsCascade          bool                `json:"is_cascade"`
	Summary            string              `json:"summary,omitempty"`
	Confidence         float64             `json:"confidence,omitempty"`
	CoreFilesChanged   []string            `json:"core_files_changed,omitempty"`
	DownstreamFiles    []string            `json:"downstream_files,omitempty"`
	DispatchedSessions []DispatchedSession `json:"dispatched_sessions,omitempty"`
	LockConflicts      []LockConflict      `json:"lock_conflicts,omitempty"`
	Telemetry          CascadeTelemetry    `json:"telemetry"`
}

// BatchJob is one operator-authored repair job.
type BatchJob struct {
	ID       string   `json:"id,omitempty"`
	Files    []string `json:"files"`
	Prompt   string   `json:"prompt"`
	Priority string   `json:"priority,omitempty"`
}

// BatchDispatchRequest dispatches a hand-built batch of repair jobs.
type BatchDispatchRequest struct {
	Repo   string     `json:"repo"` // owner/name
	Branch string     `json:"branch"`
	GoalID *string    `json:"goal_id,omitempty"`
	Jobs   []BatchJob `json:"jobs"`
}

// BatchDispatchResponse is the result of a batch dispatch round.
type BatchDispatchResponse struct {
	BatchID         string              `json:"batch_id"`
	DispatchedCount int                 `json:"dispatched_count"`
	FailedCount     int                 `json:"failed_count"`
	Sessions        []DispatchedSession `json:"sessions"`
	LockConflicts   []LockConflict      `json:"lock_conflicts,omitempty"`
	Telemetry       CascadeTelemetry    `json:"telemetry"`
}

// AnalyzeCascade runs blast-radius analysis on an explicit commit,
// dispatching repair sessions when the change cascades.
func (c *Client) AnalyzeCascade(req *AnalyzeRequest) (*AnalyzeResponse, error) {
	return createResource[AnalyzeResponse](c, "/cascade/analyze", req)
}

// DispatchBatch dispatches an operator-authored batch of repair jobs.
func (c *Client) DispatchBatch(req *BatchDispatchRequest) (*BatchDispatchResponse, error) {
	return createResource[BatchDispatchResponse](c, "/orchestrator/batch", req)
}
