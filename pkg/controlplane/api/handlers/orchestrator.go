package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/drover-ai/drover/pkg/controlplane/engine"
	"github.com/drover-ai/drover/pkg/providers/auditor"
)

// OrchestratorHandler exposes operator-driven dispatch and reconciliation.
type OrchestratorHandler struct {
	engine *engine.Engine
}

// NewOrchestratorHandler creates an orchestrator handler.
func NewOrchestratorHandler(e *engine.Engine) *OrchestratorHandler {
	return &OrchestratorHandler{engine: e}
}

// batchJob is one operator-supplied repair job.
type batchJob struct {
	ID       string   `json:"id,omitempty"`
	Files    []string `json:"files"`
	Prompt   string   `json:"prompt"`
	Priority string   `json:"priority,omitempty"`
}

// BatchDispatchRequest is the POST /orchestrator/batch body.
type BatchDispatchRequest struct {
	Repo   string     `json:"repo"` // owner/name
	Branch string     `json:"branch"`
	GoalID *string    `json:"goal_id,omitempty"`
	Jobs   []batchJob `json:"jobs"`
}

// Batch handles POST /orchestrator/batch: dispatch N repair jobs under one
// cascade, skipping the oracle. The conflict contract matches the cascade
// route: all jobs blocked answers 409, any dispatch answers 200.
func (h *OrchestratorHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchDispatchRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Repo == "" {
		BadRequest(w, "repo is required")
		return
	}
	if len(req.Jobs) == 0 {
		BadRequest(w, "at least one job is required")
		return
	}

	jobs := make([]auditor.RepairJob, 0, len(req.Jobs))
	for i, job := range req.Jobs {
		if len(job.Files) == 0 || job.Prompt == "" {
			BadRequest(w, fmt.Sprintf("job %d: files and prompt are required", i))
			return
		}
		priority := auditor.JobPriority(job.Priority)
		if job.Priority != "" && !priority.Valid() {
			BadRequest(w, fmt.Sprintf("job %d: unknown priority %q", i, job.Priority))
			return
		}
		id := job.ID
		if id == "" {
			id = fmt.Sprintf("job-%d", i+1)
		}
		jobs = append(jobs, auditor.RepairJob{
			ID:       id,
			Files:    job.Files,
			Prompt:   job.Prompt,
			Priority: priority,
		})
	}

	resp, err := h.engine.DispatchBatch(r.Context(), engine.BatchRequest{
		Repo:   req.Repo,
		Branch: req.Branch,
		GoalID: req.GoalID,
		Jobs:   jobs,
	})
	if err != nil {
		var conflictErr *engine.LockConflictError
		if errors.As(err, &conflictErr) {
			WriteConflictProblem(w, conflictErr.Error(), conflictErr.Conflicts)
			return
		}
		writeDomainError(w, err)
		return
	}
	WriteJSONOK(w, resp)
}

// SyncRequest is the POST /orchestrator/sync body.
type SyncRequest struct {
	SessionID string `json:"session_id"`
}

// Sync handles POST /orchestrator/sync: reconcile one session against the
// Agent Provider.
func (h *OrchestratorHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		BadRequest(w, "session_id is required")
		return
	}

	result, err := h.engine.Sync(r.Context(), req.SessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSONOK(w, result)
}

// SyncBatchRequest is the POST /orchestrator/sync-batch body.
type SyncBatchRequest struct {
	SessionIDs []string `json:"session_ids"`
}

// SyncBatchResponse carries per-session reconciliation results.
type SyncBatchResponse struct {
	Results []engine.SyncOutcome `json:"results"`
}

// SyncBatch handles POST /orchestrator/sync-batch. Per-session failures are
// reported inline, never as an HTTP error.
func (h *OrchestratorHandler) SyncBatch(w http.ResponseWriter, r *http.Request) {
	var req SyncBatchRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.SessionIDs) == 0 {
		BadRequest(w, "at least one session id is required")
		return
	}

	outcomes := h.engine.SyncBatch(r.Context(), req.SessionIDs)
	WriteJSONOK(w, &SyncBatchResponse{Results: outcomes})
}
