package handlers

import (
	"errors"
	"net/http"

	"github.com/drover-ai/drover/pkg/controlplane/engine"
)

// CascadeHandler exposes blast-radius analysis on explicit commits.
type CascadeHandler struct {
	engine *engine.Engine
}

// NewCascadeHandler creates a cascade handler.
func NewCascadeHandler(e *engine.Engine) *CascadeHandler {
	return &CascadeHandler{engine: e}
}

// AnalyzeRequest is the POST /cascade/analyze body.
type AnalyzeRequest struct {
	Repo             string   `json:"repo"` // owner/name
	Branch           string   `json:"branch"`
	Commit           string   `json:"commit"`
	ChangedPaths     []string `json:"changed_paths"`
	GoalID           *string  `json:"goal_id,omitempty"`
	TriggerSessionID *string  `json:"trigger_session_id,omitempty"`
}

// Analyze handles POST /cascade/analyze.
//
// A round where every repair job was blocked by locks answers 409 with the
// contested paths; a round with at least one dispatch answers 200 even if
// some jobs failed.
func (h *CascadeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Repo == "" || req.Commit == "" {
		BadRequest(w, "repo and commit are required")
		return
	}

	resp, err := h.engine.Analyze(r.Context(), engine.AnalyzeRequest{
		Repo:             req.Repo,
		Branch:           req.Branch,
		Commit:           req.Commit,
		ChangedPaths:     req.ChangedPaths,
		GoalID:           req.GoalID,
		TriggerSessionID: req.TriggerSessionID,
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
