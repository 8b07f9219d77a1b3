package handlers

import (
	"net/http"
	"strings"

	"github.com/drover-ai/drover/internal/logger"
	"github.com/drover-ai/drover/pkg/controlplane/locks"
)

// LockHandler exposes the lock table for inspection and emergency cleanup.
type LockHandler struct {
	locks *locks.Manager
}

// NewLockHandler creates a lock handler.
func NewLockHandler(m *locks.Manager) *LockHandler {
	return &LockHandler{locks: m}
}

// List handles GET /locks. With ?paths=a,b it instead answers per-path
// holder status for the given paths.
func (h *LockHandler) List(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("paths"); raw != "" {
		status, err := h.locks.ConflictStatus(r.Context(), strings.Split(raw, ","))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		WriteJSONOK(w, status)
		return
	}

	held, err := h.locks.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSONOK(w, held)
}

// ReleaseResponse is the DELETE /locks response.
type ReleaseResponse struct {
	ReleasedCount int64 `json:"released_count"`
}

// Release handles DELETE /locks: drop every held lock, or one session's
// locks when ?session_id= is given. This is an operator escape hatch for
// locks orphaned by failed remediation children.
func (h *LockHandler) Release(w http.ResponseWriter, r *http.Request) {
	var (
		released int64
		err      error
	)
	if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
		released, err = h.locks.Release(r.Context(), sessionID)
	} else {
		released, err = h.locks.ReleaseAll(r.Context())
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	logger.InfoCtx(r.Context(), "locks released by operator", "released", released)
	WriteJSONOK(w, &ReleaseResponse{ReleasedCount: released})
}
