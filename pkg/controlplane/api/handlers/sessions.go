package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/drover-ai/drover/internal/logger"
	"github.com/drover-ai/drover/pkg/controlplane/engine"
	"github.com/drover-ai/drover/pkg/controlplane/store"
)

// SessionHandler exposes session inspection and forced termination.
type SessionHandler struct {
	store  store.Store
	engine *engine.Engine
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(s store.Store, e *engine.Engine) *SessionHandler {
	return &SessionHandler{store: s, engine: e}
}

// List handles GET /sessions. ?all=true includes terminal sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "true" {
		sessions, err := h.store.ListSessions(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		WriteJSONOK(w, sessions)
		return
	}
	sessions, err := h.store.ListActiveSessions(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSONOK(w, sessions)
}

// Get handles GET /sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSONOK(w, session)
}

// TerminateResponse is the POST /sessions/{id}/terminate response.
type TerminateResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
}

// Terminate handles POST /sessions/{id}/terminate. Idempotent: terminating
// an already-terminal session still releases any leftover locks.
func (h *SessionHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := logger.WithSession(r.Context(), id)
	if err := h.engine.Terminate(ctx, id); err != nil {
		writeDomainError(w, err)
		return
	}
	logger.InfoCtx(ctx, "session terminated by operator")
	WriteJSONOK(w, &TerminateResponse{Success: true, SessionID: id})
}
