package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/drover-ai/drover/pkg/controlplane/engine"
	"github.com/drover-ai/drover/pkg/controlplane/models"
)

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns true if successful, false if decoding fails (error response is
// written automatically).
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// writeDomainError maps domain errors onto the problem vocabulary:
// not-found to 404, lock conflicts to a structured 409, invariant
// violations to 422, everything else to 500.
func writeDomainError(w http.ResponseWriter, err error) {
	var conflictErr *engine.LockConflictError
	switch {
	case errors.Is(err, models.ErrGoalNotFound),
		errors.Is(err, models.ErrSessionNotFound),
		errors.Is(err, models.ErrCascadeNotFound),
		errors.Is(err, models.ErrLockNotFound):
		NotFound(w, err.Error())
	case errors.As(err, &conflictErr):
		WriteConflictProblem(w, conflictErr.Error(), conflictErr.Conflicts)
	case errors.Is(err, models.ErrLockConflict):
		Conflict(w, err.Error())
	case errors.Is(err, models.ErrMaxDepthExceeded),
		errors.Is(err, models.ErrSessionTerminal),
		errors.Is(err, models.ErrDuplicateAgentID),
		errors.Is(err, models.ErrInvalidTransition):
		UnprocessableEntity(w, err.Error())
	default:
		InternalServerError(w, err.Error())
	}
}
