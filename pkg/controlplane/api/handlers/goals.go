package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/drover-ai/drover/internal/logger"
	"github.com/drover-ai/drover/pkg/controlplane/engine"
	"github.com/drover-ai/drover/pkg/controlplane/models"
	"github.com/drover-ai/drover/pkg/controlplane/store"
)

// GoalHandler manages architectural goals and their acceptance criteria.
type GoalHandler struct {
	store  store.Store
	engine *engine.Engine
}

// NewGoalHandler creates a goal handler.
func NewGoalHandler(s store.Store, e *engine.Engine) *GoalHandler {
	return &GoalHandler{store: s, engine: e}
}

// CreateGoalRequest is the POST /goals body.
type CreateGoalRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Criteria    []string `json:"criteria"`
}

// criterionPatch is one criterion in a PATCH /goals/{id} body. An entry
// with a known id keeps that criterion's assessment; an entry without one
// is a new criterion.
type criterionPatch struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

// UpdateGoalRequest is the PATCH /goals/{id} body. Nil fields are left
// untouched.
type UpdateGoalRequest struct {
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Status      *string          `json:"status,omitempty"`
	Criteria    []criterionPatch `json:"criteria,omitempty"`
}

// List handles GET /goals.
func (h *GoalHandler) List(w http.ResponseWriter, r *http.Request) {
	goals, err := h.store.ListGoals(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	for _, goal := range goals {
		if err := hydrateGoal(goal); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	WriteJSONOK(w, goals)
}

// Create handles POST /goals. Criterion ids are assigned at insert and
// never change afterwards.
func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateGoalRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Title == "" {
		BadRequest(w, "title is required")
		return
	}
	if len(req.Criteria) == 0 {
		BadRequest(w, "at least one acceptance criterion is required")
		return
	}

	criteria := make([]models.Criterion, 0, len(req.Criteria))
	for _, text := range req.Criteria {
		if text == "" {
			BadRequest(w, "criterion text must not be empty")
			return
		}
		criteria = append(criteria, models.Criterion{Text: text})
	}

	goal := &models.Goal{
		Title:       req.Title,
		Description: req.Description,
	}
	if err := goal.SetCriteria(criteria); err != nil {
		writeDomainError(w, err)
		return
	}
	if _, err := h.store.CreateGoal(r.Context(), goal); err != nil {
		writeDomainError(w, err)
		return
	}
	logger.InfoCtx(r.Context(), "goal created",
		logger.GoalID(goal.ID), "criteria", len(criteria))
	WriteJSONCreated(w, goal)
}

// Get handles GET /goals/{id}. The response includes the goal's sessions.
func (h *GoalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	goal, err := h.store.GetGoal(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := hydrateGoal(goal); err != nil {
		writeDomainError(w, err)
		return
	}
	sessions, err := h.store.ListSessionsForGoal(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSONOK(w, struct {
		*models.Goal
		Sessions []*models.Session `json:"sessions"`
	}{Goal: goal, Sessions: sessions})
}

// Update handles PATCH /goals/{id}.
//
// Criteria are merged under the goal's row lock: an entry naming an
// existing id rewrites that criterion's text and keeps its assessment, an
// entry without an id becomes a new criterion with a fresh id. Criteria
// absent from the patch are removed.
func (h *GoalHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdateGoalRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Status != nil {
		switch models.GoalStatus(*req.Status) {
		case models.GoalStatusBacklog, models.GoalStatusInProgress,
			models.GoalStatusCompleted, models.GoalStatusDrifted:
		default:
			BadRequest(w, "unknown goal status")
			return
		}
	}

	var updated *models.Goal
	err := h.store.InTx(r.Context(), func(tx *gorm.DB) error {
		goal, err := store.GetGoalLocked(tx, id)
		if err != nil {
			return err
		}
		if req.Title != nil {
			goal.Title = *req.Title
		}
		if req.Description != nil {
			goal.Description = *req.Description
		}
		if req.Status != nil {
			goal.Status = *req.Status
		}
		if req.Criteria != nil {
			merged, err := mergeCriteriaPatch(goal, req.Criteria)
			if err != nil {
				return err
			}
			if err := goal.SetCriteria(merged); err != nil {
				return err
			}
		}
		if err := store.SaveGoalTx(tx, goal); err != nil {
			return err
		}
		updated = goal
		return nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := hydrateGoal(updated); err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSONOK(w, updated)
}

// Delete handles DELETE /goals/{id}. Sessions keep their goal reference;
// they are treated as detached from then on.
func (h *GoalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteGoal(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	WriteNoContent(w)
}

// ReAudit handles POST /goals/{id}/re-audit: re-run the Auditor on the
// goal's most recently reviewed commit and refresh the criteria assessment.
func (h *GoalHandler) ReAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.engine.ReAudit(logger.WithGoal(r.Context(), id), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSONOK(w, result)
}

// mergeCriteriaPatch applies a criterion patch list against the goal's
// current criteria, preserving ids and assessments of surviving entries.
func mergeCriteriaPatch(goal *models.Goal, patch []criterionPatch) ([]models.Criterion, error) {
	current, err := goal.GetCriteria()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Criterion, len(current))
	for _, c := range current {
		byID[c.ID] = c
	}

	merged := make([]models.Criterion, 0, len(patch))
	for _, p := range patch {
		if existing, ok := byID[p.ID]; ok {
			existing.Text = p.Text
			merged = append(merged, existing)
			continue
		}
		merged = append(merged, models.Criterion{
			ID:   uuid.New().String(),
			Text: p.Text,
		})
	}
	return merged, nil
}

// hydrateGoal populates the parsed JSON blobs for the response body.
func hydrateGoal(goal *models.Goal) error {
	if _, err := goal.GetCriteria(); err != nil {
		return err
	}
	_, err := goal.GetReviewArtifacts()
	return err
}
