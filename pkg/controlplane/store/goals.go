package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/drover-ai/drover/pkg/controlplane/models"
)

// ============================================
// GOAL OPERATIONS
// ============================================

// CreateGoal inserts a new goal. Criteria without an id are assigned one;
// ids are stable for the lifetime of the goal afterwards.
func (s *GORMStore) CreateGoal(ctx context.Context, goal *models.Goal) (string, error) {
	criteria, err := goal.GetCriteria()
	if err != nil {
		return "", err
	}
	for i := range criteria {
		if criteria[i].ID == "" {
			criteria[i].ID = uuid.New().String()
		}
	}
	if err := goal.SetCriteria(criteria); err != nil {
		return "", err
	}

	if goal.Status == "" {
		goal.Status = string(models.GoalStatusBacklog)
	}

	return createWithID(s.db, ctx, goal, goal.ID, func(g *models.Goal, id string) { g.ID = id })
}

// GetGoal retrieves a goal by id.
func (s *GORMStore) GetGoal(ctx context.Context, id string) (*models.Goal, error) {
	return getByField[models.Goal](s.db, ctx, "id", id, models.ErrGoalNotFound)
}

// GetGoalLocked retrieves a goal by id inside tx, taking a row-level lock.
//
// Criteria updates are full-rewrite; the row lock prevents a concurrent
// Auditor merge and an operator edit from losing each other's writes.
func GetGoalLocked(tx *gorm.DB, id string) (*models.Goal, error) {
	var goal models.Goal
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&goal).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrGoalNotFound)
	}
	return &goal, nil
}

// ListGoals retrieves all goals, newest first.
func (s *GORMStore) ListGoals(ctx context.Context) ([]*models.Goal, error) {
	var goals []*models.Goal
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&goals).Error; err != nil {
		return nil, err
	}
	return goals, nil
}

// UpdateGoal rewrites the goal's mutable fields (title, description, status,
// criteria, review artifacts) under the goal's row lock.
func (s *GORMStore) UpdateGoal(ctx context.Context, goal *models.Goal) error {
	return s.InTx(ctx, func(tx *gorm.DB) error {
		if _, err := GetGoalLocked(tx, goal.ID); err != nil {
			return err
		}
		return SaveGoalTx(tx, goal)
	})
}

// SaveGoalTx persists the goal's mutable fields inside the caller's
// transaction. The caller must already hold the row lock.
func SaveGoalTx(tx *gorm.DB, goal *models.Goal) error {
	goal.UpdatedAt = time.Now()

	result := tx.Model(&models.Goal{}).
		Where("id = ?", goal.ID).
		Updates(map[string]any{
			"title":            goal.Title,
			"description":      goal.Description,
			"status":           goal.Status,
			"criteria":         goal.Criteria,
			"review_artifacts": goal.ReviewArtifacts,
			"updated_at":       goal.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrGoalNotFound
	}
	return nil
}

// UpdateGoalStatus transitions a goal to the given status.
func (s *GORMStore) UpdateGoalStatus(ctx context.Context, id string, status models.GoalStatus) error {
	result := s.db.WithContext(ctx).
		Model(&models.Goal{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrGoalNotFound
	}
	return nil
}

// DeleteGoal removes a goal. Sessions pointing at it keep their goal id;
// lookups will return not-found, which callers treat as a detached session.
func (s *GORMStore) DeleteGoal(ctx context.Context, id string) error {
	return deleteByField[models.Goal](s.db, ctx, "id", id, models.ErrGoalNotFound)
}
