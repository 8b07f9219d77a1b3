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
// SESSION OPERATIONS
// ============================================

// terminalStatuses is used in NOT IN filters for active-session queries.
var terminalStatuses = []string{
	string(models.SessionStatusCompleted),
	string(models.SessionStatusFailed),
}

// CreateSession inserts a new session.
func (s *GORMStore) CreateSession(ctx context.Context, session *models.Session) (string, error) {
	return CreateSessionTx(s.db.WithContext(ctx), session)
}

// CreateSessionTx inserts a new session inside the caller's transaction.
//
// The remediation depth bound is enforced here, at the lowest layer that
// creates session rows, so no caller can dispatch past it.
func CreateSessionTx(tx *gorm.DB, session *models.Session) (string, error) {
	if session.RemediationDepth > models.MaxRemediationDepth {
		return "", models.ErrMaxDepthExceeded
	}
	if session.Status == "" {
		session.Status = string(models.SessionStatusQueued)
	}
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if err := tx.Create(session).Error; err != nil {
		if IsUniqueConstraintError(err) {
			return "", models.ErrDuplicateAgentID
		}
		return "", err
	}
	return session.ID, nil
}

// GetSession retrieves a session by id, including its locks.
func (s *GORMStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).
		Preload("Locks").
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrSessionNotFound)
	}
	return &session, nil
}

// GetSessionLocked retrieves a session by id inside tx, taking a row-level
// lock. State transitions for a session are serialized on this lock: two
// webhook deliveries for the same commit contend here and the second one
// observes lastReviewedCommit already set.
func GetSessionLocked(tx *gorm.DB, id string) (*models.Session, error) {
	var session models.Session
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrSessionNotFound)
	}
	return &session, nil
}

// GetSessionByAgentID retrieves the session bound to an external agent id.
func (s *GORMStore) GetSessionByAgentID(ctx context.Context, agentID string) (*models.Session, error) {
	return getByField[models.Session](s.db, ctx, "external_agent_id", agentID, models.ErrSessionNotFound)
}

// ListSessions retrieves all sessions, newest first.
func (s *GORMStore) ListSessions(ctx context.Context) ([]*models.Session, error) {
	var sessions []*models.Session
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListActiveSessions retrieves all non-terminal sessions with their locks.
func (s *GORMStore) ListActiveSessions(ctx context.Context) ([]*models.Session, error) {
	var sessions []*models.Session
	if err := s.db.WithContext(ctx).
		Preload("Locks").
		Where("status NOT IN ?", terminalStatuses).
		Order("created_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListSessionsForGoal retrieves all sessions bound to a goal, newest first.
func (s *GORMStore) ListSessionsForGoal(ctx context.Context, goalID string) ([]*models.Session, error) {
	var sessions []*models.Session
	if err := s.db.WithContext(ctx).
		Where("goal_id = ?", goalID).
		Order("created_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// FindActiveSessionForBranch returns the most recent non-terminal session
// for (repo, branch), or ErrSessionNotFound.
func (s *GORMStore) FindActiveSessionForBranch(ctx context.Context, repo, branch string) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).
		Where("source_repo = ? AND branch_name = ? AND status NOT IN ?", repo, branch, terminalStatuses).
		Order("created_at DESC").
		First(&session).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrSessionNotFound)
	}
	return &session, nil
}

// SaveSessionTx persists the session's mutable fields inside the caller's
// transaction. The caller must hold the session row lock.
func SaveSessionTx(tx *gorm.DB, session *models.Session) error {
	session.UpdatedAt = time.Now()

	result := tx.Model(&models.Session{}).
		Where("id = ?", session.ID).
		Updates(map[string]any{
			"goal_id":              session.GoalID,
			"cascade_id":           session.CascadeID,
			"external_agent_id":    session.ExternalAgentID,
			"agent_url":            session.AgentURL,
			"last_reviewed_commit": session.LastReviewedCommit,
			"status":               session.Status,
			"last_error":           session.LastError,
			"last_synced_at":       session.LastSyncedAt,
			"updated_at":           session.UpdatedAt,
		})
	if result.Error != nil {
		if IsUniqueConstraintError(result.Error) {
			return models.ErrDuplicateAgentID
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes a session and its locks in one transaction.
func (s *GORMStore) DeleteSession(ctx context.Context, id string) error {
	return s.InTx(ctx, func(tx *gorm.DB) error {
		var session models.Session
		if err := tx.Where("id = ?", id).First(&session).Error; err != nil {
			return convertNotFoundError(err, models.ErrSessionNotFound)
		}

		if err := tx.Where("session_id = ?", id).Delete(&models.FileLock{}).Error; err != nil {
			return err
		}

		return tx.Delete(&session).Error
	})
}
