package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/drover-ai/drover/pkg/controlplane/models"
)

// GoalStore provides goal persistence.
type GoalStore interface {
	CreateGoal(ctx context.Context, goal *models.Goal) (string, error)
	GetGoal(ctx context.Context, id string) (*models.Goal, error)
	ListGoals(ctx context.Context) ([]*models.Goal, error)
	UpdateGoal(ctx context.Context, goal *models.Goal) error
	UpdateGoalStatus(ctx context.Context, id string, status models.GoalStatus) error
	DeleteGoal(ctx context.Context, id string) error
}

// SessionStore provides session persistence.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) (string, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	GetSessionByAgentID(ctx context.Context, agentID string) (*models.Session, error)
	ListSessions(ctx context.Context) ([]*models.Session, error)
	ListActiveSessions(ctx context.Context) ([]*models.Session, error)
	ListSessionsForGoal(ctx context.Context, goalID string) ([]*models.Session, error)
	FindActiveSessionForBranch(ctx context.Context, repo, branch string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// CascadeStore provides cascade persistence.
type CascadeStore interface {
	CreateCascade(ctx context.Context, cascade *models.Cascade) (string, error)
	GetCascade(ctx context.Context, id string) (*models.Cascade, error)
	ListCascades(ctx context.Context) ([]*models.Cascade, error)
	SaveCascade(ctx context.Context, cascade *models.Cascade) error
	DeleteCascade(ctx context.Context, id string) error
}

// Store is the full registry store interface.
//
// InTx and DB expose the transactional substrate to the lock manager and the
// engine, which serialize state transitions on row locks.
type Store interface {
	GoalStore
	SessionStore
	CascadeStore

	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	DB() *gorm.DB
	Ping(ctx context.Context) error
	Close() error
}

// Compile-time check that GORMStore implements Store.
var _ Store = (*GORMStore)(nil)
