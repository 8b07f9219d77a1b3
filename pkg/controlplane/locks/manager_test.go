package locks

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/drover-ai/drover/pkg/controlplane/models"
	"github.com/drover-ai/drover/pkg/controlplane/store"
)

func newTestManager(t *testing.T) (*Manager, store.Store) {
	t.Helper()

	s, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "registry.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewManager(s), s
}

func createSession(t *testing.T, s store.Store, status models.SessionStatus) string {
	t.Helper()

	id, err := s.CreateSession(context.Background(), &models.Session{
		SourceRepo: "acme/widgets",
		BranchName: "drover/work",
		Status:     string(status),
	})
	require.NoError(t, err)
	return id
}

func TestAcquire(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	sessionID := createSession(t, s, models.SessionStatusQueued)

	result, err := m.Acquire(ctx, sessionID, []string{"pkg/a.go", "pkg/b.go"})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, []string{"pkg/a.go", "pkg/b.go"}, result.Locked)

	all, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAcquireEmptyPathSet(t *testing.T) {
	m, s := newTestManager(t)
	sessionID := createSession(t, s, models.SessionStatusQueued)

	result, err := m.Acquire(context.Background(), sessionID, nil)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Empty(t, result.Locked)
}

func TestAcquireIdempotentForHolder(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	sessionID := createSession(t, s, models.SessionStatusQueued)

	_, err := m.Acquire(ctx, sessionID, []string{"pkg/a.go"})
	require.NoError(t, err)

	result, err := m.Acquire(ctx, sessionID, []string{"pkg/a.go", "pkg/b.go"})
	require.NoError(t, err)
	assert.True(t, result.OK)

	all, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAcquireDeduplicatesPaths(t *testing.T) {
	m, s := newTestManager(t)
	sessionID := createSession(t, s, models.SessionStatusQueued)

	result, err := m.Acquire(context.Background(), sessionID, []string{"pkg/a.go", "pkg/a.go", "", "pkg/b.go"})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, []string{"pkg/a.go", "pkg/b.go"}, result.Locked)
}

func TestAcquireConflictIsAllOrNothing(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	holder := createSession(t, s, models.SessionStatusExecuting)
	contender := createSession(t, s, models.SessionStatusQueued)

	_, err := m.Acquire(ctx, holder, []string{"pkg/a.go"})
	require.NoError(t, err)

	result, err := m.Acquire(ctx, contender, []string{"pkg/a.go", "pkg/b.go"})
	require.NoError(t, err)
	assert.False(t, result.OK)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "pkg/a.go", result.Conflicts[0].Path)
	assert.Equal(t, holder, result.Conflicts[0].HeldBy)

	// The free path was not locked either.
	all, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, holder, all[0].SessionID)
}

func TestAcquireRejectsTerminalSession(t *testing.T) {
	m, s := newTestManager(t)
	sessionID := createSession(t, s, models.SessionStatusCompleted)

	_, err := m.Acquire(context.Background(), sessionID, []string{"pkg/a.go"})
	assert.ErrorIs(t, err, models.ErrSessionTerminal)
}

func TestAcquireUnknownSession(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Acquire(context.Background(), "missing", []string{"pkg/a.go"})
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestRelease(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	sessionID := createSession(t, s, models.SessionStatusExecuting)

	_, err := m.Acquire(ctx, sessionID, []string{"pkg/a.go", "pkg/b.go"})
	require.NoError(t, err)

	released, err := m.Release(ctx, sessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, released)

	// Safe to call when nothing is held.
	released, err = m.Release(ctx, sessionID)
	require.NoError(t, err)
	assert.Zero(t, released)
}

func TestReleaseAll(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	a := createSession(t, s, models.SessionStatusExecuting)
	b := createSession(t, s, models.SessionStatusExecuting)

	_, err := m.Acquire(ctx, a, []string{"pkg/a.go"})
	require.NoError(t, err)
	_, err = m.Acquire(ctx, b, []string{"pkg/b.go", "pkg/c.go"})
	require.NoError(t, err)

	released, err := m.ReleaseAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, released)

	all, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTransferTx(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	parent := createSession(t, s, models.SessionStatusVerifying)
	child := createSession(t, s, models.SessionStatusQueued)

	_, err := m.Acquire(ctx, parent, []string{"pkg/a.go", "pkg/b.go"})
	require.NoError(t, err)

	err = s.InTx(ctx, func(tx *gorm.DB) error {
		moved, err := TransferTx(tx, parent, child)
		if err != nil {
			return err
		}
		assert.EqualValues(t, 2, moved)
		return nil
	})
	require.NoError(t, err)

	all, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, lock := range all {
		assert.Equal(t, child, lock.SessionID)
	}

	// The child now holds the paths; a re-acquire by the parent conflicts.
	result, err := m.Acquire(ctx, parent, []string{"pkg/a.go"})
	require.NoError(t, err)
	assert.False(t, result.OK)
}

func TestConflictStatus(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	sessionID := createSession(t, s, models.SessionStatusExecuting)

	_, err := m.Acquire(ctx, sessionID, []string{"pkg/a.go", "pkg/b.go"})
	require.NoError(t, err)

	statuses, err := m.ConflictStatus(ctx, []string{"pkg/a.go", "pkg/missing.go"})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "pkg/a.go", statuses[0].Path)
	assert.Equal(t, sessionID, statuses[0].SessionID)
	assert.Equal(t, string(models.SessionStatusExecuting), statuses[0].SessionStatus)
	assert.Equal(t, "drover/work", statuses[0].Branch)

	// Empty path list reports everything held, ordered by path.
	statuses, err = m.ConflictStatus(ctx, nil)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "pkg/a.go", statuses[0].Path)
	assert.Equal(t, "pkg/b.go", statuses[1].Path)
}
