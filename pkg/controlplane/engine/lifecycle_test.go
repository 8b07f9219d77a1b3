package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drover-ai/drover/pkg/controlplane/models"
	"github.com/drover-ai/drover/pkg/providers/agent"
)

func TestCreateSessionDispatchesAgent(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	session, err := env.engine.CreateSession(ctx, CreateSpec{
		SourceRepo: "acme/widgets",
		BranchName: "drover/work-1",
		BaseBranch: "main",
		Prompt:     "fix the flaky test",
		LockPaths:  []string{"pkg/api/server.go"},
	})
	require.NoError(t, err)
	assert.Equal(t, string(models.SessionStatusExecuting), session.Status)
	require.NotNil(t, session.ExternalAgentID)
	assert.NotEmpty(t, session.AgentURL)
	assert.Equal(t, 1, env.lockCount(t, session.ID))

	require.Len(t, env.agents.Creates, 1)
	req := env.agents.Creates[0]
	assert.Equal(t, "fix the flaky test", req.Prompt)
	assert.Equal(t, "acme/widgets", req.SourceRepo)
	assert.Equal(t, "main", req.StartingBranch)
	assert.Equal(t, session.ID, req.Context["session_id"])
	assert.Equal(t, "drover/work-1", req.Context["branch"])
}

func TestCreateSessionLockConflict(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	holder, err := env.engine.CreateSession(ctx, CreateSpec{
		SourceRepo: "acme/widgets",
		BranchName: "drover/work-1",
		LockPaths:  []string{"pkg/api/server.go"},
	})
	require.NoError(t, err)

	session, err := env.engine.CreateSession(ctx, CreateSpec{
		SourceRepo: "acme/widgets",
		BranchName: "drover/work-2",
		LockPaths:  []string{"pkg/api/server.go", "pkg/api/router.go"},
	})

	var conflictErr *LockConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Len(t, conflictErr.Conflicts, 1)
	assert.Equal(t, "pkg/api/server.go", conflictErr.Conflicts[0].Path)
	assert.Equal(t, holder.ID, conflictErr.Conflicts[0].HeldBy)

	// The blocked session is persisted as failed with the conflict recorded,
	// and no agent was dispatched for it.
	require.NotNil(t, session)
	stored := env.getSession(t, session.ID)
	assert.Equal(t, string(models.SessionStatusFailed), stored.Status)
	assert.Contains(t, stored.LastError, "LockConflict")
	assert.Zero(t, env.lockCount(t, session.ID))
	assert.Equal(t, 1, env.agents.CreateCount())
}

func TestCreateSessionAgentDispatchFailure(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.engine.agents = agent.NewFailFake()
	ctx := context.Background()

	session, err := env.engine.CreateSession(ctx, CreateSpec{
		SourceRepo: "acme/widgets",
		BranchName: "drover/work-1",
		LockPaths:  []string{"pkg/api/server.go"},
	})
	require.Error(t, err)
	require.NotNil(t, session)

	stored := env.getSession(t, session.ID)
	assert.Equal(t, string(models.SessionStatusFailed), stored.Status)
	assert.Contains(t, stored.LastError, "agent dispatch failed")
	assert.Zero(t, env.lockCount(t, session.ID), "locks released on dispatch failure")
}

func TestCreateSessionDepthBound(t *testing.T) {
	env := newTestEnv(t, Config{})

	_, err := env.engine.CreateSession(context.Background(), CreateSpec{
		SourceRepo:       "acme/widgets",
		BranchName:       "drover/work-1",
		RemediationDepth: models.MaxRemediationDepth + 1,
	})
	assert.ErrorIs(t, err, models.ErrMaxDepthExceeded)
}

func TestTerminate(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	session, err := env.engine.CreateSession(ctx, CreateSpec{
		SourceRepo: "acme/widgets",
		BranchName: "drover/work-1",
		LockPaths:  []string{"pkg/a.go", "pkg/b.go"},
	})
	require.NoError(t, err)

	require.NoError(t, env.engine.Terminate(ctx, session.ID))

	stored := env.getSession(t, session.ID)
	assert.Equal(t, string(models.SessionStatusFailed), stored.Status)
	assert.Equal(t, "terminated by operator", stored.LastError)
	assert.Zero(t, env.lockCount(t, session.ID))
}

func TestTerminateIdempotentAndReleasesLeftoverLocks(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	session, err := env.engine.CreateSession(ctx, CreateSpec{
		SourceRepo: "acme/widgets",
		BranchName: "drover/work-1",
	})
	require.NoError(t, err)

	require.NoError(t, env.engine.Terminate(ctx, session.ID))

	// Simulate an orphaned lock left behind on the terminal session.
	require.NoError(t, env.store.DB().Create(&models.FileLock{
		ID: "orphan", FilePath: "pkg/orphan.go", SessionID: session.ID,
	}).Error)

	require.NoError(t, env.engine.Terminate(ctx, session.ID))

	stored := env.getSession(t, session.ID)
	assert.Equal(t, "terminated by operator", stored.LastError)
	assert.Zero(t, env.lockCount(t, session.ID))

	assert.ErrorIs(t, env.engine.Terminate(ctx, "missing"), models.ErrSessionNotFound)
}

func TestSyncRunningKeepsExecuting(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	session, err := env.engine.CreateSession(ctx, CreateSpec{
		SourceRepo: "acme/widgets",
		BranchName: "drover/work-1",
	})
	require.NoError(t, err)
	agentID := *session.ExternalAgentID
	env.agents.SetStatus(agentID, agent.StatusRunning, "")

	result, err := env.engine.Sync(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusRunning, result.ExternalStatus)
	assert.Equal(t, string(models.SessionStatusExecuting), result.Session.Status)
	assert.NotNil(t, result.Session.LastSyncedAt)
}

func TestSyncCompletedCompletesSessionAndRecordsArtifact(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	goal := env.createGoal(t, "tests pass")

	session, err := env.engine.CreateSession(ctx, CreateSpec{
		GoalID:     &goal.ID,
		SourceRepo: "acme/widgets",
		BranchName: "drover/work-1",
		LockPaths:  []string{"pkg/a.go"},
	})
	require.NoError(t, err)
	env.agents.SetStatus(*session.ExternalAgentID, agent.StatusCompleted, "https://vcs.example.com/pr/7")

	result, err := env.engine.Sync(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.SessionStatusCompleted), result.Session.Status)
	assert.Equal(t, "https://vcs.example.com/pr/7", result.ChangeProposalURL)
	assert.Zero(t, env.lockCount(t, session.ID))

	loaded, err := env.store.GetGoal(ctx, goal.ID)
	require.NoError(t, err)
	artifacts, err := loaded.GetReviewArtifacts()
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "https://vcs.example.com/pr/7", artifacts[0].URL)
	assert.Equal(t, session.ID, artifacts[0].SessionID)
}

func TestSyncFailedFailsSession(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	session, err := env.engine.CreateSession(ctx, CreateSpec{
		SourceRepo: "acme/widgets",
		BranchName: "drover/work-1",
		LockPaths:  []string{"pkg/a.go"},
	})
	require.NoError(t, err)
	env.agents.SetStatus(*session.ExternalAgentID, agent.StatusFailed, "")

	result, err := env.engine.Sync(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.SessionStatusFailed), result.Session.Status)
	assert.Contains(t, result.Session.LastError, "FAILED")
	assert.Zero(t, env.lockCount(t, session.ID))
}

func TestSyncTerminalSessionIsNoop(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	session, err := env.engine.CreateSession(ctx, CreateSpec{
		SourceRepo: "acme/widgets",
		BranchName: "drover/work-1",
	})
	require.NoError(t, err)
	require.NoError(t, env.engine.Terminate(ctx, session.ID))
	gets := len(env.agents.Gets)

	result, err := env.engine.Sync(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.SessionStatusFailed), result.Session.Status)
	assert.Empty(t, result.ExternalStatus)
	assert.Len(t, env.agents.Gets, gets, "no provider call for terminal sessions")
}

func TestSyncBatchIsolatesFailures(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	session, err := env.engine.CreateSession(ctx, CreateSpec{
		SourceRepo: "acme/widgets",
		BranchName: "drover/work-1",
	})
	require.NoError(t, err)

	outcomes := env.engine.SyncBatch(ctx, []string{session.ID, "missing"})
	require.Len(t, outcomes, 2)

	assert.Equal(t, session.ID, outcomes[0].SessionID)
	assert.Empty(t, outcomes[0].Error)
	require.NotNil(t, outcomes[0].Result)

	assert.Equal(t, "missing", outcomes[1].SessionID)
	assert.NotEmpty(t, outcomes[1].Error)
	assert.Nil(t, outcomes[1].Result)
}
