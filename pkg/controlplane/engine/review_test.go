package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/drover-ai/drover/pkg/controlplane/models"
	"github.com/drover-ai/drover/pkg/controlplane/store"
	"github.com/drover-ai/drover/pkg/providers/auditor"
)

// markReviewed records a commit as already reviewed on an active session.
func markReviewed(t *testing.T, env *testEnv, sessionID, commit string) {
	t.Helper()

	require.NoError(t, env.store.InTx(context.Background(), func(tx *gorm.DB) error {
		current, err := store.GetSessionLocked(tx, sessionID)
		if err != nil {
			return err
		}
		current.LastReviewedCommit = commit
		return store.SaveSessionTx(tx, current)
	}))
}

// seedReviewSession creates an executing session on a branch with one lock,
// optionally bound to a goal, and seeds the commit diff the review fetches.
func seedReviewSession(t *testing.T, env *testEnv, goalID *string, commit string) *models.Session {
	t.Helper()

	session, err := env.engine.CreateSession(context.Background(), CreateSpec{
		GoalID:     goalID,
		SourceRepo: "acme/widgets",
		BranchName: "drover/work-1",
		BaseBranch: "main",
		LockPaths:  []string{"pkg/api/server.go"},
	})
	require.NoError(t, err)
	env.vcs.SetCommitDiff("acme", "widgets", commit, "--- a/pkg/api/server.go\n+++ b/pkg/api/server.go\n")
	return session
}

func TestReviewPassCompletesSession(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	goal := env.createGoal(t, "handler signatures compile")
	session := seedReviewSession(t, env, &goal.ID, "abc123")

	result, err := env.engine.Review(ctx, ReviewEvent{
		Repo: "acme/widgets", Branch: "drover/work-1", Commit: "abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReviewed, result.Outcome)
	assert.Equal(t, session.ID, result.SessionID)
	assert.Empty(t, result.ChildSessionID)

	stored := env.getSession(t, session.ID)
	assert.Equal(t, string(models.SessionStatusCompleted), stored.Status)
	assert.Equal(t, "abc123", stored.LastReviewedCommit)
	assert.Zero(t, env.lockCount(t, session.ID))

	// The fake auditor passes every criterion; the merge lands on the goal.
	loaded, err := env.store.GetGoal(ctx, goal.ID)
	require.NoError(t, err)
	criteria, err := loaded.GetCriteria()
	require.NoError(t, err)
	require.Len(t, criteria, 1)
	assert.True(t, criteria[0].Met)

	// A review comment was posted on the commit.
	require.Len(t, env.vcs.Comments, 1)
	assert.Equal(t, "abc123", env.vcs.Comments[0].SHA)
}

func TestReviewFailSpawnsChildWithInheritedLocks(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	goal := env.createGoal(t, "no panics in handlers")
	session := seedReviewSession(t, env, &goal.ID, "abc123")

	criteria, err := goal.GetCriteria()
	require.NoError(t, err)
	env.auditor.QueueReport(&auditor.AuditReport{
		Severity: auditor.SeverityMajor,
		Summary:  "handler still panics",
		Findings: []string{"nil deref in CreateGoal"},
		CriteriaAssessment: map[string]auditor.CriterionAssessment{
			criteria[0].ID: {Met: false, Reasoning: "panic reproduced"},
		},
	})

	result, err := env.engine.Review(ctx, ReviewEvent{
		Repo: "acme/widgets", Branch: "drover/work-1", Commit: "abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRemediationSpawned, result.Outcome)
	require.NotEmpty(t, result.ChildSessionID)

	parent := env.getSession(t, session.ID)
	assert.Equal(t, string(models.SessionStatusFailed), parent.Status)
	assert.Contains(t, parent.LastError, result.ChildSessionID)
	assert.Zero(t, env.lockCount(t, session.ID))

	child := env.getSession(t, result.ChildSessionID)
	assert.Equal(t, session.RemediationDepth+1, child.RemediationDepth)
	assert.Equal(t, string(models.SessionStatusExecuting), child.Status)
	assert.Equal(t, session.BranchName, child.BranchName)
	require.NotNil(t, child.CascadeID, "auto-remediation cascade assigned")
	assert.Equal(t, 1, env.lockCount(t, child.ID), "parent's lock set inherited")

	// The child agent's prompt carries the review findings.
	require.Len(t, env.agents.Creates, 2)
	assert.Contains(t, env.agents.Creates[1].Prompt, "nil deref in CreateGoal")
	assert.Contains(t, env.agents.Creates[1].Prompt, "panic reproduced")
}

func TestReviewDepthExhaustionDriftsGoal(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	goal := env.createGoal(t, "stable CI")

	session, err := env.engine.CreateSession(ctx, CreateSpec{
		GoalID:           &goal.ID,
		SourceRepo:       "acme/widgets",
		BranchName:       "drover/work-1",
		LockPaths:        []string{"pkg/api/server.go"},
		RemediationDepth: models.MaxRemediationDepth,
	})
	require.NoError(t, err)
	env.vcs.SetCommitDiff("acme", "widgets", "abc123", "diff")

	env.auditor.QueueReport(&auditor.AuditReport{
		Severity: auditor.SeverityMajor,
		Summary:  "still broken",
	})

	result, err := env.engine.Review(ctx, ReviewEvent{
		Repo: "acme/widgets", Branch: "drover/work-1", Commit: "abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeManualIntervention, result.Outcome)
	assert.Empty(t, result.ChildSessionID)

	stored := env.getSession(t, session.ID)
	assert.Equal(t, string(models.SessionStatusFailed), stored.Status)
	assert.Contains(t, stored.LastError, "remediation depth")
	assert.Zero(t, env.lockCount(t, session.ID))

	loaded, err := env.store.GetGoal(ctx, goal.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.GoalStatusDrifted), loaded.Status)
	assert.Contains(t, loaded.Description, "ManualInterventionRequired")

	// No child agent was dispatched.
	assert.Equal(t, 1, env.agents.CreateCount())
}

func TestReviewDuplicateCommitSkipped(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	goal := env.createGoal(t, "c1")
	seedReviewSession(t, env, &goal.ID, "abc123")

	ev := ReviewEvent{Repo: "acme/widgets", Branch: "drover/work-1", Commit: "abc123"}

	result, err := env.engine.Review(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReviewed, result.Outcome)
	reviews := env.auditor.ReviewCount()

	// Redelivery: a fresh active session on the branch whose
	// lastReviewedCommit already records the commit is skipped without an
	// Auditor call.
	replay, err := env.engine.CreateSession(ctx, CreateSpec{
		SourceRepo: "acme/widgets", BranchName: "drover/work-1",
	})
	require.NoError(t, err)
	markReviewed(t, env, replay.ID, "abc123")

	result, err = env.engine.Review(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicateCommit, result.Outcome)
	assert.Equal(t, reviews, env.auditor.ReviewCount())
}

func TestReviewConcurrentSameCommitFinalizesOnce(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	goal := env.createGoal(t, "c1")
	session := seedReviewSession(t, env, &goal.ID, "abc123")

	// Two concurrent deliveries of the same commit can both pass the
	// unlocked duplicate check and reach the Auditor; only the first
	// finalize transaction records the outcome, the loser observes the
	// terminal session under the row lock.
	ev := ReviewEvent{Repo: "acme/widgets", Branch: "drover/work-1", Commit: "abc123"}
	report := &auditor.AuditReport{Severity: auditor.SeverityNone, Summary: "looks good"}

	first, err := env.engine.finalizeReview(ctx, session.ID, ev, goal, report, false, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeReviewed, first.Outcome)

	second, err := env.engine.finalizeReview(ctx, session.ID, ev, goal, report, false, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicateCommit, second.Outcome)

	stored := env.getSession(t, session.ID)
	assert.Equal(t, string(models.SessionStatusCompleted), stored.Status)
	assert.Equal(t, "abc123", stored.LastReviewedCommit)
}

func TestReviewEmptyDiffSkipped(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	session, err := env.engine.CreateSession(ctx, CreateSpec{
		SourceRepo: "acme/widgets", BranchName: "drover/work-1",
	})
	require.NoError(t, err)
	env.vcs.SetCommitDiff("acme", "widgets", "abc123", "   \n")

	result, err := env.engine.Review(ctx, ReviewEvent{
		Repo: "acme/widgets", Branch: "drover/work-1", Commit: "abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmptyDiff, result.Outcome)
	assert.Zero(t, env.auditor.ReviewCount())

	// Not acknowledged as reviewed.
	stored := env.getSession(t, session.ID)
	assert.Empty(t, stored.LastReviewedCommit)
}

func TestReviewNoActiveSession(t *testing.T) {
	env := newTestEnv(t, Config{})

	result, err := env.engine.Review(context.Background(), ReviewEvent{
		Repo: "acme/widgets", Branch: "unknown", Commit: "abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoActiveSession, result.Outcome)
}

func TestReviewAuditorFailureLeavesCommitUnacknowledged(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	session := seedReviewSession(t, env, nil, "abc123")
	env.engine.auditor = auditor.NewFailFake()

	_, err := env.engine.Review(ctx, ReviewEvent{
		Repo: "acme/widgets", Branch: "drover/work-1", Commit: "abc123",
	})
	require.Error(t, err)

	// The sender may redeliver: the commit was not recorded and the session
	// is untouched.
	stored := env.getSession(t, session.ID)
	assert.Empty(t, stored.LastReviewedCommit)
	assert.Equal(t, string(models.SessionStatusExecuting), stored.Status)
	assert.Equal(t, 1, env.lockCount(t, session.ID))
}

func TestReviewPullRequestRecordsArtifact(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	goal := env.createGoal(t, "c1")
	session, err := env.engine.CreateSession(ctx, CreateSpec{
		GoalID:     &goal.ID,
		SourceRepo: "acme/widgets",
		BranchName: "drover/work-1",
	})
	require.NoError(t, err)
	env.vcs.SetPullRequestDiff("acme", "widgets", 7, "diff")

	result, err := env.engine.Review(ctx, ReviewEvent{
		Repo:     "acme/widgets",
		Branch:   "drover/work-1",
		Commit:   "abc123",
		PRNumber: 7,
		PRURL:    "https://vcs.example.com/pr/7",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReviewed, result.Outcome)

	loaded, err := env.store.GetGoal(ctx, goal.ID)
	require.NoError(t, err)
	artifacts, err := loaded.GetReviewArtifacts()
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "https://vcs.example.com/pr/7", artifacts[0].URL)
	assert.Equal(t, session.ID, artifacts[0].SessionID)

	// The review comment went to the pull request, not the commit.
	require.Len(t, env.vcs.Comments, 1)
	assert.Equal(t, 7, env.vcs.Comments[0].Number)
}

func TestHandleCIFailureSpawnsChildWithLogs(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	session := seedReviewSession(t, env, nil, "abc123")
	env.vcs.Logs[42] = "FAIL: TestCheckout (0.03s)\npanic: runtime error"

	result, err := env.engine.HandleCIFailure(ctx, ReviewEvent{
		Repo: "acme/widgets", Branch: "drover/work-1", Commit: "abc123",
	}, "ci/build", 42)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRemediationSpawned, result.Outcome)
	require.NotEmpty(t, result.ChildSessionID)

	assert.Zero(t, env.auditor.ReviewCount(), "CI failures bypass the oracle")

	child := env.getSession(t, result.ChildSessionID)
	assert.Equal(t, session.RemediationDepth+1, child.RemediationDepth)
	assert.Equal(t, 1, env.lockCount(t, child.ID))

	require.Len(t, env.agents.Creates, 2)
	prompt := env.agents.Creates[1].Prompt
	assert.Contains(t, prompt, "ci/build")
	assert.Contains(t, prompt, "panic: runtime error")
}

func TestReAudit(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	goal := env.createGoal(t, "no panics in handlers")
	session := seedReviewSession(t, env, &goal.ID, "abc123")

	result, err := env.engine.Review(ctx, ReviewEvent{
		Repo: "acme/widgets", Branch: "drover/work-1", Commit: "abc123",
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeReviewed, result.Outcome)

	// The re-audit finds a regression the original pass missed.
	criteria, err := goal.GetCriteria()
	require.NoError(t, err)
	env.auditor.QueueReport(&auditor.AuditReport{
		Severity: auditor.SeverityMajor,
		Summary:  "handler still panics",
		CriteriaAssessment: map[string]auditor.CriterionAssessment{
			criteria[0].ID: {Met: false, Reasoning: "panic reproduced"},
		},
	})

	result, err = env.engine.ReAudit(ctx, goal.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReviewed, result.Outcome)
	assert.Equal(t, session.ID, result.SessionID)
	assert.Equal(t, auditor.SeverityMajor, result.Severity)
	assert.Equal(t, 2, env.auditor.ReviewCount())

	// The fresh assessment lands on the goal; the completed session is left
	// alone and no child is spawned.
	loaded, err := env.store.GetGoal(ctx, goal.ID)
	require.NoError(t, err)
	merged, err := loaded.GetCriteria()
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.False(t, merged[0].Met)
	assert.Equal(t, "panic reproduced", merged[0].Reasoning)

	stored := env.getSession(t, session.ID)
	assert.Equal(t, string(models.SessionStatusCompleted), stored.Status)
	assert.Equal(t, "abc123", stored.LastReviewedCommit)

	sessions, err := env.store.ListSessionsForGoal(ctx, goal.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	// Both the review and the re-audit posted a commit comment.
	assert.Len(t, env.vcs.Comments, 2)
}

func TestReAuditNoReviewedSession(t *testing.T) {
	env := newTestEnv(t, Config{})
	goal := env.createGoal(t, "c1")

	result, err := env.engine.ReAudit(context.Background(), goal.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoActiveSession, result.Outcome)
}

func TestReviewFailedVerdict(t *testing.T) {
	tests := []struct {
		name   string
		report auditor.AuditReport
		failed bool
	}{
		{
			name:   "no assessment, minor severity",
			report: auditor.AuditReport{Severity: auditor.SeverityMinor},
			failed: false,
		},
		{
			name:   "no assessment, major severity",
			report: auditor.AuditReport{Severity: auditor.SeverityMajor},
			failed: true,
		},
		{
			name: "all met despite major severity",
			report: auditor.AuditReport{
				Severity: auditor.SeverityMajor,
				CriteriaAssessment: map[string]auditor.CriterionAssessment{
					"c1": {Met: true},
				},
			},
			failed: false,
		},
		{
			name: "one unmet",
			report: auditor.AuditReport{
				Severity: auditor.SeverityNone,
				CriteriaAssessment: map[string]auditor.CriterionAssessment{
					"c1": {Met: true},
					"c2": {Met: false},
				},
			},
			failed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.failed, reviewFailed(&tt.report))
		})
	}
}
