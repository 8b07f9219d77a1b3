package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drover-ai/drover/pkg/controlplane/models"
)

func TestHandlePushSkipsAutomatedCommits(t *testing.T) {
	env := newTestEnv(t, Config{BotAuthors: []string{"drover-bot"}})
	ctx := context.Background()

	tests := []struct {
		name  string
		event PushEvent
	}{
		{
			name:  "bot author",
			event: PushEvent{Repo: "acme/widgets", Branch: "main", AuthorLogin: "Drover-Bot"},
		},
		{
			name:  "skip marker in message",
			event: PushEvent{Repo: "acme/widgets", Branch: "main", CommitMessage: "fix handler [Auto]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.engine.HandlePush(ctx, tt.event)
			require.NoError(t, err)
			assert.True(t, res.Received)
			assert.Equal(t, OutcomeAutomatedSkipped, res.Result)
			assert.False(t, res.CascadeTriggered)
		})
	}
}

func TestHandlePushRunsReview(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	session, err := env.engine.CreateSession(ctx, CreateSpec{
		SourceRepo: "acme/widgets",
		BranchName: "drover/work-1",
	})
	require.NoError(t, err)
	env.vcs.SetCommitDiff("acme", "widgets", "abc123", "diff")

	res, err := env.engine.HandlePush(ctx, PushEvent{
		Repo:        "acme/widgets",
		Branch:      "drover/work-1",
		Commit:      "abc123",
		AuthorLogin: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReviewed, res.Result)
	assert.False(t, res.CascadeTriggered)

	stored := env.getSession(t, session.ID)
	assert.Equal(t, string(models.SessionStatusCompleted), stored.Status)
}

func TestHandlePushTriggersCascadeAnalysis(t *testing.T) {
	env := newTestEnv(t, Config{CoreFiles: []string{"pkg/api/*.go"}})
	ctx := context.Background()
	env.vcs.SetCommitDiff("acme", "widgets", "abc123", "diff")

	res, err := env.engine.HandlePush(ctx, PushEvent{
		Repo:         "acme/widgets",
		Branch:       "main",
		Commit:       "abc123",
		AuthorLogin:  "alice",
		ChangedFiles: []string{"pkg/api/types.go"},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoActiveSession, res.Result)
	assert.True(t, res.CascadeTriggered)
	assert.NotEmpty(t, res.CascadeID)
	assert.Equal(t, 1, len(env.auditor.Decomposes))
}

func TestHandlePullRequestClosedMerged(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	goal := env.createGoal(t, "c1")

	session, err := env.engine.CreateSession(ctx, CreateSpec{
		GoalID:     &goal.ID,
		SourceRepo: "acme/widgets",
		BranchName: "drover/work-1",
		LockPaths:  []string{"pkg/a.go"},
	})
	require.NoError(t, err)

	res, err := env.engine.HandlePullRequest(ctx, PullRequestEvent{
		Repo:   "acme/widgets",
		Branch: "drover/work-1",
		URL:    "https://vcs.example.com/pr/9",
		Action: "closed",
		Merged: true,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSessionCompleted, res.Result)

	stored := env.getSession(t, session.ID)
	assert.Equal(t, string(models.SessionStatusCompleted), stored.Status)
	assert.Zero(t, env.lockCount(t, session.ID))

	loaded, err := env.store.GetGoal(ctx, goal.ID)
	require.NoError(t, err)
	artifacts, err := loaded.GetReviewArtifacts()
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "https://vcs.example.com/pr/9", artifacts[0].URL)
}

func TestHandlePullRequestClosedUnmerged(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	session, err := env.engine.CreateSession(ctx, CreateSpec{
		SourceRepo: "acme/widgets",
		BranchName: "drover/work-1",
		LockPaths:  []string{"pkg/a.go"},
	})
	require.NoError(t, err)

	res, err := env.engine.HandlePullRequest(ctx, PullRequestEvent{
		Repo:   "acme/widgets",
		Branch: "drover/work-1",
		Action: "closed",
		Merged: false,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSessionFailed, res.Result)

	stored := env.getSession(t, session.ID)
	assert.Equal(t, string(models.SessionStatusFailed), stored.Status)
	assert.Contains(t, stored.LastError, "closed without merge")
	assert.Zero(t, env.lockCount(t, session.ID))
}

func TestHandlePullRequestOpenedRunsReview(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	_, err := env.engine.CreateSession(ctx, CreateSpec{
		SourceRepo: "acme/widgets",
		BranchName: "drover/work-1",
	})
	require.NoError(t, err)
	env.vcs.SetPullRequestDiff("acme", "widgets", 9, "diff")

	res, err := env.engine.HandlePullRequest(ctx, PullRequestEvent{
		Repo:   "acme/widgets",
		Branch: "drover/work-1",
		Commit: "abc123",
		Number: 9,
		URL:    "https://vcs.example.com/pr/9",
		Action: "opened",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReviewed, res.Result)
	assert.Equal(t, 1, env.auditor.ReviewCount())
}

func TestHandlePullRequestUnknownActionIgnored(t *testing.T) {
	env := newTestEnv(t, Config{})

	res, err := env.engine.HandlePullRequest(context.Background(), PullRequestEvent{
		Repo: "acme/widgets", Branch: "main", Action: "labeled",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Result)
}

func TestHandleCheckRunNonPrimaryIgnored(t *testing.T) {
	env := newTestEnv(t, Config{PrimaryPipelines: []string{"ci/build"}})

	res, err := env.engine.HandleCheckRun(context.Background(), CheckRunEvent{
		Repo:       "acme/widgets",
		Branch:     "drover/work-1",
		CheckName:  "lint",
		Conclusion: "failure",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Result)
}

func TestHandleCheckRunSuccessPromotesVerifying(t *testing.T) {
	env := newTestEnv(t, Config{PrimaryPipelines: []string{"ci/build"}})
	ctx := context.Background()

	session, err := env.engine.CreateSession(ctx, CreateSpec{
		SourceRepo: "acme/widgets",
		BranchName: "drover/work-1",
	})
	require.NoError(t, err)
	require.Equal(t, string(models.SessionStatusExecuting), session.Status)

	res, err := env.engine.HandleCheckRun(ctx, CheckRunEvent{
		Repo:       "acme/widgets",
		Branch:     "drover/work-1",
		CheckName:  "CI/Build",
		Conclusion: "success",
	})
	require.NoError(t, err)
	assert.Equal(t, "verifying", res.Result)

	stored := env.getSession(t, session.ID)
	assert.Equal(t, string(models.SessionStatusVerifying), stored.Status)

	// A second success is a no-op.
	res, err = env.engine.HandleCheckRun(ctx, CheckRunEvent{
		Repo:       "acme/widgets",
		Branch:     "drover/work-1",
		CheckName:  "ci/build",
		Conclusion: "success",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Result)
}

func TestHandleCheckRunFailureSpawnsRemediation(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	session, err := env.engine.CreateSession(ctx, CreateSpec{
		SourceRepo: "acme/widgets",
		BranchName: "drover/work-1",
		LockPaths:  []string{"pkg/a.go"},
	})
	require.NoError(t, err)
	env.vcs.SetCommitDiff("acme", "widgets", "abc123", "diff")

	res, err := env.engine.HandleCheckRun(ctx, CheckRunEvent{
		Repo:       "acme/widgets",
		Branch:     "drover/work-1",
		Commit:     "abc123",
		CheckName:  "ci/build",
		Conclusion: "failure",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRemediationSpawned, res.Result)

	stored := env.getSession(t, session.ID)
	assert.Equal(t, string(models.SessionStatusFailed), stored.Status)
}

func TestHandleCheckRunNeutralConclusionIgnored(t *testing.T) {
	env := newTestEnv(t, Config{})

	res, err := env.engine.HandleCheckRun(context.Background(), CheckRunEvent{
		Repo:       "acme/widgets",
		Branch:     "main",
		CheckName:  "ci/build",
		Conclusion: "neutral",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Result)
}

func TestMatchesAnyGlob(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		path     string
		want     bool
	}{
		{"exact file", []string{"go.mod"}, "go.mod", true},
		{"glob in directory", []string{"pkg/api/*.go"}, "pkg/api/types.go", true},
		{"glob does not cross directories", []string{"pkg/*.go"}, "pkg/api/types.go", false},
		{"base name match", []string{"*.proto"}, "api/v1/service.proto", true},
		{"directory prefix", []string{"pkg/api/"}, "pkg/api/nested/deep.go", true},
		{"directory prefix miss", []string{"pkg/api/"}, "pkg/client/client.go", false},
		{"literal path", []string{"docs/SCHEMA.md"}, "docs/SCHEMA.md", true},
		{"empty pattern", []string{""}, "anything.go", false},
		{"no patterns", nil, "anything.go", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesAnyGlob(tt.patterns, tt.path))
		})
	}
}

func TestIsPrimaryPipeline(t *testing.T) {
	env := newTestEnv(t, Config{PrimaryPipelines: []string{"ci/build", "ci/test"}})
	assert.True(t, env.engine.isPrimaryPipeline("ci/build"))
	assert.True(t, env.engine.isPrimaryPipeline("CI/TEST"))
	assert.False(t, env.engine.isPrimaryPipeline("lint"))

	open := newTestEnv(t, Config{})
	assert.True(t, open.engine.isPrimaryPipeline("anything"))
}
