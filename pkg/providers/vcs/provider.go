// Package vcs abstracts the version-control host: diffs, CI logs, and
// review comments.
package vcs

import (
	"context"
	"fmt"
	"time"
)

// Provider is the narrow interface the engine consumes.
type Provider interface {
	// GetCommitDiff returns the unified diff for a single commit.
	GetCommitDiff(ctx context.Context, owner, repo, sha string) (string, error)

	// GetPullRequestDiff returns the unified diff for a pull request.
	GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error)

	// GetCheckRunLogs returns the raw logs of a CI job. Best-effort; an
	// empty string with nil error means logs were unavailable.
	GetCheckRunLogs(ctx context.Context, owner, repo string, jobID int64) (string, error)

	// PostPullRequestComment posts a review comment on a pull request.
	PostPullRequestComment(ctx context.Context, owner, repo string, number int, body string) error

	// PostCommitComment posts a comment on a commit.
	PostCommitComment(ctx context.Context, owner, repo, sha, body string) error
}

// RateLimitError indicates the VCS host rejected the call for rate limiting.
// ResetAt carries the host-advertised reset timestamp.
type RateLimitError struct {
	ResetAt time.Time
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("vcs rate limit exceeded, resets at %s", e.ResetAt.UTC().Format(time.RFC3339))
}
