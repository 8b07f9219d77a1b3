package vcs

import (
	"context"
	"fmt"
	"sync"
)

// PostedComment records a comment posted through the [Fake].
type PostedComment struct {
	Owner  string
	Repo   string
	Number int    // pull request number, 0 for commit comments
	SHA    string // commit sha, empty for pull request comments
	Body   string
}

// Fake is an in-memory [Provider] for testing. Diffs and logs are served
// from maps the test seeds; posted comments are recorded for assertions.
// Safe for concurrent use.
type Fake struct {
	mu       sync.Mutex
	broken   bool
	Diffs    map[string]string // "owner/repo@sha" or "owner/repo#number" → diff
	Logs     map[int64]string  // job id → raw logs
	Comments []PostedComment
}

// NewFake returns a ready-to-use [Fake].
func NewFake() *Fake {
	return &Fake{
		Diffs: make(map[string]string),
		Logs:  make(map[int64]string),
	}
}

// NewFailFake returns a [Fake] where every call fails.
func NewFailFake() *Fake {
	f := NewFake()
	f.broken = true
	return f
}

// SetCommitDiff seeds the diff returned for a commit.
func (f *Fake) SetCommitDiff(owner, repo, sha, diff string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Diffs[fmt.Sprintf("%s/%s@%s", owner, repo, sha)] = diff
}

// SetPullRequestDiff seeds the diff returned for a pull request.
func (f *Fake) SetPullRequestDiff(owner, repo string, number int, diff string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Diffs[fmt.Sprintf("%s/%s#%d", owner, repo, number)] = diff
}

// GetCommitDiff returns the seeded diff for the commit.
func (f *Fake) GetCommitDiff(_ context.Context, owner, repo, sha string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return "", fmt.Errorf("vcs provider unavailable")
	}
	diff, ok := f.Diffs[fmt.Sprintf("%s/%s@%s", owner, repo, sha)]
	if !ok {
		return "", fmt.Errorf("unknown commit %s/%s@%s", owner, repo, sha)
	}
	return diff, nil
}

// GetPullRequestDiff returns the seeded diff for the pull request.
func (f *Fake) GetPullRequestDiff(_ context.Context, owner, repo string, number int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return "", fmt.Errorf("vcs provider unavailable")
	}
	diff, ok := f.Diffs[fmt.Sprintf("%s/%s#%d", owner, repo, number)]
	if !ok {
		return "", fmt.Errorf("unknown pull request %s/%s#%d", owner, repo, number)
	}
	return diff, nil
}

// GetCheckRunLogs returns seeded logs, or an empty string when none exist.
func (f *Fake) GetCheckRunLogs(_ context.Context, _, _ string, jobID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return "", fmt.Errorf("vcs provider unavailable")
	}
	return f.Logs[jobID], nil
}

// PostPullRequestComment records the comment.
func (f *Fake) PostPullRequestComment(_ context.Context, owner, repo string, number int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return fmt.Errorf("vcs provider unavailable")
	}
	f.Comments = append(f.Comments, PostedComment{Owner: owner, Repo: repo, Number: number, Body: body})
	return nil
}

// PostCommitComment records the comment.
func (f *Fake) PostCommitComment(_ context.Context, owner, repo, sha, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return fmt.Errorf("vcs provider unavailable")
	}
	f.Comments = append(f.Comments, PostedComment{Owner: owner, Repo: repo, SHA: sha, Body: body})
	return nil
}

// CommentCount returns the number of comments posted.
func (f *Fake) CommentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Comments)
}
