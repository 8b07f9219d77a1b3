package engine

import (
	"context"
	"path"
	"strings"

	"github.com/drover-ai/drover/internal/logger"
	"github.com/drover-ai/drover/pkg/metrics"
)

// PushEvent is a decoded VCS push delivery.
type PushEvent struct {
	Repo          string // owner/name
	Branch        string
	Commit        string
	AuthorLogin   string
	CommitMessage string
	ChangedFiles  []string
}

// PullRequestEvent is a decoded change-proposal delivery.
type PullRequestEvent struct {
	Repo   string
	Branch string
	Commit string
	Number int
	URL    string
	Action string // opened, synchronize, closed
	Merged bool
}

// CheckRunEvent is a decoded CI check delivery.
type CheckRunEvent struct {
	Repo       string
	Branch     string
	Commit     string
	CheckName  string
	Conclusion string // success, failure, timed_out, cancelled, ...
	JobID      int64
}

// WebhookResult is what the webhook receiver answers with. Provider
// failures land in Result rather than an HTTP error so senders do not
// retry; failure is persisted on the session for the sync loop.
type WebhookResult struct {
	Received         bool   `json:"received"`
	EventType        string `json:"event_type"`
	Result           string `json:"result"`
	CascadeTriggered bool   `json:"cascade_triggered,omitempty"`
	CascadeID        string `json:"cascade_id,omitempty"`
}

// HandlePush routes a push: automated commits are skipped, everything else
// goes through the review loop, and pushes touching core files additionally
// trigger cascade analysis.
func (e *Engine) HandlePush(ctx context.Context, ev PushEvent) (*WebhookResult, error) {
	res := &WebhookResult{Received: true, EventType: "push"}

	if e.isAutomated(ev.AuthorLogin, ev.CommitMessage) {
		res.Result = OutcomeAutomatedSkipped
		metrics.WebhookEvents.WithLabelValues("push", res.Result).Inc()
		return res, nil
	}

	review, err := e.Review(ctx, ReviewEvent{
		Repo:   ev.Repo,
		Branch: ev.Branch,
		Commit: ev.Commit,
	})
	if err != nil {
		logger.ErrorCtx(ctx, "push review failed",
			logger.Repo(ev.Repo), logger.Branch(ev.Branch), logger.Err(err))
		res.Result = "review_failed: " + err.Error()
	} else {
		res.Result = review.Outcome
	}

	if len(e.matchCoreFiles(ev.ChangedFiles)) > 0 {
		cascade, err := e.Analyze(ctx, AnalyzeRequest{
			Repo:         ev.Repo,
			Branch:       ev.Branch,
			Commit:       ev.Commit,
			ChangedPaths: ev.ChangedFiles,
		})
		if err != nil {
			logger.ErrorCtx(ctx, "cascade analysis failed",
				logger.Repo(ev.Repo), logger.Commit(ev.Commit), logger.Err(err))
		}
		if cascade != nil && cascade.CascadeID != "" {
			res.CascadeTriggered = true
			res.CascadeID = cascade.CascadeID
		}
	}

	metrics.WebhookEvents.WithLabelValues("push", res.Result).Inc()
	return res, nil
}

// HandlePullRequest routes a change-proposal event: opened and synchronize
// go through the review loop with the proposal diff, closed applies the
// terminal transition.
func (e *Engine) HandlePullRequest(ctx context.Context, ev PullRequestEvent) (*WebhookResult, error) {
	res := &WebhookResult{Received: true, EventType: "pull_request"}

	switch ev.Action {
	case "opened", "synchronize":
		review, err := e.Review(ctx, ReviewEvent{
			Repo:     ev.Repo,
			Branch:   ev.Branch,
			Commit:   ev.Commit,
			PRNumber: ev.Number,
			PRURL:    ev.URL,
		})
		if err != nil {
			logger.ErrorCtx(ctx, "pull request review failed",
				logger.Repo(ev.Repo), logger.Branch(ev.Branch), logger.Err(err))
			res.Result = "review_failed: " + err.Error()
		} else {
			res.Result = review.Outcome
		}
	case "closed":
		outcome, err := e.HandleProposalClosed(ctx, ev.Repo, ev.Branch, ev.URL, ev.Merged)
		if err != nil {
			return nil, err
		}
		res.Result = outcome
	default:
		res.Result = OutcomeIgnored
	}

	metrics.WebhookEvents.WithLabelValues("pull_request", res.Result).Inc()
	return res, nil
}

// HandleCheckRun routes a completed CI check. Only primary pipelines drive
// transitions: success promotes executing → verifying, failure starts the
// self-healing loop.
func (e *Engine) HandleCheckRun(ctx context.Context, ev CheckRunEvent) (*WebhookResult, error) {
	res := &WebhookResult{Received: true, EventType: "check_run"}

	if !e.isPrimaryPipeline(ev.CheckName) {
		logger.DebugCtx(ctx, "non-primary pipeline, ignoring",
			"check", ev.CheckName, logger.Branch(ev.Branch))
		res.Result = OutcomeIgnored
		metrics.WebhookEvents.WithLabelValues("check_run", res.Result).Inc()
		return res, nil
	}

	switch ev.Conclusion {
	case "success":
		outcome, err := e.promoteToVerifying(ctx, ev.Repo, ev.Branch)
		if err != nil {
			return nil, err
		}
		res.Result = outcome
	case "failure", "timed_out":
		review, err := e.HandleCIFailure(ctx, ReviewEvent{
			Repo:   ev.Repo,
			Branch: ev.Branch,
			Commit: ev.Commit,
		}, ev.CheckName, ev.JobID)
		if err != nil {
			logger.ErrorCtx(ctx, "CI remediation failed",
				logger.Repo(ev.Repo), logger.Branch(ev.Branch), logger.Err(err))
			res.Result = "remediation_failed: " + err.Error()
		} else {
			res.Result = review.Outcome
		}
	default:
		res.Result = OutcomeIgnored
	}

	metrics.WebhookEvents.WithLabelValues("check_run", res.Result).Inc()
	return res, nil
}

// isAutomated reports whether a push came from the system itself: a
// configured bot author or the skip marker in the commit message.
func (e *Engine) isAutomated(author, message string) bool {
	for _, bot := range e.cfg.BotAuthors {
		if strings.EqualFold(author, bot) {
			return true
		}
	}
	return e.cfg.SkipMarker != "" && strings.Contains(message, e.cfg.SkipMarker)
}

// isPrimaryPipeline checks the check name against the allow-list. An empty
// list means every pipeline drives transitions.
func (e *Engine) isPrimaryPipeline(checkName string) bool {
	if len(e.cfg.PrimaryPipelines) == 0 {
		return true
	}
	for _, name := range e.cfg.PrimaryPipelines {
		if strings.EqualFold(checkName, name) {
			return true
		}
	}
	return false
}

// matchesAnyGlob matches a path against glob patterns. A pattern matches
// the full path, the base name, or, for directory patterns ending in "/",
// any path underneath.
func matchesAnyGlob(patterns []string, p string) bool {
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if strings.HasSuffix(pattern, "/") {
			if strings.HasPrefix(p, pattern) {
				return true
			}
			continue
		}
		if ok, err := path.Match(pattern, p); err == nil && ok {
			return true
		}
		if ok, err := path.Match(pattern, path.Base(p)); err == nil && ok {
			return true
		}
		if pattern == p {
			return true
		}
	}
	return false
}
