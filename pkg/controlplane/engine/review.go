package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/drover-ai/drover/internal/logger"
	"github.com/drover-ai/drover/pkg/controlplane/locks"
	"github.com/drover-ai/drover/pkg/controlplane/models"
	"github.com/drover-ai/drover/pkg/controlplane/store"
	"github.com/drover-ai/drover/pkg/metrics"
	"github.com/drover-ai/drover/pkg/providers/auditor"
)

// ReviewEvent is a VCS push or change-proposal event routed to the review
// loop.
type ReviewEvent struct {
	Repo     string // owner/name
	Branch   string
	Commit   string
	PRNumber int    // 0 when the event is not tied to a change proposal
	PRURL    string // change proposal URL when known
}

// ReviewResult is the outcome of one review loop run.
type ReviewResult struct {
	Outcome        string           `json:"outcome"`
	SessionID      string           `json:"session_id,omitempty"`
	ChildSessionID string           `json:"child_session_id,omitempty"`
	Severity       auditor.Severity `json:"severity,omitempty"`
	Summary        string           `json:"summary,omitempty"`
}

// Review audits the diff of an incoming change against the owning goal's
// acceptance criteria and either completes the session or spawns a child
// repair session.
//
// The commit is not acknowledged as reviewed (lastReviewedCommit updated)
// until the Auditor has returned and the outcome transaction committed, so
// webhook redelivery is safe: the second delivery observes the recorded
// commit and is skipped. Two truly concurrent deliveries of the same commit
// may both reach the Auditor and both post a comment; the row-locked
// re-check in finalizeReview guarantees only one records the outcome.
func (e *Engine) Review(ctx context.Context, ev ReviewEvent) (*ReviewResult, error) {
	start := time.Now()
	defer func() {
		metrics.ReviewDuration.Observe(time.Since(start).Seconds())
	}()

	session, err := e.store.FindActiveSessionForBranch(ctx, ev.Repo, ev.Branch)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return e.reviewOutcome(&ReviewResult{Outcome: OutcomeNoActiveSession}), nil
		}
		return nil, err
	}
	ctx = logger.WithSession(ctx, session.ID)

	if ev.Commit != "" && ev.Commit == session.LastReviewedCommit {
		logger.InfoCtx(ctx, "commit already reviewed, skipping", logger.Commit(ev.Commit))
		return e.reviewOutcome(&ReviewResult{Outcome: OutcomeDuplicateCommit, SessionID: session.ID}), nil
	}

	owner, name, err := splitRepo(ev.Repo)
	if err != nil {
		return nil, err
	}

	var diff string
	if ev.PRNumber > 0 {
		diff, err = e.vcs.GetPullRequestDiff(ctx, owner, name, ev.PRNumber)
	} else {
		diff, err = e.vcs.GetCommitDiff(ctx, owner, name, ev.Commit)
	}
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("vcs").Inc()
		return nil, fmt.Errorf("diff fetch failed: %w", err)
	}
	if strings.TrimSpace(diff) == "" {
		return e.reviewOutcome(&ReviewResult{Outcome: OutcomeEmptyDiff, SessionID: session.ID}), nil
	}

	criteria, goal, err := e.criteriaForSession(ctx, session)
	if err != nil {
		return nil, err
	}

	reviewCtx, cancel := context.WithTimeout(ctx, e.cfg.ReviewTimeout)
	report, err := e.auditor.Review(reviewCtx, auditor.ReviewInput{
		Repo:     ev.Repo,
		Branch:   ev.Branch,
		Commit:   ev.Commit,
		Criteria: criteria,
		Diff:     diff,
	})
	cancel()
	if err != nil {
		// Not acknowledged as reviewed; the sender may redeliver.
		metrics.ProviderErrors.WithLabelValues("auditor").Inc()
		return nil, fmt.Errorf("auditor review failed: %w", err)
	}

	e.postReviewComment(ctx, ev, owner, name, report)

	failed := reviewFailed(report)
	childPrompt := buildRemediationPrompt(report, diff)
	result, err := e.finalizeReview(ctx, session.ID, ev, goal, report, failed, childPrompt)
	if err != nil {
		return nil, err
	}

	if result.ChildSessionID != "" {
		e.dispatchChild(ctx, result.ChildSessionID, childPrompt)
	}
	return e.reviewOutcome(result), nil
}

// reviewOutcome records metrics for the outcome and returns it unchanged.
func (e *Engine) reviewOutcome(result *ReviewResult) *ReviewResult {
	metrics.Reviews.WithLabelValues(result.Outcome, string(result.Severity)).Inc()
	return result
}

// criteriaForSession loads the owning goal's acceptance criteria for the
// Auditor. Detached sessions review against an empty criteria set, where
// only severity drives the verdict.
func (e *Engine) criteriaForSession(ctx context.Context, session *models.Session) ([]auditor.CriterionInput, *models.Goal, error) {
	if session.GoalID == nil {
		return nil, nil, nil
	}
	goal, err := e.store.GetGoal(ctx, *session.GoalID)
	if err != nil {
		if errors.Is(err, models.ErrGoalNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	criteria, err := goal.GetCriteria()
	if err != nil {
		return nil, nil, err
	}
	inputs := make([]auditor.CriterionInput, 0, len(criteria))
	for _, c := range criteria {
		inputs = append(inputs, auditor.CriterionInput{ID: c.ID, Text: c.Text})
	}
	return inputs, goal, nil
}

// reviewFailed applies the verdict rule: failure iff any assessed criterion
// is unmet, or nothing was assessed and severity is major.
func reviewFailed(report *auditor.AuditReport) bool {
	if len(report.CriteriaAssessment) == 0 {
		return report.Severity == auditor.SeverityMajor
	}
	for _, assessment := range report.CriteriaAssessment {
		if !assessment.Met {
			return true
		}
	}
	return false
}

// postReviewComment posts the human-readable review to the change proposal
// or commit. Comment failures are logged but do not fail the review.
func (e *Engine) postReviewComment(ctx context.Context, ev ReviewEvent, owner, name string, report *auditor.AuditReport) {
	comment := buildReviewComment(report)
	var err error
	if ev.PRNumber > 0 {
		err = e.vcs.PostPullRequestComment(ctx, owner, name, ev.PRNumber, comment)
	} else {
		err = e.vcs.PostCommitComment(ctx, owner, name, ev.Commit, comment)
	}
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("vcs").Inc()
		logger.WarnCtx(ctx, "review comment post failed", logger.Err(err))
	}
}

// finalizeReview applies the review verdict in one transaction: criteria
// merge, session transition, lock handling, and child spawn all commit
// together. The child's agent dispatch happens after commit.
func (e *Engine) finalizeReview(ctx context.Context, sessionID string, ev ReviewEvent, goal *models.Goal, report *auditor.AuditReport, failed bool, childPrompt string) (*ReviewResult, error) {
	result := &ReviewResult{
		SessionID: sessionID,
		Severity:  report.Severity,
		Summary:   report.Summary,
	}

	err := e.store.InTx(ctx, func(tx *gorm.DB) error {
		session, err := store.GetSessionLocked(tx, sessionID)
		if err != nil {
			return err
		}
		// Second delivery of the same commit loses the row-lock race here.
		if session.Terminal() || (ev.Commit != "" && ev.Commit == session.LastReviewedCommit) {
			result.Outcome = OutcomeDuplicateCommit
			return nil
		}

		if goal != nil {
			if err := mergeCriteriaTx(tx, goal.ID, report.CriteriaAssessment); err != nil {
				return err
			}
		}

		session.LastReviewedCommit = ev.Commit

		if !failed {
			session.Status = string(models.SessionStatusCompleted)
			session.LastError = ""
			if err := store.SaveSessionTx(tx, session); err != nil {
				return err
			}
			if _, err := locks.ReleaseTx(tx, sessionID); err != nil {
				return err
			}
			if ev.PRURL != "" {
				if err := appendArtifactTx(tx, session, ev.PRURL); err != nil {
					return err
				}
			}
			result.Outcome = OutcomeReviewed
			return nil
		}

		if session.RemediationDepth >= models.MaxRemediationDepth {
			return e.exhaustRemediationTx(tx, session, result)
		}

		child, err := e.spawnChildTx(tx, session, childPrompt)
		if err != nil {
			return err
		}
		result.ChildSessionID = child.ID
		result.Outcome = OutcomeRemediationSpawned

		session.Status = string(models.SessionStatusFailed)
		session.LastError = fmt.Sprintf("review failed (severity=%s), child %s spawned", report.Severity, child.ID)
		if err := store.SaveSessionTx(tx, session); err != nil {
			return err
		}
		// Locks moved to the child; anything left over goes away with the
		// terminal transition.
		_, err = locks.ReleaseTx(tx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// exhaustRemediationTx handles a failed review at the depth bound: the
// session fails, its locks are released, and the goal drifts with a manual
// intervention note.
func (e *Engine) exhaustRemediationTx(tx *gorm.DB, session *models.Session, result *ReviewResult) error {
	session.Status = string(models.SessionStatusFailed)
	session.LastError = fmt.Sprintf("remediation depth %d exhausted", session.RemediationDepth)
	if err := store.SaveSessionTx(tx, session); err != nil {
		return err
	}
	if _, err := locks.ReleaseTx(tx, session.ID); err != nil {
		return err
	}

	if session.GoalID != nil {
		goal, err := store.GetGoalLocked(tx, *session.GoalID)
		if err != nil && !errors.Is(err, models.ErrGoalNotFound) {
			return err
		}
		if err == nil {
			goal.Status = string(models.GoalStatusDrifted)
			note := fmt.Sprintf("\n\nManualInterventionRequired: remediation exhausted at depth %d by session %s on branch %s.",
				session.RemediationDepth, session.ID, session.BranchName)
			if !strings.Contains(goal.Description, note) {
				goal.Description += note
			}
			if err := store.SaveGoalTx(tx, goal); err != nil {
				return err
			}
		}
	}

	result.Outcome = OutcomeManualIntervention
	return nil
}

// mergeCriteriaTx merges an Auditor assessment into the goal's criteria by
// id, under the goal's row lock. Only returned ids are overwritten;
// criterion ids and text never change.
func mergeCriteriaTx(tx *gorm.DB, goalID string, assessment map[string]auditor.CriterionAssessment) error {
	if len(assessment) == 0 {
		return nil
	}
	goal, err := store.GetGoalLocked(tx, goalID)
	if err != nil {
		if errors.Is(err, models.ErrGoalNotFound) {
			return nil
		}
		return err
	}
	criteria, err := goal.GetCriteria()
	if err != nil {
		return err
	}
	for i := range criteria {
		verdict, ok := assessment[criteria[i].ID]
		if !ok {
			continue
		}
		criteria[i].Met = verdict.Met
		criteria[i].Reasoning = verdict.Reasoning
		criteria[i].EvidenceFiles = verdict.EvidenceFiles
	}
	if err := goal.SetCriteria(criteria); err != nil {
		return err
	}
	return store.SaveGoalTx(tx, goal)
}

// spawnChildTx creates the child repair session and transfers the parent's
// lock set to it inside the caller's transaction, so no window exists where
// the files are unlocked. A parent without a cascade gets a fresh
// auto-remediation cascade for lineage tracking.
func (e *Engine) spawnChildTx(tx *gorm.DB, parent *models.Session, prompt string) (*models.Session, error) {
	cascadeID := parent.CascadeID
	if cascadeID == nil {
		cascade := &models.Cascade{
			ID:               uuid.New().String(),
			TriggerSessionID: &parent.ID,
			GoalID:           parent.GoalID,
			Summary:          fmt.Sprintf("auto-remediation for session %s", parent.ID),
			RepairJobCount:   1,
			Status:           string(models.CascadeStatusDispatched),
		}
		if err := tx.Create(cascade).Error; err != nil {
			return nil, err
		}
		cascadeID = &cascade.ID
	}

	child := &models.Session{
		GoalID:           parent.GoalID,
		CascadeID:        cascadeID,
		SourceRepo:       parent.SourceRepo,
		BranchName:       parent.BranchName,
		BaseBranch:       parent.BaseBranch,
		Prompt:           prompt,
		RemediationDepth: parent.RemediationDepth + 1,
	}
	if _, err := store.CreateSessionTx(tx, child); err != nil {
		return nil, err
	}

	if _, err := locks.TransferTx(tx, parent.ID, child.ID); err != nil {
		return nil, err
	}

	metrics.RemediationSpawns.WithLabelValues(fmt.Sprintf("%d", child.RemediationDepth)).Inc()
	return child, nil
}

// dispatchChild starts an agent for a freshly spawned repair session. On
// dispatch failure the child goes failed but keeps its inherited locks, so
// the operator retains exclusivity until terminating it explicitly.
func (e *Engine) dispatchChild(ctx context.Context, childID, prompt string) {
	child, err := e.store.GetSession(ctx, childID)
	if err != nil {
		logger.ErrorCtx(ctx, "child session lookup failed", logger.SessionID(childID), logger.Err(err))
		return
	}
	created, err := e.agents.Create(ctx, agentCreateRequest(child, prompt))
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("agent").Inc()
		logger.ErrorCtx(ctx, "child agent dispatch failed",
			logger.SessionID(childID), logger.Depth(child.RemediationDepth), logger.Err(err))
		if ferr := e.failSession(ctx, childID, fmt.Sprintf("agent dispatch failed: %v", err), false); ferr != nil {
			logger.ErrorCtx(ctx, "child failure transition failed", logger.SessionID(childID), logger.Err(ferr))
		}
		return
	}

	err = e.store.InTx(ctx, func(tx *gorm.DB) error {
		current, err := store.GetSessionLocked(tx, childID)
		if err != nil {
			return err
		}
		if current.Terminal() {
			return nil
		}
		current.ExternalAgentID = &created.ID
		current.AgentURL = created.URL
		current.Status = string(models.SessionStatusExecuting)
		return store.SaveSessionTx(tx, current)
	})
	if err != nil {
		logger.ErrorCtx(ctx, "child transition failed", logger.SessionID(childID), logger.Err(err))
		return
	}
	metrics.SessionTransitions.WithLabelValues(string(models.SessionStatusExecuting)).Inc()
	logger.InfoCtx(ctx, "repair child dispatched",
		logger.SessionID(childID), logger.AgentID(created.ID), logger.Depth(child.RemediationDepth))
}

// HandleCIFailure runs the self-healing loop for a primary pipeline failure:
// fetch logs best-effort, spawn a child repair session with the log excerpt
// in its prompt, fail the parent.
func (e *Engine) HandleCIFailure(ctx context.Context, ev ReviewEvent, checkName string, jobID int64) (*ReviewResult, error) {
	session, err := e.store.FindActiveSessionForBranch(ctx, ev.Repo, ev.Branch)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return &ReviewResult{Outcome: OutcomeNoActiveSession}, nil
		}
		return nil, err
	}
	ctx = logger.WithSession(ctx, session.ID)

	// Log-driven retries on an already-reviewed commit are suppressed the
	// same way duplicate webhook deliveries are.
	if ev.Commit != "" && ev.Commit == session.LastReviewedCommit {
		return &ReviewResult{Outcome: OutcomeDuplicateCommit, SessionID: session.ID}, nil
	}

	owner, name, err := splitRepo(ev.Repo)
	if err != nil {
		return nil, err
	}

	var logs string
	if jobID != 0 {
		logs, err = e.vcs.GetCheckRunLogs(ctx, owner, name, jobID)
		if err != nil {
			metrics.ProviderErrors.WithLabelValues("vcs").Inc()
			logger.WarnCtx(ctx, "CI log fetch failed", logger.Err(err))
			logs = ""
		}
	}
	diff, err := e.vcs.GetCommitDiff(ctx, owner, name, ev.Commit)
	if err != nil {
		logger.WarnCtx(ctx, "commit diff fetch failed", logger.Err(err))
		diff = ""
	}

	report := &auditor.AuditReport{
		Severity: auditor.SeverityMajor,
		Summary:  fmt.Sprintf("CI pipeline %q failed on commit %s", checkName, ev.Commit),
	}
	ciPrompt := buildCIRemediationPrompt(checkName, logs, diff)
	result, err := e.finalizeReview(ctx, session.ID, ev, nil, report, true, ciPrompt)
	if err != nil {
		return nil, err
	}

	if result.ChildSessionID != "" {
		e.dispatchChild(ctx, result.ChildSessionID, ciPrompt)
	}
	return result, nil
}

// ReAudit re-runs the Auditor on the goal's most recently reviewed commit
// and merges the fresh assessment into the goal's criteria. The reviewed
// session is terminal by the time an operator asks for this, so the session
// is left untouched: a re-audit refreshes the goal record, it does not
// re-drive the lifecycle.
func (e *Engine) ReAudit(ctx context.Context, goalID string) (*ReviewResult, error) {
	sessions, err := e.store.ListSessionsForGoal(ctx, goalID)
	if err != nil {
		return nil, err
	}

	// Newest first; any session that has been through a review qualifies.
	var target *models.Session
	for _, s := range sessions {
		if s.LastReviewedCommit != "" {
			target = s
			break
		}
	}
	if target == nil {
		return &ReviewResult{Outcome: OutcomeNoActiveSession}, nil
	}
	ctx = logger.WithSession(ctx, target.ID)
	commit := target.LastReviewedCommit

	owner, name, err := splitRepo(target.SourceRepo)
	if err != nil {
		return nil, err
	}
	diff, err := e.vcs.GetCommitDiff(ctx, owner, name, commit)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("vcs").Inc()
		return nil, fmt.Errorf("diff fetch failed: %w", err)
	}
	if strings.TrimSpace(diff) == "" {
		return e.reviewOutcome(&ReviewResult{Outcome: OutcomeEmptyDiff, SessionID: target.ID}), nil
	}

	criteria, goal, err := e.criteriaForSession(ctx, target)
	if err != nil {
		return nil, err
	}

	reviewCtx, cancel := context.WithTimeout(ctx, e.cfg.ReviewTimeout)
	report, err := e.auditor.Review(reviewCtx, auditor.ReviewInput{
		Repo:     target.SourceRepo,
		Branch:   target.BranchName,
		Commit:   commit,
		Criteria: criteria,
		Diff:     diff,
	})
	cancel()
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("auditor").Inc()
		return nil, fmt.Errorf("auditor review failed: %w", err)
	}

	ev := ReviewEvent{Repo: target.SourceRepo, Branch: target.BranchName, Commit: commit}
	e.postReviewComment(ctx, ev, owner, name, report)

	if goal != nil {
		err = e.store.InTx(ctx, func(tx *gorm.DB) error {
			return mergeCriteriaTx(tx, goal.ID, report.CriteriaAssessment)
		})
		if err != nil {
			return nil, err
		}
	}

	logger.InfoCtx(ctx, "goal re-audited",
		logger.GoalID(goalID), logger.Commit(commit), "severity", string(report.Severity))
	return e.reviewOutcome(&ReviewResult{
		Outcome:   OutcomeReviewed,
		SessionID: target.ID,
		Severity:  report.Severity,
		Summary:   report.Summary,
	}), nil
}
