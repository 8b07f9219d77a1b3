package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/drover-ai/drover/internal/logger"
	"github.com/drover-ai/drover/pkg/controlplane/locks"
	"github.com/drover-ai/drover/pkg/controlplane/models"
	"github.com/drover-ai/drover/pkg/controlplane/store"
	"github.com/drover-ai/drover/pkg/metrics"
	"github.com/drover-ai/drover/pkg/providers/agent"
)

// CreateSpec describes a session to dispatch.
type CreateSpec struct {
	GoalID           *string
	CascadeID        *string
	SourceRepo       string // owner/name
	BranchName       string
	BaseBranch       string
	Prompt           string
	LockPaths        []string
	RemediationDepth int
}

// CreateSession creates a session, reserves its lock set, and dispatches an
// agent for it.
//
// On lock conflict the session is persisted as failed and a
// *LockConflictError is returned alongside it, so callers can report the
// contested paths. On agent dispatch failure the session is failed and its
// locks released.
func (e *Engine) CreateSession(ctx context.Context, spec CreateSpec) (*models.Session, error) {
	session := &models.Session{
		GoalID:           spec.GoalID,
		CascadeID:        spec.CascadeID,
		SourceRepo:       spec.SourceRepo,
		BranchName:       spec.BranchName,
		BaseBranch:       spec.BaseBranch,
		Prompt:           spec.Prompt,
		RemediationDepth: spec.RemediationDepth,
	}
	if _, err := e.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	metrics.SessionTransitions.WithLabelValues(string(models.SessionStatusQueued)).Inc()

	if len(spec.LockPaths) > 0 {
		result, err := e.locks.Acquire(ctx, session.ID, spec.LockPaths)
		if err != nil {
			return nil, err
		}
		if !result.OK {
			metrics.LockAcquisitions.WithLabelValues("conflict").Inc()
			if err := e.failSession(ctx, session.ID, conflictMessage(result.Conflicts), false); err != nil {
				return nil, err
			}
			session.Status = string(models.SessionStatusFailed)
			session.LastError = conflictMessage(result.Conflicts)
			return session, &LockConflictError{Conflicts: result.Conflicts}
		}
		metrics.LockAcquisitions.WithLabelValues("acquired").Inc()
	}

	if err := e.dispatchAgent(ctx, session); err != nil {
		return session, err
	}
	return session, nil
}

// agentCreateRequest builds the Agent Provider request for a session.
func agentCreateRequest(session *models.Session, prompt string) agent.CreateRequest {
	req := agent.CreateRequest{
		Prompt:         prompt,
		SourceRepo:     session.SourceRepo,
		StartingBranch: session.BaseBranch,
		Context: map[string]string{
			"session_id": session.ID,
			"branch":     session.BranchName,
		},
	}
	if session.CascadeID != nil {
		req.Context["cascade_id"] = *session.CascadeID
	}
	return req
}

// dispatchAgent asks the Agent Provider to start an agent for the session
// and transitions it queued → executing. Dispatch is not retried: a failed
// create marks the session failed and releases its locks.
func (e *Engine) dispatchAgent(ctx context.Context, session *models.Session) error {
	created, err := e.agents.Create(ctx, agentCreateRequest(session, session.Prompt))
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("agent").Inc()
		logger.ErrorCtx(ctx, "agent dispatch failed",
			logger.SessionID(session.ID), logger.Err(err))
		if ferr := e.failSession(ctx, session.ID, fmt.Sprintf("agent dispatch failed: %v", err), true); ferr != nil {
			return ferr
		}
		session.Status = string(models.SessionStatusFailed)
		return fmt.Errorf("agent dispatch failed: %w", err)
	}

	err = e.store.InTx(ctx, func(tx *gorm.DB) error {
		current, err := store.GetSessionLocked(tx, session.ID)
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
		return err
	}

	metrics.SessionTransitions.WithLabelValues(string(models.SessionStatusExecuting)).Inc()
	session.ExternalAgentID = &created.ID
	session.AgentURL = created.URL
	session.Status = string(models.SessionStatusExecuting)
	logger.InfoCtx(ctx, "agent dispatched",
		logger.SessionID(session.ID), logger.AgentID(created.ID))
	return nil
}

// failSession transitions a session to failed with lastError set.
// No-op on already-terminal sessions. Locks are released in the same
// transaction when releaseLocks is true.
func (e *Engine) failSession(ctx context.Context, sessionID, lastError string, releaseLocks bool) error {
	var transitioned bool
	err := e.store.InTx(ctx, func(tx *gorm.DB) error {
		session, err := store.GetSessionLocked(tx, sessionID)
		if err != nil {
			return err
		}
		if session.Terminal() {
			return nil
		}
		session.Status = string(models.SessionStatusFailed)
		session.LastError = lastError
		if err := store.SaveSessionTx(tx, session); err != nil {
			return err
		}
		if releaseLocks {
			if _, err := locks.ReleaseTx(tx, sessionID); err != nil {
				return err
			}
		}
		transitioned = true
		return nil
	})
	if err == nil && transitioned {
		metrics.SessionTransitions.WithLabelValues(string(models.SessionStatusFailed)).Inc()
	}
	return err
}

// completeSession transitions a session to completed, releases its locks,
// and attaches the change proposal URL to the owning goal's review
// artifacts, all in one transaction. No-op on already-terminal sessions.
func (e *Engine) completeSession(ctx context.Context, sessionID, artifactURL string) error {
	var transitioned bool
	err := e.store.InTx(ctx, func(tx *gorm.DB) error {
		session, err := store.GetSessionLocked(tx, sessionID)
		if err != nil {
			return err
		}
		if session.Terminal() {
			return nil
		}
		session.Status = string(models.SessionStatusCompleted)
		session.LastError = ""
		if err := store.SaveSessionTx(tx, session); err != nil {
			return err
		}
		if _, err := locks.ReleaseTx(tx, sessionID); err != nil {
			return err
		}
		if artifactURL != "" {
			if err := appendArtifactTx(tx, session, artifactURL); err != nil {
				return err
			}
		}
		transitioned = true
		return nil
	})
	if err == nil && transitioned {
		metrics.SessionTransitions.WithLabelValues(string(models.SessionStatusCompleted)).Inc()
	}
	return err
}

// appendArtifactTx records a change proposal URL on the session's goal,
// deduplicated by (url, external agent id). Detached sessions are fine.
func appendArtifactTx(tx *gorm.DB, session *models.Session, url string) error {
	if session.GoalID == nil {
		return nil
	}
	goal, err := store.GetGoalLocked(tx, *session.GoalID)
	if err != nil {
		if errors.Is(err, models.ErrGoalNotFound) {
			return nil
		}
		return err
	}
	agentID := ""
	if session.ExternalAgentID != nil {
		agentID = *session.ExternalAgentID
	}
	changed, err := goal.AppendReviewArtifact(models.ReviewArtifact{
		URL:             url,
		SessionID:       session.ID,
		ExternalAgentID: agentID,
		AddedAt:         time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return store.SaveGoalTx(tx, goal)
}

// Terminate force-terminates a session. Idempotent: an already-terminal
// session keeps its status, but leftover locks are still released so the
// operator can clean up after a failed remediation child that inherited
// its parent's lock set.
func (e *Engine) Terminate(ctx context.Context, sessionID string) error {
	var transitioned bool
	err := e.store.InTx(ctx, func(tx *gorm.DB) error {
		session, err := store.GetSessionLocked(tx, sessionID)
		if err != nil {
			return err
		}
		if !session.Terminal() {
			session.Status = string(models.SessionStatusFailed)
			session.LastError = "terminated by operator"
			if err := store.SaveSessionTx(tx, session); err != nil {
				return err
			}
			transitioned = true
		}
		_, err = locks.ReleaseTx(tx, sessionID)
		return err
	})
	if err == nil && transitioned {
		metrics.SessionTransitions.WithLabelValues(string(models.SessionStatusFailed)).Inc()
	}
	return err
}

// SyncResult is the outcome of reconciling one session against the Agent
// Provider.
type SyncResult struct {
	Session           *models.Session `json:"session"`
	ExternalStatus    agent.Status    `json:"external_status,omitempty"`
	ChangeProposalURL string          `json:"change_proposal_url,omitempty"`
}

// Sync reconciles one session against the Agent Provider.
//
// Status mapping: PLANNING and RUNNING keep the session executing,
// COMPLETED completes it, FAILED and CANCELLED fail it, anything else is a
// no-op. Terminal sessions are returned as-is. On completion the change
// proposal URL, if any, is attached to the goal's review artifacts.
func (e *Engine) Sync(ctx context.Context, sessionID string) (*SyncResult, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Terminal() || session.ExternalAgentID == nil {
		return &SyncResult{Session: session}, nil
	}

	external, err := e.agents.Get(ctx, *session.ExternalAgentID)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("agent").Inc()
		return nil, err
	}

	now := time.Now().UTC()
	switch external.Status {
	case agent.StatusPlanning, agent.StatusRunning:
		err = e.store.InTx(ctx, func(tx *gorm.DB) error {
			current, err := store.GetSessionLocked(tx, sessionID)
			if err != nil {
				return err
			}
			if current.Terminal() {
				return nil
			}
			// Verifying outranks executing: CI already saw a proposal.
			if current.GetStatus() == models.SessionStatusQueued {
				current.Status = string(models.SessionStatusExecuting)
			}
			current.AgentURL = external.URL
			current.LastSyncedAt = &now
			return store.SaveSessionTx(tx, current)
		})
	case agent.StatusCompleted:
		err = e.completeSession(ctx, sessionID, external.ChangeProposalURL)
	case agent.StatusFailed, agent.StatusCancelled:
		err = e.failSession(ctx, sessionID, fmt.Sprintf("agent provider reported %s", external.Status), true)
	default:
		logger.WarnCtx(ctx, "unknown agent status, skipping",
			logger.SessionID(sessionID), "external_status", string(external.Status))
	}
	if err != nil {
		return nil, err
	}

	if err := e.touchSyncedAt(ctx, sessionID, now); err != nil {
		return nil, err
	}

	session, err = e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SyncResult{
		Session:           session,
		ExternalStatus:    external.Status,
		ChangeProposalURL: external.ChangeProposalURL,
	}, nil
}

// touchSyncedAt records the reconciliation timestamp without disturbing
// other fields.
func (e *Engine) touchSyncedAt(ctx context.Context, sessionID string, at time.Time) error {
	return e.store.DB().WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ?", sessionID).
		Update("last_synced_at", at).Error
}

// SyncOutcome is one entry of a batch reconciliation.
type SyncOutcome struct {
	SessionID string      `json:"session_id"`
	Result    *SyncResult `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// SyncBatch reconciles many sessions, isolating per-session failures.
func (e *Engine) SyncBatch(ctx context.Context, sessionIDs []string) []SyncOutcome {
	outcomes := make([]SyncOutcome, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		result, err := e.Sync(ctx, id)
		outcome := SyncOutcome{SessionID: id, Result: result}
		if err != nil {
			outcome.Result = nil
			outcome.Error = err.Error()
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// promoteToVerifying applies a primary CI success to the branch's active
// session: executing moves to verifying, anything else is left alone.
func (e *Engine) promoteToVerifying(ctx context.Context, repo, branch string) (string, error) {
	session, err := e.store.FindActiveSessionForBranch(ctx, repo, branch)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return OutcomeNoActiveSession, nil
		}
		return "", err
	}

	var transitioned bool
	err = e.store.InTx(ctx, func(tx *gorm.DB) error {
		current, err := store.GetSessionLocked(tx, session.ID)
		if err != nil {
			return err
		}
		if current.GetStatus() != models.SessionStatusExecuting {
			return nil
		}
		current.Status = string(models.SessionStatusVerifying)
		if err := store.SaveSessionTx(tx, current); err != nil {
			return err
		}
		transitioned = true
		return nil
	})
	if err != nil {
		return "", err
	}
	if !transitioned {
		return OutcomeIgnored, nil
	}
	metrics.SessionTransitions.WithLabelValues(string(models.SessionStatusVerifying)).Inc()
	logger.InfoCtx(ctx, "primary CI passed, session verifying",
		logger.SessionID(session.ID), logger.Branch(branch))
	return "verifying", nil
}

// HandleProposalClosed applies a change-proposal close to the branch's
// active session: merged completes it and records the artifact, unmerged
// fails it. Locks are released either way.
func (e *Engine) HandleProposalClosed(ctx context.Context, repo, branch, proposalURL string, merged bool) (string, error) {
	session, err := e.store.FindActiveSessionForBranch(ctx, repo, branch)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return OutcomeNoActiveSession, nil
		}
		return "", err
	}

	if merged {
		if err := e.completeSession(ctx, session.ID, proposalURL); err != nil {
			return "", err
		}
		logger.InfoCtx(ctx, "change proposal merged, session completed",
			logger.SessionID(session.ID), logger.Branch(branch))
		return OutcomeSessionCompleted, nil
	}

	if err := e.failSession(ctx, session.ID, "change proposal closed without merge", true); err != nil {
		return "", err
	}
	logger.InfoCtx(ctx, "change proposal closed unmerged, session failed",
		logger.SessionID(session.ID), logger.Branch(branch))
	return OutcomeSessionFailed, nil
}
