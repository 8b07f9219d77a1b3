package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/drover-ai/drover/internal/logger"
	"github.com/drover-ai/drover/pkg/controlplane/locks"
	"github.com/drover-ai/drover/pkg/controlplane/models"
	"github.com/drover-ai/drover/pkg/metrics"
	"github.com/drover-ai/drover/pkg/providers/auditor"
)

// AnalyzeRequest describes a commit to analyze for blast radius.
type AnalyzeRequest struct {
	Repo             string   // owner/name
	Branch           string
	Commit           string
	ChangedPaths     []string
	GoalID           *string
	TriggerSessionID *string
}

// DispatchedSession is one repair job's dispatch outcome.
type DispatchedSession struct {
	SessionID string   `json:"session_id"`
	JobID     string   `json:"job_id"`
	Files     []string `json:"files"`
	AgentID   string   `json:"agent_id,omitempty"`
	AgentURL  string   `json:"agent_url,omitempty"`
	Status    string   `json:"status"`
	Error     string   `json:"error,omitempty"`
}

// CascadeTelemetry is the per-dispatch measurement persisted against the
// cascade row and attached to the response.
type CascadeTelemetry struct {
	DispatchLatencyMs int64 `json:"dispatch_latency_ms"`
	DispatchedCount   int   `json:"dispatched_count"`
	ConflictCount     int   `json:"conflict_count"`
	FailedCount       int   `json:"failed_count"`
}

// CascadeResponse is the cascade analysis and dispatch outcome.
type CascadeResponse struct {
	CascadeID          string              `json:"cascade_id,omitempty"`
	IsCascade          bool                `json:"is_cascade"`
	Summary            string              `json:"summary,omitempty"`
	Confidence         float64             `json:"confidence,omitempty"`
	CoreFilesChanged   []string            `json:"core_files_changed,omitempty"`
	DownstreamFiles    []string            `json:"downstream_files,omitempty"`
	DispatchedSessions []DispatchedSession `json:"dispatched_sessions,omitempty"`
	LockConflicts      []locks.Conflict    `json:"lock_conflicts,omitempty"`
	Telemetry          CascadeTelemetry    `json:"telemetry"`
}

// Analyze runs blast-radius analysis on a commit and dispatches repair
// sessions for the surviving jobs.
//
// The engine enforces its own invariants on top of whatever the oracle
// returns: job disjointness, the confidence floor, and the parallelism cap.
// A *LockConflictError is returned when every job was blocked by locks and
// none dispatched, so the HTTP layer can answer 409 with the contested
// paths.
func (e *Engine) Analyze(ctx context.Context, req AnalyzeRequest) (*CascadeResponse, error) {
	coreFiles := e.matchCoreFiles(req.ChangedPaths)
	if len(coreFiles) == 0 {
		return &CascadeResponse{IsCascade: false, Summary: "no core files changed"}, nil
	}

	cascade := &models.Cascade{
		TriggerSessionID: req.TriggerSessionID,
		GoalID:           req.GoalID,
	}
	if err := cascade.SetCoreFiles(coreFiles); err != nil {
		return nil, err
	}
	if _, err := e.store.CreateCascade(ctx, cascade); err != nil {
		return nil, err
	}
	ctx = logger.WithCascade(ctx, cascade.ID)

	owner, name, err := splitRepo(req.Repo)
	if err != nil {
		return nil, err
	}
	diff, err := e.vcs.GetCommitDiff(ctx, owner, name, req.Commit)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("vcs").Inc()
		e.failCascade(ctx, cascade, fmt.Sprintf("diff fetch failed: %v", err))
		return nil, fmt.Errorf("diff fetch failed: %w", err)
	}

	analysisCtx, cancel := context.WithTimeout(ctx, e.cfg.AnalysisTimeout)
	analysis, err := e.auditor.Decompose(analysisCtx, auditor.DecomposeInput{
		Repo:         req.Repo,
		Branch:       req.Branch,
		Commit:       req.Commit,
		CoreDiffs:    []string{diff},
		ChangedPaths: req.ChangedPaths,
	})
	cancel()
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("auditor").Inc()
		e.failCascade(ctx, cascade, fmt.Sprintf("decompose failed: %v", err))
		return nil, fmt.Errorf("auditor decompose failed: %w", err)
	}

	cascade.Summary = analysis.Summary
	cascade.Confidence = analysis.Confidence
	if err := cascade.SetDownstreamFiles(analysis.DownstreamFiles); err != nil {
		e.failCascade(ctx, cascade, fmt.Sprintf("downstream files encode failed: %v", err))
		return nil, err
	}

	resp := &CascadeResponse{
		CascadeID:        cascade.ID,
		IsCascade:        analysis.IsCascade,
		Summary:          analysis.Summary,
		Confidence:       analysis.Confidence,
		CoreFilesChanged: coreFiles,
		DownstreamFiles:  analysis.DownstreamFiles,
	}

	if !analysis.IsCascade {
		cascade.Status = string(models.CascadeStatusCompleted)
		if err := e.store.SaveCascade(ctx, cascade); err != nil {
			return nil, err
		}
		return resp, nil
	}

	jobs := sanitizeJobs(analysis.RepairJobs, e.cfg.MaxParallelAgents)
	cascade.RepairJobCount = len(jobs)

	if analysis.Confidence < e.cfg.MinConfidence || len(jobs) == 0 {
		// Recorded but not dispatched.
		logger.InfoCtx(ctx, "cascade below confidence floor, not dispatching",
			logger.Repo(req.Repo), "confidence", analysis.Confidence)
		cascade.Status = string(models.CascadeStatusFailed)
		if err := e.store.SaveCascade(ctx, cascade); err != nil {
			return nil, err
		}
		metrics.CascadeDispatches.WithLabelValues("failed").Inc()
		return resp, nil
	}

	goalID := req.GoalID
	if goalID == nil {
		id, err := e.createSyntheticGoal(ctx, analysis, jobs)
		if err != nil {
			e.failCascade(ctx, cascade, fmt.Sprintf("synthetic goal create failed: %v", err))
			return nil, err
		}
		goalID = &id
		cascade.GoalID = goalID
	}

	start := time.Now()
	resp.DispatchedSessions, resp.LockConflicts = e.dispatchJobs(ctx, cascade.ID, goalID, req, jobs)

	telemetry := CascadeTelemetry{DispatchLatencyMs: time.Since(start).Milliseconds()}
	for _, s := range resp.DispatchedSessions {
		switch {
		case s.Status == string(models.SessionStatusExecuting):
			telemetry.DispatchedCount++
		default:
			telemetry.FailedCount++
		}
	}
	telemetry.ConflictCount = len(resp.LockConflicts)
	resp.Telemetry = telemetry
	metrics.CascadeDispatchLatency.Observe(time.Since(start).Seconds())

	cascade.DispatchLatencyMs = telemetry.DispatchLatencyMs
	cascade.DispatchedCount = telemetry.DispatchedCount
	cascade.ConflictCount = telemetry.ConflictCount
	cascade.FailedCount = telemetry.FailedCount
	if telemetry.DispatchedCount > 0 {
		cascade.Status = string(models.CascadeStatusDispatched)
		metrics.CascadeDispatches.WithLabelValues("dispatched").Inc()
	} else {
		cascade.Status = string(models.CascadeStatusFailed)
		metrics.CascadeDispatches.WithLabelValues("failed").Inc()
	}
	if err := e.store.SaveCascade(ctx, cascade); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "cascade dispatch finished",
		logger.Repo(req.Repo), logger.Commit(req.Commit),
		"jobs", len(jobs), "dispatched", telemetry.DispatchedCount,
		"conflicts", telemetry.ConflictCount, "failed", telemetry.FailedCount)

	if telemetry.DispatchedCount == 0 && telemetry.ConflictCount > 0 {
		return resp, &LockConflictError{Conflicts: resp.LockConflicts}
	}
	return resp, nil
}

// BatchRequest dispatches operator-supplied repair jobs under one cascade,
// bypassing the oracle.
type BatchRequest struct {
	Repo   string
	Branch string
	GoalID *string
	Jobs   []auditor.RepairJob
}

// BatchResponse is the outcome of a batch dispatch.
type BatchResponse struct {
	BatchID         string              `json:"batch_id"`
	DispatchedCount int                 `json:"dispatched_count"`
	FailedCount     int                 `json:"failed_count"`
	Sessions        []DispatchedSession `json:"sessions"`
	LockConflicts   []locks.Conflict    `json:"lock_conflicts,omitempty"`
	Telemetry       CascadeTelemetry    `json:"telemetry"`
}

// DispatchBatch runs the cascade dispatch path on operator-supplied jobs.
// The same invariants apply: disjoint file sets, the parallelism cap, and
// the conflict-vs-success response contract.
func (e *Engine) DispatchBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	jobs := sanitizeJobs(req.Jobs, e.cfg.MaxParallelAgents)
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no dispatchable jobs")
	}

	cascade := &models.Cascade{
		GoalID:         req.GoalID,
		Summary:        fmt.Sprintf("operator batch of %d jobs", len(jobs)),
		RepairJobCount: len(jobs),
		Confidence:     1.0,
	}
	if _, err := e.store.CreateCascade(ctx, cascade); err != nil {
		return nil, err
	}
	ctx = logger.WithCascade(ctx, cascade.ID)

	goalID := req.GoalID
	if goalID == nil {
		id, err := e.createSyntheticGoal(ctx, &auditor.CascadeAnalysis{Summary: cascade.Summary}, jobs)
		if err != nil {
			e.failCascade(ctx, cascade, fmt.Sprintf("synthetic goal create failed: %v", err))
			return nil, err
		}
		goalID = &id
		cascade.GoalID = goalID
	}

	start := time.Now()
	analyzeReq := AnalyzeRequest{Repo: req.Repo, Branch: req.Branch}
	sessions, conflicts := e.dispatchJobs(ctx, cascade.ID, goalID, analyzeReq, jobs)

	resp := &BatchResponse{
		BatchID:       cascade.ID,
		Sessions:      sessions,
		LockConflicts: conflicts,
	}
	resp.Telemetry.DispatchLatencyMs = time.Since(start).Milliseconds()
	for _, s := range sessions {
		if s.Status == string(models.SessionStatusExecuting) {
			resp.Telemetry.DispatchedCount++
		} else {
			resp.Telemetry.FailedCount++
		}
	}
	resp.Telemetry.ConflictCount = len(conflicts)
	resp.DispatchedCount = resp.Telemetry.DispatchedCount
	resp.FailedCount = resp.Telemetry.FailedCount
	metrics.CascadeDispatchLatency.Observe(time.Since(start).Seconds())

	cascade.DispatchLatencyMs = resp.Telemetry.DispatchLatencyMs
	cascade.DispatchedCount = resp.Telemetry.DispatchedCount
	cascade.ConflictCount = resp.Telemetry.ConflictCount
	cascade.FailedCount = resp.Telemetry.FailedCount
	if resp.DispatchedCount > 0 {
		cascade.Status = string(models.CascadeStatusDispatched)
		metrics.CascadeDispatches.WithLabelValues("dispatched").Inc()
	} else {
		cascade.Status = string(models.CascadeStatusFailed)
		metrics.CascadeDispatches.WithLabelValues("failed").Inc()
	}
	if err := e.store.SaveCascade(ctx, cascade); err != nil {
		return nil, err
	}

	if resp.DispatchedCount == 0 && resp.Telemetry.ConflictCount > 0 {
		return resp, &LockConflictError{Conflicts: conflicts}
	}
	return resp, nil
}

// failCascade records a terminal analysis failure; save errors are logged,
// not propagated, since the original failure matters more.
func (e *Engine) failCascade(ctx context.Context, cascade *models.Cascade, summary string) {
	cascade.Status = string(models.CascadeStatusFailed)
	cascade.Summary = summary
	if err := e.store.SaveCascade(ctx, cascade); err != nil {
		logger.ErrorCtx(ctx, "cascade save failed", logger.CascadeID(cascade.ID), logger.Err(err))
	}
	metrics.CascadeDispatches.WithLabelValues("failed").Inc()
}

// sanitizeJobs enforces the dispatch invariants on oracle output: jobs are
// ordered by priority then original position, duplicate paths are dropped
// from later jobs, empty jobs are discarded, and the list is truncated to
// the parallelism cap.
func sanitizeJobs(jobs []auditor.RepairJob, maxParallel int) []auditor.RepairJob {
	ordered := make([]auditor.RepairJob, len(jobs))
	copy(ordered, jobs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority.Rank() < ordered[j].Priority.Rank()
	})

	seen := make(map[string]bool)
	out := make([]auditor.RepairJob, 0, len(ordered))
	for _, job := range ordered {
		files := make([]string, 0, len(job.Files))
		for _, f := range job.Files {
			if f == "" || seen[f] {
				continue
			}
			seen[f] = true
			files = append(files, f)
		}
		if len(files) == 0 {
			continue
		}
		job.Files = files
		out = append(out, job)
		if len(out) == maxParallel {
			break
		}
	}
	return out
}

// createSyntheticGoal makes a goal for a cascade dispatched without one.
// Its acceptance criteria are the repair prompts themselves, so the review
// loop has something concrete to audit repair sessions against.
func (e *Engine) createSyntheticGoal(ctx context.Context, analysis *auditor.CascadeAnalysis, jobs []auditor.RepairJob) (string, error) {
	criteria := make([]models.Criterion, 0, len(jobs))
	for _, job := range jobs {
		criteria = append(criteria, models.Criterion{Text: job.Prompt})
	}
	goal := &models.Goal{
		Title:       "Cascade repair: " + truncate(analysis.Summary, 120),
		Description: analysis.Summary,
		Status:      string(models.GoalStatusInProgress),
	}
	if err := goal.SetCriteria(criteria); err != nil {
		return "", err
	}
	return e.store.CreateGoal(ctx, goal)
}

// dispatchJobs runs repair-job dispatch in parallel. Job file sets are
// disjoint after sanitizeJobs, so conflicts only arise against other
// cascades' locks.
func (e *Engine) dispatchJobs(ctx context.Context, cascadeID string, goalID *string, req AnalyzeRequest, jobs []auditor.RepairJob) ([]DispatchedSession, []locks.Conflict) {
	results := make([]DispatchedSession, len(jobs))
	var mu sync.Mutex
	var conflicts []locks.Conflict

	g, gctx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		g.Go(func() error {
			outcome, jobConflicts := e.dispatchJob(gctx, cascadeID, goalID, req, job)
			results[i] = outcome
			if len(jobConflicts) > 0 {
				mu.Lock()
				conflicts = append(conflicts, jobConflicts...)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, conflicts
}

// dispatchJob creates one repair session, reserves its files, and starts an
// agent for it. Failures are recorded on the session, never propagated: a
// cascade round always reports per-job outcomes.
func (e *Engine) dispatchJob(ctx context.Context, cascadeID string, goalID *string, req AnalyzeRequest, job auditor.RepairJob) (DispatchedSession, []locks.Conflict) {
	outcome := DispatchedSession{JobID: job.ID, Files: job.Files}

	branch := fmt.Sprintf("drover/cascade-%.8s/%s", cascadeID, job.ID)
	session, err := e.CreateSession(ctx, CreateSpec{
		GoalID:     goalID,
		CascadeID:  &cascadeID,
		SourceRepo: req.Repo,
		BranchName: branch,
		BaseBranch: req.Branch,
		Prompt:     job.Prompt,
		LockPaths:  job.Files,
	})
	if session != nil {
		outcome.SessionID = session.ID
		outcome.Status = session.Status
		outcome.Error = session.LastError
		if session.ExternalAgentID != nil {
			outcome.AgentID = *session.ExternalAgentID
		}
		outcome.AgentURL = session.AgentURL
	}
	if err != nil {
		var conflictErr *LockConflictError
		if errors.As(err, &conflictErr) {
			return outcome, conflictErr.Conflicts
		}
		if outcome.Error == "" {
			outcome.Error = err.Error()
		}
		if outcome.Status == "" {
			outcome.Status = string(models.SessionStatusFailed)
		}
	}
	return outcome, nil
}

// matchCoreFiles filters changed paths through the configured core glob set.
func (e *Engine) matchCoreFiles(paths []string) []string {
	if len(e.cfg.CoreFiles) == 0 {
		return nil
	}
	var core []string
	for _, p := range paths {
		if matchesAnyGlob(e.cfg.CoreFiles, p) {
			core = append(core, p)
		}
	}
	return core
}
