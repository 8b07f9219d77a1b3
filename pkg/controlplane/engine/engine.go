// Package engine implements the dispatch-and-remediation core: the session
// lifecycle state machine, the review loop, and the cascade engine.
//
// The engine is stateless across requests. All shared state lives in the
// registry store; all concurrency resolves to the lock manager. External
// systems (Agent Provider, VCS Provider, Auditor oracle) are consumed
// through narrow interfaces so the engine can be validated with fakes.
package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/drover-ai/drover/pkg/controlplane/locks"
	"github.com/drover-ai/drover/pkg/controlplane/store"
	"github.com/drover-ai/drover/pkg/providers/agent"
	"github.com/drover-ai/drover/pkg/providers/auditor"
	"github.com/drover-ai/drover/pkg/providers/vcs"
)

// Review outcomes reported to webhook senders and recorded in metrics.
const (
	OutcomeReviewed           = "reviewed"
	OutcomeNoActiveSession    = "no_active_session"
	OutcomeDuplicateCommit    = "duplicate_commit_skipped"
	OutcomeEmptyDiff          = "empty_diff_skipped"
	OutcomeRemediationSpawned = "remediation_spawned"
	OutcomeManualIntervention = "manual_intervention_required"
	OutcomeSessionCompleted   = "session_completed"
	OutcomeSessionFailed      = "session_failed"
	OutcomeAutomatedSkipped   = "automated_commit_skipped"
	OutcomeIgnored            = "ignored"
)

// Config holds the engine tunables.
type Config struct {
	// MaxParallelAgents caps repair jobs dispatched per cascade.
	MaxParallelAgents int `mapstructure:"max_parallel_agents" yaml:"max_parallel_agents" validate:"min=1,max=50"`

	// MinConfidence is the floor below which a cascade analysis is
	// recorded but not dispatched.
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence" validate:"min=0,max=1"`

	// AnalysisTimeout bounds the Auditor decompose call.
	AnalysisTimeout time.Duration `mapstructure:"analysis_timeout" yaml:"analysis_timeout"`

	// ReviewTimeout bounds the Auditor review call.
	ReviewTimeout time.Duration `mapstructure:"review_timeout" yaml:"review_timeout"`

	// CoreFiles are glob patterns; a push touching a matching path
	// triggers cascade analysis.
	CoreFiles []string `mapstructure:"core_files" yaml:"core_files"`

	// PrimaryPipelines is the allow-list of CI check names that drive
	// session transitions. Empty means every pipeline is primary.
	PrimaryPipelines []string `mapstructure:"primary_pipelines" yaml:"primary_pipelines"`

	// BotAuthors are commit author logins whose pushes are skipped to
	// prevent self-triggering.
	BotAuthors []string `mapstructure:"bot_authors" yaml:"bot_authors"`

	// SkipMarker in a commit message marks an automated commit.
	SkipMarker string `mapstructure:"skip_marker" yaml:"skip_marker"`
}

// ApplyDefaults fills zero values with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxParallelAgents == 0 {
		c.MaxParallelAgents = 5
	}
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.7
	}
	if c.AnalysisTimeout == 0 {
		c.AnalysisTimeout = 60 * time.Second
	}
	if c.ReviewTimeout == 0 {
		c.ReviewTimeout = 30 * time.Second
	}
	if c.SkipMarker == "" {
		c.SkipMarker = "[Auto]"
	}
}

// Engine is the dispatch-and-remediation core.
type Engine struct {
	store   store.Store
	locks   *locks.Manager
	agents  agent.Provider
	vcs     vcs.Provider
	auditor auditor.Oracle
	cfg     Config
}

// New creates an engine. Zero config fields are filled with defaults.
func New(s store.Store, lm *locks.Manager, agents agent.Provider, v vcs.Provider, oracle auditor.Oracle, cfg Config) *Engine {
	cfg.ApplyDefaults()
	return &Engine{
		store:   s,
		locks:   lm,
		agents:  agents,
		vcs:     v,
		auditor: oracle,
		cfg:     cfg,
	}
}

// Locks exposes the lock manager for the HTTP surface.
func (e *Engine) Locks() *locks.Manager {
	return e.locks
}

// LockConflictError reports that lock acquisition blocked a dispatch.
// The HTTP layer maps it to a structured 409.
type LockConflictError struct {
	Conflicts []locks.Conflict
}

// Error implements the error interface.
func (e *LockConflictError) Error() string {
	paths := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		paths = append(paths, c.Path)
	}
	return fmt.Sprintf("lock conflict on %s", strings.Join(paths, ", "))
}

// conflictMessage renders a conflict list for Session.LastError.
func conflictMessage(conflicts []locks.Conflict) string {
	parts := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		if c.HeldBy == "" {
			parts = append(parts, c.Path)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (held by %s)", c.Path, c.HeldBy))
	}
	return "LockConflict: " + strings.Join(parts, ", ")
}

// splitRepo splits "owner/name" into its parts.
func splitRepo(repo string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("invalid repository %q, expected owner/name", repo)
	}
	return owner, name, nil
}

// truncate bounds s to n runes for prompts and log excerpts, never cutting
// inside a UTF-8 sequence.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "\n... (truncated)"
		}
		count++
	}
	return s
}
