package logger

import "log/slog"

// Standard field keys for structured logging. Use these keys consistently
// across all log statements so dispatch, review, and lock events can be
// correlated in log aggregation.
const (
	// Distributed tracing
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID

	// HTTP / webhook ingress
	KeyRequestID = "request_id" // chi request id
	KeyEvent     = "event"      // webhook event type: push, pull_request, check_run
	KeyAction    = "action"     // webhook action: opened, synchronize, closed, completed
	KeyOutcome   = "outcome"    // handler outcome: reviewed, duplicate_commit_skipped, ...

	// Entities
	KeySessionID = "session_id"
	KeyGoalID    = "goal_id"
	KeyCascadeID = "cascade_id"
	KeyAgentID   = "agent_id" // external agent id at the Agent Provider

	// Version control
	KeyRepo   = "repo"
	KeyBranch = "branch"
	KeyCommit = "commit"
	KeyPR     = "pr" // pull request number

	// Locking
	KeyPath   = "path"
	KeyHeldBy = "held_by" // session holding a contested lock
	KeyLocked = "locked"  // number of paths locked

	// Lifecycle
	KeyStatus = "status"
	KeyDepth  = "depth" // remediation depth

	// Review / cascade
	KeySeverity   = "severity"
	KeyConfidence = "confidence"
	KeyJobs       = "jobs"
	KeyDispatched = "dispatched"
	KeyConflicts  = "conflicts"
	KeyFailed     = "failed"

	// Providers
	KeyProvider = "provider" // agent, vcs, auditor

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// Field constructors for type safety.

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr { return slog.String(KeySpanID, id) }

// SessionID returns a slog.Attr for a session identifier
func SessionID(id string) slog.Attr { return slog.String(KeySessionID, id) }

// GoalID returns a slog.Attr for a goal identifier
func GoalID(id string) slog.Attr { return slog.String(KeyGoalID, id) }

// CascadeID returns a slog.Attr for a cascade identifier
func CascadeID(id string) slog.Attr { return slog.String(KeyCascadeID, id) }

// AgentID returns a slog.Attr for an external agent identifier
func AgentID(id string) slog.Attr { return slog.String(KeyAgentID, id) }

// Repo returns a slog.Attr for a repository in owner/name form
func Repo(repo string) slog.Attr { return slog.String(KeyRepo, repo) }

// Branch returns a slog.Attr for a branch name
func Branch(b string) slog.Attr { return slog.String(KeyBranch, b) }

// Commit returns a slog.Attr for a commit SHA
func Commit(sha string) slog.Attr { return slog.String(KeyCommit, sha) }

// Path returns a slog.Attr for a locked file path
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }

// Status returns a slog.Attr for a session or cascade status
func Status(s string) slog.Attr { return slog.String(KeyStatus, s) }

// Depth returns a slog.Attr for a remediation depth
func Depth(d int) slog.Attr { return slog.Int(KeyDepth, d) }

// Severity returns a slog.Attr for an audit severity
func Severity(s string) slog.Attr { return slog.String(KeySeverity, s) }

// Outcome returns a slog.Attr for a handler outcome
func Outcome(o string) slog.Attr { return slog.String(KeyOutcome, o) }

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
