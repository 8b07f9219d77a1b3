package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for control plane operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Webhook delivery attributes
	// ========================================================================
	AttrEventType = "webhook.event_type"
	AttrDelivery  = "webhook.delivery_id"

	// ========================================================================
	// Repository attributes
	// ========================================================================
	AttrRepo   = "vcs.repository"
	AttrBranch = "vcs.branch"
	AttrCommit = "vcs.commit"

	// ========================================================================
	// Session lifecycle attributes
	// ========================================================================
	AttrSessionID   = "session.id"
	AttrSessionFrom = "session.from_status"
	AttrSessionTo   = "session.to_status"
	AttrAgentID     = "session.agent_id"
	AttrDepth       = "session.remediation_depth"

	// ========================================================================
	// Review attributes
	// ========================================================================
	AttrGoalID   = "goal.id"
	AttrSeverity = "review.severity"
	AttrOutcome  = "review.outcome"

	// ========================================================================
	// Cascade attributes
	// ========================================================================
	AttrCascadeID  = "cascade.id"
	AttrJobCount   = "cascade.job_count"
	AttrConfidence = "cascade.confidence"

	// ========================================================================
	// Lock attributes
	// ========================================================================
	AttrLockPath  = "lock.path"
	AttrLockCount = "lock.count"

	// ========================================================================
	// Provider attributes
	// ========================================================================
	AttrProvider = "provider.name" // agent, vcs, auditor
)

// Span names for operations.
// Format: <component>.<operation>
const (
	SpanWebhookReceive  = "webhook.receive"
	SpanReview          = "engine.review"
	SpanCascadeAnalyze  = "engine.cascade_analyze"
	SpanCascadeDispatch = "engine.cascade_dispatch"
	SpanSessionCreate   = "engine.session_create"
	SpanSessionSync     = "engine.session_sync"
	SpanLockAcquire     = "locks.acquire"
	SpanLockRelease     = "locks.release"
	SpanAgentCreate     = "provider.agent_create"
	SpanAuditorReview   = "provider.auditor_review"
	SpanAuditorDecomp   = "provider.auditor_decompose"
	SpanVCSDiff         = "provider.vcs_diff"
)

// EventType returns an attribute for the webhook event type
func EventType(t string) attribute.KeyValue {
	return attribute.String(AttrEventType, t)
}

// Repo returns an attribute for the owner/name repository slug
func Repo(repo string) attribute.KeyValue {
	return attribute.String(AttrRepo, repo)
}

// Branch returns an attribute for the branch name
func Branch(branch string) attribute.KeyValue {
	return attribute.String(AttrBranch, branch)
}

// Commit returns an attribute for the commit SHA
func Commit(sha string) attribute.KeyValue {
	return attribute.String(AttrCommit, sha)
}

// SessionID returns an attribute for the session id
func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

// AgentID returns an attribute for the external agent id
func AgentID(id string) attribute.KeyValue {
	return attribute.String(AttrAgentID, id)
}

// Depth returns an attribute for the remediation depth
func Depth(depth int) attribute.KeyValue {
	return attribute.Int(AttrDepth, depth)
}

// GoalID returns an attribute for the goal id
func GoalID(id string) attribute.KeyValue {
	return attribute.String(AttrGoalID, id)
}

// Severity returns an attribute for the review severity
func Severity(s string) attribute.KeyValue {
	return attribute.String(AttrSeverity, s)
}

// Outcome returns an attribute for the review outcome
func Outcome(o string) attribute.KeyValue {
	return attribute.String(AttrOutcome, o)
}

// CascadeID returns an attribute for the cascade id
func CascadeID(id string) attribute.KeyValue {
	return attribute.String(AttrCascadeID, id)
}

// JobCount returns an attribute for the repair job count
func JobCount(n int) attribute.KeyValue {
	return attribute.Int(AttrJobCount, n)
}

// Confidence returns an attribute for the analysis confidence
func Confidence(c float64) attribute.KeyValue {
	return attribute.Float64(AttrConfidence, c)
}

// LockPath returns an attribute for a contested lock path
func LockPath(path string) attribute.KeyValue {
	return attribute.String(AttrLockPath, path)
}

// LockCount returns an attribute for a lock set size
func LockCount(n int) attribute.KeyValue {
	return attribute.Int(AttrLockCount, n)
}

// Provider returns an attribute for the external provider name
func Provider(name string) attribute.KeyValue {
	return attribute.String(AttrProvider, name)
}

// StartReviewSpan starts a span for a review round, setting the common
// repository attributes.
func StartReviewSpan(ctx context.Context, repo, branch, commit string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Repo(repo),
		Branch(branch),
		Commit(commit),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanReview, trace.WithAttributes(allAttrs...))
}

// StartCascadeSpan starts a span for a cascade operation.
func StartCascadeSpan(ctx context.Context, name, cascadeID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		CascadeID(cascadeID),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartProviderSpan starts a span for an external provider call.
func StartProviderSpan(ctx context.Context, name, provider string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Provider(provider),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}
