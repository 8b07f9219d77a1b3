package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped logging context.
//
// A webhook delivery or API request populates it once; every log call made
// with the Ctx variants inherits its fields.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	RequestID string    // chi request id
	Event     string    // webhook event type
	SessionID string    // session being transitioned, if known
	GoalID    string    // goal being reviewed, if known
	CascadeID string    // cascade being dispatched, if known
	StartTime time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a request or delivery
func NewLogContext(requestID string) *LogContext {
	return &LogContext{
		RequestID: requestID,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	cp := *lc
	return &cp
}

// WithSession returns a copy with the session id set
func (lc *LogContext) WithSession(sessionID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.SessionID = sessionID
	}
	return clone
}

// WithGoal returns a copy with the goal id set
func (lc *LogContext) WithGoal(goalID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.GoalID = goalID
	}
	return clone
}

// WithEvent returns a copy with the webhook event type set
func (lc *LogContext) WithEvent(event string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Event = event
	}
	return clone
}

// WithCascade returns a copy with the cascade id set
func (lc *LogContext) WithCascade(cascadeID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.CascadeID = cascadeID
	}
	return clone
}

// WithEvent returns a context whose LogContext carries the webhook event
// type. A context without a LogContext gets a fresh one.
func WithEvent(ctx context.Context, event string) context.Context {
	lc := FromContext(ctx)
	if lc == nil {
		lc = &LogContext{StartTime: time.Now()}
	}
	return WithContext(ctx, lc.WithEvent(event))
}

// WithSession returns a context whose LogContext carries the session id.
// A context without a LogContext gets a fresh one.
func WithSession(ctx context.Context, sessionID string) context.Context {
	lc := FromContext(ctx)
	if lc == nil {
		lc = &LogContext{StartTime: time.Now()}
	}
	return WithContext(ctx, lc.WithSession(sessionID))
}

// WithGoal returns a context whose LogContext carries the goal id.
func WithGoal(ctx context.Context, goalID string) context.Context {
	lc := FromContext(ctx)
	if lc == nil {
		lc = &LogContext{StartTime: time.Now()}
	}
	return WithContext(ctx, lc.WithGoal(goalID))
}

// WithCascade returns a context whose LogContext carries the cascade id.
func WithCascade(ctx context.Context, cascadeID string) context.Context {
	lc := FromContext(ctx)
	if lc == nil {
		lc = &LogContext{StartTime: time.Now()}
	}
	return WithContext(ctx, lc.WithCascade(cascadeID))
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
