package models

import "errors"

// Common errors for control plane operations.
var (
	// Goal errors
	ErrGoalNotFound = errors.New("goal not found")

	// Session errors
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionTerminal   = errors.New("session is in a terminal state")
	ErrDuplicateAgentID  = errors.New("external agent id already assigned")
	ErrMaxDepthExceeded  = errors.New("max remediation depth exceeded")
	ErrInvalidTransition = errors.New("invalid session state transition")

	// Lock errors
	ErrLockConflict = errors.New("file lock held by another session")
	ErrLockNotFound = errors.New("file lock not found")

	// Cascade errors
	ErrCascadeNotFound = errors.New("cascade not found")
)
