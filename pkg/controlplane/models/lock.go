package models

import "time"

// FileLock is an exclusive claim on a single file path.
//
// FilePath is globally unique: at any instant at most one non-terminal
// session holds a given path. The uniqueness constraint is the backstop for
// races between concurrent acquisitions; the lock manager converts the
// resulting constraint violation into a structured conflict.
type FileLock struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	FilePath  string    `gorm:"uniqueIndex;not null;size:512" json:"file_path"`
	SessionID string    `gorm:"not null;size:36;index" json:"session_id"`
	LockedAt  time.Time `gorm:"autoCreateTime" json:"locked_at"`
}

// TableName returns the table name for FileLock.
func (FileLock) TableName() string {
	return "file_locks"
}
