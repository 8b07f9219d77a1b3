// Package locks implements exclusive per-file locking for sessions.
//
// The Manager is the only component that mutates FileLock rows. Everything
// concurrent in Drover resolves to Acquire / TransferTx / Release here; the
// higher layers never touch lock rows directly. Acquisition is all-or-nothing
// over the requested path set, and the database uniqueness constraint on
// file_path is the backstop for races between concurrent transactions.
package locks

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/drover-ai/drover/pkg/controlplane/models"
	"github.com/drover-ai/drover/pkg/controlplane/store"
)

// errLockRace signals that a concurrent insert won the uniqueness race and
// the acquisition transaction must be rolled back and conflicts re-read.
var errLockRace = errors.New("lock acquisition lost uniqueness race")

// Conflict identifies a contested path and the session holding it.
type Conflict struct {
	Path   string `json:"path"`
	HeldBy string `json:"held_by"`
}

// AcquireResult is the outcome of an acquisition attempt.
//
// OK is true only when every requested path is now held by the session;
// otherwise Conflicts lists the contested paths and nothing was inserted.
type AcquireResult struct {
	OK        bool       `json:"ok"`
	Locked    []string   `json:"locked,omitempty"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// PathStatus joins a lock with its holding session for display and for
// Auditor context.
type PathStatus struct {
	Path          string `json:"path"`
	SessionID     string `json:"session_id"`
	SessionStatus string `json:"session_status"`
	Branch        string `json:"branch"`
}

// Manager centralizes the lock exclusivity invariant.
type Manager struct {
	store store.Store
}

// NewManager creates a lock manager on top of the registry store.
func NewManager(s store.Store) *Manager {
	return &Manager{store: s}
}

// Acquire attempts to take exclusive locks on paths for the session.
//
// The attempt runs in one transaction: existing locks on the requested paths
// are read; if any is held by another session the call returns a conflict
// result and inserts nothing. Re-acquiring paths the session already holds is
// idempotent. A concurrent insert racing past the read is caught by the
// uniqueness constraint, the transaction rolls back, and the conflicts are
// re-read so the caller always sees a structured result rather than a raw
// constraint error.
func (m *Manager) Acquire(ctx context.Context, sessionID string, paths []string) (*AcquireResult, error) {
	paths = dedupe(paths)
	if len(paths) == 0 {
		return &AcquireResult{OK: true, Locked: []string{}}, nil
	}

	// One retry: if we lose the race and the winner's transaction is still
	// uncommitted, the re-read may briefly see no conflict.
	for attempt := 0; attempt < 2; attempt++ {
		var result *AcquireResult

		err := m.store.InTx(ctx, func(tx *gorm.DB) error {
			session, err := store.GetSessionLocked(tx, sessionID)
			if err != nil {
				return err
			}
			if session.Terminal() {
				return models.ErrSessionTerminal
			}

			var existing []models.FileLock
			if err := tx.Where("file_path IN ?", paths).Find(&existing).Error; err != nil {
				return err
			}

			held := make(map[string]bool, len(existing))
			var conflicts []Conflict
			for _, lock := range existing {
				if lock.SessionID != sessionID {
					conflicts = append(conflicts, Conflict{Path: lock.FilePath, HeldBy: lock.SessionID})
					continue
				}
				held[lock.FilePath] = true
			}
			if len(conflicts) > 0 {
				result = &AcquireResult{OK: false, Conflicts: conflicts}
				return nil
			}

			var missing []models.FileLock
			for _, path := range paths {
				if held[path] {
					continue
				}
				missing = append(missing, models.FileLock{
					ID:        uuid.New().String(),
					FilePath:  path,
					SessionID: sessionID,
				})
			}
			if len(missing) > 0 {
				if err := tx.Create(&missing).Error; err != nil {
					if store.IsUniqueConstraintError(err) {
						return errLockRace
					}
					return err
				}
			}

			result = &AcquireResult{OK: true, Locked: paths}
			return nil
		})

		if errors.Is(err, errLockRace) {
			conflicts, rerr := m.conflictsFor(ctx, sessionID, paths)
			if rerr != nil {
				return nil, rerr
			}
			if len(conflicts) == 0 {
				continue // winner not yet visible, retry once
			}
			return &AcquireResult{OK: false, Conflicts: conflicts}, nil
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	// Retried and the contested rows are still not visible: report the
	// contested paths without a holder rather than looping.
	conflicts := make([]Conflict, 0, len(paths))
	for _, path := range paths {
		conflicts = append(conflicts, Conflict{Path: path})
	}
	return &AcquireResult{OK: false, Conflicts: conflicts}, nil
}

// conflictsFor re-reads which of paths are held by sessions other than sessionID.
func (m *Manager) conflictsFor(ctx context.Context, sessionID string, paths []string) ([]Conflict, error) {
	var existing []models.FileLock
	err := m.store.DB().WithContext(ctx).
		Where("file_path IN ? AND session_id <> ?", paths, sessionID).
		Find(&existing).Error
	if err != nil {
		return nil, err
	}
	conflicts := make([]Conflict, 0, len(existing))
	for _, lock := range existing {
		conflicts = append(conflicts, Conflict{Path: lock.FilePath, HeldBy: lock.SessionID})
	}
	return conflicts, nil
}

// TransferTx reassigns every lock held by fromSessionID to toSessionID
// within the caller's transaction. The remediation loop uses this so a child
// session inherits its parent's lock set atomically: no window exists where
// the files are unlocked.
func TransferTx(tx *gorm.DB, fromSessionID, toSessionID string) (int64, error) {
	result := tx.Model(&models.FileLock{}).
		Where("session_id = ?", fromSessionID).
		Update("session_id", toSessionID)
	return result.RowsAffected, result.Error
}

// Release deletes all locks held by the session. Invoked whenever a session
// enters a terminal state; safe to call when the session holds none.
func (m *Manager) Release(ctx context.Context, sessionID string) (int64, error) {
	return ReleaseTx(m.store.DB().WithContext(ctx), sessionID)
}

// ReleaseTx deletes all locks held by the session within the caller's
// transaction, so terminal transitions and lock cleanup commit together.
func ReleaseTx(tx *gorm.DB, sessionID string) (int64, error) {
	result := tx.Where("session_id = ?", sessionID).Delete(&models.FileLock{})
	return result.RowsAffected, result.Error
}

// ReleaseAll purges every lock. Operator escape hatch behind DELETE /locks.
func (m *Manager) ReleaseAll(ctx context.Context) (int64, error) {
	result := m.store.DB().WithContext(ctx).
		Where("1 = 1").
		Delete(&models.FileLock{})
	return result.RowsAffected, result.Error
}

// List returns every lock currently held.
func (m *Manager) List(ctx context.Context) ([]models.FileLock, error) {
	var all []models.FileLock
	err := m.store.DB().WithContext(ctx).
		Order("locked_at ASC").
		Find(&all).Error
	return all, err
}

// ConflictStatus joins locks with their holding sessions. With an empty path
// list it reports every held path.
func (m *Manager) ConflictStatus(ctx context.Context, paths []string) ([]PathStatus, error) {
	q := m.store.DB().WithContext(ctx).
		Table("file_locks").
		Select("file_locks.file_path AS path, file_locks.session_id AS session_id, sessions.status AS session_status, sessions.branch_name AS branch").
		Joins("JOIN sessions ON sessions.id = file_locks.session_id")
	if len(paths) > 0 {
		q = q.Where("file_locks.file_path IN ?", dedupe(paths))
	}

	var statuses []PathStatus
	if err := q.Order("file_locks.file_path ASC").Scan(&statuses).Error; err != nil {
		return nil, err
	}
	return statuses, nil
}

// dedupe removes duplicate paths, preserving first-seen order.
func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
