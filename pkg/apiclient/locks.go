package apiclient

import (
	"net/url"
	"strings"
)

// PathStatus reports who holds a path, if anyone.
type PathStatus struct {
	Path          string `json:"path"`
	SessionID     string `json:"session_id"`
	SessionStatus string `json:"session_status"`
	Branch        string `json:"branch"`
}

// ReleaseResponse is the result of a lock release.
type ReleaseResponse struct {
	ReleasedCount int64 `json:"released_count"`
}

// ListLocks returns all currently held file locks.
func (c *Client) ListLocks() ([]FileLock, error) {
	return listResources[FileLock](c, "/locks")
}

// LockStatus reports the holder of each given path.
func (c *Client) LockStatus(paths []string) ([]PathStatus, error) {
	q := url.Values{"paths": {strings.Join(paths, ",")}}
	return listResources[PathStatus](c, "/locks?"+q.Encode())
}

// ReleaseSessionLocks releases all locks held by a session.
func (c *Client) ReleaseSessionLocks(sessionID string) (*ReleaseResponse, error) {
	q := url.Values{"session_id": {sessionID}}
	var result ReleaseResponse
	if err := c.delete("/locks?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReleaseAllLocks releases every lock in the registry. Operator escape hatch
// for orphaned reservations.
func (c *Client) ReleaseAllLocks() (*ReleaseResponse, error) {
	var result ReleaseResponse
	if err := c.delete("/locks", &result); err != nil {
		return nil, err
	}
	return &result, nil
}
