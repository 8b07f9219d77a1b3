package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// LockConflict is a contested lock path reported on a 409 response.
type LockConflict struct {
	Path   string `json:"path"`
	HeldBy string `json:"held_by"`
}

// APIError represents an RFC 7807 problem response from the API.
type APIError struct {
	StatusCode int            `json:"status"`
	Title      string         `json:"title"`
	Detail     string         `json:"detail,omitempty"`
	Conflicts  []LockConflict `json:"conflicts,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Title
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	if len(e.Conflicts) > 0 {
		paths := make([]string, len(e.Conflicts))
		for i, c := range e.Conflicts {
			paths[i] = c.Path
		}
		msg = fmt.Sprintf("%s (contested: %s)", msg, strings.Join(paths, ", "))
	}
	return msg
}

// IsAuthError returns true if this is an authentication error.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsNotFound returns true if this is a not found error.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsConflict returns true if this is a lock conflict error.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

// IsValidationError returns true if the request was rejected as invalid.
func (e *APIError) IsValidationError() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
}

// parseAPIError decodes a problem+json body, falling back to the raw body
// when the server answered with something else.
func parseAPIError(statusCode int, body []byte) error {
	var apiErr APIError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Title != "" {
		apiErr.StatusCode = statusCode
		return &apiErr
	}
	return &APIError{
		StatusCode: statusCode,
		Title:      http.StatusText(statusCode),
		Detail:     strings.TrimSpace(string(body)),
	}
}
