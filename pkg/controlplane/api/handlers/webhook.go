package handlers

import (
	"net/http"
	"strings"

	"github.com/drover-ai/drover/internal/logger"
	"github.com/drover-ai/drover/pkg/controlplane/engine"
)

// EventTypeHeader carries the VCS host's event type for a delivery.
const EventTypeHeader = "X-GitHub-Event"

// WebhookHandler ingests VCS webhook deliveries and routes them into the
// engine. Provider failures never produce an HTTP error here: the sender
// would retry, and failure is already persisted on the session.
type WebhookHandler struct {
	engine *engine.Engine
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(e *engine.Engine) *WebhookHandler {
	return &WebhookHandler{engine: e}
}

// pushPayload is the subset of a push delivery the engine consumes.
type pushPayload struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	HeadCommit struct {
		Message string `json:"message"`
		Author  struct {
			Username string `json:"username"`
			Name     string `json:"name"`
		} `json:"author"`
		Added    []string `json:"added"`
		Modified []string `json:"modified"`
		Removed  []string `json:"removed"`
	} `json:"head_commit"`
}

// pullRequestPayload is the subset of a pull_request delivery the engine
// consumes.
type pullRequestPayload struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		HTMLURL string `json:"html_url"`
		Merged  bool   `json:"merged"`
		Head    struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"head"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// checkRunPayload is the subset of a check_run delivery the engine consumes.
type checkRunPayload struct {
	Action   string `json:"action"`
	CheckRun struct {
		ID         int64  `json:"id"`
		Name       string `json:"name"`
		Conclusion string `json:"conclusion"`
		HeadSHA    string `json:"head_sha"`
		CheckSuite struct {
			HeadBranch string `json:"head_branch"`
		} `json:"check_suite"`
	} `json:"check_run"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// Receive handles POST /webhook/vcs.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	eventType := r.Header.Get(EventTypeHeader)
	ctx := logger.WithEvent(r.Context(), eventType)

	switch eventType {
	case "push":
		var payload pushPayload
		if !decodeJSONBody(w, r, &payload) {
			return
		}
		result, err := h.engine.HandlePush(ctx, engine.PushEvent{
			Repo:          payload.Repository.FullName,
			Branch:        strings.TrimPrefix(payload.Ref, "refs/heads/"),
			Commit:        payload.After,
			AuthorLogin:   firstNonEmpty(payload.HeadCommit.Author.Username, payload.HeadCommit.Author.Name),
			CommitMessage: payload.HeadCommit.Message,
			ChangedFiles:  concatFiles(payload.HeadCommit.Added, payload.HeadCommit.Modified, payload.HeadCommit.Removed),
		})
		writeWebhookResult(w, result, err)

	case "pull_request":
		var payload pullRequestPayload
		if !decodeJSONBody(w, r, &payload) {
			return
		}
		result, err := h.engine.HandlePullRequest(ctx, engine.PullRequestEvent{
			Repo:   payload.Repository.FullName,
			Branch: payload.PullRequest.Head.Ref,
			Commit: payload.PullRequest.Head.SHA,
			Number: payload.Number,
			URL:    payload.PullRequest.HTMLURL,
			Action: payload.Action,
			Merged: payload.PullRequest.Merged,
		})
		writeWebhookResult(w, result, err)

	case "check_run":
		var payload checkRunPayload
		if !decodeJSONBody(w, r, &payload) {
			return
		}
		if payload.Action != "completed" {
			WriteJSONAccepted(w, &engine.WebhookResult{
				Received: true, EventType: eventType, Result: engine.OutcomeIgnored,
			})
			return
		}
		result, err := h.engine.HandleCheckRun(ctx, engine.CheckRunEvent{
			Repo:       payload.Repository.FullName,
			Branch:     payload.CheckRun.CheckSuite.HeadBranch,
			Commit:     payload.CheckRun.HeadSHA,
			CheckName:  payload.CheckRun.Name,
			Conclusion: payload.CheckRun.Conclusion,
			JobID:      payload.CheckRun.ID,
		})
		writeWebhookResult(w, result, err)

	default:
		logger.DebugCtx(ctx, "unsupported webhook event type")
		WriteJSONAccepted(w, &engine.WebhookResult{
			Received: true, EventType: eventType, Result: engine.OutcomeIgnored,
		})
	}
}

func writeWebhookResult(w http.ResponseWriter, result *engine.WebhookResult, err error) {
	if err != nil {
		InternalServerError(w, err.Error())
		return
	}
	WriteJSONOK(w, result)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func concatFiles(lists ...[]string) []string {
	var out []string
	for _, list := range lists {
		out = append(out, list...)
	}
	return out
}
