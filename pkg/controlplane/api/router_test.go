package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drover-ai/drover/pkg/controlplane/api/auth"
	"github.com/drover-ai/drover/pkg/controlplane/api/handlers"
	"github.com/drover-ai/drover/pkg/controlplane/engine"
	"github.com/drover-ai/drover/pkg/controlplane/locks"
	"github.com/drover-ai/drover/pkg/controlplane/models"
	"github.com/drover-ai/drover/pkg/controlplane/store"
	"github.com/drover-ai/drover/pkg/providers/agent"
	"github.com/drover-ai/drover/pkg/providers/auditor"
	"github.com/drover-ai/drover/pkg/providers/vcs"
)

type apiEnv struct {
	handler http.Handler
	store   store.Store
	engine  *engine.Engine
	agents  *agent.Fake
	vcs     *vcs.Fake
	auditor *auditor.Fake
}

type envOption func(*Config, **auth.Service)

func withWebhookSecret(secret string) envOption {
	return func(cfg *Config, _ **auth.Service) {
		cfg.WebhookSecret = secret
	}
}

func withJWT(t *testing.T) envOption {
	return func(_ *Config, svc **auth.Service) {
		service, err := auth.NewService(auth.Config{Secret: "test-secret-at-least-32-characters-long"})
		require.NoError(t, err)
		*svc = service
	}
}

func newAPIEnv(t *testing.T, opts ...envOption) *apiEnv {
	t.Helper()

	s, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "registry.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	env := &apiEnv{
		store:   s,
		agents:  agent.NewFake(),
		vcs:     vcs.NewFake(),
		auditor: auditor.NewFake(),
	}
	env.engine = engine.New(s, locks.NewManager(s), env.agents, env.vcs, env.auditor, engine.Config{})

	cfg := Config{}
	cfg.applyDefaults()
	var jwtService *auth.Service
	for _, opt := range opts {
		opt(&cfg, &jwtService)
	}
	env.handler = NewRouter(cfg, env.engine, s, jwtService)
	return env
}

// do issues a JSON request against the router and returns the recorder.
func (env *apiEnv) do(t *testing.T, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

// createSession dispatches a session through the engine, bypassing HTTP.
func (env *apiEnv) createSession(t *testing.T, branch string, lockPaths ...string) *models.Session {
	t.Helper()
	session, err := env.engine.CreateSession(context.Background(), engine.CreateSpec{
		SourceRepo: "acme/widgets",
		BranchName: branch,
		BaseBranch: "main",
		LockPaths:  lockPaths,
	})
	require.NoError(t, err)
	return session
}

// ============================================================================
// Health and root
// ============================================================================

func TestHealthEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	decodeInto(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])

	rec = env.do(t, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRootRedirectsToHealth(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/health", rec.Header().Get("Location"))
}

// ============================================================================
// Goals
// ============================================================================

func TestGoalCRUD(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/goals", handlers.CreateGoalRequest{
		Title:       "split the monolith",
		Description: "extract the billing package",
		Criteria:    []string{"billing compiles standalone", "no import cycles"},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Goal
	decodeInto(t, rec, &created)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, string(models.GoalStatusBacklog), created.Status)
	require.Len(t, created.ParsedCriteria, 2)
	assert.NotEmpty(t, created.ParsedCriteria[0].ID)
	assert.NotEmpty(t, created.ParsedCriteria[1].ID)

	rec = env.do(t, http.MethodGet, "/goals/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		models.Goal
		Sessions []*models.Session `json:"sessions"`
	}
	decodeInto(t, rec, &detail)
	assert.Equal(t, "split the monolith", detail.Title)
	assert.NotNil(t, detail.Sessions)

	rec = env.do(t, http.MethodGet, "/goals", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []*models.Goal
	decodeInto(t, rec, &listed)
	require.Len(t, listed, 1)

	rec = env.do(t, http.MethodDelete, "/goals/"+created.ID, nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/goals/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, handlers.ContentTypeProblemJSON, rec.Header().Get("Content-Type"))
}

func TestGoalCreateValidation(t *testing.T) {
	env := newAPIEnv(t)

	tests := []struct {
		name string
		req  handlers.CreateGoalRequest
	}{
		{"missing title", handlers.CreateGoalRequest{Criteria: []string{"c1"}}},
		{"no criteria", handlers.CreateGoalRequest{Title: "t"}},
		{"empty criterion", handlers.CreateGoalRequest{Title: "t", Criteria: []string{""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/goals", tt.req, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, handlers.ContentTypeProblemJSON, rec.Header().Get("Content-Type"))
		})
	}
}

func TestGoalPatchMergesCriteria(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/goals", handlers.CreateGoalRequest{
		Title:    "harden the API",
		Criteria: []string{"rate limiting in place", "audit log enabled"},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Goal
	decodeInto(t, rec, &created)
	require.Len(t, created.ParsedCriteria, 2)
	keptID := created.ParsedCriteria[0].ID

	rec = env.do(t, http.MethodPatch, "/goals/"+created.ID, map[string]any{
		"criteria": []map[string]string{
			{"id": keptID, "text": "rate limiting with backoff"},
			{"text": "metrics exported"},
		},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var updated models.Goal
	decodeInto(t, rec, &updated)
	require.Len(t, updated.ParsedCriteria, 2)
	assert.Equal(t, keptID, updated.ParsedCriteria[0].ID, "existing criterion keeps its id")
	assert.Equal(t, "rate limiting with backoff", updated.ParsedCriteria[0].Text)
	assert.NotEmpty(t, updated.ParsedCriteria[1].ID)
	assert.NotEqual(t, keptID, updated.ParsedCriteria[1].ID)
	assert.Equal(t, "metrics exported", updated.ParsedCriteria[1].Text)
}

func TestGoalPatchRejectsUnknownStatus(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/goals", handlers.CreateGoalRequest{
		Title: "g", Criteria: []string{"c1"},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Goal
	decodeInto(t, rec, &created)

	rec = env.do(t, http.MethodPatch, "/goals/"+created.ID, map[string]any{
		"status": "bogus",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================================================
// Sessions
// ============================================================================

func TestSessionListAndTerminate(t *testing.T) {
	env := newAPIEnv(t)

	active := env.createSession(t, "drover/work-1")
	done := env.createSession(t, "drover/work-2")
	require.NoError(t, env.engine.Terminate(context.Background(), done.ID))

	rec := env.do(t, http.MethodGet, "/sessions", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []*models.Session
	decodeInto(t, rec, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, active.ID, listed[0].ID)

	rec = env.do(t, http.MethodGet, "/sessions?all=true", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &listed)
	assert.Len(t, listed, 2)

	rec = env.do(t, http.MethodPost, "/sessions/"+active.ID+"/terminate", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var terminated handlers.TerminateResponse
	decodeInto(t, rec, &terminated)
	assert.True(t, terminated.Success)
	assert.Equal(t, active.ID, terminated.SessionID)

	rec = env.do(t, http.MethodGet, "/sessions/"+active.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stored models.Session
	decodeInto(t, rec, &stored)
	assert.Equal(t, string(models.SessionStatusFailed), stored.Status)
}

func TestSessionNotFound(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/sessions/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/sessions/missing/terminate", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ============================================================================
// Locks
// ============================================================================

func TestLockInspectionAndRelease(t *testing.T) {
	env := newAPIEnv(t)

	a := env.createSession(t, "drover/work-1", "pkg/a.go", "pkg/b.go")
	env.createSession(t, "drover/work-2", "pkg/c.go")

	rec := env.do(t, http.MethodGet, "/locks", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var held []*models.FileLock
	decodeInto(t, rec, &held)
	assert.Len(t, held, 3)

	rec = env.do(t, http.MethodGet, "/locks?paths=pkg/a.go,pkg/free.go", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status []locks.PathStatus
	decodeInto(t, rec, &status)
	require.Len(t, status, 1)
	assert.Equal(t, "pkg/a.go", status[0].Path)
	assert.Equal(t, a.ID, status[0].SessionID)

	rec = env.do(t, http.MethodDelete, "/locks?session_id="+a.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var released handlers.ReleaseResponse
	decodeInto(t, rec, &released)
	assert.EqualValues(t, 2, released.ReleasedCount)

	rec = env.do(t, http.MethodDelete, "/locks", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &released)
	assert.EqualValues(t, 1, released.ReleasedCount)
}

// ============================================================================
// Webhook ingestion
// ============================================================================

func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookRequiresValidSignature(t *testing.T) {
	const secret = "webhook-secret"
	env := newAPIEnv(t, withWebhookSecret(secret))

	payload := []byte(`{"ref":"refs/heads/main","repository":{"full_name":"acme/widgets"}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook/vcs", bytes.NewReader(payload))
	req.Header.Set(handlers.EventTypeHeader, "push")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "unsigned delivery rejected")

	req = httptest.NewRequest(http.MethodPost, "/webhook/vcs", bytes.NewReader(payload))
	req.Header.Set(handlers.EventTypeHeader, "push")
	req.Header.Set("X-Hub-Signature-256", signPayload(secret, payload))
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookPushRouting(t *testing.T) {
	env := newAPIEnv(t)

	body := map[string]any{
		"ref":        "refs/heads/main",
		"after":      "abc123",
		"repository": map[string]any{"full_name": "acme/widgets"},
		"head_commit": map[string]any{
			"message": "refactor [Auto]",
			"author":  map[string]any{"username": "drover-bot"},
		},
	}

	rec := env.do(t, http.MethodPost, "/webhook/vcs", body, map[string]string{
		handlers.EventTypeHeader: "push",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.WebhookResult
	decodeInto(t, rec, &result)
	assert.True(t, result.Received)
	assert.Equal(t, engine.OutcomeAutomatedSkipped, result.Result)
}

func TestWebhookUnknownEventAccepted(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/webhook/vcs", map[string]any{}, map[string]string{
		handlers.EventTypeHeader: "deployment_status",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var result engine.WebhookResult
	decodeInto(t, rec, &result)
	assert.Equal(t, engine.OutcomeIgnored, result.Result)
}

func TestWebhookCheckRunInProgressAccepted(t *testing.T) {
	env := newAPIEnv(t)

	body := map[string]any{
		"action":     "created",
		"check_run":  map[string]any{"name": "ci/build"},
		"repository": map[string]any{"full_name": "acme/widgets"},
	}
	rec := env.do(t, http.MethodPost, "/webhook/vcs", body, map[string]string{
		handlers.EventTypeHeader: "check_run",
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

// ============================================================================
// Operator authentication
// ============================================================================

func TestOperatorRoutesRequireToken(t *testing.T) {
	env := newAPIEnv(t, withJWT(t), withWebhookSecret("webhook-secret"))

	rec := env.do(t, http.MethodGet, "/goals", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays open.
	rec = env.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The webhook route is HMAC-only, never JWT.
	payload := []byte(`{}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/vcs", bytes.NewReader(payload))
	req.Header.Set(handlers.EventTypeHeader, "ping")
	req.Header.Set("X-Hub-Signature-256", signPayload("webhook-secret", payload))
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusAccepted, recorder.Code)
}

func TestOperatorRoutesAcceptValidToken(t *testing.T) {
	service, err := auth.NewService(auth.Config{Secret: "test-secret-at-least-32-characters-long"})
	require.NoError(t, err)
	token, _, err := service.GenerateToken("alice")
	require.NoError(t, err)

	env := newAPIEnv(t, withJWT(t))
	// withJWT builds its own service from the same secret, so the token above
	// validates against it.
	rec := env.do(t, http.MethodGet, "/goals", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

// ============================================================================
// Orchestrator
// ============================================================================

func TestOrchestratorBatchDispatch(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/orchestrator/batch", handlers.BatchDispatchRequest{
		Repo: "acme/widgets",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "jobs are required")

	rec = env.do(t, http.MethodPost, "/orchestrator/batch", map[string]any{
		"repo": "acme/widgets",
		"jobs": []map[string]any{{"files": []string{"pkg/a.go"}}},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "job prompt is required")

	rec = env.do(t, http.MethodPost, "/orchestrator/batch", map[string]any{
		"repo": "acme/widgets",
		"jobs": []map[string]any{{"files": []string{"pkg/a.go"}, "prompt": "fix", "priority": "urgent"}},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown priority rejected")

	rec = env.do(t, http.MethodPost, "/orchestrator/batch", map[string]any{
		"repo":   "acme/widgets",
		"branch": "main",
		"jobs": []map[string]any{
			{"files": []string{"pkg/a.go"}, "prompt": "fix the callers"},
			{"files": []string{"pkg/b.go"}, "prompt": "update the tests"},
		},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp engine.BatchResponse
	decodeInto(t, rec, &resp)
	assert.NotEmpty(t, resp.BatchID)
	assert.Equal(t, 2, resp.DispatchedCount)
	assert.Equal(t, 2, env.agents.CreateCount())
}

func TestOrchestratorBatchAllBlockedAnswers409(t *testing.T) {
	env := newAPIEnv(t)
	holder := env.createSession(t, "drover/work-1", "pkg/a.go")

	rec := env.do(t, http.MethodPost, "/orchestrator/batch", map[string]any{
		"repo": "acme/widgets",
		"jobs": []map[string]any{
			{"files": []string{"pkg/a.go"}, "prompt": "fix the callers"},
		},
	}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, handlers.ContentTypeProblemJSON, rec.Header().Get("Content-Type"))

	var problem struct {
		Title     string `json:"title"`
		Status    int    `json:"status"`
		Conflicts []struct {
			Path   string `json:"path"`
			HeldBy string `json:"held_by"`
		} `json:"conflicts"`
	}
	decodeInto(t, rec, &problem)
	assert.Equal(t, "Conflict", problem.Title)
	assert.Equal(t, http.StatusConflict, problem.Status)
	require.Len(t, problem.Conflicts, 1)
	assert.Equal(t, "pkg/a.go", problem.Conflicts[0].Path)
	assert.Equal(t, holder.ID, problem.Conflicts[0].HeldBy)
}

func TestOrchestratorSync(t *testing.T) {
	env := newAPIEnv(t)
	session := env.createSession(t, "drover/work-1")

	rec := env.do(t, http.MethodPost, "/orchestrator/sync", handlers.SyncRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/orchestrator/sync", handlers.SyncRequest{SessionID: "missing"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/orchestrator/sync", handlers.SyncRequest{SessionID: session.ID}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result engine.SyncResult
	decodeInto(t, rec, &result)
	assert.Equal(t, session.ID, result.Session.ID)
}

func TestOrchestratorSyncBatch(t *testing.T) {
	env := newAPIEnv(t)
	session := env.createSession(t, "drover/work-1")

	rec := env.do(t, http.MethodPost, "/orchestrator/sync-batch", handlers.SyncBatchRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/orchestrator/sync-batch", handlers.SyncBatchRequest{
		SessionIDs: []string{session.ID, "missing"},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]json.RawMessage
	decodeInto(t, rec, &raw)
	require.Contains(t, raw, "results")

	var resp handlers.SyncBatchResponse
	decodeInto(t, rec, &resp)
	require.Len(t, resp.Results, 2)
	assert.Empty(t, resp.Results[0].Error)
	assert.NotEmpty(t, resp.Results[1].Error)
}

// ============================================================================
// Cascade
// ============================================================================

func TestCascadeAnalyzeValidation(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/cascade/analyze", handlers.AnalyzeRequest{
		Repo: "acme/widgets",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCascadeAnalyzeNoCoreFiles(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/cascade/analyze", handlers.AnalyzeRequest{
		Repo:         "acme/widgets",
		Branch:       "main",
		Commit:       "abc123",
		ChangedPaths: []string{"docs/README.md"},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp engine.CascadeResponse
	decodeInto(t, rec, &resp)
	assert.False(t, resp.IsCascade)
	assert.Empty(t, env.auditor.Decomposes)
}

func TestInvalidJSONBodyAnswers400(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/goals", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
