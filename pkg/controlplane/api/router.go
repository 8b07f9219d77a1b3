package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/drover-ai/drover/internal/logger"
	"github.com/drover-ai/drover/pkg/controlplane/api/auth"
	"github.com/drover-ai/drover/pkg/controlplane/api/handlers"
	apiMiddleware "github.com/drover-ai/drover/pkg/controlplane/api/middleware"
	"github.com/drover-ai/drover/pkg/controlplane/engine"
	"github.com/drover-ai/drover/pkg/controlplane/store"
	"github.com/drover-ai/drover/pkg/metrics"
)

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// Routes:
//   - GET  /health - liveness probe
//   - GET  /health/ready - readiness probe
//   - POST /webhook/vcs - VCS webhook ingestion (HMAC authenticated)
//   - POST /cascade/analyze - cascade analysis on an explicit commit
//   - POST /orchestrator/batch - dispatch N jobs under one cascade
//   - POST /orchestrator/sync - reconcile one session
//   - POST /orchestrator/sync-batch - reconcile many sessions
//   - /goals/* - goal management
//   - /sessions/* - session inspection and termination
//   - /locks - lock inspection and emergency release
//
// Operator routes require a bearer token when a JWT service is configured;
// the webhook route is authenticated by HMAC only.
func NewRouter(cfg Config, e *engine.Engine, s store.Store, jwtService *auth.Service) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	healthHandler := handlers.NewHealthHandler(s)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	// Webhook ingestion - HMAC authenticated, never JWT
	webhookHandler := handlers.NewWebhookHandler(e)
	r.Group(func(r chi.Router) {
		if secret := cfg.GetWebhookSecret(); secret != "" {
			r.Use(apiMiddleware.WebhookHMAC(secret))
		} else {
			logger.Warn("webhook secret not configured, deliveries are unauthenticated")
		}
		r.Post("/webhook/vcs", webhookHandler.Receive)
	})

	cascadeHandler := handlers.NewCascadeHandler(e)
	orchestratorHandler := handlers.NewOrchestratorHandler(e)
	goalHandler := handlers.NewGoalHandler(s, e)
	sessionHandler := handlers.NewSessionHandler(s, e)
	lockHandler := handlers.NewLockHandler(e.Locks())

	// Operator routes
	r.Group(func(r chi.Router) {
		if jwtService != nil {
			r.Use(apiMiddleware.JWTAuth(jwtService))
		} else {
			logger.Warn("JWT secret not configured, operator API is unauthenticated")
		}

		r.Post("/cascade/analyze", cascadeHandler.Analyze)

		r.Route("/orchestrator", func(r chi.Router) {
			r.Post("/batch", orchestratorHandler.Batch)
			r.Post("/sync", orchestratorHandler.Sync)
			r.Post("/sync-batch", orchestratorHandler.SyncBatch)
		})

		r.Route("/goals", func(r chi.Router) {
			r.Get("/", goalHandler.List)
			r.Post("/", goalHandler.Create)
			r.Get("/{id}", goalHandler.Get)
			r.Patch("/{id}", goalHandler.Update)
			r.Delete("/{id}", goalHandler.Delete)
			r.Post("/{id}/re-audit", goalHandler.ReAudit)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", sessionHandler.List)
			r.Get("/{id}", sessionHandler.Get)
			r.Post("/{id}/terminate", sessionHandler.Terminate)
		})

		r.Route("/locks", func(r chi.Router) {
			r.Get("/", lockHandler.List)
			r.Delete("/", lockHandler.Release)
		})
	})

	return r
}

// isHealthPath returns true if the request path is a healthcheck endpoint.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger logs request start at DEBUG and completion at INFO, with
// healthcheck requests demoted to DEBUG to reduce noise.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		if route := chi.RouteContext(r.Context()).RoutePattern(); route != "" {
			metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		}

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		}

		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
