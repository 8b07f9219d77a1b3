// Package controlplane assembles the Drover control plane.
//
// The control plane manages:
//   - Persistent state (goals, sessions, cascades, file locks) via Store
//   - Atomic file reservations via the lock Manager
//   - Dispatch, review, and cascade logic via the Engine
//   - Webhook ingestion and the operator REST API via the API Server
//
// Usage:
//
//	cp, err := controlplane.New(ctx, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cp.Close()
package controlplane

import (
	"context"
	"fmt"

	"github.com/drover-ai/drover/internal/logger"
	"github.com/drover-ai/drover/pkg/controlplane/api"
	"github.com/drover-ai/drover/pkg/controlplane/engine"
	"github.com/drover-ai/drover/pkg/controlplane/locks"
	"github.com/drover-ai/drover/pkg/controlplane/store"
	"github.com/drover-ai/drover/pkg/providers/agent"
	"github.com/drover-ai/drover/pkg/providers/auditor"
	"github.com/drover-ai/drover/pkg/providers/vcs"
)

// ControlPlane is the central supervision component for Drover.
//
// It owns and coordinates:
//   - Store: persistent registry (goals, sessions, cascades, locks)
//   - Locks: the exclusive per-file reservation manager
//   - Engine: session lifecycle, review loop, cascade dispatch
//   - API Server: webhook ingestion and operator REST API
type ControlPlane struct {
	store     *store.GORMStore
	locks     *locks.Manager
	engine    *engine.Engine
	apiServer *api.Server
}

// Options configures the ControlPlane.
type Options struct {
	// Database configuration for persistent storage
	Database *store.Config

	// API configuration for the HTTP surface
	API *api.Config

	// Engine tunables
	Engine engine.Config

	// Providers are the external systems Drover drives. Any of them may
	// be a fake in tests.
	Agents  agent.Provider
	VCS     vcs.Provider
	Auditor auditor.Oracle
}

// New creates a new ControlPlane with the given options.
//
// This initializes:
//  1. Persistent store (SQLite/PostgreSQL)
//  2. Lock manager
//  3. Engine wired to the providers
//  4. API server
//
// Call Close when done to release resources.
func New(ctx context.Context, opts *Options) (*ControlPlane, error) {
	if opts == nil {
		return nil, fmt.Errorf("options cannot be nil")
	}
	if opts.Database == nil {
		return nil, fmt.Errorf("database configuration is required")
	}
	if opts.Agents == nil || opts.VCS == nil || opts.Auditor == nil {
		return nil, fmt.Errorf("agent, VCS, and auditor providers are required")
	}

	cpStore, err := store.New(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	lockManager := locks.NewManager(cpStore)
	eng := engine.New(cpStore, lockManager, opts.Agents, opts.VCS, opts.Auditor, opts.Engine)

	cp := &ControlPlane{
		store:  cpStore,
		locks:  lockManager,
		engine: eng,
	}

	if opts.API != nil {
		apiServer, err := api.NewServer(*opts.API, eng, cpStore)
		if err != nil {
			return nil, fmt.Errorf("failed to create API server: %w", err)
		}
		cp.apiServer = apiServer
		logger.Info("Control plane API server initialized", "port", apiServer.Port())
	}

	return cp, nil
}

// Store returns the persistent registry store.
func (cp *ControlPlane) Store() *store.GORMStore {
	return cp.store
}

// Locks returns the lock manager.
func (cp *ControlPlane) Locks() *locks.Manager {
	return cp.locks
}

// Engine returns the dispatch-and-remediation engine.
func (cp *ControlPlane) Engine() *engine.Engine {
	return cp.engine
}

// APIServer returns the API server (may be nil if not configured).
func (cp *ControlPlane) APIServer() *api.Server {
	return cp.apiServer
}

// Close releases all resources held by the ControlPlane.
func (cp *ControlPlane) Close() error {
	return cp.store.Close()
}
