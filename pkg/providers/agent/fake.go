package agent

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory [Provider] for testing. It records all calls (spy)
// and simulates agent state (fake). Safe for concurrent use.
//
// When broken is true (via [NewFailFake]), Create always fails. Calls are
// still recorded.
type Fake struct {
	mu      sync.Mutex
	agents  map[string]*Agent
	nextID  int
	broken  bool
	Creates []CreateRequest     // recorded Create calls in order
	Gets    []string            // recorded Get ids in order
	Canned  map[string][]*Agent // id → successive Get results (overrides state)
}

// NewFake returns a ready-to-use [Fake].
func NewFake() *Fake {
	return &Fake{
		agents: make(map[string]*Agent),
		Canned: make(map[string][]*Agent),
	}
}

// NewFailFake returns a [Fake] where Create always fails. Useful for
// testing dispatch error paths.
func NewFailFake() *Fake {
	f := NewFake()
	f.broken = true
	return f
}

// Create starts a fake agent in PLANNING state.
func (f *Fake) Create(_ context.Context, req CreateRequest) (*Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Creates = append(f.Creates, req)
	if f.broken {
		return nil, fmt.Errorf("agent provider unavailable")
	}
	f.nextID++
	agent := &Agent{
		ID:     fmt.Sprintf("agent-%d", f.nextID),
		URL:    fmt.Sprintf("https://agents.example.com/%d", f.nextID),
		Status: StatusPlanning,
	}
	f.agents[agent.ID] = agent
	return &Agent{ID: agent.ID, URL: agent.URL, Status: agent.Status}, nil
}

// Get returns the canned result for id if one is queued, else current state.
func (f *Fake) Get(_ context.Context, id string) (*Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Gets = append(f.Gets, id)
	if queue := f.Canned[id]; len(queue) > 0 {
		next := queue[0]
		f.Canned[id] = queue[1:]
		return next, nil
	}
	agent, ok := f.agents[id]
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", id)
	}
	cp := *agent
	return &cp, nil
}

// ListSources returns a single fixed source.
func (f *Fake) ListSources(context.Context) ([]Source, error) {
	return []Source{{ID: "src-1", Repo: "example/repo"}}, nil
}

// SetStatus moves a fake agent to the given status.
func (f *Fake) SetStatus(id string, status Status, changeProposalURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if agent, ok := f.agents[id]; ok {
		agent.Status = status
		agent.ChangeProposalURL = changeProposalURL
	}
}

// CreateCount returns the number of Create calls recorded.
func (f *Fake) CreateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Creates)
}
