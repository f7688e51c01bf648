// Package pool supplies candidate-agent snapshots to the matching engine.
package pool

import (
	"context"
	"sync"

	"travel-matching-engine/matching"
)

// StaticProvider serves a fixed agent set. Used by tests and by deployments
// that load their directory once at startup.
type StaticProvider struct {
	mu     sync.RWMutex
	agents []matching.Agent
}

func NewStaticProvider(agents []matching.Agent) *StaticProvider {
	return &StaticProvider{agents: cloneAgents(agents)}
}

// SetAgents replaces the served set.
func (p *StaticProvider) SetAgents(agents []matching.Agent) {
	p.mu.Lock()
	p.agents = cloneAgents(agents)
	p.mu.Unlock()
}

// Snapshot returns a detached copy of the current set.
func (p *StaticProvider) Snapshot(ctx context.Context, req matching.TravelRequest) ([]matching.Agent, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneAgents(p.agents), nil
}

func cloneAgents(agents []matching.Agent) []matching.Agent {
	out := make([]matching.Agent, len(agents))
	for i, a := range agents {
		a.Specializations = append([]string(nil), a.Specializations...)
		a.Regions = append([]string(nil), a.Regions...)
		out[i] = a
	}
	return out
}

var _ matching.PoolProvider = (*StaticProvider)(nil)
