package matching

import (
	"context"
	"sync"
)

// StateStore persists the per-request working state. Implementations must
// tolerate concurrent callers; the engine guarantees per-request write
// serialization on top. Get returns (nil, nil) for an unknown request.
//
// The interface exists so the in-memory map can be swapped for a
// distributed store without touching orchestration logic. Snapshot returns
// detached copies, which makes the cleanup sweep a snapshot-then-delete
// pass rather than an iterate-while-mutating hazard.
type StateStore interface {
	Get(ctx context.Context, requestID string) (*State, error)
	Put(ctx context.Context, st *State) error
	Delete(ctx context.Context, requestID string) error
	Snapshot(ctx context.Context) ([]*State, error)
}

// MemoryStore keeps matching state in a process-local map. Every read and
// write passes through Clone so callers never share engine-owned memory.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*State)}
}

func (m *MemoryStore) Get(ctx context.Context, requestID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[requestID]
	if !ok {
		return nil, nil
	}
	return st.Clone(), nil
}

func (m *MemoryStore) Put(ctx context.Context, st *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.RequestID] = st.Clone()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, requestID)
	return nil
}

func (m *MemoryStore) Snapshot(ctx context.Context) ([]*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*State, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, st.Clone())
	}
	return out, nil
}

var _ StateStore = (*MemoryStore)(nil)
