package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by the interactive chat mode and by
// tests. Same contract as SQLite, no durability.
type Memory struct {
	mu       sync.RWMutex
	ids      map[string]string // platform:externalID -> internal id
	profiles map[string]map[string]string
	history  map[string][]Turn
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		ids:      make(map[string]string),
		profiles: make(map[string]map[string]string),
		history:  make(map[string][]Turn),
	}
}

func (m *Memory) GetOrCreateInternalID(_ context.Context, platform, externalID, _ string) (string, error) {
	key := platform + ":" + externalID
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.ids[key]; ok {
		return id, nil
	}
	id := uuid.NewString()
	m.ids[key] = id
	return id, nil
}

func (m *Memory) GetProfile(_ context.Context, internalID string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.profiles[internalID]))
	for k, v := range m.profiles[internalID] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) UpdateProfile(_ context.Context, internalID string, patch map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[internalID]
	if !ok {
		p = make(map[string]string)
		m.profiles[internalID] = p
	}
	for k, v := range patch {
		p[k] = v
	}
	return nil
}

func (m *Memory) LoadRecent(_ context.Context, internalID string, limit int) ([]Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	turns := m.history[internalID]
	if limit <= 0 || len(turns) == 0 {
		return nil, nil
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (m *Memory) Append(_ context.Context, internalID, role, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[internalID] = append(m.history[internalID], Turn{Role: role, Text: text})
	return nil
}

func (m *Memory) Close() error { return nil }
