package ledger

import (
	"context"
	"sync"
	"time"

	pferrors "github.com/otherjamesbrown/emlsync/pkg/errors"
)

// Memory is an in-process ledger for tests and dry runs.
type Memory struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]time.Time), now: time.Now}
}

func (m *Memory) Exists(_ context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[id]
	return ok, nil
}

func (m *Memory) Mark(_ context.Context, id string) error {
	if id == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		m.entries[id] = m.now().UTC()
	}
	return nil
}

func (m *Memory) ProcessedAt(_ context.Context, id string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.entries[id]
	if !ok || id == "" {
		return time.Time{}, pferrors.ErrNotFound
	}
	return at, nil
}

// Len returns the number of marked ids.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) Close() error { return nil }
