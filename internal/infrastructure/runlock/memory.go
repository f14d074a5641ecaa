// Package runlock provides RunGuard implementations for a single process and
// for several processes sharing a Redis instance.
package runlock

import (
	"context"
	"sync"

	"NewsDigest/internal/ports"
)

// Memory is a process-local guard.
type Memory struct {
	mu    sync.Mutex
	owner string
}

var _ ports.RunGuard = (*Memory)(nil)

// NewMemory returns an unlocked guard.
func NewMemory() *Memory {
	return &Memory{}
}

// Acquire takes the guard for owner if it is free.
func (m *Memory) Acquire(_ context.Context, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != "" {
		return false, nil
	}
	m.owner = owner
	return true, nil
}

// Release frees the guard when owner holds it.
func (m *Memory) Release(_ context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner == owner {
		m.owner = ""
	}
	return nil
}
