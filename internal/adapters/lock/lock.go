// Package lock provides run locks that keep two reconciliations from
// overlapping, within one process or across replicas.
package lock

import (
	"context"
	"sync"
)

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func(ctx context.Context) error

// Locker acquires named locks without blocking.
type Locker interface {
	// TryLock returns ErrLocked when key is already held.
	TryLock(ctx context.Context, key string) (Unlock, error)
}

// Memory is a process-local Locker.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemory creates a process-local Locker.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

// TryLock implements Locker.
func (m *Memory) TryLock(_ context.Context, key string) (Unlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return nil, ErrLocked
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
		return nil
	}, nil
}
