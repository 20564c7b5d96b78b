package tokenstore

import (
	"context"
	"sync"
)

// Memory keeps the pair in process memory. Nothing survives a restart.
type Memory struct {
	mu    sync.RWMutex
	pair  Pair
	attrs Attributes
}

// NewMemory creates an empty in-memory store
func NewMemory(attrs Attributes) *Memory {
	return &Memory{attrs: attrs}
}

// Get implements Store
func (m *Memory) Get(ctx context.Context) (Pair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pair, nil
}

// Set implements Store
func (m *Memory) Set(ctx context.Context, p Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = p
	return nil
}

// SetAccess implements Store
func (m *Memory) SetAccess(ctx context.Context, access string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair.Access = access
	return nil
}

// Clear implements Store
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = Pair{}
	return nil
}

// Attributes implements Store
func (m *Memory) Attributes() Attributes { return m.attrs }

// Name implements Store
func (m *Memory) Name() string { return "memory" }

// Close implements Store
func (m *Memory) Close() error { return nil }
