package storage

import (
	"context"
	"sync"
)

// MemoryProvider keeps state in an in-process map. It is the default
// backend and the one tests use; state does not survive a restart.
type MemoryProvider struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{values: make(map[string]string)}
}

// Get retrieves a value by key.
func (p *MemoryProvider) Get(_ context.Context, key string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	value, ok := p.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Set stores a value under key, replacing any previous value.
func (p *MemoryProvider) Set(_ context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.values[key] = value
	return nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (p *MemoryProvider) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.values, key)
	return nil
}
