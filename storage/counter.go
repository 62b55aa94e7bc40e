package storage

import (
	"errors"
	"sync"
)

// ErrRollbackDetected is returned when a counter is observed going backwards.
var ErrRollbackDetected = errors.New("rollback detected: stored counter is older than cached counter")

// CounterCache tracks the highest value seen for a monotonically increasing
// counter, such as a CRL number, so that a restored or tampered backend is
// noticed before it is written over.
type CounterCache interface {
	MaxSeen(key string) uint64
	Observe(key string, value uint64) error
}

// MemoryCounterCache is an in-memory CounterCache suitable for tests and
// single-process use.
type MemoryCounterCache struct {
	mu     sync.RWMutex
	values map[string]uint64
}

var _ CounterCache = (*MemoryCounterCache)(nil)

func NewMemoryCounterCache() *MemoryCounterCache {
	return &MemoryCounterCache{values: make(map[string]uint64)}
}

func (c *MemoryCounterCache) MaxSeen(key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

func (c *MemoryCounterCache) Observe(key string, value uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value < c.values[key] {
		return ErrRollbackDetected
	}
	c.values[key] = value
	return nil
}
