package bbolt

import (
	"encoding/binary"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/ironca/storage"
)

var counterBucket = []byte("__counter_cache")

// CounterCache persists max-value-seen counters in a dedicated BBolt bucket.
// Reads come from an in-memory map; writes persist to BBolt first and then
// update the map.
type CounterCache struct {
	db    *bbolt.DB
	mu    sync.RWMutex
	cache map[string]uint64
}

var _ storage.CounterCache = (*CounterCache)(nil)

// NewCounterCache loads every persisted counter from db.
func NewCounterCache(db *bbolt.DB) (*CounterCache, error) {
	c := &CounterCache{
		db:    db,
		cache: make(map[string]uint64),
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(counterBucket)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			if len(v) == 8 {
				c.cache[string(k)] = binary.BigEndian.Uint64(v)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *CounterCache) MaxSeen(key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache[key]
}

func (c *CounterCache) Observe(key string, value uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value < c.cache[key] {
		return storage.ErrRollbackDetected
	}

	err := c.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(counterBucket)
		if err != nil {
			return err
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], value)
		return b.Put([]byte(key), buf[:])
	})
	if err != nil {
		return err
	}

	c.cache[key] = value
	return nil
}
