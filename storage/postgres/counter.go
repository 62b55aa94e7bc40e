package postgres

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/ironca/storage"
)

// CounterCache implements storage.CounterCache backed by PostgreSQL.
//
// Reads come from an in-memory map loaded at start; writes persist to
// PostgreSQL and then update the map, as the BBolt counter cache does.
type CounterCache struct {
	pool  *pgxpool.Pool
	mu    sync.RWMutex
	cache map[string]uint64
}

var _ storage.CounterCache = (*CounterCache)(nil)

// NewCounterCache loads all persisted counters into memory.
func NewCounterCache(ctx context.Context, pool *pgxpool.Pool) (*CounterCache, error) {
	c := &CounterCache{
		pool:  pool,
		cache: make(map[string]uint64),
	}

	rows, err := pool.Query(ctx, `SELECT counter_key, max_value FROM counter_cache`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value uint64
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		c.cache[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *CounterCache) MaxSeen(key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache[key]
}

// Observe persists value as the new maximum for key. It returns
// storage.ErrRollbackDetected if value is below the stored maximum.
func (c *CounterCache) Observe(key string, value uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value < c.cache[key] {
		return storage.ErrRollbackDetected
	}

	_, err := c.pool.Exec(context.Background(),
		`INSERT INTO counter_cache (counter_key, max_value) VALUES ($1, $2)
		 ON CONFLICT (counter_key) DO UPDATE SET max_value = GREATEST(counter_cache.max_value, $2)`,
		key, value)
	if err != nil {
		return err
	}

	c.cache[key] = value
	return nil
}
