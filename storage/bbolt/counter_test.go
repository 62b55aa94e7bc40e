package bbolt

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/ironca/storage"
)

func TestCounterCachePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.db")

	db, err := bbolt.Open(path, 0600, nil)
	require.NoError(t, err)
	c, err := NewCounterCache(db)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), c.MaxSeen("ca1/crl"))
	require.NoError(t, c.Observe("ca1/crl", 3))
	require.NoError(t, c.Observe("ca1/crl", 3))
	assert.ErrorIs(t, c.Observe("ca1/crl", 2), storage.ErrRollbackDetected)
	require.NoError(t, db.Close())

	db, err = bbolt.Open(path, 0600, nil)
	require.NoError(t, err)
	defer db.Close()
	reopened, err := NewCounterCache(db)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), reopened.MaxSeen("ca1/crl"))
	assert.ErrorIs(t, reopened.Observe("ca1/crl", 1), storage.ErrRollbackDetected)
}
