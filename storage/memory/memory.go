// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"sort"
	"strings"
	"sync"

	"github.com/jmcleod/ironca/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, fixtures, and single-process use cases.
type Repository struct {
	mu   sync.RWMutex
	data map[string]map[string]*storage.Record
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]map[string]*storage.Record)}
}

func makeKey(recordType, recordID string) string {
	return recordType + ":" + recordID
}

func (r *Repository) Put(caID, recordType, recordID string, record *storage.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putLocked(caID, recordType, recordID, record)
}

func (r *Repository) putLocked(caID, recordType, recordID string, record *storage.Record) error {
	if _, ok := r.data[caID]; !ok {
		r.data[caID] = make(map[string]*storage.Record)
	}
	r.data[caID][makeKey(recordType, recordID)] = record.Clone()
	return nil
}

func (r *Repository) Get(caID, recordType, recordID string) (*storage.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(caID, recordType, recordID)
}

func (r *Repository) getLocked(caID, recordType, recordID string) (*storage.Record, error) {
	caData, ok := r.data[caID]
	if !ok {
		return nil, storage.ErrCANotFound
	}
	rec, ok := caData[makeKey(recordType, recordID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec.Clone(), nil
}

func (r *Repository) List(caID, recordType string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	prefix := recordType + ":"
	for k := range r.data[caID] {
		if id, ok := strings.CutPrefix(k, prefix); ok && id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Repository) Delete(caID, recordType, recordID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(caID, recordType, recordID)
}

func (r *Repository) deleteLocked(caID, recordType, recordID string) error {
	caData, ok := r.data[caID]
	if !ok {
		return storage.ErrCANotFound
	}
	k := makeKey(recordType, recordID)
	if _, ok := caData[k]; !ok {
		return storage.ErrNotFound
	}
	delete(caData, k)
	return nil
}

func (r *Repository) PutCAS(caID, recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putCASLocked(caID, recordType, recordID, expectedVersion, record)
}

func (r *Repository) putCASLocked(caID, recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	existing, err := r.getLocked(caID, recordType, recordID)
	if err != nil {
		if expectedVersion != 0 {
			return storage.ErrCASFailed
		}
		return r.putLocked(caID, recordType, recordID, record)
	}
	if expectedVersion == 0 || existing.Version != expectedVersion {
		return storage.ErrCASFailed
	}
	return r.putLocked(caID, recordType, recordID, record)
}

// Batch executes fn within a batch transaction. On error, all writes are rolled back.
func (r *Repository) Batch(caID string, fn func(tx storage.BatchTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.snapshotCA(caID)

	tx := &memoryBatchTx{repo: r, caID: caID}
	if err := fn(tx); err != nil {
		r.restoreCA(caID, snapshot)
		return err
	}
	return nil
}

func (r *Repository) snapshotCA(caID string) map[string]*storage.Record {
	original, ok := r.data[caID]
	if !ok {
		return nil
	}
	cp := make(map[string]*storage.Record, len(original))
	for k, v := range original {
		cp[k] = v.Clone()
	}
	return cp
}

func (r *Repository) restoreCA(caID string, snapshot map[string]*storage.Record) {
	if snapshot == nil {
		delete(r.data, caID)
	} else {
		r.data[caID] = snapshot
	}
}

type memoryBatchTx struct {
	repo *Repository
	caID string
}

func (tx *memoryBatchTx) Get(recordType, recordID string) (*storage.Record, error) {
	return tx.repo.getLocked(tx.caID, recordType, recordID)
}

func (tx *memoryBatchTx) Put(recordType, recordID string, record *storage.Record) error {
	return tx.repo.putLocked(tx.caID, recordType, recordID, record)
}

func (tx *memoryBatchTx) PutCAS(recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	return tx.repo.putCASLocked(tx.caID, recordType, recordID, expectedVersion, record)
}

func (tx *memoryBatchTx) Delete(recordType, recordID string) error {
	return tx.repo.deleteLocked(tx.caID, recordType, recordID)
}
