// Package filesystem implements storage.Repository on top of an afero.Fs,
// laying records out as one JSON file per record:
//
//	<root>/<caID>/<recordType>/<recordID>.json
//
// It is the backend of choice for a CA directory that operators inspect or
// back up with ordinary file tools. Tests run it against afero.NewMemMapFs.
package filesystem

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/jmcleod/ironca/storage"
)

const recordExt = ".json"

// Store implements storage.Repository backed by an afero filesystem.
type Store struct {
	mu   sync.RWMutex
	fs   afero.Fs
	root string
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository rooted at root on fs. The root
// directory is created if it does not exist.
func NewRepository(fs afero.Fs, root string) (*Store, error) {
	root = strings.TrimRight(root, "/")
	if root == "" {
		root = "."
	}
	if err := fs.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &Store{fs: fs, root: root}, nil
}

// NewOsRepository returns a Repository rooted at dir on the host filesystem.
func NewOsRepository(dir string) (*Store, error) {
	return NewRepository(afero.NewOsFs(), dir)
}

func (s *Store) caDir(caID string) string {
	return path.Join(s.root, url.PathEscape(caID))
}

func (s *Store) typeDir(caID, recordType string) string {
	return path.Join(s.caDir(caID), url.PathEscape(recordType))
}

func (s *Store) recordPath(caID, recordType, recordID string) string {
	return path.Join(s.typeDir(caID, recordType), url.PathEscape(recordID)+recordExt)
}

func (s *Store) Put(caID, recordType, recordID string, record *storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(caID, recordType, recordID, record)
}

func (s *Store) Get(caID, recordType, recordID string) (*storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(caID, recordType, recordID)
}

func (s *Store) List(caID, recordType string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names, err := afero.ReadDir(s.fs, s.typeDir(caID, recordType))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, fi := range names {
		name, ok := strings.CutSuffix(fi.Name(), recordExt)
		if fi.IsDir() || !ok {
			continue
		}
		id, err := url.PathUnescape(name)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: malformed record file name %q: %w", caID, recordType, fi.Name(), err)
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Delete(caID, recordType, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(caID, recordType, recordID)
}

func (s *Store) PutCAS(caID, recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := s.read(caID, recordType, recordID)
	if err := checkCAS(existing, err, expectedVersion); err != nil {
		return err
	}
	return s.write(caID, recordType, recordID, record)
}

// Batch stages every write in memory and applies them only when fn returns
// nil, so a failed batch leaves the directory untouched.
func (s *Store) Batch(caID string, fn func(tx storage.BatchTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &fsBatchTx{store: s, caID: caID, staged: make(map[stagedKey]*storage.Record)}
	if err := fn(tx); err != nil {
		return err
	}
	for _, k := range tx.order {
		rec := tx.staged[k]
		var err error
		if rec == nil {
			err = s.remove(caID, k.recordType, k.recordID)
			if errors.Is(err, storage.ErrNotFound) {
				err = nil
			}
		} else {
			err = s.write(caID, k.recordType, k.recordID, rec)
		}
		if err != nil {
			return fmt.Errorf("applying batch: %w", err)
		}
	}
	return nil
}

func (s *Store) read(caID, recordType, recordID string) (*storage.Record, error) {
	data, err := afero.ReadFile(s.fs, s.recordPath(caID, recordType, recordID))
	if errors.Is(err, os.ErrNotExist) {
		if exists, _ := afero.DirExists(s.fs, s.caDir(caID)); !exists {
			return nil, fmt.Errorf("%s: %w", caID, storage.ErrCANotFound)
		}
		return nil, fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var rec storage.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%s/%s: %w", recordType, recordID, err)
	}
	return &rec, nil
}

func (s *Store) write(caID, recordType, recordID string, record *storage.Record) error {
	if err := s.fs.MkdirAll(s.typeDir(caID, recordType), 0700); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	final := s.recordPath(caID, recordType, recordID)
	tmp := final + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0600); err != nil {
		return err
	}
	return s.fs.Rename(tmp, final)
}

func (s *Store) remove(caID, recordType, recordID string) error {
	p := s.recordPath(caID, recordType, recordID)
	if _, err := s.fs.Stat(p); err != nil {
		if exists, _ := afero.DirExists(s.fs, s.caDir(caID)); !exists {
			return fmt.Errorf("%s: %w", caID, storage.ErrCANotFound)
		}
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	return s.fs.Remove(p)
}

func checkCAS(existing *storage.Record, readErr error, expectedVersion uint64) error {
	switch {
	case readErr != nil && !errors.Is(readErr, storage.ErrNotFound) && !errors.Is(readErr, storage.ErrCANotFound):
		return readErr
	case readErr != nil && expectedVersion != 0:
		return storage.ErrCASFailed
	case readErr == nil && (expectedVersion == 0 || existing.Version != expectedVersion):
		return storage.ErrCASFailed
	}
	return nil
}

type stagedKey struct {
	recordType string
	recordID   string
}

type fsBatchTx struct {
	store  *Store
	caID   string
	staged map[stagedKey]*storage.Record
	order  []stagedKey
}

func (tx *fsBatchTx) stage(k stagedKey, rec *storage.Record) {
	if _, ok := tx.staged[k]; !ok {
		tx.order = append(tx.order, k)
	}
	tx.staged[k] = rec
}

func (tx *fsBatchTx) Get(recordType, recordID string) (*storage.Record, error) {
	k := stagedKey{recordType, recordID}
	if rec, ok := tx.staged[k]; ok {
		if rec == nil {
			return nil, fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
		}
		return rec.Clone(), nil
	}
	return tx.store.read(tx.caID, recordType, recordID)
}

func (tx *fsBatchTx) Put(recordType, recordID string, record *storage.Record) error {
	tx.stage(stagedKey{recordType, recordID}, record.Clone())
	return nil
}

func (tx *fsBatchTx) PutCAS(recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	existing, err := tx.Get(recordType, recordID)
	if err := checkCAS(existing, err, expectedVersion); err != nil {
		return err
	}
	return tx.Put(recordType, recordID, record)
}

func (tx *fsBatchTx) Delete(recordType, recordID string) error {
	if _, err := tx.Get(recordType, recordID); err != nil {
		return err
	}
	tx.stage(stagedKey{recordType, recordID}, nil)
	return nil
}
