package bbolt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/ironca/storage"
)

func newTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ca-test.db")
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBBoltStorage(t *testing.T) {
	s := NewRepository(newTestDB(t))
	caID := "ca1"
	recordType := "cert"
	recordID := "agent01"
	rec := &storage.Record{Data: []byte(`"pem"`), Version: 1}

	t.Run("PutGet", func(t *testing.T) {
		err := s.Put(caID, recordType, recordID, rec)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := s.Get(caID, recordType, recordID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Version != rec.Version {
			t.Errorf("expected version %d, got %d", rec.Version, got.Version)
		}
		if string(got.Data) != string(rec.Data) {
			t.Errorf("expected data %q, got %q", rec.Data, got.Data)
		}
	})

	t.Run("ListSorted", func(t *testing.T) {
		s.Put(caID, recordType, "zz-agent", rec)
		s.Put(caID, recordType, "aa-agent", rec)
		s.Put(caID, "certificate", "not-a-cert", rec)
		ids, err := s.List(caID, recordType)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		want := []string{"aa-agent", "agent01", "zz-agent"}
		if len(ids) != len(want) {
			t.Fatalf("expected %v, got %v", want, ids)
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Errorf("expected %v, got %v", want, ids)
			}
		}
	})

	t.Run("PutCAS create-only", func(t *testing.T) {
		err := s.PutCAS(caID, "crl", "cas1", 0, rec)
		if err != nil {
			t.Fatalf("PutCAS (new) failed: %v", err)
		}

		err = s.PutCAS(caID, "crl", "cas1", 0, rec)
		if err != storage.ErrCASFailed {
			t.Errorf("expected ErrCASFailed, got %v", err)
		}
	})

	t.Run("PutCAS version match", func(t *testing.T) {
		v2 := &storage.Record{Data: []byte(`"v2"`), Version: 2}
		err := s.PutCAS(caID, "crl", "cas1", 1, v2)
		if err != nil {
			t.Fatalf("PutCAS (version match) failed: %v", err)
		}

		got, _ := s.Get(caID, "crl", "cas1")
		if got.Version != 2 {
			t.Errorf("expected version 2, got %d", got.Version)
		}
	})

	t.Run("PutCAS version mismatch", func(t *testing.T) {
		v6 := &storage.Record{Data: []byte(`"v6"`), Version: 6}
		err := s.PutCAS(caID, "crl", "cas1", 5, v6)
		if err != storage.ErrCASFailed {
			t.Errorf("expected ErrCASFailed, got %v", err)
		}
	})

	t.Run("PutCAS non-zero on missing record", func(t *testing.T) {
		err := s.PutCAS(caID, "crl", "cas-missing", 1, rec)
		if err != storage.ErrCASFailed {
			t.Errorf("expected ErrCASFailed for non-zero version on missing record, got %v", err)
		}
	})

	t.Run("Get Errors", func(t *testing.T) {
		_, err := s.Get("nonexistent-ca", recordType, recordID)
		if !errors.Is(err, storage.ErrCANotFound) {
			t.Errorf("expected ErrCANotFound, got %v", err)
		}

		_, err = s.Get(caID, recordType, "nonexistent-record")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List Nonexistent CA", func(t *testing.T) {
		ids, err := s.List("nonexistent-ca", recordType)
		if err != nil {
			t.Errorf("expected no error for nonexistent CA in List, got %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("expected 0 ids, got %d", len(ids))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := s.Delete(caID, recordType, "zz-agent"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		err := s.Delete(caID, recordType, "zz-agent")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestNewRepositoryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bbolt-file-test.db")

	repo, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("NewRepositoryFromFile failed: %v", err)
	}
	defer repo.Close()

	if repo.DB() == nil {
		t.Error("repo.db is nil")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected database file to exist: %v", err)
	}

	// Test failure (invalid path)
	_, err = NewRepositoryFromFile("/nonexistent/path/to/db", nil)
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestBBoltBatch(t *testing.T) {
	s := NewRepository(newTestDB(t))
	caID := "ca1"

	t.Run("atomic batch write", func(t *testing.T) {
		err := s.Batch(caID, func(tx storage.BatchTx) error {
			if err := tx.Put("cert", "b1", &storage.Record{Data: []byte(`"a"`), Version: 1}); err != nil {
				return err
			}
			if err := tx.PutCAS("crl", "b2", 0, &storage.Record{Data: []byte(`"b"`), Version: 1}); err != nil {
				return err
			}
			got, err := tx.Get("crl", "b2")
			if err != nil {
				return err
			}
			return tx.PutCAS("crl", "b2", got.Version, &storage.Record{Data: []byte(`"c"`), Version: 2})
		})
		if err != nil {
			t.Fatalf("Batch failed: %v", err)
		}

		got2, err := s.Get(caID, "crl", "b2")
		if err != nil {
			t.Fatalf("Get b2 failed: %v", err)
		}
		if string(got2.Data) != `"c"` || got2.Version != 2 {
			t.Errorf("unexpected record after batch: %+v", got2)
		}
	})

	t.Run("batch rollback on error", func(t *testing.T) {
		err := s.Batch(caID, func(tx storage.BatchTx) error {
			tx.Put("cert", "rollback-test", &storage.Record{Data: []byte(`"x"`)})
			tx.Delete("cert", "b1")
			return storage.ErrCASFailed
		})
		if err != storage.ErrCASFailed {
			t.Fatalf("expected ErrCASFailed, got %v", err)
		}

		if _, err := s.Get(caID, "cert", "rollback-test"); err == nil {
			t.Error("expected record to not exist after rollback")
		}
		if _, err := s.Get(caID, "cert", "b1"); err != nil {
			t.Error("expected deleted record to be restored after rollback")
		}
	})
}
