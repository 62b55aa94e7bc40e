package memory

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jmcleod/ironca/storage"
)

func TestMemoryRepository(t *testing.T) {
	repo := NewRepository()
	caID := "ca1"
	recordType := "cert"
	recordID := "agent01"
	rec := &storage.Record{Data: []byte(`{"pem":"cert"}`), Version: 1}

	t.Run("PutAndGet", func(t *testing.T) {
		err := repo.Put(caID, recordType, recordID, rec)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := repo.Get(caID, recordType, recordID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got.Data) != string(rec.Data) || got.Version != rec.Version {
			t.Errorf("Get returned wrong record: %+v", got)
		}

		// Test isolation (cloning)
		got.Data[0] = 'X'
		got2, _ := repo.Get(caID, recordType, recordID)
		if got2.Data[0] == 'X' {
			t.Error("Memory repository should return clones of records")
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := repo.Get("nonexistent", recordType, recordID)
		if !errors.Is(err, storage.ErrCANotFound) {
			t.Errorf("expected ErrCANotFound, got %v", err)
		}

		_, err = repo.Get(caID, recordType, "nonexistent")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListSorted", func(t *testing.T) {
		repo.Put(caID, "cert", "zeta", rec)
		repo.Put(caID, "cert", "alpha", rec)
		repo.Put(caID, "request", "agent01", rec)

		ids, err := repo.List(caID, "cert")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		want := []string{"agent01", "alpha", "zeta"}
		if fmt.Sprint(ids) != fmt.Sprint(want) {
			t.Errorf("expected %v, got %v", want, ids)
		}

		ids, _ = repo.List("nonexistent", "cert")
		if len(ids) != 0 {
			t.Errorf("Expected 0 IDs for nonexistent CA, got %d", len(ids))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(caID, "cert", "zeta"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := repo.Delete(caID, "cert", "zeta"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("PutCAS", func(t *testing.T) {
		repo := NewRepository()
		rec1 := &storage.Record{Version: 1}
		rec2 := &storage.Record{Version: 2}

		// Create-only (expectedVersion = 0)
		err := repo.PutCAS(caID, "crl", "issuer", 0, rec1)
		if err != nil {
			t.Fatalf("PutCAS create failed: %v", err)
		}

		// Version mismatch on create
		err = repo.PutCAS(caID, "other", "id", 1, rec1)
		if err != storage.ErrCASFailed {
			t.Errorf("Expected ErrCASFailed, got %v", err)
		}

		// Version match update
		err = repo.PutCAS(caID, "crl", "issuer", 1, rec2)
		if err != nil {
			t.Fatalf("PutCAS update failed: %v", err)
		}

		// Version mismatch update
		err = repo.PutCAS(caID, "crl", "issuer", 1, rec1)
		if err != storage.ErrCASFailed {
			t.Errorf("Expected ErrCASFailed, got %v", err)
		}
	})

	t.Run("Batch", func(t *testing.T) {
		repo := NewRepository()

		// Successful batch
		err := repo.Batch(caID, func(tx storage.BatchTx) error {
			if err := tx.Put("cert", "id1", rec); err != nil {
				return err
			}
			if _, err := tx.Get("cert", "id1"); err != nil {
				return err
			}
			return tx.PutCAS("cert", "id2", 0, rec)
		})
		if err != nil {
			t.Fatalf("Batch failed: %v", err)
		}

		if _, err := repo.Get(caID, "cert", "id1"); err != nil {
			t.Error("Record id1 should exist after batch")
		}

		// Failing batch (rollback)
		err = repo.Batch(caID, func(tx storage.BatchTx) error {
			tx.Put("cert", "id3", rec)
			tx.Delete("cert", "id1")
			return fmt.Errorf("simulated error")
		})
		if err == nil {
			t.Error("Expected error from Batch, got nil")
		}

		if _, err := repo.Get(caID, "cert", "id3"); err == nil {
			t.Error("Record id3 should NOT exist after failed batch")
		}
		if _, err := repo.Get(caID, "cert", "id1"); err != nil {
			t.Error("Record id1 should be restored after failed batch")
		}
	})
}
