package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/ironca/storage"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("IRONCA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("IRONCA_TEST_POSTGRES_DSN not set; skipping PostgreSQL tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("could not connect to postgres: %v", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("could not ensure schema: %v", err)
	}

	// Clean tables for test isolation.
	pool.Exec(ctx, "DELETE FROM records")       //nolint:errcheck
	pool.Exec(ctx, "DELETE FROM counter_cache") //nolint:errcheck

	t.Cleanup(func() {
		pool.Exec(ctx, "DELETE FROM records")       //nolint:errcheck
		pool.Exec(ctx, "DELETE FROM counter_cache") //nolint:errcheck
		pool.Close()
	})
	return pool
}

func TestPostgresStorage(t *testing.T) {
	s := NewRepository(newTestPool(t))

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
		s.Put(caID, recordType, "Zed", rec)   //nolint:errcheck
		s.Put(caID, recordType, "alpha", rec) //nolint:errcheck
		ids, err := s.List(caID, recordType)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		want := []string{"Zed", "agent01", "alpha"}
		if len(ids) != len(want) {
			t.Fatalf("expected %v, got %v", want, ids)
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Errorf("expected %v, got %v", want, ids)
			}
		}
	})

	t.Run("PutCAS", func(t *testing.T) {
		if err := s.PutCAS(caID, "crl", "cas1", 0, rec); err != nil {
			t.Fatalf("PutCAS (new) failed: %v", err)
		}
		if err := s.PutCAS(caID, "crl", "cas1", 0, rec); err != storage.ErrCASFailed {
			t.Errorf("expected ErrCASFailed, got %v", err)
		}
		if err := s.PutCAS(caID, "crl", "cas1", 1, &storage.Record{Data: []byte(`"v2"`), Version: 2}); err != nil {
			t.Fatalf("PutCAS (version match) failed: %v", err)
		}
		if err := s.PutCAS(caID, "crl", "cas1", 1, rec); err != storage.ErrCASFailed {
			t.Errorf("expected ErrCASFailed, got %v", err)
		}
		if err := s.PutCAS(caID, "crl", "cas-missing", 1, rec); err != storage.ErrCASFailed {
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

	t.Run("Delete", func(t *testing.T) {
		if err := s.Delete(caID, recordType, "Zed"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := s.Delete(caID, recordType, "Zed"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestPostgresBatch(t *testing.T) {
	s := NewRepository(newTestPool(t))
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

		got, err := s.Get(caID, "crl", "b2")
		if err != nil {
			t.Fatalf("Get b2 failed: %v", err)
		}
		if string(got.Data) != `"c"` {
			t.Errorf("expected data %q, got %q", `"c"`, got.Data)
		}
	})

	t.Run("batch rollback on error", func(t *testing.T) {
		err := s.Batch(caID, func(tx storage.BatchTx) error {
			tx.Put("cert", "rollback-test", &storage.Record{Data: []byte(`"x"`)}) //nolint:errcheck
			return storage.ErrCASFailed
		})
		if err != storage.ErrCASFailed {
			t.Fatalf("expected ErrCASFailed, got %v", err)
		}

		if _, err := s.Get(caID, "cert", "rollback-test"); err == nil {
			t.Error("expected record to not exist after rollback")
		}
	})
}

func TestPostgresCounterCache(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	c, err := NewCounterCache(ctx, pool)
	if err != nil {
		t.Fatalf("NewCounterCache failed: %v", err)
	}
	if got := c.MaxSeen("ca1/crl"); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
	if err := c.Observe("ca1/crl", 5); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if err := c.Observe("ca1/crl", 4); !errors.Is(err, storage.ErrRollbackDetected) {
		t.Errorf("expected ErrRollbackDetected, got %v", err)
	}

	reloaded, err := NewCounterCache(ctx, pool)
	if err != nil {
		t.Fatalf("NewCounterCache (reload) failed: %v", err)
	}
	if got := reloaded.MaxSeen("ca1/crl"); got != 5 {
		t.Errorf("expected 5 after reload, got %d", got)
	}
}
