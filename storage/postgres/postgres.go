// Package postgres implements storage.Repository backed by PostgreSQL.
//
// The records table uses a composite primary key (ca_id, record_type,
// record_id) that mirrors the key space used by the BBolt and in-memory
// backends. Record payloads are stored as BYTEA next to their CAS version.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/ironca/storage"
)

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool), nil
}

// Pool returns the underlying connection pool so the counter cache can share it.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// ---------------------------------------------------------------------------
// Repository interface implementation
// ---------------------------------------------------------------------------

const upsertSQL = `INSERT INTO records (ca_id, record_type, record_id, data, version, updated)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (ca_id, record_type, record_id)
	DO UPDATE SET data = $4, version = $5, updated = $6`

func (s *Store) Put(caID, recordType, recordID string, record *storage.Record) error {
	_, err := s.pool.Exec(context.Background(), upsertSQL,
		caID, recordType, recordID, record.Data, record.Version, updatedAt(record))
	return err
}

func (s *Store) Get(caID, recordType, recordID string) (*storage.Record, error) {
	return getRecord(context.Background(), s.pool, caID, recordType, recordID)
}

func (s *Store) List(caID, recordType string) ([]string, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT record_id FROM records
		 WHERE ca_id = $1 AND record_type = $2
		 ORDER BY record_id COLLATE "C"`,
		caID, recordType)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) Delete(caID, recordType, recordID string) error {
	tag, err := s.pool.Exec(context.Background(),
		`DELETE FROM records WHERE ca_id = $1 AND record_type = $2 AND record_id = $3`,
		caID, recordType, recordID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFoundError(context.Background(), s.pool, caID, recordType, recordID)
	}
	return nil
}

func (s *Store) PutCAS(caID, recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	ctx := context.Background()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := putCASInTx(ctx, tx, caID, recordType, recordID, expectedVersion, record); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Batch(caID string, fn func(tx storage.BatchTx) error) error {
	ctx := context.Background()
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer pgTx.Rollback(ctx) //nolint:errcheck

	btx := &pgBatchTx{ctx: ctx, tx: pgTx, caID: caID}
	if err := fn(btx); err != nil {
		return err
	}
	return pgTx.Commit(ctx)
}

// ---------------------------------------------------------------------------
// BatchTx implementation
// ---------------------------------------------------------------------------

type pgBatchTx struct {
	ctx  context.Context
	tx   pgx.Tx
	caID string
}

var _ storage.BatchTx = (*pgBatchTx)(nil)

func (btx *pgBatchTx) Get(recordType, recordID string) (*storage.Record, error) {
	return getRecord(btx.ctx, btx.tx, btx.caID, recordType, recordID)
}

func (btx *pgBatchTx) Put(recordType, recordID string, record *storage.Record) error {
	_, err := btx.tx.Exec(btx.ctx, upsertSQL,
		btx.caID, recordType, recordID, record.Data, record.Version, updatedAt(record))
	return err
}

func (btx *pgBatchTx) PutCAS(recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	return putCASInTx(btx.ctx, btx.tx, btx.caID, recordType, recordID, expectedVersion, record)
}

func (btx *pgBatchTx) Delete(recordType, recordID string) error {
	tag, err := btx.tx.Exec(btx.ctx,
		`DELETE FROM records WHERE ca_id = $1 AND record_type = $2 AND record_id = $3`,
		btx.caID, recordType, recordID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// querier abstracts both *pgxpool.Pool and pgx.Tx for shared queries.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func updatedAt(record *storage.Record) time.Time {
	if record.Updated.IsZero() {
		return time.Now().UTC()
	}
	return record.Updated
}

func getRecord(ctx context.Context, q querier, caID, recordType, recordID string) (*storage.Record, error) {
	var rec storage.Record
	err := q.QueryRow(ctx,
		`SELECT data, version, updated
		 FROM records WHERE ca_id = $1 AND record_type = $2 AND record_id = $3`,
		caID, recordType, recordID).Scan(&rec.Data, &rec.Version, &rec.Updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFoundError(ctx, q, caID, recordType, recordID)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// putCASInTx performs a compare-and-swap put within an existing transaction.
// An expectedVersion of zero means the record must not exist yet.
func putCASInTx(ctx context.Context, tx pgx.Tx, caID, recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	var currentVersion uint64
	err := tx.QueryRow(ctx,
		`SELECT version FROM records
		 WHERE ca_id = $1 AND record_type = $2 AND record_id = $3
		 FOR UPDATE`,
		caID, recordType, recordID).Scan(&currentVersion)

	if errors.Is(err, pgx.ErrNoRows) {
		if expectedVersion != 0 {
			return storage.ErrCASFailed
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO records (ca_id, record_type, record_id, data, version, updated)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			caID, recordType, recordID, record.Data, record.Version, updatedAt(record))
		return err
	}
	if err != nil {
		return err
	}

	if expectedVersion == 0 || currentVersion != expectedVersion {
		return storage.ErrCASFailed
	}

	_, err = tx.Exec(ctx,
		`UPDATE records SET data = $4, version = $5, updated = $6
		 WHERE ca_id = $1 AND record_type = $2 AND record_id = $3`,
		caID, recordType, recordID, record.Data, record.Version, updatedAt(record))
	return err
}

// notFoundError distinguishes a missing CA namespace from a missing record,
// matching the BBolt backend.
func notFoundError(ctx context.Context, q querier, caID, recordType, recordID string) error {
	var exists bool
	_ = q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM records WHERE ca_id = $1 LIMIT 1)`,
		caID).Scan(&exists)
	if !exists {
		return fmt.Errorf("%s: %w", caID, storage.ErrCANotFound)
	}
	return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
}
